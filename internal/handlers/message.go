package handlers

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/tarumae/internal/commands"
	"github.com/latoulicious/tarumae/pkg/audio"
	"github.com/latoulicious/tarumae/pkg/logging"
)

// commandTimeout bounds a single command, including track resolution
const commandTimeout = 45 * time.Second

var mentionResponses = []string{
	"I'm Hokko Tarumae, Tomakomai's Tourism Ambassador!★",
	"Hmm, would ah look cuter if ah was lookin' up more?",
	"A paper-winged migrating bird from the port in the north ♪ The name's Hokko Tarumae, Tomakomai's local-dol, eh! ...Yeah, maybe I should work on it more",
}

// Handlers routes gateway events to the command handler
type Handlers struct {
	commands *commands.Handler
	logger   logging.Logger
}

// New creates the gateway event handlers
func New(cmds *commands.Handler, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Handlers{
		commands: cmds,
		logger:   logger.With(logging.String("component", "handlers")),
	}
}

// parseCommand splits a prefixed message into a command name and arguments
func parseCommand(prefix, content string) (string, []string, bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

func mentions(m *discordgo.Message, userID string) bool {
	for _, mention := range m.Mentions {
		if mention.ID == userID {
			return true
		}
	}
	return false
}

// MessageHandler handles prefix commands in guild text channels
func (h *Handlers) MessageHandler(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	if s.State.User != nil && mentions(m.Message, s.State.User.ID) {
		if _, err := s.ChannelMessageSend(m.ChannelID, mentionResponses[rand.Intn(len(mentionResponses))]); err != nil {
			h.logger.Warn("Failed to answer mention", logging.Error(err))
		}
		return
	}

	name, args, ok := parseCommand(h.commands.Prefix(), m.Content)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	reply := h.commands.Execute(ctx, name, commands.Request{
		GuildID:        m.GuildID,
		ChannelID:      m.ChannelID,
		UserID:         m.Author.ID,
		Username:       m.Author.Username,
		VoiceChannelID: audio.UserVoiceChannel(s, m.GuildID, m.Author.ID),
		Args:           args,
	})

	send := &discordgo.MessageSend{
		Content:    reply.Content,
		Components: reply.Components,
		Reference:  m.Reference(),
	}
	if reply.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{reply.Embed}
	}
	if _, err := s.ChannelMessageSendComplex(m.ChannelID, send); err != nil {
		h.logger.Warn("Failed to send command reply",
			logging.String("channel_id", m.ChannelID),
			logging.Error(err),
		)
	}
}
