package commands

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/tarumae/pkg/database"
	"github.com/latoulicious/tarumae/pkg/logging"
	"github.com/latoulicious/tarumae/pkg/session"
)

const (
	historyDefaultLimit = 10
	historyMaxLimit     = 25
)

// Sessions is the part of the session manager the commands drive
type Sessions interface {
	Enqueue(ctx context.Context, req session.EnqueueRequest) (session.Result, error)
	Control(ctx context.Context, guildID, channelID string, op session.Op) (session.Result, error)
	Snapshot(guildID string) (session.Snapshot, error)
}

// HistoryReader lists recorded plays
type HistoryReader interface {
	RecentPlays(ctx context.Context, guildID string, limit int) ([]*database.PlayRecord, error)
}

// Request is a command invocation, independent of whether it came from a
// prefix message, a slash command or a button
type Request struct {
	GuildID        string
	ChannelID      string
	UserID         string
	Username       string
	VoiceChannelID string
	Args           []string
}

// Reply is what a command wants sent back
type Reply struct {
	Content    string
	Embed      *discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Ephemeral  bool
}

// Handler executes music commands against the session manager
type Handler struct {
	sessions Sessions
	history  HistoryReader
	limiter  *GuildLimiter
	prefix   string
	logger   logging.Logger
}

// NewHandler creates a command handler. history may be nil when the history
// store is disabled.
func NewHandler(sessions Sessions, history HistoryReader, limiter *GuildLimiter, prefix string, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NullLogger()
	}
	if prefix == "" {
		prefix = "!"
	}
	return &Handler{
		sessions: sessions,
		history:  history,
		limiter:  limiter,
		prefix:   prefix,
		logger:   logger.With(logging.String("component", "commands")),
	}
}

// Prefix returns the text command prefix
func (h *Handler) Prefix() string {
	return h.prefix
}

// commandAliases maps every accepted name to its canonical command
var commandAliases = map[string]string{
	"play":       "play",
	"p":          "play",
	"skip":       "skip",
	"s":          "skip",
	"stop":       "stop",
	"leave":      "leave",
	"dc":         "leave",
	"pause":      "pause",
	"resume":     "resume",
	"loop":       "loop",
	"queue":      "queue",
	"q":          "queue",
	"nowplaying": "nowplaying",
	"np":         "nowplaying",
	"history":    "history",
	"help":       "help",
	"h":          "help",
}

var controlOps = map[string]session.Op{
	"skip":   session.OpSkip,
	"stop":   session.OpStop,
	"leave":  session.OpLeave,
	"pause":  session.OpPause,
	"resume": session.OpResume,
	"loop":   session.OpToggleLoop,
}

// Resolve returns the canonical name of a command or alias
func Resolve(name string) (string, bool) {
	canonical, ok := commandAliases[strings.ToLower(name)]
	return canonical, ok
}

// Execute runs the named command. Unknown names yield the help reply.
func (h *Handler) Execute(ctx context.Context, name string, req Request) Reply {
	command, ok := Resolve(name)
	if !ok {
		return h.unknownCommand(name)
	}
	if command == "help" {
		return h.help()
	}

	if h.limiter != nil && !h.limiter.Allow(req.GuildID) {
		h.logger.Debug("Command throttled",
			logging.String("guild_id", req.GuildID),
			logging.String("command", command),
		)
		return throttledReply()
	}

	h.logger.Debug("Executing command",
		logging.String("guild_id", req.GuildID),
		logging.String("channel_id", req.ChannelID),
		logging.String("user", req.Username),
		logging.String("command", command),
	)

	switch command {
	case "play":
		return h.play(ctx, req)
	case "queue":
		return h.queue(req)
	case "nowplaying":
		return h.nowPlaying(req)
	case "history":
		return h.recentPlays(ctx, req)
	}

	op := controlOps[command]
	return h.control(ctx, req, op)
}

func (h *Handler) play(ctx context.Context, req Request) Reply {
	query := strings.TrimSpace(strings.Join(req.Args, " "))
	if query == "" {
		return usageReply("Please provide a YouTube URL or search query.", h.prefix+"play <url | search terms>")
	}

	res, err := h.sessions.Enqueue(ctx, session.EnqueueRequest{
		GuildID:        req.GuildID,
		ChannelID:      req.ChannelID,
		VoiceChannelID: req.VoiceChannelID,
		Query:          query,
		RequestedBy:    req.Username,
	})
	if err != nil {
		h.logFailure("play", req, err)
		return errorReply("play", err)
	}
	return resultReply(res)
}

// control runs a control operation. The caller must be in voice.
func (h *Handler) control(ctx context.Context, req Request, op session.Op) Reply {
	if req.VoiceChannelID == "" {
		return errorReply(op.String(), session.ErrNotConnectedToVoice)
	}

	res, err := h.sessions.Control(ctx, req.GuildID, req.ChannelID, op)
	if err != nil {
		h.logFailure(op.String(), req, err)
		return errorReply(op.String(), err)
	}
	return resultReply(res)
}

func (h *Handler) queue(req Request) Reply {
	snap, err := h.sessions.Snapshot(req.GuildID)
	if err != nil {
		return errorReply("queue", err)
	}
	return Reply{Embed: queueEmbed(snap)}
}

func (h *Handler) nowPlaying(req Request) Reply {
	snap, err := h.sessions.Snapshot(req.GuildID)
	if err != nil || snap.NowPlaying == nil {
		return Reply{Embed: nothingPlayingEmbed(h.prefix)}
	}
	embed := nowPlayingEmbed(*snap.NowPlaying, snap.State)
	if snap.Loop {
		embed.Footer.Text += " | 🔁 Loop is on"
	}
	return Reply{Embed: embed, Components: ControlsRow()}
}

func (h *Handler) recentPlays(ctx context.Context, req Request) Reply {
	if h.history == nil {
		return Reply{Embed: simpleEmbed("📜 History", "Playback history is disabled.", colorNeutral), Ephemeral: true}
	}

	limit := historyDefaultLimit
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			return usageReply("Limit must be a positive number.", h.prefix+"history [limit]")
		}
		limit = min(n, historyMaxLimit)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	plays, err := h.history.RecentPlays(ctx, req.GuildID, limit)
	if err != nil {
		h.logFailure("history", req, err)
		return Reply{Embed: simpleEmbed("❌ Error", "Failed to load playback history.", colorError)}
	}
	return Reply{Embed: historyEmbed(plays)}
}

func (h *Handler) logFailure(command string, req Request, err error) {
	h.logger.Info("Command rejected",
		logging.String("guild_id", req.GuildID),
		logging.String("command", command),
		logging.Error(err),
	)
}

func (h *Handler) unknownCommand(name string) Reply {
	return Reply{Embed: simpleEmbed("❓ Unknown Command",
		"`"+h.prefix+name+"` is not a command. Try `"+h.prefix+"help`.", colorNeutral)}
}

func (h *Handler) help() Reply {
	p := h.prefix
	embed := &discordgo.MessageEmbed{
		Title:       "Hokko Tarumae",
		Description: "Here are all the available commands for the bot:",
		Color:       colorSuccess,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "Music Commands",
				Value: strings.Join([]string{
					"• `" + p + "play <url | search>` / `" + p + "p` - Play or queue a YouTube video",
					"• `" + p + "skip` / `" + p + "s` - Skip the current track",
					"• `" + p + "pause` - Pause the current playback",
					"• `" + p + "resume` - Resume paused playback",
					"• `" + p + "loop` - Repeat the current track",
					"• `" + p + "stop` - Stop playback and clear the queue",
					"• `" + p + "leave` / `" + p + "dc` - Stop and disconnect",
					"• `" + p + "queue` / `" + p + "q` - Show the queue",
					"• `" + p + "nowplaying` / `" + p + "np` - Show the current track",
					"• `" + p + "history [limit]` - Show recently played tracks",
				}, "\n"),
			},
			{
				Name: "💡 Tips",
				Value: strings.Join([]string{
					"• Join a voice channel **before** using music commands",
					"• A session stays in the text channel it was started from",
					"• Only **YouTube links and searches** are currently supported",
				}, "\n"),
			},
		},
	}
	return Reply{Embed: embed}
}
