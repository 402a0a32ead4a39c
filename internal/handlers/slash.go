package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/tarumae/internal/commands"
	"github.com/latoulicious/tarumae/pkg/audio"
	"github.com/latoulicious/tarumae/pkg/logging"
)

// InteractionHandler handles slash commands and control button presses
func (h *Handlers) InteractionHandler(s *discordgo.Session, i *discordgo.InteractionCreate) {
	// guild interactions only
	if i.Member == nil || i.Member.User == nil || i.Member.User.Bot {
		return
	}

	var name string
	var args []string

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		name = data.Name
		args = commands.SlashArgs(data.Options)
	case discordgo.InteractionMessageComponent:
		command, ok := commands.ParseCustomID(i.MessageComponentData().CustomID)
		if !ok {
			return
		}
		name = command
	default:
		h.logger.Debug("Unhandled interaction type", logging.Int("type", int(i.Type)))
		return
	}

	// Acknowledge the interaction immediately
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		h.logger.Warn("Error acknowledging interaction", logging.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	user := i.Member.User
	reply := h.commands.Execute(ctx, name, commands.Request{
		GuildID:        i.GuildID,
		ChannelID:      i.ChannelID,
		UserID:         user.ID,
		Username:       user.Username,
		VoiceChannelID: audio.UserVoiceChannel(s, i.GuildID, user.ID),
		Args:           args,
	})

	h.respond(s, i, reply)
}

func (h *Handlers) respond(s *discordgo.Session, i *discordgo.InteractionCreate, reply commands.Reply) {
	var embeds []*discordgo.MessageEmbed
	if reply.Embed != nil {
		embeds = []*discordgo.MessageEmbed{reply.Embed}
	}

	if reply.Ephemeral {
		if err := s.InteractionResponseDelete(i.Interaction); err != nil {
			h.logger.Debug("Failed to delete deferred response", logging.Error(err))
		}
		_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Content: reply.Content,
			Embeds:  embeds,
			Flags:   discordgo.MessageFlagsEphemeral,
		})
		if err != nil {
			h.logger.Warn("Error sending ephemeral followup", logging.Error(err))
		}
		return
	}

	edit := &discordgo.WebhookEdit{Embeds: &embeds}
	if reply.Content != "" {
		edit.Content = &reply.Content
	}
	if reply.Components != nil {
		edit.Components = &reply.Components
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		h.logger.Warn("Error sending interaction response", logging.Error(err))
	}
}
