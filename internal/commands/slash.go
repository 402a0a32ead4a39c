package commands

import (
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/tarumae/pkg/logging"
)

var historyMinLimit = float64(1)

// SlashCommands are the application commands the bot registers
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song or add it to the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "YouTube URL or search terms",
					Required:    true,
				},
			},
		},
		{Name: "skip", Description: "Skip the current song"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "leave", Description: "Stop playback and leave the voice channel"},
		{Name: "pause", Description: "Pause the current playback"},
		{Name: "resume", Description: "Resume paused playback"},
		{Name: "loop", Description: "Toggle repeating the current song"},
		{Name: "queue", Description: "Show the music queue"},
		{Name: "nowplaying", Description: "Show what's currently playing"},
		{
			Name:        "history",
			Description: "Show recently played songs",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "How many songs to list",
					MinValue:    &historyMinLimit,
					MaxValue:    historyMaxLimit,
				},
			},
		},
		{Name: "help", Description: "Show help information"},
	}
}

// SlashArgs turns slash command options into positional arguments
func SlashArgs(options []*discordgo.ApplicationCommandInteractionDataOption) []string {
	args := make([]string, 0, len(options))
	for _, option := range options {
		switch option.Type {
		case discordgo.ApplicationCommandOptionString:
			args = append(args, option.StringValue())
		case discordgo.ApplicationCommandOptionInteger:
			args = append(args, strconv.FormatInt(option.IntValue(), 10))
		}
	}
	return args
}

type commandRegistrar interface {
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
}

// RegisterSlashCommands registers all slash commands globally
func RegisterSlashCommands(s commandRegistrar, appID string, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NullLogger()
	}

	logger.Info("Registering global slash commands")
	for _, cmd := range SlashCommands() {
		if _, err := s.ApplicationCommandCreate(appID, "", cmd); err != nil {
			logger.Error("Error creating command", logging.String("command", cmd.Name), logging.Error(err))
			return err
		}
		logger.Debug("Registered command", logging.String("command", cmd.Name))
	}
	logger.Info("All slash commands registered successfully")
	return nil
}

// DeleteSlashCommands deletes global slash commands. An empty name deletes
// all of them. It returns how many were deleted.
func DeleteSlashCommands(s commandRegistrar, appID, name string, logger logging.Logger) (int, error) {
	if logger == nil {
		logger = logging.NullLogger()
	}

	registered, err := s.ApplicationCommands(appID, "")
	if err != nil {
		return 0, fmt.Errorf("failed to fetch commands: %w", err)
	}

	deleted := 0
	for _, cmd := range registered {
		if name != "" && cmd.Name != name {
			continue
		}
		if err := s.ApplicationCommandDelete(appID, "", cmd.ID); err != nil {
			return deleted, fmt.Errorf("failed to delete command %s: %w", cmd.Name, err)
		}
		deleted++
		logger.Info("Deleted command", logging.String("command", cmd.Name))
	}

	if name != "" && deleted == 0 {
		logger.Warn("Command not found", logging.String("command", name))
	}
	return deleted, nil
}
