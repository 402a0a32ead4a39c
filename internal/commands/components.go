package commands

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// customIDPrefix namespaces the button ids this bot owns
const customIDPrefix = "music:"

var buttonCommands = []struct {
	command string
	label   string
	style   discordgo.ButtonStyle
}{
	{"skip", "⏭️ Skip", discordgo.PrimaryButton},
	{"pause", "⏸️ Pause", discordgo.SecondaryButton},
	{"resume", "▶️ Resume", discordgo.SecondaryButton},
	{"loop", "🔁 Loop", discordgo.SecondaryButton},
	{"stop", "⏹️ Stop", discordgo.DangerButton},
}

// CustomID returns the button id for a control command
func CustomID(command string) string {
	return customIDPrefix + command
}

// ParseCustomID returns the control command behind a button id
func ParseCustomID(customID string) (string, bool) {
	command, ok := strings.CutPrefix(customID, customIDPrefix)
	if !ok {
		return "", false
	}
	if _, known := controlOps[command]; !known {
		return "", false
	}
	return command, true
}

// ControlsRow is the button row attached to now-playing messages
func ControlsRow() []discordgo.MessageComponent {
	buttons := make([]discordgo.MessageComponent, 0, len(buttonCommands))
	for _, b := range buttonCommands {
		buttons = append(buttons, discordgo.Button{
			Label:    b.label,
			Style:    b.style,
			CustomID: CustomID(b.command),
		})
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: buttons},
	}
}
