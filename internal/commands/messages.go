package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/tarumae/pkg/database"
	"github.com/latoulicious/tarumae/pkg/session"
)

const (
	colorSuccess = 0x00ff00
	colorError   = 0xff0000
	colorNeutral = 0x808080
	colorInfo    = 0x7289da

	footerText = "Hokko Tarumae"

	// queueListLimit caps how many waiting tracks the queue embed lists
	queueListLimit = 10
)

func simpleEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func usageReply(message, usage string) Reply {
	return Reply{Embed: simpleEmbed("❌ Usage Error", message+"\n\n**Usage:** `"+usage+"`", colorError)}
}

func throttledReply() Reply {
	return Reply{
		Embed:     simpleEmbed("⏳ Slow Down", "Too many commands in this server, try again in a moment.", colorNeutral),
		Ephemeral: true,
	}
}

// nothingTo names what the user tried to act on when there is no session
func nothingTo(command string) string {
	switch command {
	case "leave":
		return "Nothing to stop."
	case "queue", "nowplaying":
		return "Nothing is currently playing."
	default:
		return "Nothing to " + command + "."
	}
}

// errorReply maps a session error to the message shown to the user
func errorReply(command string, err error) Reply {
	var conflict *session.ChannelConflictError
	var resolution *session.TrackResolutionError
	var failure *session.PlayerFailureError

	switch {
	case errors.Is(err, session.ErrNotConnectedToVoice):
		return Reply{Embed: simpleEmbed("🔇 No Connection", "Join a voice channel first.", colorError)}
	case errors.As(err, &conflict):
		return Reply{Embed: simpleEmbed("🚫 Other Channel In Use",
			fmt.Sprintf("Music is already being controlled from <#%s>.", conflict.BoundChannelID), colorError)}
	case errors.Is(err, session.ErrNoActiveSession):
		return Reply{Embed: simpleEmbed("📭 Nothing Playing", nothingTo(command), colorNeutral)}
	case errors.Is(err, session.ErrEmptyQueue):
		return Reply{Embed: simpleEmbed("📭 No Song In Queue", nothingTo(command), colorNeutral)}
	case errors.As(err, &resolution):
		return Reply{Embed: simpleEmbed("❌ Search Error",
			fmt.Sprintf("Couldn't find anything playable for `%s`.", resolution.Query), colorError)}
	case errors.As(err, &failure):
		return Reply{Embed: simpleEmbed("❌ Playback Error", "Failed to start audio playback.", colorError)}
	default:
		return Reply{Embed: simpleEmbed("❌ Error", "Something went wrong, please try again.", colorError)}
	}
}

// resultReply describes a successful Enqueue or Control call
func resultReply(res session.Result) Reply {
	switch res.Outcome {
	case session.OutcomeStarted:
		return Reply{Embed: simpleEmbed("🎵 Starting Playback", trackTitle(res.Track), colorSuccess)}
	case session.OutcomeQueued:
		return Reply{Embed: simpleEmbed("🎵 Song Added",
			fmt.Sprintf("✅ Added %s to queue (Position: %d)", trackTitle(res.Track), res.Position), colorSuccess)}
	case session.OutcomeSkipped:
		return Reply{Embed: simpleEmbed("⏭️ Skipped", "Up next: "+trackTitle(res.Track), colorSuccess)}
	case session.OutcomeDraining:
		return Reply{Embed: simpleEmbed("⏭️ Skipped", "That was the last song in the queue.", colorSuccess)}
	case session.OutcomeStopped:
		return Reply{Embed: simpleEmbed("⏹️ Stopped Playing", "Playback stopped and the queue was cleared.", colorSuccess)}
	case session.OutcomeLeft:
		return Reply{Embed: simpleEmbed("👋 Disconnected", "Playback stopped and I left the voice channel.", colorSuccess)}
	case session.OutcomePaused:
		return Reply{Embed: simpleEmbed("⏸️ Paused", "Playback paused.", colorSuccess)}
	case session.OutcomeResumed:
		return Reply{Embed: simpleEmbed("▶️ Resumed", "Playback resumed.", colorSuccess)}
	case session.OutcomeLoopEnabled:
		return Reply{Embed: simpleEmbed("🔁 Looped Active", "The current song will repeat.", colorSuccess)}
	case session.OutcomeLoopDisabled:
		return Reply{Embed: simpleEmbed("➡️ Looped Disabled", "The queue will continue normally.", colorSuccess)}
	default:
		return Reply{Embed: simpleEmbed("✅ Done", "", colorSuccess)}
	}
}

func trackTitle(track *session.Track) string {
	if track == nil || track.Title == "" {
		return "**Unknown title**"
	}
	return "**" + track.Title + "**"
}

func nothingPlayingEmbed(prefix string) *discordgo.MessageEmbed {
	embed := simpleEmbed("🎵 Now Playing", "Nothing is currently playing", colorNeutral)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Use " + prefix + "play to start playing music"}
	return embed
}

// nowPlayingEmbed renders the status message for a track
func nowPlayingEmbed(track session.Track, state session.State) *discordgo.MessageEmbed {
	requestedBy := track.RequestedBy
	if requestedBy == "" {
		requestedBy = "Unknown"
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎵 Now Playing",
		Description: fmt.Sprintf("**%s**", track.Title),
		Color:       colorSuccess,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Requested by", Value: requestedBy, Inline: true},
			{Name: "Duration", Value: formatDuration(track.Duration), Inline: true},
			{Name: "Status", Value: stateText(state), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: footerText},
	}

	if track.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: track.Thumbnail}
	}
	if track.URL != "" {
		embed.URL = track.URL
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "🔗 YouTube Link",
			Value:  fmt.Sprintf("[Open in YouTube](%s)", track.URL),
			Inline: true,
		})
	}
	return embed
}

func stateText(state session.State) string {
	switch state {
	case session.StatePlaying:
		return "🟢 Playing"
	case session.StatePaused:
		return "🟡 Paused"
	default:
		return "🔴 Stopped"
	}
}

// queueEmbed lists the current track and the waiting queue
func queueEmbed(snap session.Snapshot) *discordgo.MessageEmbed {
	var b strings.Builder

	if snap.NowPlaying != nil {
		fmt.Fprintf(&b, "🎶 **Now Playing:** %s (Requested by: %s)\n\n", snap.NowPlaying.Title, snap.NowPlaying.RequestedBy)
	}

	if len(snap.Queue) == 0 {
		b.WriteString("📋 No songs in queue.\n")
	} else {
		b.WriteString("📋 **Up Next:**\n")
		var total time.Duration
		for i, track := range snap.Queue {
			total += track.Duration
			if i >= queueListLimit {
				continue
			}
			fmt.Fprintf(&b, "%d. **%s** [%s] (Requested by: %s)\n", i+1, track.Title, formatDuration(track.Duration), track.RequestedBy)
		}
		if extra := len(snap.Queue) - queueListLimit; extra > 0 {
			fmt.Fprintf(&b, "...and %d more\n", extra)
		}
		fmt.Fprintf(&b, "\n%d song(s), %s total", len(snap.Queue), formatDuration(total))
	}

	embed := simpleEmbed("🎵 Music Queue", b.String(), colorInfo)
	if snap.Loop {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "🔁 Loop is on"}
	}
	return embed
}

func historyEmbed(plays []*database.PlayRecord) *discordgo.MessageEmbed {
	if len(plays) == 0 {
		return simpleEmbed("📜 Recently Played", "Nothing has been played in this server yet.", colorNeutral)
	}

	var b strings.Builder
	for i, p := range plays {
		title := p.Title
		if p.URL != "" {
			title = fmt.Sprintf("[%s](%s)", p.Title, p.URL)
		}
		fmt.Fprintf(&b, "%d. %s by %s, <t:%d:R>", i+1, title, p.RequestedBy, p.PlayedAt.Unix())
		if p.Repeat {
			b.WriteString(" 🔁")
		}
		b.WriteString("\n")
	}
	return simpleEmbed("📜 Recently Played", b.String(), colorInfo)
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "Live"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60

	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
