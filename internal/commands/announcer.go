package commands

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/tarumae/pkg/logging"
	"github.com/latoulicious/tarumae/pkg/session"
)

const announceBuffer = 64

type messenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

type announcement struct {
	channelID string
	track     session.Track
}

// Announcer posts a now-playing message with controls to the bound channel
// whenever a session moves to a new track. Loop repeats are not announced.
// It implements session.Observer.
type Announcer struct {
	messenger   messenger
	deleteAfter time.Duration
	logger      logging.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan announcement
	done   chan struct{}

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
}

// NewAnnouncer creates an announcer. deleteAfter <= 0 keeps messages.
func NewAnnouncer(dg *discordgo.Session, deleteAfter time.Duration, logger logging.Logger) *Announcer {
	return newAnnouncer(dg, deleteAfter, logger)
}

func newAnnouncer(m messenger, deleteAfter time.Duration, logger logging.Logger) *Announcer {
	if logger == nil {
		logger = logging.NullLogger()
	}
	a := &Announcer{
		messenger:   m,
		deleteAfter: deleteAfter,
		logger:      logger.With(logging.String("component", "announcer")),
		queue:       make(chan announcement, announceBuffer),
		done:        make(chan struct{}),
		timers:      make(map[*time.Timer]struct{}),
	}
	go a.run()
	return a
}

// TrackStarted implements session.Observer
func (a *Announcer) TrackStarted(guildID, channelID string, track session.Track, repeat bool) {
	if repeat {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- announcement{channelID: channelID, track: track}:
	default:
		a.logger.Warn("Announcement queue full, dropping", logging.String("guild_id", guildID))
	}
}

// SessionEnded implements session.Observer
func (a *Announcer) SessionEnded(string, string, session.EndReason) {}

func (a *Announcer) run() {
	defer close(a.done)
	for ann := range a.queue {
		a.post(ann)
	}
}

func (a *Announcer) post(ann announcement) {
	msg, err := a.messenger.ChannelMessageSendComplex(ann.channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{nowPlayingEmbed(ann.track, session.StatePlaying)},
		Components: ControlsRow(),
	})
	if err != nil {
		a.logger.Warn("Failed to post now playing message",
			logging.String("channel_id", ann.channelID),
			logging.Error(err),
		)
		return
	}
	if a.deleteAfter <= 0 || msg == nil {
		return
	}

	a.timersMu.Lock()
	defer a.timersMu.Unlock()
	var timer *time.Timer
	timer = time.AfterFunc(a.deleteAfter, func() {
		a.timersMu.Lock()
		delete(a.timers, timer)
		a.timersMu.Unlock()
		if err := a.messenger.ChannelMessageDelete(msg.ChannelID, msg.ID); err != nil {
			a.logger.Debug("Failed to delete now playing message", logging.Error(err))
		}
	})
	a.timers[timer] = struct{}{}
}

// Close stops posting. Pending deletions are cancelled.
func (a *Announcer) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done

	a.timersMu.Lock()
	for t := range a.timers {
		t.Stop()
	}
	a.timers = make(map[*time.Timer]struct{})
	a.timersMu.Unlock()
}
