package presence

import (
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/tarumae/pkg/logging"
	"github.com/latoulicious/tarumae/pkg/session"
)

const (
	presenceDefault = "default"
	presenceMusic   = "music"
)

type statusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// PresenceManager manages the bot's presence. It implements
// session.Observer so the status follows playback across guilds.
type PresenceManager struct {
	updater    statusUpdater
	guildCount func() int
	logger     logging.Logger

	mutex   sync.Mutex
	current string
	// guild id -> title of the track it is playing, latest last
	playing []nowPlaying
}

type nowPlaying struct {
	guildID string
	title   string
}

// NewPresenceManager creates a new presence manager
func NewPresenceManager(dg *discordgo.Session, logger logging.Logger) *PresenceManager {
	return newPresenceManager(dg, func() int {
		if dg.State == nil {
			return 0
		}
		dg.State.RLock()
		defer dg.State.RUnlock()
		return len(dg.State.Guilds)
	}, logger)
}

func newPresenceManager(updater statusUpdater, guildCount func() int, logger logging.Logger) *PresenceManager {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &PresenceManager{
		updater:    updater,
		guildCount: guildCount,
		logger:     logger.With(logging.String("component", "presence")),
	}
}

// UpdateDefaultPresence shows how many servers the bot is in
func (pm *PresenceManager) UpdateDefaultPresence() {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	pm.setDefault()
}

func (pm *PresenceManager) setDefault() {
	presence := discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name: strconv.Itoa(pm.guildCount()) + " servers",
				Type: discordgo.ActivityTypeWatching,
			},
		},
	}
	if err := pm.updater.UpdateStatusComplex(presence); err != nil {
		pm.logger.Warn("Failed to update bot presence", logging.Error(err))
	}
	pm.current = presenceDefault
}

// UpdateMusicPresence shows songTitle as the current activity
func (pm *PresenceManager) UpdateMusicPresence(songTitle string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	pm.setMusic(songTitle)
}

func (pm *PresenceManager) setMusic(songTitle string) {
	presence := discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  "to",
				Type:  discordgo.ActivityTypeListening,
				State: songTitle,
			},
		},
	}
	if err := pm.updater.UpdateStatusComplex(presence); err != nil {
		pm.logger.Warn("Failed to update music presence", logging.Error(err))
	}
	pm.current = presenceMusic
}

// ClearMusicPresence clears the music presence and returns to default
func (pm *PresenceManager) ClearMusicPresence() {
	pm.UpdateDefaultPresence()
}

// GetCurrentPresence returns the current presence type
func (pm *PresenceManager) GetCurrentPresence() string {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.current
}

// TrackStarted implements session.Observer
func (pm *PresenceManager) TrackStarted(guildID, _ string, track session.Track, repeat bool) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if repeat && pm.current == presenceMusic && len(pm.playing) > 0 && pm.playing[len(pm.playing)-1].guildID == guildID {
		return
	}
	pm.forget(guildID)
	pm.playing = append(pm.playing, nowPlaying{guildID: guildID, title: track.Title})
	pm.setMusic(track.Title)
}

// SessionEnded implements session.Observer. The status falls back to the
// most recent guild still playing, or to the default when none is.
func (pm *PresenceManager) SessionEnded(guildID, _ string, _ session.EndReason) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if !pm.forget(guildID) {
		return
	}
	if n := len(pm.playing); n > 0 {
		pm.setMusic(pm.playing[n-1].title)
		return
	}
	pm.setDefault()
}

func (pm *PresenceManager) forget(guildID string) bool {
	for i, np := range pm.playing {
		if np.guildID == guildID {
			pm.playing = append(pm.playing[:i], pm.playing[i+1:]...)
			return true
		}
	}
	return false
}

// StartPeriodicUpdates refreshes the default presence every interval while
// nothing is playing, until stop is closed
func (pm *PresenceManager) StartPeriodicUpdates(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if pm.GetCurrentPresence() != presenceMusic {
					pm.UpdateDefaultPresence()
				}
			}
		}
	}()
}
