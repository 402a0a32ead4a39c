package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/latoulicious/tarumae/pkg/logging"
	"github.com/latoulicious/tarumae/pkg/session"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
	frameBytes = frameSize * channels * 2
	maxPacket  = 4000

	stopWait = 2 * time.Second
)

var (
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrSendTimeout    = errors.New("voice send timed out")
)

// Encoder turns one PCM frame into an opus packet
type Encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// Sink receives encoded frames
type Sink interface {
	Send(ctx context.Context, frame []byte) error
	Speaking(on bool)
}

// Source opens a PCM stream (s16le, 48kHz, stereo) for a stream URL
type Source interface {
	Open(ctx context.Context, streamURL string) (io.ReadCloser, error)
}

// voiceSink sends frames to a discordgo voice connection
type voiceSink struct {
	vc          *discordgo.VoiceConnection
	sendTimeout time.Duration
}

func (s *voiceSink) Send(ctx context.Context, frame []byte) error {
	select {
	case s.vc.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.sendTimeout):
		return ErrSendTimeout
	}
}

func (s *voiceSink) Speaking(on bool) {
	_ = s.vc.Speaking(on)
}

// PlayerConfig configures the players built by a Factory
type PlayerConfig struct {
	FFmpegPath  string
	Bitrate     int
	SendTimeout time.Duration
}

// DefaultPlayerConfig returns the encoder and ffmpeg defaults
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{FFmpegPath: "ffmpeg", Bitrate: 96000, SendTimeout: 5 * time.Second}
}

// Factory builds one Player per guild session
type Factory struct {
	config     PlayerConfig
	source     Source
	newEncoder func() (Encoder, error)
	logger     logging.Logger
}

// NewFactory creates a factory that decodes with ffmpeg and encodes with opus
func NewFactory(config PlayerConfig, logger logging.Logger) *Factory {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultPlayerConfig().SendTimeout
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	f := &Factory{
		config: config,
		source: &FFmpegSource{Path: config.FFmpegPath, Logger: logger},
		logger: logger.With(logging.String("component", "audio_player")),
	}
	f.newEncoder = f.opusEncoder
	return f
}

func (f *Factory) opusEncoder() (Encoder, error) {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if f.config.Bitrate > 0 {
		encoder.SetBitrate(f.config.Bitrate)
	}
	return encoder, nil
}

// NewPlayer implements session.PlayerFactory
func (f *Factory) NewPlayer(guildID string, conn session.Connection, notify func(session.PlayerEvent)) (session.Player, error) {
	c, ok := conn.(*Connection)
	if !ok {
		return nil, ErrForeignConnection
	}
	encoder, err := f.newEncoder()
	if err != nil {
		return nil, err
	}
	sink := &voiceSink{vc: c.vc, sendTimeout: f.config.SendTimeout}
	return newPlayer(guildID, f.source, encoder, sink, notify, f.logger), nil
}

// Player streams one track at a time to a sink and reports lifecycle events
type Player struct {
	guildID string
	source  Source
	encoder Encoder
	sink    Sink
	notify  func(session.PlayerEvent)
	logger  logging.Logger

	mu      sync.Mutex
	next    session.Handle
	current *playback
}

func newPlayer(guildID string, source Source, encoder Encoder, sink Sink, notify func(session.PlayerEvent), logger logging.Logger) *Player {
	return &Player{
		guildID: guildID,
		source:  source,
		encoder: encoder,
		sink:    sink,
		notify:  notify,
		logger:  logger.With(logging.String("guild_id", guildID)),
	}
}

// playback is one started track
type playback struct {
	handle session.Handle
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func (pb *playback) pause() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if !pb.paused {
		pb.paused = true
		pb.resume = make(chan struct{})
	}
}

func (pb *playback) unpause() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.paused {
		pb.paused = false
		close(pb.resume)
	}
}

// wait blocks while paused and reports whether playback should continue
func (pb *playback) wait(ctx context.Context) bool {
	pb.mu.Lock()
	if !pb.paused {
		pb.mu.Unlock()
		return true
	}
	ch := pb.resume
	pb.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Start stops whatever is playing and starts track. The returned handle tags
// every event of this playback.
func (p *Player) Start(ctx context.Context, track session.Track) (session.Handle, error) {
	p.Stop()

	if track.StreamURL == "" {
		return 0, fmt.Errorf("track %q has no stream url", track.Title)
	}

	playCtx, cancel := context.WithCancel(ctx)
	stream, err := p.source.Open(playCtx, track.StreamURL)
	if err != nil {
		cancel()
		return 0, err
	}

	p.mu.Lock()
	p.next++
	pb := &playback{handle: p.next, cancel: cancel, done: make(chan struct{})}
	p.current = pb
	p.mu.Unlock()

	p.logger.Info("Starting playback",
		logging.String("title", track.Title),
		logging.Int64("handle", int64(pb.handle)),
	)
	go p.stream(playCtx, pb, stream, track.Title)
	return pb.handle, nil
}

func (p *Player) stream(ctx context.Context, pb *playback, stream io.ReadCloser, title string) {
	defer close(pb.done)
	defer pb.cancel()
	defer stream.Close()

	p.sink.Speaking(true)
	defer p.sink.Speaking(false)
	p.notify(session.PlayerEvent{Kind: session.PlayerPlaying, Handle: pb.handle})

	err := p.pump(ctx, pb, stream)
	switch {
	case err == nil || ctx.Err() != nil:
		p.logger.Debug("Playback finished", logging.String("title", title), logging.Int64("handle", int64(pb.handle)))
		p.notify(session.PlayerEvent{Kind: session.PlayerIdle, Handle: pb.handle})
	default:
		p.logger.Error("Playback failed", logging.String("title", title), logging.Error(err))
		p.notify(session.PlayerEvent{Kind: session.PlayerError, Handle: pb.handle, Err: err})
	}
}

// pump reads PCM frames, encodes them and sends them until the stream ends
func (p *Player) pump(ctx context.Context, pb *playback, stream io.Reader) error {
	pcm := make([]byte, frameBytes)
	samples := make([]int16, frameSize*channels)
	frames := 0

	for {
		n, err := io.ReadFull(stream, pcm)
		if errors.Is(err, io.EOF) {
			return nil
		}
		last := errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !last {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("error reading PCM data: %w", err)
		}
		if last {
			clear(pcm[n:])
		}

		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		}
		packet, err := p.encoder.Encode(samples, frameSize, maxPacket)
		if err != nil {
			return fmt.Errorf("opus encoding error: %w", err)
		}
		if !pb.wait(ctx) {
			return nil
		}
		if err := p.sink.Send(ctx, packet); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		frames++
		if frames%500 == 0 {
			p.logger.Debug("Streamed frames", logging.Int("frames", frames))
		}
		if last {
			return nil
		}
	}
}

// Pause suspends frame delivery
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ErrNothingPlaying
	}
	p.current.pause()
	return nil
}

// Resume continues a paused playback
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ErrNothingPlaying
	}
	p.current.unpause()
	return nil
}

// Stop cancels the current playback and waits briefly for its goroutine to
// exit. The cancelled playback still reports Idle for its own handle.
func (p *Player) Stop() error {
	p.mu.Lock()
	pb := p.current
	p.current = nil
	p.mu.Unlock()

	if pb == nil {
		return nil
	}
	pb.cancel()
	select {
	case <-pb.done:
	case <-time.After(stopWait):
		p.logger.Warn("Playback goroutine did not exit in time", logging.Int64("handle", int64(pb.handle)))
	}
	return nil
}
