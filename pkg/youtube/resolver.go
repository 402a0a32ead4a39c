package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	yt "github.com/kkdai/youtube/v2"

	"github.com/latoulicious/tarumae/pkg/logging"
	"github.com/latoulicious/tarumae/pkg/session"
)

var (
	ErrEmptyQuery      = errors.New("empty query")
	ErrNoResults       = errors.New("no search results found")
	ErrNoAudioFormat   = errors.New("no audio formats found for video")
	ErrStreamNotFound  = errors.New("failed to extract audio stream URL")
	ErrResolverTimeout = errors.New("track resolution timed out")
)

// ytdlpStrategies are tried in order until one yields a stream URL
var ytdlpStrategies = [][]string{
	{"-f", "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio"},
	{"-f", "bestaudio", "--extractor-args", "youtube:player_client=android"},
	{"-f", "bestaudio", "--extractor-args", "youtube:player_client=web"},
	{"-f", "worst[ext=m4a]/worst"},
}

// videoClient is the subset of the kkdai client the resolver uses
type videoClient interface {
	GetVideoContext(ctx context.Context, id string) (*yt.Video, error)
	GetStreamURLContext(ctx context.Context, video *yt.Video, format *yt.Format) (string, error)
}

// commandRunner runs an external program and returns its stdout
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Config controls the resolver
type Config struct {
	YtDlpPath string
	Timeout   time.Duration
}

// DefaultConfig returns the resolver defaults
func DefaultConfig() Config {
	return Config{YtDlpPath: "yt-dlp", Timeout: 30 * time.Second}
}

// Resolver turns a URL or search query into a playable track. The kkdai
// client is tried first for YouTube videos; yt-dlp covers searches, other
// sites and videos the client cannot decipher.
type Resolver struct {
	client videoClient
	run    commandRunner
	config Config
	logger logging.Logger
}

// NewResolver creates a resolver backed by the kkdai client and yt-dlp
func NewResolver(config Config, logger logging.Logger) *Resolver {
	if config.YtDlpPath == "" {
		config.YtDlpPath = "yt-dlp"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Resolver{
		client: &yt.Client{HTTPClient: &http.Client{Timeout: 15 * time.Second}},
		run:    execRunner,
		config: config,
		logger: logger.With(logging.String("component", "youtube_resolver")),
	}
}

// Resolve implements session.TrackResolver
func (r *Resolver) Resolve(ctx context.Context, query string) (session.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return session.Track{}, ErrEmptyQuery
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	track, err := r.resolve(ctx, query)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return session.Track{}, fmt.Errorf("%w: %v", ErrResolverTimeout, err)
	}
	return track, err
}

func (r *Resolver) resolve(ctx context.Context, query string) (session.Track, error) {
	pageURL := query
	if !IsURL(query) {
		found, err := r.search(ctx, query)
		if err != nil {
			return session.Track{}, err
		}
		pageURL = found
	}

	if id := ExtractVideoID(pageURL); id != "" {
		track, err := r.fromClient(ctx, id)
		if err == nil {
			track.ID = query
			return track, nil
		}
		r.logger.Warn("Video client failed, falling back to yt-dlp",
			logging.String("video_id", id),
			logging.Error(err),
		)
	}

	track, err := r.fromYtDlp(ctx, pageURL)
	if err != nil {
		return session.Track{}, err
	}
	track.ID = query
	return track, nil
}

func (r *Resolver) fromClient(ctx context.Context, videoID string) (session.Track, error) {
	video, err := r.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return session.Track{}, fmt.Errorf("get video: %w", err)
	}

	formats := video.Formats.Type("audio")
	if len(formats) == 0 {
		formats = video.Formats.WithAudioChannels()
	}
	if len(formats) == 0 {
		return session.Track{}, ErrNoAudioFormat
	}

	streamURL, err := r.client.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return session.Track{}, fmt.Errorf("get stream url: %w", err)
	}

	r.logger.Debug("Resolved through video client",
		logging.String("video_id", video.ID),
		logging.String("title", video.Title),
	)
	return session.Track{
		Title:     video.Title,
		URL:       WatchURL(videoID),
		StreamURL: streamURL,
		Thumbnail: ThumbnailURL(videoID),
		Duration:  video.Duration,
	}, nil
}

func (r *Resolver) fromYtDlp(ctx context.Context, pageURL string) (session.Track, error) {
	title, duration, err := r.metadata(ctx, pageURL)
	if err != nil {
		r.logger.Warn("Failed to get metadata", logging.String("url", pageURL), logging.Error(err))
		title = "Unknown Title"
	}

	for i, strategy := range ytdlpStrategies {
		args := append([]string{"--no-playlist", "--no-warnings", "-g"}, strategy...)
		args = append(args, pageURL)

		out, err := r.run(ctx, r.config.YtDlpPath, args...)
		if err != nil {
			if ctx.Err() != nil {
				return session.Track{}, ctx.Err()
			}
			r.logger.Debug("Extraction strategy failed", logging.Int("strategy", i+1), logging.Error(err))
			continue
		}

		streamURL := firstLine(string(out))
		if streamURL == "" {
			continue
		}

		return session.Track{
			Title:     title,
			URL:       pageURL,
			StreamURL: streamURL,
			Thumbnail: ThumbnailURL(ExtractVideoID(pageURL)),
			Duration:  duration,
		}, nil
	}

	return session.Track{}, ErrStreamNotFound
}

func (r *Resolver) metadata(ctx context.Context, pageURL string) (string, time.Duration, error) {
	out, err := r.run(ctx, r.config.YtDlpPath,
		"--no-playlist", "--no-warnings",
		"--print", "title",
		"--print", "duration",
		pageURL)
	if err != nil {
		return "", 0, err
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	title := strings.TrimSpace(lines[0])
	var duration time.Duration
	if len(lines) >= 2 {
		duration = parseSeconds(lines[1])
	}
	if title == "" {
		title = "Unknown Title"
	}
	return title, duration, nil
}

// search returns the page URL of the first search result
func (r *Resolver) search(ctx context.Context, query string) (string, error) {
	out, err := r.run(ctx, r.config.YtDlpPath,
		"--no-playlist", "--no-warnings",
		"--print", "webpage_url",
		"--max-downloads", "1",
		"ytsearch1:"+query)

	// yt-dlp exits non-zero when --max-downloads is reached, so the output
	// wins over the exit status.
	if found := firstLine(string(out)); found != "" {
		r.logger.Debug("Search result", logging.String("query", query), logging.String("url", found))
		return found, nil
	}
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	return "", ErrNoResults
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
