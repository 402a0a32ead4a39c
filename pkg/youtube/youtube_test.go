package youtube

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	yt "github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/tarumae/pkg/logging"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "watch url", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "watch url with extra params", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", expected: "dQw4w9WgXcQ"},
		{name: "short url", input: "https://youtu.be/dQw4w9WgXcQ?si=abc", expected: "dQw4w9WgXcQ"},
		{name: "embed url", input: "https://www.youtube.com/embed/dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "shorts url", input: "https://youtube.com/shorts/dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "music url", input: "https://music.youtube.com/watch?v=dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "no scheme", input: "www.youtube.com/watch?v=dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "playlist only", input: "https://www.youtube.com/playlist?list=PL123", expected: ""},
		{name: "other site", input: "https://soundcloud.com/artist/track", expected: ""},
		{name: "bad id length", input: "https://youtu.be/short", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractVideoID(tt.input))
		})
	}
}

func TestURLHelpers(t *testing.T) {
	assert.True(t, IsURL("https://example.com/a.mp3"))
	assert.True(t, IsURL("youtu.be/dQw4w9WgXcQ"))
	assert.False(t, IsURL("never gonna give you up"))

	assert.Equal(t, "", ThumbnailURL(""))
	assert.Equal(t, "https://img.youtube.com/vi/dQw4w9WgXcQ/hqdefault.jpg", ThumbnailURL("dQw4w9WgXcQ"))
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", WatchURL("dQw4w9WgXcQ"))

	assert.Equal(t, 212*time.Second, parseSeconds("212"))
	assert.Equal(t, 1500*time.Millisecond, parseSeconds("1.5"))
	assert.Equal(t, time.Duration(0), parseSeconds("NA"))
	assert.Equal(t, time.Duration(0), parseSeconds("None"))
}

type fakeClient struct {
	video     *yt.Video
	videoErr  error
	streamURL string
	streamErr error
}

func (c *fakeClient) GetVideoContext(ctx context.Context, id string) (*yt.Video, error) {
	if c.videoErr != nil {
		return nil, c.videoErr
	}
	return c.video, nil
}

func (c *fakeClient) GetStreamURLContext(ctx context.Context, video *yt.Video, format *yt.Format) (string, error) {
	if c.streamErr != nil {
		return "", c.streamErr
	}
	return c.streamURL, nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	reply func(args []string) ([]byte, error)
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	return f.reply(args)
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func newTestResolver(client videoClient, runner *fakeRunner) *Resolver {
	r := NewResolver(DefaultConfig(), logging.NullLogger())
	r.client = client
	r.run = runner.run
	return r
}

func audioVideo() *yt.Video {
	return &yt.Video{
		ID:       "dQw4w9WgXcQ",
		Title:    "Never Gonna Give You Up",
		Duration: 212 * time.Second,
		Formats: yt.FormatList{
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AudioChannels: 2},
		},
	}
}

func TestResolve_URLThroughClient(t *testing.T) {
	runner := &fakeRunner{reply: func(args []string) ([]byte, error) {
		t.Fatalf("yt-dlp should not run, got %v", args)
		return nil, nil
	}}
	r := newTestResolver(&fakeClient{video: audioVideo(), streamURL: "https://rr.googlevideo.com/a"}, runner)

	query := "https://youtu.be/dQw4w9WgXcQ"
	track, err := r.Resolve(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, query, track.ID)
	assert.Equal(t, "Never Gonna Give You Up", track.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", track.URL)
	assert.Equal(t, "https://rr.googlevideo.com/a", track.StreamURL)
	assert.Equal(t, 212*time.Second, track.Duration)
	assert.Contains(t, track.Thumbnail, "dQw4w9WgXcQ")
}

func TestResolve_SearchThenClient(t *testing.T) {
	runner := &fakeRunner{reply: func(args []string) ([]byte, error) {
		if contains(args, "webpage_url") {
			// Reaching --max-downloads makes yt-dlp exit non-zero.
			return []byte("https://www.youtube.com/watch?v=dQw4w9WgXcQ\n"), errors.New("exit status 101")
		}
		return nil, errors.New("unexpected call")
	}}
	r := newTestResolver(&fakeClient{video: audioVideo(), streamURL: "https://rr.googlevideo.com/a"}, runner)

	track, err := r.Resolve(context.Background(), "rick astley")
	require.NoError(t, err)
	assert.Equal(t, "rick astley", track.ID)
	assert.Equal(t, "Never Gonna Give You Up", track.Title)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "ytsearch1:rick astley", runner.calls[0][len(runner.calls[0])-1])
}

func TestResolve_FallsBackToYtDlp(t *testing.T) {
	attempts := 0
	runner := &fakeRunner{reply: func(args []string) ([]byte, error) {
		if contains(args, "title") {
			return []byte("Fallback Title\n95\n"), nil
		}
		if contains(args, "-g") {
			attempts++
			if attempts == 1 {
				return nil, errors.New("format unavailable")
			}
			return []byte("https://cdn.example/stream\nhttps://cdn.example/video\n"), nil
		}
		return nil, errors.New("unexpected call")
	}}
	r := newTestResolver(&fakeClient{videoErr: errors.New("cipher failed")}, runner)

	track, err := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Fallback Title", track.Title)
	assert.Equal(t, 95*time.Second, track.Duration)
	assert.Equal(t, "https://cdn.example/stream", track.StreamURL)
	assert.Equal(t, 2, attempts)
}

func TestResolve_NonYouTubeURL(t *testing.T) {
	runner := &fakeRunner{reply: func(args []string) ([]byte, error) {
		if contains(args, "title") {
			return []byte("Soundcloud Track\nNA\n"), nil
		}
		return []byte("https://cdn.example/sc.mp3\n"), nil
	}}
	client := &fakeClient{videoErr: errors.New("client must not be used")}
	r := newTestResolver(client, runner)

	track, err := r.Resolve(context.Background(), "https://soundcloud.com/artist/track")
	require.NoError(t, err)
	assert.Equal(t, "Soundcloud Track", track.Title)
	assert.Equal(t, "", track.Thumbnail)
	assert.Equal(t, time.Duration(0), track.Duration)
}

func TestResolve_Errors(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		r := newTestResolver(&fakeClient{}, &fakeRunner{})
		_, err := r.Resolve(context.Background(), "   ")
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("no search results", func(t *testing.T) {
		runner := &fakeRunner{reply: func(args []string) ([]byte, error) { return nil, nil }}
		r := newTestResolver(&fakeClient{}, runner)
		_, err := r.Resolve(context.Background(), "zzzz nothing")
		assert.ErrorIs(t, err, ErrNoResults)
	})

	t.Run("every strategy fails", func(t *testing.T) {
		runner := &fakeRunner{reply: func(args []string) ([]byte, error) {
			return nil, errors.New("blocked")
		}}
		r := newTestResolver(&fakeClient{videoErr: errors.New("blocked")}, runner)
		_, err := r.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
		assert.ErrorIs(t, err, ErrStreamNotFound)

		strategies := 0
		for _, call := range runner.calls {
			if contains(call, "-g") {
				strategies++
			}
		}
		assert.Equal(t, len(ytdlpStrategies), strategies)
	})

	t.Run("video without audio falls back", func(t *testing.T) {
		video := audioVideo()
		video.Formats = yt.FormatList{{ItagNo: 137, MimeType: `video/mp4; codecs="avc1"`}}
		runner := &fakeRunner{reply: func(args []string) ([]byte, error) {
			if contains(args, "title") {
				return []byte("From yt-dlp\n10\n"), nil
			}
			return []byte("https://cdn.example/a\n"), nil
		}}
		r := newTestResolver(&fakeClient{video: video}, runner)
		track, err := r.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(track.StreamURL, "https://cdn.example"))
	})
}
