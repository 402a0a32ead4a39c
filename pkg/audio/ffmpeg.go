package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/latoulicious/tarumae/pkg/logging"
)

// FFmpegSource decodes a stream URL to raw PCM with an ffmpeg subprocess
type FFmpegSource struct {
	Path   string
	Logger logging.Logger
}

func ffmpegArgs(streamURL string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", streamURL,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "warning",
		"pipe:1",
	}
}

// Open starts ffmpeg. The process is killed when ctx is cancelled or the
// returned stream is closed.
func (s *FFmpegSource) Open(ctx context.Context, streamURL string) (io.ReadCloser, error) {
	logger := s.Logger
	if logger == nil {
		logger = logging.NullLogger()
	}

	cmd := exec.CommandContext(ctx, s.Path, ffmpegArgs(streamURL)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Drain stderr so ffmpeg never blocks on a full pipe.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug("ffmpeg", logging.String("line", scanner.Text()))
		}
	}()

	return &ffmpegStream{ctx: ctx, cmd: cmd, stdout: stdout}, nil
}

type ffmpegStream struct {
	ctx    context.Context
	cmd    *exec.Cmd
	stdout io.ReadCloser

	once    sync.Once
	waitErr error
}

func (s *ffmpegStream) wait() error {
	s.once.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Read reports a failed ffmpeg exit in place of a clean EOF
func (s *ffmpegStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		if werr := s.wait(); werr != nil && s.ctx.Err() == nil {
			return n, fmt.Errorf("ffmpeg exited: %w", werr)
		}
	}
	return n, err
}

func (s *ffmpegStream) Close() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.wait()
	return nil
}
