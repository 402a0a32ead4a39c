package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/tarumae/pkg/logging"
)

type recordingPrune struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *recordingPrune) prune(ctx context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 3, p.err
}

func TestNewRetentionManager(t *testing.T) {
	p := &recordingPrune{}

	tests := []struct {
		name        string
		prune       PruneFunc
		retention   time.Duration
		schedule    string
		expectError bool
	}{
		{name: "default schedule", prune: p.prune, retention: time.Hour},
		{name: "custom schedule", prune: p.prune, retention: time.Hour, schedule: "*/30 * * * * *"},
		{name: "missing prune", prune: nil, retention: time.Hour, expectError: true},
		{name: "zero retention", prune: p.prune, retention: 0, expectError: true},
		{name: "five field spec", prune: p.prune, retention: time.Hour, schedule: "0 */6 * * *", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm, err := NewRetentionManager(tt.prune, tt.retention, tt.schedule, logging.NullLogger())
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, rm)
				return
			}
			require.NoError(t, err)
			if tt.schedule == "" {
				assert.Equal(t, DefaultSchedule, rm.GetSchedule())
			} else {
				assert.Equal(t, tt.schedule, rm.GetSchedule())
			}
		})
	}
}

func TestRetentionManager_RunNowUsesCutoff(t *testing.T) {
	p := &recordingPrune{}
	rm, err := NewRetentionManager(p.prune, 24*time.Hour, "", nil)
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rm.now = func() time.Time { return now }

	require.NoError(t, rm.RunNow())
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, now.Add(-24*time.Hour), p.cutoffs[0])
	assert.Equal(t, now, rm.LastRun())
	assert.False(t, rm.IsRunning())
}

func TestRetentionManager_RunNowReportsError(t *testing.T) {
	boom := errors.New("disk full")
	p := &recordingPrune{err: boom}
	rm, err := NewRetentionManager(p.prune, time.Hour, "", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, rm.RunNow(), boom)
}

func TestRetentionManager_StartStop(t *testing.T) {
	p := &recordingPrune{}
	rm, err := NewRetentionManager(p.prune, time.Hour, "", nil)
	require.NoError(t, err)

	rm.Start()
	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.cutoffs) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return !rm.GetNextRun().IsZero()
	}, time.Second, 10*time.Millisecond)
	rm.Stop()
}
