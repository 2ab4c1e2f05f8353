package cycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-bsr-leaderboard/retry"
)

func TestNextRunAfter(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2025, 3, 10, 5, 30, 0, 0, time.UTC),
			hour: 6,
			want: time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "already passed",
			now:  time.Date(2025, 3, 10, 5, 30, 0, 0, time.UTC),
			hour: 0,
			want: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly on the hour",
			now:  time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
			hour: 0,
			want: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "non-utc input",
			now:  time.Date(2025, 3, 10, 22, 0, 0, 0, time.FixedZone("EST", -5*3600)),
			hour: 0,
			want: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextRunAfter(tt.now, tt.hour)), "got %s", NextRunAfter(tt.now, tt.hour))
		})
	}
}

func TestSchedulerStartStopStatus(t *testing.T) {
	s := NewScheduler(NewRunner(&fakeSteps{}, fastPolicy(), nil), 0, nil)
	fixed := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	assert.False(t, s.Status().Running)

	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), ErrSchedulerRunning)

	status := s.Status()
	assert.True(t, status.Running)
	assert.True(t, status.NextRun.Equal(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)))

	s.Stop()
	assert.False(t, s.Status().Running)
	s.Stop()

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestSchedulerFiresAndSurvivesFailures(t *testing.T) {
	steps := &fakeSteps{
		acquireErrs: []error{errors.New("first run fails")},
		started:     make(chan struct{}, 1),
	}
	runner := NewRunner(steps, retry.Policy{MaxAttempts: 1}, nil)
	s := NewScheduler(runner, 0, nil)
	almostMidnight := time.Date(2025, 3, 10, 23, 59, 59, 990_000_000, time.UTC)
	s.now = func() time.Time { return almostMidnight }

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-steps.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("scheduled cycle %d did not fire", i+1)
		}
	}
	assert.True(t, s.Status().Running)
}

func TestSchedulerRunNow(t *testing.T) {
	s := NewScheduler(NewRunner(&fakeSteps{}, fastPolicy(), nil), 0, nil)

	report, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report.Output)
}

func TestSchedulerReleasesHandleWhenParentEnds(t *testing.T) {
	s := NewScheduler(NewRunner(&fakeSteps{}, fastPolicy(), nil), 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	require.True(t, s.Status().Running)

	cancel()
	require.Eventually(t, func() bool { return !s.Status().Running }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.Status().NextRun.IsZero())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Status().Running)
	s.Stop()
}

func TestStatusJSONOmitsNextRunWhenStopped(t *testing.T) {
	stopped, err := json.Marshal(Status{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"isRunning":false}`, string(stopped))

	running, err := json.Marshal(Status{Running: true, NextRun: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"isRunning":true,"nextRun":"2025-03-11T00:00:00Z"}`, string(running))
}
