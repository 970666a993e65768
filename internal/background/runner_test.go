package background

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls atomic.Int32
	count int
	err   error
}

func (f *fakeSweeper) DeactivateExpiredTrials(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return f.count, f.err
}

type fakePurger struct {
	calls atomic.Int32
	count int64
	err   error
}

func (f *fakePurger) PurgeExpiredInvitations(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	return f.count, f.err
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestRunner_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("runs every job", func(t *testing.T) {
		sweeper := &fakeSweeper{count: 2}
		purger := &fakePurger{count: 5}
		runner := NewRunner(sweeper, time.Minute, testLogger())
		runner.SetInvitationPurger(purger)

		deactivated, purged, err := runner.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, deactivated)
		assert.Equal(t, int64(5), purged)
	})

	t.Run("purger is optional", func(t *testing.T) {
		runner := NewRunner(&fakeSweeper{count: 1}, time.Minute, testLogger())

		deactivated, purged, err := runner.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, deactivated)
		assert.Zero(t, purged)
	})

	t.Run("sweep errors stop the run", func(t *testing.T) {
		purger := &fakePurger{}
		runner := NewRunner(&fakeSweeper{err: errors.New("db down")}, time.Minute, testLogger())
		runner.SetInvitationPurger(purger)

		_, _, err := runner.RunOnce(ctx)
		assert.Error(t, err)
		assert.Zero(t, purger.calls.Load())
	})
}

func TestRunner_StartStop(t *testing.T) {
	sweeper := &fakeSweeper{count: 1}
	runner := NewRunner(sweeper, 10*time.Millisecond, testLogger())
	runner.SetInvitationPurger(&fakePurger{})

	runner.Start()
	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	runner.Stop()
	calls := sweeper.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, sweeper.calls.Load())

	// Stop is idempotent
	runner.Stop()
}

func TestNewRunner_DefaultInterval(t *testing.T) {
	runner := NewRunner(&fakeSweeper{}, 0, testLogger())
	assert.Equal(t, time.Hour, runner.sweepInterval)
	assert.Equal(t, 24*time.Hour, runner.purgeInterval)
}
