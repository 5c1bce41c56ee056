package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestDoSucceedsAfterRecordLands(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sleeps := &recordedSleeps{}
	calls := 0

	outcome, err := Policy{MaxAttempts: 5, Delay: 2 * time.Second, Sleep: sleeps.sleep, Logger: logger}.
		Do(context.Background(), "annotate", func(context.Context) error {
			calls++
			if calls < 3 {
				return NotReady(errors.New("no document for user"))
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, Succeeded, outcome)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeps.delays)
}

func TestDoExhaustionIsNotAnError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sleeps := &recordedSleeps{}
	calls := 0

	outcome, err := Policy{MaxAttempts: 4, Delay: time.Second, Sleep: sleeps.sleep, Logger: logger}.
		Do(context.Background(), "annotate", func(context.Context) error {
			calls++
			return ErrNotReady
		})

	require.NoError(t, err)
	assert.Equal(t, Exhausted, outcome)
	assert.Equal(t, 4, calls)
	assert.Len(t, sleeps.delays, 3, "no sleep after the final attempt")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestDoDoesNotRetryRealFailures(t *testing.T) {
	sleeps := &recordedSleeps{}
	boom := errors.New("write concern failed")
	calls := 0

	_, err := Policy{MaxAttempts: 5, Delay: time.Second, Sleep: sleeps.sleep}.
		Do(context.Background(), "annotate", func(context.Context) error {
			calls++
			return boom
		})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeps.delays)
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Policy{MaxAttempts: 3, Delay: time.Hour}.
		Do(ctx, "annotate", func(context.Context) error { return ErrNotReady })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRetryDefaults(t *testing.T) {
	outcome, err := WithRetry(context.Background(), func(context.Context) error { return nil }, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Succeeded, outcome)
}
