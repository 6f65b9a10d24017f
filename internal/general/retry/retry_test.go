package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	p := Default().WithSleep(func(time.Duration) {})

	calls := 0
	err := p.Do(context.Background(), nil, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	slept := 0
	p := Policy{MaxAttempts: 3, Delay: 10 * time.Millisecond}.
		WithSleep(func(time.Duration) { slept++ })

	calls := 0
	err := p.Do(context.Background(), nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("broken pipe")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, slept)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 2}.WithSleep(func(time.Duration) {})

	boom := errors.New("boom")
	calls := 0
	err := p.Do(context.Background(), nil, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	p := Policy{MaxAttempts: 5}.WithSleep(func(time.Duration) {})

	rejected := errors.New("domain rejection")
	calls := 0
	err := p.Do(context.Background(), func(err error) bool {
		return !errors.Is(err, rejected)
	}, func(context.Context) error {
		calls++
		return rejected
	})
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, calls)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	p := Policy{MaxAttempts: 5}.WithSleep(func(time.Duration) {})

	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("boom")
	calls := 0
	err := p.Do(ctx, nil, func(context.Context) error {
		calls++
		cancel()
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDoClampsZeroAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 0}.WithSleep(func(time.Duration) {})

	calls := 0
	err := p.Do(context.Background(), nil, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
