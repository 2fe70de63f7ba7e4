package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macd-sentry/internal/analyzer"
	"macd-sentry/pkg/config"
	"macd-sentry/pkg/types"
)

type countingRunner struct {
	mu     sync.Mutex
	calls  int
	stopAt int
	cancel context.CancelFunc
	err    error
}

func (r *countingRunner) RunOnce(context.Context) (*analyzer.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls >= r.stopAt {
		r.cancel()
	}
	return &analyzer.Result{}, r.err
}

type recorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recorder) after(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestScheduler_SleepModeWaitsOnePeriod(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingRunner{stopAt: 3, cancel: cancel}
	rec := &recorder{}

	s := NewScheduler(runner, types.DriverConfig{Mode: config.ModeSleep, FallbackInterval: time.Minute}, "15m")
	s.after = rec.after

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, 3, runner.calls)
	assert.Equal(t, []time.Duration{15 * time.Minute, 15 * time.Minute}, rec.waits)
}

func TestScheduler_UnknownTimeframeUsesFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingRunner{stopAt: 2, cancel: cancel}
	rec := &recorder{}

	s := NewScheduler(runner, types.DriverConfig{FallbackInterval: 42 * time.Second}, "weird")
	s.after = rec.after

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, []time.Duration{42 * time.Second}, rec.waits)
}

func TestScheduler_AlignModeWaitsForBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingRunner{stopAt: 2, cancel: cancel}
	rec := &recorder{}

	s := NewScheduler(runner, types.DriverConfig{Mode: config.ModeAlign}, "1H")
	s.after = rec.after
	s.now = func() time.Time { return time.Date(2024, 5, 1, 8, 20, 0, 0, time.UTC) }

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, []time.Duration{40*time.Minute + alignDelay}, rec.waits)
}

func TestScheduler_AlignModeDailyUsesHongKongClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingRunner{stopAt: 2, cancel: cancel}
	rec := &recorder{}

	s := NewScheduler(runner, types.DriverConfig{Mode: config.ModeAlign, FallbackInterval: time.Minute}, "1D")
	s.after = rec.after
	s.now = func() time.Time { return time.Date(2024, 5, 1, 17, 0, 0, 0, time.UTC) }

	require.NoError(t, s.Start(ctx))
	// 日线在UTC 16:00收盘
	assert.Equal(t, []time.Duration{23*time.Hour + alignDelay}, rec.waits)
}

func TestScheduler_SleepModeUTCBar(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingRunner{stopAt: 2, cancel: cancel}
	rec := &recorder{}

	s := NewScheduler(runner, types.DriverConfig{FallbackInterval: time.Minute}, "1Dutc")
	s.after = rec.after

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, []time.Duration{24 * time.Hour}, rec.waits)
}

func TestScheduler_ErrorsDoNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingRunner{stopAt: 3, cancel: cancel, err: errors.New("okx down")}
	rec := &recorder{}

	s := NewScheduler(runner, types.DriverConfig{}, "1m")
	s.after = rec.after

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, 3, runner.calls)
}

type chanTrigger chan *types.KLine

func (c chanTrigger) Closed() <-chan *types.KLine { return c }

func TestScheduler_StreamModeRunsPerClosedKline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingRunner{stopAt: 3, cancel: cancel}
	trigger := make(chanTrigger, 2)
	trigger <- &types.KLine{Symbol: "BTC-USDT", Timestamp: 1}
	trigger <- &types.KLine{Symbol: "BTC-USDT", Timestamp: 2}

	s := NewScheduler(runner, types.DriverConfig{Mode: config.ModeStream, FallbackInterval: time.Minute}, "1H").
		WithTrigger(trigger)
	s.after = func(time.Duration) <-chan time.Time { return make(chan time.Time) }

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 3, runner.calls)
}

func TestScheduler_StreamModeTimeoutPolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingRunner{stopAt: 2, cancel: cancel}
	rec := &recorder{}

	s := NewScheduler(runner, types.DriverConfig{Mode: config.ModeStream, FallbackInterval: time.Minute}, "1H").
		WithTrigger(make(chanTrigger))
	s.after = rec.after

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, []time.Duration{time.Hour + time.Minute}, rec.waits)
}

func TestScheduler_StreamModeRequiresTrigger(t *testing.T) {
	s := NewScheduler(&countingRunner{}, types.DriverConfig{Mode: config.ModeStream}, "1H")
	assert.Error(t, s.Start(context.Background()))
}
