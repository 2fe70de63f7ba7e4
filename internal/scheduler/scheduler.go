package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"macd-sentry/internal/analyzer"
	"macd-sentry/pkg/config"
	"macd-sentry/pkg/timeframe"
	"macd-sentry/pkg/types"
)

// 对齐模式在K线边界后多等一会，等交易所落盘收盘K线
const alignDelay = 2 * time.Second

// Runner 执行一次分析
type Runner interface {
	RunOnce(ctx context.Context) (*analyzer.Result, error)
}

// Trigger 收盘K线通知，stream模式使用
type Trigger interface {
	Closed() <-chan *types.KLine
}

// Scheduler 调度器，顺序执行分析任务
type Scheduler struct {
	runner    Runner
	trigger   Trigger
	mode      string
	timeframe string
	fallback  time.Duration
	now       func() time.Time
	after     func(time.Duration) <-chan time.Time
}

func NewScheduler(runner Runner, driver types.DriverConfig, tf string) *Scheduler {
	mode := driver.Mode
	if mode == "" {
		mode = config.ModeSleep
	}
	return &Scheduler{
		runner:    runner,
		mode:      mode,
		timeframe: tf,
		fallback:  driver.FallbackInterval,
		now:       time.Now,
		after:     time.After,
	}
}

// WithTrigger 设置收盘K线触发源
func (s *Scheduler) WithTrigger(t Trigger) *Scheduler {
	s.trigger = t
	return s
}

// Start 立即执行一次，之后按模式等待并循环，ctx取消后返回
func (s *Scheduler) Start(ctx context.Context) error {
	if s.mode == config.ModeStream && s.trigger == nil {
		return fmt.Errorf("stream模式需要WebSocket触发源")
	}

	zap.L().Info("🚀 调度器启动",
		zap.String("mode", s.mode),
		zap.String("timeframe", s.timeframe))

	for {
		s.runAnalysis(ctx)

		if !s.wait(ctx) {
			zap.L().Info("📴 调度器已停止")
			return nil
		}
	}
}

func (s *Scheduler) runAnalysis(ctx context.Context) {
	zap.L().Debug("--- 分析任务开始 ---", zap.Time("at", s.now()))

	if _, err := s.runner.RunOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		zap.L().Error("❌ 分析任务失败", zap.Error(err))
	}
}

// wait 等待下一次执行，ctx取消返回false
func (s *Scheduler) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	if s.mode == config.ModeStream {
		return s.waitForClosedKline(ctx)
	}

	d := s.nextWait()
	zap.L().Info("⏰ 等待下一轮分析",
		zap.Time("next", s.now().Add(d)),
		zap.Duration("wait", d))

	select {
	case <-ctx.Done():
		return false
	case <-s.after(d):
		return true
	}
}

// nextWait sleep模式等待一个周期，align模式等到下一个K线边界
func (s *Scheduler) nextWait() time.Duration {
	period, err := timeframe.ToDuration(s.timeframe)
	if err != nil {
		zap.L().Warn("⚠️ 无法解析K线周期，使用备用间隔",
			zap.String("timeframe", s.timeframe),
			zap.Duration("fallback", s.fallback))
		return s.fallback
	}

	if s.mode == config.ModeAlign {
		now := s.now()
		next, err := timeframe.NextBoundary(now, s.timeframe)
		if err != nil {
			return s.fallback
		}
		return next.Add(alignDelay).Sub(now)
	}
	return period
}

func (s *Scheduler) waitForClosedKline(ctx context.Context) bool {
	timeout := s.fallback
	if period, err := timeframe.ToDuration(s.timeframe); err == nil {
		timeout += period
	}

	select {
	case <-ctx.Done():
		return false
	case kline := <-s.trigger.Closed():
		zap.L().Info("📨 收到收盘K线",
			zap.String("symbol", kline.Symbol),
			zap.Int64("timestamp", kline.Timestamp),
			zap.Float64("close", kline.Close))
		return true
	case <-s.after(timeout):
		zap.L().Warn("⚠️ 等待收盘K线超时，主动轮询", zap.Duration("timeout", timeout))
		return true
	}
}
