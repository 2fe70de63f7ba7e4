package analyzer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"macd-sentry/internal/fetcher"
	"macd-sentry/internal/metrics"
	"macd-sentry/internal/notifier"
	"macd-sentry/internal/visualizer"
	"macd-sentry/pkg/types"
)

// Detector 从K线序列检测信号
type Detector interface {
	DetectSignal(klines []*types.KLine) (*types.Signal, *types.MACDOverlay, error)
}

// Deduplicator 推送去重
type Deduplicator interface {
	IsDuplicate(ctx context.Context, signal *types.Signal) bool
	MarkNotified(ctx context.Context, signal *types.Signal) error
}

// Archiver K线归档
type Archiver interface {
	SaveKlines(ctx context.Context, klines []*types.KLine) error
}

// Result 单次分析结果
type Result struct {
	Klines     int
	Signal     *types.Signal
	ImagePath  string
	Notified   bool
	Suppressed bool
}

// AnalysisEngine 分析引擎：获取K线 → 归档 → 检测 → 去重 → 绘图 → 推送
type AnalysisEngine struct {
	market     types.MarketConfig
	provider   fetcher.Provider
	detector   Detector
	notifier   notifier.Interface
	visualizer visualizer.Visualizer
	dedup      Deduplicator
	archiver   Archiver
	metrics    *metrics.Metrics
}

func NewAnalysisEngine(market types.MarketConfig, provider fetcher.Provider, detector Detector, notifyService notifier.Interface) *AnalysisEngine {
	return &AnalysisEngine{
		market:   market,
		provider: provider,
		detector: detector,
		notifier: notifyService,
		metrics:  metrics.New(),
	}
}

// WithVisualizer 启用图表
func (ae *AnalysisEngine) WithVisualizer(v visualizer.Visualizer) *AnalysisEngine {
	ae.visualizer = v
	return ae
}

// WithDeduplicator 启用推送去重
func (ae *AnalysisEngine) WithDeduplicator(d Deduplicator) *AnalysisEngine {
	ae.dedup = d
	return ae
}

// WithArchiver 启用K线归档
func (ae *AnalysisEngine) WithArchiver(a Archiver) *AnalysisEngine {
	ae.archiver = a
	return ae
}

// WithMetrics 使用外部指标
func (ae *AnalysisEngine) WithMetrics(m *metrics.Metrics) *AnalysisEngine {
	ae.metrics = m
	return ae
}

// RunOnce 执行一次完整的分析流程
func (ae *AnalysisEngine) RunOnce(ctx context.Context) (*Result, error) {
	started := time.Now()
	defer ae.metrics.ObserveIteration(started)

	klines, err := ae.provider.FetchKlines(ctx, ae.market.Symbol, ae.market.Timeframe, ae.market.Limit)
	if err != nil {
		ae.metrics.FetchErrors.Inc()
		return nil, errors.Wrap(err, "获取K线失败")
	}
	result := &Result{Klines: len(klines)}

	if ae.archiver != nil {
		if err := ae.archiver.SaveKlines(ctx, klines); err != nil {
			zap.L().Warn("⚠️ K线归档失败", zap.Error(err))
		}
	}

	signal, overlay, err := ae.detector.DetectSignal(klines)
	if err != nil {
		return result, errors.Wrap(err, "信号检测失败")
	}
	if signal == nil {
		zap.L().Info("📭 本轮无MACD交叉信号",
			zap.String("symbol", ae.market.Symbol),
			zap.String("timeframe", ae.market.Timeframe),
			zap.Int("klines", len(klines)))
		return result, nil
	}
	result.Signal = signal
	ae.metrics.Signals.WithLabelValues(string(signal.Direction)).Inc()

	if ae.dedup != nil && ae.dedup.IsDuplicate(ctx, signal) {
		ae.metrics.SuppressedSignals.Inc()
		result.Suppressed = true
		zap.L().Info("🔁 信号已推送过，跳过",
			zap.String("symbol", signal.Symbol),
			zap.String("direction", string(signal.Direction)),
			zap.Int64("kline_time", signal.KlineTime))
		return result, nil
	}

	if ae.visualizer != nil {
		path, err := ae.visualizer.Visualize(klines, overlay, signal)
		if err != nil {
			zap.L().Warn("⚠️ 绘制图表失败，仅发送文字", zap.Error(err))
		} else {
			result.ImagePath = path
		}
	}

	notifyErr := ae.notifier.SendSignal(ctx, signal, result.ImagePath)

	// 部分渠道失败时也记录，避免已成功的渠道重复收到
	if ae.dedup != nil {
		if err := ae.dedup.MarkNotified(ctx, signal); err != nil {
			zap.L().Warn("⚠️ 记录去重标记失败", zap.Error(err))
		}
	}

	if notifyErr != nil {
		ae.metrics.NotificationsFail.Inc()
		return result, errors.Wrapf(notifyErr, "推送信号失败(%s)", ae.notifier.Name())
	}

	ae.metrics.NotificationsSent.Inc()
	result.Notified = true
	zap.L().Info("✅ 信号推送完成",
		zap.String("symbol", signal.Symbol),
		zap.String("direction", string(signal.Direction)),
		zap.String("notifier", ae.notifier.Name()),
		zap.String("image", result.ImagePath))
	return result, nil
}
