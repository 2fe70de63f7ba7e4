package signals

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"macd-sentry/internal/strategy/indicators"
	"macd-sentry/pkg/types"
)

// Classify 判断最后两个点的MACD交叉方向
//
// 只比较倒数第二和最后一个点，相等不算交叉。少于两个点返回 InsufficientDataError，
// 两条线长度不一致返回 ErrOverlayMismatch。
func Classify(overlay *types.MACDOverlay) (types.Direction, error) {
	n := overlay.Len()
	if n < 2 {
		return types.DirectionNone, &InsufficientDataError{Have: n, Need: 2}
	}
	if len(overlay.Signal) != n {
		return types.DirectionNone, errors.Wrapf(ErrOverlayMismatch, "macd=%d signal=%d", n, len(overlay.Signal))
	}

	lastMACD, lastSignal := overlay.MACD[n-1], overlay.Signal[n-1]
	prevMACD, prevSignal := overlay.MACD[n-2], overlay.Signal[n-2]

	switch {
	case lastMACD > lastSignal && prevMACD < prevSignal:
		return types.DirectionBuy, nil
	case lastMACD < lastSignal && prevMACD > prevSignal:
		return types.DirectionSell, nil
	default:
		return types.DirectionNone, nil
	}
}

// MACDSignalDetector MACD交叉信号检测器
type MACDSignalDetector struct {
	macdCalc *indicators.MACDCalculator
	config   types.SignalConfig
	symbol   string
	interval string
	now      func() time.Time
}

// NewMACDSignalDetector 创建信号检测器
func NewMACDSignalDetector(config types.SignalConfig, symbol, interval string) *MACDSignalDetector {
	return &MACDSignalDetector{
		macdCalc: indicators.NewMACDCalculator(config.FastPeriod, config.SlowPeriod, config.SignalPeriod),
		config:   config,
		symbol:   symbol,
		interval: interval,
		now:      time.Now,
	}
}

// DetectSignal 计算MACD并检测交叉信号
//
// 无交叉时返回的信号为nil。无论是否有信号都返回本次计算的指标序列，供绘图使用。
func (d *MACDSignalDetector) DetectSignal(klines []*types.KLine) (*types.Signal, *types.MACDOverlay, error) {
	overlay := d.macdCalc.Calculate(klines)

	direction, err := Classify(overlay)
	if err != nil {
		return nil, overlay, err
	}

	if direction == types.DirectionNone {
		zap.L().Debug("未检测到MACD交叉",
			zap.String("symbol", d.symbol),
			zap.Int("klines", len(klines)))
		return nil, overlay, nil
	}

	latest := klines[len(klines)-1]
	levels, err := ComputeLevels(direction, latest.Close, d.config.StopLossPercent, d.config.TakeProfitPercents(), d.config.RoundDecimalPlaces)
	if err != nil {
		return nil, overlay, err
	}

	signal := &types.Signal{
		Time:          d.now(),
		IndicatorName: types.IndicatorMACD,
		Direction:     direction,
		EntryPrice:    decimal.NewFromFloat(latest.Close),
		StopLoss:      levels.StopLoss,
		TakeProfit1:   levels.TakeProfit1,
		TakeProfit2:   levels.TakeProfit2,
		TakeProfit3:   levels.TakeProfit3,
		Symbol:        d.symbol,
		Timeframe:     d.interval,
		KlineTime:     latest.Timestamp,
		PricePlaces:   int32(d.config.RoundDecimalPlaces),
	}

	last := overlay.Len() - 1
	zap.L().Info("🎯 检测到MACD交叉信号",
		zap.String("symbol", d.symbol),
		zap.String("direction", string(direction)),
		zap.Float64("price", latest.Close),
		zap.Float64("macd", overlay.MACD[last]),
		zap.Float64("signal", overlay.Signal[last]))

	return signal, overlay, nil
}
