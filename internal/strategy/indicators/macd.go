package indicators

import (
	"macd-sentry/pkg/types"
)

const (
	DefaultFastPeriod   = 12
	DefaultSlowPeriod   = 26
	DefaultSignalPeriod = 9
)

// MACDCalculator MACD指标计算器
type MACDCalculator struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACDCalculator 创建MACD计算器，非正数参数使用默认值 12/26/9
func NewMACDCalculator(fastPeriod, slowPeriod, signalPeriod int) *MACDCalculator {
	if fastPeriod <= 0 {
		fastPeriod = DefaultFastPeriod
	}
	if slowPeriod <= 0 {
		slowPeriod = DefaultSlowPeriod
	}
	if signalPeriod <= 0 {
		signalPeriod = DefaultSignalPeriod
	}

	return &MACDCalculator{
		fastPeriod:   fastPeriod,
		slowPeriod:   slowPeriod,
		signalPeriod: signalPeriod,
	}
}

// Calculate 计算K线收盘价的MACD序列
//
// 每次调用都从头计算，不保留任何状态，输入不会被修改。
func (mc *MACDCalculator) Calculate(klines []*types.KLine) *types.MACDOverlay {
	return mc.CalculateCloses(types.ClosePrices(klines))
}

// CalculateCloses 计算价格序列的MACD序列
func (mc *MACDCalculator) CalculateCloses(closes []float64) *types.MACDOverlay {
	fast := EMA(closes, mc.fastPeriod)
	slow := EMA(closes, mc.slowPeriod)

	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = fast[i] - slow[i]
	}

	return &types.MACDOverlay{
		FastEMA: fast,
		SlowEMA: slow,
		MACD:    macd,
		Signal:  EMA(macd, mc.signalPeriod),
	}
}

// EMA 指数移动平均，alpha = 2/(span+1)
//
// 以第一个值为种子，不做预热截断也不按样本数重新加权（pandas adjust=False）。
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		// 等价于 alpha*x + (1-alpha)*prev，常数输入时结果严格不变
		out[i] = out[i-1] + alpha*(values[i]-out[i-1])
	}

	return out
}
