package types

// MACDOverlay MACD指标序列，与K线按下标一一对应
type MACDOverlay struct {
	FastEMA []float64 `json:"fast_ema"`
	SlowEMA []float64 `json:"slow_ema"`
	MACD    []float64 `json:"macd"`   // DIF
	Signal  []float64 `json:"signal"` // DEA
}

// Len 序列长度
func (o *MACDOverlay) Len() int {
	if o == nil {
		return 0
	}
	return len(o.MACD)
}

// Histogram 第i根K线的柱状值 macd - signal
func (o *MACDOverlay) Histogram(i int) float64 {
	return o.MACD[i] - o.Signal[i]
}
