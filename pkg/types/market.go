package types

import "time"

// KLine K线数据结构
type KLine struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`  // 15m、1H ...
	Timestamp int64   `json:"timestamp"` // 开盘时间，毫秒
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Confirmed bool    `json:"confirmed"` // 是否已收盘
}

// OpenTime 开盘时间
func (k *KLine) OpenTime() time.Time {
	return time.UnixMilli(k.Timestamp)
}

// ClosePrices 提取收盘价序列
func ClosePrices(klines []*KLine) []float64 {
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	return closes
}
