package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction 信号方向
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionNone Direction = "none"
)

// IndicatorMACD 信号来源指标名
const IndicatorMACD = "MACD"

// Levels 止损止盈价位
type Levels struct {
	StopLoss    decimal.Decimal `json:"stop_loss"`
	TakeProfit1 decimal.Decimal `json:"take_profit_1"`
	TakeProfit2 decimal.Decimal `json:"take_profit_2"`
	TakeProfit3 decimal.Decimal `json:"take_profit_3"`
}

// Signal 交易信号，创建后不再修改
type Signal struct {
	Time          time.Time       `json:"time"` // 检测时刻（本地时间）
	IndicatorName string          `json:"indicator_name"`
	Direction     Direction       `json:"direction"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	StopLoss      decimal.Decimal `json:"stop_loss"`
	TakeProfit1   decimal.Decimal `json:"take_profit_1"`
	TakeProfit2   decimal.Decimal `json:"take_profit_2"`
	TakeProfit3   decimal.Decimal `json:"take_profit_3"`
	Symbol        string          `json:"symbol"`
	Timeframe     string          `json:"timeframe"`
	KlineTime     int64           `json:"kline_time"`   // 触发信号的K线开盘时间，毫秒
	PricePlaces   int32           `json:"price_places"` // 止盈止损保留的小数位
}

// FormatLevel 按止盈止损的小数位输出价位，保留末尾的0
func (s *Signal) FormatLevel(level decimal.Decimal) string {
	return level.StringFixed(s.PricePlaces)
}
