package fetcher

import (
	"math"
	"strconv"

	"github.com/pkg/errors"

	"macd-sentry/pkg/types"
)

// ErrMalformedSeries K线序列格式错误
var ErrMalformedSeries = errors.New("K线序列格式错误")

// OKX K线数组下标: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
const (
	colTimestamp = 0
	colOpen      = 1
	colHigh      = 2
	colLow       = 3
	colClose     = 4
	colVolume    = 5
	colConfirm   = 8
)

func parseCandles(symbol, interval string, rows [][]string) ([]*types.KLine, error) {
	klines := make([]*types.KLine, 0, len(rows))
	for i, row := range rows {
		kline, err := ParseCandle(symbol, interval, row)
		if err != nil {
			return nil, errors.Wrapf(err, "第%d根K线", i)
		}
		klines = append(klines, kline)
	}
	return klines, nil
}

// ParseCandle 解析单根OKX K线数组，REST和WebSocket格式相同
func ParseCandle(symbol, interval string, row []string) (*types.KLine, error) {
	if len(row) <= colClose {
		return nil, errors.Wrapf(ErrMalformedSeries, "字段数量不足: %d", len(row))
	}

	timestamp, err := strconv.ParseInt(row[colTimestamp], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedSeries, "解析时间戳失败: %v", err)
	}

	prices := make([]float64, 4)
	for i, col := range []int{colOpen, colHigh, colLow, colClose} {
		v, err := strconv.ParseFloat(row[col], 64)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedSeries, "解析价格失败: %q", row[col])
		}
		prices[i] = v
	}

	var volume float64
	if len(row) > colVolume && row[colVolume] != "" {
		if volume, err = strconv.ParseFloat(row[colVolume], 64); err != nil {
			return nil, errors.Wrapf(ErrMalformedSeries, "解析成交量失败: %q", row[colVolume])
		}
	}

	// 旧接口没有 confirm 字段，视为已收盘
	confirmed := true
	if len(row) > colConfirm {
		confirmed = row[colConfirm] == "1"
	}

	return &types.KLine{
		Symbol:    symbol,
		Interval:  interval,
		Timestamp: timestamp,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    volume,
		Confirmed: confirmed,
	}, nil
}

// ValidateSeries 校验K线序列：时间严格递增，价格为有限数值
func ValidateSeries(klines []*types.KLine) error {
	for i, k := range klines {
		if k == nil {
			return errors.Wrapf(ErrMalformedSeries, "第%d根K线为空", i)
		}
		for _, v := range []float64{k.Open, k.High, k.Low, k.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(ErrMalformedSeries, "第%d根K线价格非法: %v", i, v)
			}
		}
		if i > 0 && k.Timestamp <= klines[i-1].Timestamp {
			return errors.Wrapf(ErrMalformedSeries, "第%d根K线时间戳未递增: %d <= %d", i, k.Timestamp, klines[i-1].Timestamp)
		}
	}
	return nil
}
