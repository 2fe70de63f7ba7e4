package signals

import (
	"github.com/shopspring/decimal"

	"macd-sentry/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// ComputeLevels 根据方向和入场价计算止损和三个止盈价位
//
// 百分比以整数形式传入（2 表示 2%），结果保留 places 位小数。
func ComputeLevels(direction types.Direction, entryPrice float64, stopLossPercent float64, takeProfitPercents [3]float64, places int) (*types.Levels, error) {
	var stopLossUp bool
	switch direction {
	case types.DirectionBuy:
		stopLossUp = false
	case types.DirectionSell:
		stopLossUp = true
	default:
		return nil, &InvalidDirectionError{Direction: direction}
	}

	entry := decimal.NewFromFloat(entryPrice)
	round := func(percent float64, increase bool) decimal.Decimal {
		return AdjustedPrice(entry, percentToFraction(percent), increase).Round(int32(places))
	}

	return &types.Levels{
		StopLoss:    round(stopLossPercent, stopLossUp),
		TakeProfit1: round(takeProfitPercents[0], !stopLossUp),
		TakeProfit2: round(takeProfitPercents[1], !stopLossUp),
		TakeProfit3: round(takeProfitPercents[2], !stopLossUp),
	}, nil
}

// AdjustedPrice 按比例上调或下调价格
func AdjustedPrice(price, fraction decimal.Decimal, increase bool) decimal.Decimal {
	if increase {
		return price.Mul(decimal.NewFromInt(1).Add(fraction))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(fraction))
}

func percentToFraction(percent float64) decimal.Decimal {
	return decimal.NewFromFloat(percent).Div(hundred)
}
