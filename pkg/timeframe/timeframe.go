package timeframe

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// utcSuffix OKX的UTC对齐周期后缀，如 6Hutc、1Dutc
const utcSuffix = "utc"

// hongKong OKX 6H及以上周期按香港时间(UTC+8)开盘
var hongKong = time.FixedZone("HKT", 8*60*60)

// ToDuration 将K线周期字符串转换为时长
//
// 支持 s/m/h/d/w/M 单位，OKX 的 H/D/W 大写写法和 utc 后缀同样识别。
// M 表示月，按30天计算。
func ToDuration(tf string) (time.Duration, error) {
	multiplier, unit, err := parse(tf)
	if err != nil {
		return 0, err
	}
	return time.Duration(multiplier) * unit, nil
}

// ToSeconds 将K线周期转换为秒数
func ToSeconds(tf string) (int64, error) {
	d, err := ToDuration(tf)
	if err != nil {
		return 0, err
	}
	return int64(d / time.Second), nil
}

// Location K线开盘对齐的时区
//
// 6H及以上周期按香港时间对齐，带utc后缀的周期和更短的周期按UTC对齐。
func Location(tf string) (*time.Location, error) {
	d, err := ToDuration(tf)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(tf, utcSuffix) || d < 6*time.Hour {
		return time.UTC, nil
	}
	return hongKong, nil
}

// NextBoundary 计算now之后的下一个K线收盘时间点
func NextBoundary(now time.Time, tf string) (time.Time, error) {
	multiplier, unit, err := parse(tf)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := Location(tf)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	var next time.Time
	switch unit {
	case month:
		// 按自然月对齐，从每年1月起算
		start := (int(local.Month()) - 1) / multiplier * multiplier
		next = time.Date(local.Year(), time.Month(start+multiplier+1), 1, 0, 0, 0, 0, loc)
	case week:
		// 周线从周一开盘
		daysSinceMonday := (int(local.Weekday()) + 6) % 7
		monday := time.Date(local.Year(), local.Month(), local.Day()-daysSinceMonday, 0, 0, 0, 0, loc)
		next = monday.AddDate(0, 0, 7*multiplier)
	default:
		period := time.Duration(multiplier) * unit
		_, offset := local.Zone()
		shift := time.Duration(offset) * time.Second
		next = now.Add(shift).Truncate(period).Add(period).Add(-shift)
	}
	return next.In(now.Location()), nil
}

const (
	week  = 7 * 24 * time.Hour
	month = 30 * 24 * time.Hour
)

func parse(tf string) (int, time.Duration, error) {
	base := strings.TrimSuffix(tf, utcSuffix)
	if len(base) < 2 {
		return 0, 0, fmt.Errorf("未知的K线周期: %q", tf)
	}

	multiplier, err := strconv.Atoi(base[:len(base)-1])
	if err != nil || multiplier <= 0 {
		return 0, 0, fmt.Errorf("未知的K线周期: %q", tf)
	}

	var unit time.Duration
	switch base[len(base)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h', 'H':
		unit = time.Hour
	case 'd', 'D':
		unit = 24 * time.Hour
	case 'w', 'W':
		unit = week
	case 'M':
		unit = month
	default:
		return 0, 0, fmt.Errorf("未知的K线周期: %q", tf)
	}
	return multiplier, unit, nil
}
