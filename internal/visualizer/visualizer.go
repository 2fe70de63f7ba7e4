package visualizer

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"go.uber.org/zap"

	"macd-sentry/pkg/timeframe"
	"macd-sentry/pkg/types"
)

// FileTimeLayout 图片文件名中的时间格式
const FileTimeLayout = "2006-01-02_15-04-05"

// Visualizer 根据K线和指标生成图片
type Visualizer interface {
	Visualize(klines []*types.KLine, overlay *types.MACDOverlay, signal *types.Signal) (string, error)
}

// ChartVisualizer 使用 go-chart 绘制价格和MACD两个面板
type ChartVisualizer struct {
	outputDir string
	width     int
	height    int
	now       func() time.Time
}

// NewChartVisualizer 创建图表生成器
func NewChartVisualizer(cfg types.ChartConfig) *ChartVisualizer {
	width, height := cfg.Width, cfg.Height
	if width <= 0 {
		width = 1400
	}
	if height <= 0 {
		height = 800
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "."
	}

	return &ChartVisualizer{
		outputDir: outputDir,
		width:     width,
		height:    height,
		now:       time.Now,
	}
}

// Visualize 绘制图表并返回图片路径
//
// 上方为收盘价和信号标记，下方为MACD线和信号线。横轴向右延长三分之一，给标记留出空间。
func (v *ChartVisualizer) Visualize(klines []*types.KLine, overlay *types.MACDOverlay, signal *types.Signal) (string, error) {
	if len(klines) < 2 {
		return "", fmt.Errorf("绘图至少需要2根K线，实际%d根", len(klines))
	}
	if overlay.Len() != len(klines) {
		return "", fmt.Errorf("指标长度%d与K线数量%d不一致", overlay.Len(), len(klines))
	}

	times := make([]time.Time, len(klines))
	for i, k := range klines {
		times[i] = k.OpenTime()
	}
	closes := types.ClosePrices(klines)

	first, last := chart.TimeToFloat64(times[0]), chart.TimeToFloat64(times[len(times)-1])
	xRange := &chart.ContinuousRange{Min: first, Max: last + (last-first)/3}
	formatter := valueFormatter(klines[0].Interval)

	priceHeight := v.height * 2 / 3
	priceChart := v.priceChart(times, closes, signal, xRange, formatter, priceHeight)
	macdChart := v.macdChart(times, overlay, xRange, formatter, v.height-priceHeight)

	top, err := renderPNG(priceChart)
	if err != nil {
		return "", errors.Wrap(err, "绘制价格图失败")
	}
	bottom, err := renderPNG(macdChart)
	if err != nil {
		return "", errors.Wrap(err, "绘制MACD图失败")
	}

	if err := os.MkdirAll(v.outputDir, 0o755); err != nil {
		return "", errors.Wrap(err, "创建图片目录失败")
	}
	path := filepath.Join(v.outputDir, "MACD_plot_"+v.now().Format(FileTimeLayout)+".png")
	if err := writeStacked(path, v.width, top, bottom); err != nil {
		return "", err
	}

	zap.L().Info("🖼️ 图表已生成", zap.String("path", path))
	return path, nil
}

func (v *ChartVisualizer) priceChart(times []time.Time, closes []float64, signal *types.Signal, xRange *chart.ContinuousRange, formatter chart.ValueFormatter, height int) chart.Chart {
	title := "Price"
	if signal != nil {
		title = fmt.Sprintf("%s %s Price", signal.Symbol, signal.Timeframe)
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Close Price",
			Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 1.5},
			XValues: times,
			YValues: closes,
		},
	}

	if signal != nil {
		idx := len(closes) - 1
		label := fmt.Sprintf("%s @ %s", markerLabel(signal.Direction), signal.EntryPrice.String())
		color := markerColor(signal.Direction)
		series = append(series, chart.AnnotationSeries{
			Name:  "Signal",
			Style: chart.Style{StrokeColor: color, FontColor: color},
			Annotations: []chart.Value2{{
				XValue: chart.TimeToFloat64(times[idx]),
				YValue: closes[idx],
				Label:  label,
			}},
		})
	}

	c := chart.Chart{
		Title:  title,
		Width:  v.width,
		Height: height,
		XAxis:  chart.XAxis{ValueFormatter: formatter, Range: xRange},
		YAxis:  chart.YAxis{Range: paddedRange(closes)},
		Series: series,
	}
	c.Elements = []chart.Renderable{chart.LegendLeft(&c)}
	return c
}

func (v *ChartVisualizer) macdChart(times []time.Time, overlay *types.MACDOverlay, xRange *chart.ContinuousRange, formatter chart.ValueFormatter, height int) chart.Chart {
	c := chart.Chart{
		Title:  "MACD",
		Width:  v.width,
		Height: height,
		XAxis:  chart.XAxis{ValueFormatter: formatter, Range: xRange},
		YAxis:  chart.YAxis{Range: paddedRange(overlay.MACD, overlay.Signal)},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "MACD",
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeWidth: 1.5},
				XValues: times,
				YValues: overlay.MACD,
			},
			chart.TimeSeries{
				Name:    "Signal Line",
				Style:   chart.Style{StrokeColor: chart.ColorGreen, StrokeWidth: 1.5, StrokeDashArray: []float64{5, 5}},
				XValues: times,
				YValues: overlay.Signal,
			},
		},
	}
	c.Elements = []chart.Renderable{chart.LegendLeft(&c)}
	return c
}

// valueFormatter 按K线周期选择横轴时间格式
func valueFormatter(interval string) chart.ValueFormatter {
	period, err := timeframe.ToDuration(interval)
	if err != nil {
		return chart.TimeValueFormatter
	}
	switch {
	case period >= 24*time.Hour:
		return chart.TimeDateValueFormatter
	case period >= time.Hour:
		return chart.TimeHourValueFormatter
	default:
		return chart.TimeMinuteValueFormatter
	}
}

// paddedRange 纵轴范围上下各留5%，常数序列也能绘制
func paddedRange(series ...[]float64) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	seen := false
	for _, values := range series {
		for _, v := range values {
			if !seen || v < lo {
				lo = v
			}
			if !seen || v > hi {
				hi = v
			}
			seen = true
		}
	}

	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = 1
		if hi != 0 {
			pad = abs(hi) * 0.01
		}
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func markerLabel(direction types.Direction) string {
	if direction == types.DirectionSell {
		return "SELL"
	}
	return "BUY"
}

func markerColor(direction types.Direction) drawing.Color {
	if direction == types.DirectionSell {
		return chart.ColorRed
	}
	return chart.ColorGreen
}

func renderPNG(c chart.Chart) (image.Image, error) {
	var buf bytes.Buffer
	if err := c.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}

// writeStacked 上下拼接两张图片并保存
func writeStacked(path string, width int, top, bottom image.Image) error {
	topBounds, bottomBounds := top.Bounds(), bottom.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, width, topBounds.Dy()+bottomBounds.Dy()))
	draw.Draw(canvas, image.Rect(0, 0, width, topBounds.Dy()), top, topBounds.Min, draw.Src)
	draw.Draw(canvas, image.Rect(0, topBounds.Dy(), width, topBounds.Dy()+bottomBounds.Dy()), bottom, bottomBounds.Min, draw.Src)

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "创建图片文件失败")
	}
	defer file.Close()

	if err := png.Encode(file, canvas); err != nil {
		return errors.Wrap(err, "写入图片失败")
	}
	return nil
}
