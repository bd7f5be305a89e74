package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"rangebot/internal/logger"
	"rangebot/internal/market"
)

const (
	chartWidthPx  = 1400
	chartHeightPx = 600
	emaPeriod     = 20

	colorBull = "#34d399"
	colorBear = "#f87171"
	colorEma  = "#3b82f6"
)

// RenderDayChart 把某个交易日的 K 线画成 HTML 图表并落盘，
// ChartSnapshot 打开时再用 headless chrome 截一张 PNG。
// from/to 是该交易日的 UTC 边界，由调用方按本地时区换算。
func (r *Reporter) RenderDayChart(ctx context.Context, symbol, day string, from, to time.Time) (string, error) {
	bars, err := r.store.BarsBetween(symbol, from, to)
	if err != nil {
		return "", fmt.Errorf("读取 K 线失败: %w", err)
	}
	if len(bars) == 0 {
		return "", fmt.Errorf("交易日 %s 无 K 线数据", day)
	}
	html, err := buildDayChartHTML(symbol, day, bars)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return "", err
	}
	htmlPath := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("%s_%s.html", day, strings.ToLower(symbol)))
	if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
		return "", err
	}
	logger.Infof("日内图表已生成: %s (%d 根)", htmlPath, len(bars))

	if r.cfg.ChartSnapshot {
		png, err := renderHTMLToPNG(ctx, html, chartWidthPx, chartHeightPx)
		if err != nil {
			logger.Warnf("图表 PNG 截图失败: %v", err)
			return htmlPath, nil
		}
		pngPath := strings.TrimSuffix(htmlPath, ".html") + ".png"
		if err := os.WriteFile(pngPath, png, 0o644); err != nil {
			logger.Warnf("图表 PNG 写入失败: %v", err)
		}
	}
	return htmlPath, nil
}

func buildDayChartHTML(symbol, day string, bars []market.Bar) ([]byte, error) {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", chartHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s %s", strings.ToUpper(symbol), day),
			Left:  "left",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := make([]string, len(bars))
	klineData := make([]opts.KlineData, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		xAxis[i] = b.TS.UTC().Format("15:04")
		klineData[i] = opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}}
		closes[i] = b.Close
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", klineData)

	if len(closes) > emaPeriod {
		line := charts.NewLine()
		line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
		line.SetXAxis(xAxis)
		line.AddSeries(fmt.Sprintf("EMA%d", emaPeriod), toLineData(talib.Ema(closes, emaPeriod)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEma, Width: 2}))
		kline.Overlap(line)
	}

	var buf bytes.Buffer
	if err := kline.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toLineData(series []float64) []opts.LineData {
	line := make([]opts.LineData, len(series))
	for i, v := range series {
		if math.IsNaN(v) || v == 0 {
			line[i] = opts.LineData{Value: nil}
			continue
		}
		line[i] = opts.LineData{Value: math.Round(v*10000) / 10000}
	}
	return line
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
