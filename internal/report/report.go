// Package report 生成离线报表：K 线、信号、交易（含指标）、影子出场、
// 账户快照和日汇总的 CSV 导出，以及带均线叠加的日内 K 线图
// （HTML，可选 PNG 快照）。
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"rangebot/internal/logger"
	"rangebot/internal/store/eventlog"
	"rangebot/internal/store/gormstore"
)

// Config 是报表输出参数。
type Config struct {
	OutputDir     string
	ChartSnapshot bool // 渲染 HTML 之外再截一张 PNG
}

// Reporter 从交易日志库和事件库读取数据生成报表文件。
type Reporter struct {
	cfg    Config
	store  *gormstore.Store
	events *eventlog.Store
}

func New(cfg Config, store *gormstore.Store, events *eventlog.Store) *Reporter {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "reports"
	}
	return &Reporter{cfg: cfg, store: store, events: events}
}

// ExportTrades 把最近 limit 笔交易连同指标写成 CSV，返回文件路径。
func (r *Reporter) ExportTrades(limit int) (string, error) {
	trades, err := r.store.RecentTrades(limit)
	if err != nil {
		return "", fmt.Errorf("读取交易记录失败: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, "trades.csv")
	w, f, err := r.newCSV(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := []string{
		"trade_id", "symbol", "strategy", "entry_ts", "entry_side", "entry_price", "qty",
		"exit_ts", "exit_price", "exit_reason", "pnl_usd",
		"duration_seconds", "mae", "mfe", "r_multiple",
	}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, tr := range trades {
		row := []string{
			tr.TradeID, tr.Symbol, tr.Strategy,
			tr.EntryTS.UTC().Format(time.RFC3339),
			tr.EntrySide,
			formatFloat(tr.EntryPrice),
			strconv.Itoa(tr.Qty),
			"", "", tr.ExitReason, "",
			"", "", "", "",
		}
		if tr.ExitTS != nil {
			row[7] = tr.ExitTS.UTC().Format(time.RFC3339)
		}
		if tr.ExitPrice != nil {
			row[8] = formatFloat(*tr.ExitPrice)
		}
		if tr.PnLUSD != nil {
			row[10] = formatFloat(*tr.PnLUSD)
		}
		metrics, err := r.store.MetricsFor(tr.TradeID)
		if err != nil {
			return "", fmt.Errorf("读取交易指标失败: %w", err)
		}
		if metrics != nil {
			row[11] = formatFloat(metrics.DurationSeconds)
			row[12] = formatFloat(metrics.MAE)
			row[13] = formatFloat(metrics.MFE)
			if metrics.RMultiple != nil {
				row[14] = formatFloat(*metrics.RMultiple)
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	logger.Infof("交易报表已导出: %s (%d 笔)", path, len(trades))
	return path, nil
}

// ExportShadows 把最近 limit 条影子出场写成 CSV。
func (r *Reporter) ExportShadows(limit int) (string, error) {
	rows, err := r.store.ListShadows(limit)
	if err != nil {
		return "", fmt.Errorf("读取影子出场失败: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, "shadows.csv")
	w, f, err := r.newCSV(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := []string{"trade_id", "variant_name", "exit_ts", "exit_price", "pnl_usd", "exit_reason"}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, sh := range rows {
		if err := w.Write([]string{
			sh.TradeID, sh.VariantName,
			sh.ExitTS.UTC().Format(time.RFC3339),
			formatFloat(sh.ExitPrice), formatFloat(sh.PnLUSD), sh.ReasonExit,
		}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	logger.Infof("影子出场报表已导出: %s (%d 条)", path, len(rows))
	return path, nil
}

// ExportSignals 把最近 limit 条策略信号写成 CSV。
func (r *Reporter) ExportSignals(limit int) (string, error) {
	if r.events == nil {
		return "", fmt.Errorf("事件库未配置")
	}
	records, err := r.events.RecentSignals(limit)
	if err != nil {
		return "", fmt.Errorf("读取信号流水失败: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, "signals.csv")
	w, f, err := r.newCSV(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := []string{"ts", "symbol", "strategy", "type", "side", "qty", "reason", "price_ref", "bar_ts", "is_snapshot"}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, rec := range records {
		barTS := ""
		if !rec.BarTS.IsZero() {
			barTS = rec.BarTS.UTC().Format(time.RFC3339)
		}
		if err := w.Write([]string{
			rec.TS.UTC().Format(time.RFC3339), rec.Symbol, rec.Strategy, rec.Type,
			rec.Side, strconv.Itoa(rec.Qty), rec.Reason,
			formatFloat(rec.PriceRef), barTS, strconv.FormatBool(rec.Snapshot),
		}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	logger.Infof("信号报表已导出: %s (%d 条)", path, len(records))
	return path, nil
}

// ExportPnL 把最近 limit 条账户快照写成 CSV，作为盈亏曲线数据源。
func (r *Reporter) ExportPnL(limit int) (string, error) {
	if r.events == nil {
		return "", fmt.Errorf("事件库未配置")
	}
	snaps, err := r.events.RecentPnLSnapshots(limit)
	if err != nil {
		return "", fmt.Errorf("读取账户快照失败: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, "pnl.csv")
	w, f, err := r.newCSV(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := []string{"ts", "symbol", "position_qty", "avg_price", "last_price", "unrealized_usd", "realized_usd", "commissions_usd"}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, snap := range snaps {
		if err := w.Write([]string{
			snap.TS.UTC().Format(time.RFC3339), snap.Symbol,
			strconv.Itoa(snap.PositionQty),
			formatFloat(snap.AvgPrice), formatFloat(snap.LastPrice),
			formatFloat(snap.UnrealizedUSD), formatFloat(snap.RealizedUSD),
			formatFloat(snap.Commissions),
		}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	logger.Infof("盈亏快照报表已导出: %s (%d 条)", path, len(snaps))
	return path, nil
}

// ExportBars 把 [from, to] 区间内的 K 线写成 CSV，没有数据时只写表头。
func (r *Reporter) ExportBars(symbol string, from, to time.Time) (string, error) {
	bars, err := r.store.BarsBetween(symbol, from, to)
	if err != nil {
		return "", fmt.Errorf("读取 K 线失败: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, "bars.csv")
	w, f, err := r.newCSV(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := []string{"ts", "symbol", "open", "high", "low", "close", "volume", "is_snapshot"}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, bar := range bars {
		if err := w.Write([]string{
			bar.TS.UTC().Format(time.RFC3339), bar.Symbol,
			formatFloat(bar.Open), formatFloat(bar.High),
			formatFloat(bar.Low), formatFloat(bar.Close),
			formatFloat(bar.Volume), strconv.FormatBool(bar.Snapshot),
		}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	logger.Infof("K 线报表已导出: %s (%d 根)", path, len(bars))
	return path, nil
}

// ExportDaily 把最近 limit 天的日汇总写成 CSV。
func (r *Reporter) ExportDaily(limit int) (string, error) {
	rows, err := r.store.ListDaily(limit)
	if err != nil {
		return "", fmt.Errorf("读取日汇总失败: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, "daily.csv")
	w, f, err := r.newCSV(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := []string{
		"day", "symbol", "strategy", "timezone", "has_range", "range_low", "range_high",
		"range_bars", "signals", "entries", "exits", "trades_closed",
	}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, d := range rows {
		row := []string{
			d.Day, d.Symbol, d.Strategy, d.Timezone,
			strconv.FormatBool(d.HasRange),
			formatFloat(d.RangeLow), formatFloat(d.RangeHigh),
			strconv.Itoa(d.RangeBars), strconv.Itoa(d.SignalsCount),
			strconv.Itoa(d.EntriesCount), strconv.Itoa(d.ExitsCount),
			strconv.Itoa(d.TradesClosedCount),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	logger.Infof("日汇总报表已导出: %s (%d 天)", path, len(rows))
	return path, nil
}

func (r *Reporter) newCSV(path string) (*csv.Writer, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return csv.NewWriter(f), f, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
