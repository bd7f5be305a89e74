package journal

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"rangebot/internal/logger"
	"rangebot/internal/market"
)

// TradeStore 是交易记录的持久化接口，全部按主键幂等 upsert。
type TradeStore interface {
	UpsertTrade(rec TradeRecord) error
	UpsertTradeMetrics(m TradeMetrics) error
	UpsertTradeShadow(res ShadowExitResult) error
}

// BarStore 提供闭区间 [from, to] 内某合约的 K 线历史。
type BarStore interface {
	BarsBetween(symbol string, from, to time.Time) ([]market.Bar, error)
}

// ShadowOptions 控制平仓时的影子变体重放。
type ShadowOptions struct {
	Enabled             bool
	VariantBTakeProfitR float64
	VariantCStopR       float64
}

// TrackerConfig 是 Tracker 的静态参数。
type TrackerConfig struct {
	InstanceID string
	Strategy   string
	Symbol     string
	Multiplier float64
	Location   *time.Location
	Shadow     ShadowOptions
}

// activeRecord 是开仓到平仓之间缓存的交易状态。
type activeRecord struct {
	tradeID     string
	entryTS     time.Time
	entryPrice  float64
	entrySide   market.Side
	qty         int
	rangeHigh   float64
	rangeLow    float64
	riskPerUnit float64
	stopPrice   float64
	tpPrice     float64
	entryReason string
	flatTime    string
}

// Tracker 根据成交前后的持仓变化识别交易生命周期：
// 0→非0 开仓，非0→0 平仓，翻仓视作先平后开；同向加仓不记档。
// 单实例同时最多一笔在途交易。
type Tracker struct {
	cfg      TrackerConfig
	store    TradeStore
	barStore BarStore

	pending    *EntryContext
	active     *activeRecord
	exitReason string

	// 平仓回调带本地日历日，日汇总用它累加 trades_closed_count。
	onTradeClosed func(day string)
}

// NewTracker 创建生命周期跟踪器。
func NewTracker(cfg TrackerConfig, store TradeStore, barStore BarStore, onTradeClosed func(day string)) *Tracker {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	return &Tracker{cfg: cfg, store: store, barStore: barStore, onTradeClosed: onTradeClosed}
}

// SetPendingContext 挂起下一次开仓成交要用的入场上下文。
func (t *Tracker) SetPendingContext(ctx EntryContext) {
	c := ctx
	t.pending = &c
}

// SetExitReason 缓存平仓原因，下一次平仓成交取用后清空。
func (t *Tracker) SetExitReason(reason string) {
	t.exitReason = reason
}

// OnFill 处理一条成交及其前后持仓。
func (t *Tracker) OnFill(fill market.Fill, before, after int) {
	switch {
	case before == 0 && after != 0:
		t.startTrade(fill, after)
	case before != 0 && after == 0:
		t.closeTrade(fill)
	case before != 0 && after != 0 && (before > 0) != (after > 0):
		t.closeTrade(fill)
		t.startTrade(fill, after)
	}
}

func (t *Tracker) startTrade(fill market.Fill, after int) {
	ctx := EntryContext{}
	if t.pending != nil {
		ctx = *t.pending
	}
	tradeID := ctx.TradeID
	if tradeID == "" {
		tradeID = newTradeID()
	}
	qty := after
	if qty < 0 {
		qty = -qty
	}
	t.active = &activeRecord{
		tradeID:     tradeID,
		entryTS:     fill.TS,
		entryPrice:  fill.Price,
		entrySide:   fill.Side,
		qty:         qty,
		rangeHigh:   ctx.RangeHigh,
		rangeLow:    ctx.RangeLow,
		riskPerUnit: ctx.RiskPerUnit,
		stopPrice:   ctx.StopPrice,
		tpPrice:     ctx.TakeProfit,
		entryReason: ctx.EntryReason,
		flatTime:    ctx.FlatTime,
	}
	if err := t.store.UpsertTrade(TradeRecord{
		TradeID:     tradeID,
		InstanceID:  t.cfg.InstanceID,
		Strategy:    t.cfg.Strategy,
		Symbol:      t.cfg.Symbol,
		EntryTS:     fill.TS,
		EntryPrice:  fill.Price,
		EntrySide:   string(fill.Side),
		EntryReason: ctx.EntryReason,
		Qty:         qty,
		RangeHigh:   ctx.RangeHigh,
		RangeLow:    ctx.RangeLow,
		RiskPerUnit: ctx.RiskPerUnit,
	}); err != nil {
		logger.Errorf("交易开仓落库失败: trade=%s err=%v", tradeID, err)
	}
	logger.Infof("交易开始: %s %s %d@%.4f", tradeID, fill.Side, qty, fill.Price)
	t.pending = nil
}

func (t *Tracker) closeTrade(fill market.Fill) {
	trade := t.active
	if trade == nil {
		return
	}
	pnl := sidePnL(trade.entrySide, trade.entryPrice, fill.Price, trade.qty, t.cfg.Multiplier)
	exitReason := t.exitReason
	exitTS := fill.TS
	exitPrice := fill.Price
	if err := t.store.UpsertTrade(TradeRecord{
		TradeID:     trade.tradeID,
		InstanceID:  t.cfg.InstanceID,
		Strategy:    t.cfg.Strategy,
		Symbol:      t.cfg.Symbol,
		EntryTS:     trade.entryTS,
		EntryPrice:  trade.entryPrice,
		EntrySide:   string(trade.entrySide),
		EntryReason: trade.entryReason,
		ExitTS:      &exitTS,
		ExitPrice:   &exitPrice,
		ExitReason:  exitReason,
		Qty:         trade.qty,
		PnLUSD:      &pnl,
		RangeHigh:   trade.rangeHigh,
		RangeLow:    trade.rangeLow,
		RiskPerUnit: trade.riskPerUnit,
	}); err != nil {
		logger.Errorf("交易平仓落库失败: trade=%s err=%v", trade.tradeID, err)
	}

	bars := t.fetchBars(trade.entryTS, fill.TS)
	mae, mfe := ComputeMAEMFE(bars, trade.entrySide, trade.entryPrice)
	metrics := TradeMetrics{
		TradeID:         trade.tradeID,
		DurationSeconds: fill.TS.Sub(trade.entryTS).Seconds(),
		MAE:             mae,
		MFE:             mfe,
	}
	if r, ok := RMultiple(trade.entrySide, trade.entryPrice, fill.Price, trade.riskPerUnit); ok {
		metrics.RMultiple = r
		metrics.HasRMultiple = true
	}
	if err := t.store.UpsertTradeMetrics(metrics); err != nil {
		logger.Errorf("交易指标落库失败: trade=%s err=%v", trade.tradeID, err)
	}

	// 影子重放是尽力而为：任何失败只记日志，不影响平仓本身。
	if t.cfg.Shadow.Enabled && len(bars) > 0 {
		t.persistShadow(trade, bars)
	}

	logger.Infof("交易结束: %s reason=%s pnl=%.2f duration=%.0fs",
		trade.tradeID, exitReason, pnl, metrics.DurationSeconds)
	t.active = nil
	t.exitReason = ""
	if t.onTradeClosed != nil {
		day := fill.TS.UTC()
		if t.cfg.Location != nil {
			day = fill.TS.In(t.cfg.Location)
		}
		t.onTradeClosed(day.Format(time.DateOnly))
	}
}

func (t *Tracker) persistShadow(trade *activeRecord, bars []market.Bar) {
	stop := trade.stopPrice
	tp := trade.tpPrice
	if stop == 0 {
		stop = trade.entryPrice
	}
	if tp == 0 {
		tp = trade.entryPrice
	}
	results := ComputeShadowExits(bars, ShadowParams{
		TradeID:             trade.tradeID,
		Side:                trade.entrySide,
		EntryPrice:          trade.entryPrice,
		Qty:                 trade.qty,
		Multiplier:          t.cfg.Multiplier,
		RiskPerUnit:         trade.riskPerUnit,
		StopPrice:           stop,
		TakeProfit:          tp,
		FlatTime:            trade.flatTime,
		Location:            t.cfg.Location,
		VariantBTakeProfitR: t.cfg.Shadow.VariantBTakeProfitR,
		VariantCStopR:       t.cfg.Shadow.VariantCStopR,
	})
	for _, res := range results {
		if err := t.store.UpsertTradeShadow(res); err != nil {
			logger.Warnf("影子出场落库失败: trade=%s variant=%s err=%v", res.TradeID, res.VariantName, err)
		}
	}
}

func (t *Tracker) fetchBars(from, to time.Time) []market.Bar {
	if t.barStore == nil {
		return nil
	}
	bars, err := t.barStore.BarsBetween(t.cfg.Symbol, from, to)
	if err != nil {
		logger.Warnf("读取持仓期 K 线失败: %v", err)
		return nil
	}
	return bars
}

func newTradeID() string {
	return "trade-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
