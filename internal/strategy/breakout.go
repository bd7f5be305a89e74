package strategy

import (
	"fmt"
	"math"
	"time"

	"rangebot/internal/config"
	"rangebot/internal/logger"
	"rangebot/internal/market"
	"rangebot/internal/pkg/priceutil"
)

const breakoutName = "breakout"

// 信号原因常量，落库和对外展示都用同一套字符串。
const (
	ReasonEntryLong  = "orb_entry_long"
	ReasonEntryShort = "orb_entry_short"
	ReasonStop       = "orb_stop"
	ReasonTakeProfit = "orb_take_profit"
	ReasonFlatTime   = "orb_flat_time"
)

// activeTrade 是当前持有中的一笔交易的策略侧状态。
type activeTrade struct {
	side       market.Side
	entryTS    time.Time
	entryPrice float64
	stopPrice  float64
	tpPrice    float64
	risk       float64
	beTrigger  float64 // 0 表示未启用
	beOffset   float64
	beArmed    bool
}

// Breakout 是开盘区间突破策略：区间窗口内累积 [low,high]，
// 入场窗口内收盘价带缓冲突破区间即开仓，止损挂在区间对侧。
// 状态按本地交易日切分，跨日自动清零。
type Breakout struct {
	cfg     config.BreakoutConfig
	symbol  string
	minTick float64
	loc     *time.Location

	rangeWindow timeWindow
	entryWindow timeWindow
	flatTime    dayClock

	day         string
	rangeLow    float64
	rangeHigh   float64
	rangeReady  bool
	rangeLogged bool
	rangeBars   int
	tradesToday int
	signals     int
	entries     int
	exits       int

	active    *activeTrade
	lastCtx   Context
	completed []DayState
}

// NewBreakout 构造突破策略。窗口和时区在这里一次性解析。
func NewBreakout(cfg config.BreakoutConfig, inst config.InstrumentConfig) (*Breakout, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区失败 %q: %w", cfg.Timezone, err)
	}
	rangeWindow, err := parseWindow(cfg.RangeWindow.Start, cfg.RangeWindow.End)
	if err != nil {
		return nil, fmt.Errorf("range_window: %w", err)
	}
	entryWindow, err := parseWindow(cfg.EntryWindow.Start, cfg.EntryWindow.End)
	if err != nil {
		return nil, fmt.Errorf("entry_window: %w", err)
	}
	flat, err := parseClock(cfg.FlatTime)
	if err != nil {
		return nil, fmt.Errorf("flat_time: %w", err)
	}
	return &Breakout{
		cfg:         cfg,
		symbol:      inst.Symbol,
		minTick:     inst.MinTick,
		loc:         loc,
		rangeWindow: rangeWindow,
		entryWindow: entryWindow,
		flatTime:    flat,
	}, nil
}

func (b *Breakout) Name() string { return breakoutName }

// OnBar 按固定次序处理一根 K 线：跨日清零 → 区间扩展 → 平仓检查 →
// 开仓检查。快照 K 线只参与建区间和状态恢复，不产生新开仓。
func (b *Breakout) OnBar(bar market.Bar, position int) *market.Signal {
	local := bar.TS.In(b.loc)
	b.lastCtx = Context{}
	b.rollDayIfNeeded(local)
	b.updateRange(bar, local)

	if sig := b.maybeExit(bar, local, position); sig != nil {
		return sig
	}
	if bar.Snapshot {
		return nil
	}
	if !b.rangeReady {
		return nil
	}
	if !b.entryWindow.contains(local) {
		return nil
	}
	if b.tradesToday >= b.cfg.MaxTradesPerDay {
		return nil
	}
	if position != 0 || b.active != nil {
		return nil
	}

	buffer := priceutil.Ticks(b.cfg.BreakoutBufferTicks, b.minTick)
	switch {
	case bar.Close > priceutil.Add(b.rangeHigh, buffer):
		return b.buildEntry(bar, market.SideBuy)
	case b.cfg.AllowShort && bar.Close < priceutil.Sub(b.rangeLow, buffer):
		return b.buildEntry(bar, market.SideSell)
	}
	return nil
}

// Context 返回最近一次事件的结构化明细（只保留最新的一条）。
func (b *Breakout) Context() Context { return b.lastCtx }

// DailyState 返回进行中的当日汇总。
func (b *Breakout) DailyState() (DayState, bool) {
	if b.day == "" {
		return DayState{}, false
	}
	return b.buildDaySummary(b.day, false), true
}

// ConsumeCompletedDays 取走并清空已完成交易日队列。
func (b *Breakout) ConsumeCompletedDays() []DayState {
	out := b.completed
	b.completed = nil
	return out
}

func (b *Breakout) rollDayIfNeeded(local time.Time) {
	day := local.Format(time.DateOnly)
	if day == b.day {
		return
	}
	if b.day != "" {
		b.completed = append(b.completed, b.buildDaySummary(b.day, true))
	}
	b.day = day
	b.rangeLow = 0
	b.rangeHigh = 0
	b.rangeReady = false
	b.rangeLogged = false
	b.rangeBars = 0
	b.tradesToday = 0
	b.signals = 0
	b.entries = 0
	b.exits = 0
	b.active = nil
	logger.Infof("策略跨日重置: %s day=%s", b.symbol, day)
}

func (b *Breakout) updateRange(bar market.Bar, local time.Time) {
	if !b.rangeWindow.contains(local) {
		return
	}
	if !b.rangeReady {
		b.rangeLow = bar.Low
		b.rangeHigh = bar.High
		b.rangeReady = true
	} else {
		b.rangeLow = math.Min(b.rangeLow, bar.Low)
		b.rangeHigh = math.Max(b.rangeHigh, bar.High)
	}
	b.rangeBars++
	b.lastCtx = rangeContext(RangeUpdate{
		TS:        bar.TS,
		RangeLow:  b.rangeLow,
		RangeHigh: b.rangeHigh,
		RangeBars: b.rangeBars,
	})
	if !b.rangeLogged {
		b.rangeLogged = true
		logger.Infof("开盘区间建立: %s [%.4f, %.4f]", b.symbol, b.rangeLow, b.rangeHigh)
	}
}

func (b *Breakout) buildEntry(bar market.Bar, side market.Side) *market.Signal {
	stopBuffer := priceutil.Ticks(b.cfg.StopBufferTicks, b.minTick)
	var stop float64
	if side == market.SideBuy {
		stop = priceutil.Sub(b.rangeLow, stopBuffer)
	} else {
		stop = priceutil.Add(b.rangeHigh, stopBuffer)
	}
	risk := math.Abs(bar.Close - stop)
	var tp float64
	if side == market.SideBuy {
		tp = bar.Close + b.cfg.TakeProfitR*risk
	} else {
		tp = bar.Close - b.cfg.TakeProfitR*risk
	}

	var beTrigger, beOffset float64
	if b.cfg.BreakEven.Enabled && b.cfg.BreakEven.TriggerR > 0 {
		move := b.cfg.BreakEven.TriggerR * risk
		if side == market.SideBuy {
			beTrigger = bar.Close + move
		} else {
			beTrigger = bar.Close - move
		}
		beOffset = priceutil.Ticks(b.cfg.BreakEven.OffsetTicks, b.minTick)
	}

	b.active = &activeTrade{
		side:       side,
		entryTS:    bar.TS,
		entryPrice: bar.Close,
		stopPrice:  stop,
		tpPrice:    tp,
		risk:       risk,
		beTrigger:  beTrigger,
		beOffset:   beOffset,
	}
	b.tradesToday++
	b.signals++
	b.entries++

	reason := ReasonEntryLong
	if side == market.SideSell {
		reason = ReasonEntryShort
	}
	b.lastCtx = entryContext(EntryDetail{
		TS:             bar.TS,
		Side:           string(side),
		Qty:            b.cfg.Qty,
		EntryPrice:     bar.Close,
		StopPrice:      stop,
		TakeProfit:     tp,
		RiskPerUnit:    risk,
		BEEnabled:      beTrigger != 0,
		BETriggerPrice: beTrigger,
		RangeLow:       b.rangeLow,
		RangeHigh:      b.rangeHigh,
		Reason:         reason,
	})
	logger.Infof("突破开仓信号: %s %s entry=%.4f stop=%.4f tp=%.4f risk=%.4f",
		b.symbol, side, bar.Close, stop, tp, risk)
	return &market.Signal{TS: bar.TS, Symbol: b.symbol, Side: side, Qty: b.cfg.Qty, Reason: reason}
}

// maybeExit 依优先级检查平仓条件：保本上移 → 止损 → 止盈 → 收盘强平。
// 止损和止盈同一根 K 线都触发时按止损处理。
func (b *Breakout) maybeExit(bar market.Bar, local time.Time, position int) *market.Signal {
	active := b.active
	if active == nil {
		return nil
	}
	b.maybeArmBreakEven(bar, active)

	var reason string
	exitPrice := bar.Close
	if active.side == market.SideBuy {
		switch {
		case bar.Low <= active.stopPrice:
			reason = ReasonStop
			exitPrice = active.stopPrice
		case bar.High >= active.tpPrice:
			reason = ReasonTakeProfit
			exitPrice = active.tpPrice
		}
	} else {
		switch {
		case bar.High >= active.stopPrice:
			reason = ReasonStop
			exitPrice = active.stopPrice
		case bar.Low <= active.tpPrice:
			reason = ReasonTakeProfit
			exitPrice = active.tpPrice
		}
	}
	if reason == "" && b.flatTime.atOrAfter(local) {
		reason = ReasonFlatTime
		exitPrice = bar.Close
	}
	if reason == "" {
		return nil
	}

	exitSide := active.side.Opposite()
	qty := position
	if qty < 0 {
		qty = -qty
	}
	if qty == 0 {
		qty = b.cfg.Qty
	}
	b.signals++
	b.exits++
	b.active = nil
	b.lastCtx = exitContext(ExitDetail{
		TS:        bar.TS,
		Side:      string(exitSide),
		ExitPrice: exitPrice,
		Reason:    reason,
	})
	logger.Infof("平仓信号: %s %s reason=%s price=%.4f", b.symbol, exitSide, reason, exitPrice)
	return &market.Signal{TS: bar.TS, Symbol: b.symbol, Side: exitSide, Qty: qty, Reason: reason}
}

// maybeArmBreakEven 一次性地把止损上移到保本位，之后不再回退。
func (b *Breakout) maybeArmBreakEven(bar market.Bar, active *activeTrade) {
	if active.beTrigger == 0 || active.beArmed {
		return
	}
	var triggered bool
	if active.side == market.SideBuy {
		triggered = bar.High >= active.beTrigger
	} else {
		triggered = bar.Low <= active.beTrigger
	}
	if !triggered {
		return
	}
	if active.side == market.SideBuy {
		active.stopPrice = priceutil.Add(active.entryPrice, active.beOffset)
	} else {
		active.stopPrice = priceutil.Sub(active.entryPrice, active.beOffset)
	}
	active.beArmed = true
	logger.Infof("保本止损已上移: %s %s stop=%.4f entry=%.4f",
		b.symbol, active.side, active.stopPrice, active.entryPrice)
}

func (b *Breakout) buildDaySummary(day string, final bool) DayState {
	state := DayState{
		Day:        day,
		Timezone:   b.cfg.Timezone,
		Symbol:     b.symbol,
		Strategy:   breakoutName,
		RangeStart: b.cfg.RangeWindow.Start,
		RangeEnd:   b.cfg.RangeWindow.End,
		EntryStart: b.cfg.EntryWindow.Start,
		EntryEnd:   b.cfg.EntryWindow.End,
		HasRange:   b.rangeReady,
		RangeLow:   b.rangeLow,
		RangeHigh:  b.rangeHigh,
		RangeBars:  b.rangeBars,
		Signals:    b.signals,
		Entries:    b.entries,
		Exits:      b.exits,
	}
	if final && b.entries == 0 {
		state.Notes = "no_entries"
	}
	return state
}
