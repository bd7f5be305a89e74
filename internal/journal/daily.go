package journal

import (
	"rangebot/internal/logger"
	"rangebot/internal/strategy"
)

// DailyAggregate 是 (day, symbol, strategy) 粒度的日汇总。
// 计数器在存储层做 running max 合并，trades_closed_count 走累加。
type DailyAggregate struct {
	Day               string  `json:"day"`
	Symbol            string  `json:"symbol"`
	Strategy          string  `json:"strategy"`
	Timezone          string  `json:"timezone"`
	RangeStart        string  `json:"range_start"`
	RangeEnd          string  `json:"range_end"`
	EntryStart        string  `json:"entry_start"`
	EntryEnd          string  `json:"entry_end"`
	HasRange          bool    `json:"has_range"`
	RangeHigh         float64 `json:"range_high"`
	RangeLow          float64 `json:"range_low"`
	RangeBars         int     `json:"range_bars"`
	SignalsCount      int     `json:"signals_count"`
	EntriesCount      int     `json:"entries_count"`
	ExitsCount        int     `json:"exits_count"`
	TradesClosedCount int     `json:"trades_closed_count"`
	Notes             string  `json:"notes,omitempty"`
}

// DailyStore 持久化日汇总。
type DailyStore interface {
	UpsertDaily(agg DailyAggregate) error
	BumpTradesClosed(day, symbol, strategyName string, delta int) error
}

// DailyAggregator 把策略的当日状态周期性刷进存储，
// 并在平仓回调里递增已平仓笔数。
type DailyAggregator struct {
	store    DailyStore
	symbol   string
	strategy string
}

// NewDailyAggregator 创建日汇总器。
func NewDailyAggregator(store DailyStore, symbol, strategyName string) *DailyAggregator {
	return &DailyAggregator{store: store, symbol: symbol, strategy: strategyName}
}

// Update 把一份策略日状态合并进存储。
func (a *DailyAggregator) Update(state strategy.DayState) {
	if state.Day == "" {
		return
	}
	err := a.store.UpsertDaily(DailyAggregate{
		Day:          state.Day,
		Symbol:       a.symbol,
		Strategy:     a.strategy,
		Timezone:     state.Timezone,
		RangeStart:   state.RangeStart,
		RangeEnd:     state.RangeEnd,
		EntryStart:   state.EntryStart,
		EntryEnd:     state.EntryEnd,
		HasRange:     state.HasRange,
		RangeHigh:    state.RangeHigh,
		RangeLow:     state.RangeLow,
		RangeBars:    state.RangeBars,
		SignalsCount: state.Signals,
		EntriesCount: state.Entries,
		ExitsCount:   state.Exits,
		Notes:        state.Notes,
	})
	if err != nil {
		logger.Warnf("日汇总落库失败: day=%s err=%v", state.Day, err)
	}
}

// OnTradeClosed 给 Tracker 当平仓回调用。
func (a *DailyAggregator) OnTradeClosed(day string) {
	if err := a.store.BumpTradesClosed(day, a.symbol, a.strategy, 1); err != nil {
		logger.Warnf("日汇总平仓计数失败: day=%s err=%v", day, err)
	}
}
