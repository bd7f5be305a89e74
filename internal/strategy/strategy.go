// Package strategy 实现按交易日切分状态的日内策略。
// 策略只产出信号，不做风控、不碰券商，由 trader 编排层串联。
package strategy

import (
	"fmt"

	"rangebot/internal/config"
	"rangebot/internal/market"
)

// Strategy 是策略的统一接口。OnBar 逐根喂入 K 线并返回至多一个信号，
// 调用方负责按合约串行化调用。
type Strategy interface {
	Name() string
	OnBar(bar market.Bar, position int) *market.Signal
	Context() Context
	DailyState() (DayState, bool)
	ConsumeCompletedDays() []DayState
}

// DayState 是一个交易日的运行汇总，完成的日子排队等待外部持久化。
type DayState struct {
	Day        string  `json:"day"` // 本地日期 YYYY-MM-DD
	Timezone   string  `json:"timezone"`
	Symbol     string  `json:"symbol"`
	Strategy   string  `json:"strategy"`
	RangeStart string  `json:"range_start"`
	RangeEnd   string  `json:"range_end"`
	EntryStart string  `json:"entry_start"`
	EntryEnd   string  `json:"entry_end"`
	HasRange   bool    `json:"has_range"`
	RangeLow   float64 `json:"range_low"`
	RangeHigh  float64 `json:"range_high"`
	RangeBars  int     `json:"range_bars"`
	Signals    int     `json:"signals_count"`
	Entries    int     `json:"entries_count"`
	Exits      int     `json:"exits_count"`
	Notes      string  `json:"notes,omitempty"`
}

// New 按配置构造策略实例。
func New(cfg config.StrategyConfig, inst config.InstrumentConfig) (Strategy, error) {
	switch cfg.Type {
	case "noop":
		return &Noop{}, nil
	case "breakout":
		return NewBreakout(cfg.Breakout, inst)
	default:
		return nil, fmt.Errorf("未知策略类型: %q", cfg.Type)
	}
}

// Noop 什么也不做，用于只读/排障模式。
type Noop struct{}

func (n *Noop) Name() string                         { return "noop" }
func (n *Noop) OnBar(market.Bar, int) *market.Signal { return nil }
func (n *Noop) Context() Context                     { return Context{} }
func (n *Noop) DailyState() (DayState, bool)         { return DayState{}, false }
func (n *Noop) ConsumeCompletedDays() []DayState     { return nil }
