package strategy

import "time"

// ContextKind 标记最近一次信号上下文的类型。
type ContextKind string

const (
	ContextNone  ContextKind = ""
	ContextRange ContextKind = "range_update"
	ContextEntry ContextKind = "entry"
	ContextExit  ContextKind = "exit"
)

// Context 是策略最近一次事件的结构化明细，只保留最新一条，
// 每种类型只携带自己相关的字段。
type Context struct {
	Kind  ContextKind  `json:"kind"`
	Range *RangeUpdate `json:"range,omitempty"`
	Entry *EntryDetail `json:"entry,omitempty"`
	Exit  *ExitDetail  `json:"exit,omitempty"`
}

// RangeUpdate 是区间窗口内一根 K 线带来的区间扩展。
type RangeUpdate struct {
	TS        time.Time `json:"ts"`
	RangeLow  float64   `json:"range_low"`
	RangeHigh float64   `json:"range_high"`
	RangeBars int       `json:"range_bars"`
}

// EntryDetail 是开仓信号的完整上下文，生命周期跟踪会把它
// 原样落进 TradeRecord。
type EntryDetail struct {
	TS             time.Time `json:"ts"`
	Side           string    `json:"side"`
	Qty            int       `json:"qty"`
	EntryPrice     float64   `json:"entry_price"`
	StopPrice      float64   `json:"stop_price"`
	TakeProfit     float64   `json:"tp_price"`
	RiskPerUnit    float64   `json:"risk_per_unit"`
	BEEnabled      bool      `json:"be_enabled"`
	BETriggerPrice float64   `json:"be_trigger_price,omitempty"`
	RangeLow       float64   `json:"range_low"`
	RangeHigh      float64   `json:"range_high"`
	Reason         string    `json:"reason"`
}

// ExitDetail 是平仓信号的上下文。
type ExitDetail struct {
	TS        time.Time `json:"ts"`
	Side      string    `json:"side"`
	ExitPrice float64   `json:"exit_price"`
	Reason    string    `json:"reason"`
}

func rangeContext(u RangeUpdate) Context {
	return Context{Kind: ContextRange, Range: &u}
}

func entryContext(d EntryDetail) Context {
	return Context{Kind: ContextEntry, Entry: &d}
}

func exitContext(d ExitDetail) Context {
	return Context{Kind: ContextExit, Exit: &d}
}
