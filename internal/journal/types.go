// Package journal 把成交流转换成离散的交易记录：开平仓识别、
// MAE/MFE/R 指标、影子出场重放，以及按日汇总。
package journal

import "time"

// TradeRecord 是一笔交易的生命周期记录，按 TradeID 幂等落库。
// 开仓时先写入无出场字段的半条，平仓时补全。
type TradeRecord struct {
	TradeID     string     `json:"trade_id"`
	InstanceID  string     `json:"instance_id"`
	Strategy    string     `json:"strategy"`
	Symbol      string     `json:"symbol"`
	EntryTS     time.Time  `json:"entry_ts"`
	EntryPrice  float64    `json:"entry_price"`
	EntrySide   string     `json:"entry_side"`
	EntryReason string     `json:"entry_reason"`
	ExitTS      *time.Time `json:"exit_ts,omitempty"`
	ExitPrice   *float64   `json:"exit_price,omitempty"`
	ExitReason  string     `json:"exit_reason,omitempty"`
	Qty         int        `json:"qty"`
	PnLUSD      *float64   `json:"pnl_usd,omitempty"`
	RangeHigh   float64    `json:"range_high"`
	RangeLow    float64    `json:"range_low"`
	RiskPerUnit float64    `json:"risk_per_unit"`
}

// TradeMetrics 与 TradeRecord 一一对应。
type TradeMetrics struct {
	TradeID         string  `json:"trade_id"`
	DurationSeconds float64 `json:"duration_seconds"`
	MAE             float64 `json:"mae"`
	MFE             float64 `json:"mfe"`
	RMultiple       float64 `json:"r_multiple"`
	HasRMultiple    bool    `json:"has_r_multiple"`
}

// ShadowExitResult 是一个影子变体的模拟出场结果，
// 按 (TradeID, VariantName) 幂等落库。
type ShadowExitResult struct {
	TradeID     string    `json:"trade_id"`
	VariantName string    `json:"variant_name"`
	ExitTS      time.Time `json:"exit_ts"`
	ExitPrice   float64   `json:"exit_price"`
	PnLUSD      float64   `json:"pnl_usd"`
	ExitReason  string    `json:"reason_exit"`
}

// EntryContext 是编排层在提交开仓单前挂起的上下文，
// 开仓成交到达时由 Tracker 取用。
type EntryContext struct {
	TradeID     string  `json:"trade_id,omitempty"`
	RangeHigh   float64 `json:"range_high"`
	RangeLow    float64 `json:"range_low"`
	RiskPerUnit float64 `json:"risk_per_unit"`
	StopPrice   float64 `json:"stop_price"`
	TakeProfit  float64 `json:"tp_price"`
	EntryReason string  `json:"entry_reason"`
	FlatTime    string  `json:"flat_time,omitempty"`
}
