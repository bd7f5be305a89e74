// Package model 定义交易日志库的 gorm 表结构。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// TradeModel 对应 trade_journal 表，trade_id 幂等 upsert。
type TradeModel struct {
	TradeID     string     `gorm:"column:trade_id;primaryKey"`
	InstanceID  string     `gorm:"column:instance_id;index"`
	Strategy    string     `gorm:"column:strategy"`
	Symbol      string     `gorm:"column:symbol;index"`
	EntryTS     time.Time  `gorm:"column:entry_ts"`
	EntryPrice  float64    `gorm:"column:entry_price"`
	EntrySide   string     `gorm:"column:entry_side"`
	EntryReason string     `gorm:"column:entry_reason"`
	ExitTS      *time.Time `gorm:"column:exit_ts"`
	ExitPrice   *float64   `gorm:"column:exit_price"`
	ExitReason  string     `gorm:"column:exit_reason"`
	Qty         int        `gorm:"column:qty"`
	PnLUSD      *float64   `gorm:"column:pnl_usd"`
	RangeHigh   float64    `gorm:"column:range_high"`
	RangeLow    float64    `gorm:"column:range_low"`
	RiskPerUnit float64    `gorm:"column:risk_per_unit"`
}

func (TradeModel) TableName() string { return "trade_journal" }

// TradeMetricsModel 对应 trade_metrics 表，与 trade_journal 一一对应。
type TradeMetricsModel struct {
	TradeID         string   `gorm:"column:trade_id;primaryKey"`
	DurationSeconds float64  `gorm:"column:duration_seconds"`
	MAE             float64  `gorm:"column:mae"`
	MFE             float64  `gorm:"column:mfe"`
	RMultiple       *float64 `gorm:"column:r_multiple"`
}

func (TradeMetricsModel) TableName() string { return "trade_metrics" }

// TradeShadowModel 对应 trade_shadow 表，(trade_id, variant_name) 唯一。
type TradeShadowModel struct {
	TradeID     string    `gorm:"column:trade_id;primaryKey"`
	VariantName string    `gorm:"column:variant_name;primaryKey"`
	ExitTS      time.Time `gorm:"column:exit_ts"`
	ExitPrice   float64   `gorm:"column:exit_price"`
	PnLUSD      float64   `gorm:"column:pnl_usd"`
	ReasonExit  string    `gorm:"column:reason_exit"`
}

func (TradeShadowModel) TableName() string { return "trade_shadow" }

// StrategyDailyModel 对应 strategy_daily 表，(day, symbol, strategy) 唯一。
type StrategyDailyModel struct {
	Day               string         `gorm:"column:day;primaryKey"`
	Symbol            string         `gorm:"column:symbol;primaryKey"`
	Strategy          string         `gorm:"column:strategy;primaryKey"`
	Timezone          string         `gorm:"column:timezone"`
	RangeStart        string         `gorm:"column:range_start"`
	RangeEnd          string         `gorm:"column:range_end"`
	EntryStart        string         `gorm:"column:entry_start"`
	EntryEnd          string         `gorm:"column:entry_end"`
	HasRange          bool           `gorm:"column:has_range"`
	RangeHigh         float64        `gorm:"column:range_high"`
	RangeLow          float64        `gorm:"column:range_low"`
	RangeBars         int            `gorm:"column:range_bars"`
	SignalsCount      int            `gorm:"column:signals_count"`
	EntriesCount      int            `gorm:"column:entries_count"`
	ExitsCount        int            `gorm:"column:exits_count"`
	TradesClosedCount int            `gorm:"column:trades_closed_count"`
	Notes             datatypes.JSON `gorm:"column:notes_json"`
}

func (StrategyDailyModel) TableName() string { return "strategy_daily" }

// OrderModel 对应 orders 表。
type OrderModel struct {
	ClientOrderID string    `gorm:"column:client_order_id;primaryKey"`
	BrokerOrderID string    `gorm:"column:broker_order_id;index"`
	Symbol        string    `gorm:"column:symbol"`
	Side          string    `gorm:"column:side"`
	Qty           int       `gorm:"column:qty"`
	OrderType     string    `gorm:"column:order_type"`
	LimitPrice    float64   `gorm:"column:limit_price"`
	Tag           string    `gorm:"column:tag;index"`
	Status        string    `gorm:"column:status;index"`
	CreatedTS     time.Time `gorm:"column:created_ts"`
	UpdatedTS     time.Time `gorm:"column:updated_ts"`
}

func (OrderModel) TableName() string { return "orders" }

// BarModel 对应 bars_1m 表，(symbol, ts) 唯一。
type BarModel struct {
	ID       int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TS       time.Time `gorm:"column:ts;uniqueIndex:idx_bars_symbol_ts"`
	Symbol   string    `gorm:"column:symbol;uniqueIndex:idx_bars_symbol_ts"`
	Open     float64   `gorm:"column:open"`
	High     float64   `gorm:"column:high"`
	Low      float64   `gorm:"column:low"`
	Close    float64   `gorm:"column:close"`
	Volume   float64   `gorm:"column:volume"`
	Snapshot bool      `gorm:"column:is_snapshot"`
}

func (BarModel) TableName() string { return "bars_1m" }
