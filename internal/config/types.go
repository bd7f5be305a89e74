package config

import "strings"

// Config 是 rangebot 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Storage    StorageConfig    `toml:"storage"`
	Runtime    RuntimeConfig    `toml:"runtime"`
	Instrument InstrumentConfig `toml:"instrument"`
	Risk       RiskConfig       `toml:"risk"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Broker     BrokerConfig     `toml:"broker"`
	Datafeed   DatafeedConfig   `toml:"datafeed"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
	Trading    TradingConfig    `toml:"trading"`
	HTTP       HTTPConfig       `toml:"http"`
	Report     ReportConfig     `toml:"report"`
	Profiles   ProfilesConfig   `toml:"profiles"`
}

type AppConfig struct {
	Env      string `toml:"env"` // "paper" | "live"
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	LogJSON  bool   `toml:"log_json"`
}

// IsLive 判断是否实盘环境（对账 CANCEL 策略会因此升级为 HALT）。
func (a AppConfig) IsLive() bool {
	return strings.EqualFold(strings.TrimSpace(a.Env), "live")
}

type StorageConfig struct {
	JournalPath  string `toml:"journal_path"`   // gorm+sqlite 交易日志库
	EventLogPath string `toml:"event_log_path"` // 信号/PnL 快照追加日志
}

type RuntimeConfig struct {
	HeartbeatSeconds float64 `toml:"heartbeat_seconds"`
	InstanceID       string  `toml:"instance_id"`
}

type InstrumentConfig struct {
	Symbol     string  `toml:"symbol"`
	Exchange   string  `toml:"exchange"`
	Currency   string  `toml:"currency"`
	Multiplier float64 `toml:"multiplier"` // 1.0 价格变动对应的每手美元
	MinTick    float64 `toml:"min_tick"`
}

type RiskConfig struct {
	MaxPosition     int     `toml:"max_position"`
	MaxOrderSize    int     `toml:"max_order_size"`
	MaxDailyLossUSD float64 `toml:"max_daily_loss_usd"`
}

type StrategyConfig struct {
	Type     string         `toml:"type"` // "noop" | "breakout"
	Breakout BreakoutConfig `toml:"breakout"`
}

// Window 是本地时间的闭区间窗口，格式 HH:MM。
type Window struct {
	Start string `toml:"start"`
	End   string `toml:"end"`
}

type BreakEvenConfig struct {
	Enabled     bool    `toml:"enabled"`
	TriggerR    float64 `toml:"trigger_r"`
	OffsetTicks int     `toml:"offset_ticks"`
}

type ShadowConfig struct {
	Enabled             bool    `toml:"enabled"`
	VariantBTakeProfitR float64 `toml:"variant_b_tp_r"`
	VariantCStopR       float64 `toml:"variant_c_sl_tight_r"`
}

type BreakoutConfig struct {
	Timezone            string          `toml:"timezone"`
	RangeWindow         Window          `toml:"range_window"`
	EntryWindow         Window          `toml:"entry_window"`
	FlatTime            string          `toml:"flat_time"`
	BreakoutBufferTicks int             `toml:"breakout_buffer_ticks"`
	StopBufferTicks     int             `toml:"sl_buffer_ticks"`
	TakeProfitR         float64         `toml:"tp_r"`
	BreakEven           BreakEvenConfig `toml:"be"`
	Shadow              ShadowConfig    `toml:"shadow_variants"`
	MaxTradesPerDay     int             `toml:"max_trades_per_day"`
	AllowShort          bool            `toml:"allow_short"`
	Qty                 int             `toml:"qty"`
}

type BrokerConfig struct {
	Type     string `toml:"type"`      // "sim"
	OrderTag string `toml:"order_tag"` // 本进程订单命名空间前缀
}

type DatafeedConfig struct {
	Type         string `toml:"type"` // "none" | "binance"
	RESTBaseURL  string `toml:"rest_base_url"`
	BackfillBars int    `toml:"backfill_bars"`
	Interval     string `toml:"interval"`
	Stream       bool   `toml:"stream"` // 把 websocket 实时 K 线喂进交易循环
}

type ReconcileConfig struct {
	UnknownOrdersPolicy string `toml:"unknown_orders_policy"` // "halt" | "ignore" | "cancel"
}

// TradingConfig 控制只读模式与实盘闸门。
type TradingConfig struct {
	Enabled   bool `toml:"enabled"`
	AllowLive bool `toml:"allow_live"`
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type ReportConfig struct {
	OutputDir     string `toml:"output_dir"`
	ChartSnapshot bool   `toml:"chart_snapshot"` // 需要本机可用的 headless Chrome
}

type ProfilesConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}
