package config

// 默认值常量
const (
	defaultAppEnv          = "paper"
	defaultAppLogLevel     = "info"
	defaultAppLogPath      = "run/rangebot.log"
	defaultJournalPath     = "run/journal.db"
	defaultEventLogPath    = "run/events.db"
	defaultHeartbeat       = 2.0
	defaultInstanceID      = "rangebot-1"
	defaultSymbol          = "MGC"
	defaultExchange        = "COMEX"
	defaultCurrency        = "USD"
	defaultMultiplier      = 10.0 // MGC=10，GC=100
	defaultMinTick         = 0.1
	defaultMaxPosition     = 1
	defaultMaxOrderSize    = 1
	defaultMaxDailyLoss    = 100.0
	defaultStrategyType    = "breakout"
	defaultTimezone        = "America/New_York"
	defaultRangeStart      = "09:30"
	defaultRangeEnd        = "09:45"
	defaultEntryStart      = "09:45"
	defaultEntryEnd        = "11:30"
	defaultFlatTime        = "15:55"
	defaultBreakoutBuffer  = 2
	defaultStopBuffer      = 2
	defaultTakeProfitR     = 2.0
	defaultBETriggerR      = 1.0
	defaultBEOffsetTicks   = 1
	defaultShadowBTPR      = 3.0
	defaultShadowCStopR    = 0.5
	defaultMaxTradesPerDay = 1
	defaultQty             = 1
	defaultBrokerType      = "sim"
	defaultOrderTag        = "rangebot"
	defaultDatafeedType    = "none"
	defaultDatafeedREST    = "https://fapi.binance.com"
	defaultBackfillBars    = 0
	defaultFeedInterval    = "1m"
	defaultUnknownPolicy   = "halt"
	defaultHTTPAddr        = ":9881"
	defaultReportDir       = "run/exports"
)

// applyDefaults 为未显式设置的键填入默认值。setKeys 记录了配置文件里
// 真正出现过的键，避免把用户显式写的零值覆盖掉。
func (c *Config) applyDefaults(setKeys keySet) {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.LogPath == "" && !setKeys.has("app.log_path") {
		c.App.LogPath = defaultAppLogPath
	}
	if c.Storage.JournalPath == "" {
		c.Storage.JournalPath = defaultJournalPath
	}
	if c.Storage.EventLogPath == "" {
		c.Storage.EventLogPath = defaultEventLogPath
	}
	if c.Runtime.HeartbeatSeconds <= 0 {
		c.Runtime.HeartbeatSeconds = defaultHeartbeat
	}
	if c.Runtime.InstanceID == "" {
		c.Runtime.InstanceID = defaultInstanceID
	}
	if c.Instrument.Symbol == "" {
		c.Instrument.Symbol = defaultSymbol
	}
	if c.Instrument.Exchange == "" {
		c.Instrument.Exchange = defaultExchange
	}
	if c.Instrument.Currency == "" {
		c.Instrument.Currency = defaultCurrency
	}
	if c.Instrument.Multiplier <= 0 {
		c.Instrument.Multiplier = defaultMultiplier
	}
	if c.Instrument.MinTick <= 0 {
		c.Instrument.MinTick = defaultMinTick
	}
	if c.Risk.MaxPosition <= 0 {
		c.Risk.MaxPosition = defaultMaxPosition
	}
	if c.Risk.MaxOrderSize <= 0 {
		c.Risk.MaxOrderSize = defaultMaxOrderSize
	}
	if c.Risk.MaxDailyLossUSD <= 0 {
		c.Risk.MaxDailyLossUSD = defaultMaxDailyLoss
	}
	if c.Strategy.Type == "" {
		c.Strategy.Type = defaultStrategyType
	}
	c.Strategy.Breakout.applyDefaults(setKeys)
	if c.Broker.Type == "" {
		c.Broker.Type = defaultBrokerType
	}
	if c.Broker.OrderTag == "" {
		c.Broker.OrderTag = defaultOrderTag
	}
	if c.Datafeed.Type == "" {
		c.Datafeed.Type = defaultDatafeedType
	}
	if c.Datafeed.RESTBaseURL == "" {
		c.Datafeed.RESTBaseURL = defaultDatafeedREST
	}
	if c.Datafeed.BackfillBars < 0 {
		c.Datafeed.BackfillBars = defaultBackfillBars
	}
	if c.Datafeed.Interval == "" {
		c.Datafeed.Interval = defaultFeedInterval
	}
	if c.Reconcile.UnknownOrdersPolicy == "" {
		c.Reconcile.UnknownOrdersPolicy = defaultUnknownPolicy
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = defaultHTTPAddr
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = defaultReportDir
	}
}

func (b *BreakoutConfig) applyDefaults(setKeys keySet) {
	if b.Timezone == "" {
		b.Timezone = defaultTimezone
	}
	if b.RangeWindow.Start == "" {
		b.RangeWindow.Start = defaultRangeStart
	}
	if b.RangeWindow.End == "" {
		b.RangeWindow.End = defaultRangeEnd
	}
	if b.EntryWindow.Start == "" {
		b.EntryWindow.Start = defaultEntryStart
	}
	if b.EntryWindow.End == "" {
		b.EntryWindow.End = defaultEntryEnd
	}
	if b.FlatTime == "" {
		b.FlatTime = defaultFlatTime
	}
	if b.BreakoutBufferTicks <= 0 && !setKeys.has("strategy.breakout.breakout_buffer_ticks") {
		b.BreakoutBufferTicks = defaultBreakoutBuffer
	}
	if b.StopBufferTicks <= 0 && !setKeys.has("strategy.breakout.sl_buffer_ticks") {
		b.StopBufferTicks = defaultStopBuffer
	}
	if b.TakeProfitR <= 0 {
		b.TakeProfitR = defaultTakeProfitR
	}
	if !setKeys.has("strategy.breakout.be.enabled") {
		b.BreakEven.Enabled = true
	}
	if !setKeys.has("strategy.breakout.shadow_variants.enabled") {
		b.Shadow.Enabled = true
	}
	if b.BreakEven.TriggerR <= 0 {
		b.BreakEven.TriggerR = defaultBETriggerR
	}
	if b.BreakEven.OffsetTicks < 0 {
		b.BreakEven.OffsetTicks = defaultBEOffsetTicks
	}
	if b.Shadow.VariantBTakeProfitR <= 0 {
		b.Shadow.VariantBTakeProfitR = defaultShadowBTPR
	}
	if b.Shadow.VariantCStopR <= 0 && !setKeys.has("strategy.breakout.shadow_variants.variant_c_sl_tight_r") {
		b.Shadow.VariantCStopR = defaultShadowCStopR
	}
	if b.MaxTradesPerDay <= 0 {
		b.MaxTradesPerDay = defaultMaxTradesPerDay
	}
	if b.Qty <= 0 {
		b.Qty = defaultQty
	}
}
