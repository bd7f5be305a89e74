package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangebot/internal/config"
	"rangebot/internal/market"
)

func breakoutConfig() config.BreakoutConfig {
	return config.BreakoutConfig{
		Timezone:            "America/New_York",
		RangeWindow:         config.Window{Start: "09:30", End: "09:45"},
		EntryWindow:         config.Window{Start: "09:45", End: "11:30"},
		FlatTime:            "15:55",
		BreakoutBufferTicks: 2,
		StopBufferTicks:     2,
		TakeProfitR:         2.0,
		BreakEven:           config.BreakEvenConfig{Enabled: false},
		MaxTradesPerDay:     1,
		AllowShort:          true,
		Qty:                 1,
	}
}

func newBreakout(t *testing.T, cfg config.BreakoutConfig) *Breakout {
	t.Helper()
	b, err := NewBreakout(cfg, config.InstrumentConfig{Symbol: "MGC", MinTick: 0.1})
	require.NoError(t, err)
	return b
}

// nyBar 构造纽约本地时间的 K 线（内部仍以 UTC 存储）。
func nyBar(t *testing.T, hhmm string, low, high, close float64) market.Bar {
	t.Helper()
	return nyBarSec(t, hhmm+":00", low, high, close)
}

// nyBarSec 同 nyBar，但时间戳精确到秒。
func nyBarSec(t *testing.T, hhmmss string, low, high, close float64) market.Bar {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	local, err := time.ParseInLocation("2006-01-02 15:04:05", "2025-03-10 "+hhmmss, loc)
	require.NoError(t, err)
	return market.Bar{
		TS:     local.UTC(),
		Symbol: "MGC",
		Open:   close,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 100,
	}
}

func TestRangeBuiltOnlyInsideWindow(t *testing.T) {
	b := newBreakout(t, breakoutConfig())

	b.OnBar(nyBar(t, "09:20", 99, 120, 110), 0) // 窗口前，不计入
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)
	b.OnBar(nyBar(t, "09:40", 99.5, 102, 101), 0)

	ctx := b.Context()
	require.Equal(t, ContextRange, ctx.Kind)
	assert.InDelta(t, 99.5, ctx.Range.RangeLow, 1e-9)
	assert.InDelta(t, 102.0, ctx.Range.RangeHigh, 1e-9)
	assert.Equal(t, 2, ctx.Range.RangeBars)
}

func TestBreakBeforeEntryWindowProducesNoSignal(t *testing.T) {
	b := newBreakout(t, breakoutConfig())
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)

	// 区间窗口尚未结束，收盘价已越过上沿也不触发
	sig := b.OnBar(nyBar(t, "09:40", 100, 103, 102.5), 0)
	assert.Nil(t, sig)
}

func TestFirstQualifyingBreakoutEmitsSingleLongEntry(t *testing.T) {
	b := newBreakout(t, breakoutConfig())
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)

	// buffer = 2 ticks = 0.2，需要 close > 101.2
	sig := b.OnBar(nyBar(t, "09:50", 100.8, 101.2, 101.2), 0)
	assert.Nil(t, sig)

	sig = b.OnBar(nyBar(t, "09:51", 101.0, 101.5, 101.3), 0)
	require.NotNil(t, sig)
	assert.Equal(t, market.SideBuy, sig.Side)
	assert.Equal(t, ReasonEntryLong, sig.Reason)
	assert.Equal(t, 1, sig.Qty)

	ctx := b.Context()
	require.Equal(t, ContextEntry, ctx.Kind)
	assert.InDelta(t, 101.3, ctx.Entry.EntryPrice, 1e-9)
	assert.InDelta(t, 99.8, ctx.Entry.StopPrice, 1e-9) // rangeLow 100 - 0.2
	assert.InDelta(t, 1.5, ctx.Entry.RiskPerUnit, 1e-9)
	assert.InDelta(t, 104.3, ctx.Entry.TakeProfit, 1e-9) // entry + 2R

	// 当日交易数已达上限，即便价格继续突破也不再开仓
	sig = b.OnBar(nyBar(t, "09:52", 101.2, 101.8, 101.6), 1)
	assert.Nil(t, sig)
}

func TestShortBreakoutRespectsAllowShort(t *testing.T) {
	cfg := breakoutConfig()
	cfg.AllowShort = false
	b := newBreakout(t, cfg)
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)
	sig := b.OnBar(nyBar(t, "09:50", 99.5, 99.9, 99.6), 0)
	assert.Nil(t, sig)

	b = newBreakout(t, breakoutConfig())
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)
	sig = b.OnBar(nyBar(t, "09:50", 99.5, 99.9, 99.6), 0)
	require.NotNil(t, sig)
	assert.Equal(t, market.SideSell, sig.Side)
	assert.Equal(t, ReasonEntryShort, sig.Reason)
}

func TestSnapshotBarNeverOpensTrade(t *testing.T) {
	b := newBreakout(t, breakoutConfig())
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)

	bar := nyBar(t, "09:51", 101.0, 101.5, 101.3)
	bar.Snapshot = true
	sig := b.OnBar(bar, 0)
	assert.Nil(t, sig)
}

func TestStopWinsOverTakeProfitOnSameBar(t *testing.T) {
	b := newBreakout(t, breakoutConfig())
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)
	sig := b.OnBar(nyBar(t, "09:51", 101.0, 101.5, 101.3), 0)
	require.NotNil(t, sig)

	// 同一根 K 线同时扫过止损(99.8)与止盈(104.3)，按止损出场
	exit := b.OnBar(nyBar(t, "09:52", 99.0, 105.0, 104.0), 1)
	require.NotNil(t, exit)
	assert.Equal(t, market.SideSell, exit.Side)
	assert.Equal(t, ReasonStop, exit.Reason)
	require.Equal(t, ContextExit, b.Context().Kind)
	assert.InDelta(t, 99.8, b.Context().Exit.ExitPrice, 1e-9)
}

func TestFlatTimeExitUsesOppositeSideAndPosition(t *testing.T) {
	b := newBreakout(t, breakoutConfig())
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)
	require.NotNil(t, b.OnBar(nyBar(t, "09:51", 101.0, 101.5, 101.3), 0))

	exit := b.OnBar(nyBar(t, "15:56", 101.5, 102.0, 101.8), 1)
	require.NotNil(t, exit)
	assert.Equal(t, market.SideSell, exit.Side)
	assert.Equal(t, ReasonFlatTime, exit.Reason)
	assert.Equal(t, 1, exit.Qty)
	assert.InDelta(t, 101.8, b.Context().Exit.ExitPrice, 1e-9)
}

func TestBreakEvenArmingRatchetsStopOnce(t *testing.T) {
	cfg := breakoutConfig()
	cfg.BreakEven = config.BreakEvenConfig{Enabled: true, TriggerR: 1.0, OffsetTicks: 1}
	b := newBreakout(t, cfg)
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)
	require.NotNil(t, b.OnBar(nyBar(t, "09:51", 101.0, 101.5, 101.3), 0))
	// entry=101.3 stop=99.8 risk=1.5 → BE 触发价 102.8

	exit := b.OnBar(nyBar(t, "09:55", 101.5, 102.9, 102.5), 1)
	assert.Nil(t, exit)
	require.NotNil(t, b.active)
	assert.True(t, b.active.beArmed)
	assert.InDelta(t, 101.4, b.active.stopPrice, 1e-9) // entry + 1 tick

	// 回落到保本位即止损离场
	exit = b.OnBar(nyBar(t, "09:58", 101.3, 102.0, 101.5), 1)
	require.NotNil(t, exit)
	assert.Equal(t, ReasonStop, exit.Reason)
	assert.InDelta(t, 101.4, b.Context().Exit.ExitPrice, 1e-9)
}

func TestDayRolloverQueuesSummaryAndResets(t *testing.T) {
	b := newBreakout(t, breakoutConfig())
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)
	require.NotNil(t, b.OnBar(nyBar(t, "09:51", 101.0, 101.5, 101.3), 0))
	require.NotNil(t, b.OnBar(nyBar(t, "15:56", 101.5, 102.0, 101.8), 1))

	next := nyBar(t, "09:31", 200, 201, 200.5)
	next.TS = next.TS.Add(24 * time.Hour)
	b.OnBar(next, 0)

	days := b.ConsumeCompletedDays()
	require.Len(t, days, 1)
	assert.Equal(t, "2025-03-10", days[0].Day)
	assert.Equal(t, 1, days[0].Entries)
	assert.Equal(t, 1, days[0].Exits)
	assert.Equal(t, 2, days[0].Signals)
	assert.Empty(t, days[0].Notes)
	assert.Empty(t, b.ConsumeCompletedDays())

	state, ok := b.DailyState()
	require.True(t, ok)
	assert.Equal(t, "2025-03-11", state.Day)
	assert.Equal(t, 0, state.Entries)
	assert.InDelta(t, 200.0, state.RangeLow, 1e-9)
}

func TestWindowBoundariesCountSeconds(t *testing.T) {
	b := newBreakout(t, breakoutConfig())
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)

	// 区间窗口止于 09:45：过界 30 秒的 K 线不再扩展区间
	b.OnBar(nyBarSec(t, "09:45:30", 99.0, 103.0, 100.6), 0)

	// 区间上沿仍是 101，收盘 103 照常触发突破
	sig := b.OnBar(nyBar(t, "09:46", 101.0, 103.2, 103.0), 0)
	require.NotNil(t, sig)
	ctx := b.Context()
	require.Equal(t, ContextEntry, ctx.Kind)
	assert.InDelta(t, 101.0, ctx.Entry.RangeHigh, 1e-9)
	assert.InDelta(t, 100.0, ctx.Entry.RangeLow, 1e-9)
}

func TestEntryWindowEndExcludesLateSeconds(t *testing.T) {
	b := newBreakout(t, breakoutConfig())
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)

	// 入场窗口止于 11:30，11:30:00 整点还在界内
	b2 := newBreakout(t, breakoutConfig())
	b2.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)
	require.NotNil(t, b2.OnBar(nyBarSec(t, "11:30:00", 101.0, 101.6, 101.5), 0))

	// 过界 30 秒的突破不再开仓
	assert.Nil(t, b.OnBar(nyBarSec(t, "11:30:30", 101.0, 101.6, 101.5), 0))
}

func TestNoEntriesDayCarriesNote(t *testing.T) {
	b := newBreakout(t, breakoutConfig())
	b.OnBar(nyBar(t, "09:31", 100, 101, 100.5), 0)

	next := nyBar(t, "09:31", 100, 101, 100.5)
	next.TS = next.TS.Add(24 * time.Hour)
	b.OnBar(next, 0)

	days := b.ConsumeCompletedDays()
	require.Len(t, days, 1)
	assert.Equal(t, "no_entries", days[0].Notes)
}
