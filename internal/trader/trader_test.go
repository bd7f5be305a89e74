package trader

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangebot/internal/broker"
	"rangebot/internal/config"
	"rangebot/internal/journal"
	"rangebot/internal/ledger"
	"rangebot/internal/market"
	"rangebot/internal/risk"
	"rangebot/internal/store/eventlog"
	"rangebot/internal/store/gormstore"
	"rangebot/internal/strategy"
)

type fixture struct {
	trader *Trader
	sim    *broker.Sim
	led    *ledger.Ledger
	gov    *risk.Governor
	store  *gormstore.Store
	events *eventlog.Store
}

func newFixture(t *testing.T, tradingEnabled bool) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := gormstore.NewStore(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	events, err := eventlog.NewStore(filepath.Join(dir, "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	cfg := &config.Config{}
	cfg.App.Env = "paper"
	cfg.Instrument = config.InstrumentConfig{Symbol: "MGC", Multiplier: 10, MinTick: 0.1}
	cfg.Risk = config.RiskConfig{MaxPosition: 1, MaxOrderSize: 1, MaxDailyLossUSD: 100}
	cfg.Runtime.HeartbeatSeconds = 0.01
	cfg.Broker.OrderTag = "rangebot"
	cfg.Reconcile.UnknownOrdersPolicy = "halt"
	cfg.Trading.Enabled = tradingEnabled

	led := ledger.New("MGC", 10)
	gov := risk.New(risk.Limits{MaxPosition: 1, MaxOrderSize: 1, MaxDailyLossUSD: 100})
	loc, _ := time.LoadLocation("America/New_York")
	dailyAgg := journal.NewDailyAggregator(store, "MGC", "breakout")
	tracker := journal.NewTracker(journal.TrackerConfig{
		InstanceID: "test-1",
		Strategy:   "breakout",
		Symbol:     "MGC",
		Multiplier: 10,
		Location:   loc,
	}, store, store, dailyAgg.OnTradeClosed)

	sim := broker.NewSim("MGC")
	tr := New(cfg, sim, &strategy.Noop{}, led, gov, tracker, dailyAgg, store, events)
	return &fixture{trader: tr, sim: sim, led: led, gov: gov, store: store, events: events}
}

func TestStartRunsReconcileClean(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.trader.Start())
	f.trader.Stop()
}

func TestStartFailsWhenReconcileHalts(t *testing.T) {
	f := newFixture(t, true)
	f.sim.SeedPosition("MGC", 2, 2000)
	err := f.trader.Start()
	require.Error(t, err)
	halted, _ := f.gov.Halted()
	assert.True(t, halted)
}

func TestHandleSignalPlacesOrderAndTracksFill(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.trader.Start())
	f.sim.SetLastPrice(2000)

	f.trader.handleSignal(market.Signal{
		TS: time.Now().UTC(), Symbol: "MGC", Side: market.SideBuy, Qty: 1, Reason: "orb_entry_long",
	})
	require.True(t, f.trader.Step())

	assert.Equal(t, 1, f.led.Position())
	trades, err := f.store.RecentTrades(10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "BUY", trades[0].EntrySide)
	assert.Nil(t, trades[0].ExitTS)

	// 平仓信号走完整生命周期
	f.trader.tracker.SetExitReason("orb_flat_time")
	f.trader.handleSignal(market.Signal{
		TS: time.Now().UTC(), Symbol: "MGC", Side: market.SideSell, Qty: 1, Reason: "orb_flat_time",
	})
	require.True(t, f.trader.Step())

	assert.Equal(t, 0, f.led.Position())
	trades, err = f.store.RecentTrades(10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.NotNil(t, trades[0].ExitTS)
	assert.Equal(t, "orb_flat_time", trades[0].ExitReason)
}

func TestTradingDisabledSkipsOrders(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.trader.Start())

	f.trader.handleSignal(market.Signal{
		TS: time.Now().UTC(), Symbol: "MGC", Side: market.SideBuy, Qty: 1, Reason: "orb_entry_long",
	})
	f.trader.Step()

	assert.Equal(t, 0, f.led.Position())
	orders, err := f.store.OpenOrders()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRiskRejectionBlocksSubmission(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.trader.Start())

	// 超出单笔上限(1)
	f.trader.handleSignal(market.Signal{
		TS: time.Now().UTC(), Symbol: "MGC", Side: market.SideBuy, Qty: 2, Reason: "orb_entry_long",
	})
	f.trader.Step()
	assert.Equal(t, 0, f.led.Position())
}

func TestStepStopsAfterDailyLossHalt(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.trader.Start())
	f.sim.SetLastPrice(2000)
	f.trader.handleSignal(market.Signal{
		TS: time.Now().UTC(), Symbol: "MGC", Side: market.SideBuy, Qty: 1, Reason: "orb_entry_long",
	})
	require.True(t, f.trader.Step())

	// 标记价大跌：1 手 × 乘数 10 × 跌 20 = -200，穿透 -100 上限
	f.led.MarkPrice(1980)
	assert.False(t, f.trader.Step())
	halted, reason := f.gov.Halted()
	assert.True(t, halted)
	assert.Contains(t, reason, "日内亏损")
}

func TestStepDrainsAttachedBarFeed(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.trader.Start())

	ch := make(chan market.Bar, 2)
	f.trader.AttachBarFeed(ch)
	ts := time.Date(2025, 3, 10, 14, 31, 0, 0, time.UTC)
	ch <- market.Bar{TS: ts, Symbol: "MGC", Open: 2000, High: 2001, Low: 1999, Close: 2000.5, Volume: 3}
	require.True(t, f.trader.Step())

	// 外部行情与券商事件同线程消费：K 线已落库、标记价已更新
	bars, err := f.store.BarsBetween("MGC", ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.InDelta(t, 2000.5, f.led.Snapshot().LastPrice, 1e-9)

	// 通道关闭后摘除，心跳不受影响
	close(ch)
	require.True(t, f.trader.Step())
	require.True(t, f.trader.Step())
}

func TestCommissionBackfillReachesLedger(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.trader.Start())
	f.trader.handleSignal(market.Signal{
		TS: time.Now().UTC(), Symbol: "MGC", Side: market.SideBuy, Qty: 1, Reason: "orb_entry_long",
	})
	require.True(t, f.trader.Step())

	snap := f.led.Snapshot()
	assert.Greater(t, snap.Commissions, 0.0) // 模拟券商的延迟佣金已补进账本
}
