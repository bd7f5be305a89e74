// Package trader 是单合约的编排层：心跳驱动轮询券商事件，
// 把 K 线喂给策略、信号过风控、成交进账本和生命周期跟踪。
// 所有组件状态都归本实例所有，按合约串行调用，内部不做并发。
package trader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rangebot/internal/broker"
	"rangebot/internal/config"
	"rangebot/internal/journal"
	"rangebot/internal/ledger"
	"rangebot/internal/logger"
	"rangebot/internal/market"
	"rangebot/internal/reconcile"
	"rangebot/internal/risk"
	"rangebot/internal/store/eventlog"
	"rangebot/internal/store/gormstore"
	"rangebot/internal/strategy"
)

// Trader 持有一轮交易所需的全部协作组件。
type Trader struct {
	cfg      *config.Config
	broker   broker.Broker
	strat    strategy.Strategy
	led      *ledger.Ledger
	gov      *risk.Governor
	tracker  *journal.Tracker
	dailyAgg *journal.DailyAggregator
	store    *gormstore.Store
	events   *eventlog.Store

	pendingEntry   *journal.EntryContext
	extBars        <-chan market.Bar
	lastBar        *market.Bar
	barCounter     int
	snapshotCount  int
	snapshotLogged bool
	tradingEnabled bool
}

// New 组装编排层。
func New(
	cfg *config.Config,
	b broker.Broker,
	strat strategy.Strategy,
	led *ledger.Ledger,
	gov *risk.Governor,
	tracker *journal.Tracker,
	dailyAgg *journal.DailyAggregator,
	store *gormstore.Store,
	events *eventlog.Store,
) *Trader {
	return &Trader{
		cfg:            cfg,
		broker:         b,
		strat:          strat,
		led:            led,
		gov:            gov,
		tracker:        tracker,
		dailyAgg:       dailyAgg,
		store:          store,
		events:         events,
		tradingEnabled: cfg.Trading.Enabled,
	}
}

// Start 连接券商并执行启动对账。对账触发熔断时返回错误，
// 由调用方决定是否继续以只读方式运行。
func (t *Trader) Start() error {
	if !t.tradingEnabled {
		logger.Warnf("交易已禁用，只读模式运行")
	} else if t.cfg.App.IsLive() {
		logger.Warnf("实盘交易已启用: env=%s", t.cfg.App.Env)
	}
	if err := t.broker.Connect(); err != nil {
		return fmt.Errorf("连接券商失败: %w", err)
	}
	report := reconcile.Run(t.broker, t.store, t.led, t.gov, reconcile.Config{
		Symbol:              t.cfg.Instrument.Symbol,
		OrderTag:            t.cfg.Broker.OrderTag,
		UnknownOrdersPolicy: t.cfg.Reconcile.UnknownOrdersPolicy,
		Live:                t.cfg.App.IsLive(),
	})
	if report.Halted {
		return fmt.Errorf("启动对账触发熔断: %s", strings.Join(report.HaltReasons, "; "))
	}
	return nil
}

// Stop 断开券商连接。
func (t *Trader) Stop() {
	if err := t.broker.Disconnect(); err != nil {
		logger.Warnf("断开券商连接失败: %v", err)
	}
}

// Run 以配置的心跳间隔循环执行 Step，直到 ctx 取消或熔断。
func (t *Trader) Run(ctx context.Context) error {
	interval := time.Duration(t.cfg.Runtime.HeartbeatSeconds * float64(time.Second))
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !t.Step() {
				halted, reason := t.gov.Halted()
				if halted {
					return fmt.Errorf("风控熔断，停止交易循环: %s", reason)
				}
				return nil
			}
		}
	}
}

// AttachBarFeed 挂接外部行情流。通道里的 K 线在下一次心跳内
// 与券商事件同线程消费，核心保持串行。
func (t *Trader) AttachBarFeed(ch <-chan market.Bar) {
	t.extBars = ch
}

// drainBarFeed 非阻塞地取完行情流里已到的 K 线；通道关闭后摘除。
func (t *Trader) drainBarFeed() {
	for t.extBars != nil {
		select {
		case bar, ok := <-t.extBars:
			if !ok {
				logger.Warnf("外部行情流已关闭")
				t.extBars = nil
				return
			}
			t.onBar(bar)
		default:
			return
		}
	}
}

// Step 执行一轮心跳：轮询券商事件、写账户快照、做盈亏风控。
// 返回 false 表示应当停止循环。
func (t *Trader) Step() bool {
	t.drainBarFeed()
	t.broker.PollBars(t.onBar)
	t.broker.PollOrderStatus(t.onOrderStatus)
	t.broker.PollFills(t.onFill)
	t.broker.PollCommissions(t.onCommission)

	snap := t.led.Snapshot()
	if err := t.events.InsertPnLSnapshot(eventlog.PnLSnapshot{
		TS:            time.Now().UTC(),
		Symbol:        snap.Symbol,
		PositionQty:   snap.Position,
		AvgPrice:      snap.AvgPrice,
		LastPrice:     snap.LastPrice,
		UnrealizedUSD: snap.UnrealizedPnL,
		RealizedUSD:   snap.RealizedPnL,
		Commissions:   snap.Commissions,
	}); err != nil {
		logger.Warnf("账户快照落库失败: %v", err)
	}

	t.gov.EvaluatePnL(snap)
	halted, _ := t.gov.Halted()
	return !halted
}

// onBar 处理一根 K 线：落库、喂策略、持久化日状态、分发信号。
func (t *Trader) onBar(bar market.Bar) {
	t.lastBar = &bar
	if err := t.store.UpsertBar(bar); err != nil {
		logger.Warnf("K 线落库失败: %v", err)
	}
	if bar.Snapshot {
		t.snapshotCount++
	} else {
		if t.snapshotCount > 0 && !t.snapshotLogged {
			logger.Infof("历史 K 线回放完成: %s count=%d", bar.Symbol, t.snapshotCount)
			t.snapshotLogged = true
		}
		t.barCounter++
		if t.barCounter == 1 || t.barCounter%20 == 0 {
			logger.Debugf("K 线: %s ts=%s close=%.4f n=%d",
				bar.Symbol, bar.TS.Format(time.RFC3339), bar.Close, t.barCounter)
		}
	}
	t.led.MarkPrice(bar.Close)

	sig := t.strat.OnBar(bar, t.led.Position())
	ctx := t.strat.Context()

	// 无论有没有信号，日状态都要持续刷进存储。
	if state, ok := t.strat.DailyState(); ok {
		t.dailyAgg.Update(state)
	}
	for _, day := range t.strat.ConsumeCompletedDays() {
		t.dailyAgg.Update(day)
	}

	if sig == nil {
		return
	}
	switch ctx.Kind {
	case strategy.ContextEntry:
		entry := ctx.Entry
		t.pendingEntry = &journal.EntryContext{
			TradeID:     newTradeID(),
			RangeHigh:   entry.RangeHigh,
			RangeLow:    entry.RangeLow,
			RiskPerUnit: entry.RiskPerUnit,
			StopPrice:   entry.StopPrice,
			TakeProfit:  entry.TakeProfit,
			EntryReason: entry.Reason,
			FlatTime:    t.cfg.Strategy.Breakout.FlatTime,
		}
	case strategy.ContextExit:
		t.tracker.SetExitReason(sig.Reason)
	}
	t.recordSignal(*sig, bar, ctx)
	t.handleSignal(*sig)
}

func (t *Trader) recordSignal(sig market.Signal, bar market.Bar, ctx strategy.Context) {
	kind := string(ctx.Kind)
	if kind == "" {
		kind = "signal"
	}
	if err := t.events.InsertSignal(eventlog.SignalRecord{
		TS:       sig.TS,
		Symbol:   sig.Symbol,
		Strategy: t.strat.Name(),
		Type:     kind,
		Side:     string(sig.Side),
		Qty:      sig.Qty,
		Reason:   sig.Reason,
		PriceRef: bar.Close,
		BarTS:    bar.TS,
		Snapshot: bar.Snapshot,
		Extras:   ctx,
	}); err != nil {
		logger.Warnf("信号落库失败: %v", err)
	}
}

// handleSignal 把信号变成订单：风控放行后登记并提交给券商。
func (t *Trader) handleSignal(sig market.Signal) {
	if !t.tradingEnabled {
		logger.Infof("交易禁用，跳过下单: %s %s x%d (%s)", sig.Symbol, sig.Side, sig.Qty, sig.Reason)
		return
	}
	intent := market.OrderIntent{
		TS:            time.Now().UTC(),
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Qty:           sig.Qty,
		OrderType:     "MKT",
		ClientOrderID: newClientOrderID(),
		Tag:           t.cfg.Broker.OrderTag,
	}
	if res := t.gov.EvaluateOrder(intent, t.led.Position()); !res.Accepted {
		logger.Warnf("风控拒单: %s (%s)", res.Reason, sig.Reason)
		return
	}
	if err := t.store.InsertOrder(intent); err != nil {
		logger.Errorf("订单登记失败: %v", err)
		return
	}
	ack, err := t.broker.PlaceOrder(intent)
	if err != nil {
		logger.Errorf("下单失败: client=%s err=%v", intent.ClientOrderID, err)
		return
	}
	if err := t.store.UpdateOrderAck(intent.ClientOrderID, ack.BrokerOrderID); err != nil {
		logger.Warnf("订单回执落库失败: %v", err)
	}
	logger.Infof("订单已提交: client=%s broker=%s %s x%d",
		intent.ClientOrderID, ack.BrokerOrderID, intent.Side, intent.Qty)
}

// onFill 处理一条成交：订单状态、账本、成交流水、生命周期。
func (t *Trader) onFill(fill market.Fill) {
	if err := t.store.UpdateOrderStatus(fill.ClientOrderID, market.OrderStatusFilled, fill.BrokerOrderID); err != nil {
		logger.Warnf("订单状态更新失败: %v", err)
	}
	logger.Infof("成交: %s %s %d@%.4f client=%s", fill.Symbol, fill.Side, fill.Qty, fill.Price, fill.ClientOrderID)

	before := t.led.Position()
	t.led.OnFill(fill)
	after := t.led.Position()
	if _, err := t.events.InsertFill(fill); err != nil {
		logger.Warnf("成交流水落库失败: %v", err)
	}

	if t.pendingEntry != nil {
		t.tracker.SetPendingContext(*t.pendingEntry)
	}
	t.tracker.OnFill(fill, before, after)
	if after == 0 {
		t.pendingEntry = nil
	}
}

func (t *Trader) onOrderStatus(update market.OrderStatusUpdate) {
	if err := t.store.UpdateOrderStatus(update.ClientOrderID, update.Status, update.BrokerOrderID); err != nil {
		logger.Warnf("订单状态更新失败: %v", err)
	}
}

// onCommission 佣金回报常晚于成交到达，补写流水并同步进账本。
func (t *Trader) onCommission(execID string, commission float64) {
	updated, err := t.events.UpdateFillCommission(execID, commission)
	if err != nil {
		logger.Warnf("佣金补写失败: exec=%s err=%v", execID, err)
		return
	}
	if updated {
		t.led.AddCommission(commission)
		logger.Debugf("佣金已补写: exec=%s amount=%.4f", execID, commission)
	}
}

func newClientOrderID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func newTradeID() string {
	return "trade-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
