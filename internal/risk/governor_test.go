package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rangebot/internal/ledger"
	"rangebot/internal/market"
)

func newGovernor() *Governor {
	return New(Limits{MaxPosition: 2, MaxOrderSize: 1, MaxDailyLossUSD: 100})
}

func intent(side market.Side, qty int) market.OrderIntent {
	return market.OrderIntent{Symbol: "MGC", Side: side, Qty: qty, OrderType: "MKT"}
}

func TestEvaluateOrderRejectsOversizedOrder(t *testing.T) {
	g := newGovernor()
	res := g.EvaluateOrder(intent(market.SideBuy, 2), 0)
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "单笔数量")
}

func TestEvaluateOrderRejectsPositionBreach(t *testing.T) {
	g := newGovernor()
	res := g.EvaluateOrder(intent(market.SideBuy, 1), 2)
	assert.False(t, res.Accepted)

	// 反向减仓不会触发持仓上限
	res = g.EvaluateOrder(intent(market.SideSell, 1), 2)
	assert.True(t, res.Accepted)
}

func TestEvaluateOrderAfterHaltAlwaysRejects(t *testing.T) {
	g := newGovernor()
	g.Halt("测试触发")
	res := g.EvaluateOrder(intent(market.SideBuy, 1), 0)
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "已熔断")
}

func TestEvaluatePnLHaltThreshold(t *testing.T) {
	g := newGovernor()

	g.EvaluatePnL(ledger.Snapshot{RealizedPnL: -50, UnrealizedPnL: -40, Commissions: 5})
	halted, _ := g.Halted()
	assert.False(t, halted) // -95 未触及 -100

	g.EvaluatePnL(ledger.Snapshot{RealizedPnL: -50, UnrealizedPnL: -45, Commissions: 5})
	halted, reason := g.Halted()
	assert.True(t, halted)
	assert.Contains(t, reason, "日内亏损")
}

func TestHaltIsMonotonic(t *testing.T) {
	g := newGovernor()
	g.Halt("第一次")
	g.Halt("第二次")
	g.EvaluatePnL(ledger.Snapshot{RealizedPnL: 1000})

	halted, reason := g.Halted()
	assert.True(t, halted)
	assert.Equal(t, "第一次", reason)
}
