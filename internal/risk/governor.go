// Package risk 提供下单前的仓位/单量闸门和日内亏损熔断。
// 熔断是终态：一旦触发，进程重启之前不再接受任何订单。
package risk

import (
	"fmt"
	"sync"

	"rangebot/internal/ledger"
	"rangebot/internal/logger"
	"rangebot/internal/market"
)

// Limits 是风控参数。
type Limits struct {
	MaxPosition     int
	MaxOrderSize    int
	MaxDailyLossUSD float64
}

// Result 是单笔订单的风控裁决。
type Result struct {
	Accepted bool
	Reason   string
}

func accepted() Result { return Result{Accepted: true} }

func rejected(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Governor 持有全局唯一的熔断标志。
type Governor struct {
	mu         sync.Mutex
	limits     Limits
	halted     bool
	haltReason string
}

// New 创建风控。
func New(limits Limits) *Governor {
	return &Governor{limits: limits}
}

// EvaluateOrder 做纯前置检查，不改变熔断状态。
func (g *Governor) EvaluateOrder(intent market.OrderIntent, currentPosition int) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.halted {
		return rejected("已熔断: %s", g.haltReason)
	}
	qty := intent.Qty
	if qty < 0 {
		qty = -qty
	}
	if qty > g.limits.MaxOrderSize {
		return rejected("单笔数量 %d 超过上限 %d", qty, g.limits.MaxOrderSize)
	}
	after := currentPosition + intent.Side.Sign()*qty
	if after < 0 {
		after = -after
	}
	if after > g.limits.MaxPosition {
		return rejected("成交后持仓 %d 将超过上限 %d", after, g.limits.MaxPosition)
	}
	return accepted()
}

// EvaluatePnL 检查日内亏损：realized+unrealized-commissions 触及
// -maxDailyLoss 即熔断。熔断单调，不会自动恢复。
func (g *Governor) EvaluatePnL(snap ledger.Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.halted {
		return
	}
	total := snap.Total()
	if total <= -g.limits.MaxDailyLossUSD {
		g.haltLocked(fmt.Sprintf("日内亏损 %.2f 触及上限 %.2f", total, g.limits.MaxDailyLossUSD))
	}
}

// Halt 由外部（对账等）触发熔断，幂等。
func (g *Governor) Halt(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.halted {
		return
	}
	g.haltLocked(reason)
}

func (g *Governor) haltLocked(reason string) {
	g.halted = true
	g.haltReason = reason
	logger.Errorf("风控熔断: %s", reason)
}

// Halted 返回当前熔断状态及原因。
func (g *Governor) Halted() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted, g.haltReason
}
