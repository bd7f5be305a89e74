// Package ledger 维护单合约的持仓与盈亏账本：
// 持仓方向由数量符号表达，已实现盈亏只在减仓/平仓时变动。
package ledger

import (
	"math"
	"sync"

	"rangebot/internal/logger"
	"rangebot/internal/market"
)

// Snapshot 是某一时刻的账本快照。
type Snapshot struct {
	Symbol        string  `json:"symbol"`
	Position      int     `json:"position"`
	AvgPrice      float64 `json:"avg_price"`
	LastPrice     float64 `json:"last_price"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Commissions   float64 `json:"commissions"`
}

// Total 返回 已实现+未实现-手续费，风控的日内亏损检查用这个口径。
func (s Snapshot) Total() float64 {
	return s.RealizedPnL + s.UnrealizedPnL - s.Commissions
}

// Ledger 是成交事件驱动的持仓账本。调用方负责按 ExecID 去重，
// 账本假定每条成交恰好应用一次。
type Ledger struct {
	mu         sync.Mutex
	symbol     string
	multiplier float64

	position    int
	avgPrice    float64
	lastPrice   float64
	realized    float64
	commissions float64
}

// New 创建指定合约的账本。multiplier 是 1.0 价格变动对应的每手金额。
func New(symbol string, multiplier float64) *Ledger {
	if multiplier <= 0 {
		multiplier = 1
	}
	return &Ledger{symbol: symbol, multiplier: multiplier, lastPrice: math.NaN()}
}

// OnFill 应用一条成交。同向或空仓时做数量加权均价；反向时先对
// min(|持仓|,|成交|) 的平仓部分计已实现盈亏，翻仓后残余均价简化为
// 本次成交价（不是严格的重建成本，沿用既有口径）。
func (l *Ledger) OnFill(fill market.Fill) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if fill.Symbol != "" && fill.Symbol != l.symbol {
		logger.Warnf("账本忽略其它合约的成交: got=%s want=%s", fill.Symbol, l.symbol)
		return
	}
	delta := fill.SignedQty()
	if delta == 0 {
		return
	}
	l.commissions += fill.Commission

	before := l.position
	switch {
	case before == 0 || sameSign(before, delta):
		total := abs(before) + abs(delta)
		l.avgPrice = (l.avgPrice*float64(abs(before)) + fill.Price*float64(abs(delta))) / float64(total)
		l.position = before + delta
	default:
		closing := min(abs(before), abs(delta))
		if before > 0 {
			l.realized += (fill.Price - l.avgPrice) * float64(closing) * l.multiplier
		} else {
			l.realized += (l.avgPrice - fill.Price) * float64(closing) * l.multiplier
		}
		l.position = before + delta
		switch {
		case l.position == 0:
			l.avgPrice = 0
		case !sameSign(before, l.position):
			l.avgPrice = fill.Price
		}
	}
	l.lastPrice = fill.Price
	logger.Debugf("账本成交: %s %s %d@%.4f 持仓 %d→%d 均价=%.4f 已实现=%.2f",
		l.symbol, fill.Side, fill.Qty, fill.Price, before, l.position, l.avgPrice, l.realized)
}

// AddCommission 追加手续费（券商佣金回报常常晚于成交到达）。
func (l *Ledger) AddCommission(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commissions += amount
}

// MarkPrice 更新最新标记价，供未实现盈亏计算。无效价被忽略。
func (l *Ledger) MarkPrice(price float64) {
	if !market.IsValidPrice(price) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastPrice = price
}

// Position 返回当前带符号持仓。
func (l *Ledger) Position() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

// Snapshot 返回当前账本快照。空仓或没有有效标记价时未实现盈亏为 0。
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		Symbol:      l.symbol,
		Position:    l.position,
		AvgPrice:    l.avgPrice,
		LastPrice:   l.lastPrice,
		RealizedPnL: l.realized,
		Commissions: l.commissions,
	}
	if l.position != 0 && market.IsValidPrice(l.lastPrice) {
		if l.position > 0 {
			snap.UnrealizedPnL = (l.lastPrice - l.avgPrice) * float64(l.position) * l.multiplier
		} else {
			snap.UnrealizedPnL = (l.avgPrice - l.lastPrice) * float64(-l.position) * l.multiplier
		}
	}
	return snap
}

func sameSign(a, b int) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
