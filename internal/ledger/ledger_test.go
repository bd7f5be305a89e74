package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rangebot/internal/market"
)

func fill(side market.Side, qty int, price float64) market.Fill {
	return market.Fill{
		TS:     time.Now().UTC(),
		Symbol: "MGC",
		Side:   side,
		Qty:    qty,
		Price:  price,
	}
}

func TestRoundTripRealized(t *testing.T) {
	l := New("MGC", 1)
	l.OnFill(fill(market.SideBuy, 2, 100))
	l.OnFill(fill(market.SideSell, 2, 110))

	snap := l.Snapshot()
	assert.Equal(t, 0, snap.Position)
	assert.InDelta(t, 20.0, snap.RealizedPnL, 1e-9)
	assert.InDelta(t, 0.0, snap.UnrealizedPnL, 1e-9)
	assert.Equal(t, 0.0, snap.AvgPrice)
}

func TestShortUnrealized(t *testing.T) {
	l := New("MGC", 1)
	l.OnFill(fill(market.SideSell, 1, 200))
	l.MarkPrice(190)

	snap := l.Snapshot()
	assert.Equal(t, -1, snap.Position)
	assert.InDelta(t, 10.0, snap.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 0.0, snap.RealizedPnL, 1e-9)
}

func TestScaleInBlendsAverage(t *testing.T) {
	l := New("MGC", 10)
	l.OnFill(fill(market.SideBuy, 1, 100))
	l.OnFill(fill(market.SideBuy, 1, 110))

	snap := l.Snapshot()
	assert.Equal(t, 2, snap.Position)
	assert.InDelta(t, 105.0, snap.AvgPrice, 1e-9)
}

func TestPartialReduceRealizesClosingPortion(t *testing.T) {
	l := New("MGC", 10)
	l.OnFill(fill(market.SideBuy, 2, 100))
	l.OnFill(fill(market.SideSell, 1, 104))

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.Position)
	assert.InDelta(t, 40.0, snap.RealizedPnL, 1e-9) // (104-100)*1*10
	assert.InDelta(t, 100.0, snap.AvgPrice, 1e-9)
}

func TestFlipResetsAverageToFillPrice(t *testing.T) {
	l := New("MGC", 10)
	l.OnFill(fill(market.SideBuy, 1, 100))
	l.OnFill(fill(market.SideSell, 2, 105))

	snap := l.Snapshot()
	assert.Equal(t, -1, snap.Position)
	assert.InDelta(t, 50.0, snap.RealizedPnL, 1e-9)
	assert.InDelta(t, 105.0, snap.AvgPrice, 1e-9)
}

func TestCommissionAccumulates(t *testing.T) {
	l := New("MGC", 1)
	f := fill(market.SideBuy, 1, 100)
	f.Commission = 1.5
	l.OnFill(f)
	l.AddCommission(0.5)

	snap := l.Snapshot()
	assert.InDelta(t, 2.0, snap.Commissions, 1e-9)
	assert.InDelta(t, -2.0, snap.Total()-snap.UnrealizedPnL, 1e-9)
}

// 相同且已去重的成交序列重放两次应得到相同终态。
func TestIdempotentFold(t *testing.T) {
	seq := []market.Fill{
		fill(market.SideBuy, 2, 100),
		fill(market.SideSell, 1, 103),
		fill(market.SideSell, 2, 98),
		fill(market.SideBuy, 1, 99),
	}
	run := func() Snapshot {
		l := New("MGC", 10)
		for _, f := range seq {
			l.OnFill(f)
		}
		return l.Snapshot()
	}
	assert.Equal(t, run(), run())
}

func TestIgnoresForeignSymbol(t *testing.T) {
	l := New("MGC", 1)
	f := fill(market.SideBuy, 1, 100)
	f.Symbol = "ES"
	l.OnFill(f)
	assert.Equal(t, 0, l.Position())
}
