package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangebot/internal/market"
)

func TestSimPlaceOrderFillsImmediately(t *testing.T) {
	s := NewSim("MGC")
	require.NoError(t, s.Connect())
	s.SetLastPrice(2000)

	ack, err := s.PlaceOrder(market.OrderIntent{
		Symbol: "MGC", Side: market.SideBuy, Qty: 1, OrderType: "MKT", ClientOrderID: "c-1",
	})
	require.NoError(t, err)
	assert.Equal(t, market.OrderStatusSubmitted, ack.Status)
	assert.NotEmpty(t, ack.BrokerOrderID)

	var fills []market.Fill
	s.PollFills(func(f market.Fill) { fills = append(fills, f) })
	require.Len(t, fills, 1)
	assert.InDelta(t, 2000.0, fills[0].Price, 1e-9)
	assert.NotEmpty(t, fills[0].ExecID)

	// 再次轮询不重复投递
	s.PollFills(func(market.Fill) { t.Fatal("不应重复投递成交") })

	positions, err := s.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 1, positions[0].Qty)
}

func TestSimOrderStatusAndCommissionOnce(t *testing.T) {
	s := NewSim("MGC")
	require.NoError(t, s.Connect())
	_, err := s.PlaceOrder(market.OrderIntent{
		Symbol: "MGC", Side: market.SideBuy, Qty: 1, OrderType: "MKT", ClientOrderID: "c-1",
	})
	require.NoError(t, err)

	var statuses []market.OrderStatusUpdate
	s.PollOrderStatus(func(u market.OrderStatusUpdate) { statuses = append(statuses, u) })
	require.Len(t, statuses, 1)
	assert.Equal(t, market.OrderStatusFilled, statuses[0].Status)
	s.PollOrderStatus(func(market.OrderStatusUpdate) { t.Fatal("不应重复投递状态") })

	comms := 0
	s.PollCommissions(func(execID string, c float64) {
		comms++
		assert.NotEmpty(t, execID)
		assert.Greater(t, c, 0.0)
	})
	assert.Equal(t, 1, comms)
	s.PollCommissions(func(string, float64) { t.Fatal("不应重复投递佣金") })
}

func TestSimFlatten(t *testing.T) {
	s := NewSim("MGC")
	require.NoError(t, s.Connect())
	_, err := s.PlaceOrder(market.OrderIntent{
		Symbol: "MGC", Side: market.SideBuy, Qty: 2, OrderType: "MKT", ClientOrderID: "c-1",
	})
	require.NoError(t, err)
	require.NoError(t, s.Flatten("MGC"))

	positions, err := s.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 0, positions[0].Qty)
}

func TestSimSeededOrdersAndCancel(t *testing.T) {
	s := NewSim("MGC")
	require.NoError(t, s.Connect())
	s.SeedOpenOrder(OpenOrder{BrokerOrderID: "b-9", Symbol: "MGC", Side: market.SideBuy, Qty: 1, Tag: "someone-else"})

	orders, err := s.OpenOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)

	require.NoError(t, s.CancelOrder("b-9"))
	orders, err = s.OpenOrders()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSimRejectsWhenDisconnected(t *testing.T) {
	s := NewSim("MGC")
	_, err := s.PlaceOrder(market.OrderIntent{Symbol: "MGC", Side: market.SideBuy, Qty: 1})
	assert.Error(t, err)
}
