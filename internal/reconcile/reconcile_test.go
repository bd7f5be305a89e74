package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangebot/internal/broker"
	"rangebot/internal/ledger"
	"rangebot/internal/market"
	"rangebot/internal/store/model"
)

type fakeOrderStore struct {
	open    []model.OrderModel
	updated map[string]string // client_order_id → status
}

func (s *fakeOrderStore) OpenOrders() ([]model.OrderModel, error) { return s.open, nil }

func (s *fakeOrderStore) UpdateOrderStatus(clientOrderID, status, _ string) error {
	if s.updated == nil {
		s.updated = map[string]string{}
	}
	s.updated[clientOrderID] = status
	return nil
}

type recordingHalter struct {
	reasons []string
}

func (h *recordingHalter) Halt(reason string) { h.reasons = append(h.reasons, reason) }

func baseConfig() Config {
	return Config{Symbol: "MGC", OrderTag: "rangebot", UnknownOrdersPolicy: PolicyHalt}
}

func connectedSim(t *testing.T) *broker.Sim {
	t.Helper()
	s := broker.NewSim("MGC")
	require.NoError(t, s.Connect())
	return s
}

func TestOursMissingLocallyHalts(t *testing.T) {
	sim := connectedSim(t)
	sim.SeedOpenOrder(broker.OpenOrder{BrokerOrderID: "b-1", Symbol: "MGC", Tag: "rangebot"})
	halter := &recordingHalter{}

	report := Run(sim, &fakeOrderStore{}, ledger.New("MGC", 10), halter, baseConfig())
	assert.True(t, report.Halted)
	assert.Equal(t, []string{"b-1"}, report.OursMissingLocally)
	assert.NotEmpty(t, halter.reasons)
}

func TestLocalMissingOnBrokerMarkedWithoutHalt(t *testing.T) {
	sim := connectedSim(t)
	store := &fakeOrderStore{open: []model.OrderModel{
		{ClientOrderID: "c-1", BrokerOrderID: "b-gone", Status: market.OrderStatusSubmitted},
	}}
	halter := &recordingHalter{}

	report := Run(sim, store, ledger.New("MGC", 10), halter, baseConfig())
	assert.False(t, report.Halted)
	assert.Equal(t, []string{"c-1"}, report.MissingOnBroker)
	assert.Equal(t, market.OrderStatusMissingOnBroker, store.updated["c-1"])
}

func TestUnknownOrderPolicies(t *testing.T) {
	// HALT（默认）
	sim := connectedSim(t)
	sim.SeedOpenOrder(broker.OpenOrder{BrokerOrderID: "b-x", Symbol: "MGC", Tag: "someone-else"})
	halter := &recordingHalter{}
	report := Run(sim, &fakeOrderStore{}, ledger.New("MGC", 10), halter, baseConfig())
	assert.True(t, report.Halted)

	// IGNORE：记录但继续
	sim = connectedSim(t)
	sim.SeedOpenOrder(broker.OpenOrder{BrokerOrderID: "b-x", Symbol: "MGC", Tag: "someone-else"})
	cfg := baseConfig()
	cfg.UnknownOrdersPolicy = PolicyIgnore
	report = Run(sim, &fakeOrderStore{}, ledger.New("MGC", 10), &recordingHalter{}, cfg)
	assert.False(t, report.Halted)
	assert.Equal(t, []string{"b-x"}, report.UnknownOrders)

	// CANCEL + 纸面环境：撤单且不熔断
	sim = connectedSim(t)
	sim.SeedOpenOrder(broker.OpenOrder{BrokerOrderID: "b-x", Symbol: "MGC", Tag: "someone-else"})
	cfg.UnknownOrdersPolicy = PolicyCancel
	report = Run(sim, &fakeOrderStore{}, ledger.New("MGC", 10), &recordingHalter{}, cfg)
	assert.False(t, report.Halted)
	assert.Equal(t, []string{"b-x"}, report.CancelledUnknown)
	remaining, err := sim.OpenOrders()
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// CANCEL + 实盘：升级为熔断，不执行撤单
	sim = connectedSim(t)
	sim.SeedOpenOrder(broker.OpenOrder{BrokerOrderID: "b-x", Symbol: "MGC", Tag: "someone-else"})
	cfg.Live = true
	report = Run(sim, &fakeOrderStore{}, ledger.New("MGC", 10), &recordingHalter{}, cfg)
	assert.True(t, report.Halted)
	assert.Empty(t, report.CancelledUnknown)
	remaining, err = sim.OpenOrders()
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestPositionMismatchHalts(t *testing.T) {
	sim := connectedSim(t)
	sim.SeedPosition("MGC", 2, 2000)
	halter := &recordingHalter{}

	report := Run(sim, &fakeOrderStore{}, ledger.New("MGC", 10), halter, baseConfig())
	assert.True(t, report.Halted)
	assert.True(t, report.PositionMismatch)
	assert.Equal(t, 2, report.BrokerPosition)
	assert.Equal(t, 0, report.LedgerPosition)
}

// 中途触发熔断后仍然跑完所有检查并产出完整诊断。
func TestAllChecksCompleteAfterHalt(t *testing.T) {
	sim := connectedSim(t)
	sim.SeedOpenOrder(broker.OpenOrder{BrokerOrderID: "b-ours", Symbol: "MGC", Tag: "rangebot"})
	sim.SeedPosition("MGC", 3, 2000)
	store := &fakeOrderStore{open: []model.OrderModel{
		{ClientOrderID: "c-1", BrokerOrderID: "b-gone", Status: market.OrderStatusSubmitted},
	}}
	halter := &recordingHalter{}

	report := Run(sim, store, ledger.New("MGC", 10), halter, baseConfig())
	assert.True(t, report.Halted)
	assert.Equal(t, []string{"b-ours"}, report.OursMissingLocally)
	assert.Equal(t, []string{"c-1"}, report.MissingOnBroker)
	assert.True(t, report.PositionMismatch)
	assert.GreaterOrEqual(t, len(halter.reasons), 2)
}
