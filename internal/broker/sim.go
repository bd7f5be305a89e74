package broker

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"rangebot/internal/logger"
	"rangebot/internal/market"
)

// Sim 是内存模拟券商，用于接线、测试和空跑：
// 行情是慢速随机游走，订单按最新价立即全部成交。
type Sim struct {
	mu        sync.Mutex
	symbol    string
	connected bool
	last      float64

	fills          []market.Fill
	emittedFills   map[string]bool
	emittedStatus  map[string]bool
	pendingComms   map[string]float64 // exec_id → 延迟回报的佣金
	brokerOrderMap map[string]string
	positions      map[string]*Position
	foreignOrders  []OpenOrder

	lastBarTS   time.Time
	barInterval time.Duration
	rng         *rand.Rand
}

// NewSim 创建模拟券商，初始价 2000。
func NewSim(symbol string) *Sim {
	return &Sim{
		symbol:         symbol,
		last:           2000.0,
		emittedFills:   map[string]bool{},
		emittedStatus:  map[string]bool{},
		pendingComms:   map[string]float64{},
		brokerOrderMap: map[string]string{},
		positions:      map[string]*Position{},
		barInterval:    time.Second,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Sim) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	logger.Infof("模拟券商已连接: %s", s.symbol)
	return nil
}

func (s *Sim) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	logger.Infof("模拟券商已断开")
	return nil
}

// PlaceOrder 按最新价立即成交（简化），佣金走延迟回报通道。
func (s *Sim) PlaceOrder(intent market.OrderIntent) (market.OrderAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return market.OrderAck{}, fmt.Errorf("模拟券商未连接")
	}
	brokerID := s.brokerOrderMap[intent.ClientOrderID]
	if brokerID == "" {
		brokerID = uuid.NewString()
		s.brokerOrderMap[intent.ClientOrderID] = brokerID
	}
	execID := uuid.NewString()
	fill := market.Fill{
		TS:            time.Now().UTC(),
		ClientOrderID: intent.ClientOrderID,
		BrokerOrderID: brokerID,
		ExecID:        execID,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Qty:           intent.Qty,
		Price:         s.last,
	}
	s.fills = append(s.fills, fill)
	s.pendingComms[execID] = 0.25
	s.applyFillLocked(fill)

	return market.OrderAck{
		TS:            time.Now().UTC(),
		ClientOrderID: intent.ClientOrderID,
		BrokerOrderID: brokerID,
		Status:        market.OrderStatusSubmitted,
	}, nil
}

// CancelOrder 对已注入的外来订单生效；自家订单即时成交，无可取消。
func (s *Sim) CancelOrder(brokerOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, o := range s.foreignOrders {
		if o.BrokerOrderID == brokerOrderID {
			s.foreignOrders = append(s.foreignOrders[:i], s.foreignOrders[i+1:]...)
			logger.Infof("模拟券商取消订单: %s", brokerOrderID)
			return nil
		}
	}
	logger.Infof("模拟券商无此在途订单，取消为空操作: %s", brokerOrderID)
	return nil
}

// Flatten 市价平掉指定合约的全部持仓。
func (s *Sim) Flatten(symbol string) error {
	s.mu.Lock()
	pos := s.positions[symbol]
	qty := 0
	if pos != nil {
		qty = pos.Qty
	}
	s.mu.Unlock()

	if qty == 0 {
		logger.Infof("已是空仓，无需强平: %s", symbol)
		return nil
	}
	side := market.SideSell
	if qty < 0 {
		side = market.SideBuy
		qty = -qty
	}
	_, err := s.PlaceOrder(market.OrderIntent{
		TS:            time.Now().UTC(),
		Symbol:        symbol,
		Side:          side,
		Qty:           qty,
		OrderType:     "MKT",
		ClientOrderID: uuid.NewString(),
	})
	return err
}

func (s *Sim) OpenOrders() ([]OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OpenOrder, len(s.foreignOrders))
	copy(out, s.foreignOrders)
	return out, nil
}

func (s *Sim) Positions() ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out, nil
}

// PollBars 每个 K 线周期产出一根随机游走 K 线。
func (s *Sim) PollBars(onBar func(market.Bar)) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	if !s.lastBarTS.IsZero() && now.Sub(s.lastBarTS) < s.barInterval {
		s.mu.Unlock()
		return
	}
	s.last += s.rng.Float64()*0.6 - 0.3
	open := s.last + s.rng.Float64()*0.2 - 0.1
	closePx := s.last
	high := max(open, closePx) + s.rng.Float64()*0.2
	low := min(open, closePx) - s.rng.Float64()*0.2
	bar := market.Bar{
		TS:     now,
		Symbol: s.symbol,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: float64(50 + s.rng.Intn(100)),
	}
	s.lastBarTS = now
	s.mu.Unlock()
	onBar(bar)
}

// PollFills 把尚未投递过的成交逐条回调。
func (s *Sim) PollFills(onFill func(market.Fill)) {
	s.mu.Lock()
	var fresh []market.Fill
	for _, f := range s.fills {
		if s.emittedFills[f.ExecID] {
			continue
		}
		s.emittedFills[f.ExecID] = true
		fresh = append(fresh, f)
	}
	s.mu.Unlock()
	for _, f := range fresh {
		onFill(f)
	}
}

// PollOrderStatus 为每笔成交补发一条 Filled 状态（一次性）。
func (s *Sim) PollOrderStatus(onStatus func(market.OrderStatusUpdate)) {
	s.mu.Lock()
	var fresh []market.OrderStatusUpdate
	for _, f := range s.fills {
		key := f.BrokerOrderID + ":" + f.ClientOrderID + ":Filled"
		if s.emittedStatus[key] {
			continue
		}
		s.emittedStatus[key] = true
		fresh = append(fresh, market.OrderStatusUpdate{
			TS:            time.Now().UTC(),
			ClientOrderID: f.ClientOrderID,
			BrokerOrderID: f.BrokerOrderID,
			Status:        market.OrderStatusFilled,
			Filled:        float64(f.Qty),
			Remaining:     0,
		})
	}
	s.mu.Unlock()
	for _, u := range fresh {
		onStatus(u)
	}
}

// PollCommissions 把挂起的佣金回报逐条投递后清空。
func (s *Sim) PollCommissions(onCommission func(string, float64)) {
	s.mu.Lock()
	pending := s.pendingComms
	s.pendingComms = map[string]float64{}
	s.mu.Unlock()
	for execID, comm := range pending {
		onCommission(execID, comm)
	}
}

// SetLastPrice 固定最新价，测试里用来控制成交价。
func (s *Sim) SetLastPrice(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = price
}

// SeedOpenOrder 注入一张券商侧在途订单（对账场景）。
func (s *Sim) SeedOpenOrder(order OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreignOrders = append(s.foreignOrders, order)
}

// SeedPosition 注入券商侧持仓（对账场景）。
func (s *Sim) SeedPosition(symbol string, qty int, avgPrice float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[symbol] = &Position{Symbol: symbol, Qty: qty, AvgPrice: avgPrice}
}

func (s *Sim) applyFillLocked(fill market.Fill) {
	pos := s.positions[fill.Symbol]
	if pos == nil {
		pos = &Position{Symbol: fill.Symbol}
		s.positions[fill.Symbol] = pos
	}
	pos.Qty += fill.SignedQty()
	if pos.Qty == 0 {
		pos.AvgPrice = 0
	} else {
		pos.AvgPrice = fill.Price
	}
}
