package market

import "time"

// Side 表示买卖方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 返回对手方向（平仓信号会用到）。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign 把方向映射成带符号数量系数：BUY=+1，SELL=-1。
func (s Side) Sign() int {
	if s == SideBuy {
		return 1
	}
	return -1
}

// 订单状态流转：Created → Submitted → Filled/Cancelled。
// MissingOnBroker 由对账流程标记，表示本地有、券商侧已消失。
const (
	OrderStatusCreated         = "Created"
	OrderStatusSubmitted       = "Submitted"
	OrderStatusFilled          = "Filled"
	OrderStatusCancelled       = "Cancelled"
	OrderStatusMissingOnBroker = "MissingOnBroker"
)

// Signal 是策略产出的交易意图（未经风控）。
type Signal struct {
	TS     time.Time `json:"ts"`
	Symbol string    `json:"symbol"`
	Side   Side      `json:"side"`
	Qty    int       `json:"qty"`
	Reason string    `json:"reason"`
}

// OrderIntent 是即将提交给券商的订单。Tag 携带本进程的命名空间，
// 对账时用它区分"我们的"订单和外来订单。
type OrderIntent struct {
	TS            time.Time `json:"ts"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Qty           int       `json:"qty"`
	OrderType     string    `json:"order_type"` // "MKT" | "LMT"
	LimitPrice    float64   `json:"limit_price,omitempty"`
	ClientOrderID string    `json:"client_order_id"`
	Tag           string    `json:"tag"`
}

// OrderAck 是券商对订单提交的回执。
type OrderAck struct {
	TS            time.Time `json:"ts"`
	ClientOrderID string    `json:"client_order_id"`
	BrokerOrderID string    `json:"broker_order_id"`
	Status        string    `json:"status"`
}

// Fill 是一条成交事件。按 ExecID 去重由事件来源负责，
// 账本假定 exactly-once 投递。
type Fill struct {
	TS            time.Time `json:"ts"`
	ClientOrderID string    `json:"client_order_id"`
	BrokerOrderID string    `json:"broker_order_id"`
	ExecID        string    `json:"exec_id,omitempty"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Qty           int       `json:"qty"`
	Price         float64   `json:"price"`
	Commission    float64   `json:"commission"`
}

// SignedQty 返回带方向符号的成交数量。
func (f Fill) SignedQty() int {
	return f.Side.Sign() * f.Qty
}

// OrderStatusUpdate 是订单状态推送，按 (订单号,状态,已成交量) 去重。
type OrderStatusUpdate struct {
	TS            time.Time `json:"ts"`
	ClientOrderID string    `json:"client_order_id"`
	BrokerOrderID string    `json:"broker_order_id"`
	Status        string    `json:"status"`
	Filled        float64   `json:"filled"`
	Remaining     float64   `json:"remaining"`
}
