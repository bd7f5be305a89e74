// Package broker 定义券商接口及其实现。核心循环只通过轮询回调
// 消费事件，事件去重（成交按 exec_id、状态按三元组）由实现负责。
package broker

import (
	"fmt"

	"rangebot/internal/config"
	"rangebot/internal/market"
)

// Position 是券商侧报告的持仓。
type Position struct {
	Symbol   string  `json:"symbol"`
	Qty      int     `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
}

// OpenOrder 是券商侧的一张在途订单，Tag 用于对账时区分归属。
type OpenOrder struct {
	BrokerOrderID string      `json:"broker_order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
	Side          market.Side `json:"side"`
	Qty           int         `json:"qty"`
	Tag           string      `json:"tag"`
}

// Broker 是券商适配层的统一接口。Poll* 系列由心跳循环反复调用，
// 每个逻辑事件至多回调一次。
type Broker interface {
	Connect() error
	Disconnect() error

	PlaceOrder(intent market.OrderIntent) (market.OrderAck, error)
	CancelOrder(brokerOrderID string) error
	Flatten(symbol string) error

	OpenOrders() ([]OpenOrder, error)
	Positions() ([]Position, error)

	PollBars(onBar func(market.Bar))
	PollFills(onFill func(market.Fill))
	PollOrderStatus(onStatus func(market.OrderStatusUpdate))
	PollCommissions(onCommission func(execID string, commission float64))
}

// New 按配置构造券商实例。
func New(cfg config.BrokerConfig, inst config.InstrumentConfig) (Broker, error) {
	switch cfg.Type {
	case "sim":
		return NewSim(inst.Symbol), nil
	default:
		return nil, fmt.Errorf("未知券商类型: %q", cfg.Type)
	}
}
