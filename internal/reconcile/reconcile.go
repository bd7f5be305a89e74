// Package reconcile 实现启动对账：连接券商之后、主循环之前跑一次，
// 把券商侧订单/持仓与本地状态核对。本包只记录诊断并置熔断标志，
// 无论中途是否触发熔断都会把全部检查跑完。
package reconcile

import (
	"fmt"
	"strings"

	"rangebot/internal/broker"
	"rangebot/internal/ledger"
	"rangebot/internal/logger"
	"rangebot/internal/market"
	"rangebot/internal/store/model"
)

// 未知外来订单的处置策略。
const (
	PolicyHalt   = "halt"
	PolicyIgnore = "ignore"
	PolicyCancel = "cancel"
)

// OrderStore 是对账需要的本地订单视图。
type OrderStore interface {
	OpenOrders() ([]model.OrderModel, error)
	UpdateOrderStatus(clientOrderID, status, brokerOrderID string) error
}

// Halter 接收熔断请求（由风控实现）。
type Halter interface {
	Halt(reason string)
}

// Config 是一次对账的参数。
type Config struct {
	Symbol              string
	OrderTag            string // 本进程订单命名空间
	UnknownOrdersPolicy string
	Live                bool
}

// Report 是对账的完整诊断结果。
type Report struct {
	BrokerOpenOrders   int      `json:"broker_open_orders"`
	UnknownOrders      []string `json:"unknown_orders,omitempty"`
	CancelledUnknown   []string `json:"cancelled_unknown,omitempty"`
	OursMissingLocally []string `json:"ours_missing_locally,omitempty"`
	MissingOnBroker    []string `json:"missing_on_broker,omitempty"`
	BrokerPosition     int      `json:"broker_position"`
	LedgerPosition     int      `json:"ledger_position"`
	PositionMismatch   bool     `json:"position_mismatch"`
	Halted             bool     `json:"halted"`
	HaltReasons        []string `json:"halt_reasons,omitempty"`
}

func (r *Report) halt(halter Halter, format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	r.Halted = true
	r.HaltReasons = append(r.HaltReasons, reason)
	halter.Halt(reason)
}

// Run 同步执行全部对账检查。熔断只置标志，停不停由调用方决定。
func Run(b broker.Broker, store OrderStore, led *ledger.Ledger, halter Halter, cfg Config) Report {
	report := Report{}

	brokerOrders, err := b.OpenOrders()
	if err != nil {
		report.halt(halter, "对账读取券商在途订单失败: %v", err)
		brokerOrders = nil
	}
	report.BrokerOpenOrders = len(brokerOrders)

	localOrders, err := store.OpenOrders()
	if err != nil {
		report.halt(halter, "对账读取本地在途订单失败: %v", err)
	}
	localBrokerIDs := make(map[string]bool, len(localOrders))
	for _, o := range localOrders {
		if o.BrokerOrderID != "" {
			localBrokerIDs[o.BrokerOrderID] = true
		}
	}

	// 1. 按订单命名空间把券商订单分成"我们的"和"外来的"。
	var ours, unknown []broker.OpenOrder
	for _, o := range brokerOrders {
		if isOurs(o.Tag, cfg.OrderTag) {
			ours = append(ours, o)
		} else {
			unknown = append(unknown, o)
		}
	}

	// 2. 外来订单按策略处置。CANCEL 只允许在非实盘环境执行，
	//    实盘下撤别人的单风险不可控，升级为熔断。
	for _, o := range unknown {
		report.UnknownOrders = append(report.UnknownOrders, o.BrokerOrderID)
	}
	if len(unknown) > 0 {
		switch strings.ToLower(cfg.UnknownOrdersPolicy) {
		case PolicyIgnore:
			logger.Warnf("对账发现 %d 张外来订单，按策略忽略", len(unknown))
		case PolicyCancel:
			if cfg.Live {
				report.halt(halter, "实盘环境发现 %d 张外来订单，CANCEL 策略升级为熔断", len(unknown))
			} else {
				for _, o := range unknown {
					if err := b.CancelOrder(o.BrokerOrderID); err != nil {
						logger.Warnf("撤销外来订单失败: %s err=%v", o.BrokerOrderID, err)
						continue
					}
					report.CancelledUnknown = append(report.CancelledUnknown, o.BrokerOrderID)
				}
			}
		default:
			report.halt(halter, "对账发现 %d 张外来订单", len(unknown))
		}
	}

	// 3. 券商侧归属于我们、本地却没有的订单：不可恢复的状态歧义。
	for _, o := range ours {
		if !localBrokerIDs[o.BrokerOrderID] {
			report.OursMissingLocally = append(report.OursMissingLocally, o.BrokerOrderID)
			report.halt(halter, "券商在途订单本地缺失: %s", o.BrokerOrderID)
		}
	}

	// 4. 本地在途、券商侧已消失的订单：标记后继续，可恢复。
	brokerIDs := make(map[string]bool, len(brokerOrders))
	for _, o := range brokerOrders {
		brokerIDs[o.BrokerOrderID] = true
	}
	for _, o := range localOrders {
		if o.BrokerOrderID == "" || brokerIDs[o.BrokerOrderID] {
			continue
		}
		report.MissingOnBroker = append(report.MissingOnBroker, o.ClientOrderID)
		logger.Warnf("本地订单券商侧已消失，标记 MissingOnBroker: %s", o.ClientOrderID)
		if err := store.UpdateOrderStatus(o.ClientOrderID, market.OrderStatusMissingOnBroker, ""); err != nil {
			logger.Errorf("更新订单状态失败: %s err=%v", o.ClientOrderID, err)
		}
	}

	// 5. 持仓核对：券商报告的合约净持仓必须和账本一致。
	positions, err := b.Positions()
	if err != nil {
		report.halt(halter, "对账读取券商持仓失败: %v", err)
	}
	for _, p := range positions {
		if p.Symbol == cfg.Symbol {
			report.BrokerPosition += p.Qty
		}
	}
	report.LedgerPosition = led.Position()
	if report.BrokerPosition != report.LedgerPosition {
		report.PositionMismatch = true
		report.halt(halter, "持仓不一致: 券商=%d 账本=%d", report.BrokerPosition, report.LedgerPosition)
	}

	if report.Halted {
		logger.Errorf("对账完成但已触发熔断: %v", report.HaltReasons)
	} else {
		logger.Infof("对账完成: 券商在途=%d 外来=%d 持仓=%d",
			report.BrokerOpenOrders, len(report.UnknownOrders), report.BrokerPosition)
	}
	return report
}

// isOurs 判断订单 tag 是否属于本进程命名空间。
func isOurs(tag, namespace string) bool {
	if namespace == "" {
		return false
	}
	return tag == namespace || strings.HasPrefix(tag, namespace+"-")
}
