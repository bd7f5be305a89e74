package journal

import (
	"math"

	"rangebot/internal/market"
)

// ComputeMAEMFE 遍历持仓期 K 线，返回最大不利/有利价格偏移（非负）。
func ComputeMAEMFE(bars []market.Bar, side market.Side, entryPrice float64) (mae, mfe float64) {
	for _, bar := range bars {
		if side == market.SideBuy {
			mae = math.Max(mae, math.Max(0, entryPrice-bar.Low))
			mfe = math.Max(mfe, math.Max(0, bar.High-entryPrice))
		} else {
			mae = math.Max(mae, math.Max(0, bar.High-entryPrice))
			mfe = math.Max(mfe, math.Max(0, entryPrice-bar.Low))
		}
	}
	return mae, mfe
}

// RMultiple 返回每单位盈亏除以初始风险。风险非正时 ok=false。
func RMultiple(side market.Side, entryPrice, exitPrice, riskPerUnit float64) (float64, bool) {
	if riskPerUnit <= 0 {
		return 0, false
	}
	pnlPerUnit := exitPrice - entryPrice
	if side == market.SideSell {
		pnlPerUnit = entryPrice - exitPrice
	}
	return pnlPerUnit / riskPerUnit, true
}
