package market

import (
	"math"
	"time"
)

// Bar 是一根 OHLCV K 线，时间戳统一为 UTC。
// Snapshot=true 表示历史回放（补数据）K 线，只用于恢复状态，不触发新开仓。
type Bar struct {
	TS       time.Time `json:"ts"`
	Symbol   string    `json:"symbol"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Snapshot bool      `json:"snapshot"`
}

// IsValidPrice 判断价格是否是一个真实数值（非 NaN、非 0 以下）。
func IsValidPrice(v float64) bool {
	return !math.IsNaN(v) && v > 0
}
