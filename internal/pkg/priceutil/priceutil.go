// Package priceutil 提供基于 decimal 的价格栅格计算，
// 避免 buffer=ticks*minTick 之类的乘法引入二进制浮点误差。
package priceutil

import (
	"math"

	"github.com/shopspring/decimal"
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// Ticks 返回 n 个最小跳动的精确价差。
func Ticks(n int, minTick float64) float64 {
	if n == 0 || minTick <= 0 {
		return 0
	}
	return decToFloat(decimal.NewFromInt(int64(n)).Mul(decFromFloat(minTick)))
}

// Add 返回 price+delta 的精确和。
func Add(price, delta float64) float64 {
	return decToFloat(decFromFloat(price).Add(decFromFloat(delta)))
}

// Sub 返回 price-delta 的精确差。
func Sub(price, delta float64) float64 {
	return decToFloat(decFromFloat(price).Sub(decFromFloat(delta)))
}
