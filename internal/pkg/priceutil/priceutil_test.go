package priceutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicksAvoidsBinaryFloatDrift(t *testing.T) {
	// 3*0.1 的裸浮点乘法得到 0.30000000000000004
	assert.Equal(t, 0.3, Ticks(3, 0.1))
	assert.Equal(t, 0.0, Ticks(0, 0.1))
	assert.Equal(t, 0.0, Ticks(5, 0))
}

func TestAddSubExact(t *testing.T) {
	assert.Equal(t, 101.3, Add(101.0, 0.3))
	assert.Equal(t, 99.8, Sub(100.0, 0.2))
	assert.Equal(t, 101.2, Add(101.0, Ticks(2, 0.1)))
}
