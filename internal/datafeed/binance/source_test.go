package binance

import (
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertKlineEventSkipsUnclosed(t *testing.T) {
	ev := &futures.WsKlineEvent{
		Symbol: "mgcusdt",
		Kline: futures.WsKline{
			StartTime: 1741613400000,
			Open:      "100.1", High: "101.2", Low: "99.8", Close: "100.9", Volume: "12",
			IsFinal: false,
		},
	}
	_, ok := convertKlineEvent(ev)
	assert.False(t, ok)

	ev.Kline.IsFinal = true
	bar, ok := convertKlineEvent(ev)
	require.True(t, ok)
	assert.Equal(t, "MGCUSDT", bar.Symbol)
	assert.Equal(t, time.UnixMilli(1741613400000).UTC(), bar.TS)
	assert.Equal(t, 100.9, bar.Close)
	assert.False(t, bar.Snapshot)
}

func TestNextDelayCapsAtThirtySeconds(t *testing.T) {
	d := time.Second
	for i := 0; i < 10; i++ {
		d = nextDelay(d)
	}
	assert.Equal(t, 30*time.Second, d)
}
