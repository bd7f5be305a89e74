// Package datafeed 提供独立于券商的行情来源，目前用于启动时回填
// 历史 K 线和可选的实时 K 线订阅。
package datafeed

import (
	"context"
	"fmt"
	"strings"

	"rangebot/internal/config"
	"rangebot/internal/datafeed/binance"
	"rangebot/internal/market"
)

// Feed 是行情来源的最小接口。
type Feed interface {
	// Backfill 拉取最近 limit 根已收线的 K 线，时间升序。
	Backfill(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error)
	// Stream 订阅已收线的实时 K 线，ctx 取消后通道关闭。
	Stream(ctx context.Context, symbol, interval string) (<-chan market.Bar, error)
	Close() error
}

// New 按配置构建行情来源；type=none 返回 (nil, nil)。
func New(cfg config.DatafeedConfig) (Feed, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "none":
		return nil, nil
	case "binance":
		return binance.New(binance.Config{RESTBaseURL: cfg.RESTBaseURL})
	default:
		return nil, fmt.Errorf("不支持的行情来源类型: %s", cfg.Type)
	}
}
