// Package app 负责应用级编排：加载配置→初始化依赖→启动交易循环与
// 状态服务。
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	rbcfg "rangebot/internal/config"
	"rangebot/internal/datafeed"
	"rangebot/internal/logger"
	"rangebot/internal/report"
	"rangebot/internal/store/eventlog"
	"rangebot/internal/store/gormstore"
	"rangebot/internal/trader"
	statushttp "rangebot/internal/transport/http/status"
)

// App 持有全部已组装的组件。
type App struct {
	cfg        *rbcfg.Config
	trader     *trader.Trader
	statusHTTP *statushttp.Server
	reporter   *report.Reporter
	feed       datafeed.Feed
	store      *gormstore.Store
	events     *eventlog.Store
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *rbcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动交易循环与状态服务，任一出错或 ctx 取消时整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.trader == nil {
		return fmt.Errorf("trader not initialized")
	}
	if err := a.trader.Start(); err != nil {
		return err
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)
	if a.feed != nil {
		bars, err := a.feed.Stream(ctx, a.cfg.Instrument.Symbol, a.cfg.Datafeed.Interval)
		if err != nil {
			return fmt.Errorf("启动行情流失败: %w", err)
		}
		logger.Infof("实时行情流已挂接: %s %s", a.cfg.Instrument.Symbol, a.cfg.Datafeed.Interval)
		a.trader.AttachBarFeed(bars)
	}
	if a.statusHTTP != nil {
		group.Go(func() error {
			logger.Infof("状态服务监听: %s", a.statusHTTP.Addr())
			if err := a.statusHTTP.Start(ctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		defer a.trader.Stop()
		return a.trader.Run(ctx)
	})
	return group.Wait()
}

// Reporter 暴露报表生成器，给 CLI 子命令用。
func (a *App) Reporter() *report.Reporter {
	if a == nil {
		return nil
	}
	return a.reporter
}

// Trader 暴露底层编排器，测试与回放用。
func (a *App) Trader() *trader.Trader {
	if a == nil {
		return nil
	}
	return a.trader
}

// Close 释放存储句柄。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			logger.Warnf("关闭行情来源失败: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭交易日志库失败: %v", err)
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			logger.Warnf("关闭事件库失败: %v", err)
		}
	}
}
