package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rangebot/internal/broker"
	rbcfg "rangebot/internal/config"
	"rangebot/internal/datafeed"
	"rangebot/internal/journal"
	"rangebot/internal/ledger"
	"rangebot/internal/logger"
	"rangebot/internal/profile"
	"rangebot/internal/report"
	"rangebot/internal/risk"
	"rangebot/internal/store/eventlog"
	"rangebot/internal/store/gormstore"
	"rangebot/internal/strategy"
	"rangebot/internal/trader"
	statushttp "rangebot/internal/transport/http/status"
)

// AppBuilder 按依赖顺序组装组件；工厂函数可被测试替换。
type AppBuilder struct {
	cfg *rbcfg.Config

	brokerFn   func(rbcfg.BrokerConfig, rbcfg.InstrumentConfig) (broker.Broker, error)
	strategyFn func(rbcfg.StrategyConfig, rbcfg.InstrumentConfig) (strategy.Strategy, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *rbcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		brokerFn:   broker.New,
		strategyFn: strategy.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithBroker 覆盖券商工厂，测试注入用。
func WithBroker(fn func(rbcfg.BrokerConfig, rbcfg.InstrumentConfig) (broker.Broker, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.brokerFn = fn }
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	store, err := gormstore.NewStore(cfg.Storage.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("打开交易日志库失败: %w", err)
	}
	events, err := eventlog.NewStore(cfg.Storage.EventLogPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("打开事件库失败: %w", err)
	}
	logger.Infof("✓ 存储已就绪: journal=%s events=%s", cfg.Storage.JournalPath, cfg.Storage.EventLogPath)

	feed, err := b.openFeed(ctx, cfg, store)
	if err != nil {
		logger.Warnf("构建行情来源失败: %v", err)
	}

	led := ledger.New(cfg.Instrument.Symbol, cfg.Instrument.Multiplier)
	gov := risk.New(risk.Limits{
		MaxPosition:     cfg.Risk.MaxPosition,
		MaxOrderSize:    cfg.Risk.MaxOrderSize,
		MaxDailyLossUSD: cfg.Risk.MaxDailyLossUSD,
	})

	strat, err := b.strategyFn(cfg.Strategy, cfg.Instrument)
	if err != nil {
		return nil, fmt.Errorf("构建策略失败: %w", err)
	}
	logger.Infof("✓ 策略: %s (%s %s-%s)", strat.Name(),
		cfg.Strategy.Breakout.Timezone, cfg.Strategy.Breakout.RangeWindow.Start, cfg.Strategy.Breakout.RangeWindow.End)

	bk, err := b.brokerFn(cfg.Broker, cfg.Instrument)
	if err != nil {
		return nil, fmt.Errorf("构建券商失败: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Strategy.Breakout.Timezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区失败: %w", err)
	}
	dailyAgg := journal.NewDailyAggregator(store, cfg.Instrument.Symbol, strat.Name())
	tracker := journal.NewTracker(journal.TrackerConfig{
		InstanceID: cfg.Runtime.InstanceID,
		Strategy:   strat.Name(),
		Symbol:     cfg.Instrument.Symbol,
		Multiplier: cfg.Instrument.Multiplier,
		Location:   loc,
		Shadow: journal.ShadowOptions{
			Enabled:             cfg.Strategy.Breakout.Shadow.Enabled,
			VariantBTakeProfitR: cfg.Strategy.Breakout.Shadow.VariantBTakeProfitR,
			VariantCStopR:       cfg.Strategy.Breakout.Shadow.VariantCStopR,
		},
	}, store, store, dailyAgg.OnTradeClosed)

	tr := trader.New(cfg, bk, strat, led, gov, tracker, dailyAgg, store, events)

	profiles, err := b.loadProfiles(cfg)
	if err != nil {
		return nil, err
	}

	var statusSrv *statushttp.Server
	if cfg.HTTP.Enabled {
		router := statushttp.NewRouter(led, gov, store, events, profiles, cfg.App.Env, strat.Name())
		statusSrv, err = statushttp.NewServer(statushttp.ServerConfig{Addr: cfg.HTTP.Addr, Router: router})
		if err != nil {
			return nil, fmt.Errorf("构建状态服务失败: %w", err)
		}
	}

	reporter := report.New(report.Config{
		OutputDir:     cfg.Report.OutputDir,
		ChartSnapshot: cfg.Report.ChartSnapshot,
	}, store, events)

	return &App{
		cfg:        cfg,
		trader:     tr,
		statusHTTP: statusSrv,
		reporter:   reporter,
		feed:       feed,
		store:      store,
		events:     events,
	}, nil
}

// openFeed 构建外部行情来源：先回填历史 K 线，再按配置决定是否保留
// 连接给实时流用。回填失败只告警，不阻塞启动。
func (b *AppBuilder) openFeed(ctx context.Context, cfg *rbcfg.Config, store *gormstore.Store) (datafeed.Feed, error) {
	feed, err := datafeed.New(cfg.Datafeed)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, nil
	}
	if err := b.backfillBars(ctx, cfg, feed, store); err != nil {
		logger.Warnf("历史 K 线回填失败: %v", err)
	}
	if !cfg.Datafeed.Stream {
		feed.Close()
		return nil, nil
	}
	return feed, nil
}

func (b *AppBuilder) backfillBars(ctx context.Context, cfg *rbcfg.Config, feed datafeed.Feed, store *gormstore.Store) error {
	if cfg.Datafeed.BackfillBars <= 0 {
		return nil
	}
	bars, err := feed.Backfill(ctx, cfg.Instrument.Symbol, cfg.Datafeed.Interval, cfg.Datafeed.BackfillBars)
	if err != nil {
		return err
	}
	for _, bar := range bars {
		if err := store.UpsertBar(bar); err != nil {
			return err
		}
	}
	logger.Infof("✓ 历史 K 线已回填: %d 根 (%s %s)", len(bars), cfg.Instrument.Symbol, cfg.Datafeed.Interval)
	return nil
}

// loadProfiles 按配置加载策略档案，路径为空时不启用。
func (b *AppBuilder) loadProfiles(cfg *rbcfg.Config) (*profile.Registry, error) {
	path := strings.TrimSpace(cfg.Profiles.Path)
	if path == "" {
		return nil, nil
	}
	reg, err := profile.NewRegistry(path, cfg.Profiles.Watch)
	if err != nil {
		return nil, fmt.Errorf("加载策略档案失败: %w", err)
	}
	reg.OnChange(func(snap profile.Snapshot) {
		logger.Infof("策略档案已更新: version=%d 套数=%d（重启后生效）", snap.Version, len(snap.Templates))
	})
	return reg, nil
}
