package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"rangebot/internal/app"
	"rangebot/internal/broker"
	rbcfg "rangebot/internal/config"
	"rangebot/internal/logger"
)

func main() {
	cfgPath := os.Getenv("RANGEBOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := rbcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetJSON(cfg.App.LogJSON)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，合约=%s）", cfg.App.Env, cfg.Instrument.Symbol)

	// rangebot flatten 只平仓后退出，不需要完整应用。
	if len(os.Args) > 1 && os.Args[1] == "flatten" {
		runFlatten(cfg)
		return
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	// rangebot export 只导出报表后退出，不进交易循环。
	if len(os.Args) > 1 && os.Args[1] == "export" {
		runExport(a, cfg)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("运行失败: %v", err)
	}
	logger.Infof("已退出")
}

func runExport(a *app.App, cfg *rbcfg.Config) {
	defer a.Close()
	rep := a.Reporter()
	if _, err := rep.ExportTrades(1000); err != nil {
		log.Fatalf("导出交易报表失败: %v", err)
	}
	if _, err := rep.ExportShadows(1000); err != nil {
		log.Fatalf("导出影子出场报表失败: %v", err)
	}
	if _, err := rep.ExportSignals(2000); err != nil {
		log.Fatalf("导出信号报表失败: %v", err)
	}
	if _, err := rep.ExportPnL(5000); err != nil {
		log.Fatalf("导出盈亏快照失败: %v", err)
	}
	now := time.Now().UTC()
	if _, err := rep.ExportBars(cfg.Instrument.Symbol, now.AddDate(0, 0, -7), now); err != nil {
		log.Fatalf("导出 K 线报表失败: %v", err)
	}
	if _, err := rep.ExportDaily(365); err != nil {
		log.Fatalf("导出日汇总报表失败: %v", err)
	}
	// 日内图只在当天有 K 线时画得出来，失败不影响其余导出。
	day := now.Format("2006-01-02")
	if _, err := rep.RenderDayChart(context.Background(), cfg.Instrument.Symbol, day, now.Add(-24*time.Hour), now); err != nil {
		logger.Warnf("渲染日内图失败: %v", err)
	}
}

// runFlatten 直连券商把配置合约的持仓全部平掉，然后退出。
func runFlatten(cfg *rbcfg.Config) {
	bk, err := broker.New(cfg.Broker, cfg.Instrument)
	if err != nil {
		log.Fatalf("构建券商失败: %v", err)
	}
	if err := bk.Connect(); err != nil {
		log.Fatalf("连接券商失败: %v", err)
	}
	defer func() {
		if err := bk.Disconnect(); err != nil {
			logger.Warnf("断开券商连接失败: %v", err)
		}
	}()
	if err := bk.Flatten(cfg.Instrument.Symbol); err != nil {
		log.Fatalf("平仓失败: %v", err)
	}
	logger.Infof("平仓指令已发送: %s", cfg.Instrument.Symbol)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
