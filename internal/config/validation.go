package config

import (
	"fmt"
	"strings"
	"time"
)

// validate 在默认值填充之后做一致性检查，失败直接拒绝启动。
func validate(cfg *Config) error {
	switch strings.ToLower(cfg.App.Env) {
	case "paper", "live":
	default:
		return fmt.Errorf("app.env 只支持 paper/live，当前为 %q", cfg.App.Env)
	}
	if cfg.Instrument.Symbol == "" {
		return fmt.Errorf("instrument.symbol 不能为空")
	}
	if cfg.Instrument.Multiplier <= 0 {
		return fmt.Errorf("instrument.multiplier 必须大于 0")
	}
	if cfg.Instrument.MinTick <= 0 {
		return fmt.Errorf("instrument.min_tick 必须大于 0")
	}
	if cfg.Risk.MaxPosition <= 0 {
		return fmt.Errorf("risk.max_position 必须大于 0")
	}
	if cfg.Risk.MaxOrderSize <= 0 {
		return fmt.Errorf("risk.max_order_size 必须大于 0")
	}
	if cfg.Risk.MaxDailyLossUSD <= 0 {
		return fmt.Errorf("risk.max_daily_loss_usd 必须大于 0")
	}
	switch cfg.Strategy.Type {
	case "noop", "breakout":
	default:
		return fmt.Errorf("strategy.type 只支持 noop/breakout，当前为 %q", cfg.Strategy.Type)
	}
	if cfg.Strategy.Type == "breakout" {
		if err := validateBreakout(&cfg.Strategy.Breakout); err != nil {
			return err
		}
	}
	switch cfg.Broker.Type {
	case "sim":
	default:
		return fmt.Errorf("broker.type 只支持 sim，当前为 %q", cfg.Broker.Type)
	}
	if strings.TrimSpace(cfg.Broker.OrderTag) == "" {
		return fmt.Errorf("broker.order_tag 不能为空")
	}
	switch cfg.Datafeed.Type {
	case "none", "binance":
	default:
		return fmt.Errorf("datafeed.type 只支持 none/binance，当前为 %q", cfg.Datafeed.Type)
	}
	switch strings.ToLower(cfg.Reconcile.UnknownOrdersPolicy) {
	case "halt", "ignore", "cancel":
	default:
		return fmt.Errorf("reconcile.unknown_orders_policy 只支持 halt/ignore/cancel，当前为 %q",
			cfg.Reconcile.UnknownOrdersPolicy)
	}
	if cfg.App.IsLive() && !cfg.Trading.AllowLive {
		return fmt.Errorf("app.env=live 但 trading.allow_live=false，拒绝启动")
	}
	return nil
}

func validateBreakout(b *BreakoutConfig) error {
	if _, err := time.LoadLocation(b.Timezone); err != nil {
		return fmt.Errorf("strategy.breakout.timezone 无效: %w", err)
	}
	for _, item := range []struct {
		key string
		val string
	}{
		{"range_window.start", b.RangeWindow.Start},
		{"range_window.end", b.RangeWindow.End},
		{"entry_window.start", b.EntryWindow.Start},
		{"entry_window.end", b.EntryWindow.End},
		{"flat_time", b.FlatTime},
	} {
		if _, err := time.Parse("15:04", item.val); err != nil {
			return fmt.Errorf("strategy.breakout.%s 必须是 HH:MM 格式: %q", item.key, item.val)
		}
	}
	if b.TakeProfitR <= 0 {
		return fmt.Errorf("strategy.breakout.tp_r 必须大于 0")
	}
	if b.BreakEven.Enabled && b.BreakEven.TriggerR <= 0 {
		return fmt.Errorf("strategy.breakout.be.trigger_r 必须大于 0")
	}
	if b.Shadow.Enabled {
		if b.Shadow.VariantBTakeProfitR <= 0 {
			return fmt.Errorf("strategy.breakout.shadow_variants.variant_b_tp_r 必须大于 0")
		}
		if b.Shadow.VariantCStopR <= 0 {
			return fmt.Errorf("strategy.breakout.shadow_variants.variant_c_sl_tight_r 必须大于 0")
		}
	}
	if b.Qty <= 0 {
		return fmt.Errorf("strategy.breakout.qty 必须大于 0")
	}
	return nil
}
