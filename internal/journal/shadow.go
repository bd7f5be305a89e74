package journal

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"rangebot/internal/market"
)

// 影子变体出场原因。
const (
	ShadowReasonStop = "stop"
	ShadowReasonTP   = "tp"
	ShadowReasonFlat = "flat"
	ShadowReasonHold = "hold"
)

// 影子变体名称与落库的 variant_name 保持一致。
const (
	VariantBName = "B_no_BE_bigger_TP"
	VariantCName = "C_no_BE_tighter_SL"
)

// ExitOutcome 是一次模拟重放的出场结论。
type ExitOutcome struct {
	TS     time.Time
	Price  float64
	Reason string
}

// SimulateExit 在按时间排序的 K 线序列上重放出场：每根 K 线先查
// 止损再查止盈（同根同时扫过按止损算），然后查收盘强平时刻。
// 全程无触发时返回 hold，出场价取目标止盈价——这是沿用的乐观占位，
// 不是真实的按市价结算。纯函数，可对任意 K 线集合反复调用。
func SimulateExit(bars []market.Bar, side market.Side, stopPrice, tpPrice float64, flatTime string, loc *time.Location) ExitOutcome {
	sorted := make([]market.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) })

	out := ExitOutcome{Reason: ShadowReasonHold, Price: tpPrice}
	if len(sorted) > 0 {
		out.TS = sorted[len(sorted)-1].TS
	} else {
		out.TS = time.Now().UTC()
	}
	flatMinutes, hasFlat := parseFlatMinutes(flatTime)

	for _, bar := range sorted {
		var stopHit, tpHit bool
		price := bar.Close
		if side == market.SideBuy {
			switch {
			case bar.Low <= stopPrice:
				stopHit = true
				price = stopPrice
			case bar.High >= tpPrice:
				tpHit = true
				price = tpPrice
			}
		} else {
			switch {
			case bar.High >= stopPrice:
				stopHit = true
				price = stopPrice
			case bar.Low <= tpPrice:
				tpHit = true
				price = tpPrice
			}
		}
		switch {
		case stopHit:
			return ExitOutcome{TS: bar.TS, Price: price, Reason: ShadowReasonStop}
		case tpHit:
			return ExitOutcome{TS: bar.TS, Price: price, Reason: ShadowReasonTP}
		}
		if hasFlat && loc != nil {
			local := bar.TS.In(loc)
			if local.Hour()*60+local.Minute() >= flatMinutes {
				return ExitOutcome{TS: bar.TS, Price: bar.Close, Reason: ShadowReasonFlat}
			}
		}
	}
	return out
}

func parseFlatMinutes(value string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return hour*60 + minute, true
}

// ShadowParams 是一次影子重放所需的交易侧参数。
type ShadowParams struct {
	TradeID     string
	Side        market.Side
	EntryPrice  float64
	Qty         int
	Multiplier  float64
	RiskPerUnit float64
	StopPrice   float64
	TakeProfit  float64
	FlatTime    string
	Location    *time.Location

	VariantBTakeProfitR float64 // B：不保本、更远止盈
	VariantCStopR       float64 // C：不保本、更紧止损
}

// ComputeShadowExits 对两个命名变体各跑一次出场重放，
// 同一 K 线序列下两个变体的结果彼此独立。空序列返回空。
func ComputeShadowExits(bars []market.Bar, p ShadowParams) []ShadowExitResult {
	if len(bars) == 0 {
		return nil
	}
	results := make([]ShadowExitResult, 0, 2)

	tpB := p.EntryPrice + p.VariantBTakeProfitR*p.RiskPerUnit
	if p.Side == market.SideSell {
		tpB = p.EntryPrice - p.VariantBTakeProfitR*p.RiskPerUnit
	}
	outB := SimulateExit(bars, p.Side, p.StopPrice, tpB, p.FlatTime, p.Location)
	results = append(results, ShadowExitResult{
		TradeID:     p.TradeID,
		VariantName: VariantBName,
		ExitTS:      outB.TS,
		ExitPrice:   outB.Price,
		PnLUSD:      sidePnL(p.Side, p.EntryPrice, outB.Price, p.Qty, p.Multiplier),
		ExitReason:  outB.Reason,
	})

	tightStop := p.StopPrice
	if p.VariantCStopR > 0 {
		if p.Side == market.SideBuy {
			tightStop = p.EntryPrice - p.VariantCStopR*p.RiskPerUnit
		} else {
			tightStop = p.EntryPrice + p.VariantCStopR*p.RiskPerUnit
		}
	}
	outC := SimulateExit(bars, p.Side, tightStop, p.TakeProfit, p.FlatTime, p.Location)
	results = append(results, ShadowExitResult{
		TradeID:     p.TradeID,
		VariantName: VariantCName,
		ExitTS:      outC.TS,
		ExitPrice:   outC.Price,
		PnLUSD:      sidePnL(p.Side, p.EntryPrice, outC.Price, p.Qty, p.Multiplier),
		ExitReason:  outC.Reason,
	})
	return results
}

// sidePnL 是账本同款的方向化盈亏公式。
func sidePnL(side market.Side, entry, exit float64, qty int, multiplier float64) float64 {
	if side == market.SideBuy {
		return (exit - entry) * float64(qty) * multiplier
	}
	return (entry - exit) * float64(qty) * multiplier
}
