package statushttp

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"rangebot/internal/ledger"
	"rangebot/internal/logger"
	"rangebot/internal/profile"
	"rangebot/internal/risk"
	"rangebot/internal/store/eventlog"
	"rangebot/internal/store/gormstore"
	"rangebot/internal/store/model"
)

// Router 暴露只读查询接口。
type Router struct {
	led      *ledger.Ledger
	gov      *risk.Governor
	store    *gormstore.Store
	events   *eventlog.Store
	profiles *profile.Registry // 可为 nil
	env      string
	strategy string
}

// NewRouter 构造状态 router；profiles 未启用时传 nil。
func NewRouter(led *ledger.Ledger, gov *risk.Governor, store *gormstore.Store, events *eventlog.Store, profiles *profile.Registry, env, strategyName string) *Router {
	return &Router{led: led, gov: gov, store: store, events: events, profiles: profiles, env: env, strategy: strategyName}
}

// Register 将路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/trades", r.handleTrades)
	group.GET("/trades/:id", r.handleTradeDetail)
	group.GET("/daily", r.handleDaily)
	group.GET("/signals", r.handleSignals)
	group.GET("/pnl", r.handlePnL)
	if r.profiles != nil {
		group.GET("/profiles", r.handleProfiles)
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	snap := r.led.Snapshot()
	halted, reason := r.gov.Halted()
	c.JSON(http.StatusOK, gin.H{
		"env":            r.env,
		"strategy":       r.strategy,
		"symbol":         snap.Symbol,
		"position":       snap.Position,
		"avg_price":      snap.AvgPrice,
		"last_price":     snap.LastPrice,
		"realized_usd":   snap.RealizedPnL,
		"unrealized_usd": snap.UnrealizedPnL,
		"commissions":    snap.Commissions,
		"total_usd":      snap.Total(),
		"halted":         halted,
		"halt_reason":    reason,
	})
}

func (r *Router) handleTrades(c *gin.Context) {
	limit := parseLimit(c, 50, 500)
	trades, err := r.store.RecentTrades(limit)
	if err != nil {
		logger.Errorf("[api] trades 查询失败 ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (r *Router) handleTradeDetail(c *gin.Context) {
	tradeID := strings.TrimSpace(c.Param("id"))
	if tradeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trade id 不能为空"})
		return
	}
	metrics, err := r.store.MetricsFor(tradeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	shadows, err := r.store.ShadowsFor(tradeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trade_id": tradeID,
		"metrics":  metrics,
		"shadows":  shadows,
	})
}

// dailyView 把 notes_json 摊平成可读字段。
type dailyView struct {
	model.StrategyDailyModel
	NoTradeReason string `json:"no_trade_reason,omitempty"`
}

func (r *Router) handleDaily(c *gin.Context) {
	limit := parseLimit(c, 30, 365)
	rows, err := r.store.ListDaily(limit)
	if err != nil {
		logger.Errorf("[api] daily 查询失败 ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]dailyView, 0, len(rows))
	for _, row := range rows {
		view := dailyView{StrategyDailyModel: row}
		if len(row.Notes) > 0 {
			view.NoTradeReason = gjson.GetBytes(row.Notes, "no_trade_reason").String()
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"daily": out, "count": len(out)})
}

func (r *Router) handleSignals(c *gin.Context) {
	limit := parseLimit(c, 100, 1000)
	signals, err := r.events.RecentSignals(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (r *Router) handlePnL(c *gin.Context) {
	limit := parseLimit(c, 100, 1000)
	snaps, err := r.events.RecentPnLSnapshots(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps, "count": len(snaps)})
}

func (r *Router) handleProfiles(c *gin.Context) {
	snap := r.profiles.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"loaded_at": snap.LoadedAt,
		"profiles":  snap.Templates,
	})
}

func parseLimit(c *gin.Context, def, max int) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}
