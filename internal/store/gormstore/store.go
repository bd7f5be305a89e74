// Package gormstore 用 gorm+SQLite 实现交易日志库：交易记录、指标、
// 影子出场、日汇总、订单与 K 线历史。
package gormstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"rangebot/internal/journal"
	"rangebot/internal/market"
	"rangebot/internal/store/model"
)

// Store 是交易日志库的统一入口。
type Store struct {
	db *gorm.DB
}

// NewStore 打开（或创建）指定路径的 SQLite 库并自动建表。
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("交易日志库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// CGO_ENABLED=0 构建：走 modernc 纯 Go 驱动（DSN 的 _pragma 语法即为其格式）。
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newStore(db)
}

// NewStoreFromDB 复用外部已打开的 gorm 连接（测试用内存库）。
func NewStoreFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	return newStore(db)
}

func newStore(db *gorm.DB) (*Store, error) {
	models := []interface{}{
		&model.TradeModel{},
		&model.TradeMetricsModel{},
		&model.TradeShadowModel{},
		&model.StrategyDailyModel{},
		&model.OrderModel{},
		&model.BarModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		// SQLite + WAL：给 HTTP 只读查询留一点并发空间，同时压低锁竞争。
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var (
	_ journal.TradeStore = (*Store)(nil)
	_ journal.BarStore   = (*Store)(nil)
	_ journal.DailyStore = (*Store)(nil)
)

// UpsertTrade 按 trade_id 整行覆盖。
func (s *Store) UpsertTrade(rec journal.TradeRecord) error {
	row := model.TradeModel{
		TradeID:     rec.TradeID,
		InstanceID:  rec.InstanceID,
		Strategy:    rec.Strategy,
		Symbol:      rec.Symbol,
		EntryTS:     rec.EntryTS,
		EntryPrice:  rec.EntryPrice,
		EntrySide:   rec.EntrySide,
		EntryReason: rec.EntryReason,
		ExitTS:      rec.ExitTS,
		ExitPrice:   rec.ExitPrice,
		ExitReason:  rec.ExitReason,
		Qty:         rec.Qty,
		PnLUSD:      rec.PnLUSD,
		RangeHigh:   rec.RangeHigh,
		RangeLow:    rec.RangeLow,
		RiskPerUnit: rec.RiskPerUnit,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trade_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// UpsertTradeMetrics 按 trade_id 整行覆盖。
func (s *Store) UpsertTradeMetrics(m journal.TradeMetrics) error {
	row := model.TradeMetricsModel{
		TradeID:         m.TradeID,
		DurationSeconds: m.DurationSeconds,
		MAE:             m.MAE,
		MFE:             m.MFE,
	}
	if m.HasRMultiple {
		r := m.RMultiple
		row.RMultiple = &r
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trade_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// UpsertTradeShadow 按 (trade_id, variant_name) 整行覆盖。
func (s *Store) UpsertTradeShadow(res journal.ShadowExitResult) error {
	row := model.TradeShadowModel{
		TradeID:     res.TradeID,
		VariantName: res.VariantName,
		ExitTS:      res.ExitTS,
		ExitPrice:   res.ExitPrice,
		PnLUSD:      res.PnLUSD,
		ReasonExit:  res.ExitReason,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trade_id"}, {Name: "variant_name"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// UpsertDaily 合并一份日汇总：计数器取新旧较大者，区间等描述性
// 字段以新值为准，trades_closed_count 只在 BumpTradesClosed 里累加。
func (s *Store) UpsertDaily(agg journal.DailyAggregate) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row model.StrategyDailyModel
		err := tx.Where("day = ? AND symbol = ? AND strategy = ?",
			agg.Day, agg.Symbol, agg.Strategy).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = model.StrategyDailyModel{Day: agg.Day, Symbol: agg.Symbol, Strategy: agg.Strategy}
		} else if err != nil {
			return err
		}
		row.Timezone = agg.Timezone
		row.RangeStart = agg.RangeStart
		row.RangeEnd = agg.RangeEnd
		row.EntryStart = agg.EntryStart
		row.EntryEnd = agg.EntryEnd
		if agg.HasRange {
			row.HasRange = true
			row.RangeHigh = agg.RangeHigh
			row.RangeLow = agg.RangeLow
		}
		row.RangeBars = max(row.RangeBars, agg.RangeBars)
		row.SignalsCount = max(row.SignalsCount, agg.SignalsCount)
		row.EntriesCount = max(row.EntriesCount, agg.EntriesCount)
		row.ExitsCount = max(row.ExitsCount, agg.ExitsCount)
		if agg.Notes != "" {
			notes, err := json.Marshal(map[string]string{"no_trade_reason": agg.Notes})
			if err == nil {
				row.Notes = datatypes.JSON(notes)
			}
		}
		return tx.Save(&row).Error
	})
}

// BumpTradesClosed 递增指定日汇总的已平仓笔数。
func (s *Store) BumpTradesClosed(day, symbol, strategyName string, delta int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row model.StrategyDailyModel
		err := tx.Where("day = ? AND symbol = ? AND strategy = ?",
			day, symbol, strategyName).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = model.StrategyDailyModel{Day: day, Symbol: symbol, Strategy: strategyName}
		} else if err != nil {
			return err
		}
		row.TradesClosedCount += delta
		return tx.Save(&row).Error
	})
}

// InsertOrder 登记一张新订单（状态 Created）。
func (s *Store) InsertOrder(intent market.OrderIntent) error {
	now := time.Now().UTC()
	row := model.OrderModel{
		ClientOrderID: intent.ClientOrderID,
		Symbol:        intent.Symbol,
		Side:          string(intent.Side),
		Qty:           intent.Qty,
		OrderType:     intent.OrderType,
		LimitPrice:    intent.LimitPrice,
		Tag:           intent.Tag,
		Status:        market.OrderStatusCreated,
		CreatedTS:     now,
		UpdatedTS:     now,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_order_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// UpdateOrderAck 记录券商回执：补 broker_order_id 并置为 Submitted。
func (s *Store) UpdateOrderAck(clientOrderID, brokerOrderID string) error {
	return s.db.Model(&model.OrderModel{}).
		Where("client_order_id = ?", clientOrderID).
		Updates(map[string]any{
			"broker_order_id": brokerOrderID,
			"status":          market.OrderStatusSubmitted,
			"updated_ts":      time.Now().UTC(),
		}).Error
}

// UpdateOrderStatus 更新订单状态；brokerOrderID 非空时一并补写。
func (s *Store) UpdateOrderStatus(clientOrderID, status, brokerOrderID string) error {
	updates := map[string]any{
		"status":     status,
		"updated_ts": time.Now().UTC(),
	}
	if brokerOrderID != "" {
		updates["broker_order_id"] = brokerOrderID
	}
	return s.db.Model(&model.OrderModel{}).
		Where("client_order_id = ?", clientOrderID).
		Updates(updates).Error
}

// OpenOrders 返回本地仍视为在途的订单。
func (s *Store) OpenOrders() ([]model.OrderModel, error) {
	var rows []model.OrderModel
	err := s.db.
		Where("status NOT IN ?", []string{
			market.OrderStatusFilled,
			market.OrderStatusCancelled,
			market.OrderStatusMissingOnBroker,
		}).
		Order("created_ts ASC").
		Find(&rows).Error
	return rows, err
}

// UpsertBar 按 (symbol, ts) 覆盖一根 K 线。
func (s *Store) UpsertBar(bar market.Bar) error {
	row := model.BarModel{
		TS:       bar.TS.UTC(),
		Symbol:   bar.Symbol,
		Open:     bar.Open,
		High:     bar.High,
		Low:      bar.Low,
		Close:    bar.Close,
		Volume:   bar.Volume,
		Snapshot: bar.Snapshot,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ts"}, {Name: "symbol"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// BarsBetween 返回闭区间 [from, to] 内的 K 线，按时间升序。
func (s *Store) BarsBetween(symbol string, from, to time.Time) ([]market.Bar, error) {
	var rows []model.BarModel
	err := s.db.
		Where("symbol = ? AND ts >= ? AND ts <= ?", symbol, from.UTC(), to.UTC()).
		Order("ts ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	bars := make([]market.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, market.Bar{
			TS:       row.TS,
			Symbol:   row.Symbol,
			Open:     row.Open,
			High:     row.High,
			Low:      row.Low,
			Close:    row.Close,
			Volume:   row.Volume,
			Snapshot: row.Snapshot,
		})
	}
	return bars, nil
}

// RecentTrades 返回最近的交易记录（按开仓时间倒序）。
func (s *Store) RecentTrades(limit int) ([]model.TradeModel, error) {
	var rows []model.TradeModel
	q := s.db.Order("entry_ts DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// MetricsFor 返回指定交易的指标，不存在时返回 (nil, nil)。
func (s *Store) MetricsFor(tradeID string) (*model.TradeMetricsModel, error) {
	var row model.TradeMetricsModel
	err := s.db.Where("trade_id = ?", tradeID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListShadows 返回最近的影子出场（按出场时间倒序）。
func (s *Store) ListShadows(limit int) ([]model.TradeShadowModel, error) {
	var rows []model.TradeShadowModel
	q := s.db.Order("exit_ts DESC, variant_name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// ShadowsFor 返回指定交易的全部影子出场。
func (s *Store) ShadowsFor(tradeID string) ([]model.TradeShadowModel, error) {
	var rows []model.TradeShadowModel
	err := s.db.Where("trade_id = ?", tradeID).Order("variant_name ASC").Find(&rows).Error
	return rows, err
}

// ListDaily 返回最近若干天的日汇总（按日期倒序）。
func (s *Store) ListDaily(limit int) ([]model.StrategyDailyModel, error) {
	var rows []model.StrategyDailyModel
	q := s.db.Order("day DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
