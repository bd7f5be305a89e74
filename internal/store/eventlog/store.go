// Package eventlog 是追加型事件库：策略信号、成交流水和 PnL 快照。
// 走原生 database/sql + SQLite，避免和交易日志库抢 gorm 连接。
package eventlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"rangebot/internal/market"
)

// PnLSnapshot 是一次心跳的账户快照。
type PnLSnapshot struct {
	TS            time.Time `json:"ts"`
	Symbol        string    `json:"symbol"`
	PositionQty   int       `json:"position_qty"`
	AvgPrice      float64   `json:"avg_price"`
	LastPrice     float64   `json:"last_price"`
	UnrealizedUSD float64   `json:"unrealized_usd"`
	RealizedUSD   float64   `json:"realized_usd"`
	Commissions   float64   `json:"commissions_usd"`
}

// SignalRecord 是一条落库的策略信号。
type SignalRecord struct {
	TS       time.Time `json:"ts"`
	Symbol   string    `json:"symbol"`
	Strategy string    `json:"strategy"`
	Type     string    `json:"type"`
	Side     string    `json:"side,omitempty"`
	Qty      int       `json:"qty,omitempty"`
	Reason   string    `json:"reason"`
	PriceRef float64   `json:"price_ref,omitempty"`
	BarTS    time.Time `json:"bar_ts,omitempty"`
	Snapshot bool      `json:"is_snapshot"`
	Extras   any       `json:"extras,omitempty"`
}

// Store 管理事件库连接。所有写入串行化，SQLite 单写者足够。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS strategy_signals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts TEXT NOT NULL,
    symbol TEXT NOT NULL,
    strategy TEXT NOT NULL,
    type TEXT NOT NULL,
    side TEXT,
    qty INTEGER,
    reason TEXT NOT NULL DEFAULT '',
    price_ref REAL,
    bar_ts TEXT,
    is_snapshot INTEGER NOT NULL DEFAULT 0,
    extras_json TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS fills (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts TEXT NOT NULL,
    client_order_id TEXT,
    broker_order_id TEXT,
    exec_id TEXT,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    qty INTEGER NOT NULL,
    price REAL NOT NULL,
    commission REAL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_fills_exec_id ON fills(exec_id) WHERE exec_id IS NOT NULL AND exec_id != '';
CREATE TABLE IF NOT EXISTS pnl_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts TEXT NOT NULL,
    symbol TEXT NOT NULL,
    position_qty INTEGER NOT NULL,
    avg_price REAL NOT NULL,
    last_price REAL,
    unrealized_usd REAL NOT NULL,
    realized_usd REAL NOT NULL,
    commissions_usd REAL NOT NULL
);
`

// NewStore 打开（或创建）事件库并应用 schema。
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("事件库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db, path: path}, nil
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertSignal 追加一条策略信号。
func (s *Store) InsertSignal(rec SignalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	extras := "{}"
	if rec.Extras != nil {
		if data, err := json.Marshal(rec.Extras); err == nil {
			extras = string(data)
		}
	}
	var barTS any
	if !rec.BarTS.IsZero() {
		barTS = rec.BarTS.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.Exec(
		`INSERT INTO strategy_signals(ts, symbol, strategy, type, side, qty, reason, price_ref, bar_ts, is_snapshot, extras_json)
         VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		rec.TS.UTC().Format(time.RFC3339Nano), rec.Symbol, rec.Strategy, rec.Type,
		rec.Side, rec.Qty, rec.Reason, rec.PriceRef, barTS, boolToInt(rec.Snapshot), extras,
	)
	return err
}

// InsertFill 追加一条成交，按 exec_id 去重（重复返回 false）。
func (s *Store) InsertFill(f market.Fill) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ExecID != "" {
		var exists int
		err := s.db.QueryRow(`SELECT COUNT(1) FROM fills WHERE exec_id = ?`, f.ExecID).Scan(&exists)
		if err != nil {
			return false, err
		}
		if exists > 0 {
			return false, nil
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO fills(ts, client_order_id, broker_order_id, exec_id, symbol, side, qty, price, commission)
         VALUES(?,?,?,?,?,?,?,?,?)`,
		f.TS.UTC().Format(time.RFC3339Nano), f.ClientOrderID, f.BrokerOrderID, f.ExecID,
		f.Symbol, string(f.Side), f.Qty, f.Price, f.Commission,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateFillCommission 给尚无手续费的成交补写佣金回报。
// 返回是否真正更新了记录。
func (s *Store) UpdateFillCommission(execID string, commission float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE fills SET commission = ? WHERE exec_id = ? AND (commission IS NULL OR commission = 0)`,
		commission, execID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertPnLSnapshot 追加一条账户快照。
func (s *Store) InsertPnLSnapshot(snap PnLSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO pnl_snapshots(ts, symbol, position_qty, avg_price, last_price, unrealized_usd, realized_usd, commissions_usd)
         VALUES(?,?,?,?,?,?,?,?)`,
		snap.TS.UTC().Format(time.RFC3339Nano), snap.Symbol, snap.PositionQty, snap.AvgPrice,
		snap.LastPrice, snap.UnrealizedUSD, snap.RealizedUSD, snap.Commissions,
	)
	return err
}

// RecentSignals 返回最近的信号（倒序）。
func (s *Store) RecentSignals(limit int) ([]SignalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT ts, symbol, strategy, type, COALESCE(side,''), COALESCE(qty,0), reason,
                COALESCE(price_ref,0), COALESCE(bar_ts,''), is_snapshot
         FROM strategy_signals ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var rec SignalRecord
		var ts, barTS string
		var snapshot int
		if err := rows.Scan(&ts, &rec.Symbol, &rec.Strategy, &rec.Type, &rec.Side,
			&rec.Qty, &rec.Reason, &rec.PriceRef, &barTS, &snapshot); err != nil {
			return nil, err
		}
		rec.TS, _ = time.Parse(time.RFC3339Nano, ts)
		if barTS != "" {
			rec.BarTS, _ = time.Parse(time.RFC3339Nano, barTS)
		}
		rec.Snapshot = snapshot != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentPnLSnapshots 返回最近的账户快照（倒序）。
func (s *Store) RecentPnLSnapshots(limit int) ([]PnLSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT ts, symbol, position_qty, avg_price, COALESCE(last_price,0),
                unrealized_usd, realized_usd, commissions_usd
         FROM pnl_snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PnLSnapshot
	for rows.Next() {
		var snap PnLSnapshot
		var ts string
		if err := rows.Scan(&ts, &snap.Symbol, &snap.PositionQty, &snap.AvgPrice,
			&snap.LastPrice, &snap.UnrealizedUSD, &snap.RealizedUSD, &snap.Commissions); err != nil {
			return nil, err
		}
		snap.TS, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
