package statushttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangebot/internal/journal"
	"rangebot/internal/ledger"
	"rangebot/internal/market"
	"rangebot/internal/risk"
	"rangebot/internal/store/eventlog"
	"rangebot/internal/store/gormstore"
)

func newTestServer(t *testing.T) (*Server, *ledger.Ledger, *gormstore.Store, *eventlog.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := gormstore.NewStore(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	events, err := eventlog.NewStore(filepath.Join(dir, "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	led := ledger.New("MGC", 10)
	gov := risk.New(risk.Limits{MaxPosition: 1, MaxOrderSize: 1, MaxDailyLossUSD: 100})
	router := NewRouter(led, gov, store, events, nil, "paper", "breakout")
	srv, err := NewServer(ServerConfig{Addr: ":0", Router: router})
	require.NoError(t, err)
	return srv, led, store, events
}

func doGet(t *testing.T, srv *Server, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Handler().ServeHTTP(rec, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	code, body := doGet(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestStatusReflectsLedger(t *testing.T) {
	srv, led, _, _ := newTestServer(t)
	led.OnFill(market.Fill{TS: time.Now().UTC(), Symbol: "MGC", Side: market.SideBuy, Qty: 1, Price: 2000, ExecID: "e1"})
	led.MarkPrice(2001)

	code, body := doGet(t, srv, "/api/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["position"])
	assert.Equal(t, 2000.0, body["avg_price"])
	assert.Equal(t, 10.0, body["unrealized_usd"]) // 1 手 × 乘数 10 × 1 点
	assert.Equal(t, false, body["halted"])
}

func TestDailyFlattensNotes(t *testing.T) {
	srv, _, store, _ := newTestServer(t)
	require.NoError(t, store.UpsertDaily(journal.DailyAggregate{
		Day: "2025-03-10", Symbol: "MGC", Strategy: "breakout",
		Timezone: "America/New_York", Notes: "no_entries",
	}))

	code, body := doGet(t, srv, "/api/daily")
	assert.Equal(t, http.StatusOK, code)
	days := body["daily"].([]any)
	require.Len(t, days, 1)
	assert.Equal(t, "no_entries", days[0].(map[string]any)["no_trade_reason"])
}

func TestTradesAndSignalsEmpty(t *testing.T) {
	srv, _, _, events := newTestServer(t)
	require.NoError(t, events.InsertSignal(eventlog.SignalRecord{
		TS: time.Now().UTC(), Symbol: "MGC", Strategy: "breakout",
		Type: "entry", Side: "BUY", Qty: 1, Reason: "orb_entry_long",
	}))

	code, body := doGet(t, srv, "/api/trades")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])

	code, body = doGet(t, srv, "/api/signals")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
}
