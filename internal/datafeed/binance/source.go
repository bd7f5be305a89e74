// Package binance 基于 go-binance 合约 SDK 实现行情来源：REST 回填
// 历史 K 线，websocket 推送实时 K 线（只投递已收线的）。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"rangebot/internal/logger"
	"rangebot/internal/market"
)

const maxBackfillLimit = 1500

// Source 是 Binance 合约行情来源。
type Source struct {
	cfg    Config
	client *futures.Client

	mu           sync.Mutex
	streamCancel context.CancelFunc
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{cfg: final, client: client}, nil
}

// Backfill 拉取最近 limit 根 K 线。返回的都标记为快照 bar，
// 最后一根若尚未收线则丢弃。
func (s *Source) Backfill(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxBackfillLimit {
		limit = maxBackfillLimit
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval 不能为空")
	}
	kls, err := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	out := make([]market.Bar, 0, len(kls))
	for _, kl := range kls {
		if kl == nil || kl.CloseTime > now {
			continue
		}
		out = append(out, market.Bar{
			TS:       time.UnixMilli(kl.OpenTime).UTC(),
			Symbol:   symbol,
			Open:     parseFloat(kl.Open),
			High:     parseFloat(kl.High),
			Low:      parseFloat(kl.Low),
			Close:    parseFloat(kl.Close),
			Volume:   parseFloat(kl.Volume),
			Snapshot: true,
		})
	}
	return out, nil
}

// Stream 订阅实时 K 线，断线后指数退避重连。
func (s *Source) Stream(ctx context.Context, symbol, interval string) (<-chan market.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	interval = strings.ToLower(strings.TrimSpace(interval))
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("symbol/interval 不能为空")
	}
	out := make(chan market.Bar, 256)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.streamCancel != nil {
		s.streamCancel()
	}
	s.streamCancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(out)
		s.runKlineLoop(subCtx, symbol, interval, out)
	}()
	return out, nil
}

func (s *Source) runKlineLoop(ctx context.Context, symbol, interval string, out chan<- market.Bar) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		handler := func(event *futures.WsKlineEvent) {
			bar, ok := convertKlineEvent(event)
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
			case out <- bar:
			default:
				logger.Warnf("[binance] K 线通道已满，丢弃 %s %s", bar.Symbol, bar.TS.Format(time.RFC3339))
			}
		}
		errHandler := func(err error) {
			if err != nil {
				logger.Warnf("[binance] websocket 错误: %v", err)
			}
		}
		doneC, stopC, err := futures.WsKlineServe(symbol, interval, handler, errHandler)
		if err != nil {
			logger.Warnf("[binance] 订阅失败: %v，%s 后重试", err, delay)
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		logger.Warnf("[binance] K 线流断开，%s 后重连", delay)
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
	return nil
}

// convertKlineEvent 只接受已收线的 K 线。
func convertKlineEvent(ev *futures.WsKlineEvent) (market.Bar, bool) {
	if ev == nil || !ev.Kline.IsFinal {
		return market.Bar{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if symbol == "" {
		return market.Bar{}, false
	}
	return market.Bar{
		TS:     time.UnixMilli(ev.Kline.StartTime).UTC(),
		Symbol: symbol,
		Open:   parseFloat(ev.Kline.Open),
		High:   parseFloat(ev.Kline.High),
		Low:    parseFloat(ev.Kline.Low),
		Close:  parseFloat(ev.Kline.Close),
		Volume: parseFloat(ev.Kline.Volume),
	}, true
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
