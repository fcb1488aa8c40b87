package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iamfarzad/polyagent/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// PriceFeed streams last-trade prices from the CLOB market WebSocket into a
// price cache. The 15-minute scalper reads the cache instead of polling the
// REST midpoint on every loop.
type PriceFeed struct {
	wsURL  string
	cache  domain.PriceCache
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	tokens []string
	closed bool

	done chan struct{}
}

// NewPriceFeed creates a feed for the given WebSocket endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewPriceFeed(wsURL string, cache domain.PriceCache, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:  wsURL,
		cache:  cache,
		logger: logger.With(slog.String("component", "price_feed")),
		done:   make(chan struct{}),
	}
}

// Connect dials the WebSocket and starts the read and ping loops. Any token
// subscriptions registered before a reconnect are replayed.
func (f *PriceFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	f.conn = conn

	f.conn.SetReadDeadline(time.Now().Add(pongWait))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go f.readLoop()
	go f.pingLoop()

	if len(f.tokens) > 0 {
		if err := f.sendSubscribe(f.tokens); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscriptions: %w", err)
		}
	}
	return nil
}

// Watch subscribes the feed to the given outcome token IDs.
func (f *PriceFeed) Watch(tokenIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}
	if err := f.sendSubscribe(tokenIDs); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	f.tokens = append(f.tokens, tokenIDs...)
	return nil
}

// Close shuts down the connection and stops the loops.
func (f *PriceFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	close(f.done)

	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return f.conn.Close()
	}
	return nil
}

// sendSubscribe sends a subscribe command. Caller must hold f.mu.
func (f *PriceFeed) sendSubscribe(tokenIDs []string) error {
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(wsCommand{Type: "market", AssetIDs: tokenIDs})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames and forwards prices to the cache. On disconnect it
// reconnects with exponential backoff.
func (f *PriceFeed) readLoop() {
	for {
		select {
		case <-f.done:
			return
		default:
		}

		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			f.logger.Warn("feed disconnected, reconnecting", slog.Any("error", err))
			f.reconnect()
			return
		}

		f.handleMessage(message)
	}
}

func (f *PriceFeed) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.mu.Lock()
			conn := f.conn
			f.mu.Unlock()
			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes a frame and stores any price it carries. The market
// channel can deliver frames as a single object or as an array of objects.
func (f *PriceFeed) handleMessage(raw []byte) {
	var msgs []wsPriceMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		var single wsPriceMessage
		if err := json.Unmarshal(raw, &single); err != nil {
			return
		}
		msgs = []wsPriceMessage{single}
	}

	for _, msg := range msgs {
		if msg.EventType != "last_trade_price" && msg.EventType != "price_change" {
			continue
		}
		price, err := strconv.ParseFloat(msg.Price, 64)
		if err != nil || msg.AssetID == "" {
			continue
		}

		ts := time.Now()
		if unixMs, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
			ts = time.UnixMilli(unixMs)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := f.cache.SetPrice(ctx, msg.AssetID, price, ts); err != nil {
			f.logger.Warn("cache price update failed",
				slog.String("token_id", msg.AssetID),
				slog.Any("error", err))
		}
		cancel()
	}
}

// reconnect blocks until the connection is re-established or the feed is
// closed.
func (f *PriceFeed) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-f.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := f.Connect(ctx)
		cancel()
		if err == nil {
			f.logger.Info("feed reconnected")
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
