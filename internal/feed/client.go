// Package feed ingests daily balance snapshots and trade fills from the
// upstream trading platform over a WebSocket stream.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// Config configures WebSocket client behavior.
type Config struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is the maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client consumes the platform feed and persists frames into the balance and
// trade stores. Duplicate frames after a reconnect replay are tolerated.
type Client struct {
	endpoint string
	config   Config

	balances storage.BalanceStore
	trades   storage.TradeStore

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	reconnecting atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient connects to the endpoint and starts consuming frames.
func NewClient(ctx context.Context, endpoint string, balances storage.BalanceStore, trades storage.TradeStore, config *Config) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		balances: balances,
		trades:   trades,
		done:     make(chan struct{}),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn
	return nil
}

// Close closes the WebSocket connection and stops the loops.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads frames and reconnects with exponential backoff on error.
func (c *Client) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}
			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

func (c *Client) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}
	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.connect(ctx); err != nil {
		// Next read error retries.
		return
	}
	log.Printf("[feed] reconnected to %s", c.endpoint)
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Reader handles the reconnect.
				}
			}
			c.connMu.Unlock()
		}
	}
}

// frame is one feed message. The platform sends one frame per balance
// snapshot or trade fill.
type frame struct {
	Type    string  `json:"type"` // "balance" or "trade"
	AgentID string  `json:"agent_id"`
	Date    string  `json:"date"`
	Balance float64 `json:"balance,omitempty"`
	Symbol  string  `json:"symbol,omitempty"`
	PnL     float64 `json:"pnl,omitempty"`
}

func (c *Client) handleMessage(message []byte) {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		log.Printf("[feed] unparseable frame dropped: %v", err)
		return
	}
	date, err := domain.ParseDay(f.Date)
	if err != nil {
		log.Printf("[feed] frame with bad date %q dropped", f.Date)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch f.Type {
	case "balance":
		err := c.balances.Insert(ctx, &domain.BalanceSnapshot{
			AgentID: f.AgentID,
			Date:    date,
			Balance: f.Balance,
		})
		// Replays after reconnect resend frames already stored.
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			log.Printf("[feed] store balance %s/%s: %v", f.AgentID, date, err)
		}
	case "trade":
		err := c.trades.InsertBulk(ctx, []*domain.TradeFill{{
			AgentID: f.AgentID,
			Date:    date,
			Symbol:  f.Symbol,
			PnL:     f.PnL,
		}})
		if err != nil {
			log.Printf("[feed] store trade %s/%s: %v", f.AgentID, date, err)
		}
	default:
		log.Printf("[feed] unknown frame type %q dropped", f.Type)
	}
}
