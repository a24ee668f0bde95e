package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// TradeHandler is called for each trade delivered on the stream.
type TradeHandler func(event *model.TradeEvent)

// StreamClient is a WebSocket client for the venue's trade stream. It is an
// alternative delivery path to the HTTP webhook: both produce the same
// TradeEvent and feed the same replication entry point.
type StreamClient struct {
	url            string
	conn           *websocket.Conn
	logger         *zap.Logger
	handlers       []TradeHandler
	handlersMu     sync.RWMutex
	connected      bool
	connectedMu    sync.RWMutex
	done           chan struct{}
	reconnectDelay time.Duration
}

// NewStreamClient creates a new trade stream client.
func NewStreamClient(url string, logger *zap.Logger) *StreamClient {
	return &StreamClient{
		url:            url,
		logger:         logger,
		handlers:       make([]TradeHandler, 0),
		done:           make(chan struct{}),
		reconnectDelay: 5 * time.Second,
	}
}

// Connect establishes the WebSocket connection and starts the read loop.
func (c *StreamClient) Connect(ctx context.Context) error {
	c.logger.Info("feed.connecting", zap.String("url", c.url))

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to trade stream: %w", err)
	}

	c.conn = conn
	c.setConnected(true)
	c.logger.Info("feed.connected")

	go c.readLoop()

	return nil
}

// Close closes the WebSocket connection.
func (c *StreamClient) Close() error {
	close(c.done)
	c.setConnected(false)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected returns whether the client is connected.
func (c *StreamClient) IsConnected() bool {
	c.connectedMu.RLock()
	defer c.connectedMu.RUnlock()
	return c.connected
}

func (c *StreamClient) setConnected(connected bool) {
	c.connectedMu.Lock()
	defer c.connectedMu.Unlock()
	c.connected = connected
}

// AddHandler adds a trade handler.
func (c *StreamClient) AddHandler(handler TradeHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, handler)
}

func (c *StreamClient) readLoop() {
	defer func() {
		c.setConnected(false)
		c.logger.Info("feed.read_loop_exited")
	}()

	for {
		select {
		case <-c.done:
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Info("feed.closed_normally")
					return
				}
				c.logger.Error("feed.read_error", zap.Error(err))
				c.scheduleReconnect()
				return
			}

			var event model.TradeEvent
			if err := json.Unmarshal(message, &event); err != nil {
				c.logger.Error("feed.unmarshal_failed",
					zap.String("payload", string(message)),
					zap.Error(err))
				continue
			}
			if err := event.Validate(); err != nil {
				c.logger.Warn("feed.invalid_trade", zap.Error(err))
				continue
			}

			c.notifyHandlers(&event)
		}
	}
}

func (c *StreamClient) notifyHandlers(event *model.TradeEvent) {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()

	for _, handler := range c.handlers {
		handler(event)
	}
}

func (c *StreamClient) scheduleReconnect() {
	c.logger.Info("feed.scheduling_reconnect", zap.Duration("delay", c.reconnectDelay))

	time.AfterFunc(c.reconnectDelay, func() {
		select {
		case <-c.done:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.Connect(ctx); err != nil {
			c.logger.Error("feed.reconnect_failed", zap.Error(err))
			c.scheduleReconnect()
		}
	})
}
