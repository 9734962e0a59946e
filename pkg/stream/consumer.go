// Package stream consumes the backend's realtime message feed over a
// websocket and dispatches events into the timeline sync layer.
package stream

import (
	"context"
	"sync"
	"time"

	"channelsync/internal/models"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// EventHandler receives decoded stream events. Implemented by the sync
// manager.
type EventHandler interface {
	Apply(conversationID string, event models.MessageEvent)
}

// frame is one wire message of the realtime feed.
type frame struct {
	ConversationID string                  `json:"conversationId"`
	Type           models.MessageEventType `json:"type"`
	Message        models.Message          `json:"message"`
}

// Consumer maintains a websocket subscription against the realtime feed,
// reconnecting with exponential backoff when the connection drops. Frames
// are dispatched from a single goroutine, so the handler sees events in
// arrival order.
type Consumer struct {
	url     string
	handler EventHandler
	cfg     models.StreamConfig
	logger  *logrus.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn // live connection, nil between attempts
}

// NewConsumer creates a stream consumer.
func NewConsumer(cfg models.StreamConfig, handler EventHandler, logger *logrus.Logger) *Consumer {
	return &Consumer{
		url:     cfg.URL,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the consume loop. It returns immediately; the loop runs
// until Close is called or the context is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	go c.loop(ctx)
}

func (c *Consumer) loop(ctx context.Context) {
	defer close(c.done)

	delay := time.Duration(c.cfg.ReconnectInitialMs) * time.Millisecond
	maxDelay := time.Duration(c.cfg.ReconnectMaxSec) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		err := c.consume(ctx)
		if err != nil && ctx.Err() == nil && !c.stopping() {
			c.logger.WithError(err).WithField("delay", delay).Warn("Realtime stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	cancel()
	if err != nil {
		return err
	}

	// Track the live connection so Close can unblock a pending read. A
	// shutdown that raced the dial closes it straight away.
	if !c.trackConn(conn) {
		conn.Close(websocket.StatusNormalClosure, "shutting down")
		return nil
	}
	defer c.releaseConn(conn)

	c.logger.WithField("url", c.url).Info("Realtime stream connected")

	for {
		select {
		case <-c.stopCh:
			return nil
		default:
		}

		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}

		if f.ConversationID == "" {
			c.logger.Warn("Dropping stream frame without conversation id")
			continue
		}

		c.handler.Apply(f.ConversationID, models.MessageEvent{
			Type:    f.Type,
			Message: f.Message,
		})
	}
}

func (c *Consumer) trackConn(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stopCh:
		return false
	default:
	}
	c.conn = conn
	return true
}

func (c *Consumer) releaseConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "shutting down")
}

func (c *Consumer) stopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Close stops the consumer and waits for the loop to exit. A read parked on
// a quiet feed is unblocked by tearing down the connection. Closing twice
// is a no-op.
func (c *Consumer) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.CloseNow()
		}
	})
	<-c.done
}
