package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamHandler supplies venue-specific logic to a WSWorker.
type StreamHandler interface {
	ID() string
	URL() string
	OnConnect(ctx context.Context, conn *websocket.Conn) error
	OnMessage(ctx context.Context, msg []byte)
	OnPing(ctx context.Context, conn *websocket.Conn) error
}

// WSWorker owns one WebSocket connection: it reconnects with exponential
// backoff, enforces read deadlines, and pings.
type WSWorker struct {
	handler StreamHandler
	retry   RetryConfig
	clock   Clock

	mu     sync.RWMutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ReadTimeout  time.Duration
	PingInterval time.Duration
}

// NewWSWorker creates a worker around handler. The retry config bounds the
// reconnect backoff.
func NewWSWorker(handler StreamHandler, retry RetryConfig, clock Clock) *WSWorker {
	return &WSWorker{
		handler:      handler,
		retry:        retry,
		clock:        clock,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Start launches the connect/read loop.
func (w *WSWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop tears the worker down and waits for the loop to exit.
func (w *WSWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConn()
	w.wg.Wait()
}

func (w *WSWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retries := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			delay := w.retry.BackoffDelay(retries)
			retries++
			slog.Warn("ws connect failed",
				slog.String("id", w.handler.ID()),
				slog.Any("error", err),
				slog.Duration("backoff", delay))
			select {
			case <-ctx.Done():
				return
			case <-w.clock.After(delay):
				continue
			}
		}

		retries = 0
		w.readLoop(ctx)
	}
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, conn); err != nil {
		w.closeConn()
		return fmt.Errorf("on connect: %w", err)
	}

	if w.PingInterval > 0 {
		go w.pingLoop(ctx, conn)
	}

	slog.Info("ws connected", slog.String("id", w.handler.ID()))
	return nil
}

func (w *WSWorker) readLoop(ctx context.Context) {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return
		}

		_ = c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("ws read error", slog.String("id", w.handler.ID()), slog.Any("error", err))
			}
			w.closeConn()
			return
		}
		w.handler.OnMessage(ctx, msg)
	}
}

func (w *WSWorker) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			current := w.conn
			w.mu.RUnlock()
			if current != conn {
				return // superseded by a reconnect
			}
			if err := w.handler.OnPing(ctx, conn); err != nil {
				slog.Warn("ws ping failed", slog.String("id", w.handler.ID()), slog.Any("error", err))
				return
			}
		}
	}
}

func (w *WSWorker) closeConn() {
	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()
}
