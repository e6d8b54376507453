package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	feedInitialReconnectWait = time.Second
	feedMaxReconnectWait     = 30 * time.Second
	feedReadTimeout          = 90 * time.Second
)

// EventHandler receives one decoded feed event. Handlers run on the feed's
// read goroutine and should hand work off quickly.
type EventHandler func(Event)

// Feed subscribes to the remote store's websocket event feed and keeps the
// subscription alive across connection drops with exponential backoff.
type Feed struct {
	url     string
	handler EventHandler
	logger  *slog.Logger
	dialer  *websocket.Dialer
}

// NewFeed creates a feed client for the given websocket URL.
func NewFeed(url string, handler EventHandler, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		url:     url,
		handler: handler,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
	}
}

// Run connects and dispatches events until the context is cancelled.
// Connection failures are retried with backoff; Run only returns the
// context's error.
func (f *Feed) Run(ctx context.Context) error {
	wait := feedInitialReconnectWait
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
		if err != nil {
			f.logger.Warn("event feed dial failed", "url", f.url, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
			if wait > feedMaxReconnectWait {
				wait = feedMaxReconnectWait
			}
			continue
		}

		f.logger.Info("event feed connected", "url", f.url)
		wait = feedInitialReconnectWait
		f.readLoop(ctx, conn)
	}
}

// readLoop dispatches events until the connection breaks or ctx ends.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// Unblock the reader when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() == nil {
				f.logger.Warn("event feed read failed, reconnecting", "error", err)
			}
			return
		}
		if event.Type == EventTypeAck {
			continue
		}
		f.handler(event)
	}
}
