// internal/channel/client.go
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/xkilldash9x/sendlater/api/schemas"
	"go.uber.org/zap"
)

// DefaultMaxReconnectInterval caps the delay between reconnection attempts.
const DefaultMaxReconnectInterval = 30 * time.Second

// Client is the runner side of the remote channel. It dials a Hub and serves the
// requests it receives with a Handler, reconnecting whenever the connection drops.
type Client struct {
	url        string
	handler    Handler
	log        *zap.Logger
	header     func() (http.Header, error)
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHeader adds headers to the websocket handshake.
func WithHeader(h http.Header) ClientOption {
	return func(c *Client) {
		c.header = func() (http.Header, error) { return h, nil }
	}
}

// WithHeaderFunc computes the handshake headers before every dial, so a bearer
// token can be re-signed for each connection.
func WithHeaderFunc(f func() (http.Header, error)) ClientOption {
	return func(c *Client) { c.header = f }
}

// WithMaxReconnectInterval caps the exponential reconnection delay.
func WithMaxReconnectInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.newBackOff = exponential(d)
		}
	}
}

// WithBackOff replaces the reconnection policy.
func WithBackOff(f func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.newBackOff = f }
}

func exponential(maxInterval time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = maxInterval
		// Keep trying until the context is cancelled.
		b.MaxElapsedTime = 0
		return b
	}
}

// NewClient builds a Client for the hub at url (ws:// or wss://).
func NewClient(url string, h Handler, logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		url:        url,
		handler:    h,
		log:        logger.Named("runner"),
		dialer:     websocket.DefaultDialer,
		newBackOff: exponential(DefaultMaxReconnectInterval),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects and serves until ctx is cancelled. It returns ctx's error, or the
// error that made reconnection give up.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to connect to hub: %w", err)
		}
		c.log.Info("Connected to hub.", zap.String("url", c.url))
		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("Hub connection lost, reconnecting.")
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	operation := func() error {
		var header http.Header
		if c.header != nil {
			h, err := c.header()
			if err != nil {
				return backoff.Permanent(fmt.Errorf("build handshake headers: %w", err))
			}
			header = h
		}
		var resp *http.Response
		var err error
		conn, resp, err = c.dialer.DialContext(ctx, c.url, header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(fmt.Errorf("hub rejected credentials (status %d)", resp.StatusCode))
			}
			return err
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.log.Debug("Hub dial failed.", zap.Error(err), zap.Duration("retry_in", next))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

// serve handles requests on conn until it fails or ctx is cancelled. Every request
// runs on its own goroutine; serve returns only after all of them have answered.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	var writeMu sync.Mutex

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-connCtx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stopWatch:
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
		close(stopWatch)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	for {
		var req schemas.DispatchRequest
		if err := conn.ReadJSON(&req); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				c.log.Info("Hub closed the connection.", zap.Int("code", closeErr.Code))
			} else if connCtx.Err() == nil {
				c.log.Debug("Hub read failed.", zap.Error(err))
			}
			return
		}
		wg.Add(1)
		go func(req schemas.DispatchRequest) {
			defer wg.Done()
			resp := c.handler.Handle(connCtx, req)
			resp.ID = req.ID
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(resp); err != nil {
				c.log.Warn("Failed to answer hub request.", zap.String("id", req.ID), zap.Error(err))
			}
		}(req)
	}
}
