// internal/channel/hub.go
package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xkilldash9x/sendlater/api/schemas"
	"go.uber.org/zap"
)

// Constants for WebSocket timeouts and limits.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20
)

// DefaultRequestTimeout bounds one round trip when the caller's context has no deadline.
const DefaultRequestTimeout = 90 * time.Second

// Hub is the daemon side of the remote channel. Runners connect to it over a
// websocket; the most recent connection serves all requests.
type Hub struct {
	log      *zap.Logger
	timeout  time.Duration
	upgrader websocket.Upgrader

	mu     sync.Mutex
	runner *runnerConn
	closed bool
}

// NewHub builds a Hub. timeout <= 0 selects DefaultRequestTimeout.
func NewHub(logger *zap.Logger, timeout time.Duration) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Hub{
		log:     logger.Named("hub"),
		timeout: timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Runners are local processes, not browsers; there is no Origin to check.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and serves the runner until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Warn("Runner upgrade failed.", zap.Error(err))
		return
	}
	rc := newRunnerConn(conn, h.log)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		rc.close()
		return
	}
	prev := h.runner
	h.runner = rc
	h.mu.Unlock()
	if prev != nil {
		h.log.Info("Runner replaced by a newer connection.")
		prev.close()
	}
	h.log.Info("Runner connected.", zap.String("remote", r.RemoteAddr))

	go rc.pingLoop()
	rc.readPump()

	h.mu.Lock()
	if h.runner == rc {
		h.runner = nil
	}
	h.mu.Unlock()
	h.log.Info("Runner disconnected.", zap.String("remote", r.RemoteAddr))
}

// Connected reports whether a runner is attached.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runner != nil
}

// Request sends req to the attached runner and waits for the correlated response.
func (h *Hub) Request(ctx context.Context, req schemas.DispatchRequest) (schemas.DispatchResponse, error) {
	h.mu.Lock()
	rc := h.runner
	h.mu.Unlock()
	if rc == nil {
		return schemas.DispatchResponse{}, ErrUnavailable
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req.ID = uuid.NewString()
	reply := rc.await(req.ID)
	defer rc.forget(req.ID)

	if err := rc.write(req); err != nil {
		return schemas.DispatchResponse{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	select {
	case resp := <-reply:
		return outcome(resp)
	case <-rc.done:
		return schemas.DispatchResponse{}, fmt.Errorf("%w: runner disconnected", ErrUnavailable)
	case <-ctx.Done():
		return schemas.DispatchResponse{}, fmt.Errorf("runner did not answer %s request: %w", req.Action, ctx.Err())
	}
}

func (h *Hub) Available(ctx context.Context) bool {
	return available(ctx, h)
}

func (h *Hub) Open(ctx context.Context) error {
	return open(ctx, h)
}

// Close disconnects the runner and refuses further connections.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	rc := h.runner
	h.runner = nil
	h.mu.Unlock()
	if rc != nil {
		rc.close()
	}
	return nil
}

// runnerConn is one attached runner.
type runnerConn struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan schemas.DispatchResponse

	done      chan struct{}
	closeOnce sync.Once
}

func newRunnerConn(conn *websocket.Conn, logger *zap.Logger) *runnerConn {
	return &runnerConn{
		conn:    conn,
		log:     logger,
		pending: make(map[string]chan schemas.DispatchResponse),
		done:    make(chan struct{}),
	}
}

func (rc *runnerConn) await(id string) <-chan schemas.DispatchResponse {
	ch := make(chan schemas.DispatchResponse, 1)
	rc.mu.Lock()
	rc.pending[id] = ch
	rc.mu.Unlock()
	return ch
}

func (rc *runnerConn) forget(id string) {
	rc.mu.Lock()
	delete(rc.pending, id)
	rc.mu.Unlock()
}

func (rc *runnerConn) write(v any) error {
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	if err := rc.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return rc.conn.WriteJSON(v)
}

func (rc *runnerConn) close() {
	rc.closeOnce.Do(func() {
		close(rc.done)
		_ = rc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = rc.conn.Close()
	})
}

// readPump delivers responses to their waiting requests until the connection fails.
func (rc *runnerConn) readPump() {
	defer rc.close()

	rc.conn.SetReadLimit(maxMessageSize)
	_ = rc.conn.SetReadDeadline(time.Now().Add(pongWait))
	rc.conn.SetPongHandler(func(string) error {
		return rc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var resp schemas.DispatchResponse
		if err := rc.conn.ReadJSON(&resp); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				rc.log.Warn("Runner connection closed unexpectedly.", zap.Error(err))
			}
			return
		}
		rc.mu.Lock()
		ch, ok := rc.pending[resp.ID]
		delete(rc.pending, resp.ID)
		rc.mu.Unlock()
		if !ok {
			rc.log.Warn("Dropping response for an unknown or expired request.", zap.String("id", resp.ID))
			continue
		}
		ch <- resp
	}
}

func (rc *runnerConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-rc.done:
			return
		case <-ticker.C:
			if err := rc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				rc.log.Debug("Ping failed, closing runner connection.", zap.Error(err))
				rc.close()
				return
			}
		}
	}
}
