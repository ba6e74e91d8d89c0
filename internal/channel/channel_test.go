// internal/channel/channel_test.go
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/sendlater/api/schemas"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoHandler answers dispatches with the payload as the reason, so responses can
// be matched to requests.
func echoHandler(active bool) HandlerFunc {
	return func(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse {
		switch req.Action {
		case schemas.ActionStatus:
			return schemas.DispatchResponse{OK: active}
		case schemas.ActionOpen:
			if active {
				return schemas.Success()
			}
			return schemas.Failure("browser not running")
		}
		return schemas.DispatchResponse{OK: true, Reason: req.Payload}
	}
}

func TestLocal(t *testing.T) {
	ctx := context.Background()

	l := NewLocal(echoHandler(true))
	resp, err := l.Request(ctx, schemas.DispatchRequest{ID: "r1", Action: schemas.ActionDispatch, Payload: "hi"})
	require.NoError(t, err)
	assert.Equal(t, schemas.DispatchResponse{ID: "r1", OK: true, Reason: "hi"}, resp)
	assert.True(t, l.Available(ctx))
	assert.NoError(t, l.Open(ctx))

	inactive := NewLocal(echoHandler(false))
	assert.False(t, inactive.Available(ctx))
	err = inactive.Open(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "browser not running")

	none := NewLocal(nil)
	_, err = none.Request(ctx, schemas.DispatchRequest{Action: schemas.ActionDispatch})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, none.Available(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = l.Request(cancelled, schemas.DispatchRequest{Action: schemas.ActionDispatch})
	assert.ErrorIs(t, err, context.Canceled)
}

// sessionless answers every dispatch as if no host session could be reached.
func sessionless(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse {
	return schemas.Unreachable("NoActiveSession: no tab")
}

func TestLocal_UnreachableHostIsUnavailable(t *testing.T) {
	l := NewLocal(HandlerFunc(sessionless))
	resp, err := l.Request(context.Background(), schemas.DispatchRequest{ID: "r1", Action: schemas.ActionDispatch})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "NoActiveSession")
	assert.Equal(t, "r1", resp.ID)

	// Ordinary delivery failures stay responses.
	l = NewLocal(HandlerFunc(func(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse {
		return schemas.Failure("ComposerNotFound")
	}))
	resp, err = l.Request(context.Background(), schemas.DispatchRequest{Action: schemas.ActionDispatch})
	require.NoError(t, err)
	assert.Equal(t, "ComposerNotFound", resp.Reason)
}

func TestLocal_HandlerInterruptedByContext(t *testing.T) {
	started := make(chan struct{})
	l := NewLocal(HandlerFunc(func(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse {
		close(started)
		<-ctx.Done()
		return schemas.Failure(ctx.Err().Error())
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := l.Request(ctx, schemas.DispatchRequest{Action: schemas.ActionDispatch})
		errc <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestHubClient_UnreachableHostIsUnavailable(t *testing.T) {
	hs := startHarness(t, HandlerFunc(sessionless))

	_, err := hs.hub.Request(context.Background(), schemas.DispatchRequest{Action: schemas.ActionDispatch})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "NoActiveSession")
}

func TestHub_NoRunner(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t), time.Second)
	defer h.Close()
	ctx := context.Background()

	_, err := h.Request(ctx, schemas.DispatchRequest{Action: schemas.ActionDispatch})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, h.Available(ctx))
	assert.ErrorIs(t, h.Open(ctx), ErrUnavailable)
	assert.False(t, h.Connected())
}

type harness struct {
	hub    *Hub
	srv    *httptest.Server
	cancel context.CancelFunc
	done   chan error
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startHarness(t *testing.T, h Handler) *harness {
	t.Helper()
	// Hijacked handlers can outlive srv.Close, so these loggers must not be bound to t.
	hub := NewHub(zap.NewNop(), 5*time.Second)
	srv := httptest.NewServer(hub)
	client := NewClient(wsURL(srv), h, zap.NewNop(), WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Millisecond)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	hs := &harness{hub: hub, srv: srv, cancel: cancel, done: make(chan error, 1)}
	go func() { hs.done <- client.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-hs.done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Error("client did not stop")
		}
		hub.Close()
		srv.Close()
	})

	require.Eventually(t, hub.Connected, 5*time.Second, 10*time.Millisecond)
	return hs
}

func TestHubClient_RoundTrip(t *testing.T) {
	hs := startHarness(t, echoHandler(true))
	ctx := context.Background()

	resp, err := hs.hub.Request(ctx, schemas.DispatchRequest{Action: schemas.ActionDispatch, Recipient: "Alice", Payload: "hi"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "hi", resp.Reason)
	assert.NotEmpty(t, resp.ID, "responses carry the correlation id")

	assert.True(t, hs.hub.Available(ctx))
	assert.NoError(t, hs.hub.Open(ctx))
}

func TestHubClient_ConcurrentRequestsAreCorrelated(t *testing.T) {
	release := make(chan struct{})
	h := HandlerFunc(func(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse {
		if req.Payload == "slow" {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return schemas.DispatchResponse{OK: true, Reason: req.Payload}
	})
	hs := startHarness(t, h)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(map[string]string)
	var mu sync.Mutex
	for _, p := range []string{"slow", "a", "b", "c"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			resp, err := hs.hub.Request(ctx, schemas.DispatchRequest{Action: schemas.ActionDispatch, Payload: p})
			assert.NoError(t, err)
			mu.Lock()
			results[p] = resp.Reason
			mu.Unlock()
			if p == "c" {
				close(release)
			}
		}(p)
	}
	wg.Wait()
	assert.Equal(t, map[string]string{"slow": "slow", "a": "a", "b": "b", "c": "c"}, results)
}

func TestHub_RequestTimeout(t *testing.T) {
	h := HandlerFunc(func(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse {
		<-ctx.Done()
		return schemas.Failure("cancelled")
	})
	hs := startHarness(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := hs.hub.Request(ctx, schemas.DispatchRequest{Action: schemas.ActionDispatch})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestHub_RunnerDisconnectFailsPending(t *testing.T) {
	started := make(chan struct{})
	h := HandlerFunc(func(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse {
		close(started)
		<-ctx.Done()
		return schemas.Failure("cancelled")
	})
	hs := startHarness(t, h)

	errc := make(chan error, 1)
	go func() {
		_, err := hs.hub.Request(context.Background(), schemas.DispatchRequest{Action: schemas.ActionDispatch})
		errc <- err
	}()
	<-started
	hs.hub.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrUnavailable)
	case <-time.After(5 * time.Second):
		t.Fatal("pending request was not failed")
	}
}

func TestClient_Reconnects(t *testing.T) {
	hs := startHarness(t, echoHandler(true))

	hs.hub.mu.Lock()
	first := hs.hub.runner
	hs.hub.mu.Unlock()
	first.close()

	require.Eventually(t, func() bool {
		hs.hub.mu.Lock()
		defer hs.hub.mu.Unlock()
		return hs.hub.runner != nil && hs.hub.runner != first
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := hs.hub.Request(context.Background(), schemas.DispatchRequest{Action: schemas.ActionDispatch, Payload: "again"})
	require.NoError(t, err)
	assert.Equal(t, "again", resp.Reason)
}

func TestClient_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(wsURL(srv), echoHandler(true), nil, WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Millisecond)
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected credentials")
}

func TestClient_StopsWhileDialing(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws/runner", echoHandler(true), nil, WithMaxReconnectInterval(50*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)
}

func TestClient_HeaderFuncPerDial(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		n := len(seen)
		mu.Unlock()
		if n < 3 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	var calls int
	header := func() (http.Header, error) {
		calls++
		return http.Header{"Authorization": {fmt.Sprintf("Bearer t%d", calls)}}, nil
	}
	c := NewClient(wsURL(srv), echoHandler(true), nil,
		WithHeaderFunc(header),
		WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(5 * time.Millisecond) }))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, c.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer t1", "Bearer t2", "Bearer t3"}, seen)
}

func TestClient_HeaderFuncError(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", echoHandler(true), nil,
		WithHeaderFunc(func() (http.Header, error) { return nil, errors.New("no key") }))
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key")
}
