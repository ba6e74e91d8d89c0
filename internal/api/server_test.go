// internal/api/server_test.go
package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/sendlater/api/schemas"
	"github.com/xkilldash9x/sendlater/internal/api"
	"github.com/xkilldash9x/sendlater/internal/config"
	"github.com/xkilldash9x/sendlater/internal/scheduler"
	"github.com/xkilldash9x/sendlater/internal/store"
)

// mockScheduler is a testify mock of api.Scheduler.
type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Register(ctx context.Context, recipient, payload string, at time.Time) (schemas.ScheduledAction, error) {
	args := m.Called(ctx, recipient, payload, at)
	return args.Get(0).(schemas.ScheduledAction), args.Error(1)
}

func (m *mockScheduler) List(ctx context.Context) ([]schemas.ScheduledAction, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]schemas.ScheduledAction)
	return records, args.Error(1)
}

func (m *mockScheduler) Cancel(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockScheduler) Trigger(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func serve(t *testing.T, cfg config.APIConfig, sched api.Scheduler, opts ...api.Option) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api.NewServer(cfg, sched, zaptest.NewLogger(t), opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv := serve(t, config.APIConfig{AuthSecret: "s3cret"}, new(mockScheduler))
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health check is public")
}

func TestCreateSchedule(t *testing.T) {
	at := time.UnixMilli(1767225600000)
	rec := schemas.ScheduledAction{ID: "a1", Recipient: "Alice", Payload: "hi", ScheduledTime: at.UnixMilli(), Status: schemas.StatusPending}

	t.Run("Created", func(t *testing.T) {
		sched := new(mockScheduler)
		sched.On("Register", mock.Anything, "Alice", "hi", at).Return(rec, nil)
		srv := serve(t, config.APIConfig{}, sched)

		resp := do(t, http.MethodPost, srv.URL+"/api/v1/schedules",
			fmt.Sprintf(`{"recipient":"Alice","payload":"hi","scheduledTime":%d}`, at.UnixMilli()), nil)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		sched.AssertExpectations(t)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		srv := serve(t, config.APIConfig{}, new(mockScheduler))
		resp := do(t, http.MethodPost, srv.URL+"/api/v1/schedules", `{"recipient":`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("MissingTime", func(t *testing.T) {
		srv := serve(t, config.APIConfig{}, new(mockScheduler))
		resp := do(t, http.MethodPost, srv.URL+"/api/v1/schedules", `{"recipient":"Alice","payload":"hi"}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("InvalidRequest", func(t *testing.T) {
		sched := new(mockScheduler)
		sched.On("Register", mock.Anything, "", "hi", mock.Anything).
			Return(schemas.ScheduledAction{}, fmt.Errorf("%w: recipient is required", scheduler.ErrInvalidRequest))
		srv := serve(t, config.APIConfig{}, sched)

		resp := do(t, http.MethodPost, srv.URL+"/api/v1/schedules", `{"recipient":"","payload":"hi","scheduledTime":1}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("StorageUnavailable", func(t *testing.T) {
		sched := new(mockScheduler)
		sched.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(schemas.ScheduledAction{}, fmt.Errorf("%w: disk gone", store.ErrStorage))
		srv := serve(t, config.APIConfig{}, sched)

		resp := do(t, http.MethodPost, srv.URL+"/api/v1/schedules", `{"recipient":"Alice","payload":"hi","scheduledTime":1}`, nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestCancelAndDispatch(t *testing.T) {
	sched := new(mockScheduler)
	sched.On("Cancel", mock.Anything, "a1").Return(nil)
	sched.On("Cancel", mock.Anything, "zz").Return(scheduler.ErrNotFound)
	sched.On("Trigger", mock.Anything, "a1").Return(nil)
	sched.On("Trigger", mock.Anything, "done").Return(fmt.Errorf("%w: sent", scheduler.ErrNotPending))
	srv := serve(t, config.APIConfig{}, sched)

	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, srv.URL+"/api/v1/schedules/a1", "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, srv.URL+"/api/v1/schedules/zz", "", nil).StatusCode)
	assert.Equal(t, http.StatusAccepted, do(t, http.MethodPost, srv.URL+"/api/v1/schedules/a1/dispatch", "", nil).StatusCode)
	assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, srv.URL+"/api/v1/schedules/done/dispatch", "", nil).StatusCode)
}

func TestAuthentication(t *testing.T) {
	secret := []byte("s3cret")
	sched := new(mockScheduler)
	sched.On("List", mock.Anything).Return([]schemas.ScheduledAction{}, nil)
	srv := serve(t, config.APIConfig{AuthSecret: string(secret)}, sched)
	url := srv.URL + "/api/v1/schedules"

	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, url, "", nil).StatusCode)

	bad, err := api.MintToken([]byte("other"), "cli", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, http.MethodGet, url, "", http.Header{"Authorization": {"Bearer " + bad}}).StatusCode)

	expired, err := api.MintToken(secret, "cli", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, http.MethodGet, url, "", http.Header{"Authorization": {"Bearer " + expired}}).StatusCode)

	good, err := api.MintToken(secret, "cli", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK,
		do(t, http.MethodGet, url, "", http.Header{"Authorization": {"Bearer " + good}}).StatusCode)
}

func TestValidateToken(t *testing.T) {
	secret := []byte("s3cret")
	token, err := api.MintToken(secret, "runner", time.Minute)
	require.NoError(t, err)

	claims, err := api.ValidateToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "runner", claims.Subject)

	_, err = api.ValidateToken(secret, "not.a.token")
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	sched := new(mockScheduler)
	sched.On("List", mock.Anything).Return([]schemas.ScheduledAction{}, nil)
	srv := serve(t, config.APIConfig{RateLimit: 0.001, RateBurst: 2}, sched)

	url := srv.URL + "/api/v1/schedules"
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, url, "", nil).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, url, "", nil).StatusCode)
	resp := do(t, http.MethodGet, url, "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestRunnerEndpoint(t *testing.T) {
	runners := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	secret := []byte("s3cret")
	srv := serve(t, config.APIConfig{AuthSecret: string(secret)}, new(mockScheduler), api.WithRunnerEndpoint(runners))

	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/ws/runner", "", nil).StatusCode)

	token, err := api.MintToken(secret, "runner", time.Minute)
	require.NoError(t, err)
	resp := do(t, http.MethodGet, srv.URL+"/ws/runner", "", http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	noHub := serve(t, config.APIConfig{}, new(mockScheduler))
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, noHub.URL+"/ws/runner", "", nil).StatusCode)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := api.NewServer(config.APIConfig{Listen: "127.0.0.1:0"}, new(mockScheduler), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
