// internal/worker/worker_test.go
package worker_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/api/schemas"
	"github.com/xkilldash9x/sendlater/internal/automation"
	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"github.com/xkilldash9x/sendlater/internal/browser/dom/htmltree"
	"github.com/xkilldash9x/sendlater/internal/worker"
)

// renderedChat is a conversation already open on Alice.
const renderedChat = `<html><body>
<div id="side">
  <div role="textbox" aria-label="Search input textbox" contenteditable="true"></div>
  <div id="pane-side"><div role="listitem" aria-label="Alice"><span title="Alice">Alice</span></div></div>
</div>
<div id="main">
  <header><div><div><div><span dir="auto">Alice</span></div></div></div></header>
  <footer>%s<button data-testid="send" aria-label="Send"><span data-icon="send"></span></button></footer>
</div>
</body></html>`

const composer = `<div contenteditable="true" role="textbox"></div>`

// mockHost is a testify mock of worker.ContextHost.
type mockHost struct {
	mock.Mock
}

func (m *mockHost) Available(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *mockHost) Open(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockHost) Page(ctx context.Context) (dom.Host, error) {
	args := m.Called(ctx)
	h, _ := args.Get(0).(dom.Host)
	return h, args.Error(1)
}

func fastSettings() automation.Settings {
	s := automation.DefaultSettings()
	s.SearchTimeout = 100 * time.Millisecond
	s.ContactTimeout = 100 * time.Millisecond
	s.HeaderTimeout = 100 * time.Millisecond
	s.ComposerTimeout = 100 * time.Millisecond
	s.SendTimeout = 100 * time.Millisecond
	s.SelectSettle = 0
	s.SendSettle = 0
	return s
}

func newWorker(host worker.ContextHost) *worker.Worker {
	engine := dom.NewEngine(zap.NewNop(), dom.WithEventPause(0), dom.WithPollInterval(10*time.Millisecond))
	return worker.New(host, engine, zap.NewNop(),
		worker.WithSettings(fastSettings()),
		worker.WithReadyTimeout(100*time.Millisecond))
}

func dispatch(recipient, payload string) schemas.DispatchRequest {
	return schemas.DispatchRequest{Action: schemas.ActionDispatch, Recipient: recipient, Payload: payload}
}

func TestHandle_Dispatch(t *testing.T) {
	doc := htmltree.MustParse(fmt.Sprintf(renderedChat, composer))
	defer doc.Close()
	host := new(mockHost)
	host.On("Page", mock.Anything).Return(doc, nil)

	resp := newWorker(host).Handle(context.Background(), dispatch("Alice", "hi"))
	assert.Equal(t, schemas.Success(), resp)

	text, err := doc.Content(`#main footer [contenteditable]`)
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
	assert.NotEmpty(t, doc.EventsOn(`button[data-testid="send"]`), "send control was clicked")
	host.AssertExpectations(t)
}

func TestHandle_DispatchFailureReason(t *testing.T) {
	doc := htmltree.MustParse(fmt.Sprintf(renderedChat, ""))
	defer doc.Close()
	host := new(mockHost)
	host.On("Page", mock.Anything).Return(doc, nil)

	resp := newWorker(host).Handle(context.Background(), dispatch("Alice", "hi"))
	assert.False(t, resp.OK)
	assert.Equal(t, "ComposerNotFound", resp.Reason)
	assert.False(t, resp.Unavailable)
}

func TestHandle_DispatchWithoutSession(t *testing.T) {
	host := new(mockHost)
	host.On("Page", mock.Anything).Return(nil, errors.New("no tab"))

	resp := newWorker(host).Handle(context.Background(), dispatch("Alice", "hi"))
	assert.False(t, resp.OK)
	assert.Equal(t, "NoActiveSession: no tab", resp.Reason)
	assert.True(t, resp.Unavailable, "a missing session is not a delivery failure")
}

func TestHandle_PageNotReady(t *testing.T) {
	doc := htmltree.MustParse(fmt.Sprintf(renderedChat, composer))
	defer doc.Close()
	doc.SetReadyState("loading")
	host := new(mockHost)
	host.On("Page", mock.Anything).Return(doc, nil)

	resp := newWorker(host).Handle(context.Background(), dispatch("Alice", "hi"))
	assert.Equal(t, schemas.Failure(worker.ReasonPageNotReady), resp)
	assert.Empty(t, doc.Events(), "nothing is touched before the page is ready")
}

func TestHandle_InvalidRequests(t *testing.T) {
	w := newWorker(new(mockHost))
	ctx := context.Background()

	for name, req := range map[string]schemas.DispatchRequest{
		"empty recipient": dispatch(" ", "hi"),
		"empty payload":   dispatch("Alice", ""),
		"unknown action":  {Action: "reboot"},
	} {
		t.Run(name, func(t *testing.T) {
			resp := w.Handle(ctx, req)
			assert.False(t, resp.OK)
			assert.Contains(t, resp.Reason, worker.ReasonInvalidRequest)
		})
	}
}

func TestHandle_StatusAndOpen(t *testing.T) {
	ctx := context.Background()
	host := new(mockHost)
	host.On("Available", mock.Anything).Return(true).Once()
	host.On("Open", mock.Anything).Return(nil).Once()
	w := newWorker(host)

	assert.True(t, w.Handle(ctx, schemas.DispatchRequest{Action: schemas.ActionStatus}).OK)
	assert.True(t, w.Handle(ctx, schemas.DispatchRequest{Action: schemas.ActionOpen}).OK)

	host.On("Available", mock.Anything).Return(false).Once()
	host.On("Open", mock.Anything).Return(errors.New("chrome not found")).Once()
	assert.False(t, w.Handle(ctx, schemas.DispatchRequest{Action: schemas.ActionStatus}).OK)
	resp := w.Handle(ctx, schemas.DispatchRequest{Action: schemas.ActionOpen})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Reason, "chrome not found")
	host.AssertExpectations(t)
}
