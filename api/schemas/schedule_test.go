package schemas

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeName_RoundTrip(t *testing.T) {
	name := WakeName("abc-123")
	assert.Equal(t, "scheduled-message-abc-123", name)

	id, ok := IDFromWakeName(name)
	require.True(t, ok)
	assert.Equal(t, "abc-123", id)

	_, ok = IDFromWakeName("some-other-alarm")
	assert.False(t, ok)
	_, ok = IDFromWakeName("scheduled-message-")
	assert.False(t, ok, "an empty id is not a valid wake name")
}

func TestScheduledAction_Due(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	a := ScheduledAction{ScheduledTime: now.UnixMilli()}
	assert.True(t, a.Due(now), "an action scheduled exactly now is due")
	assert.False(t, a.Due(now.Add(-time.Millisecond)))
	assert.Equal(t, now, a.At())
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("dispatched").Valid())
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusSent.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestScheduledAction_JSONLayout(t *testing.T) {
	a := ScheduledAction{
		ID:            "1",
		Recipient:     "Alice",
		Payload:       "hi",
		ScheduledTime: 42,
		Status:        StatusPending,
		CreatedAt:     40,
	}
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","recipient":"Alice","payload":"hi","scheduledTime":42,"status":"pending","createdAt":40}`, string(raw))
}

func TestDispatchWireFormat(t *testing.T) {
	req := NewDispatch(ScheduledAction{Recipient: "Alice", Payload: "hi"})
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"dispatch","recipient":"Alice","payload":"hi"}`, string(raw))

	raw, err = json.Marshal(Failure("ComposerNotFound"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"reason":"ComposerNotFound"}`, string(raw))

	raw, err = json.Marshal(Success())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
}
