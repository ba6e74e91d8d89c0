package schemas

// RunnerAction names a request understood by an execution context.
type RunnerAction string

const (
	// ActionDispatch asks the execution context to deliver a payload to a recipient.
	ActionDispatch RunnerAction = "dispatch"
	// ActionOpen asks the execution context to open or activate a host session.
	ActionOpen RunnerAction = "open"
	// ActionStatus asks whether a host session is currently active.
	ActionStatus RunnerAction = "status"
)

// DispatchRequest is the single request type sent from the scheduler to an execution context.
// ID correlates request and response when they travel over a shared connection.
type DispatchRequest struct {
	ID        string       `json:"id,omitempty"`
	Action    RunnerAction `json:"action"`
	Recipient string       `json:"recipient,omitempty"`
	Payload   string       `json:"payload,omitempty"`
}

// DispatchResponse reports the outcome of a DispatchRequest.
// For ActionStatus, OK reports whether a host session is active. Unavailable marks a
// failure to reach any host session, as opposed to a failed delivery.
type DispatchResponse struct {
	ID          string `json:"id,omitempty"`
	OK          bool   `json:"ok"`
	Reason      string `json:"reason,omitempty"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// NewDispatch builds a dispatch request for a scheduled action.
func NewDispatch(a ScheduledAction) DispatchRequest {
	return DispatchRequest{
		Action:    ActionDispatch,
		Recipient: a.Recipient,
		Payload:   a.Payload,
	}
}

// Failure builds a negative response.
func Failure(reason string) DispatchResponse {
	return DispatchResponse{OK: false, Reason: reason}
}

// Unreachable builds a negative response for a request that found no host session.
func Unreachable(reason string) DispatchResponse {
	return DispatchResponse{OK: false, Reason: reason, Unavailable: true}
}

// Success builds a positive response.
func Success() DispatchResponse {
	return DispatchResponse{OK: true}
}
