// internal/channel/channel.go
// Package channel carries dispatch requests from the scheduler to an execution
// context and their responses back. Delivery is request/response; a request that
// cannot reach any execution context fails with ErrUnavailable.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/sendlater/api/schemas"
)

// ErrUnavailable reports that no execution context could take a request.
var ErrUnavailable = errors.New("no execution context available")

// Endpoint is the scheduler's view of an execution context.
type Endpoint interface {
	// Request delivers req and waits for its response. A non-nil error means the
	// request did not complete a round trip.
	Request(ctx context.Context, req schemas.DispatchRequest) (schemas.DispatchResponse, error)
	// Available reports whether a host session is active and ready for dispatch.
	Available(ctx context.Context) bool
	// Open asks the execution context to open or activate a host session.
	Open(ctx context.Context) error
}

// Handler serves requests on the execution context side.
type Handler interface {
	Handle(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse

func (f HandlerFunc) Handle(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse {
	return f(ctx, req)
}

// Local is an Endpoint served by a Handler in the same process.
type Local struct {
	handler Handler
}

// NewLocal wraps h. A nil handler yields an Endpoint that is never available.
func NewLocal(h Handler) *Local {
	return &Local{handler: h}
}

func (l *Local) Request(ctx context.Context, req schemas.DispatchRequest) (schemas.DispatchResponse, error) {
	if l.handler == nil {
		return schemas.DispatchResponse{}, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return schemas.DispatchResponse{}, err
	}
	resp := l.handler.Handle(ctx, req)
	resp.ID = req.ID
	if err := ctx.Err(); err != nil {
		// The handler gave up because ctx ended; its response is not an outcome.
		return resp, err
	}
	return outcome(resp)
}

func (l *Local) Available(ctx context.Context) bool {
	return available(ctx, l)
}

func (l *Local) Open(ctx context.Context) error {
	return open(ctx, l)
}

// outcome turns a response that reached no host session into ErrUnavailable.
func outcome(resp schemas.DispatchResponse) (schemas.DispatchResponse, error) {
	if !resp.OK && resp.Unavailable {
		return resp, fmt.Errorf("%w: %s", ErrUnavailable, resp.Reason)
	}
	return resp, nil
}

// available and open implement the control actions in terms of Request, shared by
// every Endpoint.
func available(ctx context.Context, e Endpoint) bool {
	resp, err := e.Request(ctx, schemas.DispatchRequest{Action: schemas.ActionStatus})
	return err == nil && resp.OK
}

func open(ctx context.Context, e Endpoint) error {
	resp, err := e.Request(ctx, schemas.DispatchRequest{Action: schemas.ActionOpen})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.Reason)
	}
	return nil
}
