// internal/automation/errors.go
package automation

import (
	"errors"
	"fmt"
)

// Orchestration failures. Each is terminal for the current dispatch attempt, and
// its message is the reason recorded on the failed ScheduledAction.
var (
	ErrSearchControlNotFound = errors.New("SearchControlNotFound")
	ErrContactNotFound       = errors.New("ContactNotFound")
	ErrWrongConversation     = errors.New("WrongConversation")
	ErrComposerNotFound      = errors.New("ComposerNotFound")
	ErrSendControlNotFound   = errors.New("SendControlNotFound")
)

// Failure ties an orchestration failure kind to the step that produced it and
// the resolution-layer error underneath.
type Failure struct {
	Kind error
	Step string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %v", f.Step, f.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", f.Step, f.Kind, f.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// Reason maps an error returned by Script.Send to the short reason string that
// is persisted with a failed dispatch.
func Reason(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
