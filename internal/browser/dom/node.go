// internal/browser/dom/node.go
package dom

import (
	"context"
	"strings"
)

// Kind classifies an element by how its content is edited.
type Kind int

const (
	// KindOther is any element that is neither a form control nor rich text.
	KindOther Kind = iota
	// KindFormControl is an <input> or <textarea>; its content lives in the value property.
	KindFormControl
	// KindRichText is a contenteditable element; its content lives in the child text.
	KindRichText
)

func (k Kind) String() string {
	switch k {
	case KindFormControl:
		return "form-control"
	case KindRichText:
		return "rich-text"
	default:
		return "other"
	}
}

// Description is a point-in-time summary of an element used for match evaluation.
type Description struct {
	Tag string
	// Attrs holds the attributes relevant to matching (aria-label, title, placeholder, role, data-testid).
	Attrs map[string]string
	// Text is the trimmed textContent of the element and its descendants.
	Text string
	// OwnText is the trimmed concatenation of the element's direct text children.
	OwnText string
	Kind    Kind
}

// Attr returns the named attribute, or "" when it is absent.
func (d Description) Attr(name string) string {
	if d.Attrs == nil {
		return ""
	}
	return d.Attrs[name]
}

// Geometry is the rendered box and computed visibility state of an element.
type Geometry struct {
	X, Y          float64
	Width, Height float64
	OffsetWidth   float64
	OffsetHeight  float64
	ClientRects   int
	Display       string
	Visibility    string
}

// Visible applies the visibility predicate: something was laid out, the element is
// not hidden by display or visibility styling, and its box is not empty.
func (g Geometry) Visible() bool {
	laidOut := g.OffsetWidth > 0 || g.OffsetHeight > 0 || g.ClientRects > 0
	return laidOut &&
		!strings.EqualFold(g.Visibility, "hidden") &&
		!strings.EqualFold(g.Display, "none") &&
		g.Width > 0 && g.Height > 0
}

// Center returns the geometric center of the box in viewport coordinates.
func (g Geometry) Center() (x, y float64) {
	return g.X + g.Width/2, g.Y + g.Height/2
}

// EventType names a synthesized DOM event.
type EventType string

const (
	EventFocus          EventType = "focus"
	EventInput          EventType = "input"
	EventChange         EventType = "change"
	EventTextInput      EventType = "textInput"
	EventCompositionEnd EventType = "compositionend"
	EventMouseMove      EventType = "mousemove"
	EventMouseDown      EventType = "mousedown"
	EventMouseUp        EventType = "mouseup"
	EventClick          EventType = "click"
)

// IsPointer reports whether the event carries viewport coordinates.
func (t EventType) IsPointer() bool {
	switch t {
	case EventMouseMove, EventMouseDown, EventMouseUp, EventClick:
		return true
	}
	return false
}

// Event is one step of a synthesized interaction. InputType and Data are only
// meaningful for input events; X and Y only for pointer events.
type Event struct {
	Type      EventType
	InputType string
	Data      string
	X, Y      float64
}

// Node is a handle on one element of a live or snapshotted document tree.
// Implementations must tolerate the element disappearing between calls and
// report that as an error rather than panicking.
type Node interface {
	// QueryAll returns the descendants matching a CSS selector, in document order.
	QueryAll(ctx context.Context, selector string) ([]Node, error)
	Describe(ctx context.Context) (Description, error)
	Geometry(ctx context.Context) (Geometry, error)
	ScrollIntoView(ctx context.Context) error
	Focus(ctx context.Context) error
	// SetContent replaces the element's content, or appends to it when add is true.
	// Form controls receive the text as their value; rich text elements as child text.
	SetContent(ctx context.Context, text string, add bool) error
	// Dispatch delivers a synthesized event to the element. Implementations backed by
	// a real input pipeline may realize pointer events natively.
	Dispatch(ctx context.Context, ev Event) error
}

// Host is the document a Locator is evaluated against. Document is called on every
// resolution so that navigations never leave a Locator holding a stale root.
type Host interface {
	Document(ctx context.Context) (Node, error)
	// ReadyState mirrors document.readyState ("loading", "interactive", "complete").
	ReadyState(ctx context.Context) (string, error)
}
