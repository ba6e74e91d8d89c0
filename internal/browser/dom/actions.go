// internal/browser/dom/actions.go
// Actions synthesize the event stream a human interaction would produce. Host
// applications frequently gate behavior on listeners for these events rather than
// on raw property changes, so every action emits the full sequence in order and
// pauses briefly after each event.
package dom

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ClickOptions configures Click. Force skips the visibility requirement.
type ClickOptions struct {
	Timeout time.Duration
	Force   bool
}

// FillOptions configures Fill.
type FillOptions struct {
	Timeout time.Duration
}

// TypeOptions configures Type. Delay is the pause between characters.
type TypeOptions struct {
	Timeout time.Duration
	Delay   time.Duration
}

// Click waits for the element, scrolls it into view and dispatches a pointer
// sequence (move, press, release, click) at the center of its box. A forced click
// on an element without a box only dispatches the click event itself.
func (l *Locator) Click(ctx context.Context, opts ClickOptions) error {
	n, err := l.acquire(ctx, opts.Timeout, opts.Force)
	if err != nil {
		return err
	}
	if err := n.ScrollIntoView(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.engine.logger.Debug("Scroll into view failed, clicking in place.", zap.Stringer("locator", l), zap.Error(err))
	}
	g, err := n.Geometry(ctx)
	if err != nil {
		return fmt.Errorf("read geometry of %s: %w", l, err)
	}
	if !g.Visible() && !opts.Force {
		return &ElementNotVisibleError{Locator: l.String()}
	}

	var seq []Event
	if g.Visible() {
		x, y := g.Center()
		seq = []Event{
			{Type: EventMouseMove, X: x, Y: y},
			{Type: EventMouseDown, X: x, Y: y},
			{Type: EventMouseUp, X: x, Y: y},
			{Type: EventClick, X: x, Y: y},
		}
	} else {
		seq = []Event{{Type: EventClick}}
	}
	for _, ev := range seq {
		if err := l.dispatch(ctx, n, ev); err != nil {
			return err
		}
	}
	l.engine.logger.Debug("Clicked element.", zap.Stringer("locator", l))
	return nil
}

// Fill replaces the element's content wholesale and emits focus, input and change.
// Rich text targets additionally receive textInput and compositionend after the
// input and change events.
func (l *Locator) Fill(ctx context.Context, text string, opts FillOptions) error {
	n, kind, err := l.prepareInput(ctx, opts.Timeout)
	if err != nil {
		return err
	}
	if err := n.SetContent(ctx, text, false); err != nil {
		return fmt.Errorf("set content of %s: %w", l, err)
	}
	for _, ev := range []Event{
		{Type: EventFocus},
		{Type: EventInput, InputType: "insertText", Data: text},
		{Type: EventChange, Data: text},
	} {
		if err := l.emit(ctx, n, kind, ev); err != nil {
			return err
		}
	}
	l.engine.logger.Debug("Filled element.", zap.Stringer("locator", l), zap.Int("length", len(text)))
	return nil
}

// Type appends text one character at a time, emitting an input event per
// character and a single trailing change event.
func (l *Locator) Type(ctx context.Context, text string, opts TypeOptions) error {
	n, kind, err := l.prepareInput(ctx, opts.Timeout)
	if err != nil {
		return err
	}
	if err := l.emit(ctx, n, kind, Event{Type: EventFocus}); err != nil {
		return err
	}
	runes := []rune(text)
	for i, r := range runes {
		ch := string(r)
		if err := n.SetContent(ctx, ch, true); err != nil {
			return fmt.Errorf("append to %s: %w", l, err)
		}
		if err := l.emit(ctx, n, kind, Event{Type: EventInput, InputType: "insertText", Data: ch}); err != nil {
			return err
		}
		if i < len(runes)-1 {
			if err := Sleep(ctx, opts.Delay); err != nil {
				return err
			}
		}
	}
	return l.emit(ctx, n, kind, Event{Type: EventChange, Data: text})
}

func (l *Locator) prepareInput(ctx context.Context, timeout time.Duration) (Node, Kind, error) {
	n, err := l.acquire(ctx, timeout, false)
	if err != nil {
		return nil, KindOther, err
	}
	desc, err := n.Describe(ctx)
	if err != nil {
		return nil, KindOther, fmt.Errorf("describe %s: %w", l, err)
	}
	if err := n.Focus(ctx); err != nil {
		return nil, KindOther, fmt.Errorf("focus %s: %w", l, err)
	}
	return n, desc.Kind, nil
}

func (l *Locator) emit(ctx context.Context, n Node, kind Kind, ev Event) error {
	if err := l.dispatch(ctx, n, ev); err != nil {
		return err
	}
	if kind == KindRichText && (ev.Type == EventInput || ev.Type == EventChange) {
		if err := l.dispatch(ctx, n, Event{Type: EventTextInput, Data: ev.Data}); err != nil {
			return err
		}
		return l.dispatch(ctx, n, Event{Type: EventCompositionEnd, Data: ev.Data})
	}
	return nil
}

func (l *Locator) dispatch(ctx context.Context, n Node, ev Event) error {
	if err := n.Dispatch(ctx, ev); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("dispatch %s to %s: %w", ev.Type, l, err)
	}
	return Sleep(ctx, l.engine.eventPause)
}
