// internal/browser/dom/htmltree/document.go
// Package htmltree provides an offline document tree that satisfies dom.Host and
// dom.Node. It is backed by golang.org/x/net/html for parsing and cascadia for
// selector evaluation, and is used to probe saved page snapshots and to exercise
// the resolution engine and automation chains without a browser.
//
// Layout is approximated from markup alone: elements are visible unless they, or
// an ancestor, carry the hidden attribute or an inline display:none, inherit an
// inline visibility:hidden, or declare a zero inline width or height. Synthesized
// events are recorded and delivered to registered listeners, which may mutate the
// tree to simulate the asynchronous rendering of a real application.
package htmltree

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"golang.org/x/net/html"
)

// Listener reacts to an event delivered to (or bubbling through) target.
// Listeners run without the document lock held and may mutate the document.
type Listener func(doc *Document, target *html.Node, ev dom.Event)

type listener struct {
	sel   cascadia.Matcher
	typ   dom.EventType
	fn    Listener
	label string
}

// Recorded is one event observed by the document.
type Recorded struct {
	Target *html.Node
	Event  dom.Event
}

// Document is a mutable, concurrency-safe HTML tree.
type Document struct {
	mu         sync.Mutex
	root       *html.Node
	readyState string
	focused    *html.Node
	events     []Recorded
	listeners  []listener
	selectors  map[string]cascadia.SelectorGroup
	timers     []*time.Timer
}

// Parse reads a complete HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{
		root:       root,
		readyState: "complete",
		selectors:  make(map[string]cascadia.SelectorGroup),
	}, nil
}

// ParseString parses markup held in memory.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

// MustParse is ParseString for fixtures; it panics on malformed input.
func MustParse(markup string) *Document {
	d, err := ParseString(markup)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseFile loads a saved page snapshot from disk.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Document implements dom.Host.
func (d *Document) Document(ctx context.Context) (dom.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &element{doc: d, n: d.root}, nil
}

// ReadyState implements dom.Host.
func (d *Document) ReadyState(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyState, nil
}

// SetReadyState changes the value reported by ReadyState.
func (d *Document) SetReadyState(state string) {
	d.mu.Lock()
	d.readyState = state
	d.mu.Unlock()
}

// On registers fn for events of type typ delivered to elements matching selector
// or to their descendants.
func (d *Document) On(selector string, typ dom.EventType, fn Listener) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel, err := d.compile(selector)
	if err != nil {
		return err
	}
	d.listeners = append(d.listeners, listener{sel: sel, typ: typ, fn: fn, label: selector})
	return nil
}

// Events returns a copy of every event recorded so far.
func (d *Document) Events() []Recorded {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Recorded, len(d.events))
	copy(out, d.events)
	return out
}

// EventsOn returns the events whose target matches selector, in dispatch order.
func (d *Document) EventsOn(selector string) []dom.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel, err := d.compile(selector)
	if err != nil {
		return nil
	}
	var out []dom.Event
	for _, r := range d.events {
		if sel.Match(r.Target) {
			out = append(out, r.Event)
		}
	}
	return out
}

// Focused returns the element that last received focus, or nil.
func (d *Document) Focused() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.focused
}

// Content returns the value of the first form control matching selector, or the
// text content of any other element.
func (d *Document) Content(selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.first(selector)
	if err != nil {
		return "", err
	}
	if kindOf(n) == dom.KindFormControl {
		return attr(n, "value"), nil
	}
	return collapse(textContent(n)), nil
}

// Mutate runs fn with exclusive access to the tree.
func (d *Document) Mutate(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// SetInnerHTML replaces the children of the first element matching selector.
func (d *Document) SetInnerHTML(selector, markup string) error {
	return d.edit(selector, markup, true)
}

// AppendHTML appends parsed markup to the first element matching selector.
func (d *Document) AppendHTML(selector, markup string) error {
	return d.edit(selector, markup, false)
}

// Remove detaches every element matching selector.
func (d *Document) Remove(selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel, err := d.compile(selector)
	if err != nil {
		return err
	}
	for _, n := range cascadia.QueryAll(d.root, sel) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return nil
}

// SetAttr sets an attribute on the first element matching selector.
func (d *Document) SetAttr(selector, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.first(selector)
	if err != nil {
		return err
	}
	setAttr(n, name, value)
	return nil
}

// After runs fn once delay has passed, simulating asynchronous rendering.
func (d *Document) After(delay time.Duration, fn func(doc *Document)) {
	t := time.AfterFunc(delay, func() { fn(d) })
	d.mu.Lock()
	d.timers = append(d.timers, t)
	d.mu.Unlock()
}

// Close stops every pending After callback.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = nil
}

// HTML renders the current tree.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	_ = html.Render(&b, d.root)
	return b.String()
}

func (d *Document) edit(selector, markup string, replace bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	target, err := d.first(selector)
	if err != nil {
		return err
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), target)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	if replace {
		for c := target.FirstChild; c != nil; {
			next := c.NextSibling
			target.RemoveChild(c)
			c = next
		}
	}
	for _, n := range nodes {
		target.AppendChild(n)
	}
	return nil
}

// compile caches parsed selector groups. Callers hold d.mu.
func (d *Document) compile(selector string) (cascadia.SelectorGroup, error) {
	if sel, ok := d.selectors[selector]; ok {
		return sel, nil
	}
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.selectors[selector] = sel
	return sel, nil
}

func (d *Document) first(selector string) (*html.Node, error) {
	sel, err := d.compile(selector)
	if err != nil {
		return nil, err
	}
	n := cascadia.Query(d.root, sel)
	if n == nil {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return n, nil
}

func (d *Document) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}
