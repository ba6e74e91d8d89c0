// internal/browser/dom/htmltree/element.go
package htmltree

import (
	"context"
	"errors"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"golang.org/x/net/html"
)

// ErrDetached is returned when an element handle outlives its place in the tree.
var ErrDetached = errors.New("element is no longer attached to the document")

// ErrNotEditable is returned by SetContent on elements that hold no editable content.
var ErrNotEditable = errors.New("element is not editable")

const (
	defaultWidth  = 100
	defaultHeight = 20
)

var describedAttrs = []string{"aria-label", "title", "placeholder", "role", "data-testid", "id", "type", "contenteditable"}

// element adapts an *html.Node to dom.Node.
type element struct {
	doc *Document
	n   *html.Node
}

func (e *element) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.doc.mu.Lock()
	if !e.doc.attached(e.n) {
		e.doc.mu.Unlock()
		return ErrDetached
	}
	return nil
}

func (e *element) QueryAll(ctx context.Context, selector string) ([]dom.Node, error) {
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.doc.mu.Unlock()
	sel, err := e.doc.compile(selector)
	if err != nil {
		return nil, err
	}
	matches := cascadia.QueryAll(e.n, sel)
	out := make([]dom.Node, 0, len(matches))
	for _, m := range matches {
		out = append(out, &element{doc: e.doc, n: m})
	}
	return out, nil
}

func (e *element) Describe(ctx context.Context) (dom.Description, error) {
	if err := e.lock(ctx); err != nil {
		return dom.Description{}, err
	}
	defer e.doc.mu.Unlock()
	d := dom.Description{
		Tag:     strings.ToLower(e.n.Data),
		Attrs:   make(map[string]string),
		Text:    collapse(textContent(e.n)),
		OwnText: collapse(ownText(e.n)),
		Kind:    kindOf(e.n),
	}
	for _, name := range describedAttrs {
		if v, ok := lookupAttr(e.n, name); ok {
			d.Attrs[name] = v
		}
	}
	return d, nil
}

func (e *element) Geometry(ctx context.Context) (dom.Geometry, error) {
	if err := e.lock(ctx); err != nil {
		return dom.Geometry{}, err
	}
	defer e.doc.mu.Unlock()
	return layout(e.n), nil
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	e.doc.mu.Unlock()
	return nil
}

func (e *element) Focus(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.doc.mu.Unlock()
	e.doc.focused = e.n
	return nil
}

func (e *element) SetContent(ctx context.Context, text string, add bool) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.doc.mu.Unlock()
	switch kindOf(e.n) {
	case dom.KindFormControl:
		if add {
			text = attr(e.n, "value") + text
		}
		setAttr(e.n, "value", text)
	case dom.KindRichText:
		if !add {
			for c := e.n.FirstChild; c != nil; {
				next := c.NextSibling
				e.n.RemoveChild(c)
				c = next
			}
		}
		e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	default:
		return ErrNotEditable
	}
	return nil
}

// Dispatch records ev and delivers it to the listeners registered on the target
// and its ancestors, innermost first.
func (e *element) Dispatch(ctx context.Context, ev dom.Event) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	e.doc.events = append(e.doc.events, Recorded{Target: e.n, Event: ev})
	type call struct {
		fn     Listener
		target *html.Node
	}
	var calls []call
	for p := e.n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		for _, l := range e.doc.listeners {
			if l.typ == ev.Type && l.sel.Match(p) {
				calls = append(calls, call{fn: l.fn, target: p})
			}
		}
	}
	e.doc.mu.Unlock()

	for _, c := range calls {
		c.fn(e.doc, c.target, ev)
	}
	return nil
}

func kindOf(n *html.Node) dom.Kind {
	switch strings.ToLower(n.Data) {
	case "input", "textarea":
		return dom.KindFormControl
	}
	if v, ok := lookupAttr(n, "contenteditable"); ok && !strings.EqualFold(v, "false") {
		return dom.KindRichText
	}
	return dom.KindOther
}

// layout derives a Geometry from inline styling and attributes.
func layout(n *html.Node) dom.Geometry {
	g := dom.Geometry{Display: "block", Visibility: "visible"}
	visibilitySet := false
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		switch strings.ToLower(p.Data) {
		case "head", "script", "style", "template", "title", "noscript":
			g.Display = "none"
		}
		if _, hidden := lookupAttr(p, "hidden"); hidden {
			g.Display = "none"
		}
		style := parseStyle(attr(p, "style"))
		if style["display"] == "none" {
			g.Display = "none"
		}
		if p == n && style["display"] != "" && style["display"] != "none" {
			g.Display = style["display"]
		}
		// visibility inherits from the nearest ancestor that declares it.
		if v := style["visibility"]; v != "" && !visibilitySet {
			g.Visibility = v
			visibilitySet = true
		}
	}
	if g.Display == "none" {
		return g
	}

	style := parseStyle(attr(n, "style"))
	g.Width, g.Height = defaultWidth, defaultHeight
	if w, ok := pixels(style["width"]); ok {
		g.Width = w
	}
	if h, ok := pixels(style["height"]); ok {
		g.Height = h
	}
	g.OffsetWidth, g.OffsetHeight = g.Width, g.Height
	if g.Width > 0 || g.Height > 0 {
		g.ClientRects = 1
	}
	g.Y = float64(depth(n)) * defaultHeight
	return g
}

func depth(n *html.Node) int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}
