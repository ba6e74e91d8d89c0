// internal/browser/dom/htmltree/document_test.go
package htmltree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"golang.org/x/net/html"
)

const fixture = `<!DOCTYPE html><html><head><title>t</title></head><body>
<div id="side">
  <input id="search" type="text" placeholder="Search or start new chat" aria-label="Search input textbox">
  <ul>
    <li id="a" aria-label="Alice Smith"><span>Alice Smith</span></li>
    <li id="b" hidden><span>Bob</span></li>
    <li id="c" style="display: none"><span>Carol</span></li>
    <li id="d" style="visibility:hidden"><span id="d-inner">Dave</span></li>
    <li id="e" style="width:0px"><span>Eve</span></li>
  </ul>
</div>
<div id="main"><footer><div id="composer" contenteditable="true">draft</div></footer></div>
</body></html>`

func rootNode(t *testing.T, d *Document) dom.Node {
	t.Helper()
	n, err := d.Document(context.Background())
	require.NoError(t, err)
	return n
}

func TestQueryAllAndDescribe(t *testing.T) {
	d := MustParse(fixture)
	ctx := context.Background()

	items, err := rootNode(t, d).QueryAll(ctx, "li")
	require.NoError(t, err)
	require.Len(t, items, 5)

	desc, err := items[0].Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "li", desc.Tag)
	assert.Equal(t, "Alice Smith", desc.Attr("aria-label"))
	assert.Equal(t, "Alice Smith", desc.Text)
	assert.Empty(t, desc.OwnText, "li has no direct text children")
	assert.Equal(t, dom.KindOther, desc.Kind)

	search, err := rootNode(t, d).QueryAll(ctx, `[placeholder*="Search"]`)
	require.NoError(t, err)
	require.Len(t, search, 1)
	desc, err = search[0].Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, dom.KindFormControl, desc.Kind)

	composer, err := rootNode(t, d).QueryAll(ctx, "#main [contenteditable]")
	require.NoError(t, err)
	require.Len(t, composer, 1)
	desc, err = composer[0].Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, dom.KindRichText, desc.Kind)
	assert.Equal(t, "draft", desc.OwnText)

	_, err = rootNode(t, d).QueryAll(ctx, "li[")
	assert.Error(t, err, "malformed selectors are reported")
}

func TestGeometryVisibility(t *testing.T) {
	d := MustParse(fixture)
	ctx := context.Background()

	cases := map[string]bool{
		"#search":  true,
		"#a":       true,
		"#b span":  false,
		"#c span":  false,
		"#d-inner": false,
		"#e":       false,
		"title":    false,
	}
	for selector, want := range cases {
		t.Run(selector, func(t *testing.T) {
			nodes, err := rootNode(t, d).QueryAll(ctx, selector)
			require.NoError(t, err)
			require.NotEmpty(t, nodes)
			g, err := nodes[0].Geometry(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, g.Visible())
		})
	}
}

func TestSetContent(t *testing.T) {
	d := MustParse(fixture)
	ctx := context.Background()
	root := rootNode(t, d)

	search, err := root.QueryAll(ctx, "#search")
	require.NoError(t, err)
	require.NoError(t, search[0].SetContent(ctx, "Ali", false))
	require.NoError(t, search[0].SetContent(ctx, "ce", true))
	v, err := d.Content("#search")
	require.NoError(t, err)
	assert.Equal(t, "Alice", v)

	composer, err := root.QueryAll(ctx, "#composer")
	require.NoError(t, err)
	require.NoError(t, composer[0].SetContent(ctx, "hello", false))
	v, err = d.Content("#composer")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	items, err := root.QueryAll(ctx, "#a")
	require.NoError(t, err)
	assert.ErrorIs(t, items[0].SetContent(ctx, "x", false), ErrNotEditable)
}

func TestDispatchRecordsAndBubbles(t *testing.T) {
	d := MustParse(fixture)
	ctx := context.Background()

	var targets []string
	require.NoError(t, d.On("li", dom.EventClick, func(doc *Document, target *html.Node, ev dom.Event) {
		targets = append(targets, attr(target, "id"))
		require.NoError(t, doc.SetInnerHTML("#main", `<header><span dir="auto">Alice Smith</span></header>`))
	}))

	spans, err := rootNode(t, d).QueryAll(ctx, "#a span")
	require.NoError(t, err)
	require.NoError(t, spans[0].Dispatch(ctx, dom.Event{Type: dom.EventClick, X: 5, Y: 5}))

	assert.Equal(t, []string{"a"}, targets, "listener on li sees the click bubbling from its span")
	assert.Len(t, d.EventsOn("#a span"), 1)
	assert.Empty(t, d.EventsOn("#a"), "events are recorded on their target only")

	header, err := d.Content("#main header")
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", header)
}

func TestDetachedElement(t *testing.T) {
	d := MustParse(fixture)
	ctx := context.Background()

	items, err := rootNode(t, d).QueryAll(ctx, "#a")
	require.NoError(t, err)
	require.NoError(t, d.Remove("#a"))

	_, err = items[0].Describe(ctx)
	assert.ErrorIs(t, err, ErrDetached)
	assert.ErrorIs(t, items[0].Dispatch(ctx, dom.Event{Type: dom.EventClick}), ErrDetached)
}

func TestReadyState(t *testing.T) {
	d := MustParse(fixture)
	state, err := d.ReadyState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "complete", state)

	d.SetReadyState("loading")
	state, err = d.ReadyState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "loading", state)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.ReadyState(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
