// internal/browser/page/page_test.go
package page

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"github.com/xkilldash9x/sendlater/internal/browser/dom/htmltree"
)

const markup = `<html><body>
<div id="side">
  <div role="textbox" aria-label="Search input textbox" contenteditable="true"></div>
  <input id="filter" placeholder="Search or start new chat">
  <ul><li id="alice">Alice</li><li id="bob">Bob</li></ul>
</div>
<div id="main"><footer><div data-testid="conversation-compose-box-input" contenteditable="true"></div></footer>
<button data-testid="send" aria-label="Send">S</button></div>
</body></html>`

func newPage(doc *htmltree.Document) *Page {
	return New(doc, dom.NewEngine(nil, dom.WithEventPause(0), dom.WithPollInterval(10*time.Millisecond)))
}

func resolvedID(t *testing.T, l *dom.Locator) string {
	t.Helper()
	n, ok := l.Resolve(context.Background())
	require.True(t, ok, "expected %s to resolve", l)
	d, err := n.Describe(context.Background())
	require.NoError(t, err)
	if id := d.Attr("id"); id != "" {
		return id
	}
	return d.Attr("data-testid") + d.Attr("aria-label")
}

func TestConstructors(t *testing.T) {
	p := newPage(htmltree.MustParse(markup))

	assert.Equal(t, "Search input textbox", resolvedID(t, p.ByRole("textbox", dom.Text("search input"))))
	assert.Equal(t, "filter", resolvedID(t, p.ByPlaceholder("Search")))
	assert.Equal(t, "bob", resolvedID(t, p.ByRole("listitem", dom.Text("bob"))))
	assert.Equal(t, "alice", resolvedID(t, p.ByText(dom.Text("alice"))))
	assert.Equal(t, "sendSend", resolvedID(t, p.ByTestID("send")))
	assert.Equal(t, "sendSend", resolvedID(t, p.ByAttribute("aria-label", "Send")))
	assert.Equal(t, "bob", resolvedID(t, p.Raw("li:nth-child(2)")))
}

func TestWithin(t *testing.T) {
	p := newPage(htmltree.MustParse(markup))
	main := p.Within(p.Raw("#main"))

	assert.Equal(t, "conversation-compose-box-input", resolvedID(t, main.ByTestID("conversation-compose-box-input")))
	_, ok := main.ByPlaceholder("Search").Resolve(context.Background())
	assert.False(t, ok, "the search input is outside #main")
	assert.Equal(t, "conversation-compose-box-input", resolvedID(t, main.Raw("[contenteditable]")))
}

func TestWaitForReady(t *testing.T) {
	t.Run("Complete", func(t *testing.T) {
		p := newPage(htmltree.MustParse(markup))
		require.NoError(t, p.WaitForReady(context.Background(), 50*time.Millisecond))
	})

	t.Run("BecomesComplete", func(t *testing.T) {
		doc := htmltree.MustParse(markup)
		defer doc.Close()
		doc.SetReadyState("loading")
		doc.After(30*time.Millisecond, func(d *htmltree.Document) { d.SetReadyState("complete") })
		require.NoError(t, newPage(doc).WaitForReady(context.Background(), time.Second))
	})

	t.Run("InteractiveAtDeadline", func(t *testing.T) {
		doc := htmltree.MustParse(markup)
		doc.SetReadyState("interactive")
		start := time.Now()
		require.NoError(t, newPage(doc).WaitForReady(context.Background(), 50*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("Timeout", func(t *testing.T) {
		doc := htmltree.MustParse(markup)
		doc.SetReadyState("loading")
		err := newPage(doc).WaitForReady(context.Background(), 50*time.Millisecond)
		var te *dom.TimeoutError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "document.readyState", te.Locator)
	})
}
