// internal/browser/session/node.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/sendlater/api/schemas"
	"github.com/xkilldash9x/sendlater/internal/browser/dom"
)

var (
	// ErrDetached is returned when the remote object behind a node has been released
	// or the element was garbage collected.
	ErrDetached = errors.New("element is no longer available")
	// ErrNotEditable is returned by SetContent on elements that hold no editable content.
	ErrNotEditable = errors.New("element is not editable")
)

// cdpNode is a dom.Node backed by a RemoteObject in the tab's main world.
type cdpNode struct {
	tab   *Tab
	id    runtime.RemoteObjectID
	group string

	// released records a trusted press/release pair, after which the browser
	// synthesizes the click on its own.
	released bool
}

var _ dom.Node = (*cdpNode)(nil)

func (n *cdpNode) QueryAll(ctx context.Context, selector string) ([]dom.Node, error) {
	var nodes []dom.Node
	err := n.tab.run(ctx, func(ctx context.Context) error {
		arr, err := n.callObject(ctx, jsQueryAll, selector)
		if err != nil {
			return err
		}
		props, _, _, exc, err := runtime.GetProperties(arr.ObjectID).WithOwnProperties(true).Do(ctx)
		if err != nil {
			return classify(err)
		}
		if exc != nil {
			return exc
		}
		type indexed struct {
			i int
			n *cdpNode
		}
		found := make([]indexed, 0, len(props))
		for _, p := range props {
			i, err := strconv.Atoi(p.Name)
			if err != nil || p.Value == nil || p.Value.ObjectID == "" {
				continue
			}
			found = append(found, indexed{i, &cdpNode{tab: n.tab, id: p.Value.ObjectID, group: n.group}})
		}
		sort.Slice(found, func(a, b int) bool { return found[a].i < found[b].i })
		nodes = make([]dom.Node, len(found))
		for k, f := range found {
			nodes[k] = f.n
		}
		return nil
	})
	return nodes, err
}

type description struct {
	Tag     string            `json:"tag"`
	Attrs   map[string]string `json:"attrs"`
	Text    string            `json:"text"`
	OwnText string            `json:"ownText"`
	Kind    int               `json:"kind"`
}

func (n *cdpNode) Describe(ctx context.Context) (dom.Description, error) {
	var d description
	if err := n.callValue(ctx, jsDescribe, &d); err != nil {
		return dom.Description{}, err
	}
	return dom.Description{Tag: d.Tag, Attrs: d.Attrs, Text: d.Text, OwnText: d.OwnText, Kind: dom.Kind(d.Kind)}, nil
}

type geometry struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	OffsetWidth  float64 `json:"offsetWidth"`
	OffsetHeight float64 `json:"offsetHeight"`
	ClientRects  int     `json:"clientRects"`
	Display      string  `json:"display"`
	Visibility   string  `json:"visibility"`
}

func (n *cdpNode) Geometry(ctx context.Context) (dom.Geometry, error) {
	var g geometry
	if err := n.callValue(ctx, jsGeometry, &g); err != nil {
		return dom.Geometry{}, err
	}
	return dom.Geometry(g), nil
}

func (n *cdpNode) ScrollIntoView(ctx context.Context) error {
	return n.callValue(ctx, jsScrollIntoView, nil)
}

func (n *cdpNode) Focus(ctx context.Context) error {
	return n.callValue(ctx, jsFocus, nil)
}

func (n *cdpNode) SetContent(ctx context.Context, text string, add bool) error {
	var ok bool
	if err := n.callValue(ctx, jsSetContent, &ok, text, add); err != nil {
		return err
	}
	if !ok {
		return ErrNotEditable
	}
	return nil
}

// Dispatch realizes pointer events through the browser's input pipeline so the
// page receives trusted events. Everything else is constructed in the page.
func (n *cdpNode) Dispatch(ctx context.Context, ev dom.Event) error {
	switch ev.Type {
	case dom.EventMouseMove, dom.EventMouseDown, dom.EventMouseUp:
		n.released = ev.Type == dom.EventMouseUp
		return n.tab.run(ctx, func(ctx context.Context) error {
			return dispatchMouse(ctx, mouseData(ev))
		})
	case dom.EventClick:
		if n.released {
			n.released = false
			return nil
		}
	}
	return n.callValue(ctx, jsDispatch, nil, string(ev.Type), ev.InputType, ev.Data)
}

func mouseData(ev dom.Event) schemas.MouseEventData {
	d := schemas.MouseEventData{X: ev.X, Y: ev.Y, Button: schemas.ButtonNone}
	switch ev.Type {
	case dom.EventMouseDown:
		d.Type, d.Button, d.Buttons, d.ClickCount = schemas.MousePress, schemas.ButtonLeft, 1, 1
	case dom.EventMouseUp:
		d.Type, d.Button, d.ClickCount = schemas.MouseRelease, schemas.ButtonLeft, 1
	default:
		d.Type = schemas.MouseMove
	}
	return d
}

func dispatchMouse(ctx context.Context, d schemas.MouseEventData) error {
	err := input.DispatchMouseEvent(input.MouseType(d.Type), d.X, d.Y).
		WithButton(input.MouseButton(d.Button)).
		WithButtons(d.Buttons).
		WithClickCount(int64(d.ClickCount)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", d.Type, err)
	}
	return nil
}

// callValue invokes fn on the element and decodes its JSON result into out (nil to discard).
func (n *cdpNode) callValue(ctx context.Context, fn string, out any, args ...any) error {
	return n.tab.run(ctx, func(ctx context.Context) error {
		cargs, err := callArguments(args)
		if err != nil {
			return err
		}
		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(n.id).
			WithArguments(cargs).
			WithReturnByValue(true).
			WithSilent(true).
			Do(ctx)
		if err != nil {
			return classify(err)
		}
		if exc != nil {
			return exc
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal(res.Value, out)
	})
}

// callObject invokes fn and keeps its result as a remote object in the node's group.
// It must run inside Tab.run.
func (n *cdpNode) callObject(ctx context.Context, fn string, args ...any) (*runtime.RemoteObject, error) {
	cargs, err := callArguments(args)
	if err != nil {
		return nil, err
	}
	res, exc, err := runtime.CallFunctionOn(fn).
		WithObjectID(n.id).
		WithArguments(cargs).
		WithObjectGroup(n.group).
		WithSilent(true).
		Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if exc != nil {
		return nil, exc
	}
	if res == nil || res.ObjectID == "" {
		return nil, fmt.Errorf("call returned no object")
	}
	return res, nil
}

func callArguments(args []any) ([]*runtime.CallArgument, error) {
	out := make([]*runtime.CallArgument, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode argument %d: %w", i, err)
		}
		out[i] = &runtime.CallArgument{Value: b}
	}
	return out, nil
}

// classify maps protocol errors about vanished objects to ErrDetached.
func classify(err error) error {
	var perr *cdproto.Error
	if errors.As(err, &perr) && strings.Contains(perr.Message, "Could not find object") {
		return fmt.Errorf("%w: %v", ErrDetached, err)
	}
	return err
}
