package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cdpnode "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ErrNoElement is returned by element operations when the selector matches nothing.
var ErrNoElement = errors.New("no element matches selector")

// IsXPath reports whether a selector is treated as XPath.
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

// queryOption maps a selector to the chromedp lookup that understands it.
// DOM.performSearch evaluates XPath; CSS goes through querySelector.
func queryOption(selector string) chromedp.QueryOption {
	if IsXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Page drives one page target of a browser that was started elsewhere.
type Page struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// Attach binds to the page target of the browser listening on addr. The
// browser is reached through its remote allocator, so nothing is launched
// and closing the Page leaves both browser and page running.
func Attach(ctx context.Context, addr string, t Target) (*Page, error) {
	info, err := Version(ctx, addr)
	if err != nil {
		return nil, err
	}
	if info.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("browser at %s has no websocket url", addr)
	}

	// The chromedp contexts outlive ctx; only the attach itself is bounded by it.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), info.WebSocketDebuggerURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(target.ID(t.ID)))
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	attached := make(chan error, 1)
	go func() { attached <- chromedp.Run(tabCtx) }()
	select {
	case err := <-attached:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("attach to page %s: %w", t.ID, err)
		}
	case <-ctx.Done():
		cancel()
		return nil, fmt.Errorf("attach to page %s: %w", t.ID, ctx.Err())
	}
	return &Page{id: t.ID, ctx: tabCtx, cancel: cancel}, nil
}

// TargetID identifies the page inside its browser. It is what a session
// record stores as its control session token.
func (p *Page) TargetID() string {
	return p.id
}

// Close drops the DevTools connection; the page itself stays open.
func (p *Page) Close() error {
	p.cancel()
	return nil
}

// run executes actions on the page, bounded by ctx as well as by the page's
// own lifetime.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, dl)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// lookup returns the nodes selector matches right now, without waiting.
func (p *Page) lookup(ctx context.Context, selector string) ([]*cdpnode.Node, error) {
	var nodes []*cdpnode.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, queryOption(selector), chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("%s: %w", selector, err)
	}
	return nodes, nil
}

// onElement runs the action built by fn after checking that selector
// matches, so a missing element fails at once instead of waiting for the
// context deadline.
func (p *Page) onElement(ctx context.Context, selector string, fn func(opt chromedp.QueryOption) chromedp.Action) error {
	nodes, err := p.lookup(ctx, selector)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		kind := "css"
		if IsXPath(selector) {
			kind = "xpath"
		}
		return fmt.Errorf("%s %s: %w", kind, selector, ErrNoElement)
	}
	if err := p.run(ctx, fn(queryOption(selector))); err != nil {
		return fmt.Errorf("%s: %w", selector, err)
	}
	return nil
}

// Exists reports whether selector currently matches an element.
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	nodes, err := p.lookup(ctx, selector)
	if err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// SetValue clears an input and types value into it, so the page sees the
// key and input events a user would produce.
func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	return p.onElement(ctx, selector, func(opt chromedp.QueryOption) chromedp.Action {
		return chromedp.Tasks{
			chromedp.ScrollIntoView(selector, opt),
			chromedp.SetValue(selector, "", opt),
			chromedp.SendKeys(selector, value, opt),
		}
	})
}

// Click scrolls the element into view and clicks it.
func (p *Page) Click(ctx context.Context, selector string) error {
	return p.onElement(ctx, selector, func(opt chromedp.QueryOption) chromedp.Action {
		return chromedp.Tasks{
			chromedp.ScrollIntoView(selector, opt),
			chromedp.Click(selector, opt),
		}
	})
}

// Text returns the rendered text of the element.
func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := p.onElement(ctx, selector, func(opt chromedp.QueryOption) chromedp.Action {
		return chromedp.Text(selector, &text, opt)
	})
	return strings.TrimSpace(text), err
}

// Attribute returns an attribute of the element, or "" when it is unset.
func (p *Page) Attribute(ctx context.Context, selector, name string) (string, error) {
	var (
		value string
		ok    bool
	)
	err := p.onElement(ctx, selector, func(opt chromedp.QueryOption) chromedp.Action {
		return chromedp.AttributeValue(selector, name, &value, &ok, opt)
	})
	return value, err
}

// fillFromLabels copies the text of every label inside the container into
// the input at the same position. The container is found the same way the
// element operations find theirs.
const fillFromLabels = `(function(sel, xpath){
  const el = xpath
    ? document.evaluate(sel, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue
    : document.querySelector(sel);
  if (!el) { return -1; }
  const labels = el.querySelectorAll('label');
  const inputs = el.querySelectorAll('input');
  const n = Math.min(labels.length, inputs.length);
  const setter = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'value').set;
  for (let i = 0; i < n; i++) {
    setter.call(inputs[i], (labels[i].innerText || labels[i].textContent || '').trim());
    inputs[i].dispatchEvent(new Event('input', {bubbles: true}));
    inputs[i].dispatchEvent(new Event('change', {bubbles: true}));
  }
  return n;
})(%q, %t)`

// FillInputsFromLabels copies label texts into the matching inputs of the
// container and returns how many pairs were filled.
func (p *Page) FillInputsFromLabels(ctx context.Context, containerSelector string) (int, error) {
	var filled int
	script := fmt.Sprintf(fillFromLabels, containerSelector, IsXPath(containerSelector))
	err := p.run(ctx, chromedp.Evaluate(script, &filled, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", containerSelector, err)
	}
	if filled < 0 {
		return 0, fmt.Errorf("%s: %w", containerSelector, ErrNoElement)
	}
	return filled, nil
}

// Location returns the current document URL.
func (p *Page) Location(ctx context.Context) (string, error) {
	var href string
	if err := p.run(ctx, chromedp.Location(&href)); err != nil {
		return "", err
	}
	return href, nil
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Source returns the serialized document.
func (p *Page) Source(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// PressEnter sends an Enter key press to the focused element.
func (p *Page) PressEnter(ctx context.Context) error {
	return p.run(ctx, chromedp.KeyEvent(kb.Enter))
}
