package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

type sessionState int

const (
	stateUnstarted sessionState = iota
	stateStarting
	stateConnected
	stateStopped
)

const (
	connectTimeout         = 60 * time.Second
	defaultNavigateTimeout = 60 * time.Second
	responseBodyTimeout    = 15 * time.Second
	monitorJoinTimeout     = 2 * time.Second
)

// clickScript scrolls the bound element into view and clicks it. Used by
// both click variants once a node is resolved to a live object handle.
const clickScript = `function() {
	this.scrollIntoView({ block: "center", behavior: "instant" });
	this.click();
}`

// hideWebdriverScript runs on every new document so automated pages do not
// expose navigator.webdriver.
const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {
	get: () => undefined
})`

// Remote is one protocol session over a supervised Chrome: it owns the
// browser process, a single tab, the exchange store feeding WaitResponse, and
// the liveness monitor. All operations are synchronous from the caller's
// side; the monitor is the only background activity.
//
// A Remote moves Unstarted -> Starting -> Connected -> Stopped and never
// back. Detachment (the monitor losing the tab) is terminal too: once any
// call returns a Detached error the caller must construct a fresh Remote.
type Remote struct {
	opts     Options
	patterns []string
	log      logrus.FieldLogger

	mu          sync.Mutex
	state       sessionState
	browser     *Browser
	devURL      string
	tabID       string
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	monitor     *tabMonitor

	store    *ExchangeStore
	detached atomic.Bool

	// Tunables for tests.
	connectBudget time.Duration
	newBrowser    func() *Browser
}

// NewRemote builds a session with the given configuration and response
// pattern subscriptions. Nothing is launched until Start.
func NewRemote(opts Options, patterns []string, log logrus.FieldLogger) *Remote {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Remote{
		opts:          opts,
		patterns:      patterns,
		log:           log.WithField("component", "chrome.remote"),
		store:         NewExchangeStore(patterns),
		connectBudget: connectTimeout,
	}
	r.newBrowser = func() *Browser { return NewBrowser(r.opts, r.log) }
	return r
}

// Start launches the browser, opens and attaches a tab, enables the protocol
// domains, installs the anti-detection tweaks, and starts the liveness
// monitor. On any failure the partially created resources are torn down and
// the session is left Unstarted so the caller may retry.
func (r *Remote) Start() error {
	r.mu.Lock()
	switch r.state {
	case stateConnected, stateStarting:
		r.mu.Unlock()
		return nil
	case stateStopped:
		r.mu.Unlock()
		return fmt.Errorf("%w: session stopped, construct a new one", ErrNotStarted)
	}
	r.state = stateStarting
	r.mu.Unlock()

	if err := r.connect(); err != nil {
		r.mu.Lock()
		if r.state == stateStarting {
			r.state = stateUnstarted
		}
		r.mu.Unlock()
		return err
	}

	return r.finishStart()
}

// finishStart flips Starting to Connected, unless Stop ran while connect was
// in flight: then the freshly created resources are torn down here, since
// Stop could not have seen them yet.
func (r *Remote) finishStart() error {
	r.mu.Lock()
	if r.state != stateStarting {
		r.mu.Unlock()
		r.shutdown()
		return fmt.Errorf("%w: session stopped during start", ErrNotStarted)
	}
	r.state = stateConnected
	r.mu.Unlock()
	return nil
}

func (r *Remote) connect() error {
	browser := r.newBrowser()
	if err := browser.Start(); err != nil {
		return err
	}
	devURL := browser.DevURL

	// Tab creation right after launch is flaky; retry inside the budget.
	tabID, err := waitUntil("create tab", r.connectBudget, true, func() (string, error) {
		return createTab(devURL)
	})
	if err != nil {
		browser.Close()
		return err
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), devURL, chromedp.NoModifyURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(target.ID(tabID)))

	teardown := func() {
		tabCancel()
		allocCancel()
		browser.Close()
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			r.store.RecordRequest(e)
		case *network.EventResponseReceived:
			r.store.RecordResponse(e)
		}
	})

	// First Run attaches to the target; enable every domain the session uses.
	err = chromedp.Run(tabCtx,
		network.Enable(),
		dom.Enable(),
		page.Enable(),
		runtime.Enable(),
		cdplog.Enable(),
	)
	if err != nil {
		teardown()
		return fmt.Errorf("enable protocol domains: %w", err)
	}

	if err := setupTab(tabCtx); err != nil {
		teardown()
		return err
	}

	r.mu.Lock()
	r.browser = browser
	r.devURL = devURL
	r.tabID = tabID
	r.allocCancel = allocCancel
	r.tabCtx = tabCtx
	r.tabCancel = tabCancel
	r.monitor = newTabMonitor(devURL, tabID, r.log, func() {
		r.detached.Store(true)
		tabCancel()
	})
	r.mu.Unlock()

	r.monitor.start()
	r.log.WithFields(logrus.Fields{"devtools": devURL, "tab": tabID}).Info("session connected")
	return nil
}

// setupTab strips the headless marker from the user agent and hides the
// automation flag before any page loads.
func setupTab(ctx context.Context) error {
	ua, err := evaluate(ctx, "navigator.userAgent")
	if err != nil {
		return fmt.Errorf("read user agent: %w", err)
	}
	uaStr, _ := ua.(string)
	fixed := strings.Replace(uaStr, " HeadlessChrome/", " Chrome/", 1)

	return chromedp.Run(ctx,
		emulation.SetUserAgentOverride(fixed),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx)
			return err
		}),
	)
}

func createTab(devURL string) (string, error) {
	req, err := http.NewRequest(http.MethodPut, devURL+"/json/new", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create tab: unexpected status %d", resp.StatusCode)
	}

	var tab struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tab); err != nil {
		return "", err
	}
	if tab.ID == "" {
		return "", errors.New("create tab: empty target id")
	}
	return tab.ID, nil
}

// send runs actions against the tab. It is the single choke point every
// protocol call goes through: it rejects calls before Connected, and once
// the monitor flags detachment it maps whatever the transport produced into
// the terminal Detached error so callers can tell a dead browser from a
// transient failure.
func (r *Remote) send(timeout time.Duration, actions ...chromedp.Action) error {
	r.mu.Lock()
	if r.state != stateConnected {
		r.mu.Unlock()
		return ErrNotStarted
	}
	ctx := r.tabCtx
	r.mu.Unlock()

	if r.detached.Load() {
		return ErrDetached
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := chromedp.Run(ctx, actions...); err != nil {
		if r.detached.Load() {
			return fmt.Errorf("%w: %v", ErrDetached, err)
		}
		return err
	}
	return nil
}

// Navigate drives the tab to url. A protocol reply carrying an error text is
// surfaced as NavigationFailed; transport errors after the tab was lost come
// back as Detached. A zero timeout means the default navigation budget.
func (r *Remote) Navigate(url, referer string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultNavigateTimeout
	}
	return r.send(timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		p := page.Navigate(url)
		if referer != "" {
			p = p.WithReferrer(referer)
		}
		_, _, errText, _, err := p.Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("%w: %s: %s", ErrNavigationFailed, url, errText)
		}
		return nil
	}))
}

// ExecuteScript evaluates an expression in the page and returns its value.
// Expressions starting with "return" and expressions taking args are wrapped
// in a function so `arguments` works the way consumers of the finder layer
// expect. An exception thrown by the page is a ScriptException, not a crash.
func (r *Remote) ExecuteScript(expression string, args ...any) (any, error) {
	var value any
	err := r.send(0, chromedp.ActionFunc(func(ctx context.Context) error {
		v, err := evaluate(ctx, expression, args...)
		value = v
		return err
	}))
	return value, err
}

// CallFunctionOn invokes a function declaration with `this` bound to the
// object behind objectID. Same result and exception contract as
// ExecuteScript.
func (r *Remote) CallFunctionOn(objectID runtime.RemoteObjectID, declaration string, args ...any) (any, error) {
	var value any
	err := r.send(0, chromedp.ActionFunc(func(ctx context.Context) error {
		v, err := callFunctionOn(ctx, objectID, declaration, args...)
		value = v
		return err
	}))
	return value, err
}

// GetDocument fetches a point-in-time DOM snapshot: the full recursive tree
// when full is true, the root with its direct children otherwise.
func (r *Remote) GetDocument(full bool) (*Node, error) {
	depth := int64(1)
	if full {
		depth = -1
	}

	var root *Node
	err := r.send(0, chromedp.ActionFunc(func(ctx context.Context) error {
		doc, err := dom.GetDocument().WithDepth(depth).Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: get document: %v", ErrDOMUnavailable, err)
		}
		root = nodeFromCDP(doc, nil)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return root, nil
}

// WaitForSelector polls every 500ms until the selector matches something or
// timeout elapses. A plain not-found is false with no error; only session
// loss and transport failures produce an error.
func (r *Remote) WaitForSelector(selector string, timeout time.Duration) (bool, error) {
	script := fmt.Sprintf("return document.querySelector(%q) !== null;", selector)
	deadline := time.Now().Add(timeout)

	for {
		v, err := r.ExecuteScript(script)
		if err != nil {
			if errors.Is(err, ErrScriptException) {
				// Bad selector never matches.
				return false, nil
			}
			return false, err
		}
		if matched, ok := v.(bool); ok && matched {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(retryBackoff)
	}
}

// WaitResponse waits for the next exchange matching pattern, up to timeout.
// A missed response is nil, never an error: callers treat it as "not found".
func (r *Remote) WaitResponse(pattern string, timeout time.Duration) *Exchange {
	ex, _ := waitUntil("wait response "+pattern, timeout, false, func() (*Exchange, error) {
		if r.detached.Load() || !r.connected() {
			return nil, nil
		}
		if ex := r.store.Take(pattern); ex != nil {
			return ex, nil
		}
		return nil, errors.New("queue empty")
	})
	return ex
}

// GetResponseBody fetches an exchange's body and records it on the caller's
// exchange. Bodies evicted by the browser or still streaming yield an empty
// string after the retry budget rather than an error.
func (r *Remote) GetResponseBody(ex *Exchange) string {
	body, _ := waitUntil("get response body", responseBodyTimeout, false, func() (string, error) {
		var body []byte
		err := r.send(0, chromedp.ActionFunc(func(ctx context.Context) error {
			b, err := network.GetResponseBody(ex.RequestID).Do(ctx)
			body = b
			return err
		}))
		if err != nil {
			return "", err
		}
		ex.Body = string(body)
		return ex.Body, nil
	})
	return body
}

// GetRequests returns every exchange observed since the last clear.
func (r *Remote) GetRequests() []*Exchange {
	return r.store.Requests()
}

// GetResponses returns every completed exchange since the last clear.
func (r *Remote) GetResponses() []*Exchange {
	return r.store.Responses()
}

// ClearRequests drops the accumulated exchanges and every queued match.
// Callers run it between page operations to bound memory.
func (r *Remote) ClearRequests() {
	r.store.Clear()
}

// AddStartScript installs a script evaluated on every new document.
func (r *Remote) AddStartScript(source string) error {
	return r.send(0, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(source).Do(ctx)
		return err
	}))
}

// AddBlockedRequests asks the browser to drop requests to the given URL
// patterns. Failures are reported as false, not errors.
func (r *Remote) AddBlockedRequests(urls []string) bool {
	err := r.send(0, network.SetBlockedURLs(urls))
	if err != nil {
		r.log.WithError(err).Warn("set blocked urls failed")
		return false
	}
	return true
}

// PerformClick resolves a snapshot node to a live object handle and invokes
// the scroll-into-view-and-click function on it. A failed resolve is
// DomUnavailable and no invoke happens.
func (r *Remote) PerformClick(node *Node, timeout time.Duration) error {
	return r.send(timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(node.BackendNodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: resolve node: %v", ErrDOMUnavailable, err)
		}
		_, err = callFunctionOn(ctx, obj.ObjectID, clickScript)
		return err
	}))
}

// PerformClickBySelector resolves selector -> node id -> backend node id ->
// object id, then clicks. Unmatched selectors are DomUnavailable.
func (r *Remote) PerformClickBySelector(selector string, timeout time.Duration) error {
	return r.send(timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		doc, err := dom.GetDocument().WithDepth(1).Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: get document: %v", ErrDOMUnavailable, err)
		}
		nodeID, err := dom.QuerySelector(doc.NodeID, selector).Do(ctx)
		if err != nil || nodeID == 0 {
			return fmt.Errorf("%w: selector %q not found", ErrDOMUnavailable, selector)
		}
		desc, err := dom.DescribeNode().WithNodeID(nodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: describe node: %v", ErrDOMUnavailable, err)
		}
		obj, err := dom.ResolveNode().WithBackendNodeID(desc.BackendNodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: resolve node: %v", ErrDOMUnavailable, err)
		}
		_, err = callFunctionOn(ctx, obj.ObjectID, clickScript)
		return err
	}))
}

// Detached reports whether the monitor has flagged session loss.
func (r *Remote) Detached() bool {
	return r.detached.Load()
}

// Stop tears the session down: tab closed best-effort, browser terminated,
// queues cleared, monitor joined with a bounded wait. It is idempotent and
// always leaves the session Stopped; individual step failures are logged.
func (r *Remote) Stop() {
	r.mu.Lock()
	if r.state == stateStopped {
		r.mu.Unlock()
		return
	}
	prev := r.state
	r.state = stateStopped
	r.mu.Unlock()

	// An in-flight connect still owns its resources; finishStart observes the
	// Stopped state and tears them down.
	if prev != stateConnected {
		return
	}

	r.shutdown()
	r.log.Info("session stopped")
}

// shutdown releases whatever connect has registered: monitor joined with a
// bounded wait, tab closed best-effort, contexts cancelled, browser
// terminated, queues cleared. Fields are taken and nilled under the lock so
// concurrent callers release each resource at most once.
func (r *Remote) shutdown() {
	r.mu.Lock()
	browser := r.browser
	devURL := r.devURL
	tabID := r.tabID
	tabCancel := r.tabCancel
	allocCancel := r.allocCancel
	monitor := r.monitor
	r.browser = nil
	r.tabID = ""
	r.tabCancel = nil
	r.allocCancel = nil
	r.monitor = nil
	r.mu.Unlock()

	if monitor != nil && !monitor.stop(monitorJoinTimeout) {
		r.log.Warn("monitor did not exit within join timeout")
	}

	if !r.detached.Load() && tabID != "" {
		if err := closeTab(devURL, tabID); err != nil {
			r.log.WithError(err).Debug("close tab failed")
		}
	}
	if tabCancel != nil {
		tabCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	if browser != nil {
		browser.Close()
	}
	r.store.Clear()
}

func closeTab(devURL, tabID string) error {
	req, err := http.NewRequest(http.MethodPut, devURL+"/json/close/"+tabID, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (r *Remote) connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateConnected
}

// evaluate runs an expression through Runtime.evaluate with return-by-value
// and decodes the result. Exceptions in the page come back as
// ScriptException errors.
func evaluate(ctx context.Context, expression string, args ...any) (any, error) {
	expr := expression
	if len(args) > 0 || strings.HasPrefix(strings.TrimSpace(expression), "return") {
		argJSON, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode script args: %w", err)
		}
		if len(args) == 0 {
			argJSON = []byte("[]")
		}
		expr = fmt.Sprintf("(function() { %s }).apply(null, %s)", expression, argJSON)
	}

	obj, exc, err := runtime.Evaluate(expr).WithReturnByValue(true).Do(ctx)
	if err != nil {
		return nil, err
	}
	return decodeRemoteValue(obj, exc)
}

func callFunctionOn(ctx context.Context, objectID runtime.RemoteObjectID, declaration string, args ...any) (any, error) {
	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode call arg: %w", err)
		}
		callArgs = append(callArgs, &runtime.CallArgument{Value: data})
	}

	p := runtime.CallFunctionOn(declaration).
		WithObjectID(objectID).
		WithReturnByValue(true)
	if len(callArgs) > 0 {
		p = p.WithArguments(callArgs)
	}

	obj, exc, err := p.Do(ctx)
	if err != nil {
		return nil, err
	}
	return decodeRemoteValue(obj, exc)
}

func decodeRemoteValue(obj *runtime.RemoteObject, exc *runtime.ExceptionDetails) (any, error) {
	if exc != nil {
		detail := exc.Text
		if exc.Exception != nil && exc.Exception.Description != "" {
			detail = exc.Exception.Description
		}
		return nil, fmt.Errorf("%w: %s", ErrScriptException, detail)
	}
	if obj == nil || obj.Value == nil {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(obj.Value, &v); err != nil {
		return nil, fmt.Errorf("decode script result: %w", err)
	}
	return v, nil
}
