package chrome

import (
	"regexp"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
)

// Exchange is one network request and, once the browser has seen it, its
// response. Body is filled lazily by Remote.GetResponseBody. The store hands
// out point-in-time copies: a record updated by a later network event does
// not mutate exchanges callers already hold.
type Exchange struct {
	RequestID network.RequestID
	URL       string
	Method    string
	Request   *network.Request
	Response  *network.Response
	Body      string
}

// ExchangeStore correlates network events with caller-issued waits. It keeps
// a flat log of every exchange keyed by request id plus one FIFO queue per
// registered URL pattern, fed as matching responses arrive. A single lock
// spans both structures so they can never disagree about an exchange.
type ExchangeStore struct {
	mu       sync.Mutex
	byID     map[network.RequestID]*Exchange
	order    []network.RequestID
	queues   map[string][]*Exchange
	patterns map[string]*regexp.Regexp
}

// NewExchangeStore builds a store with one queue per pattern. Patterns are
// fnmatch-style globs: '*' and '?' match any characters including '/'.
func NewExchangeStore(patterns []string) *ExchangeStore {
	s := &ExchangeStore{
		byID:     make(map[network.RequestID]*Exchange),
		queues:   make(map[string][]*Exchange),
		patterns: make(map[string]*regexp.Regexp),
	}
	for _, p := range patterns {
		s.Register(p)
	}
	return s
}

// Register subscribes a pattern, creating its (empty) queue. Registering the
// same pattern twice is a no-op.
func (s *ExchangeStore) Register(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[pattern]; ok {
		return
	}
	s.queues[pattern] = nil
	s.patterns[pattern] = compileGlob(pattern)
}

// RecordRequest notes an outgoing request in the flat log.
func (s *ExchangeStore) RecordRequest(ev *network.EventRequestWillBeSent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.byID[ev.RequestID]
	if !ok {
		ex = &Exchange{RequestID: ev.RequestID}
		s.byID[ev.RequestID] = ex
		s.order = append(s.order, ev.RequestID)
	}
	ex.Request = ev.Request
	if ev.Request != nil {
		ex.URL = ev.Request.URL
		ex.Method = ev.Request.Method
	}
}

// RecordResponse attaches the response to its exchange and pushes the
// exchange onto the queue of every pattern its URL matches. Exchanges whose
// request event was missed still land in the flat log; nothing is dropped
// silently.
func (s *ExchangeStore) RecordResponse(ev *network.EventResponseReceived) {
	if ev.Response == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.byID[ev.RequestID]
	if !ok {
		ex = &Exchange{RequestID: ev.RequestID}
		s.byID[ev.RequestID] = ex
		s.order = append(s.order, ev.RequestID)
	}
	ex.Response = ev.Response
	if ex.URL == "" {
		ex.URL = ev.Response.URL
	}

	for pattern, re := range s.patterns {
		if re.MatchString(ev.Response.URL) {
			s.queues[pattern] = append(s.queues[pattern], ex)
		}
	}
}

// Take pops the oldest queued exchange for a pattern. It never blocks; a nil
// result means the queue is empty or the pattern was never registered.
func (s *ExchangeStore) Take(pattern string) *Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[pattern]
	if len(q) == 0 {
		return nil
	}
	ex := q[0]
	s.queues[pattern] = q[1:]
	return snapshot(ex)
}

// Requests returns a copy of every logged exchange in arrival order.
func (s *ExchangeStore) Requests() []*Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Exchange, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, snapshot(s.byID[id]))
	}
	return out
}

// Responses returns a copy of the logged exchanges that have a response, in
// arrival order.
func (s *ExchangeStore) Responses() []*Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Exchange
	for _, id := range s.order {
		if ex := s.byID[id]; ex.Response != nil {
			out = append(out, snapshot(ex))
		}
	}
	return out
}

// snapshot copies an exchange under the store lock. The record fields are
// shared pointers, but the protocol event structs are never written after
// assignment, so a shallow copy is race-free. Must be called with s.mu held.
func snapshot(ex *Exchange) *Exchange {
	c := *ex
	return &c
}

// Clear empties the flat log and every queue. Callers run it between page
// operations to bound memory and shed stale matches; subscriptions survive.
func (s *ExchangeStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[network.RequestID]*Exchange)
	s.order = nil
	for pattern := range s.queues {
		s.queues[pattern] = nil
	}
}

// compileGlob turns an fnmatch-style pattern into a regexp. Unlike
// path.Match, '*' here crosses '/' so patterns like "*.example.com/api/*"
// behave the way URL subscribers expect.
func compileGlob(pattern string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}
