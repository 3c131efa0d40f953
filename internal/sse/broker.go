// Package sse streams committed ledger events to HTTP clients as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Ledger event types streamed to clients. Anything else is dropped.
const (
	EventIntentRegistered    = "intent.registered"
	EventMatchProposed       = "match.proposed"
	EventMatchStatusUpdated  = "match.status_updated"
	EventIntentStatusUpdated = "intent.status_updated"

	// EventLedgerUpdated is the throttled summary carrying the newest slot.
	EventLedgerUpdated = "ledger.updated"
)

var ledgerEventTypes = map[string]bool{
	EventIntentRegistered:    true,
	EventMatchProposed:       true,
	EventMatchStatusUpdated:  true,
	EventIntentStatusUpdated: true,
}

// LedgerEvent is a committed state change as streamed to clients.
type LedgerEvent struct {
	Type      string `json:"-"`
	Address   string `json:"address"`
	Slot      uint64 `json:"slot"`
	Signature string `json:"signature"`
	Record    any    `json:"record,omitempty"`
}

// Filter narrows a subscription. The zero Filter receives everything.
// Summaries are delivered regardless of the filter.
type Filter struct {
	// Address restricts delivery to events about one account (hex).
	Address string
}

func (f Filter) match(ev LedgerEvent) bool {
	return f.Address == "" || strings.EqualFold(f.Address, ev.Address)
}

type subscription struct {
	ch     chan []byte
	filter Filter
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets the interval of comment frames written to idle
// streams. Zero disables them.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// Broker fans ledger events out to subscribers.
//
// A single event loop goroutine owns the subscriber set and the summary
// throttle. Public methods talk to it over channels.
type Broker struct {
	summaryMin time.Duration
	keepAlive  time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	ledgerCh      chan LedgerEvent
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. throttle is the minimum interval between
// ledger.updated summaries.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		summaryMin:    throttle,
		keepAlive:     15 * time.Second,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		ledgerCh:      make(chan LedgerEvent, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

// frame renders one SSE message. Ledger events carry the slot as id so
// clients can tell where they left off.
func frame(id uint64, eventType string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, eventType, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[chan []byte]Filter)
	var lastSummary time.Time

	send := func(msg []byte, want func(Filter) bool) {
		for ch, f := range subs {
			if !want(f) {
				continue
			}
			select {
			case ch <- msg:
			default:
				// Slow subscriber; drop rather than stall the loop.
			}
		}
	}
	all := func(Filter) bool { return true }

	for {
		select {
		case <-b.stopCh:
			for ch := range subs {
				close(ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s.ch] = s.filter

		case ch := <-b.unsubscribeCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case ev := <-b.ledgerCh:
			if !ledgerEventTypes[ev.Type] {
				continue
			}
			msg, err := frame(ev.Slot, ev.Type, ev)
			if err != nil {
				continue
			}
			send(msg, func(f Filter) bool { return f.match(ev) })

			now := time.Now()
			if now.Sub(lastSummary) < b.summaryMin {
				continue
			}
			lastSummary = now
			if summary, err := frame(ev.Slot, EventLedgerUpdated, map[string]uint64{"slot": ev.Slot}); err == nil {
				send(summary, all)
			}

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

// Close stops the loop and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a subscriber. The channel is closed by Unsubscribe
// or Close.
func (b *Broker) Subscribe(f Filter) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, filter: f}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// PublishLedgerEvent streams a committed change, followed by a
// ledger.updated summary unless one was sent within the throttle window.
func (b *Broker) PublishLedgerEvent(ev LedgerEvent) {
	if b.closed.Load() {
		return
	}
	select {
	case b.ledgerCh <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP is the event stream endpoint. The optional address query
// parameter restricts the stream to one account.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	ch := b.Subscribe(Filter{Address: r.URL.Query().Get("address")})
	defer b.Unsubscribe(ch)

	var ping <-chan time.Time
	if b.keepAlive > 0 {
		ticker := time.NewTicker(b.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
