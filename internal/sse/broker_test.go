package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// drain collects everything currently buffered on ch.
func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe(Filter{})
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestLedgerEventFrame(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe(Filter{})
	defer b.Unsubscribe(ch)

	b.PublishLedgerEvent(LedgerEvent{Type: EventIntentRegistered, Address: "ab01", Slot: 4, Signature: "sig"})

	select {
	case msg := <-ch:
		s := string(msg)
		for _, want := range []string{"id: 4\n", "event: intent.registered\n", `"address":"ab01"`, `"signature":"sig"`} {
			if !strings.Contains(s, want) {
				t.Errorf("frame %q missing %q", s, want)
			}
		}
		if strings.Contains(s, `"type"`) {
			t.Errorf("type belongs in the event line, not the payload: %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishLedgerEvent_SummaryThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe(Filter{})
	defer b.Unsubscribe(ch)

	b.PublishLedgerEvent(LedgerEvent{Type: EventIntentRegistered, Address: "aa", Slot: 1})
	b.PublishLedgerEvent(LedgerEvent{Type: EventMatchProposed, Address: "bb", Slot: 2})
	b.PublishLedgerEvent(LedgerEvent{Type: "intent.closed", Address: "cc", Slot: 3})
	b.PublishLedgerEvent(LedgerEvent{Type: EventIntentStatusUpdated, Address: "dd", Slot: 4})

	time.Sleep(50 * time.Millisecond)
	summaryCount, ledgerCount := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "event: "+EventLedgerUpdated) {
			summaryCount++
			if !strings.Contains(s, `"slot":1`) {
				t.Errorf("summary should carry the first slot: %q", s)
			}
			continue
		}
		ledgerCount++
		if strings.Contains(s, "intent.closed") {
			t.Errorf("unknown event type forwarded: %q", s)
		}
	}

	if ledgerCount != 3 {
		t.Errorf("ledger events = %d, want 3", ledgerCount)
	}
	if summaryCount != 1 {
		t.Errorf("summary events = %d, want 1 (throttled)", summaryCount)
	}
}

func TestAddressFilter(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	only := b.Subscribe(Filter{Address: "AB01"})
	defer b.Unsubscribe(only)

	b.PublishLedgerEvent(LedgerEvent{Type: EventMatchProposed, Address: "ff00", Slot: 1})
	b.PublishLedgerEvent(LedgerEvent{Type: EventMatchStatusUpdated, Address: "ab01", Slot: 2})
	time.Sleep(50 * time.Millisecond)

	var events []string
	for _, s := range drain(only) {
		if !strings.Contains(s, "event: "+EventLedgerUpdated) {
			events = append(events, s)
		}
	}
	if len(events) != 1 || !strings.Contains(events[0], `"address":"ab01"`) {
		t.Fatalf("filtered events = %q", events)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100*time.Millisecond, WithKeepAlive(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?address=m1", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishLedgerEvent(LedgerEvent{Type: EventMatchStatusUpdated, Address: "m2", Slot: 6})
	b.PublishLedgerEvent(LedgerEvent{Type: EventMatchStatusUpdated, Address: "m1", Slot: 7})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.HasPrefix(body, "retry: ") {
		t.Errorf("stream should open with a retry hint: %q", body)
	}
	if !strings.Contains(body, "event: match.status_updated") || !strings.Contains(body, `"address":"m1"`) {
		t.Errorf("handler output missing event: %q", body)
	}
	if strings.Contains(body, `"address":"m2"`) {
		t.Errorf("filtered address leaked: %q", body)
	}
	if !strings.Contains(body, ": ping") {
		t.Errorf("missing keepalive comment: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe(Filter{})
	defer b.Unsubscribe(ch)

	// The subscriber buffer holds 64; the rest must be dropped, not block.
	for i := 0; i < 70; i++ {
		b.PublishLedgerEvent(LedgerEvent{Type: EventMatchProposed, Address: "x", Slot: uint64(i)})
	}
	if b.ClientCount() != 1 {
		t.Fatal("broker loop stalled")
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe(Filter{})
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.PublishLedgerEvent(LedgerEvent{Type: EventMatchProposed, Address: "x"})
	b.Close()
	if _, ok := <-b.Subscribe(Filter{}); ok {
		t.Fatal("subscribe after close should return a closed channel")
	}
}
