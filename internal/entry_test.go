package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/intentmarket/internal/api"
	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/program"
	"github.com/starford/intentmarket/internal/sse"
	"github.com/starford/intentmarket/internal/storage"
	"github.com/starford/intentmarket/internal/testutil"
)

func TestHealthEndpoints(t *testing.T) {
	store := storage.NewMemory()
	l := ledger.New(store)
	h := NewHTTPHandler(l, store, api.AuthSettings{Mode: api.AuthModeToken, Token: "t"}, nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200 without auth", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/intents", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("/api/intents = %d, want 401", w.Code)
	}
}

func TestOpenLedger(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.Driver = storage.DriverMemory
	cfg.Ledger.MatchOwner = string(program.OwnerEither)
	l, store, err := OpenLedger(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if l.ProgramID() != program.DefaultID {
		t.Errorf("program id = %s", l.ProgramID())
	}

	cfg.Ledger.ProgramID = "zz"
	if _, _, err := OpenLedger(context.Background(), cfg, testLogger()); err == nil {
		t.Error("invalid program id should fail")
	}
}

func TestReceiptsReachSSE(t *testing.T) {
	broker := sse.NewBroker(time.Hour)
	defer broker.Close()
	ch := broker.Subscribe(sse.Filter{})
	defer broker.Unsubscribe(ch)

	l, _ := testutil.TestLedger(t, ledger.WithNotifier(publishReceipts(broker)))
	key, _ := testutil.TestKey(t, "alice")
	tx, err := ledger.RegisterIntentTx(l.ProgramID(), key, program.RegisterIntentArgs{Title: "streamed"})
	if err != nil {
		t.Fatal(err)
	}
	receipt, err := l.Submit(context.Background(), tx)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "event: "+program.EventIntentRegistered) {
			t.Fatalf("first event = %q", s)
		}
		payload := strings.TrimSuffix(strings.SplitN(s, "data: ", 2)[1], "\n\n")
		var ev sse.LedgerEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Address != receipt.Event.Address.String() || ev.Slot != 1 || ev.Signature != receipt.Signature {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}
