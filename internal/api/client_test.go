package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/models"
	"github.com/starford/intentmarket/internal/testutil"
)

func TestClientSubmit(t *testing.T) {
	l, router := testEnv(t, "secret")
	srv := httptest.NewServer(router)
	defer srv.Close()

	alice, _ := testutil.TestKey(t, "alice")
	client, err := NewClient(ClientConfig{BaseURL: srv.URL + "/", Token: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	receipt, err := client.Submit(context.Background(), registerTx(t, l, alice, "client"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Slot != 1 || receipt.Event.Type != "intent.registered" {
		t.Fatalf("receipt = %+v", receipt)
	}

	_, err = client.Submit(context.Background(), registerTx(t, l, alice, "client"))
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("duplicate err = %v, want 409 *Error", err)
	}
}

func TestClientSubmitProgramError(t *testing.T) {
	_, router, _, bob, _, match := matchEnv(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	tx, err := ledger.UpdateMatchStatusTx(bob, match, uint8(models.MatchAccepted))
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Submit(context.Background(), tx)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != 6001 || apiErr.Name != "Unauthorized" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestClientSubmitUnauthenticated(t *testing.T) {
	l, router := testEnv(t, "secret")
	srv := httptest.NewServer(router)
	defer srv.Close()

	alice, _ := testutil.TestKey(t, "alice")
	client, _ := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := client.Submit(context.Background(), registerTx(t, l, alice, "x"))
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
