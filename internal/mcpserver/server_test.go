package mcpserver

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/program"
	"github.com/starford/intentmarket/internal/testutil"
)

func testServer(t *testing.T) (*Server, *ledger.Ledger) {
	t.Helper()
	l, _ := testutil.TestLedger(t)
	return New(l, "test"), l
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "derive_intent_address":
		result, err = srv.deriveIntentAddress(ctx, req)
	case "get_intent":
		result, err = srv.getIntent(ctx, req)
	case "get_match":
		result, err = srv.getMatch(ctx, req)
	case "list_intents":
		result, err = srv.listIntents(ctx, req)
	case "submit_transaction":
		result, err = srv.submitTransaction(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func wire(t *testing.T, tx *ledger.Transaction, err error) string {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	s, err := tx.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSubmitAndReadIntent(t *testing.T) {
	srv, l := testServer(t)
	key, agent := testutil.TestKey(t, "alice")

	tx, err := ledger.RegisterIntentTx(l.ProgramID(), key, program.RegisterIntentArgs{Title: "Need a translator", Description: "EN to DE"})
	r := callTool(t, srv, "submit_transaction", map[string]interface{}{"transaction": wire(t, tx, err)})
	if r.IsError {
		t.Fatalf("submit failed: %s", resultText(r))
	}
	var receipt ledger.Receipt
	if err := json.Unmarshal([]byte(resultText(r)), &receipt); err != nil {
		t.Fatal(err)
	}

	r = callTool(t, srv, "derive_intent_address", map[string]interface{}{"agent": agent.String()})
	if !strings.Contains(resultText(r), receipt.Event.Address.String()) {
		t.Errorf("derived address missing from %q", resultText(r))
	}

	for _, args := range []map[string]interface{}{
		{"address": receipt.Event.Address.String()},
		{"agent": agent.String()},
	} {
		r = callTool(t, srv, "get_intent", args)
		if r.IsError || !strings.Contains(resultText(r), "Need a translator") {
			t.Errorf("get_intent %v = %q", args, resultText(r))
		}
	}

	r = callTool(t, srv, "list_intents", map[string]interface{}{"status": "active", "limit": float64(10)})
	if !strings.Contains(resultText(r), `"total": 1`) {
		t.Errorf("list_intents = %q", resultText(r))
	}
}

func TestSubmitReportsProgramError(t *testing.T) {
	srv, l := testServer(t)
	ctx := context.Background()

	keys := map[string]ed25519.PrivateKey{}
	intents := map[string]address.Pubkey{}
	for _, name := range []string{"alice", "bob"} {
		key, _ := testutil.TestKey(t, name)
		tx, err := ledger.RegisterIntentTx(l.ProgramID(), key, program.RegisterIntentArgs{Title: name})
		if err != nil {
			t.Fatal(err)
		}
		rc, err := l.Submit(ctx, tx)
		if err != nil {
			t.Fatal(err)
		}
		keys[name], intents[name] = key, rc.Event.Address
	}

	tx, err := ledger.ProposeMatchTx(l.ProgramID(), keys["alice"], intents["alice"], intents["bob"], 5000)
	if err != nil {
		t.Fatal(err)
	}
	rc, err := l.Submit(ctx, tx)
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "get_match", map[string]interface{}{"address": rc.Event.Address.String()})
	if !strings.Contains(resultText(r), `"score_percent": 50`) {
		t.Errorf("get_match = %q", resultText(r))
	}

	tx, err = ledger.UpdateMatchStatusTx(keys["bob"], rc.Event.Address, 1)
	r = callTool(t, srv, "submit_transaction", map[string]interface{}{"transaction": wire(t, tx, err)})
	if !r.IsError || !strings.Contains(resultText(r), "Unauthorized (code 6001)") {
		t.Errorf("non-owner update = %q", resultText(r))
	}
}

func TestToolErrors(t *testing.T) {
	srv, _ := testServer(t)
	cases := []struct {
		tool string
		args map[string]interface{}
	}{
		{"get_intent", map[string]interface{}{}},
		{"get_intent", map[string]interface{}{"address": "xyz"}},
		{"get_match", map[string]interface{}{"address": strings.Repeat("00", 32)}},
		{"list_intents", map[string]interface{}{"status": "open"}},
		{"submit_transaction", map[string]interface{}{"transaction": "!!"}},
		{"derive_intent_address", map[string]interface{}{}},
	}
	for _, tc := range cases {
		if r := callTool(t, srv, tc.tool, tc.args); !r.IsError {
			t.Errorf("%s %v: expected error, got %q", tc.tool, tc.args, resultText(r))
		}
	}
}

func TestRecordLayoutResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readRecordLayoutResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	for _, want := range []string{"1361 bytes", "84 bytes", "6000", "6001"} {
		if !strings.Contains(text, want) {
			t.Errorf("record layout missing %q", want)
		}
	}
}
