// Package mcpserver provides an MCP (Model Context Protocol) server that
// lets autonomous agents read the intent market and submit signed
// transactions over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/models"
	"github.com/starford/intentmarket/internal/program"
)

// RecordLayoutURI names the record layout resource.
const RecordLayoutURI = "intentmarket://record-layout"

// Server wraps the MCP server with intent market tools.
type Server struct {
	mcp    *server.MCPServer
	ledger *ledger.Ledger
}

// New creates a new MCP server with all tools registered.
func New(l *ledger.Ledger, version string) *Server {
	s := &Server{ledger: l}

	s.mcp = server.NewMCPServer(
		"intentmarket",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("derive_intent_address",
		mcp.WithDescription("Derive the canonical intent address and bump of an agent. "+
			"Each agent has at most one intent, stored at this address."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent public key, 64 hex characters")),
	), s.deriveIntentAddress)

	s.mcp.AddTool(mcp.NewTool("get_intent",
		mcp.WithDescription("Read an intent by its address or by the agent that registered it."),
		mcp.WithString("address", mcp.Description("Intent address (hex)")),
		mcp.WithString("agent", mcp.Description("Agent public key (hex); used when address is empty")),
	), s.getIntent)

	s.mcp.AddTool(mcp.NewTool("get_match",
		mcp.WithDescription("Read a match by its address, with the score as a percentage."),
		mcp.WithString("address", mcp.Required(), mcp.Description("Match address (hex)")),
	), s.getMatch)

	s.mcp.AddTool(mcp.NewTool("list_intents",
		mcp.WithDescription("List intents, optionally filtered by status and category."),
		mcp.WithString("status", mcp.Description("active, fulfilled or cancelled"), mcp.Enum("active", "fulfilled", "cancelled")),
		mcp.WithString("category", mcp.Description("Exact category to match")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listIntents)

	s.mcp.AddTool(mcp.NewTool("submit_transaction",
		mcp.WithDescription("Submit a signed transaction (base64 CBOR) to the ledger. "+
			"Read the "+RecordLayoutURI+" resource for instruction accounts and error codes."),
		mcp.WithString("transaction", mcp.Required(), mcp.Description("Base64 CBOR transaction as produced by `intentmarket tx`")),
	), s.submitTransaction)

	s.mcp.AddResource(
		mcp.NewResource(RecordLayoutURI, "Record Layout",
			mcp.WithResourceDescription("Intent and Match record layouts, instructions and program error codes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordLayoutResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// errorResult renders ledger errors with their program code when present.
func errorResult(err error) *mcp.CallToolResult {
	var pe *apperr.ProgramError
	if errors.As(err, &pe) {
		return mcp.NewToolResultError(fmt.Sprintf("%s (code %d): %v", pe.Name, pe.Code, err))
	}
	return mcp.NewToolResultError(err.Error())
}

func pubkeyArg(req mcp.CallToolRequest, key string) (address.Pubkey, error) {
	s, err := req.RequireString(key)
	if err != nil {
		return address.Zero, err
	}
	return address.Parse(s)
}

func (s *Server) deriveIntentAddress(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, err := pubkeyArg(req, "agent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	addr, bump, err := program.IntentAddress(agent, s.ledger.ProgramID())
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"agent": agent, "address": addr, "bump": bump}), nil
}

func (s *Server) getIntent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		intent *ledger.IntentView
		err    error
	)
	switch {
	case req.GetString("address", "") != "":
		var addr address.Pubkey
		if addr, err = pubkeyArg(req, "address"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		intent, err = s.ledger.Intent(ctx, addr)
	case req.GetString("agent", "") != "":
		var agent address.Pubkey
		if agent, err = pubkeyArg(req, "agent"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		intent, err = s.ledger.IntentOf(ctx, agent)
	default:
		return mcp.NewToolResultError("either address or agent is required"), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(intent), nil
}

func (s *Server) getMatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addr, err := pubkeyArg(req, "address")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.ledger.Match(ctx, addr)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(m), nil
}

func (s *Server) listIntents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := ledger.IntentFilter{
		Category: req.GetString("category", ""),
		Limit:    req.GetInt("limit", 50),
		Offset:   req.GetInt("offset", 0),
	}
	if name := req.GetString("status", ""); name != "" {
		status, err := models.ParseIntentStatus(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		f.Status = &status
	}
	items, total, err := s.ledger.ListIntents(ctx, f)
	if err != nil {
		return errorResult(err), nil
	}
	if items == nil {
		items = []ledger.IntentView{}
	}
	return jsonResult(map[string]any{"intents": items, "total": total}), nil
}

func (s *Server) submitTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wire, err := req.RequireString("transaction")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tx, err := ledger.DecodeTransaction(wire)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	receipt, err := s.ledger.Submit(ctx, tx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(receipt), nil
}

func (s *Server) readRecordLayoutResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      RecordLayoutURI,
			MIMEType: "text/markdown",
			Text:     RecordLayout,
		},
	}, nil
}
