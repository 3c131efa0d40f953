package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/checksum"
	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/models"
	"github.com/starford/intentmarket/internal/program"
	"github.com/starford/intentmarket/internal/storage"
)

// Handler holds API route handlers.
type Handler struct {
	svc Service
}

// NewHandler creates a new Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// pubkeyParam parses a hex public key URL parameter, writing 400 on failure.
func pubkeyParam(w http.ResponseWriter, r *http.Request, name string) (address.Pubkey, bool) {
	p, err := address.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid "+name+": "+err.Error()))
		return address.Zero, false
	}
	return p, true
}

func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return limit, offset
}

// writeAccount writes v with the checksum of data, the account bytes v was
// decoded from, as ETag, or 304 when the client already holds that version.
func writeAccount(w http.ResponseWriter, r *http.Request, data []byte, v any) {
	etag := checksum.ETag(data)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SubmitTransaction handles POST /api/transactions.
//
//	@Summary		Submit a signed transaction
//	@Tags			transactions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SubmitTransactionRequest	true	"Signed transaction"
//	@Success		201		{object}	Receipt
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/transactions [post]
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SubmitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Transaction == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("transaction is required"))
		return
	}
	tx, err := ledger.DecodeTransaction(req.Transaction)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	receipt, err := h.svc.Submit(r.Context(), tx)
	if err != nil {
		writeError(w, "submit transaction", err)
		return
	}
	if sub := Subject(r.Context()); sub != "" {
		slog.Info("transaction submitted", slog.String("subject", sub), slog.String("signature", receipt.Signature))
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// ListIntents handles GET /api/intents.
//
//	@Summary		List intents with optional filtering and pagination
//	@Tags			intents
//	@Produce		json
//	@Param			status		query		string	false	"Filter by status"	Enums(active, fulfilled, cancelled)
//	@Param			category	query		string	false	"Filter by category"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	IntentListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/intents [get]
func (h *Handler) ListIntents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	f := ledger.IntentFilter{Category: r.URL.Query().Get("category"), Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := models.ParseIntentStatus(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		f.Status = &status
	}

	items, total, err := h.svc.ListIntents(r.Context(), f)
	if err != nil {
		writeError(w, "list intents", err)
		return
	}
	if items == nil {
		items = []ledger.IntentView{}
	}
	writeJSON(w, http.StatusOK, IntentListResponse{Intents: items, Total: total})
}

// GetIntent handles GET /api/intents/{address}.
//
//	@Summary		Get an intent by address
//	@Tags			intents
//	@Produce		json
//	@Param			address	path		string	true	"Intent address (hex)"
//	@Success		200		{object}	IntentView
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/intents/{address} [get]
func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	addr, ok := pubkeyParam(w, r, "address")
	if !ok {
		return
	}
	intent, err := h.svc.Intent(r.Context(), addr)
	if err != nil {
		writeError(w, "get intent", err)
		return
	}
	writeAccount(w, r, intent.Data, intent)
}

// GetAgentIntent handles GET /api/agents/{agent}/intent.
//
//	@Summary		Get the intent registered by an agent
//	@Tags			intents
//	@Produce		json
//	@Param			agent	path		string	true	"Agent public key (hex)"
//	@Success		200		{object}	IntentView
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/agents/{agent}/intent [get]
func (h *Handler) GetAgentIntent(w http.ResponseWriter, r *http.Request) {
	agent, ok := pubkeyParam(w, r, "agent")
	if !ok {
		return
	}
	intent, err := h.svc.IntentOf(r.Context(), agent)
	if err != nil {
		writeError(w, "get agent intent", err)
		return
	}
	writeAccount(w, r, intent.Data, intent)
}

// DeriveIntentAddress handles GET /api/agents/{agent}/intent-address.
//
//	@Summary		Derive the canonical intent address of an agent
//	@Tags			intents
//	@Produce		json
//	@Param			agent	path		string	true	"Agent public key (hex)"
//	@Success		200		{object}	DerivedAddressResponse
//	@Security		BearerAuth
//	@Router			/agents/{agent}/intent-address [get]
func (h *Handler) DeriveIntentAddress(w http.ResponseWriter, r *http.Request) {
	agent, ok := pubkeyParam(w, r, "agent")
	if !ok {
		return
	}
	addr, bump, err := program.IntentAddress(agent, h.svc.ProgramID())
	if err != nil {
		writeError(w, "derive intent address", err)
		return
	}
	writeJSON(w, http.StatusOK, DerivedAddressResponse{Agent: agent.String(), Address: addr.String(), Bump: bump})
}

// MatchesForIntent handles GET /api/intents/{address}/matches.
//
//	@Summary		List matches linking an intent
//	@Tags			matches
//	@Produce		json
//	@Param			address	path		string	true	"Intent address (hex)"
//	@Success		200		{object}	MatchListResponse
//	@Security		BearerAuth
//	@Router			/intents/{address}/matches [get]
func (h *Handler) MatchesForIntent(w http.ResponseWriter, r *http.Request) {
	addr, ok := pubkeyParam(w, r, "address")
	if !ok {
		return
	}
	matches, err := h.svc.MatchesFor(r.Context(), addr)
	if err != nil {
		writeError(w, "list matches", err)
		return
	}
	if matches == nil {
		matches = []ledger.MatchView{}
	}
	writeJSON(w, http.StatusOK, MatchListResponse{Matches: matches})
}

// GetMatch handles GET /api/matches/{address}.
//
//	@Summary		Get a match by address
//	@Tags			matches
//	@Produce		json
//	@Param			address	path		string	true	"Match address (hex)"
//	@Success		200		{object}	MatchView
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/matches/{address} [get]
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	addr, ok := pubkeyParam(w, r, "address")
	if !ok {
		return
	}
	match, err := h.svc.Match(r.Context(), addr)
	if err != nil {
		writeError(w, "get match", err)
		return
	}
	writeAccount(w, r, match.Data, match)
}

// Journal handles GET /api/journal.
//
//	@Summary		List committed transactions, newest first
//	@Tags			journal
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	JournalResponse
//	@Security		BearerAuth
//	@Router			/journal [get]
func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	entries, err := h.svc.Journal(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "journal", err)
		return
	}
	if entries == nil {
		entries = []storage.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, JournalResponse{Entries: entries})
}
