package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc Service, auth AuthSettings, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	// Writes.
	r.Post("/transactions", h.SubmitTransaction)

	// Intents.
	r.Get("/intents", h.ListIntents)
	r.Get("/intents/{address}", h.GetIntent)
	r.Get("/intents/{address}/matches", h.MatchesForIntent)
	r.Get("/agents/{agent}/intent", h.GetAgentIntent)
	r.Get("/agents/{agent}/intent-address", h.DeriveIntentAddress)

	// Matches.
	r.Get("/matches/{address}", h.GetMatch)

	// Journal.
	r.Get("/journal", h.Journal)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
