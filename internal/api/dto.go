package api

import (
	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/storage"
)

// SubmitTransactionRequest is the request body for submitting a transaction.
type SubmitTransactionRequest struct {
	// Transaction is the base64 CBOR wire form of a signed transaction.
	Transaction string `json:"transaction" example:"omdtZXNzYWdl..." validate:"required"`
}

// Receipt is returned after a committed transaction.
type Receipt = ledger.Receipt

// IntentView is a single intent response.
type IntentView = ledger.IntentView

// MatchView is a single match response.
type MatchView = ledger.MatchView

// IntentListResponse wraps paginated intent listings.
type IntentListResponse struct {
	Intents []IntentView `json:"intents" validate:"required"`
	Total   int          `json:"total" example:"42" validate:"required"`
}

// MatchListResponse wraps the matches of an intent.
type MatchListResponse struct {
	Matches []MatchView `json:"matches" validate:"required"`
}

// JournalResponse wraps journal entries, newest first.
type JournalResponse struct {
	Entries []storage.JournalEntry `json:"entries" validate:"required"`
}

// DerivedAddressResponse is the canonical intent address of an agent.
type DerivedAddressResponse struct {
	Agent   string `json:"agent" validate:"required"`
	Address string `json:"address" validate:"required"`
	Bump    uint8  `json:"bump" example:"254" validate:"required"`
}
