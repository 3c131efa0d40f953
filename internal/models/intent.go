// Package models defines the ledger records and their fixed binary layout.
package models

import (
	"fmt"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
)

// Field budgets, in bytes.
const (
	MaxTitleLen       = 255
	MaxDescriptionLen = 1000
	MaxCategoryLen    = 50
)

// IntentSize is the maximum encoded Intent payload:
// agent + title + description + category + status + created_at + bump.
const IntentSize = 32 + (4 + MaxTitleLen) + (4 + MaxDescriptionLen) + (1 + 4 + MaxCategoryLen) + 1 + 8 + 1

// IntentSpace is the allocated account size, header included.
const IntentSpace = DiscriminatorSize + IntentSize

// IntentSeed is the domain tag of Intent addresses.
const IntentSeed = "intent"

// Intent is an offer or request published by one agent. Its address is
// derived from IntentSeed and Agent, so each agent has at most one.
type Intent struct {
	Agent       address.Pubkey `json:"agent"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    *string        `json:"category,omitempty"`
	Status      IntentStatus   `json:"status"`
	CreatedAt   int64          `json:"created_at"`
	Bump        uint8          `json:"bump"`
}

// MarshalBinary encodes the Intent payload. Oversized text fields fail
// with apperr.ErrFieldTooLong; nothing is truncated.
func (i *Intent) MarshalBinary() ([]byte, error) {
	w := &writer{buf: make([]byte, 0, IntentSize)}
	w.pubkey(i.Agent)
	if err := w.str("title", i.Title, MaxTitleLen); err != nil {
		return nil, err
	}
	if err := w.str("description", i.Description, MaxDescriptionLen); err != nil {
		return nil, err
	}
	if err := w.optStr("category", i.Category, MaxCategoryLen); err != nil {
		return nil, err
	}
	if int(i.Status) >= len(intentStatusNames) {
		return nil, fmt.Errorf("intent status %d: %w", uint8(i.Status), apperr.ErrInvalidStatus)
	}
	w.u8(uint8(i.Status))
	w.i64(i.CreatedAt)
	w.u8(i.Bump)
	return w.buf, nil
}

// UnmarshalBinary decodes an Intent payload. Trailing bytes (account
// padding) are ignored.
func (i *Intent) UnmarshalBinary(data []byte) error {
	r := &reader{buf: data}
	var out Intent
	out.Agent = r.pubkey()
	out.Title = r.str("title", MaxTitleLen)
	out.Description = r.str("description", MaxDescriptionLen)
	out.Category = r.optStr("category", MaxCategoryLen)
	status := r.u8()
	out.CreatedAt = r.i64()
	out.Bump = r.u8()
	if r.err != nil {
		return r.err
	}
	s, err := DecodeIntentStatus(status)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidAccount, err)
	}
	out.Status = s
	*i = out
	return nil
}

// EncodeAccount returns the full account data for i: header, payload and
// zero padding up to IntentSpace.
func (i *Intent) EncodeAccount() ([]byte, error) {
	payload, err := i.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return encodeAccount(IntentDiscriminator, payload, IntentSpace)
}

// DecodeIntentAccount parses account data written by EncodeAccount.
func DecodeIntentAccount(data []byte) (*Intent, error) {
	payload, err := accountPayload(IntentDiscriminator, data)
	if err != nil {
		return nil, err
	}
	var i Intent
	if err := i.UnmarshalBinary(payload); err != nil {
		return nil, err
	}
	return &i, nil
}
