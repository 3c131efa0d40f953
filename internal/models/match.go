package models

import (
	"fmt"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
)

// MaxMatchScore is 100.00% with two implied decimal digits.
const MaxMatchScore = 10000

// MatchSize is the encoded Match payload:
// intent_a + intent_b + score + status + created_at + updated_at + bump.
const MatchSize = 32 + 32 + 2 + 1 + 8 + 8 + 1

// MatchSpace is the allocated account size, header included.
const MatchSpace = DiscriminatorSize + MatchSize

// MatchSeed is the domain tag of Match addresses.
const MatchSeed = "match"

// Match is a proposed pairing of two Intents. IntentA and IntentB are
// address links, not ownership.
//
// The record carries no owner field. Who may change its status is decided
// by the ledger's match ownership policy from the agents of the linked
// intents.
type Match struct {
	IntentA    address.Pubkey `json:"intent_a"`
	IntentB    address.Pubkey `json:"intent_b"`
	MatchScore uint16         `json:"match_score"`
	Status     MatchStatus    `json:"status"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
	Bump       uint8          `json:"bump"`
}

// ScorePercent renders the score as a percentage (7550 → 75.50).
func (m *Match) ScorePercent() float64 {
	return float64(m.MatchScore) / 100
}

// MarshalBinary encodes the Match payload.
func (m *Match) MarshalBinary() ([]byte, error) {
	if m.MatchScore > MaxMatchScore {
		return nil, fmt.Errorf("match score %d: %w", m.MatchScore, apperr.ErrInvalidScore)
	}
	if int(m.Status) >= len(matchStatusNames) {
		return nil, fmt.Errorf("match status %d: %w", uint8(m.Status), apperr.ErrInvalidStatus)
	}
	w := &writer{buf: make([]byte, 0, MatchSize)}
	w.pubkey(m.IntentA)
	w.pubkey(m.IntentB)
	w.u16(m.MatchScore)
	w.u8(uint8(m.Status))
	w.i64(m.CreatedAt)
	w.i64(m.UpdatedAt)
	w.u8(m.Bump)
	return w.buf, nil
}

// UnmarshalBinary decodes a Match payload.
func (m *Match) UnmarshalBinary(data []byte) error {
	r := &reader{buf: data}
	var out Match
	out.IntentA = r.pubkey()
	out.IntentB = r.pubkey()
	out.MatchScore = r.u16()
	status := r.u8()
	out.CreatedAt = r.i64()
	out.UpdatedAt = r.i64()
	out.Bump = r.u8()
	if r.err != nil {
		return r.err
	}
	if out.MatchScore > MaxMatchScore {
		return fmt.Errorf("%w: match score %d", apperr.ErrInvalidAccount, out.MatchScore)
	}
	s, err := DecodeMatchStatus(status)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidAccount, err)
	}
	out.Status = s
	*m = out
	return nil
}

// EncodeAccount returns the full account data for m.
func (m *Match) EncodeAccount() ([]byte, error) {
	payload, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return encodeAccount(MatchDiscriminator, payload, MatchSpace)
}

// DecodeMatchAccount parses account data written by EncodeAccount.
func DecodeMatchAccount(data []byte) (*Match, error) {
	payload, err := accountPayload(MatchDiscriminator, data)
	if err != nil {
		return nil, err
	}
	var m Match
	if err := m.UnmarshalBinary(payload); err != nil {
		return nil, err
	}
	return &m, nil
}
