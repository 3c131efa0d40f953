package program

import (
	"context"
	"fmt"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/models"
)

// OwnerPolicy decides which agent owns a Match.
//
// A Match record stores only the two intent links, so ownership has to be
// resolved through the linked Intents. The policy is configurable rather
// than fixed because the record format leaves it undetermined.
type OwnerPolicy string

// Owner policies.
const (
	// OwnerIntentA grants the agent of intent_a (the proposer).
	OwnerIntentA OwnerPolicy = "intent_a"
	// OwnerIntentB grants the agent of intent_b (the counterparty).
	OwnerIntentB OwnerPolicy = "intent_b"
	// OwnerEither grants either agent.
	OwnerEither OwnerPolicy = "either"
)

// Policies lists every valid OwnerPolicy.
var Policies = []OwnerPolicy{OwnerIntentA, OwnerIntentB, OwnerEither}

// Authorize returns nil if signer owns m under p, apperr.ErrUnauthorized
// otherwise. A linked intent that no longer exists grants nothing.
func (p OwnerPolicy) Authorize(ctx context.Context, env Env, signer address.Pubkey, m *models.Match) error {
	var candidates []address.Pubkey
	switch p {
	case OwnerIntentA, "":
		candidates = []address.Pubkey{m.IntentA}
	case OwnerIntentB:
		candidates = []address.Pubkey{m.IntentB}
	case OwnerEither:
		candidates = []address.Pubkey{m.IntentA, m.IntentB}
	default:
		return fmt.Errorf("program: unknown match owner policy %q", p)
	}

	for _, addr := range candidates {
		agent, err := intentAgent(ctx, env, addr)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if agent == signer {
			return nil
		}
	}
	return apperr.ErrUnauthorized
}

// intentAgent loads the Intent at addr and returns its agent.
func intentAgent(ctx context.Context, env Env, addr address.Pubkey) (address.Pubkey, error) {
	acct, err := loadOwned(ctx, env, addr)
	if err != nil {
		return address.Zero, err
	}
	intent, err := models.DecodeIntentAccount(acct.Data)
	if err != nil {
		return address.Zero, err
	}
	return intent.Agent, nil
}
