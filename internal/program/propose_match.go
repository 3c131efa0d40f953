package program

import (
	"context"
	"fmt"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/models"
	"github.com/starford/intentmarket/internal/storage"
)

// ProposeMatchArgs are the arguments of propose_match. The score is
// computed off-ledger.
type ProposeMatchArgs struct {
	MatchScore uint16 `cbor:"match_score" json:"match_score"`
}

// MatchAddress returns the canonical Match address and bump for a pair.
// The pair is ordered: (a, b) and (b, a) are distinct matches.
func MatchAddress(intentA, intentB, programID address.Pubkey) (address.Pubkey, uint8, error) {
	return address.FindProgramAddress([][]byte{[]byte(models.MatchSeed), intentA[:], intentB[:]}, programID)
}

// ProposeMatch allocates a Pending Match between two existing Intents.
//
// Accounts: [match, intent_a, intent_b]. The signer must be the agent of
// intent_a.
func ProposeMatch(ctx context.Context, env Env, accounts []address.Pubkey, args ProposeMatchArgs) (*Result, error) {
	if err := expectAccounts(InstructionProposeMatch, accounts, 3); err != nil {
		return nil, err
	}
	matchAddr, intentA, intentB := accounts[0], accounts[1], accounts[2]

	if args.MatchScore > models.MaxMatchScore {
		return nil, fmt.Errorf("program: propose_match: score %d: %w", args.MatchScore, apperr.ErrInvalidScore)
	}
	if intentA == intentB {
		return nil, fmt.Errorf("program: propose_match: %w", apperr.ErrSelfMatch)
	}

	agentA, err := intentAgent(ctx, env, intentA)
	if isNotFound(err) {
		return nil, fmt.Errorf("program: propose_match: intent_a %s: %w", intentA, apperr.ErrIntentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("program: propose_match: %w", err)
	}
	if _, err := intentAgent(ctx, env, intentB); isNotFound(err) {
		return nil, fmt.Errorf("program: propose_match: intent_b %s: %w", intentB, apperr.ErrIntentNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("program: propose_match: %w", err)
	}
	if agentA != env.Signer {
		return nil, fmt.Errorf("program: propose_match: %w", apperr.ErrUnauthorized)
	}

	addr, bump, err := MatchAddress(intentA, intentB, env.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program: derive match address: %w", err)
	}
	if matchAddr != addr {
		return nil, fmt.Errorf("program: propose_match: account %s is not the derived address %s: %w",
			matchAddr, addr, apperr.ErrInvalidAccount)
	}
	if _, err := env.Loader.Get(ctx, addr); err == nil {
		return nil, fmt.Errorf("program: propose_match: account %s: %w", addr, apperr.ErrAlreadyExists)
	} else if !isNotFound(err) {
		return nil, err
	}

	now := env.Now.Unix()
	match := &models.Match{
		IntentA:    intentA,
		IntentB:    intentB,
		MatchScore: args.MatchScore,
		Status:     models.MatchPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Bump:       bump,
	}
	data, err := match.EncodeAccount()
	if err != nil {
		return nil, fmt.Errorf("program: propose_match: %w", err)
	}

	return &Result{
		Writes: []storage.Write{{
			Create: true,
			Account: storage.Account{
				Address: addr,
				Owner:   env.ProgramID,
				Payer:   env.Signer,
				Kind:    models.KindMatch,
				Data:    data,
			},
		}},
		Event: Event{Type: EventMatchProposed, Address: addr, Record: match},
	}, nil
}
