package program

import (
	"context"
	"fmt"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/models"
	"github.com/starford/intentmarket/internal/storage"
)

// UpdateMatchStatusArgs are the arguments of update_match_status.
type UpdateMatchStatusArgs struct {
	Status uint8 `cbor:"status" json:"status"`
}

// UpdateMatchStatus sets the status of an existing Match.
//
// Accounts: [match], loaded by the supplied address with no derivation.
// The ownership check runs before the status code is decoded. Any status
// may follow any other, including moving backward; there is no transition
// graph.
func UpdateMatchStatus(ctx context.Context, env Env, accounts []address.Pubkey, args UpdateMatchStatusArgs) (*Result, error) {
	if err := expectAccounts(InstructionUpdateMatchStatus, accounts, 1); err != nil {
		return nil, err
	}
	acct, err := loadOwned(ctx, env, accounts[0])
	if err != nil {
		return nil, fmt.Errorf("program: update_match_status: %w", err)
	}
	match, err := models.DecodeMatchAccount(acct.Data)
	if err != nil {
		return nil, fmt.Errorf("program: update_match_status: %w", err)
	}

	if err := env.MatchOwner.Authorize(ctx, env, env.Signer, match); err != nil {
		return nil, fmt.Errorf("program: update_match_status: %w", err)
	}

	status, err := models.DecodeMatchStatus(args.Status)
	if err != nil {
		return nil, fmt.Errorf("program: update_match_status: %w", err)
	}
	match.Status = status
	match.UpdatedAt = env.Now.Unix()

	data, err := match.EncodeAccount()
	if err != nil {
		return nil, fmt.Errorf("program: update_match_status: %w", err)
	}
	updated := *acct
	updated.Data = data

	return &Result{
		Writes: []storage.Write{{Account: updated}},
		Event:  Event{Type: EventMatchStatusUpdated, Address: acct.Address, Record: match},
	}, nil
}
