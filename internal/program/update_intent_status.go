package program

import (
	"context"
	"fmt"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/models"
	"github.com/starford/intentmarket/internal/storage"
)

// UpdateIntentStatusArgs are the arguments of update_intent_status.
type UpdateIntentStatusArgs struct {
	Status uint8 `cbor:"status" json:"status"`
}

// UpdateIntentStatus sets the status of an existing Intent. Only the
// Intent's agent may change it; the check runs before the status code is
// decoded. Like matches, any status may follow any other.
//
// Accounts: [intent].
func UpdateIntentStatus(ctx context.Context, env Env, accounts []address.Pubkey, args UpdateIntentStatusArgs) (*Result, error) {
	if err := expectAccounts(InstructionUpdateIntentStatus, accounts, 1); err != nil {
		return nil, err
	}
	acct, err := loadOwned(ctx, env, accounts[0])
	if err != nil {
		return nil, fmt.Errorf("program: update_intent_status: %w", err)
	}
	if acct.Kind != models.KindIntent {
		return nil, fmt.Errorf("program: update_intent_status: %s is a %s account: %w", acct.Address, acct.Kind, apperr.ErrInvalidAccount)
	}
	intent, err := models.DecodeIntentAccount(acct.Data)
	if err != nil {
		return nil, fmt.Errorf("program: update_intent_status: %w", err)
	}

	if intent.Agent != env.Signer {
		return nil, fmt.Errorf("program: update_intent_status: %w", apperr.ErrUnauthorized)
	}

	status, err := models.DecodeIntentStatus(args.Status)
	if err != nil {
		return nil, fmt.Errorf("program: update_intent_status: %w", err)
	}
	intent.Status = status

	data, err := intent.EncodeAccount()
	if err != nil {
		return nil, fmt.Errorf("program: update_intent_status: %w", err)
	}
	updated := *acct
	updated.Data = data

	return &Result{
		Writes: []storage.Write{{Account: updated}},
		Event:  Event{Type: EventIntentStatusUpdated, Address: acct.Address, Record: intent},
	}, nil
}
