package program

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/models"
	"github.com/starford/intentmarket/internal/storage"
)

// RegisterIntentArgs are the arguments of register_intent.
type RegisterIntentArgs struct {
	Title       string  `cbor:"title" json:"title"`
	Description string  `cbor:"description" json:"description"`
	Category    *string `cbor:"category,omitempty" json:"category,omitempty"`
}

// Validate checks the byte budgets. ozzo's Length measures strings in
// bytes, which is what the record layout reserves.
func (a *RegisterIntentArgs) Validate() error {
	err := validation.ValidateStruct(a,
		validation.Field(&a.Title, validation.Length(0, models.MaxTitleLen)),
		validation.Field(&a.Description, validation.Length(0, models.MaxDescriptionLen)),
		validation.Field(&a.Category, validation.Length(0, models.MaxCategoryLen)),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrFieldTooLong, err)
	}
	return nil
}

// IntentAddress returns the canonical Intent address and bump for agent.
func IntentAddress(agent, programID address.Pubkey) (address.Pubkey, uint8, error) {
	return address.Derive(models.IntentSeed, agent, programID)
}

// RegisterIntent allocates the signer's Intent.
//
// Accounts: [intent]. The intent account must be the address derived from
// ("intent", signer); allocating it a second time is an allocation
// conflict raised by the store at commit.
func RegisterIntent(ctx context.Context, env Env, accounts []address.Pubkey, args RegisterIntentArgs) (*Result, error) {
	if err := expectAccounts(InstructionRegisterIntent, accounts, 1); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, fmt.Errorf("program: register_intent: %w", err)
	}

	addr, bump, err := IntentAddress(env.Signer, env.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program: derive intent address: %w", err)
	}
	if accounts[0] != addr {
		return nil, fmt.Errorf("program: register_intent: account %s is not the derived address %s: %w",
			accounts[0], addr, apperr.ErrInvalidAccount)
	}
	if _, err := env.Loader.Get(ctx, addr); err == nil {
		return nil, fmt.Errorf("program: register_intent: account %s: %w", addr, apperr.ErrAlreadyExists)
	} else if !isNotFound(err) {
		return nil, err
	}

	intent := &models.Intent{
		Agent:       env.Signer,
		Title:       args.Title,
		Description: args.Description,
		Category:    args.Category,
		Status:      models.IntentActive,
		CreatedAt:   env.Now.Unix(),
		Bump:        bump,
	}
	data, err := intent.EncodeAccount()
	if err != nil {
		return nil, fmt.Errorf("program: register_intent: %w", err)
	}

	return &Result{
		Writes: []storage.Write{{
			Create: true,
			Account: storage.Account{
				Address: addr,
				Owner:   env.ProgramID,
				Payer:   env.Signer,
				Kind:    models.KindIntent,
				Data:    data,
			},
		}},
		Event: Event{Type: EventIntentRegistered, Address: addr, Record: intent},
	}, nil
}
