// Package program implements the intent market's on-ledger instructions.
//
// Instructions are pure with respect to the store: they read accounts
// through the runtime-supplied Loader and return the writes to commit. The
// runtime (package ledger) owns locking, signature checks and the atomic
// commit, so an instruction that returns an error has no effect.
package program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/codec"
	"github.com/starford/intentmarket/internal/storage"
)

// DefaultID is the program id used when none is configured.
var DefaultID = address.Pubkey(blake3.Sum256([]byte("intentmarket.program.v1")))

// Instruction names.
const (
	InstructionRegisterIntent     = "register_intent"
	InstructionUpdateMatchStatus  = "update_match_status"
	InstructionProposeMatch       = "propose_match"
	InstructionUpdateIntentStatus = "update_intent_status"
)

// Event types emitted by instructions.
const (
	EventIntentRegistered    = "intent.registered"
	EventMatchProposed       = "match.proposed"
	EventMatchStatusUpdated  = "match.status_updated"
	EventIntentStatusUpdated = "intent.status_updated"
)

// Loader reads accounts inside the runtime's transaction lock.
type Loader interface {
	Get(ctx context.Context, addr address.Pubkey) (*storage.Account, error)
}

// Env is the execution environment the runtime passes to an instruction.
type Env struct {
	ProgramID  address.Pubkey
	Signer     address.Pubkey
	Now        time.Time
	Loader     Loader
	MatchOwner OwnerPolicy
}

// Event describes a committed state change for subscribers.
type Event struct {
	Type    string         `json:"type"`
	Address address.Pubkey `json:"address"`
	Record  any            `json:"record"`
}

// Result is what a successful instruction hands back to the runtime.
type Result struct {
	Writes []storage.Write
	Event  Event
}

// Dispatch decodes args for the named instruction and executes it.
func Dispatch(ctx context.Context, env Env, instruction string, accounts []address.Pubkey, args codec.RawMessage) (*Result, error) {
	switch instruction {
	case InstructionRegisterIntent:
		var a RegisterIntentArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return RegisterIntent(ctx, env, accounts, a)
	case InstructionUpdateMatchStatus:
		var a UpdateMatchStatusArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return UpdateMatchStatus(ctx, env, accounts, a)
	case InstructionProposeMatch:
		var a ProposeMatchArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return ProposeMatch(ctx, env, accounts, a)
	case InstructionUpdateIntentStatus:
		var a UpdateIntentStatusArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return UpdateIntentStatus(ctx, env, accounts, a)
	default:
		return nil, fmt.Errorf("program: %q: %w", instruction, apperr.ErrUnknownInstruction)
	}
}

func decodeArgs(raw codec.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("program: missing instruction arguments: %w", apperr.ErrInvalidAccount)
	}
	if err := codec.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("program: decode arguments: %w", err)
	}
	return nil
}

// expectAccounts checks the number of accounts named by the transaction.
func expectAccounts(instruction string, accounts []address.Pubkey, n int) error {
	if len(accounts) != n {
		return fmt.Errorf("program: %s takes %d accounts, got %d: %w", instruction, n, len(accounts), apperr.ErrInvalidAccount)
	}
	return nil
}

// loadOwned loads addr and checks the account belongs to this program.
func loadOwned(ctx context.Context, env Env, addr address.Pubkey) (*storage.Account, error) {
	acct, err := env.Loader.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if acct.Owner != env.ProgramID {
		return nil, fmt.Errorf("program: account %s owned by %s: %w", addr, acct.Owner, apperr.ErrInvalidAccount)
	}
	return acct, nil
}

// isNotFound reports whether err means the account is not allocated.
func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
