package ledger

import (
	"crypto/ed25519"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/program"
)

func signerOf(key ed25519.PrivateKey) (address.Pubkey, error) {
	return address.FromPublicKey(key.Public().(ed25519.PublicKey))
}

// RegisterIntentTx builds and signs a register_intent transaction for the
// key's agent.
func RegisterIntentTx(programID address.Pubkey, key ed25519.PrivateKey, args program.RegisterIntentArgs) (*Transaction, error) {
	agent, err := signerOf(key)
	if err != nil {
		return nil, err
	}
	intent, _, err := program.IntentAddress(agent, programID)
	if err != nil {
		return nil, err
	}
	msg, err := NewMessage(program.InstructionRegisterIntent, agent, []address.Pubkey{intent}, args)
	if err != nil {
		return nil, err
	}
	return Sign(msg, key)
}

// UpdateMatchStatusTx builds and signs an update_match_status transaction.
func UpdateMatchStatusTx(key ed25519.PrivateKey, match address.Pubkey, status uint8) (*Transaction, error) {
	agent, err := signerOf(key)
	if err != nil {
		return nil, err
	}
	msg, err := NewMessage(program.InstructionUpdateMatchStatus, agent, []address.Pubkey{match},
		program.UpdateMatchStatusArgs{Status: status})
	if err != nil {
		return nil, err
	}
	return Sign(msg, key)
}

// ProposeMatchTx builds and signs a propose_match transaction.
func ProposeMatchTx(programID address.Pubkey, key ed25519.PrivateKey, intentA, intentB address.Pubkey, score uint16) (*Transaction, error) {
	agent, err := signerOf(key)
	if err != nil {
		return nil, err
	}
	match, _, err := program.MatchAddress(intentA, intentB, programID)
	if err != nil {
		return nil, err
	}
	msg, err := NewMessage(program.InstructionProposeMatch, agent, []address.Pubkey{match, intentA, intentB},
		program.ProposeMatchArgs{MatchScore: score})
	if err != nil {
		return nil, err
	}
	return Sign(msg, key)
}

// UpdateIntentStatusTx builds and signs an update_intent_status transaction
// for the key's own Intent.
func UpdateIntentStatusTx(programID address.Pubkey, key ed25519.PrivateKey, status uint8) (*Transaction, error) {
	agent, err := signerOf(key)
	if err != nil {
		return nil, err
	}
	intent, _, err := program.IntentAddress(agent, programID)
	if err != nil {
		return nil, err
	}
	msg, err := NewMessage(program.InstructionUpdateIntentStatus, agent, []address.Pubkey{intent},
		program.UpdateIntentStatusArgs{Status: status})
	if err != nil {
		return nil, err
	}
	return Sign(msg, key)
}
