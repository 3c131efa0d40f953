package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/codec"
)

// Message is the signed part of a transaction.
type Message struct {
	Instruction string           `cbor:"instruction" json:"instruction"`
	Signer      address.Pubkey   `cbor:"signer" json:"signer"`
	Accounts    []address.Pubkey `cbor:"accounts" json:"accounts"`
	Args        codec.RawMessage `cbor:"args" json:"-"`
	// Nonce makes otherwise identical messages sign differently.
	Nonce string `cbor:"nonce" json:"nonce"`
}

// Transaction is a Message plus the signer's Ed25519 signature over the
// deterministic CBOR encoding of the Message.
type Transaction struct {
	Message   Message `cbor:"message" json:"message"`
	Signature []byte  `cbor:"signature" json:"signature"`
}

// NewMessage encodes args and stamps a fresh nonce.
func NewMessage(instruction string, signer address.Pubkey, accounts []address.Pubkey, args any) (Message, error) {
	raw, err := codec.Marshal(args)
	if err != nil {
		return Message{}, fmt.Errorf("ledger: encode %s args: %w", instruction, err)
	}
	return Message{
		Instruction: instruction,
		Signer:      signer,
		Accounts:    accounts,
		Args:        raw,
		Nonce:       uuid.NewString(),
	}, nil
}

// SigningBytes returns the bytes covered by the signature.
func (m *Message) SigningBytes() ([]byte, error) {
	return codec.Marshal(m)
}

// Sign signs m with key. The public half of key must be m.Signer.
func Sign(m Message, key ed25519.PrivateKey) (*Transaction, error) {
	signer, err := address.FromPublicKey(key.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	if signer != m.Signer {
		return nil, fmt.Errorf("ledger: key %s does not match signer %s", signer, m.Signer)
	}
	msg, err := m.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("ledger: encode message: %w", err)
	}
	return &Transaction{Message: m, Signature: ed25519.Sign(key, msg)}, nil
}

// Verify checks the signature against Message.Signer.
func (tx *Transaction) Verify() error {
	// The zero key is a small-order point; signatures under it are forgeable.
	if tx.Message.Signer.IsZero() {
		return fmt.Errorf("ledger: zero signer: %w", apperr.ErrInvalidSignature)
	}
	if len(tx.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("ledger: signature is %d bytes: %w", len(tx.Signature), apperr.ErrInvalidSignature)
	}
	msg, err := tx.Message.SigningBytes()
	if err != nil {
		return fmt.Errorf("ledger: encode message: %w", err)
	}
	if !ed25519.Verify(tx.Message.Signer.PublicKey(), msg, tx.Signature) {
		return fmt.Errorf("ledger: signer %s: %w", tx.Message.Signer, apperr.ErrInvalidSignature)
	}
	return nil
}

// ID returns the hex signature, which identifies the transaction.
func (tx *Transaction) ID() string {
	return hex.EncodeToString(tx.Signature)
}

// Encode returns the base64 CBOR wire form used by the HTTP and MCP
// transports.
func (tx *Transaction) Encode() (string, error) {
	return codec.EncodeBase64(tx)
}

// DecodeTransaction parses the form produced by Encode.
func DecodeTransaction(s string) (*Transaction, error) {
	var tx Transaction
	if err := codec.DecodeBase64(s, &tx); err != nil {
		return nil, fmt.Errorf("ledger: decode transaction: %w", err)
	}
	return &tx, nil
}
