// Package address defines ledger identities and program-derived addresses.
package address

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"filippo.io/edwards25519"
)

// Size is the length of a Pubkey in bytes.
const Size = 32

// Pubkey identifies an agent (an Ed25519 public key) or a record address.
type Pubkey [Size]byte

// Zero is the all-zero Pubkey.
var Zero Pubkey

// FromPublicKey converts an Ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) (Pubkey, error) {
	var p Pubkey
	if len(pub) != ed25519.PublicKeySize {
		return p, fmt.Errorf("address: public key has %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}
	copy(p[:], pub)
	return p, nil
}

// Parse decodes a 64-character hex Pubkey.
func Parse(s string) (Pubkey, error) {
	var p Pubkey
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("address: parse %q: %w", s, err)
	}
	if len(decoded) != Size {
		return p, fmt.Errorf("address: %q is %d bytes, want %d", s, len(decoded), Size)
	}
	copy(p[:], decoded)
	return p, nil
}

// String returns the hex encoding.
func (p Pubkey) String() string {
	return hex.EncodeToString(p[:])
}

// PublicKey returns p as an Ed25519 public key.
func (p Pubkey) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(p[:])
}

// IsZero reports whether p is the zero key.
func (p Pubkey) IsZero() bool {
	return p == Zero
}

// IsOnCurve reports whether p decodes to a point on the Ed25519 curve,
// i.e. whether a private key could exist for it.
func (p Pubkey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(p[:])
	return err == nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
