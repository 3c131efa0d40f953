package address

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// Seed limits, per derivation.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

var (
	// ErrInvalidSeeds is returned when a seed set hashes onto the curve
	// and therefore cannot be used as a program-derived address.
	ErrInvalidSeeds = errors.New("address: seeds produce an on-curve address")
	// ErrNoViableBump is returned when no bump in 0..255 yields an
	// off-curve address.
	ErrNoViableBump = errors.New("address: no viable bump seed")
	// ErrMaxSeedLength is returned for oversized or too many seeds.
	ErrMaxSeedLength = errors.New("address: seed limits exceeded")
)

// deriveDomainKey separates derived addresses from every other BLAKE3 use.
// It is the ASCII domain name zero-padded to 32 bytes; changing it moves
// every record.
var deriveDomainKey = [32]byte{
	'i', 'n', 't', 'e', 'n', 't', 'm', 'a', 'r', 'k', 'e', 't', '.',
	'a', 'd', 'd', 'r', 'e', 's', 's', '.', 'd', 'e', 'r', 'i', 'v', 'e',
}

// CreateProgramAddress hashes seeds together with programID. Each seed is
// length-prefixed so that ("ab","c") and ("a","bc") never collide. The
// result is rejected if it lies on the curve.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Zero, fmt.Errorf("%w: %d seeds", ErrMaxSeedLength, len(seeds))
	}
	h, err := blake3.NewKeyed(deriveDomainKey[:])
	if err != nil {
		return Zero, fmt.Errorf("address: keyed hash: %w", err)
	}
	var prefix [2]byte
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Zero, fmt.Errorf("%w: seed is %d bytes", ErrMaxSeedLength, len(seed))
		}
		binary.LittleEndian.PutUint16(prefix[:], uint16(len(seed)))
		_, _ = h.Write(prefix[:])
		_, _ = h.Write(seed)
	}
	_, _ = h.Write(programID[:])

	var out Pubkey
	copy(out[:], h.Sum(nil))
	if out.IsOnCurve() {
		return Zero, ErrInvalidSeeds
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 downward and returns the first
// off-curve address together with its bump (the canonical bump).
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if errors.Is(err, ErrInvalidSeeds) {
			continue
		}
		if err != nil {
			return Zero, 0, err
		}
		return addr, uint8(bump), nil
	}
	return Zero, 0, ErrNoViableBump
}

// Derive returns the canonical address and bump for a record tagged tag and
// keyed by owner.
func Derive(tag string, owner Pubkey, programID Pubkey) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(tag), owner[:]}, programID)
}

// Recompute rebuilds an address from its stored bump without searching.
func Recompute(tag string, owner Pubkey, bump uint8, programID Pubkey) (Pubkey, error) {
	return CreateProgramAddress([][]byte{[]byte(tag), owner[:], {bump}}, programID)
}
