package models

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
)

// DiscriminatorSize is the length of the account header that identifies
// the record kind stored in an account.
const DiscriminatorSize = 8

// Discriminator is the leading 8 bytes of every program-owned account.
type Discriminator [DiscriminatorSize]byte

func discriminatorFor(name string) Discriminator {
	var d Discriminator
	sum := sha256.Sum256([]byte("account:" + name))
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Account discriminators.
var (
	IntentDiscriminator = discriminatorFor("Intent")
	MatchDiscriminator  = discriminatorFor("Match")
)

// Kind returns the record kind name for the header of data, or "" if the
// header is unknown.
func Kind(data []byte) string {
	if len(data) < DiscriminatorSize {
		return ""
	}
	var d Discriminator
	copy(d[:], data)
	switch d {
	case IntentDiscriminator:
		return KindIntent
	case MatchDiscriminator:
		return KindMatch
	}
	return ""
}

// Record kind names.
const (
	KindIntent = "intent"
	KindMatch  = "match"
)

// writer appends little-endian fields to a buffer.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *writer) i64(v int64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }

func (w *writer) pubkey(p address.Pubkey) { w.buf = append(w.buf, p[:]...) }

func (w *writer) str(field, s string, max int) error {
	if len(s) > max {
		return fmt.Errorf("%s is %d bytes, max %d: %w", field, len(s), max, apperr.ErrFieldTooLong)
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

func (w *writer) optStr(field string, s *string, max int) error {
	if s == nil {
		w.u8(0)
		return nil
	}
	w.u8(1)
	return w.str(field, *s, max)
}

// reader consumes little-endian fields and remembers the first error.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("truncated record at offset %d: %w", r.off, apperr.ErrInvalidAccount)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) i64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *reader) pubkey() address.Pubkey {
	var p address.Pubkey
	if b := r.take(address.Size); b != nil {
		copy(p[:], b)
	}
	return p
}

func (r *reader) str(field string, max int) string {
	b := r.take(4)
	if b == nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(b)
	if n > uint32(max) {
		r.err = fmt.Errorf("%s is %d bytes, max %d: %w", field, n, max, apperr.ErrFieldTooLong)
		return ""
	}
	return string(r.take(int(n)))
}

func (r *reader) optStr(field string, max int) *string {
	switch tag := r.u8(); {
	case r.err != nil:
		return nil
	case tag == 0:
		return nil
	case tag == 1:
		s := r.str(field, max)
		if r.err != nil {
			return nil
		}
		return &s
	default:
		r.err = fmt.Errorf("%s option tag %d: %w", field, tag, apperr.ErrInvalidAccount)
		return nil
	}
}

// encodeAccount prefixes payload with d and zero-pads it to space bytes.
func encodeAccount(d Discriminator, payload []byte, space int) ([]byte, error) {
	if DiscriminatorSize+len(payload) > space {
		return nil, fmt.Errorf("payload %d bytes exceeds account space %d: %w", len(payload), space, apperr.ErrFieldTooLong)
	}
	out := make([]byte, space)
	copy(out, d[:])
	copy(out[DiscriminatorSize:], payload)
	return out, nil
}

// accountPayload checks the header of data against d and returns the rest.
func accountPayload(d Discriminator, data []byte) ([]byte, error) {
	if len(data) < DiscriminatorSize {
		return nil, fmt.Errorf("account is %d bytes: %w", len(data), apperr.ErrInvalidAccount)
	}
	var got Discriminator
	copy(got[:], data)
	if got != d {
		return nil, fmt.Errorf("account discriminator mismatch: %w", apperr.ErrInvalidAccount)
	}
	return data[DiscriminatorSize:], nil
}
