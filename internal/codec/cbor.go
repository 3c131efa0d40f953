// Package codec is the CBOR wire format for transactions, instruction
// arguments and journal entries.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so that a
// transaction message always produces the same bytes, which is what the
// signer signs and the runtime verifies.
package codec

import (
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOptions := cbor.CoreDetEncOptions()
	// Pubkeys implement encoding.TextMarshaler and travel as hex strings.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	var err error
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
		// Transactions are untrusted input.
		MaxArrayElements: 1024,
		MaxMapPairs:      1024,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// RawMessage is an undecoded CBOR value, used to carry instruction
// arguments until the program knows which type to decode them into.
type RawMessage = cbor.RawMessage

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeBase64 marshals v and returns it as standard base64, the form used
// by the HTTP and MCP transports.
func EncodeBase64(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeBase64 reverses EncodeBase64.
func DecodeBase64(s string, v any) error {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("codec: decode base64: %w", err)
	}
	return Unmarshal(data, v)
}
