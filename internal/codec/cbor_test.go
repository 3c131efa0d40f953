package codec

import (
	"bytes"
	"testing"
)

type sampleArgs struct {
	Title    string  `cbor:"title"`
	Category *string `cbor:"category,omitempty"`
	Status   uint8   `cbor:"status"`
}

func TestMarshalDeterministic(t *testing.T) {
	cat := "ai"
	v := sampleArgs{Title: "need a GPU", Category: &cat, Status: 2}
	a, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("same value produced different encodings")
	}
}

func TestBase64Roundtrip(t *testing.T) {
	in := sampleArgs{Title: "audit my contract", Status: 1}
	s, err := EncodeBase64(in)
	if err != nil {
		t.Fatalf("EncodeBase64: %v", err)
	}
	var out sampleArgs
	if err := DecodeBase64(s, &out); err != nil {
		t.Fatalf("DecodeBase64: %v", err)
	}
	if out.Title != in.Title || out.Status != in.Status || out.Category != nil {
		t.Errorf("roundtrip = %+v, want %+v", out, in)
	}
}

func TestDecodeBase64RejectsGarbage(t *testing.T) {
	var out sampleArgs
	if err := DecodeBase64("not base64!!", &out); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}
