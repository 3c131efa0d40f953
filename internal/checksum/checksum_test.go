package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("") is a well-known constant.
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s", got)
	}
	if got := ETag(nil); got != `"`+empty+`"` {
		t.Errorf("ETag(nil) = %s", got)
	}
}
