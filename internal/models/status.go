package models

import (
	"fmt"

	"github.com/starford/intentmarket/internal/apperr"
)

// IntentStatus is the lifecycle state of an Intent.
type IntentStatus uint8

const (
	IntentActive IntentStatus = iota
	IntentFulfilled
	IntentCancelled
)

var intentStatusNames = [...]string{"active", "fulfilled", "cancelled"}

// DecodeIntentStatus maps a status code (0..2) onto IntentStatus. Every
// other code yields apperr.ErrInvalidStatus.
func DecodeIntentStatus(code uint8) (IntentStatus, error) {
	switch code {
	case 0:
		return IntentActive, nil
	case 1:
		return IntentFulfilled, nil
	case 2:
		return IntentCancelled, nil
	default:
		return 0, fmt.Errorf("intent status %d: %w", code, apperr.ErrInvalidStatus)
	}
}

// ParseIntentStatus maps a status name onto IntentStatus.
func ParseIntentStatus(name string) (IntentStatus, error) {
	for i, n := range intentStatusNames {
		if n == name {
			return IntentStatus(i), nil
		}
	}
	return 0, fmt.Errorf("intent status %q: %w", name, apperr.ErrInvalidStatus)
}

func (s IntentStatus) String() string {
	if int(s) < len(intentStatusNames) {
		return intentStatusNames[s]
	}
	return fmt.Sprintf("IntentStatus(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s IntentStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(intentStatusNames) {
		return nil, fmt.Errorf("intent status %d: %w", uint8(s), apperr.ErrInvalidStatus)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *IntentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseIntentStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MatchStatus is the approval state of a Match.
type MatchStatus uint8

const (
	MatchPending MatchStatus = iota
	MatchAccepted
	MatchRejected
	MatchCompleted
)

var matchStatusNames = [...]string{"pending", "accepted", "rejected", "completed"}

// DecodeMatchStatus maps a status code (0..3) onto MatchStatus. It is total:
// every other code yields apperr.ErrInvalidStatus.
func DecodeMatchStatus(code uint8) (MatchStatus, error) {
	switch code {
	case 0:
		return MatchPending, nil
	case 1:
		return MatchAccepted, nil
	case 2:
		return MatchRejected, nil
	case 3:
		return MatchCompleted, nil
	default:
		return 0, fmt.Errorf("match status %d: %w", code, apperr.ErrInvalidStatus)
	}
}

// ParseMatchStatus maps a status name onto MatchStatus.
func ParseMatchStatus(name string) (MatchStatus, error) {
	for i, n := range matchStatusNames {
		if n == name {
			return MatchStatus(i), nil
		}
	}
	return 0, fmt.Errorf("match status %q: %w", name, apperr.ErrInvalidStatus)
}

func (s MatchStatus) String() string {
	if int(s) < len(matchStatusNames) {
		return matchStatusNames[s]
	}
	return fmt.Sprintf("MatchStatus(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s MatchStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(matchStatusNames) {
		return nil, fmt.Errorf("match status %d: %w", uint8(s), apperr.ErrInvalidStatus)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MatchStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseMatchStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
