// Package apperr defines the error taxonomy shared by the program, the
// ledger runtime and the transport layers.
package apperr

import (
	"errors"
	"fmt"
)

// Runtime and storage conditions raised by the hosting ledger.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrAlreadyProcessed   = errors.New("transaction already processed")
	ErrFieldTooLong       = errors.New("field too long")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidAccount     = errors.New("invalid account")
	ErrUnknownInstruction = errors.New("unknown instruction")
)

// Program error sentinels. Match them with errors.Is; use errors.As with
// *ProgramError to read the numeric code.
var (
	ErrInvalidStatus  = &ProgramError{Code: 6000, Name: "InvalidStatus", Msg: "Invalid status"}
	ErrUnauthorized   = &ProgramError{Code: 6001, Name: "Unauthorized", Msg: "Unauthorized"}
	ErrInvalidScore   = &ProgramError{Code: 6002, Name: "InvalidScore", Msg: "Match score out of range"}
	ErrIntentNotFound = &ProgramError{Code: 6003, Name: "IntentNotFound", Msg: "Referenced intent does not exist"}
	ErrSelfMatch      = &ProgramError{Code: 6004, Name: "SelfMatch", Msg: "An intent cannot be matched with itself"}
)

// ProgramError is a numbered error raised by the program itself.
type ProgramError struct {
	Code uint32
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("program error %d (%s): %s", e.Code, e.Name, e.Msg)
}

// Is reports whether target is a ProgramError with the same code.
func (e *ProgramError) Is(target error) bool {
	t, ok := target.(*ProgramError)
	return ok && t.Code == e.Code
}

// Code returns the numeric program error code carried by err, if any.
func Code(err error) (uint32, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}
