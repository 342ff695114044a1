package repair

import "fmt"

// Error represents a general repair error
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("repair error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("repair error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// PatchError represents a row repair whose response could not be used as a patch
type PatchError struct {
	Row     int
	Keys    []string
	Message string
	Cause   error
}

func (e *PatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("repair patch error: row %d %v: %s: %v", e.Row, e.Keys, e.Message, e.Cause)
	}
	return fmt.Sprintf("repair patch error: row %d %v: %s", e.Row, e.Keys, e.Message)
}

func (e *PatchError) Unwrap() error {
	return e.Cause
}
