package backoffice

import "fmt"

type ErrorCode int

const (
	Unknown ErrorCode = iota
	// LockAcquisitionFailure means the advisory file lock could not be
	// acquired within the bounded retry attempts.
	LockAcquisitionFailure
	// FileIOError covers read/write/remove failures on the data files.
	FileIOError
	// PersistenceFailure is surfaced by the record store when a mutation
	// could not be made durable.
	PersistenceFailure
)

// Error is the storage core's custom error. Code classifies the failure,
// Err carries the underlying cause and UserData optional context such as
// the collection or file path involved.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	return fmt.Sprintf("error code: %d, user data: %v, details: %v", e.Code, e.UserData, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}
