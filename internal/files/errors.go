package files

import "errors"

var (
	// ErrNotFound means no record exists for the requested id.
	ErrNotFound = errors.New("file not found")
	// ErrPayloadTooLarge means a payload exceeded the configured ceiling.
	ErrPayloadTooLarge = errors.New("file too large")
	// ErrPayloadMissing means the record exists but its bytes cannot be reached.
	ErrPayloadMissing = errors.New("file payload missing")
	// ErrBlockedType means the file extension is on the block list.
	ErrBlockedType = errors.New("file type not allowed")
)
