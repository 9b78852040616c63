package table

import "errors"

// Sentinel kinds for table errors.
var (
	ErrUnreadable = errors.New("could not read csv")
	ErrShape      = errors.New("table shape mismatch")
)
