package store

import "errors"

// Sentinel errors for store operations. Invalid-input errors are returned
// before any statement touches the database; ErrStorage wraps driver and
// I/O failures so callers can distinguish bad input from a broken file.
var (
	ErrInvalidNamespace = errors.New("invalid namespace")
	ErrInvalidKey       = errors.New("invalid key")
	ErrInvalidValue     = errors.New("invalid value")
	ErrStorage          = errors.New("storage unavailable")
)
