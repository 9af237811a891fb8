package market

import "errors"

// Sentinel errors for market store operations.
var (
	ErrTableNotFound = errors.New("table not found")
	ErrInvalidTable  = errors.New("invalid table name")
	ErrReadOnly      = errors.New("market store is read-only")
)
