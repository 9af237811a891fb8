package query

import "errors"

// Sentinel errors for query operations.
var (
	ErrNotReadOnly   = errors.New("statement is not read-only")
	ErrEmptyQuery    = errors.New("query is empty")
	ErrQueryNotFound = errors.New("saved query not found")
)
