package store

import "errors"

// ErrNotFound is returned when a requested row does not exist, or when an
// owner-scoped mutation matched zero rows. Any other error from this package
// indicates the store itself failed.
var ErrNotFound = errors.New("not found")
