package store

import "errors"

// ErrNotFound is returned when a key has never been written
var ErrNotFound = errors.New("store: key not found")
