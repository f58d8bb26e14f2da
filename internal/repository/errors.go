// Package repository defines the booking store and the error values that
// are reused across its implementations. These sentinel values allow
// higher layers such as the booking engine to distinguish between
// different failure scenarios. ErrNotFound means the requested record
// does not exist, while ErrConflict signals that a write lost an
// optimistic version check because another writer committed first.
package repository

import "errors"

// ErrNotFound is returned when a booking, proposal or reminder does not
// exist. Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when Save is called with a booking whose
// version no longer matches the stored one. The caller should reload
// and re-evaluate.
var ErrConflict = errors.New("conflict")
