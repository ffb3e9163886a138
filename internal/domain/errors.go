// Package domain contains the core domain models for the pricefeed service.
package domain

import "errors"

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// ErrRunNotTerminal is returned when mutating a run that already finished.
var ErrRunNotTerminal = errors.New("run already terminal")

// ErrQuarantineTerminal is returned when correcting or reprocessing a
// quarantined record that was already resolved or dismissed.
var ErrQuarantineTerminal = errors.New("quarantined record already resolved or dismissed")

// ErrDismissNoteTooShort is returned when a bulk dismissal note is below
// the minimum length.
var ErrDismissNoteTooShort = errors.New("dismissal note too short")

// ErrInvalidFeed is returned when creating a feed with invalid fields.
var ErrInvalidFeed = errors.New("invalid feed")
