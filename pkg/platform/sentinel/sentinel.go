package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain decisions.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: entity with the same identity already exists
// - ErrExpired: consent has passed its expiry date
// - ErrInsufficientScope: consent exists but does not cover the requested scope
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrExpired           = errors.New("expired")
	ErrInsufficientScope = errors.New("insufficient scope")
)
