package registry

import "errors"

var (
	// ErrUnknownPolicy signals a miswired configuration. It is the only
	// condition that aborts a registration call.
	ErrUnknownPolicy = errors.New("unknown merge policy")
	// ErrUnknownKind is returned when a kind name is not in the catalog.
	ErrUnknownKind = errors.New("unknown resource kind")
	// ErrEmptyOwner is returned when a call names no owner.
	ErrEmptyOwner = errors.New("owner is required")
	// ErrEmptyResourceID is reported per resource when a claim has no id.
	ErrEmptyResourceID = errors.New("resource id is required")
)
