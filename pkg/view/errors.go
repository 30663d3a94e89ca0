package view

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingImplementation is returned when a view is constructed without a native observe or
	// a native enumeration operation.
	ErrMissingImplementation = errors.New("view must implement (Observe or ObserveAfter) and (ForEach or ForEachNonreactive)")
	// ErrUnsupportedID is returned by Union for identifiers that are neither strings nor ObjectIDs.
	ErrUnsupportedID = errors.New("identifier is not a string or ObjectID")
	// ErrInvalidEncodedID is returned when decoding a malformed union identifier.
	ErrInvalidEncodedID = errors.New("invalid union identifier")
	// ErrUnknownGroup is returned when the upstream reports a change to a document Group has
	// never seen.
	ErrUnknownGroup = errors.New("document does not belong to a known group")
	// ErrNotSortable is returned when sorting a view that can be neither sorted nor reified.
	ErrNotSortable = errors.New("view cannot be sorted")
)

type ErrConfig = error

func NewConfigError(op string, err error) ErrConfig {
	return fmt.Errorf("invalid %s configuration: %w", op, err)
}

type ErrCallback = error

func NewCallbackError(op string, err error) ErrCallback {
	return fmt.Errorf("%s: %w", op, err)
}
