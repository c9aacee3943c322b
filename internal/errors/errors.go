// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record of the given kind does not exist.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Kind, e.ID)
}

func NewNotFound(kind, id string) error {
	return &ErrNotFound{Kind: kind, ID: id}
}

// ErrInvalidTransition is returned when a caller asks for a state change the
// record's current status does not allow.
type ErrInvalidTransition struct {
	InterventionID string
	From           string
	To             string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("intervention %s cannot move from %s to %s", e.InterventionID, e.From, e.To)
}

func NewInvalidTransition(id, from, to string) error {
	return &ErrInvalidTransition{InterventionID: id, From: from, To: to}
}

// ErrStatusConflict means a conditional update found a different status than
// the one the caller expected.
var ErrStatusConflict = errors.New("intervention status changed concurrently")

func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

func IsInvalidTransition(err error) bool {
	var it *ErrInvalidTransition
	return errors.As(err, &it)
}

// ErrValidation is bad caller input.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func NewValidation(field, message string) error {
	return &ErrValidation{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var v *ErrValidation
	return errors.As(err, &v)
}
