package store

import (
	"errors"
	"fmt"
)

func as[E error](err error) bool {
	if err == nil {
		return false
	}
	p := new(E)
	return errors.As(err, p)
}

// Missing is returned when a label has no matching record, identifying
// the label so callers can log or surface it (mirrors
// opst-knitfab/pkg/domain/errors/dberrors/postgres/errors.go's
// identity-carrying error structs).
type Missing struct {
	Label string
}

var AsMissing = as[*Missing]

func NewMissing(label string) error { return &Missing{Label: label} }
func (e *Missing) Error() string    { return fmt.Sprintf("store: no record for label %q", e.Label) }
func (e *Missing) Unwrap() error    { return ErrStore }

// Conflict is returned when a write violates a uniqueness invariant
// (I2/I6: labels and resource_ids are never reused).
type Conflict struct {
	Label string
}

var AsConflict = as[*Conflict]

func NewConflict(label string) error { return &Conflict{Label: label} }
func (e *Conflict) Error() string {
	return fmt.Sprintf("store: label %q already exists", e.Label)
}
func (e *Conflict) Unwrap() error { return ErrStore }

// ErrStore is the sentinel every store-level error unwraps to, letting
// callers test with errors.Is(err, store.ErrStore) without depending on
// the specific backend's error type (spec.md §7 StoreError).
var ErrStore = errors.New("jobs store error")
