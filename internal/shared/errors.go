package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind is the machine-readable classification carried by every domain error.
type ErrorKind string

const (
	// KindValidation marks client-correctable input errors. Never retried.
	KindValidation ErrorKind = "VALIDATION"
	// KindItemNotFound marks adjustments referencing an unknown or inactive item.
	KindItemNotFound ErrorKind = "ITEM_NOT_FOUND"
	// KindStoreNotFound marks requests referencing an unknown store.
	KindStoreNotFound ErrorKind = "STORE_NOT_FOUND"
	// KindConflict marks concurrent-write contention. Safe to retry after backoff.
	KindConflict ErrorKind = "CONFLICT"
	// KindUnavailable marks transient storage failure. Safe to retry; nothing was applied.
	KindUnavailable ErrorKind = "UNAVAILABLE"
	// KindInvariantViolation marks a failed ledger-versus-level reconciliation.
	// Fatal; surfaced for operator intervention, never silently corrected.
	KindInvariantViolation ErrorKind = "INVARIANT_VIOLATION"
	// KindForbidden marks operations on stores the operator is not authorized for.
	KindForbidden ErrorKind = "FORBIDDEN"
)

// ValidationError reports every violated field of a request, not just the first.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds an empty ValidationError ready to collect violations.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records one violated field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// Empty reports whether any violation was recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// ErrOrNil returns the error when violations exist, nil otherwise.
func (e *ValidationError) ErrOrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Kind implements the classification contract.
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// NotFoundError reports a missing or inactive referenced resource.
type NotFoundError struct {
	ErrKind  ErrorKind
	Resource string
	ID       string
}

// NewItemNotFound builds the error for an unknown or inactive item.
func NewItemNotFound(itemID string) *NotFoundError {
	return &NotFoundError{ErrKind: KindItemNotFound, Resource: "item", ID: itemID}
}

// NewStoreNotFound builds the error for an unknown store.
func NewStoreNotFound(storeID string) *NotFoundError {
	return &NotFoundError{ErrKind: KindStoreNotFound, Resource: "store", ID: storeID}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Kind implements the classification contract.
func (e *NotFoundError) Kind() ErrorKind { return e.ErrKind }

// ConflictError surfaces write contention that survived the internal retry budget.
type ConflictError struct {
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("write conflict after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Kind implements the classification contract.
func (e *ConflictError) Kind() ErrorKind { return KindConflict }

// UnavailableError surfaces a transient storage failure. The operation was not
// partially applied, so callers may retry.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Kind implements the classification contract.
func (e *UnavailableError) Kind() ErrorKind { return KindUnavailable }

// InvariantViolationError reports a stock level that no longer equals the sum
// of its ledger entries.
type InvariantViolationError struct {
	ItemID    string
	StoreID   string
	LevelQty  float64
	LedgerSum float64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("ledger invariant violated for item %s store %s: level %.4f, ledger sum %.4f",
		e.ItemID, e.StoreID, e.LevelQty, e.LedgerSum)
}

// Kind implements the classification contract.
func (e *InvariantViolationError) Kind() ErrorKind { return KindInvariantViolation }

// ForbiddenError reports an operation on a store outside the operator's scope.
type ForbiddenError struct {
	OperatorID string
	StoreID    string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("operator %s not authorized for store %s", e.OperatorID, e.StoreID)
}

// Kind implements the classification contract.
func (e *ForbiddenError) Kind() ErrorKind { return KindForbidden }

// Kinder is implemented by every domain error in the taxonomy.
type Kinder interface {
	Kind() ErrorKind
}

// KindOf classifies an error, returning false for errors outside the taxonomy.
func KindOf(err error) (ErrorKind, bool) {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind(), true
	}
	return "", false
}

// Retryable reports whether the caller may safely resubmit the operation.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindConflict || kind == KindUnavailable)
}
