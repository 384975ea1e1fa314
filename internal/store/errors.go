package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrClientRestricted    = errors.New("client restricted")
	ErrDuplicate           = errors.New("duplicate")
	ErrInvalidInput        = errors.New("invalid input")
	ErrForbidden           = errors.New("forbidden")
	ErrConsistencyConflict = errors.New("consistency conflict")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

type InsufficientStockError struct {
	StoreID     string
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s in store %s: available %d, requested %d", name, e.StoreID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InsufficientFundsError reports a balance that cannot cover an outflow.
// Account is "cash_register" or "till:<point of sale id>".
type InsufficientFundsError struct {
	Account   string
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %s: available %d, requested %d", e.Account, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

type CreditLimitError struct {
	ClientID    string
	CurrentDebt int64
	CreditLimit int64
	Requested   int64
}

func (e *CreditLimitError) Error() string {
	return fmt.Sprintf("credit limit exceeded for client %s: debt %d + %d > limit %d", e.ClientID, e.CurrentDebt, e.Requested, e.CreditLimit)
}

func (e *CreditLimitError) Unwrap() error {
	return ErrCreditLimitExceeded
}

type RestrictedClientError struct {
	ClientID string
	Reason   string
}

func (e *RestrictedClientError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("client %s is restricted", e.ClientID)
	}
	return fmt.Sprintf("client %s is restricted: %s", e.ClientID, e.Reason)
}

func (e *RestrictedClientError) Unwrap() error {
	return ErrClientRestricted
}

type DuplicateError struct {
	Kind string
	Key  string
}

func (e *DuplicateError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s already exists", e.Kind)
	}
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Key)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid is shorthand for an *InvalidInputError.
func Invalid(field string, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// ForbiddenError reports an operation or option the caller's role may not use.
type ForbiddenError struct {
	Field  string
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Field == "" {
		return "forbidden: " + e.Reason
	}
	return fmt.Sprintf("forbidden %s: %s", e.Field, e.Reason)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// StorageError hides a driver failure behind a retry-safe message. Err is
// kept for logging.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage unavailable during " + e.Op
}

func (e *StorageError) Unwrap() error {
	return ErrStorageUnavailable
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrConsistencyConflict) || errors.Is(err, ErrStorageUnavailable)
}

func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrCreditLimitExceeded) ||
		errors.Is(err, ErrClientRestricted) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrForbidden)
}

// IsDomainError reports whether err belongs to the ledger taxonomy and can
// be surfaced to callers unchanged.
func IsDomainError(err error) bool {
	return IsClientError(err) || IsRetryable(err)
}
