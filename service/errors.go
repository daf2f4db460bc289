package service

import (
	"errors"
)

// Error taxonomy shared by the core and the extensions.
var (
	ErrInvalidInput        = errors.New("ledger: invalid input")
	ErrNotFound            = errors.New("ledger: not found")
	ErrForbidden           = errors.New("ledger: forbidden")
	ErrUpstreamUnavailable = errors.New("ledger: payment network unavailable")
	ErrConflict            = errors.New("ledger: conflict")

	ErrInvalidAmount       = kindErr(ErrInvalidInput, "ledger: amount must be a positive integer")
	ErrInvalidCapability   = kindErr(ErrInvalidInput, "ledger: unknown capability")
	ErrWalletNotFound      = kindErr(ErrNotFound, "ledger: wallet not found")
	ErrUserNotFound        = kindErr(ErrNotFound, "ledger: user not found")
	ErrPaymentNotFound     = kindErr(ErrNotFound, "ledger: payment not found")
	ErrAlreadyPaid         = kindErr(ErrConflict, "ledger: invoice already paid")
	ErrDuplicateSettlement = kindErr(ErrConflict, "ledger: settlement already recorded")
)

type kindError struct {
	kind error
	msg  string
}

func kindErr(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// IsNotFound reports whether err belongs to the not-found class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err belongs to the conflict class.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// InvalidInput wraps a validation message into the invalid-input class.
func InvalidInput(msg string) error {
	return kindErr(ErrInvalidInput, "ledger: "+msg)
}

// IsInvalid reports whether err belongs to the invalid-input class.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
