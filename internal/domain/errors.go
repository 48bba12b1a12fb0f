package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors reported to the request layer. None of these is retried
// internally.
var (
	ErrNotFound           = errors.New("identity not found")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInvalidEmailSyntax = errors.New("invalid email syntax")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrAlreadyVerified    = errors.New("identity is already verified")
	ErrInvalidCodeFormat  = errors.New("code must be exactly 8 digits")
	ErrCodeMismatch       = errors.New("verification code does not match")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CooldownActiveError is returned while a rate-limited action is still
// inside its cooldown window.
type CooldownActiveError struct {
	RequiredSeconds  int64
	RemainingSeconds int64
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("please wait for the %ds cooldown to expire (%ds remaining)", e.RequiredSeconds, e.RemainingSeconds)
}

// ProcessorError wraps a payment-processor failure, preserving the processor
// detail verbatim for diagnostics.
type ProcessorError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ProcessorError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("processor %s failed: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("processor %s failed", e.Op)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}
