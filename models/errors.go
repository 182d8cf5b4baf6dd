package models

import "errors"

// Expected, user-facing failure conditions. Services wrap these with
// context; callers branch with errors.Is.
var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidOutcome    = errors.New("invalid outcome")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMarketNotOpen     = errors.New("market not open")
	ErrMarketNotClosed   = errors.New("market not closed")
	ErrMarketNotResolved = errors.New("market not resolved")
	ErrAlreadySettled    = errors.New("market already settled")
	ErrNotFound          = errors.New("not found")
)
