package errors

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAlreadySettled      = errors.New("transaction already settled")
	ErrNilTransaction      = errors.New("transaction is nil")
	ErrNilAccount          = errors.New("account is nil")
	ErrInvalidDirection    = errors.New("invalid transaction direction")
	ErrInvalidStatus       = errors.New("invalid transaction status")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrMalformedRecord     = errors.New("malformed record")
	ErrNegativeBalance     = errors.New("balance must not be negative")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)
