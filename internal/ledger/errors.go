package ledger

import "errors"

var (
	ErrInvalidFundType   = errors.New("invalid fund type")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
)
