package engine

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnknownCommodity      = errors.New("unknown commodity")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientHoldings  = errors.New("insufficient holdings")
	ErrInsufficientInventory = errors.New("insufficient bank inventory")
	ErrInsufficientLiquidity = errors.New("insufficient bank liquidity")
	ErrNoPosition            = errors.New("no such position")
	ErrPrivilegeRequired     = errors.New("bank privilege required")
	ErrConflict              = errors.New("state version conflict")
	ErrCorruptState          = errors.New("corrupt market state")
)
