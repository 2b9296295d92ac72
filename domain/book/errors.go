package book

import "errors"

// Failure taxonomy shared by the engine and the API layer.
var (
	ErrInvalidTick         = errors.New("invalid tick")
	ErrInvalidFlipTick     = errors.New("invalid flip tick")
	ErrBelowMinimumSize    = errors.New("order below minimum size")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderNotFound       = errors.New("order not found")
	ErrNotOwner            = errors.New("not order owner")
	ErrAlreadyTerminal     = errors.New("order already terminal")
	ErrSlippageExceeded    = errors.New("slippage exceeded")
	ErrPairNotFound        = errors.New("pair not found")
	ErrPairAlreadyExists   = errors.New("pair already exists")
	ErrSameToken           = errors.New("base and quote must differ")

	ErrFillExceedsRemaining = errors.New("fill exceeds remaining")
	ErrBadTransition        = errors.New("invalid order state transition")
)
