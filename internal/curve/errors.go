package curve

import "errors"

var (
	ErrAlreadyInitialized  = errors.New("curve already initialized")
	ErrNotInitialized      = errors.New("curve not initialized")
	ErrSlippageExceeded    = errors.New("slippage exceeded")
	ErrInsufficientReserve = errors.New("insufficient shard reserve")
	ErrInsufficientShares  = errors.New("insufficient lp shares")
	ErrTimelockNotElapsed  = errors.New("liquidity timelock not elapsed")
	ErrZeroAmount          = errors.New("zero amount")
	ErrTransferFailed      = errors.New("asset transfer failed")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidConfig       = errors.New("invalid curve config")
	ErrValueMismatch       = errors.New("value deposit does not match initial price")
	ErrOverflow            = errors.New("arithmetic overflow")
	ErrReentrantCall       = errors.New("curve operation already in progress")
)
