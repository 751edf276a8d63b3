package orders

import "errors"

// Every expected outcome crosses the core boundary as one of these sentinels
// (possibly wrapped); callers classify with errors.Is. Anything else is a
// fault from the storage layer.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadySold     = errors.New("item already sold")
	ErrReservedByOther = errors.New("item reserved by another buyer")
	ErrItemWithdrawn   = errors.New("item withdrawn")

	ErrNotReserved       = errors.New("item not reserved by buyer")
	ErrOrderExists       = errors.New("item already has an active order")
	ErrInvalidTransition = errors.New("invalid order transition")

	ErrDisputeWindowClosed = errors.New("dispute window closed")
	ErrDisputeExists       = errors.New("order already has a dispute")
)
