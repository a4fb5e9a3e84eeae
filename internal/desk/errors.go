package desk

import "errors"

var (
	// ErrRFQInvalidState is returned when a trade references an RFQ that
	// is not in quoted status.
	ErrRFQInvalidState = errors.New("desk: rfq not in quoted state")

	// ErrRFQExpired is returned when a trade references an RFQ whose
	// quote window has lapsed. The expiry transition itself is committed
	// even though the trade is rejected.
	ErrRFQExpired = errors.New("desk: rfq quote expired")
)
