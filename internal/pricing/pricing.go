// Package pricing implements the desk's quoting math: a desk-favorable,
// inventory-aware markup over the latest mid price. It is not a fair-value
// estimator — the desk always quotes so that the client crosses the spread.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Functions here are pure and stateless; market state (mid price, desk
// inventory, client markup) is passed as arguments.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/model"
)

const (
	// DefaultMinExpirySeconds is the shortest quote lifetime the desk grants.
	DefaultMinExpirySeconds = 10

	// DefaultMaxExpirySeconds is the longest quote lifetime the desk grants.
	DefaultMaxExpirySeconds = 60

	// quoteScale is the number of decimal places for quoted prices and
	// skew values.
	quoteScale int32 = 2
)

var (
	// inventoryThreshold is the desk inventory (in units) at which the
	// skew saturates. Inventory is normalized against it into [-1, 1].
	inventoryThreshold = decimal.NewFromInt(250)

	// maxSkewBps is the largest inventory skew applied, in basis points.
	maxSkewBps = decimal.NewFromInt(25)

	bpsDenominator = decimal.NewFromInt(10_000)
	one            = decimal.NewFromInt(1)
)

// ClampExpiry clamps a requested quote lifetime (in seconds) into
// [lower, upper]. Idempotent: clamping an already-clamped value is a no-op.
func ClampExpiry(requested, lower, upper int) int {
	if requested < lower {
		return lower
	}
	if requested > upper {
		return upper
	}
	return requested
}

// InventorySkewBps converts the desk's current net inventory for an
// instrument into a quote skew in basis points, rounded to 2 decimals.
//
// Inventory is normalized into [-1, 1] against inventoryThreshold and scaled
// by maxSkewBps. The sign flips with the client side so that a trade which
// would grow an already-large desk inventory in that direction is quoted
// worse for the client, and a trade which would reduce it is quoted better:
// when the desk is long, a client buy (desk sells, offloading inventory)
// skews the price down, a client sell skews it up.
func InventorySkewBps(deskInventory decimal.Decimal, side model.Side) decimal.Decimal {
	normalized := deskInventory.Div(inventoryThreshold)
	if normalized.GreaterThan(one) {
		normalized = one
	}
	if normalized.LessThan(one.Neg()) {
		normalized = one.Neg()
	}

	raw := normalized.Mul(maxSkewBps)
	if side == model.SideBuy {
		raw = raw.Neg()
	}
	return raw.Round(quoteScale)
}

// CalculateQuote prices one side of an RFQ. The three basis-point
// components are summed into a total; on a buy the desk marks the price up
// (client pays more), on a sell it marks down (client receives less):
//
//	price = mid × (1 + signedTotalBps/10000), rounded to 2 decimals.
func CalculateQuote(mid decimal.Decimal, side model.Side, spreadBufferBps, inventorySkewBps, clientMarkupBps decimal.Decimal) decimal.Decimal {
	totalBps := spreadBufferBps.Add(inventorySkewBps).Add(clientMarkupBps)
	if side == model.SideSell {
		totalBps = totalBps.Neg()
	}
	return mid.Mul(one.Add(totalBps.Div(bpsDenominator))).Round(quoteScale)
}
