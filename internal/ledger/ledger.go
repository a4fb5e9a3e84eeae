// Package ledger implements the position-netting math for the desk's book:
// one net position per (client, instrument) pair, maintained with
// weighted-average-cost accounting over signed fills.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/model"
)

// flatEpsilon is the magnitude below which a net size counts as flat.
// Matches the precision of the stored NUMERIC(24, 8) columns with headroom.
var flatEpsilon = decimal.New(1, -12) // 1e-12

// SignedSize returns the signed size delta for a fill: positive for a
// client buy, negative for a client sell.
func SignedSize(side model.Side, size decimal.Decimal) decimal.Decimal {
	if side == model.SideSell {
		return size.Neg()
	}
	return size
}

// ApplyFill folds one fill into an existing position, or opens a new one
// when current is nil. The returned position is a fresh value; the input is
// never mutated.
//
// Weighted-average-cost accounting: newAvg = (oldNet×oldAvg + delta×price)
// / newNet. The signed arithmetic handles a position flipping sign — the
// previous cost basis washes out through the flip. A net size returning to
// (near) zero resets the average price to zero.
func ApplyFill(current *model.Position, clientID, instrumentID int64, side model.Side, size, price decimal.Decimal, now time.Time) model.Position {
	delta := SignedSize(side, size)

	if current == nil {
		return model.Position{
			ClientID:     clientID,
			InstrumentID: instrumentID,
			NetSize:      delta,
			AvgPrice:     price,
			USDExposure:  delta.Mul(price).Abs(),
			UpdatedAt:    now,
		}
	}

	newNet := current.NetSize.Add(delta)

	var newAvg decimal.Decimal
	if newNet.Abs().LessThan(flatEpsilon) {
		newAvg = decimal.Zero
	} else {
		oldCost := current.NetSize.Mul(current.AvgPrice)
		newCost := oldCost.Add(delta.Mul(price))
		newAvg = newCost.Div(newNet)
	}

	updated := *current
	updated.NetSize = newNet
	updated.AvgPrice = newAvg
	updated.USDExposure = newNet.Mul(price).Abs()
	updated.UpdatedAt = now
	return updated
}

// Replay recomputes a position from scratch by folding a fill history in
// order. Used by tests and reconciliation to check the incrementally
// maintained position for drift.
func Replay(clientID, instrumentID int64, fills []model.Trade) *model.Position {
	var pos *model.Position
	for _, f := range fills {
		next := ApplyFill(pos, clientID, instrumentID, f.Side, f.Size, f.Price, f.Timestamp)
		pos = &next
	}
	return pos
}
