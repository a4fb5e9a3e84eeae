package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestApplyFill_OpensPosition(t *testing.T) {
	pos := ApplyFill(nil, 1, 2, model.SideBuy, d(100), d(52000), now)

	if !pos.NetSize.Equal(d(100)) {
		t.Errorf("net size: expected 100, got %s", pos.NetSize)
	}
	if !pos.AvgPrice.Equal(d(52000)) {
		t.Errorf("avg price: expected 52000, got %s", pos.AvgPrice)
	}
	if !pos.USDExposure.Equal(d(5200000)) {
		t.Errorf("exposure: expected 5200000, got %s", pos.USDExposure)
	}
}

func TestApplyFill_SellOpensShort(t *testing.T) {
	pos := ApplyFill(nil, 1, 2, model.SideSell, d(40), d(2800), now)

	if !pos.NetSize.Equal(d(-40)) {
		t.Errorf("net size: expected -40, got %s", pos.NetSize)
	}
	if !pos.USDExposure.Equal(d(112000)) {
		t.Errorf("exposure should be absolute, got %s", pos.USDExposure)
	}
}

func TestApplyFill_WeightedAverage(t *testing.T) {
	first := ApplyFill(nil, 1, 2, model.SideBuy, d(10), d(100), now)
	second := ApplyFill(&first, 1, 2, model.SideBuy, d(10), d(200), now)

	// (10×100 + 10×200) / 20 = 150
	if !second.NetSize.Equal(d(20)) {
		t.Errorf("net size: expected 20, got %s", second.NetSize)
	}
	if !second.AvgPrice.Equal(d(150)) {
		t.Errorf("avg price: expected 150, got %s", second.AvgPrice)
	}
}

func TestApplyFill_PartialReduceKeepsBasis(t *testing.T) {
	open := ApplyFill(nil, 1, 2, model.SideBuy, d(20), d(150), now)
	reduced := ApplyFill(&open, 1, 2, model.SideSell, d(5), d(180), now)

	// (20×150 - 5×180) / 15 = 140
	if !reduced.NetSize.Equal(d(15)) {
		t.Errorf("net size: expected 15, got %s", reduced.NetSize)
	}
	if !reduced.AvgPrice.Equal(d(140)) {
		t.Errorf("avg price: expected 140, got %s", reduced.AvgPrice)
	}
}

func TestApplyFill_FlatResetsAvgPrice(t *testing.T) {
	open := ApplyFill(nil, 1, 2, model.SideBuy, d(10), d(100), now)
	flat := ApplyFill(&open, 1, 2, model.SideSell, d(10), d(120), now)

	if !flat.NetSize.IsZero() {
		t.Errorf("net size: expected 0, got %s", flat.NetSize)
	}
	if !flat.AvgPrice.IsZero() {
		t.Errorf("avg price should reset to 0 when flat, got %s", flat.AvgPrice)
	}
	if !flat.USDExposure.IsZero() {
		t.Errorf("exposure: expected 0, got %s", flat.USDExposure)
	}
}

func TestApplyFill_SignFlipResetsBasis(t *testing.T) {
	open := ApplyFill(nil, 1, 2, model.SideBuy, d(10), d(100), now)
	flipped := ApplyFill(&open, 1, 2, model.SideSell, d(25), d(110), now)

	// newNet = -15; newCost = 10×100 - 25×110 = -1750; avg = -1750/-15
	if !flipped.NetSize.Equal(d(-15)) {
		t.Errorf("net size: expected -15, got %s", flipped.NetSize)
	}
	wantAvg := d(-1750).Div(d(-15))
	if !flipped.AvgPrice.Equal(wantAvg) {
		t.Errorf("avg price: expected %s, got %s", wantAvg, flipped.AvgPrice)
	}
}

func TestApplyFill_DoesNotMutateInput(t *testing.T) {
	open := ApplyFill(nil, 1, 2, model.SideBuy, d(10), d(100), now)
	before := open.NetSize
	_ = ApplyFill(&open, 1, 2, model.SideBuy, d(5), d(120), now)
	if !open.NetSize.Equal(before) {
		t.Error("ApplyFill mutated its input position")
	}
}

// TestReplay_MatchesIncremental drives a long mixed fill sequence through
// both the incremental path and a from-scratch replay and checks for drift.
func TestReplay_MatchesIncremental(t *testing.T) {
	fills := []model.Trade{
		{Side: model.SideBuy, Size: d(100), Price: d(52000), Timestamp: now},
		{Side: model.SideSell, Size: d(30), Price: d(52500), Timestamp: now},
		{Side: model.SideSell, Size: d(90), Price: d(51800), Timestamp: now}, // flips short
		{Side: model.SideBuy, Size: d(20), Price: d(51000), Timestamp: now},
		{Side: model.SideSell, Size: d(40.5), Price: d(53100.25), Timestamp: now},
		{Side: model.SideBuy, Size: d(40.5), Price: d(52900), Timestamp: now},
	}

	var incremental *model.Position
	for _, f := range fills {
		next := ApplyFill(incremental, 7, 9, f.Side, f.Size, f.Price, f.Timestamp)
		incremental = &next
	}

	replayed := Replay(7, 9, fills)

	if !incremental.NetSize.Equal(replayed.NetSize) {
		t.Errorf("net size drift: %s vs %s", incremental.NetSize, replayed.NetSize)
	}
	if !incremental.AvgPrice.Equal(replayed.AvgPrice) {
		t.Errorf("avg price drift: %s vs %s", incremental.AvgPrice, replayed.AvgPrice)
	}
	if !incremental.USDExposure.Equal(replayed.USDExposure) {
		t.Errorf("exposure drift: %s vs %s", incremental.USDExposure, replayed.USDExposure)
	}
}
