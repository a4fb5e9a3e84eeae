package seed

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/config"
	"github.com/otcdesk/desk-engine/internal/store"
)

func testInstruments() []config.InstrumentConfig {
	return []config.InstrumentConfig{
		{Symbol: "BTC-USD", DefaultMid: decimal.NewFromInt(52000)},
		{Symbol: "ETH-USD", DefaultMid: decimal.NewFromInt(2800)},
	}
}

func TestEnsureSeedsEmptyStore(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if err := Ensure(ctx, st, testInstruments()); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	clients, _ := st.ListClients(ctx)
	if len(clients) != 3 {
		t.Errorf("clients = %d, want 3", len(clients))
	}
	instruments, _ := st.ListInstruments(ctx, true)
	if len(instruments) != 2 {
		t.Errorf("instruments = %d, want 2", len(instruments))
	}

	// One global limit plus one per (client, instrument) pair.
	limits, _ := st.ListRiskLimits(ctx, true)
	if len(limits) != 1+3*2 {
		t.Errorf("limits = %d, want 7", len(limits))
	}

	var global, gold int
	for _, l := range limits {
		if l.ClientID == nil && l.InstrumentID == nil {
			global++
			if !l.SoftLimitUSD.Equal(decimal.NewFromInt(2_500_000)) {
				t.Errorf("global soft limit = %s", l.SoftLimitUSD)
			}
		}
		if l.ClientID != nil && *l.ClientID == clients[0].ID {
			gold++
			// Gold tier: 1.5M × 1.3.
			if !l.SoftLimitUSD.Equal(decimal.NewFromInt(1_950_000)) {
				t.Errorf("gold soft limit = %s", l.SoftLimitUSD)
			}
		}
	}
	if global != 1 {
		t.Errorf("global limits = %d, want 1", global)
	}
	if gold != 2 {
		t.Errorf("gold pair limits = %d, want 2", gold)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if err := Ensure(ctx, st, testInstruments()); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := Ensure(ctx, st, testInstruments()); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	clients, _ := st.ListClients(ctx)
	if len(clients) != 3 {
		t.Errorf("clients = %d after reseed, want 3", len(clients))
	}
	limits, _ := st.ListRiskLimits(ctx, true)
	if len(limits) != 7 {
		t.Errorf("limits = %d after reseed, want 7", len(limits))
	}
}
