// Package seed populates an empty store with the demo desk book: clients,
// instruments, and a layered risk limit structure. Each section is skipped
// when data already exists, so running it at every boot is safe.
package seed

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/config"
	"github.com/otcdesk/desk-engine/internal/model"
	"github.com/otcdesk/desk-engine/internal/store"
)

var (
	globalSoftLimit = decimal.NewFromInt(2_500_000)
	globalHardLimit = decimal.NewFromInt(4_000_000)
	pairSoftLimit   = decimal.NewFromInt(1_500_000)
	pairHardLimit   = decimal.NewFromInt(2_200_000)
)

// tierMultiplier scales per-pair limits by client tier.
func tierMultiplier(tier string) decimal.Decimal {
	switch tier {
	case "gold":
		return decimal.RequireFromString("1.3")
	case "platinum":
		return decimal.RequireFromString("1.7")
	default:
		return decimal.NewFromInt(1)
	}
}

// Ensure seeds clients, instruments, and risk limits if the store is empty.
func Ensure(ctx context.Context, st store.Store, instruments []config.InstrumentConfig) error {
	now := time.Now().UTC()

	clients, err := ensureClients(ctx, st, now)
	if err != nil {
		return err
	}
	seeded, err := ensureInstruments(ctx, st, instruments)
	if err != nil {
		return err
	}
	if err := ensureRiskLimits(ctx, st, clients, seeded, now); err != nil {
		return err
	}
	return nil
}

func ensureClients(ctx context.Context, st store.Store, now time.Time) ([]model.Client, error) {
	existing, err := st.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	clients := []model.Client{
		{Name: "Lone Star Capital", Tier: "gold", DefaultMarkupBps: decimal.RequireFromString("1.8"), IsActive: true, CreatedAt: now},
		{Name: "Red River Macro", Tier: "silver", DefaultMarkupBps: decimal.RequireFromString("2.4"), IsActive: true, CreatedAt: now},
		{Name: "Bluebonnet Treasury", Tier: "platinum", DefaultMarkupBps: decimal.RequireFromString("1.2"), IsActive: true, CreatedAt: now},
	}
	for i := range clients {
		if err := st.CreateClient(ctx, &clients[i]); err != nil {
			return nil, err
		}
	}
	slog.Info("seeded clients", "count", len(clients))
	return clients, nil
}

func ensureInstruments(ctx context.Context, st store.Store, configured []config.InstrumentConfig) ([]model.Instrument, error) {
	existing, err := st.ListInstruments(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	out := make([]model.Instrument, 0, len(configured))
	for _, ins := range configured {
		base, quote, err := model.ParseSymbol(ins.Symbol)
		if err != nil {
			return nil, err
		}
		instrument := model.Instrument{
			Symbol:     ins.Symbol,
			BaseAsset:  base,
			QuoteAsset: quote,
			TickSize:   decimal.RequireFromString("0.01"),
			IsActive:   true,
		}
		if err := st.CreateInstrument(ctx, &instrument); err != nil {
			return nil, err
		}
		out = append(out, instrument)
	}
	slog.Info("seeded instruments", "count", len(out))
	return out, nil
}

func ensureRiskLimits(ctx context.Context, st store.Store, clients []model.Client, instruments []model.Instrument, now time.Time) error {
	existing, err := st.ListRiskLimits(ctx, false)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	// One global backstop, then a tighter per-pair limit per client.
	global := model.RiskLimit{
		SoftLimitUSD:       globalSoftLimit,
		HardLimitUSD:       globalHardLimit,
		LeverageLimit:      decimal.NewFromInt(3),
		RequiresSupervisor: true,
		Active:             true,
		UpdatedAt:          now,
	}
	if err := st.CreateRiskLimit(ctx, &global); err != nil {
		return err
	}

	count := 1
	for _, client := range clients {
		mult := tierMultiplier(client.Tier)
		for _, ins := range instruments {
			clientID, instrumentID := client.ID, ins.ID
			limit := model.RiskLimit{
				ClientID:           &clientID,
				InstrumentID:       &instrumentID,
				SoftLimitUSD:       pairSoftLimit.Mul(mult),
				HardLimitUSD:       pairHardLimit.Mul(mult),
				LeverageLimit:      decimal.RequireFromString("3.5"),
				RequiresSupervisor: true,
				Active:             true,
				UpdatedAt:          now,
			}
			if err := st.CreateRiskLimit(ctx, &limit); err != nil {
				return err
			}
			count++
		}
	}
	slog.Info("seeded risk limits", "count", count)
	return nil
}
