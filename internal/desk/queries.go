package desk

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/audit"
	"github.com/otcdesk/desk-engine/internal/auth"
	"github.com/otcdesk/desk-engine/internal/model"
	"github.com/otcdesk/desk-engine/internal/risk"
	"github.com/otcdesk/desk-engine/internal/store"
)

// TradePage is one page of the trade blotter.
type TradePage struct {
	Trades   []model.Trade `json:"trades"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// ListTrades returns one blotter page, newest-first.
func (s *Service) ListTrades(ctx context.Context, f store.TradeFilter, page, pageSize int) (*TradePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	trades, total, err := s.store.ListTrades(ctx, f, page, pageSize)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	return &TradePage{Trades: trades, Total: total, Page: page, PageSize: pageSize}, nil
}

// ExportTradesCSV streams matching trades newest-first as CSV with a fixed
// column order.
func (s *Service) ExportTradesCSV(ctx context.Context, f store.TradeFilter, w io.Writer) error {
	trades, err := s.store.TradesByFilter(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"trade_id", "timestamp", "client", "instrument", "side", "size", "price", "notional_usd"}); err != nil {
		return err
	}
	for _, t := range trades {
		record := []string{
			t.ID,
			t.Timestamp.UTC().Format(time.RFC3339),
			t.ClientName,
			t.InstrumentSymbol,
			string(t.Side),
			t.Size.String(),
			t.Price.String(),
			t.NotionalUSD.String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ListPositions returns all positions ordered by descending exposure.
func (s *Service) ListPositions(ctx context.Context) ([]model.Position, error) {
	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []model.Position{}
	}
	return positions, nil
}

// CurrentPrices returns the latest tick per instrument.
func (s *Service) CurrentPrices(ctx context.Context) ([]model.PriceTick, error) {
	ticks, err := s.store.LatestPriceTicks(ctx)
	if err != nil {
		return nil, err
	}
	if ticks == nil {
		ticks = []model.PriceTick{}
	}
	return ticks, nil
}

// ListClients returns all desk clients.
func (s *Service) ListClients(ctx context.Context) ([]model.Client, error) {
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	if clients == nil {
		clients = []model.Client{}
	}
	return clients, nil
}

// ListInstruments returns instruments, optionally only active ones.
func (s *Service) ListInstruments(ctx context.Context, activeOnly bool) ([]model.Instrument, error) {
	instruments, err := s.store.ListInstruments(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	if instruments == nil {
		instruments = []model.Instrument{}
	}
	return instruments, nil
}

// --- Risk surface ---

// ListRiskLimits returns all configured limits.
func (s *Service) ListRiskLimits(ctx context.Context) ([]model.RiskLimit, error) {
	limits, err := s.store.ListRiskLimits(ctx, false)
	if err != nil {
		return nil, err
	}
	if limits == nil {
		limits = []model.RiskLimit{}
	}
	return limits, nil
}

// ListLimitAlerts scans every position against its effective limit and
// surfaces current soft/hard breaches. Read-only.
func (s *Service) ListLimitAlerts(ctx context.Context) ([]model.LimitAlert, error) {
	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	limits, err := s.store.ListRiskLimits(ctx, true)
	if err != nil {
		return nil, err
	}

	alerts := []model.LimitAlert{}
	for _, pos := range positions {
		limit := risk.EffectiveLimit(limits, pos.ClientID, pos.InstrumentID)
		if limit == nil {
			continue
		}
		soft, hard := risk.Classify(pos.USDExposure, limit)
		if !soft && !hard {
			continue
		}
		severity := "soft"
		if hard {
			severity = "hard"
		}
		alerts = append(alerts, model.LimitAlert{
			ClientID:         pos.ClientID,
			ClientName:       pos.ClientName,
			InstrumentID:     pos.InstrumentID,
			InstrumentSymbol: pos.InstrumentSymbol,
			ExposureUSD:      pos.USDExposure,
			SoftLimitUSD:     limit.SoftLimitUSD,
			HardLimitUSD:     limit.HardLimitUSD,
			Severity:         severity,
		})
	}
	return alerts, nil
}

// OverrideParams carries one limit-override request.
type OverrideParams struct {
	ClientID            int64
	InstrumentID        int64
	ProposedNotionalUSD decimal.Decimal
	Reason              string
	ActorRole           auth.Role
	RequestedBy         string
}

// OverrideDecision is the advisory outcome of an override request. It is
// audit-logged but does not itself authorize a trade.
type OverrideDecision struct {
	Decision         string `json:"decision"` // "approved" or "pending_supervisor_approval"
	ClientID         int64  `json:"client_id"`
	InstrumentID     int64  `json:"instrument_id"`
	AuditEntryID     int64  `json:"audit_entry_id"`
	EffectiveLimitID *int64 `json:"effective_limit_id,omitempty"`
}

// RequestOverride records an advisory override decision: approved, unless
// the effective limit requires supervisor sign-off and the actor is not an
// admin.
func (s *Service) RequestOverride(ctx context.Context, p OverrideParams) (*OverrideDecision, error) {
	client, err := s.store.GetClient(ctx, p.ClientID)
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", p.ClientID, err)
	}
	instrument, err := s.store.GetInstrument(ctx, p.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("instrument %d: %w", p.InstrumentID, err)
	}

	limits, err := s.store.ListRiskLimits(ctx, true)
	if err != nil {
		return nil, err
	}
	limit := risk.EffectiveLimit(limits, client.ID, instrument.ID)

	decision := "approved"
	if limit != nil && limit.RequiresSupervisor && p.ActorRole != auth.RoleAdmin {
		decision = "pending_supervisor_approval"
	}

	now := s.now()
	var entry *model.AuditEntry
	s.mu.Lock()
	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		entry, err = audit.Append(ctx, tx, audit.EventOverrideRequested, "risk_limit", fmt.Sprintf("%d:%d", client.ID, instrument.ID), p.RequestedBy, map[string]any{
			"client_id":         client.ID,
			"instrument":        instrument.Symbol,
			"proposed_notional": p.ProposedNotionalUSD.String(),
			"reason":            p.Reason,
			"actor_role":        string(p.ActorRole),
			"decision":          decision,
		}, now)
		return err
	})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	slog.Info("override requested",
		"client", client.Name,
		"instrument", instrument.Symbol,
		"decision", decision,
		"actor_role", p.ActorRole,
	)

	out := &OverrideDecision{
		Decision:     decision,
		ClientID:     client.ID,
		InstrumentID: instrument.ID,
		AuditEntryID: entry.ID,
	}
	if limit != nil {
		out.EffectiveLimitID = &limit.ID
	}
	return out, nil
}

// --- Analytics ---

// ClientAnalytics aggregates desk-side metrics for one client:
// mark-to-market PnL over open positions, traded volume, average spread
// capture, and average RFQ response time.
func (s *Service) ClientAnalytics(ctx context.Context, clientID int64) (*model.ClientAnalytics, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", clientID, err)
	}

	positions, err := s.store.PositionsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	trades, err := s.store.TradesByFilter(ctx, store.TradeFilter{ClientID: &clientID})
	if err != nil {
		return nil, err
	}
	rfqs, err := s.store.RFQsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	ticks, err := s.store.LatestPriceTicks(ctx)
	if err != nil {
		return nil, err
	}
	mids := make(map[int64]decimal.Decimal, len(ticks))
	for _, t := range ticks {
		mids[t.InstrumentID] = t.Mid
	}

	pnl := decimal.Zero
	for _, pos := range positions {
		mid, ok := mids[pos.InstrumentID]
		if !ok {
			// No market data for the pair; mark at cost.
			mid = pos.AvgPrice
		}
		pnl = pnl.Add(mid.Sub(pos.AvgPrice).Mul(pos.NetSize))
	}

	volume := decimal.Zero
	captureSum := decimal.Zero
	captureCount := 0
	for _, t := range trades {
		volume = volume.Add(t.NotionalUSD)
		mid, ok := mids[t.InstrumentID]
		if !ok || mid.IsZero() {
			continue
		}
		capture := t.Price.Sub(mid).Abs().Div(mid).Mul(decimal.NewFromInt(10000))
		captureSum = captureSum.Add(capture)
		captureCount++
	}
	avgCapture := decimal.Zero
	if captureCount > 0 {
		avgCapture = captureSum.Div(decimal.NewFromInt(int64(captureCount)))
	}

	responseSum := decimal.Zero
	responseCount := 0
	for _, r := range rfqs {
		if r.UpdatedAt.Before(r.CreatedAt) {
			continue
		}
		seconds := decimal.NewFromFloat(r.UpdatedAt.Sub(r.CreatedAt).Seconds())
		responseSum = responseSum.Add(seconds)
		responseCount++
	}
	avgResponse := decimal.Zero
	if responseCount > 0 {
		avgResponse = responseSum.Div(decimal.NewFromInt(int64(responseCount)))
	}

	return &model.ClientAnalytics{
		ClientID:              client.ID,
		ClientName:            client.Name,
		MarkToMarketPnL:       pnl.Round(2),
		TotalVolumeUSD:        volume.Round(2),
		AvgSpreadCaptureBps:   avgCapture.Round(2),
		AvgRFQResponseSeconds: avgResponse.Round(2),
		TradeCount:            len(trades),
	}, nil
}

// --- Audit surface ---

// AuditChain returns the full audit log in creation order.
func (s *Service) AuditChain(ctx context.Context) ([]model.AuditEntry, error) {
	entries, err := s.store.ListAuditEntries(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	return entries, nil
}

// VerifyAuditChain recomputes every hash in the chain and reports the
// first mismatch, if any.
func (s *Service) VerifyAuditChain(ctx context.Context) error {
	entries, err := s.store.ListAuditEntries(ctx)
	if err != nil {
		return err
	}
	return audit.Verify(entries)
}
