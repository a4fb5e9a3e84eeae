// Package desk implements the trading core of the OTC desk: RFQ quoting,
// trade execution with pre-trade risk checks, position netting, and the
// audit trail. State-changing operations are transactional; broadcasts go
// out only after the underlying commit succeeds.
//
// All monetary values use shopspring/decimal — never float64 for money.
package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/audit"
	"github.com/otcdesk/desk-engine/internal/config"
	"github.com/otcdesk/desk-engine/internal/hub"
	"github.com/otcdesk/desk-engine/internal/ledger"
	"github.com/otcdesk/desk-engine/internal/metrics"
	"github.com/otcdesk/desk-engine/internal/model"
	"github.com/otcdesk/desk-engine/internal/pricing"
	"github.com/otcdesk/desk-engine/internal/risk"
	"github.com/otcdesk/desk-engine/internal/store"
)

// fallbackMid is used when an instrument has no tick history and no
// configured default.
var fallbackMid = decimal.NewFromInt(1000)

// Service is the desk's core contract exposed to the HTTP layer. A mutex
// serializes trade execution and every audit-chain append, so two writers
// never hash over the same chain head (single-instance; for horizontal
// scaling, replace with database-level locking).
type Service struct {
	store store.Store
	hub   *hub.Hub
	mu    sync.Mutex

	spreadBufferBps  decimal.Decimal
	minExpirySeconds int
	maxExpirySeconds int
	defaultMids      map[string]decimal.Decimal

	now func() time.Time
}

// NewService creates the desk service. defaultMids seeds quoting for
// instruments that have no price history yet.
func NewService(st store.Store, h *hub.Hub, cfg config.PricingConfig, defaultMids map[string]decimal.Decimal) *Service {
	mids := make(map[string]decimal.Decimal, len(defaultMids))
	for sym, mid := range defaultMids {
		mids[sym] = mid
	}
	return &Service{
		store:            st,
		hub:              h,
		spreadBufferBps:  cfg.SpreadBufferBps,
		minExpirySeconds: cfg.MinExpirySeconds,
		maxExpirySeconds: cfg.MaxExpirySeconds,
		defaultMids:      mids,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// --- RFQ lifecycle ---

// CreateRFQParams carries one quote request.
type CreateRFQParams struct {
	ClientID      int64
	InstrumentID  int64
	Side          model.Side
	Size          decimal.Decimal
	ExpirySeconds int
	RequestedBy   string
}

// CreateRFQ resolves the latest mid and desk inventory, prices the
// request, and persists it with status quoted. The insert and its audit
// entry commit together; the broadcast follows the commit.
func (s *Service) CreateRFQ(ctx context.Context, p CreateRFQParams) (*model.RFQ, error) {
	client, err := s.store.GetClient(ctx, p.ClientID)
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", p.ClientID, err)
	}
	instrument, err := s.store.GetInstrument(ctx, p.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("instrument %d: %w", p.InstrumentID, err)
	}

	mid, err := s.latestMid(ctx, instrument)
	if err != nil {
		return nil, err
	}
	inventory, err := s.store.DeskInventory(ctx, instrument.ID)
	if err != nil {
		return nil, err
	}

	skew := pricing.InventorySkewBps(inventory, p.Side)
	quote := pricing.CalculateQuote(mid, p.Side, s.spreadBufferBps, skew, client.DefaultMarkupBps)
	expirySeconds := pricing.ClampExpiry(p.ExpirySeconds, s.minExpirySeconds, s.maxExpirySeconds)

	now := s.now()
	rfq := &model.RFQ{
		ID:               uuid.New().String(),
		ClientID:         client.ID,
		ClientName:       client.Name,
		InstrumentID:     instrument.ID,
		InstrumentSymbol: instrument.Symbol,
		RequestedBy:      p.RequestedBy,
		Side:             p.Side,
		Size:             p.Size,
		QuotedPrice:      quote,
		QuoteExpiry:      now.Add(time.Duration(expirySeconds) * time.Second),
		Status:           model.RFQQuoted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s.mu.Lock()
	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.InsertRFQ(ctx, rfq); err != nil {
			return err
		}
		_, err := audit.Append(ctx, tx, audit.EventRFQQuoted, "rfq", rfq.ID, p.RequestedBy, map[string]any{
			"client_id":      client.ID,
			"instrument":     instrument.Symbol,
			"side":           string(p.Side),
			"size":           p.Size.String(),
			"quoted_price":   quote.String(),
			"mid":            mid.String(),
			"skew_bps":       skew.String(),
			"expiry_seconds": expirySeconds,
		}, now)
		return err
	})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	metrics.RFQsTotal.WithLabelValues(string(model.RFQQuoted)).Inc()
	slog.Info("rfq quoted",
		"rfq_id", rfq.ID,
		"client", client.Name,
		"instrument", instrument.Symbol,
		"side", p.Side,
		"size", p.Size.String(),
		"price", quote.String(),
		"expires_in", expirySeconds,
	)
	s.hub.Publish(hub.ChannelRFQUpdates, rfq)
	return rfq, nil
}

// GetRFQ fetches one RFQ, reconciling a lapsed quote window to expired as
// a committed side effect of the read.
func (s *Service) GetRFQ(ctx context.Context, id string) (*model.RFQ, error) {
	rfq, err := s.store.GetRFQ(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("rfq %s: %w", id, err)
	}
	return s.reconcileExpiry(ctx, rfq)
}

// ListRFQs lists RFQs newest-first, reconciling lapsed quotes on the way
// out. With activeOnly, RFQs that expire during the read are dropped from
// the result.
func (s *Service) ListRFQs(ctx context.Context, activeOnly bool, limit int) ([]model.RFQ, error) {
	rfqs, err := s.store.ListRFQs(ctx, activeOnly, limit)
	if err != nil {
		return nil, err
	}

	out := make([]model.RFQ, 0, len(rfqs))
	for i := range rfqs {
		reconciled, err := s.reconcileExpiry(ctx, &rfqs[i])
		if err != nil {
			return nil, err
		}
		if activeOnly && reconciled.Status == model.RFQExpired {
			continue
		}
		out = append(out, *reconciled)
	}
	return out, nil
}

// reconcileExpiry flips a pending/quoted RFQ whose window has lapsed to
// expired, commits the transition with its audit entry, and broadcasts it.
func (s *Service) reconcileExpiry(ctx context.Context, rfq *model.RFQ) (*model.RFQ, error) {
	if rfq.Status != model.RFQPending && rfq.Status != model.RFQQuoted {
		return rfq, nil
	}
	if !s.now().After(rfq.QuoteExpiry) {
		return rfq, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileExpiryLocked(ctx, rfq)
}

// reconcileExpiryLocked commits the expired transition. Caller holds s.mu.
// The RFQ is re-read under the lock: a concurrent reader of the same lapsed
// quote may have committed the flip while this one waited, and the
// transition must be recorded exactly once.
func (s *Service) reconcileExpiryLocked(ctx context.Context, stale *model.RFQ) (*model.RFQ, error) {
	rfq, err := s.store.GetRFQ(ctx, stale.ID)
	if err != nil {
		return nil, fmt.Errorf("rfq %s: %w", stale.ID, err)
	}
	if rfq.Status != model.RFQPending && rfq.Status != model.RFQQuoted {
		return rfq, nil
	}
	now := s.now()
	if !now.After(rfq.QuoteExpiry) {
		return rfq, nil
	}

	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateRFQStatus(ctx, rfq.ID, model.RFQExpired, now); err != nil {
			return err
		}
		_, err := audit.Append(ctx, tx, audit.EventRFQExpired, "rfq", rfq.ID, "", map[string]any{
			"client_id":    rfq.ClientID,
			"instrument":   rfq.InstrumentSymbol,
			"quoted_price": rfq.QuotedPrice.String(),
			"expired_at":   rfq.QuoteExpiry.UTC().Format(time.RFC3339),
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	rfq.Status = model.RFQExpired
	rfq.UpdatedAt = now
	metrics.RFQsTotal.WithLabelValues(string(model.RFQExpired)).Inc()
	slog.Info("rfq expired", "rfq_id", rfq.ID)
	s.hub.Publish(hub.ChannelRFQUpdates, rfq)
	return rfq, nil
}

// latestMid resolves the current mid for quoting: newest tick, else the
// configured default for the symbol, else a fixed fallback.
func (s *Service) latestMid(ctx context.Context, instrument *model.Instrument) (decimal.Decimal, error) {
	tick, err := s.store.LatestPriceTick(ctx, instrument.ID)
	if err == nil {
		return tick.Mid, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, err
	}
	if mid, ok := s.defaultMids[instrument.Symbol]; ok {
		return mid, nil
	}
	return fallbackMid, nil
}

// --- Trade execution ---

// ExecuteTradeParams carries one execution request. RFQID is optional;
// when set, the trade accepts that quote.
type ExecuteTradeParams struct {
	ClientID     int64
	InstrumentID int64
	Side         model.Side
	Size         decimal.Decimal
	Price        decimal.Decimal
	RFQID        *string
	ExecutedBy   string
}

// ExecuteTrade runs the full execution pipeline: RFQ validation, pre-trade
// risk check, then the atomic commit of trade, position, RFQ acceptance,
// and audit entries. A hard breach rejects before any mutation; a soft
// breach proceeds and is audit-logged. Broadcasts follow the commit.
func (s *Service) ExecuteTrade(ctx context.Context, p ExecuteTradeParams) (*model.Trade, error) {
	client, err := s.store.GetClient(ctx, p.ClientID)
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", p.ClientID, err)
	}
	instrument, err := s.store.GetInstrument(ctx, p.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("instrument %d: %w", p.InstrumentID, err)
	}

	// Serialize executions so the position read-modify-write and risk
	// check see a consistent net.
	s.mu.Lock()
	defer s.mu.Unlock()

	var rfq *model.RFQ
	if p.RFQID != nil {
		rfq, err = s.store.GetRFQ(ctx, *p.RFQID)
		if err != nil {
			return nil, fmt.Errorf("rfq %s: %w", *p.RFQID, err)
		}
		if rfq.Status != model.RFQQuoted {
			return nil, fmt.Errorf("%w: status %s", ErrRFQInvalidState, rfq.Status)
		}
		if s.now().After(rfq.QuoteExpiry) {
			// The expiry transition commits even though the trade
			// is rejected.
			if _, err := s.reconcileExpiryLocked(ctx, rfq); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", ErrRFQExpired, rfq.ID)
		}
	}

	position, err := s.store.GetPosition(ctx, client.ID, instrument.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	currentNet := decimal.Zero
	if position != nil {
		currentNet = position.NetSize
	}

	limits, err := s.store.ListRiskLimits(ctx, true)
	if err != nil {
		return nil, err
	}
	limit := risk.EffectiveLimit(limits, client.ID, instrument.ID)
	check := risk.EvaluateTrade(currentNet, p.Side, p.Size, p.Price, limit)
	if check.HardBreach {
		metrics.HardBreachRejections.Inc()
		slog.Warn("trade rejected by hard limit",
			"client", client.Name,
			"instrument", instrument.Symbol,
			"projected_exposure", check.ProjectedExposureUSD.String(),
			"hard_limit", check.HardLimitUSD.String(),
		)
		return nil, &risk.HardBreachError{
			ProjectedExposureUSD: check.ProjectedExposureUSD,
			HardLimitUSD:         check.HardLimitUSD,
		}
	}

	now := s.now()
	trade := &model.Trade{
		ID:               uuid.New().String(),
		RFQID:            p.RFQID,
		ClientID:         client.ID,
		ClientName:       client.Name,
		InstrumentID:     instrument.ID,
		InstrumentSymbol: instrument.Symbol,
		Side:             p.Side,
		Size:             p.Size,
		Price:            p.Price,
		NotionalUSD:      p.Size.Mul(p.Price).Abs(),
		ExecutedBy:       p.ExecutedBy,
		Timestamp:        now,
	}
	newPosition := ledger.ApplyFill(position, client.ID, instrument.ID, p.Side, p.Size, p.Price, now)
	newPosition.ClientName = client.Name
	newPosition.InstrumentSymbol = instrument.Symbol

	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.InsertTrade(ctx, trade); err != nil {
			return err
		}
		if err := tx.UpsertPosition(ctx, &newPosition); err != nil {
			return err
		}
		if rfq != nil {
			if err := tx.UpdateRFQStatus(ctx, rfq.ID, model.RFQAccepted, now); err != nil {
				return err
			}
		}
		tradeMeta := map[string]any{
			"client_id":    client.ID,
			"instrument":   instrument.Symbol,
			"side":         string(p.Side),
			"size":         p.Size.String(),
			"price":        p.Price.String(),
			"notional_usd": trade.NotionalUSD.String(),
		}
		if p.RFQID != nil {
			tradeMeta["rfq_id"] = *p.RFQID
		}
		if _, err := audit.Append(ctx, tx, audit.EventTradeExecuted, "trade", trade.ID, p.ExecutedBy, tradeMeta, now); err != nil {
			return err
		}
		if check.SoftBreach {
			_, err := audit.Append(ctx, tx, audit.EventSoftBreach, "trade", trade.ID, p.ExecutedBy, map[string]any{
				"client_id":          client.ID,
				"instrument":         instrument.Symbol,
				"projected_exposure": check.ProjectedExposureUSD.String(),
				"soft_limit":         check.SoftLimitUSD.String(),
			}, now)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(string(p.Side)).Inc()
	if rfq != nil {
		metrics.RFQsTotal.WithLabelValues(string(model.RFQAccepted)).Inc()
	}
	if check.SoftBreach {
		metrics.SoftBreaches.Inc()
		slog.Warn("soft limit breach",
			"client", client.Name,
			"instrument", instrument.Symbol,
			"projected_exposure", check.ProjectedExposureUSD.String(),
		)
	}
	slog.Info("trade executed",
		"trade_id", trade.ID,
		"client", client.Name,
		"instrument", instrument.Symbol,
		"side", p.Side,
		"size", p.Size.String(),
		"price", p.Price.String(),
		"notional", trade.NotionalUSD.String(),
	)

	s.hub.Publish(hub.ChannelTradeUpdates, trade)
	s.hub.Publish(hub.ChannelPositions, newPosition)
	if rfq != nil {
		accepted := *rfq
		accepted.Status = model.RFQAccepted
		accepted.UpdatedAt = now
		s.hub.Publish(hub.ChannelRFQUpdates, &accepted)
	}
	return trade, nil
}
