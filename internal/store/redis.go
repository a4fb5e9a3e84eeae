package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: latest prices and the position blotter.
// Writes go to the primary store and invalidate the cache; reads check
// Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write paths (write to primary, invalidate cache) ---

func (s *CachedStore) InsertPriceTick(ctx context.Context, t *model.PriceTick) error {
	if err := s.primary.InsertPriceTick(ctx, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, latestTickKey(t.InstrumentID), allTicksKey)
	return nil
}

func (s *CachedStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.UpsertPosition(ctx, p); err != nil {
		return err
	}
	s.invalidatePositions(ctx, p.ClientID)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LatestPriceTick(ctx context.Context, instrumentID int64) (*model.PriceTick, error) {
	data, err := s.rdb.Get(ctx, latestTickKey(instrumentID)).Bytes()
	if err == nil {
		var t model.PriceTick
		if json.Unmarshal(data, &t) == nil {
			return &t, nil
		}
	}

	t, err := s.primary.LatestPriceTick(ctx, instrumentID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(t); err == nil {
		s.rdb.Set(ctx, latestTickKey(instrumentID), data, s.ttl)
	}
	return t, nil
}

func (s *CachedStore) LatestPriceTicks(ctx context.Context) ([]model.PriceTick, error) {
	data, err := s.rdb.Get(ctx, allTicksKey).Bytes()
	if err == nil {
		var ticks []model.PriceTick
		if json.Unmarshal(data, &ticks) == nil {
			return ticks, nil
		}
	}

	ticks, err := s.primary.LatestPriceTicks(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(ticks); err == nil {
		s.rdb.Set(ctx, allTicksKey, data, s.ttl)
	}
	return ticks, nil
}

func (s *CachedStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, allPositionsKey).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositions(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, allPositionsKey, data, s.ttl)
	}
	return positions, nil
}

func (s *CachedStore) PositionsByClient(ctx context.Context, clientID int64) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, clientPositionsKey(clientID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.PositionsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, clientPositionsKey(clientID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateClient(ctx context.Context, c *model.Client) error {
	return s.primary.CreateClient(ctx, c)
}

func (s *CachedStore) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	return s.primary.GetClient(ctx, id)
}

func (s *CachedStore) ListClients(ctx context.Context) ([]model.Client, error) {
	return s.primary.ListClients(ctx)
}

func (s *CachedStore) CreateInstrument(ctx context.Context, ins *model.Instrument) error {
	return s.primary.CreateInstrument(ctx, ins)
}

func (s *CachedStore) GetInstrument(ctx context.Context, id int64) (*model.Instrument, error) {
	return s.primary.GetInstrument(ctx, id)
}

func (s *CachedStore) ListInstruments(ctx context.Context, activeOnly bool) ([]model.Instrument, error) {
	return s.primary.ListInstruments(ctx, activeOnly)
}

func (s *CachedStore) InsertRFQ(ctx context.Context, r *model.RFQ) error {
	return s.primary.InsertRFQ(ctx, r)
}

func (s *CachedStore) GetRFQ(ctx context.Context, id string) (*model.RFQ, error) {
	return s.primary.GetRFQ(ctx, id)
}

func (s *CachedStore) ListRFQs(ctx context.Context, activeOnly bool, limit int) ([]model.RFQ, error) {
	return s.primary.ListRFQs(ctx, activeOnly, limit)
}

func (s *CachedStore) UpdateRFQStatus(ctx context.Context, id string, status model.RFQStatus, updatedAt time.Time) error {
	return s.primary.UpdateRFQStatus(ctx, id, status, updatedAt)
}

func (s *CachedStore) RFQsByClient(ctx context.Context, clientID int64) ([]model.RFQ, error) {
	return s.primary.RFQsByClient(ctx, clientID)
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	return s.primary.InsertTrade(ctx, t)
}

func (s *CachedStore) ListTrades(ctx context.Context, f TradeFilter, page, pageSize int) ([]model.Trade, int, error) {
	return s.primary.ListTrades(ctx, f, page, pageSize)
}

func (s *CachedStore) TradesByFilter(ctx context.Context, f TradeFilter) ([]model.Trade, error) {
	return s.primary.TradesByFilter(ctx, f)
}

func (s *CachedStore) GetPosition(ctx context.Context, clientID, instrumentID int64) (*model.Position, error) {
	return s.primary.GetPosition(ctx, clientID, instrumentID)
}

func (s *CachedStore) DeskInventory(ctx context.Context, instrumentID int64) (decimal.Decimal, error) {
	return s.primary.DeskInventory(ctx, instrumentID)
}

func (s *CachedStore) CreateRiskLimit(ctx context.Context, l *model.RiskLimit) error {
	return s.primary.CreateRiskLimit(ctx, l)
}

func (s *CachedStore) ListRiskLimits(ctx context.Context, activeOnly bool) ([]model.RiskLimit, error) {
	return s.primary.ListRiskLimits(ctx, activeOnly)
}

func (s *CachedStore) InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	return s.primary.InsertAuditEntry(ctx, e)
}

func (s *CachedStore) LastAuditEntry(ctx context.Context) (*model.AuditEntry, error) {
	return s.primary.LastAuditEntry(ctx)
}

func (s *CachedStore) ListAuditEntries(ctx context.Context) ([]model.AuditEntry, error) {
	return s.primary.ListAuditEntries(ctx)
}

// RunInTx delegates to the primary store. fn sees the uncached
// transaction-scoped store; the position caches are flushed after commit
// since a transaction may have touched any pair.
func (s *CachedStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	if err := s.primary.RunInTx(ctx, fn); err != nil {
		return err
	}
	s.rdb.Del(ctx, allPositionsKey)
	s.deleteByPattern(ctx, "positions:client:*")
	return nil
}

// --- Cache helpers ---

func (s *CachedStore) invalidatePositions(ctx context.Context, clientID int64) {
	s.rdb.Del(ctx, allPositionsKey, clientPositionsKey(clientID))
}

func (s *CachedStore) deleteByPattern(ctx context.Context, pattern string) {
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
}

const (
	allTicksKey     = "ticks:latest"
	allPositionsKey = "positions:all"
)

func latestTickKey(id int64) string      { return fmt.Sprintf("tick:%d", id) }
func clientPositionsKey(id int64) string { return fmt.Sprintf("positions:client:%d", id) }
