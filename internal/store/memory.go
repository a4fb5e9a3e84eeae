package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/model"
)

type posKey struct {
	clientID     int64
	instrumentID int64
}

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	clients     map[int64]*model.Client
	instruments map[int64]*model.Instrument
	ticks       []model.PriceTick
	rfqs        map[string]*model.RFQ
	rfqOrder    []string // insertion order, oldest first
	trades      []model.Trade
	positions   map[posKey]*model.Position
	limits      []model.RiskLimit
	audit       []model.AuditEntry

	nextClientID     int64
	nextInstrumentID int64
	nextTickID       int64
	nextLimitID      int64
	nextAuditID      int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:     make(map[int64]*model.Client),
		instruments: make(map[int64]*model.Instrument),
		rfqs:        make(map[string]*model.RFQ),
		positions:   make(map[posKey]*model.Position),
	}
}

// --- Clients & instruments ---

func (s *MemoryStore) CreateClient(_ context.Context, c *model.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.clients {
		if existing.Name == c.Name {
			return fmt.Errorf("client %q already exists", c.Name)
		}
	}
	s.nextClientID++
	c.ID = s.nextClientID
	cp := *c
	s.clients[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetClient(_ context.Context, id int64) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %d: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListClients(_ context.Context) ([]model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]model.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, *c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

func (s *MemoryStore) CreateInstrument(_ context.Context, ins *model.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.instruments {
		if existing.Symbol == ins.Symbol {
			return fmt.Errorf("instrument %q already exists", ins.Symbol)
		}
	}
	s.nextInstrumentID++
	ins.ID = s.nextInstrumentID
	cp := *ins
	s.instruments[ins.ID] = &cp
	return nil
}

func (s *MemoryStore) GetInstrument(_ context.Context, id int64) (*model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ins, ok := s.instruments[id]
	if !ok {
		return nil, fmt.Errorf("instrument %d: %w", id, ErrNotFound)
	}
	cp := *ins
	return &cp, nil
}

func (s *MemoryStore) ListInstruments(_ context.Context, activeOnly bool) ([]model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instruments := make([]model.Instrument, 0, len(s.instruments))
	for _, ins := range s.instruments {
		if activeOnly && !ins.IsActive {
			continue
		}
		instruments = append(instruments, *ins)
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i].Symbol < instruments[j].Symbol })
	return instruments, nil
}

// --- Price ticks ---

func (s *MemoryStore) InsertPriceTick(_ context.Context, t *model.PriceTick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTickID++
	t.ID = s.nextTickID
	tick := *t
	if ins, ok := s.instruments[t.InstrumentID]; ok {
		tick.InstrumentSymbol = ins.Symbol
	}
	s.ticks = append(s.ticks, tick)
	return nil
}

func (s *MemoryStore) LatestPriceTick(_ context.Context, instrumentID int64) (*model.PriceTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.ticks) - 1; i >= 0; i-- {
		if s.ticks[i].InstrumentID == instrumentID {
			tick := s.ticks[i]
			return &tick, nil
		}
	}
	return nil, fmt.Errorf("no tick for instrument %d: %w", instrumentID, ErrNotFound)
}

func (s *MemoryStore) LatestPriceTicks(_ context.Context) ([]model.PriceTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[int64]model.PriceTick)
	for _, t := range s.ticks {
		existing, ok := latest[t.InstrumentID]
		if !ok || t.TS.After(existing.TS) || (t.TS.Equal(existing.TS) && t.ID > existing.ID) {
			latest[t.InstrumentID] = t
		}
	}

	ticks := make([]model.PriceTick, 0, len(latest))
	for _, t := range latest {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].InstrumentSymbol < ticks[j].InstrumentSymbol })
	return ticks, nil
}

// --- RFQs ---

func (s *MemoryStore) InsertRFQ(_ context.Context, r *model.RFQ) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rfqs[r.ID]; exists {
		return fmt.Errorf("rfq %s already exists", r.ID)
	}
	cp := *r
	s.enrichRFQ(&cp)
	s.rfqs[r.ID] = &cp
	s.rfqOrder = append(s.rfqOrder, r.ID)
	return nil
}

func (s *MemoryStore) GetRFQ(_ context.Context, id string) (*model.RFQ, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rfqs[id]
	if !ok {
		return nil, fmt.Errorf("rfq %s: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListRFQs(_ context.Context, activeOnly bool, limit int) ([]model.RFQ, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rfqs []model.RFQ
	for i := len(s.rfqOrder) - 1; i >= 0 && (limit <= 0 || len(rfqs) < limit); i-- {
		r := s.rfqs[s.rfqOrder[i]]
		if activeOnly && r.Status != model.RFQPending && r.Status != model.RFQQuoted {
			continue
		}
		rfqs = append(rfqs, *r)
	}
	return rfqs, nil
}

func (s *MemoryStore) UpdateRFQStatus(_ context.Context, id string, status model.RFQStatus, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rfqs[id]
	if !ok {
		return fmt.Errorf("rfq %s: %w", id, ErrNotFound)
	}
	r.Status = status
	r.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryStore) RFQsByClient(_ context.Context, clientID int64) ([]model.RFQ, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rfqs []model.RFQ
	for _, id := range s.rfqOrder {
		if r := s.rfqs[id]; r.ClientID == clientID {
			rfqs = append(rfqs, *r)
		}
	}
	return rfqs, nil
}

// --- Trades ---

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade := *t
	s.enrichTrade(&trade)
	s.trades = append(s.trades, trade)
	return nil
}

func matchesFilter(t model.Trade, f TradeFilter) bool {
	if f.ClientID != nil && t.ClientID != *f.ClientID {
		return false
	}
	if f.InstrumentID != nil && t.InstrumentID != *f.InstrumentID {
		return false
	}
	if f.Side != nil && t.Side != *f.Side {
		return false
	}
	if f.Start != nil && t.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && t.Timestamp.After(*f.End) {
		return false
	}
	return true
}

func (s *MemoryStore) filteredTrades(f TradeFilter) []model.Trade {
	var matched []model.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if matchesFilter(s.trades[i], f) {
			matched = append(matched, s.trades[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	return matched
}

func (s *MemoryStore) ListTrades(_ context.Context, f TradeFilter, page, pageSize int) ([]model.Trade, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filteredTrades(f)
	total := len(matched)

	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []model.Trade{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) TradesByFilter(_ context.Context, f TradeFilter) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filteredTrades(f), nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, clientID, instrumentID int64) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[posKey{clientID, instrumentID}]
	if !ok {
		return nil, fmt.Errorf("position (%d, %d): %w", clientID, instrumentID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpsertPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.enrichPosition(&cp)
	s.positions[posKey{p.ClientID, p.InstrumentID}] = &cp
	return nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, *p)
	}
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].USDExposure.GreaterThan(positions[j].USDExposure)
	})
	return positions, nil
}

func (s *MemoryStore) PositionsByClient(_ context.Context, clientID int64) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.Position
	for _, p := range s.positions {
		if p.ClientID == clientID {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].InstrumentID < positions[j].InstrumentID })
	return positions, nil
}

func (s *MemoryStore) DeskInventory(_ context.Context, instrumentID int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, p := range s.positions {
		if p.InstrumentID == instrumentID {
			total = total.Add(p.NetSize)
		}
	}
	return total, nil
}

// --- Risk limits ---

func (s *MemoryStore) CreateRiskLimit(_ context.Context, l *model.RiskLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLimitID++
	l.ID = s.nextLimitID
	cp := *l
	s.enrichLimit(&cp)
	s.limits = append(s.limits, cp)
	return nil
}

func (s *MemoryStore) ListRiskLimits(_ context.Context, activeOnly bool) ([]model.RiskLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limits := make([]model.RiskLimit, 0, len(s.limits))
	for _, l := range s.limits {
		if activeOnly && !l.Active {
			continue
		}
		limits = append(limits, l)
	}
	return limits, nil
}

// --- Audit chain ---

func (s *MemoryStore) InsertAuditEntry(_ context.Context, e *model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAuditID++
	e.ID = s.nextAuditID
	s.audit = append(s.audit, *e)
	return nil
}

func (s *MemoryStore) LastAuditEntry(_ context.Context) (*model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.audit) == 0 {
		return nil, nil
	}
	last := s.audit[len(s.audit)-1]
	return &last, nil
}

func (s *MemoryStore) ListAuditEntries(_ context.Context) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]model.AuditEntry, len(s.audit))
	copy(entries, s.audit)
	return entries, nil
}

// --- Transactions ---

// RunInTx runs fn against a deep copy of the store's state and swaps the
// copy in only when fn succeeds, so a mid-sequence failure leaves the
// visible state untouched. The store lock is held for the whole
// transaction, serializing writers — acceptable for tests and development.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := s.cloneLocked()
	if err := fn(clone); err != nil {
		return err
	}
	s.adoptLocked(clone)
	return nil
}

// cloneLocked deep-copies the store state. Caller holds s.mu.
func (s *MemoryStore) cloneLocked() *MemoryStore {
	clone := NewMemoryStore()
	for id, c := range s.clients {
		cp := *c
		clone.clients[id] = &cp
	}
	for id, ins := range s.instruments {
		cp := *ins
		clone.instruments[id] = &cp
	}
	clone.ticks = append([]model.PriceTick(nil), s.ticks...)
	for id, r := range s.rfqs {
		cp := *r
		clone.rfqs[id] = &cp
	}
	clone.rfqOrder = append([]string(nil), s.rfqOrder...)
	clone.trades = append([]model.Trade(nil), s.trades...)
	for k, p := range s.positions {
		cp := *p
		clone.positions[k] = &cp
	}
	clone.limits = append([]model.RiskLimit(nil), s.limits...)
	clone.audit = append([]model.AuditEntry(nil), s.audit...)
	clone.nextClientID = s.nextClientID
	clone.nextInstrumentID = s.nextInstrumentID
	clone.nextTickID = s.nextTickID
	clone.nextLimitID = s.nextLimitID
	clone.nextAuditID = s.nextAuditID
	return clone
}

// adoptLocked replaces the store state with a committed clone's. Caller
// holds s.mu.
func (s *MemoryStore) adoptLocked(clone *MemoryStore) {
	s.clients = clone.clients
	s.instruments = clone.instruments
	s.ticks = clone.ticks
	s.rfqs = clone.rfqs
	s.rfqOrder = clone.rfqOrder
	s.trades = clone.trades
	s.positions = clone.positions
	s.limits = clone.limits
	s.audit = clone.audit
	s.nextClientID = clone.nextClientID
	s.nextInstrumentID = clone.nextInstrumentID
	s.nextTickID = clone.nextTickID
	s.nextLimitID = clone.nextLimitID
	s.nextAuditID = clone.nextAuditID
}

// --- Join helpers (caller holds the lock) ---

func (s *MemoryStore) enrichRFQ(r *model.RFQ) {
	if c, ok := s.clients[r.ClientID]; ok {
		r.ClientName = c.Name
	}
	if ins, ok := s.instruments[r.InstrumentID]; ok {
		r.InstrumentSymbol = ins.Symbol
	}
}

func (s *MemoryStore) enrichTrade(t *model.Trade) {
	if c, ok := s.clients[t.ClientID]; ok {
		t.ClientName = c.Name
	}
	if ins, ok := s.instruments[t.InstrumentID]; ok {
		t.InstrumentSymbol = ins.Symbol
	}
}

func (s *MemoryStore) enrichPosition(p *model.Position) {
	if c, ok := s.clients[p.ClientID]; ok {
		p.ClientName = c.Name
	}
	if ins, ok := s.instruments[p.InstrumentID]; ok {
		p.InstrumentSymbol = ins.Symbol
	}
}

func (s *MemoryStore) enrichLimit(l *model.RiskLimit) {
	if l.ClientID != nil {
		if c, ok := s.clients[*l.ClientID]; ok {
			l.ClientName = c.Name
		}
	}
	if l.InstrumentID != nil {
		if ins, ok := s.instruments[*l.InstrumentID]; ok {
			l.InstrumentSymbol = ins.Symbol
		}
	}
}
