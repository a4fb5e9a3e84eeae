// Package store defines the persistence interface for the desk engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/model"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("store: not found")

// TradeFilter narrows trade queries. Nil fields match everything.
type TradeFilter struct {
	ClientID     *int64
	InstrumentID *int64
	Side         *model.Side
	Start        *time.Time
	End          *time.Time
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Consistency of multi-entity
// writes is delegated to RunInTx.
type Store interface {
	// --- Clients & instruments ---

	// CreateClient persists a new client and assigns its ID.
	CreateClient(ctx context.Context, c *model.Client) error

	// GetClient retrieves a client by ID.
	GetClient(ctx context.Context, id int64) (*model.Client, error)

	// ListClients returns all clients ordered by ID.
	ListClients(ctx context.Context) ([]model.Client, error)

	// CreateInstrument persists a new instrument and assigns its ID.
	CreateInstrument(ctx context.Context, ins *model.Instrument) error

	// GetInstrument retrieves an instrument by ID.
	GetInstrument(ctx context.Context, id int64) (*model.Instrument, error)

	// ListInstruments returns instruments ordered by symbol, optionally
	// only active ones.
	ListInstruments(ctx context.Context, activeOnly bool) ([]model.Instrument, error)

	// --- Price ticks (append-only) ---

	// InsertPriceTick appends one market observation.
	InsertPriceTick(ctx context.Context, t *model.PriceTick) error

	// LatestPriceTick returns the newest tick for one instrument.
	LatestPriceTick(ctx context.Context, instrumentID int64) (*model.PriceTick, error)

	// LatestPriceTicks returns the newest tick per instrument, ordered by
	// instrument symbol.
	LatestPriceTicks(ctx context.Context) ([]model.PriceTick, error)

	// --- RFQs ---

	// InsertRFQ persists a new RFQ.
	InsertRFQ(ctx context.Context, r *model.RFQ) error

	// GetRFQ retrieves an RFQ by ID.
	GetRFQ(ctx context.Context, id string) (*model.RFQ, error)

	// ListRFQs returns RFQs newest-first up to limit; activeOnly keeps
	// only pending/quoted ones.
	ListRFQs(ctx context.Context, activeOnly bool, limit int) ([]model.RFQ, error)

	// UpdateRFQStatus transitions an RFQ's status.
	UpdateRFQStatus(ctx context.Context, id string, status model.RFQStatus, updatedAt time.Time) error

	// RFQsByClient returns all RFQs for a client.
	RFQsByClient(ctx context.Context, clientID int64) ([]model.RFQ, error)

	// --- Trades (immutable) ---

	// InsertTrade appends an immutable execution record.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// ListTrades returns one page of trades newest-first plus the total
	// match count.
	ListTrades(ctx context.Context, f TradeFilter, page, pageSize int) ([]model.Trade, int, error)

	// TradesByFilter returns all matching trades newest-first (export,
	// analytics).
	TradesByFilter(ctx context.Context, f TradeFilter) ([]model.Trade, error)

	// --- Positions ---

	// GetPosition retrieves the position for a (client, instrument) pair.
	GetPosition(ctx context.Context, clientID, instrumentID int64) (*model.Position, error)

	// UpsertPosition creates or replaces the position for its pair.
	UpsertPosition(ctx context.Context, p *model.Position) error

	// ListPositions returns all positions ordered by descending exposure.
	ListPositions(ctx context.Context) ([]model.Position, error)

	// PositionsByClient returns all positions for a client.
	PositionsByClient(ctx context.Context, clientID int64) ([]model.Position, error)

	// DeskInventory returns the sum of net sizes across all clients for
	// an instrument.
	DeskInventory(ctx context.Context, instrumentID int64) (decimal.Decimal, error)

	// --- Risk limits ---

	// CreateRiskLimit persists a new limit and assigns its ID.
	CreateRiskLimit(ctx context.Context, l *model.RiskLimit) error

	// ListRiskLimits returns limits ordered by ID, optionally only active
	// ones.
	ListRiskLimits(ctx context.Context, activeOnly bool) ([]model.RiskLimit, error)

	// --- Audit chain (append-only) ---

	// InsertAuditEntry appends one chain entry and assigns its ID.
	InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error

	// LastAuditEntry returns the most recently appended entry, or
	// (nil, nil) on an empty chain.
	LastAuditEntry(ctx context.Context) (*model.AuditEntry, error)

	// ListAuditEntries returns the whole chain in creation order.
	ListAuditEntries(ctx context.Context) ([]model.AuditEntry, error)

	// --- Transactions ---

	// RunInTx executes fn against a transaction-scoped store. All writes
	// inside fn commit together or not at all.
	RunInTx(ctx context.Context, fn func(Store) error) error
}
