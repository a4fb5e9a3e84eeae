package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/model"
)

// pgxConn is the query surface shared by *pgxpool.Pool and pgx.Tx, so the
// same query code serves both pooled and transactional execution.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	db   pgxConn
	pool *pgxpool.Pool // nil inside a transaction
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func mustDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// --- Clients & instruments ---

func (s *PostgresStore) CreateClient(ctx context.Context, c *model.Client) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO clients (name, tier, default_markup_bps, is_active, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5) RETURNING id`,
		c.Name, c.Tier, c.DefaultMarkupBps.String(), c.IsActive, c.CreatedAt,
	).Scan(&c.ID)
}

func (s *PostgresStore) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	var c model.Client
	var markup string
	err := s.db.QueryRow(ctx,
		`SELECT id, name, tier, default_markup_bps::TEXT, is_active, created_at
		 FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Tier, &markup, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("get client %d", id))
	}
	c.DefaultMarkupBps = mustDecimal(markup)
	return &c, nil
}

func (s *PostgresStore) ListClients(ctx context.Context) ([]model.Client, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, tier, default_markup_bps::TEXT, is_active, created_at
		 FROM clients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var c model.Client
		var markup string
		if err := rows.Scan(&c.ID, &c.Name, &c.Tier, &markup, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.DefaultMarkupBps = mustDecimal(markup)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *PostgresStore) CreateInstrument(ctx context.Context, ins *model.Instrument) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO instruments (symbol, base_asset, quote_asset, tick_size, is_active)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5) RETURNING id`,
		ins.Symbol, ins.BaseAsset, ins.QuoteAsset, ins.TickSize.String(), ins.IsActive,
	).Scan(&ins.ID)
}

func (s *PostgresStore) GetInstrument(ctx context.Context, id int64) (*model.Instrument, error) {
	var ins model.Instrument
	var tickSize string
	err := s.db.QueryRow(ctx,
		`SELECT id, symbol, base_asset, quote_asset, tick_size::TEXT, is_active
		 FROM instruments WHERE id = $1`, id).
		Scan(&ins.ID, &ins.Symbol, &ins.BaseAsset, &ins.QuoteAsset, &tickSize, &ins.IsActive)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("get instrument %d", id))
	}
	ins.TickSize = mustDecimal(tickSize)
	return &ins, nil
}

func (s *PostgresStore) ListInstruments(ctx context.Context, activeOnly bool) ([]model.Instrument, error) {
	query := `SELECT id, symbol, base_asset, quote_asset, tick_size::TEXT, is_active
	          FROM instruments`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY symbol`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []model.Instrument
	for rows.Next() {
		var ins model.Instrument
		var tickSize string
		if err := rows.Scan(&ins.ID, &ins.Symbol, &ins.BaseAsset, &ins.QuoteAsset, &tickSize, &ins.IsActive); err != nil {
			return nil, err
		}
		ins.TickSize = mustDecimal(tickSize)
		instruments = append(instruments, ins)
	}
	return instruments, rows.Err()
}

// --- Price ticks ---

func (s *PostgresStore) InsertPriceTick(ctx context.Context, t *model.PriceTick) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO price_ticks (instrument_id, venue, bid, ask, mid, spread_bps, rolling_vwap, volatility, ts)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)
		 RETURNING id`,
		t.InstrumentID, t.Venue,
		t.Bid.String(), t.Ask.String(), t.Mid.String(),
		t.SpreadBps.String(), t.RollingVWAP.String(), t.Volatility.String(),
		t.TS,
	).Scan(&t.ID)
}

const tickColumns = `pt.id, pt.instrument_id, i.symbol, pt.venue,
	pt.bid::TEXT, pt.ask::TEXT, pt.mid::TEXT,
	pt.spread_bps::TEXT, pt.rolling_vwap::TEXT, pt.volatility::TEXT, pt.ts`

func scanTick(row pgx.Row) (*model.PriceTick, error) {
	var t model.PriceTick
	var bid, ask, mid, spread, vwap, vol string
	if err := row.Scan(&t.ID, &t.InstrumentID, &t.InstrumentSymbol, &t.Venue,
		&bid, &ask, &mid, &spread, &vwap, &vol, &t.TS); err != nil {
		return nil, err
	}
	t.Bid = mustDecimal(bid)
	t.Ask = mustDecimal(ask)
	t.Mid = mustDecimal(mid)
	t.SpreadBps = mustDecimal(spread)
	t.RollingVWAP = mustDecimal(vwap)
	t.Volatility = mustDecimal(vol)
	return &t, nil
}

func (s *PostgresStore) LatestPriceTick(ctx context.Context, instrumentID int64) (*model.PriceTick, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+tickColumns+`
		 FROM price_ticks pt JOIN instruments i ON i.id = pt.instrument_id
		 WHERE pt.instrument_id = $1
		 ORDER BY pt.ts DESC, pt.id DESC LIMIT 1`, instrumentID)
	t, err := scanTick(row)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("latest tick for instrument %d", instrumentID))
	}
	return t, nil
}

func (s *PostgresStore) LatestPriceTicks(ctx context.Context) ([]model.PriceTick, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT ON (pt.instrument_id) `+tickColumns+`
		 FROM price_ticks pt JOIN instruments i ON i.id = pt.instrument_id
		 ORDER BY pt.instrument_id, pt.ts DESC, pt.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []model.PriceTick
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// DISTINCT ON forces instrument_id ordering; re-sort by symbol.
	sort.Slice(ticks, func(i, j int) bool {
		return ticks[i].InstrumentSymbol < ticks[j].InstrumentSymbol
	})
	return ticks, nil
}

// --- RFQs ---

func (s *PostgresStore) InsertRFQ(ctx context.Context, r *model.RFQ) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO rfqs (id, client_id, instrument_id, requested_by, side, size, quoted_price, quote_expiry, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11)`,
		r.ID, r.ClientID, r.InstrumentID, r.RequestedBy, string(r.Side),
		r.Size.String(), r.QuotedPrice.String(),
		r.QuoteExpiry, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	return err
}

const rfqColumns = `r.id, r.client_id, c.name, r.instrument_id, i.symbol, r.requested_by,
	r.side, r.size::TEXT, r.quoted_price::TEXT, r.quote_expiry, r.status, r.created_at, r.updated_at`

const rfqJoins = ` FROM rfqs r
	JOIN clients c ON c.id = r.client_id
	JOIN instruments i ON i.id = r.instrument_id`

func scanRFQ(row pgx.Row) (*model.RFQ, error) {
	var r model.RFQ
	var size, price, side, status string
	if err := row.Scan(&r.ID, &r.ClientID, &r.ClientName, &r.InstrumentID, &r.InstrumentSymbol,
		&r.RequestedBy, &side, &size, &price, &r.QuoteExpiry, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Side = model.Side(side)
	r.Status = model.RFQStatus(status)
	r.Size = mustDecimal(size)
	r.QuotedPrice = mustDecimal(price)
	return &r, nil
}

func (s *PostgresStore) GetRFQ(ctx context.Context, id string) (*model.RFQ, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rfqColumns+rfqJoins+` WHERE r.id = $1`, id)
	r, err := scanRFQ(row)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("get rfq %s", id))
	}
	return r, nil
}

func (s *PostgresStore) ListRFQs(ctx context.Context, activeOnly bool, limit int) ([]model.RFQ, error) {
	query := `SELECT ` + rfqColumns + rfqJoins
	if activeOnly {
		query += ` WHERE r.status IN ('pending', 'quoted')`
	}
	query += ` ORDER BY r.created_at DESC LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRFQs(rows)
}

func (s *PostgresStore) RFQsByClient(ctx context.Context, clientID int64) ([]model.RFQ, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+rfqColumns+rfqJoins+` WHERE r.client_id = $1 ORDER BY r.created_at`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRFQs(rows)
}

func collectRFQs(rows pgx.Rows) ([]model.RFQ, error) {
	var rfqs []model.RFQ
	for rows.Next() {
		r, err := scanRFQ(rows)
		if err != nil {
			return nil, err
		}
		rfqs = append(rfqs, *r)
	}
	return rfqs, rows.Err()
}

func (s *PostgresStore) UpdateRFQStatus(ctx context.Context, id string, status model.RFQStatus, updatedAt time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE rfqs SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rfq %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Trades ---

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO trades (id, rfq_id, client_id, instrument_id, side, size, price, notional_usd, executed_by, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
		t.ID, t.RFQID, t.ClientID, t.InstrumentID, string(t.Side),
		t.Size.String(), t.Price.String(), t.NotionalUSD.String(),
		t.ExecutedBy, t.Timestamp,
	)
	return err
}

const tradeColumns = `t.id, t.rfq_id, t.client_id, c.name, t.instrument_id, i.symbol,
	t.side, t.size::TEXT, t.price::TEXT, t.notional_usd::TEXT, t.executed_by, t.timestamp`

const tradeJoins = ` FROM trades t
	JOIN clients c ON c.id = t.client_id
	JOIN instruments i ON i.id = t.instrument_id`

func scanTrade(row pgx.Row) (*model.Trade, error) {
	var t model.Trade
	var size, price, notional, side string
	if err := row.Scan(&t.ID, &t.RFQID, &t.ClientID, &t.ClientName, &t.InstrumentID, &t.InstrumentSymbol,
		&side, &size, &price, &notional, &t.ExecutedBy, &t.Timestamp); err != nil {
		return nil, err
	}
	t.Side = model.Side(side)
	t.Size = mustDecimal(size)
	t.Price = mustDecimal(price)
	t.NotionalUSD = mustDecimal(notional)
	return &t, nil
}

// tradeWhere builds the WHERE clause and args for a filter, starting the
// placeholder numbering at $1.
func tradeWhere(f TradeFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.ClientID != nil {
		add("t.client_id = $%d", *f.ClientID)
	}
	if f.InstrumentID != nil {
		add("t.instrument_id = $%d", *f.InstrumentID)
	}
	if f.Side != nil {
		add("t.side = $%d", string(*f.Side))
	}
	if f.Start != nil {
		add("t.timestamp >= $%d", *f.Start)
	}
	if f.End != nil {
		add("t.timestamp <= $%d", *f.End)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func (s *PostgresStore) ListTrades(ctx context.Context, f TradeFilter, page, pageSize int) ([]model.Trade, int, error) {
	where, args := tradeWhere(f)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*)`+tradeJoins+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY t.timestamp DESC LIMIT $%d OFFSET $%d`,
		tradeColumns, tradeJoins, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	trades, err := collectTrades(rows)
	if err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

func (s *PostgresStore) TradesByFilter(ctx context.Context, f TradeFilter) ([]model.Trade, error) {
	where, args := tradeWhere(f)
	rows, err := s.db.Query(ctx,
		`SELECT `+tradeColumns+tradeJoins+where+` ORDER BY t.timestamp DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTrades(rows)
}

func collectTrades(rows pgx.Rows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// --- Positions ---

const positionColumns = `p.client_id, c.name, p.instrument_id, i.symbol,
	p.net_size::TEXT, p.avg_price::TEXT, p.usd_exposure::TEXT, p.updated_at`

const positionJoins = ` FROM positions p
	JOIN clients c ON c.id = p.client_id
	JOIN instruments i ON i.id = p.instrument_id`

func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var net, avg, exposure string
	if err := row.Scan(&p.ClientID, &p.ClientName, &p.InstrumentID, &p.InstrumentSymbol,
		&net, &avg, &exposure, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.NetSize = mustDecimal(net)
	p.AvgPrice = mustDecimal(avg)
	p.USDExposure = mustDecimal(exposure)
	return &p, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, clientID, instrumentID int64) (*model.Position, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+positionColumns+positionJoins+` WHERE p.client_id = $1 AND p.instrument_id = $2`,
		clientID, instrumentID)
	p, err := scanPosition(row)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("position (%d, %d)", clientID, instrumentID))
	}
	return p, nil
}

func (s *PostgresStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO positions (client_id, instrument_id, net_size, avg_price, usd_exposure, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)
		 ON CONFLICT (client_id, instrument_id)
		 DO UPDATE SET net_size = EXCLUDED.net_size, avg_price = EXCLUDED.avg_price,
		               usd_exposure = EXCLUDED.usd_exposure, updated_at = EXCLUDED.updated_at`,
		p.ClientID, p.InstrumentID,
		p.NetSize.String(), p.AvgPrice.String(), p.USDExposure.String(),
		p.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+positionColumns+positionJoins+` ORDER BY p.usd_exposure DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPositions(rows)
}

func (s *PostgresStore) PositionsByClient(ctx context.Context, clientID int64) ([]model.Position, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+positionColumns+positionJoins+` WHERE p.client_id = $1 ORDER BY p.instrument_id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) DeskInventory(ctx context.Context, instrumentID int64) (decimal.Decimal, error) {
	var total string
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(net_size), 0)::TEXT FROM positions WHERE instrument_id = $1`,
		instrumentID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return mustDecimal(total), nil
}

// --- Risk limits ---

func (s *PostgresStore) CreateRiskLimit(ctx context.Context, l *model.RiskLimit) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO risk_limits (client_id, instrument_id, soft_limit_usd, hard_limit_usd, leverage_limit, requires_supervisor, active, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7, $8) RETURNING id`,
		l.ClientID, l.InstrumentID,
		l.SoftLimitUSD.String(), l.HardLimitUSD.String(), l.LeverageLimit.String(),
		l.RequiresSupervisor, l.Active, l.UpdatedAt,
	).Scan(&l.ID)
}

func (s *PostgresStore) ListRiskLimits(ctx context.Context, activeOnly bool) ([]model.RiskLimit, error) {
	query := `SELECT l.id, l.client_id, c.name, l.instrument_id, i.symbol,
	          l.soft_limit_usd::TEXT, l.hard_limit_usd::TEXT, l.leverage_limit::TEXT,
	          l.requires_supervisor, l.active, l.updated_at
	          FROM risk_limits l
	          LEFT JOIN clients c ON c.id = l.client_id
	          LEFT JOIN instruments i ON i.id = l.instrument_id`
	if activeOnly {
		query += ` WHERE l.active`
	}
	query += ` ORDER BY l.id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var limits []model.RiskLimit
	for rows.Next() {
		var l model.RiskLimit
		var clientName, instrumentSymbol *string
		var soft, hard, leverage string
		if err := rows.Scan(&l.ID, &l.ClientID, &clientName, &l.InstrumentID, &instrumentSymbol,
			&soft, &hard, &leverage, &l.RequiresSupervisor, &l.Active, &l.UpdatedAt); err != nil {
			return nil, err
		}
		if clientName != nil {
			l.ClientName = *clientName
		}
		if instrumentSymbol != nil {
			l.InstrumentSymbol = *instrumentSymbol
		}
		l.SoftLimitUSD = mustDecimal(soft)
		l.HardLimitUSD = mustDecimal(hard)
		l.LeverageLimit = mustDecimal(leverage)
		limits = append(limits, l)
	}
	return limits, rows.Err()
}

// --- Audit chain ---

func (s *PostgresStore) InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	var actor *string
	if e.Actor != "" {
		actor = &e.Actor
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO audit_entries (event_type, entity_type, entity_id, actor, metadata, hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		e.EventType, e.EntityType, e.EntityID, actor, e.Metadata, e.Hash, e.CreatedAt,
	).Scan(&e.ID)
}

func scanAuditEntry(row pgx.Row) (*model.AuditEntry, error) {
	var e model.AuditEntry
	var actor *string
	if err := row.Scan(&e.ID, &e.EventType, &e.EntityType, &e.EntityID, &actor,
		&e.Metadata, &e.Hash, &e.CreatedAt); err != nil {
		return nil, err
	}
	if actor != nil {
		e.Actor = *actor
	}
	return &e, nil
}

func (s *PostgresStore) LastAuditEntry(ctx context.Context) (*model.AuditEntry, error) {
	// Inside a transaction this read is the head of a chain append. Take
	// the advisory lock so a concurrent appender in another session waits
	// for this commit instead of hashing over the same previous entry.
	if s.pool == nil {
		if _, err := s.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('audit_chain'))`); err != nil {
			return nil, fmt.Errorf("audit chain lock: %w", err)
		}
	}
	row := s.db.QueryRow(ctx,
		`SELECT id, event_type, entity_type, entity_id, actor, metadata, hash, created_at
		 FROM audit_entries ORDER BY id DESC LIMIT 1`)
	e, err := scanAuditEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last audit entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context) ([]model.AuditEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, event_type, entity_type, entity_id, actor, metadata, hash, created_at
		 FROM audit_entries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// --- Transactions ---

// RunInTx wraps fn in one database transaction. Nested calls reuse the
// surrounding transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// Already transactional.
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
