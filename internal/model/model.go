// Package model defines the core domain types shared across the desk engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the client-facing direction of a quote or trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is one of the two known directions.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// RFQStatus is the lifecycle state of a request-for-quote.
type RFQStatus string

const (
	RFQPending  RFQStatus = "pending"
	RFQQuoted   RFQStatus = "quoted"
	RFQAccepted RFQStatus = "accepted"
	RFQRejected RFQStatus = "rejected"
	RFQExpired  RFQStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s RFQStatus) Terminal() bool {
	return s == RFQAccepted || s == RFQRejected || s == RFQExpired
}

// Client is an OTC counterparty of the desk.
type Client struct {
	ID               int64           `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	Tier             string          `json:"tier" db:"tier"`
	DefaultMarkupBps decimal.Decimal `json:"default_markup_bps" db:"default_markup_bps"`
	IsActive         bool            `json:"is_active" db:"is_active"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// Instrument is a tradable pair. Immutable after creation except the
// activation flag.
type Instrument struct {
	ID         int64           `json:"id" db:"id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	BaseAsset  string          `json:"base_asset" db:"base_asset"`
	QuoteAsset string          `json:"quote_asset" db:"quote_asset"`
	TickSize   decimal.Decimal `json:"tick_size" db:"tick_size"`
	IsActive   bool            `json:"is_active" db:"is_active"`
}

// PriceTick is one synthetic market observation for an instrument.
// Append-only; the newest tick per instrument defines the current price.
type PriceTick struct {
	ID               int64           `json:"id" db:"id"`
	InstrumentID     int64           `json:"instrument_id" db:"instrument_id"`
	InstrumentSymbol string          `json:"instrument_symbol" db:"-"`
	Venue            string          `json:"venue" db:"venue"`
	Bid              decimal.Decimal `json:"bid" db:"bid"`
	Ask              decimal.Decimal `json:"ask" db:"ask"`
	Mid              decimal.Decimal `json:"mid" db:"mid"`
	SpreadBps        decimal.Decimal `json:"spread_bps" db:"spread_bps"`
	RollingVWAP      decimal.Decimal `json:"rolling_vwap" db:"rolling_vwap"`
	Volatility       decimal.Decimal `json:"volatility" db:"volatility"`
	TS               time.Time       `json:"ts" db:"ts"`
}

// RFQ is a client request-for-quote. Created with status "quoted" (the desk
// quotes immediately; "pending" is reserved for manual-quote flows); mutated
// only through status transitions, never deleted.
type RFQ struct {
	ID               string          `json:"id" db:"id"`
	ClientID         int64           `json:"client_id" db:"client_id"`
	ClientName       string          `json:"client_name" db:"-"`
	InstrumentID     int64           `json:"instrument_id" db:"instrument_id"`
	InstrumentSymbol string          `json:"instrument_symbol" db:"-"`
	RequestedBy      string          `json:"requested_by" db:"requested_by"`
	Side             Side            `json:"side" db:"side"`
	Size             decimal.Decimal `json:"size" db:"size"`
	QuotedPrice      decimal.Decimal `json:"quoted_price" db:"quoted_price"`
	QuoteExpiry      time.Time       `json:"quote_expiry" db:"quote_expiry"`
	Status           RFQStatus       `json:"status" db:"status"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Trade is an immutable record of one execution. The RFQ reference is
// optional: the desk also books trades quoted over the phone.
type Trade struct {
	ID               string          `json:"id" db:"id"`
	RFQID            *string         `json:"rfq_id,omitempty" db:"rfq_id"`
	ClientID         int64           `json:"client_id" db:"client_id"`
	ClientName       string          `json:"client_name" db:"-"`
	InstrumentID     int64           `json:"instrument_id" db:"instrument_id"`
	InstrumentSymbol string          `json:"instrument_symbol" db:"-"`
	Side             Side            `json:"side" db:"side"`
	Size             decimal.Decimal `json:"size" db:"size"`
	Price            decimal.Decimal `json:"price" db:"price"`
	NotionalUSD      decimal.Decimal `json:"notional_usd" db:"notional_usd"`
	ExecutedBy       string          `json:"executed_by" db:"executed_by"`
	Timestamp        time.Time       `json:"timestamp" db:"timestamp"`
}

// Position is the net book for one (client, instrument) pair. Exactly one
// row exists per pair; created lazily on the first fill.
type Position struct {
	ClientID         int64           `json:"client_id" db:"client_id"`
	ClientName       string          `json:"client_name" db:"-"`
	InstrumentID     int64           `json:"instrument_id" db:"instrument_id"`
	InstrumentSymbol string          `json:"instrument_symbol" db:"-"`
	NetSize          decimal.Decimal `json:"net_size" db:"net_size"`
	AvgPrice         decimal.Decimal `json:"avg_price" db:"avg_price"`
	USDExposure      decimal.Decimal `json:"usd_exposure" db:"usd_exposure"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// RiskLimit is an exposure constraint. Nil client and instrument means the
// global default limit; resolution picks the most specific active match.
type RiskLimit struct {
	ID                 int64           `json:"id" db:"id"`
	ClientID           *int64          `json:"client_id,omitempty" db:"client_id"`
	ClientName         string          `json:"client_name,omitempty" db:"-"`
	InstrumentID       *int64          `json:"instrument_id,omitempty" db:"instrument_id"`
	InstrumentSymbol   string          `json:"instrument_symbol,omitempty" db:"-"`
	SoftLimitUSD       decimal.Decimal `json:"soft_limit_usd" db:"soft_limit_usd"`
	HardLimitUSD       decimal.Decimal `json:"hard_limit_usd" db:"hard_limit_usd"`
	LeverageLimit      decimal.Decimal `json:"leverage_limit" db:"leverage_limit"`
	RequiresSupervisor bool            `json:"requires_supervisor" db:"requires_supervisor"`
	Active             bool            `json:"active" db:"active"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// AuditEntry is one link in the append-only hash chain. The hash covers this
// entry's own fields plus the previous entry's hash (or the genesis sentinel).
type AuditEntry struct {
	ID         int64          `json:"id" db:"id"`
	EventType  string         `json:"event_type" db:"event_type"`
	EntityType string         `json:"entity_type" db:"entity_type"`
	EntityID   string         `json:"entity_id" db:"entity_id"`
	Actor      string         `json:"actor,omitempty" db:"actor"`
	Metadata   map[string]any `json:"metadata" db:"metadata"`
	Hash       string         `json:"hash" db:"hash"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// LimitAlert is a read-only classification of an existing position against
// its effective limit.
type LimitAlert struct {
	ClientID         int64           `json:"client_id"`
	ClientName       string          `json:"client_name"`
	InstrumentID     int64           `json:"instrument_id"`
	InstrumentSymbol string          `json:"instrument_symbol"`
	ExposureUSD      decimal.Decimal `json:"exposure_usd"`
	SoftLimitUSD     decimal.Decimal `json:"soft_limit_usd"`
	HardLimitUSD     decimal.Decimal `json:"hard_limit_usd"`
	Severity         string          `json:"severity"` // "soft" or "hard"
}

// ClientAnalytics aggregates desk-side performance metrics for one client.
type ClientAnalytics struct {
	ClientID              int64           `json:"client_id"`
	ClientName            string          `json:"client_name"`
	MarkToMarketPnL       decimal.Decimal `json:"mark_to_market_pnl"`
	TotalVolumeUSD        decimal.Decimal `json:"total_volume_usd"`
	AvgSpreadCaptureBps   decimal.Decimal `json:"avg_spread_capture_bps"`
	AvgRFQResponseSeconds decimal.Decimal `json:"avg_rfq_response_seconds"`
	TradeCount            int             `json:"trade_count"`
}
