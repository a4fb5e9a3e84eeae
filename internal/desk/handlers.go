package desk

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/auth"
	"github.com/otcdesk/desk-engine/internal/model"
	"github.com/otcdesk/desk-engine/internal/risk"
	"github.com/otcdesk/desk-engine/internal/store"
)

// Routes mounts the desk API onto a chi router.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/rfqs", func(r chi.Router) {
		r.Post("/", s.handleCreateRFQ)
		r.Get("/", s.handleListRFQs)
		r.Get("/{rfqID}", s.handleGetRFQ)
	})
	r.Route("/trades", func(r chi.Router) {
		r.Post("/", s.handleExecuteTrade)
		r.Get("/", s.handleListTrades)
		r.Get("/export.csv", s.handleExportTrades)
	})
	r.Get("/positions", s.handleListPositions)
	r.Get("/prices/current", s.handleCurrentPrices)
	r.Get("/instruments", s.handleListInstruments)
	r.Route("/clients", func(r chi.Router) {
		r.Get("/", s.handleListClients)
		r.Get("/{clientID}/analytics", s.handleClientAnalytics)
	})
	r.Route("/limits", func(r chi.Router) {
		r.Get("/", s.handleListRiskLimits)
		r.Get("/alerts", s.handleListLimitAlerts)
		r.Post("/override", s.handleRequestOverride)
	})
	r.Route("/audit", func(r chi.Router) {
		r.Get("/", s.handleAuditChain)
		r.Get("/verify", s.handleVerifyAuditChain)
	})

	return r
}

// --- RFQs ---

// CreateRFQRequest is the JSON body for POST /rfqs.
type CreateRFQRequest struct {
	ClientID      int64           `json:"client_id"`
	InstrumentID  int64           `json:"instrument_id"`
	Side          model.Side      `json:"side"`
	Size          decimal.Decimal `json:"size"`
	ExpirySeconds int             `json:"expiry_seconds"`
	RequestedBy   string          `json:"requested_by"`
}

func (s *Service) handleCreateRFQ(w http.ResponseWriter, r *http.Request) {
	var req CreateRFQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Side.Valid() {
		writeError(w, "side must be buy or sell", http.StatusBadRequest)
		return
	}
	if !req.Size.IsPositive() {
		writeError(w, "size must be positive", http.StatusBadRequest)
		return
	}

	rfq, err := s.CreateRFQ(r.Context(), CreateRFQParams{
		ClientID:      req.ClientID,
		InstrumentID:  req.InstrumentID,
		Side:          req.Side,
		Size:          req.Size,
		ExpirySeconds: req.ExpirySeconds,
		RequestedBy:   req.RequestedBy,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rfq)
}

func (s *Service) handleListRFQs(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") != "false"
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rfqs, err := s.ListRFQs(r.Context(), activeOnly, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rfqs)
}

func (s *Service) handleGetRFQ(w http.ResponseWriter, r *http.Request) {
	rfq, err := s.GetRFQ(r.Context(), chi.URLParam(r, "rfqID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rfq)
}

// --- Trades ---

// ExecuteTradeRequest is the JSON body for POST /trades.
type ExecuteTradeRequest struct {
	ClientID     int64           `json:"client_id"`
	InstrumentID int64           `json:"instrument_id"`
	Side         model.Side      `json:"side"`
	Size         decimal.Decimal `json:"size"`
	Price        decimal.Decimal `json:"price"`
	RFQID        *string         `json:"rfq_id,omitempty"`
	ExecutedBy   string          `json:"executed_by"`
}

func (s *Service) handleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req ExecuteTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Side.Valid() {
		writeError(w, "side must be buy or sell", http.StatusBadRequest)
		return
	}
	if !req.Size.IsPositive() {
		writeError(w, "size must be positive", http.StatusBadRequest)
		return
	}
	if !req.Price.IsPositive() {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}

	trade, err := s.ExecuteTrade(r.Context(), ExecuteTradeParams{
		ClientID:     req.ClientID,
		InstrumentID: req.InstrumentID,
		Side:         req.Side,
		Size:         req.Size,
		Price:        req.Price,
		RFQID:        req.RFQID,
		ExecutedBy:   req.ExecutedBy,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

func (s *Service) handleListTrades(w http.ResponseWriter, r *http.Request) {
	f, err := tradeFilterFromQuery(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := s.ListTrades(r.Context(), f, page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleExportTrades(w http.ResponseWriter, r *http.Request) {
	f, err := tradeFilterFromQuery(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trades.csv"`)
	if err := s.ExportTradesCSV(r.Context(), f, w); err != nil {
		// Headers are already out; log-and-truncate is all we can do.
		writeError(w, "export failed", http.StatusInternalServerError)
	}
}

// tradeFilterFromQuery parses the shared blotter filter parameters.
func tradeFilterFromQuery(r *http.Request) (store.TradeFilter, error) {
	var f store.TradeFilter
	q := r.URL.Query()

	if v := q.Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, errors.New("client_id must be an integer")
		}
		f.ClientID = &id
	}
	if v := q.Get("instrument_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, errors.New("instrument_id must be an integer")
		}
		f.InstrumentID = &id
	}
	if v := q.Get("side"); v != "" {
		side := model.Side(v)
		if !side.Valid() {
			return f, errors.New("side must be buy or sell")
		}
		f.Side = &side
	}
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("start must be RFC3339")
		}
		f.Start = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("end must be RFC3339")
		}
		f.End = &t
	}
	return f, nil
}

// --- Positions, prices, reference data ---

func (s *Service) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.ListPositions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Service) handleCurrentPrices(w http.ResponseWriter, r *http.Request) {
	ticks, err := s.CurrentPrices(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticks)
}

func (s *Service) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.ListClients(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Service) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	instruments, err := s.ListInstruments(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instruments)
}

func (s *Service) handleClientAnalytics(w http.ResponseWriter, r *http.Request) {
	clientID, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
	if err != nil {
		writeError(w, "client id must be an integer", http.StatusBadRequest)
		return
	}
	analytics, err := s.ClientAnalytics(r.Context(), clientID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// --- Risk ---

func (s *Service) handleListRiskLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := s.ListRiskLimits(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (s *Service) handleListLimitAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.ListLimitAlerts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// OverrideRequest is the JSON body for POST /limits/override.
type OverrideRequest struct {
	ClientID            int64           `json:"client_id"`
	InstrumentID        int64           `json:"instrument_id"`
	ProposedNotionalUSD decimal.Decimal `json:"proposed_notional_usd"`
	Reason              string          `json:"reason"`
	ActorRole           string          `json:"actor_role"`
	RequestedBy         string          `json:"requested_by"`
}

func (s *Service) handleRequestOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	role, err := auth.ParseRole(req.ActorRole)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	decision, err := s.RequestOverride(r.Context(), OverrideParams{
		ClientID:            req.ClientID,
		InstrumentID:        req.InstrumentID,
		ProposedNotionalUSD: req.ProposedNotionalUSD,
		Reason:              req.Reason,
		ActorRole:           role,
		RequestedBy:         req.RequestedBy,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// --- Audit ---

func (s *Service) handleAuditChain(w http.ResponseWriter, r *http.Request) {
	entries, err := s.AuditChain(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Service) handleVerifyAuditChain(w http.ResponseWriter, r *http.Request) {
	if err := s.VerifyAuditChain(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var breach *risk.HardBreachError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrRFQInvalidState), errors.Is(err, ErrRFQExpired):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &breach):
		writeError(w, breach.Error(), http.StatusConflict)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
