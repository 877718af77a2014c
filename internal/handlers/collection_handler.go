package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/templebooks/backend/internal/config"
	"github.com/templebooks/backend/internal/models"
	"github.com/templebooks/backend/internal/services"
)

type CollectionHandler struct {
	service   *services.ReconciliationService
	validator *services.ValidationHelper
	cfg       *config.ReconciliationConfig
}

func NewCollectionHandler(service *services.ReconciliationService, cfg *config.ReconciliationConfig) *CollectionHandler {
	return &CollectionHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		cfg:       cfg,
	}
}

// GetProfile returns the authenticated cashier's profile
// @Summary Cashier profile
// @Description Profile of the cashier identified by the bearer token
// @Tags collection
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Cashier
// @Failure 404 {object} services.ErrorResponse
// @Router /me [get]
func (h *CollectionHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	cashier, ok := r.Context().Value("cashier").(string)
	if !ok || cashier == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	profile, err := h.service.GetCashier(r.Context(), cashier)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}

// RecordSale records a billed sale
// @Summary Record a sale
// @Description Append a billed sale to the cashier's transaction ledger
// @Tags collection
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sale body object{channel=string,amount=int64,narration=string} true "Sale data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /sales [post]
func (h *CollectionHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	cashier, ok := r.Context().Value("cashier").(string)
	if !ok || cashier == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Channel   string `json:"channel" validate:"required,oneof=CASH ONLINE"`
		Amount    int64  `json:"amount" validate:"required,gt=0"`
		Narration string `json:"narration" validate:"max=200"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	rec, err := h.service.RecordSale(r.Context(), cashier, models.Channel(req.Channel), req.Amount, req.Narration)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": rec,
	})
}

// ListSales lists the cashier's transactions for a window
// @Summary List sales
// @Description List the cashier's transactions for a calendar date or date range
// @Tags collection
// @Produce json
// @Security BearerAuth
// @Param date query string false "Calendar date (2006-01-02), defaults to today"
// @Param from query string false "Range start date (2006-01-02)"
// @Param to query string false "Range end date (2006-01-02)"
// @Success 200 {object} object{transactions=[]models.Transaction,count=int}
// @Failure 400 {object} services.ErrorResponse
// @Router /sales [get]
func (h *CollectionHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	cashier, ok := r.Context().Value("cashier").(string)
	if !ok || cashier == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	window, ok := h.parseWindow(w, r)
	if !ok {
		return
	}

	txns, err := h.service.ListTransactions(r.Context(), cashier, window)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": txns,
		"count":        len(txns),
	})
}

// RequestWithdrawal records and reconciles a cash pull
// @Summary Request a withdrawal
// @Description Record a FULL or PARTIAL cash withdrawal for the cashier's open day
// @Tags collection
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param withdrawal body object{kind=string,amount=int64} true "Withdrawal request"
// @Success 201 {object} models.Withdrawal
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /withdrawals [post]
func (h *CollectionHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	cashier, ok := r.Context().Value("cashier").(string)
	if !ok || cashier == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Kind   string `json:"kind" validate:"required,oneof=FULL PARTIAL"`
		Amount int64  `json:"amount" validate:"omitempty,gt=0"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	wd, err := h.service.RequestWithdrawal(r.Context(), cashier, models.WithdrawalKind(req.Kind), req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"withdrawal": wd,
	})
}

// GetLastWithdrawal returns the latest withdrawal with its breakdown
// @Summary Last withdrawal
// @Description Most recent withdrawal event with its cash/online allocation recomputed
// @Tags collection
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.WithdrawalSummary
// @Failure 404 {object} services.ErrorResponse
// @Router /withdrawals/last [get]
func (h *CollectionHandler) GetLastWithdrawal(w http.ResponseWriter, r *http.Request) {
	cashier, ok := r.Context().Value("cashier").(string)
	if !ok || cashier == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	summary, err := h.service.GetLastWithdrawal(r.Context(), cashier)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// GetCollection returns today's reconciled position
// @Summary Today's collection
// @Description Reconciled cash/online position for the cashier's open day
// @Tags collection
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.ReconciliationState
// @Failure 401 {object} services.ErrorResponse
// @Router /collection [get]
func (h *CollectionHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	cashier, ok := r.Context().Value("cashier").(string)
	if !ok || cashier == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	h.respondState(w, r, cashier, h.service.TodayWindow())
}

// GetCollectionByDate reconstructs a historical day's position
// @Summary Collection by date
// @Description Reconciled position for an arbitrary calendar date; matches live bookkeeping exactly
// @Tags collection
// @Produce json
// @Security BearerAuth
// @Param date query string true "Calendar date (2006-01-02)"
// @Success 200 {object} models.ReconciliationState
// @Failure 400 {object} services.ErrorResponse
// @Router /collection/date [get]
func (h *CollectionHandler) GetCollectionByDate(w http.ResponseWriter, r *http.Request) {
	cashier, ok := r.Context().Value("cashier").(string)
	if !ok || cashier == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	window, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	h.respondState(w, r, cashier, window)
}

func (h *CollectionHandler) respondState(w http.ResponseWriter, r *http.Request, cashier string, window models.Window) {
	state, err := h.service.GetState(r.Context(), cashier, window)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"window":  window,
		"summary": state,
	})
}

// parseWindow resolves date/from/to query parameters against the configured
// timezone. No parameters means today.
func (h *CollectionHandler) parseWindow(w http.ResponseWriter, r *http.Request) (models.Window, bool) {
	const layout = "2006-01-02"

	if date := r.URL.Query().Get("date"); date != "" {
		day, err := time.ParseInLocation(layout, date, h.cfg.Location)
		if err != nil {
			services.SendErrorResponse(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return models.Window{}, false
		}
		return models.DayWindow(day, h.cfg.Location), true
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from != "" || to != "" {
		start, err := time.ParseInLocation(layout, from, h.cfg.Location)
		if err != nil {
			services.SendErrorResponse(w, "Invalid from date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return models.Window{}, false
		}
		end, err := time.ParseInLocation(layout, to, h.cfg.Location)
		if err != nil {
			services.SendErrorResponse(w, "Invalid to date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return models.Window{}, false
		}
		if end.Before(start) {
			services.SendErrorResponse(w, "Range end precedes start", http.StatusBadRequest, nil)
			return models.Window{}, false
		}
		return models.RangeWindow(start, end, h.cfg.Location), true
	}

	return h.service.TodayWindow(), true
}

// decodeJSONBody applies the shared request body rules: size cap, unknown
// fields rejected, exactly one JSON object.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

// writeServiceError maps the ledger error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	switch e := err.(type) {
	case *services.ValidationError:
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(services.ErrorResponse{Error: e.Error()})
	case *services.InsufficientFundsError:
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":     e.Error(),
			"requested": e.Requested,
			"available": e.Available,
		})
	case *services.ConflictError:
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(services.ErrorResponse{Error: e.Error()})
	case *services.NotFoundError:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(services.ErrorResponse{Error: e.Error()})
	case *services.ReconciliationError:
		log.Printf("[RECON] %v", e)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(services.ErrorResponse{Error: "Reconciliation failed, operation aborted"})
	default:
		log.Printf("[HANDLER] Internal error: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(services.ErrorResponse{Error: "Internal server error"})
	}
}
