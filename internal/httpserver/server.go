// Package httpserver exposes the thin HTTP surface over the stock and order
// components. Handlers carry no business logic of their own.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hospital-e/supply-service/internal/metrics"
	"github.com/hospital-e/supply-service/internal/models"
	"github.com/hospital-e/supply-service/internal/monitor"
	"github.com/hospital-e/supply-service/internal/store"
)

// StockServer serves the monitoring side: status, triggers, alerts,
// performance, and the event log.
type StockServer struct {
	evaluator   *monitor.Evaluator
	store       store.Store
	aggregator  *metrics.Aggregator
	hospitalID  string
	productCode string
}

func NewStockServer(evaluator *monitor.Evaluator, st store.Store, aggregator *metrics.Aggregator, hospitalID, productCode string) *StockServer {
	return &StockServer{evaluator: evaluator, store: st, aggregator: aggregator, hospitalID: hospitalID, productCode: productCode}
}

func (s *StockServer) Router() http.Handler {
	r := newRouter()
	r.Get("/health", healthHandler(s.store))
	r.Get("/status", s.handleStatus)
	r.Post("/trigger", s.handleTrigger)
	r.Post("/simulate-consumption", s.handleSimulate)
	r.Get("/consumption-history", s.handleConsumptionHistory)
	r.Get("/alerts", s.handleListAlerts)
	r.Post("/alerts/{alertID}/acknowledge", s.handleAcknowledgeAlert)
	r.Get("/performance", performanceHandler(s.aggregator))
	r.Get("/logs", logsHandler(s.store))
	return r
}

func (s *StockServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.evaluator.Status(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "not_initialized"})
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *StockServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	result, err := s.evaluator.RunCycle(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type simulateRequest struct {
	Days int `json:"days"`
}

func (s *StockServer) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	results, err := s.evaluator.Simulate(r.Context(), req.Days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (s *StockServer) handleConsumptionHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListConsumption(r.Context(), s.hospitalID, s.productCode, queryInt(r, "limit"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []models.ConsumptionRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *StockServer) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("open") == "true"
	alerts, err := s.store.ListAlerts(r.Context(), s.hospitalID, openOnly, queryInt(r, "limit"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (s *StockServer) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "alertID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	alert, err := s.store.AcknowledgeAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "alert not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

// OrderServer serves the order side: listings, stats, and status updates.
type OrderServer struct {
	store      store.Store
	aggregator *metrics.Aggregator
	hospitalID string
}

func NewOrderServer(st store.Store, aggregator *metrics.Aggregator, hospitalID string) *OrderServer {
	return &OrderServer{store: st, aggregator: aggregator, hospitalID: hospitalID}
}

func (s *OrderServer) Router() http.Handler {
	r := newRouter()
	r.Get("/health", healthHandler(s.store))
	r.Get("/orders", s.handleListOrders)
	r.Get("/orders/pending", s.handlePendingOrders)
	r.Get("/orders/stats", s.handleOrderStats)
	r.Get("/orders/{orderID}", s.handleGetOrder)
	r.Put("/orders/{orderID}/status", s.handleUpdateStatus)
	r.Get("/performance", performanceHandler(s.aggregator))
	r.Get("/logs", logsHandler(s.store))
	return r
}

func (s *OrderServer) handleListOrders(w http.ResponseWriter, r *http.Request) {
	status := models.OrderStatus(r.URL.Query().Get("status"))
	orders, err := s.store.ListOrders(r.Context(), s.hospitalID, status, queryInt(r, "limit"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *OrderServer) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListOrders(r.Context(), s.hospitalID, models.OrderPending, queryInt(r, "limit"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *OrderServer) handleOrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.OrderStats(r.Context(), s.hospitalID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *OrderServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.store.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "order not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, order)
}

type statusUpdateRequest struct {
	Status models.OrderStatus `json:"status"`
}

func (s *OrderServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch req.Status {
	case models.OrderReceived, models.OrderDelivered, models.OrderCancelled:
	default:
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}
	order, err := s.store.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, models.ErrInvalidTransition):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	return r
}

func healthHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]interface{}{
			"ok":   true,
			"time": time.Now().UTC(),
		}
		if err := st.Ping(ctx); err != nil {
			status["ok"] = false
			status["db"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		respondJSON(w, http.StatusOK, status)
	}
}

func performanceHandler(aggregator *metrics.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := aggregator.Report(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, report)
	}
}

func logsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := st.ListEvents(r.Context(), queryInt(r, "limit"))
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if events == nil {
			events = []models.EventLogEntry{}
		}
		respondJSON(w, http.StatusOK, events)
	}
}

func queryInt(r *http.Request, key string) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
