package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/dedup"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/filter"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/ratelimit"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// SnapshotStore is the store view the handlers need
type SnapshotStore interface {
	Get(id string) (*models.EventSnapshot, bool)
	GetAll() map[string]*models.EventSnapshot
	Dismiss(id string)
	Len() int
	Stats() models.StoreStats
}

// AlertQueue accepts alerts for per-event processing
type AlertQueue interface {
	Enqueue(alert models.Alert) bool
	ActiveWorkers() int
	QueueDepth() int
}

// ScrapeBroker exposes the target-book circuit state
type ScrapeBroker interface {
	IsRateLimited() bool
	ForceReset()
	Status() models.BrokerStatus
}

// SubscriberHub registers websocket subscribers
type SubscriberHub interface {
	Register(s contracts.Subscriber)
	Unregister(s contracts.Subscriber)
	SubscriberCount() int
}

// Deps holds handler dependencies
type Deps struct {
	Store      SnapshotStore
	Dispatcher AlertQueue
	Broker     ScrapeBroker
	Hub        SubscriberHub
	Filter     *filter.Filter
	Limiter    ratelimit.Limiter
	Dedup      dedup.Checker
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// Lifetime of websocket pumps; request contexts end when the upgrade returns
	Context context.Context
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	store      SnapshotStore
	dispatcher AlertQueue
	broker     ScrapeBroker
	hub        SubscriberHub
	filter     *filter.Filter
	limiter    ratelimit.Limiter
	dedup      dedup.Checker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	ctx        context.Context
	now        func() time.Time
}

// NewHandler creates a new handler with dependencies
func NewHandler(d Deps) *Handler {
	if d.Filter == nil {
		d.Filter = filter.NewFilter()
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.NewMemory(10)
	}
	if d.Dedup == nil {
		d.Dedup = dedup.NewMemory(dedup.DefaultTTL, nil)
	}
	if d.Context == nil {
		d.Context = context.Background()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	return &Handler{
		store:      d.Store,
		dispatcher: d.Dispatcher,
		broker:     d.Broker,
		hub:        d.Hub,
		filter:     d.Filter,
		limiter:    d.Limiter,
		dedup:      d.Dedup,
		metrics:    d.Metrics,
		logger:     d.Logger.Named("http"),
		ctx:        d.Context,
		now:        time.Now,
	}
}

// HealthCheck returns the health status of the service
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
		"service":   "ev-monitor",
	})
}

// GetStatus reports queue depth, breaker state, session age and store stats
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	brokerStatus := h.broker.Status()

	status := "ok"
	if brokerStatus.RateLimited {
		status = "rate_limited"
	}

	respondJSON(w, http.StatusOK, models.StatusResponse{
		Status:          status,
		QueueDepth:      h.dispatcher.QueueDepth(),
		ActiveEvents:    h.store.Len(),
		DispatchWorkers: h.dispatcher.ActiveWorkers(),
		Subscribers:     h.hub.SubscriberCount(),
		Broker:          brokerStatus,
		Store:           h.store.Stats(),
		Timestamp:       h.now().UTC(),
	})
}

// GetEvents returns every tracked snapshot
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events := h.store.GetAll()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// GetEvent returns one snapshot
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	snap, ok := h.store.Get(eventID)
	if !ok {
		respondError(w, http.StatusNotFound, "event not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// DismissEvent hides an event; the refresher removes it on its next cycle
func (h *Handler) DismissEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	if _, ok := h.store.Get(eventID); !ok {
		respondError(w, http.StatusNotFound, "event not found", nil)
		return
	}

	h.store.Dismiss(eventID)
	h.logger.Info("event dismissed", zap.String("event_id", eventID))

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"message":  "event dismissed",
		"event_id": eventID,
	})
}

// ResetBroker clears the rate-limit circuit
func (h *Handler) ResetBroker(w http.ResponseWriter, r *http.Request) {
	h.broker.ForceReset()
	h.logger.Warn("broker circuit reset by operator")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "rate limiting reset",
		"broker":  h.broker.Status(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := models.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}

	_ = json.NewEncoder(w).Encode(errResp)
}
