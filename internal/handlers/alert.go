package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// Ingress outcomes, also used as metric labels
const (
	outcomeInvalid     = "invalid"
	outcomeProp        = "prop"
	outcomeCircuitOpen = "circuit_open"
	outcomeDuplicate   = "duplicate"
	outcomeRateLimited = "rate_limited"
	outcomeQueueFull   = "queue_full"
	outcomeQueued      = "queued"
)

// HandleAlert accepts an "odds moved" notification.
// Checks run in order: validation, prop filter, breaker, dedupe, rate limit.
func (h *Handler) HandleAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var alert models.Alert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		h.metrics.RecordAlert(outcomeInvalid)
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	eventID := strings.TrimSpace(string(alert.EventID))
	if eventID == "" {
		h.metrics.RecordAlert(outcomeInvalid)
		respondError(w, http.StatusBadRequest, "eventId is required", nil)
		return
	}
	alert.EventID = models.FlexString(eventID)

	log := h.logger.With(
		zap.String("event_id", eventID),
		zap.String("home_team", alert.HomeTeam),
		zap.String("away_team", alert.AwayTeam),
	)

	if ok, reason := h.filter.ShouldAccept(alert); !ok {
		h.metrics.RecordAlert(outcomeProp)
		log.Debug("alert filtered", zap.String("reason", reason))
		respondJSON(w, http.StatusOK, models.AlertResponse{
			Status:  "filtered",
			Message: reason,
		})
		return
	}

	if h.broker.IsRateLimited() {
		h.metrics.RecordAlert(outcomeCircuitOpen)
		respondError(w, http.StatusTooManyRequests, "target book rate limited, try again later", nil)
		return
	}

	// Claim the event in one step; dedupe errors fail open
	first, err := h.dedup.TryMark(ctx, eventID)
	if err != nil {
		log.Warn("dedup check failed", zap.Error(err))
		first = true
	}
	if !first {
		h.metrics.RecordAlert(outcomeDuplicate)
		respondJSON(w, http.StatusOK, models.AlertResponse{
			Status:  "success",
			Message: "duplicate, already queued",
		})
		return
	}

	allowed, err := h.limiter.Allow(ctx)
	if err != nil {
		log.Warn("rate limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		h.release(ctx, log, eventID)
		h.metrics.RecordAlert(outcomeRateLimited)
		respondError(w, http.StatusTooManyRequests, "alert rate limit exceeded", nil)
		return
	}

	alert.ID = uuid.New().String()
	alert.ReceivedAt = h.now()

	if !h.dispatcher.Enqueue(alert) {
		h.release(ctx, log, eventID)
		h.metrics.RecordAlert(outcomeQueueFull)
		respondError(w, http.StatusServiceUnavailable, "dispatcher not accepting alerts", nil)
		return
	}

	h.metrics.RecordAlert(outcomeQueued)
	log.Info("alert queued", zap.String("alert_id", alert.ID))

	respondJSON(w, http.StatusOK, models.AlertResponse{
		Status:  "success",
		Message: "queued",
		AlertID: alert.ID,
	})
}

// release drops the dedupe claim of a refused alert so a resend is accepted
func (h *Handler) release(ctx context.Context, log *zap.Logger, eventID string) {
	if err := h.dedup.Clear(ctx, eventID); err != nil {
		log.Warn("dedup clear failed", zap.Error(err))
	}
}
