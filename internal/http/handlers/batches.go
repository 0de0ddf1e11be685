package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"recreator/internal/domain"
	"recreator/internal/domain/jsoncfg"
	"recreator/internal/middleware"
)

// Inline base64 frames make payloads large.
const maxBatchBody = 32 << 20

type createBatchResponse struct {
	BatchID  string              `json:"batch_id"`
	Status   domain.BatchStatus  `json:"status"`
	Locale   string              `json:"locale"`
	Estimate domain.CostEstimate `json:"estimate"`
}

func (a *App) CreateBatch(w http.ResponseWriter, r *http.Request) {
	payload, ok := a.decodeBatch(w, r)
	if !ok {
		return
	}
	estimate := domain.EstimateCost(payload.Requests, a.CostPerSecond)

	batch := &domain.Batch{
		ID:            uuid.NewString(),
		Status:        domain.BatchStatusQueued,
		Locale:        payload.Locale,
		Requests:      payload.Requests,
		EstimatedCost: estimate.TotalCost,
	}
	log := a.Logger.With().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("batch_id", batch.ID).
		Logger()

	if err := a.Store.Create(r.Context(), batch); err != nil {
		log.Error().Err(err).Msg("batches: create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store batch")
		return
	}
	if err := a.Dispatcher.Dispatch(r.Context(), batch.ID); err != nil {
		log.Error().Err(err).Msg("batches: dispatch failed")
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		defer cancel()
		if err := a.Store.UpdateStatus(ctx, batch.ID, domain.BatchStatusFailed, "dispatch failed"); err != nil {
			log.Error().Err(err).Msg("batches: mark failed")
		}
		a.error(w, http.StatusServiceUnavailable, "queue_unavailable", "batch could not be scheduled")
		return
	}
	log.Info().Int("selected", estimate.TotalSelected).Float64("estimated_cost", estimate.TotalCost).Msg("batches: queued")

	w.Header().Set("Location", "/v1/batches/"+batch.ID)
	a.json(w, http.StatusAccepted, createBatchResponse{
		BatchID:  batch.ID,
		Status:   batch.Status,
		Locale:   batch.Locale,
		Estimate: estimate,
	})
}

func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if batchID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "batch_id required")
		return
	}
	batch, err := a.Store.Get(r.Context(), batchID)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("batch_id", batchID).Msg("batches: load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load batch")
		return
	}
	a.json(w, http.StatusOK, batch)
}

func (a *App) EstimateBatch(w http.ResponseWriter, r *http.Request) {
	payload, ok := a.decodeBatch(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, domain.EstimateCost(payload.Requests, a.CostPerSecond))
}

// decodeBatch reads, normalizes and validates a batch payload, answering
// the request itself when that fails.
func (a *App) decodeBatch(w http.ResponseWriter, r *http.Request) (jsoncfg.BatchPayload, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "payload too large")
			return jsoncfg.BatchPayload{}, false
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return jsoncfg.BatchPayload{}, false
	}
	payload, err := jsoncfg.Decode(raw)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return jsoncfg.BatchPayload{}, false
	}
	payload.Normalize(middleware.LocaleFromContext(r.Context()))
	if err := payload.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return jsoncfg.BatchPayload{}, false
	}
	return payload, true
}
