package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/ports"
)

// ----- Handler: POST /deliveries/{delivery_id}/accept -----

func (handler *CourierHTTPHandler) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	deliveryID := strings.TrimSpace(r.PathValue("delivery_id"))
	if deliveryID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing delivery_id in path", nil)
		return
	}
	driverID, ok := handler.driverFromToken(ctx, w, r)
	if !ok {
		return
	}

	in := ports.AcceptOfferInput{
		DriverID:   driverID,
		DeliveryID: deliveryID,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	res, err := handler.svc.AcceptOffer(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	// Stale offers answer with conflict semantics but a structured body so
	// the app can clear its local state.
	status := http.StatusOK
	if !res.Applied {
		status = http.StatusConflict
	}
	handler.jsonResponse(ctxWithTimeout, w, status, res)
}

// ----- Handler: POST /deliveries/{delivery_id}/decline -----

func (handler *CourierHTTPHandler) handleDeclineOffer(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	deliveryID := strings.TrimSpace(r.PathValue("delivery_id"))
	if deliveryID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing delivery_id in path", nil)
		return
	}
	driverID, ok := handler.driverFromToken(ctx, w, r)
	if !ok {
		return
	}

	in := ports.DeclineOfferInput{
		DriverID:   driverID,
		DeliveryID: deliveryID,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := handler.svc.DeclineOffer(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /deliveries/{delivery_id}/advance -----

type advanceStageRequest struct {
	NewStage string `json:"new_stage"`
}

func (handler *CourierHTTPHandler) handleAdvanceStage(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if !handler.requireJSON(ctx, w, r) {
		return
	}

	deliveryID := strings.TrimSpace(r.PathValue("delivery_id"))
	if deliveryID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing delivery_id in path", nil)
		return
	}
	driverID, ok := handler.driverFromToken(ctx, w, r)
	if !ok {
		return
	}

	var req advanceStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	newStage, err := delivery.ParseStatus(req.NewStage)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "unknown delivery stage", err)
		return
	}

	in := ports.AdvanceStageInput{
		DriverID:   driverID,
		DeliveryID: deliveryID,
		NewStage:   newStage,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	res, err := handler.svc.AdvanceStage(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /deliveries/{delivery_id}/stops/{position}/advance -----

type advanceStopRequest struct {
	NewStatus string `json:"new_status"`
}

func (handler *CourierHTTPHandler) handleAdvanceStop(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if !handler.requireJSON(ctx, w, r) {
		return
	}

	deliveryID := strings.TrimSpace(r.PathValue("delivery_id"))
	if deliveryID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing delivery_id in path", nil)
		return
	}
	position, err := strconv.Atoi(strings.TrimSpace(r.PathValue("position")))
	if err != nil || position < 0 {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid stop position", err)
		return
	}
	driverID, ok := handler.driverFromToken(ctx, w, r)
	if !ok {
		return
	}

	var req advanceStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	newStatus, err := delivery.ParseStopStatus(req.NewStatus)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "unknown stop status", err)
		return
	}

	in := ports.AdvanceStopInput{
		DriverID:   driverID,
		DeliveryID: deliveryID,
		Position:   position,
		NewStatus:  newStatus,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	res, err := handler.svc.AdvanceStop(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: GET /deliveries/pending -----

func (handler *CourierHTTPHandler) handlePendingDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			handler.httpError(ctx, w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := handler.svc.PendingDeliveries(ctxWithTimeout, limit)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, map[string]any{
		"deliveries": res,
		"count":      len(res),
	})
}
