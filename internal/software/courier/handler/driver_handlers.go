package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"courier-dispatch/internal/general/jwt"
	"courier-dispatch/internal/ports"
)

// ----- Handler: POST /drivers/{driver_id}/online -----

type goOnlineRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (handler *CourierHTTPHandler) handleGoOnline(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if !handler.requireJSON(ctx, w, r) {
		return
	}
	driverID, ok := handler.requireDriver(ctx, w, r)
	if !ok {
		return
	}

	var req goOnlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := ports.GoOnlineInput{
		DriverID:  driverID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := handler.svc.GoOnline(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /drivers/{driver_id}/offline -----

type goOfflineRequest struct {
	Force bool `json:"force"`
}

func (handler *CourierHTTPHandler) handleGoOffline(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	driverID, ok := handler.requireDriver(ctx, w, r)
	if !ok {
		return
	}

	// Body is optional; absent means force=false.
	var req goOfflineRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	in := ports.GoOfflineInput{
		DriverID: driverID,
		Force:    req.Force,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := handler.svc.GoOffline(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /drivers/{driver_id}/location -----

type updateLocationRequest struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	SpeedKmh       *float64 `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64 `json:"heading_degrees,omitempty"`
}

func (handler *CourierHTTPHandler) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if !handler.requireJSON(ctx, w, r) {
		return
	}
	driverID, ok := handler.requireDriver(ctx, w, r)
	if !ok {
		return
	}

	var req updateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := ports.UpdateLocationInput{
		DriverID:       driverID,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		SpeedKmh:       req.SpeedKmh,
		HeadingDegrees: req.HeadingDegrees,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.UpdateLocation(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: GET /drivers/{driver_id}/active-delivery -----

func (handler *CourierHTTPHandler) handleActiveDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	driverID, ok := handler.requireDriver(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := handler.svc.RefreshActiveDelivery(ctxWithTimeout, driverID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: GET /drivers/{driver_id}/session -----

func (handler *CourierHTTPHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	// Dispatchers and admins may inspect any session; drivers only their own.
	driverID := strings.TrimSpace(r.PathValue("driver_id"))
	if driverID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing driver_id in path", nil)
		return
	}
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}
	if claims.Role.IsDriver() && claims.Subject != driverID {
		handler.httpError(ctx, w, http.StatusForbidden, "driver_id does not match token subject", errors.New("driver/token mismatch"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.Session(ctxWithTimeout, driverID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
