package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/domain/user"
	"courier-dispatch/internal/general/jwt"
	"courier-dispatch/internal/general/logger"
	"courier-dispatch/internal/general/websocket"
	"courier-dispatch/internal/ports"
)

// CourierHTTPHandler adapts HTTP requests to the CourierService.
type CourierHTTPHandler struct {
	svc       ports.CourierService
	logger    *logger.Logger
	auth      *jwt.Manager
	websocket *websocket.WebSocket
}

// NewCourierHTTPHandler wires an HTTP handler around the CourierService.
func NewCourierHTTPHandler(
	svc ports.CourierService,
	logger *logger.Logger,
	auth *jwt.Manager,
	ws *websocket.WebSocket,
) *CourierHTTPHandler {
	return &CourierHTTPHandler{svc: svc, logger: logger, auth: auth, websocket: ws}
}

// RegisterRoutes mounts courier endpoints on the provided mux.
func (handler *CourierHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /drivers/{driver_id}/online",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleGoOnline),
	)
	mux.HandleFunc("POST /drivers/{driver_id}/offline",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleGoOffline),
	)
	mux.HandleFunc("POST /drivers/{driver_id}/location",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleUpdateLocation),
	)
	mux.HandleFunc("GET /drivers/{driver_id}/active-delivery",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleActiveDelivery),
	)
	mux.HandleFunc("GET /drivers/{driver_id}/session",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleDispatcher, user.RoleAdmin)(handler.handleSession),
	)

	mux.HandleFunc("POST /deliveries/{delivery_id}/accept",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleAcceptOffer),
	)
	mux.HandleFunc("POST /deliveries/{delivery_id}/decline",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleDeclineOffer),
	)
	mux.HandleFunc("POST /deliveries/{delivery_id}/advance",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleAdvanceStage),
	)
	mux.HandleFunc("POST /deliveries/{delivery_id}/stops/{position}/advance",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleAdvanceStop),
	)
	mux.HandleFunc("GET /deliveries/pending",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDispatcher, user.RoleAdmin)(handler.handlePendingDeliveries),
	)

	// WebSocket authenticates in-band with the first frame
	mux.HandleFunc("GET /ws/driver/{driver_id}", handler.websocket.ConnectDriver)

	mux.HandleFunc("GET /healthz", handler.handleHealth)
	mux.HandleFunc("POST /tokens", handler.handleCreateToken)
}

// ----- general helpers -----

type TokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

// handleCreateToken generates JWT tokens for testing
func (handler *CourierHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	tokenString, claims, err := handler.auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Failed to generate token", err)
		return
	}

	response := TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      req.Role,
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": req.Role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, response)
}

// handleHealth answers liveness probes.
func (handler *CourierHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse takes any type of data and encode it to HTTP response.
func (handler *CourierHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *CourierHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusUnsupportedMediaType {
		action = "unsupported_media_type"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// serviceError maps the coordination error taxonomy to HTTP statuses.
func (handler *CourierHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ports.ErrOfferNotFound), errors.Is(err, delivery.ErrStopNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, ports.ErrNotAssignedToDriver):
		handler.httpError(ctx, w, http.StatusForbidden, err.Error(), err)
	case errors.Is(err, ports.ErrToggleInProgress):
		handler.httpError(ctx, w, http.StatusTooManyRequests, err.Error(), err)
	case errors.Is(err, ports.ErrActiveDelivery),
		errors.Is(err, ports.ErrNoActiveDelivery),
		errors.Is(err, ports.ErrDriverOffline),
		errors.Is(err, ports.ErrBackwardTransition),
		errors.Is(err, ports.ErrInvalidTransition),
		errors.Is(err, ports.ErrOfferNoLongerAvailable),
		errors.Is(err, delivery.ErrTerminal),
		errors.Is(err, delivery.ErrInvalidStopTransition):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, ports.ErrInvalidCoordinates),
		errors.Is(err, delivery.ErrInvalidStatus),
		errors.Is(err, delivery.ErrInvalidStopStatus):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, ports.ErrSessionBusy):
		handler.httpError(ctx, w, http.StatusServiceUnavailable, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		handler.httpError(ctx, w, http.StatusGatewayTimeout, "operation timed out", err)
	default:
		handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

// requireDriver checks path/claims agreement and returns the driver ID.
func (handler *CourierHTTPHandler) requireDriver(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	driverID := strings.TrimSpace(r.PathValue("driver_id"))
	if driverID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing driver_id in path", nil)
		return "", false
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return "", false
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" || sub != driverID {
		handler.httpError(ctx, w, http.StatusForbidden, "driver_id does not match token subject", errors.New("driver/token mismatch"))
		return "", false
	}

	return driverID, true
}

// driverFromToken returns the token subject for delivery-scoped routes.
func (handler *CourierHTTPHandler) driverFromToken(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return "", false
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		handler.httpError(ctx, w, http.StatusUnauthorized, "empty token subject", errors.New("no subject"))
		return "", false
	}
	return sub, true
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *CourierHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// requireJSON enforces the request content type for bodied endpoints.
func (handler *CourierHTTPHandler) requireJSON(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}
	return true
}
