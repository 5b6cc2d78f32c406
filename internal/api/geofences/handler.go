// Package geofences serves geofence CRUD endpoints.
package geofences

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/api/middleware"
	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/tracking"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeInternalError    = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func jsonError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// Service is the geofence use case layer.
type Service interface {
	Create(ctx context.Context, p tracking.GeofenceParams) (*models.Geofence, error)
	Get(ctx context.Context, id string) (*models.Geofence, error)
	List(ctx context.Context, includeInactive bool) ([]*models.Geofence, error)
	Update(ctx context.Context, id string, p tracking.GeofenceParams) (*models.Geofence, error)
	Delete(ctx context.Context, id string) error
}

// Handler handles geofence endpoints.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// NewHandler creates a geofence handler.
func NewHandler(svc Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logging.OrNop(logger)}
}

// List returns active geofences. ?include_inactive=true adds deleted ones.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	includeInactive := false
	if v := r.URL.Query().Get("include_inactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "include_inactive must be a boolean")
			return
		}
		includeInactive = b
	}

	list, err := h.svc.List(r.Context(), includeInactive)
	if err != nil {
		h.fail(w, "list geofences", err)
		return
	}
	if list == nil {
		list = []*models.Geofence{}
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: list})
}

// Create creates a geofence.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var p tracking.GeofenceParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	g, err := h.svc.Create(r.Context(), p)
	if err != nil {
		h.fail(w, "create geofence", err)
		return
	}
	h.logger.Info("geofence created via api",
		zap.String("id", g.ID),
		zap.String("by", middleware.GetSubject(r.Context())),
	)
	writeJSON(w, http.StatusCreated, dataResponse{Data: g})
}

// Get returns one geofence.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get geofence", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: g})
}

// Update changes the supplied fields of a geofence.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var p tracking.GeofenceParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	g, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		h.fail(w, "update geofence", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: g})
}

// Delete soft-deletes a geofence.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete geofence", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var invalid *tracking.InvalidGeofenceParamsError
	switch {
	case errors.As(err, &invalid):
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
	case errors.Is(err, tracking.ErrGeofenceNotFound):
		jsonError(w, http.StatusNotFound, errCodeNotFound, err.Error())
	default:
		h.logger.Error(op, zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
	}
}
