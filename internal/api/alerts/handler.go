// Package alerts serves alert history and manual alert endpoints.
package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/alerting"
	"github.com/good-yellow-bee/tuskguard/internal/api/middleware"
	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/storage"
)

// Response helpers
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

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func jsonError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// ListResponse is one page of alerts, newest first.
type ListResponse struct {
	Items      []*models.Alert `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
}

// ManualRequest raises an operator alert for an entity.
type ManualRequest struct {
	EntityID string `json:"entity_id"`
	Level    string `json:"level"`
	Message  string `json:"message"`
}

// ManualResponse reports a manual alert and its delivery.
type ManualResponse struct {
	Alert     *models.Alert `json:"alert"`
	Delivered int           `json:"delivered"`
}

// Raiser gates and dispatches alerts.
type Raiser interface {
	Raise(ctx context.Context, alert *models.Alert, recipients []*models.Recipient) (alerting.Outcome, error)
}

// CooldownReporter reports the cooldown state of an alert key.
type CooldownReporter interface {
	Status(ctx context.Context, key models.CooldownKey, now time.Time) (*alerting.CooldownStatus, error)
}

// Handler handles alert endpoints.
type Handler struct {
	storage   storage.Storage
	raiser    Raiser
	cooldowns CooldownReporter
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandler creates an alert handler.
func NewHandler(store storage.Storage, raiser Raiser, cooldowns CooldownReporter, logger *zap.Logger) *Handler {
	return &Handler{
		storage:   store,
		raiser:    raiser,
		cooldowns: cooldowns,
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
}

// List returns alerts newest first. Query: page (1-based), per_page, entity_id.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 1)
	if err != nil || page < 1 {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "page must be a positive integer")
		return
	}
	perPage, err := intParam(r, "per_page", defaultPerPage)
	if err != nil || perPage < 1 {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "per_page must be a positive integer")
		return
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	items, total, err := h.storage.Alerts().List(r.Context(), storage.AlertFilter{
		EntityID: strings.TrimSpace(r.URL.Query().Get("entity_id")),
		Limit:    perPage,
		Offset:   (page - 1) * perPage,
	})
	if err != nil {
		h.logger.Error("list alerts", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if items == nil {
		items = []*models.Alert{}
	}

	writeJSON(w, http.StatusOK, dataResponse{Data: ListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: int((total + int64(perPage) - 1) / int64(perPage)),
	}})
}

// Get returns one alert.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.storage.Alerts().GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("get alert", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if a == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: a})
}

// Cooldown reports how long alerts for a key stay suppressed.
// Query: entity_id, kind, geofence_id (geofence_violation only).
func (h *Handler) Cooldown(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityID := strings.TrimSpace(q.Get("entity_id"))
	if entityID == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "entity_id is required")
		return
	}
	kind, err := models.ParseAlertKind(q.Get("kind"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	key := models.CooldownKey{EntityID: entityID, Kind: kind, GeofenceID: strings.TrimSpace(q.Get("geofence_id"))}
	st, err := h.cooldowns.Status(r.Context(), key, h.now().UTC())
	if err != nil {
		h.logger.Error("cooldown status", zap.String("key", key.String()), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: st})
}

// CreateManual raises a manual alert at the entity's last known position
// and dispatches it to all active recipients.
func (h *Handler) CreateManual(w http.ResponseWriter, r *http.Request) {
	var req ManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	req.EntityID = strings.TrimSpace(req.EntityID)
	req.Message = strings.TrimSpace(req.Message)
	if req.EntityID == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "entity_id is required")
		return
	}
	if req.Message == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "message is required")
		return
	}
	level := models.LevelInfo
	if req.Level != "" {
		level = models.ParseLevel(req.Level)
	}

	ctx := r.Context()
	entity, err := h.storage.Entities().GetByID(ctx, req.EntityID)
	if err != nil {
		h.logger.Error("manual alert: get entity", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if entity == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "entity not found")
		return
	}

	recipients, err := h.storage.Recipients().ListActive(ctx)
	if err != nil {
		h.logger.Error("manual alert: list recipients", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	alert := &models.Alert{
		ID:         uuid.New().String(),
		EntityID:   entity.ID,
		EntityName: entity.Name,
		Kind:       models.AlertKindManual,
		Level:      level,
		Message:    req.Message,
		Location: models.Snapshot{
			Latitude:  entity.LastLatitude,
			Longitude: entity.LastLongitude,
			Timestamp: entity.LastUpdate,
			Battery:   entity.BatteryLevel,
		},
		CreatedAt: h.now().UTC(),
	}

	out, err := h.raiser.Raise(ctx, alert, recipients)
	if !out.Admitted {
		h.logger.Error("manual alert not stored", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if err != nil {
		h.logger.Warn("manual alert delivery incomplete", zap.String("alert_id", alert.ID), zap.Error(err))
	}

	delivered := 0
	if out.Report != nil {
		delivered = out.Report.Succeeded
	}
	h.logger.Info("manual alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("entity_id", alert.EntityID),
		zap.String("by", middleware.GetSubject(ctx)),
		zap.Int("delivered", delivered),
	)
	writeJSON(w, http.StatusCreated, dataResponse{Data: ManualResponse{Alert: alert, Delivered: delivered}})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
