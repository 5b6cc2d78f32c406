// Package gps serves the collar telemetry ingestion endpoint.
package gps

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/ingest"
	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/tracking"
)

// ProviderHeader declares the payload's provider explicitly.
const ProviderHeader = "X-GPS-Provider"

// MaxBodyBytes bounds one payload.
const MaxBodyBytes = 1 << 20

const (
	errCodeInvalidCoordinate = "INVALID_COORDINATE"
	errCodeUnknownDevice     = "UNKNOWN_DEVICE"
	errCodeMalformedPayload  = "MALFORMED_PAYLOAD"
	errCodeInternalError     = "INTERNAL_ERROR"
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

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func jsonError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// Ingester stores one payload.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte, declared, transport string) (*tracking.IngestResult, error)
}

// IngestResponse echoes the stored reading.
type IngestResponse struct {
	Status    string                  `json:"status"`
	Reading   *models.LocationReading `json:"reading"`
	Detection string                  `json:"detection"`
	Alerts    []AlertSummary          `json:"alerts"`
}

// AlertSummary identifies an alert raised by the reading.
type AlertSummary struct {
	ID    string           `json:"id"`
	Kind  models.AlertKind `json:"kind"`
	Level models.Level     `json:"level"`
}

// Handler handles GPS ingestion.
type Handler struct {
	ingester Ingester
	logger   *zap.Logger
}

// NewHandler creates a GPS handler.
func NewHandler(ingester Ingester, logger *zap.Logger) *Handler {
	return &Handler{ingester: ingester, logger: logging.OrNop(logger)}
}

// Ingest accepts one provider payload. The provider is taken from the
// {provider} path segment, then the X-GPS-Provider header, then the payload.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	declared := strings.TrimSpace(chi.URLParam(r, "provider"))
	if declared == "" {
		declared = strings.TrimSpace(r.Header.Get(ProviderHeader))
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, errCodeMalformedPayload, "payload too large")
			return
		}
		jsonError(w, http.StatusBadRequest, errCodeMalformedPayload, "unable to read request body")
		return
	}

	res, err := h.ingester.Ingest(r.Context(), body, declared, tracking.TransportHTTP)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	resp := IngestResponse{
		Status:    "stored",
		Reading:   res.Reading,
		Detection: res.Detection,
		Alerts:    make([]AlertSummary, 0, len(res.Alerts)),
	}
	for _, a := range res.Alerts {
		resp.Alerts = append(resp.Alerts, AlertSummary{ID: a.ID, Kind: a.Kind, Level: a.Level})
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: resp})
}

func (h *Handler) writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidCoordinate):
		jsonError(w, http.StatusBadRequest, errCodeInvalidCoordinate, err.Error())
	case errors.Is(err, ingest.ErrUnknownDevice):
		jsonError(w, http.StatusUnprocessableEntity, errCodeUnknownDevice, err.Error())
	case errors.Is(err, ingest.ErrMalformedPayload):
		jsonError(w, http.StatusBadRequest, errCodeMalformedPayload, err.Error())
	default:
		h.logger.Error("gps ingest failed", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
	}
}
