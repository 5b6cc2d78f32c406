// Package checks serves the on-demand periodic check endpoint.
package checks

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/alerting"
	"github.com/good-yellow-bee/tuskguard/internal/logging"
)

// Runner runs one periodic check.
type Runner interface {
	RunOnce(ctx context.Context) (*alerting.Summary, error)
}

// Handler handles check endpoints.
type Handler struct {
	runner Runner
	logger *zap.Logger
}

// NewHandler creates a check handler.
func NewHandler(runner Runner, logger *zap.Logger) *Handler {
	return &Handler{runner: runner, logger: logging.OrNop(logger)}
}

// Run executes a check and returns its summary. A check that could not load
// its inputs responds 503 with the partial summary.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.RunOnce(r.Context())
	status := http.StatusOK
	if err != nil {
		h.logger.Error("on-demand check failed", zap.Error(err))
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": summary})
}
