package checks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/good-yellow-bee/tuskguard/internal/alerting"
)

type fakeRunner struct {
	summary *alerting.Summary
	err     error
	calls   int
}

func (f *fakeRunner) RunOnce(context.Context) (*alerting.Summary, error) {
	f.calls++
	return f.summary, f.err
}

func TestRun(t *testing.T) {
	tests := []struct {
		name       string
		runner     *fakeRunner
		wantStatus int
		wantErrors int
	}{
		{
			name:       "ok",
			runner:     &fakeRunner{summary: &alerting.Summary{EntitiesChecked: 3, AlertsGenerated: 1, Errors: []string{}}},
			wantStatus: http.StatusOK,
		},
		{
			name: "inputs unavailable",
			runner: &fakeRunner{
				summary: &alerting.Summary{Errors: []string{"list entities: database is locked"}},
				err:     errors.New("list entities: database is locked"),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantErrors: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHandler(tt.runner, nil).Run(rec, httptest.NewRequest("POST", "/api/v1/checks", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.runner.calls != 1 {
				t.Errorf("RunOnce called %d times", tt.runner.calls)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q", ct)
			}
			var resp struct {
				Data alerting.Summary `json:"data"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Data.EntitiesChecked != tt.runner.summary.EntitiesChecked || len(resp.Data.Errors) != tt.wantErrors {
				t.Errorf("summary = %+v", resp.Data)
			}
		})
	}
}
