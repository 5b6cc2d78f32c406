package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/tuskguard/internal/alerting"
	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/notifier"
	"github.com/good-yellow-bee/tuskguard/internal/storage"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeRaiser struct {
	out        alerting.Outcome
	err        error
	alerts     []*models.Alert
	recipients int
}

func (f *fakeRaiser) Raise(_ context.Context, alert *models.Alert, recipients []*models.Recipient) (alerting.Outcome, error) {
	f.alerts = append(f.alerts, alert)
	f.recipients = len(recipients)
	return f.out, f.err
}

type fakeCooldowns struct {
	key models.CooldownKey
	at  time.Time
	err error
}

func (f *fakeCooldowns) Status(_ context.Context, key models.CooldownKey, now time.Time) (*alerting.CooldownStatus, error) {
	f.key, f.at = key, now
	if f.err != nil {
		return nil, f.err
	}
	return &alerting.CooldownStatus{Key: key.String(), Window: "6h0m0s", RemainingSeconds: 60}, nil
}

func setupStore(t *testing.T) storage.Storage {
	t.Helper()
	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "alerts.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Entities().Create(ctx, &models.Entity{
		ID: "e1", Name: "Raja", Active: true, CreatedAt: fixedNow,
		LastLatitude: 6.05, LastLongitude: 80.1, LastUpdate: fixedNow.Add(-time.Hour), BatteryLevel: 70,
	}); err != nil {
		t.Fatalf("create entity: %v", err)
	}
	if err := store.Recipients().Create(ctx, &models.Recipient{
		ID: "r1", Name: "Wildlife Office", Phone: "+94110000001", SMSEnabled: true, Active: true, CreatedAt: fixedNow,
	}); err != nil {
		t.Fatalf("create recipient: %v", err)
	}
	return store
}

func newTestHandler(store storage.Storage, raiser Raiser, cooldowns CooldownReporter) *Handler {
	h := NewHandler(store, raiser, cooldowns, nil)
	h.now = func() time.Time { return fixedNow }
	return h
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(&dataResponse{Data: v}); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestCreateManual(t *testing.T) {
	store := setupStore(t)
	raiser := &fakeRaiser{out: alerting.Outcome{Admitted: true, Report: &notifier.Report{Succeeded: 1}}}
	h := newTestHandler(store, raiser, &fakeCooldowns{})

	rec := httptest.NewRecorder()
	h.CreateManual(rec, httptest.NewRequest("POST", "/api/v1/alerts",
		strings.NewReader(`{"entity_id":" e1 ","level":"high","message":"  Seen near school "}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ManualResponse
	decodeData(t, rec, &resp)
	if resp.Delivered != 1 {
		t.Errorf("delivered = %d", resp.Delivered)
	}
	if len(raiser.alerts) != 1 || raiser.recipients != 1 {
		t.Fatalf("raised %d alerts to %d recipients", len(raiser.alerts), raiser.recipients)
	}
	a := raiser.alerts[0]
	if a.Kind != models.AlertKindManual || a.Level != models.LevelHigh || a.Message != "Seen near school" {
		t.Errorf("alert = %+v", a)
	}
	if a.EntityName != "Raja" || a.Location.Latitude != 6.05 || a.Location.Battery != 70 {
		t.Errorf("snapshot = %+v name = %q", a.Location, a.EntityName)
	}
	if !a.CreatedAt.Equal(fixedNow) {
		t.Errorf("created at = %v", a.CreatedAt)
	}
}

func TestCreateManual_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		raiser     *fakeRaiser
		wantStatus int
		wantCode   string
	}{
		{"invalid json", `{`, &fakeRaiser{}, http.StatusBadRequest, errCodeBadRequest},
		{"missing entity", `{"message":"x"}`, &fakeRaiser{}, http.StatusBadRequest, errCodeValidationFailed},
		{"blank message", `{"entity_id":"e1","message":"  "}`, &fakeRaiser{}, http.StatusBadRequest, errCodeValidationFailed},
		{"unknown entity", `{"entity_id":"ghost","message":"x"}`, &fakeRaiser{}, http.StatusNotFound, errCodeNotFound},
		{"not stored", `{"entity_id":"e1","message":"x"}`, &fakeRaiser{err: errors.New("disk full")}, http.StatusInternalServerError, errCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(setupStore(t), tt.raiser, &fakeCooldowns{})
			rec := httptest.NewRecorder()
			h.CreateManual(rec, httptest.NewRequest("POST", "/api/v1/alerts", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp errorResponse
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestCreateManual_DeliveryFailureStillCreated(t *testing.T) {
	raiser := &fakeRaiser{
		out: alerting.Outcome{Admitted: true, Report: &notifier.Report{Recipients: 1}},
		err: errors.New("sms gateway down"),
	}
	h := newTestHandler(setupStore(t), raiser, &fakeCooldowns{})
	rec := httptest.NewRecorder()
	h.CreateManual(rec, httptest.NewRequest("POST", "/api/v1/alerts", strings.NewReader(`{"entity_id":"e1","message":"x"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ManualResponse
	decodeData(t, rec, &resp)
	if resp.Delivered != 0 {
		t.Errorf("delivered = %d", resp.Delivered)
	}
}

func TestListAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seeds := []struct{ id, entityID string }{{"a1", "e1"}, {"a2", "e2"}, {"a3", "e2"}}
	for i, sd := range seeds {
		a := &models.Alert{
			ID: sd.id, EntityID: sd.entityID, Kind: models.AlertKindManual,
			Level: models.LevelInfo, Message: "note", CreatedAt: fixedNow.Add(time.Duration(i) * time.Minute),
		}
		if _, err := store.Alerts().CreateIfQuiet(ctx, a, 0); err != nil {
			t.Fatalf("create alert: %v", err)
		}
	}
	h := newTestHandler(store, &fakeRaiser{}, &fakeCooldowns{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantTotal  int64
		wantIDs    []string
	}{
		{"newest first", "", http.StatusOK, 3, []string{"a3", "a2", "a1"}},
		{"by entity", "?entity_id=e2", http.StatusOK, 2, []string{"a3", "a2"}},
		{"entity page two", "?entity_id=e2&per_page=1&page=2", http.StatusOK, 2, []string{"a2"}},
		{"bad page", "?page=0", http.StatusBadRequest, 0, nil},
		{"bad per_page", "?per_page=x", http.StatusBadRequest, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.List(rec, httptest.NewRequest("GET", "/api/v1/alerts"+tt.query, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var page ListResponse
			decodeData(t, rec, &page)
			if page.Total != tt.wantTotal || len(page.Items) != len(tt.wantIDs) {
				t.Fatalf("total %d items %d", page.Total, len(page.Items))
			}
			for i, id := range tt.wantIDs {
				if page.Items[i].ID != id {
					t.Errorf("item %d = %s, want %s", i, page.Items[i].ID, id)
				}
			}
		})
	}

	for id, want := range map[string]int{"a2": http.StatusOK, "missing": http.StatusNotFound} {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		req := httptest.NewRequest("GET", "/api/v1/alerts/"+id, nil)
		rec := httptest.NewRecorder()
		h.Get(rec, req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx)))
		if rec.Code != want {
			t.Errorf("get %s status = %d, want %d", id, rec.Code, want)
		}
	}
}

func TestCooldown(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
		wantKey    models.CooldownKey
	}{
		{
			name:       "geofence key",
			query:      "?entity_id=e1&kind=geofence_violation&geofence_id=gf-1",
			wantStatus: http.StatusOK,
			wantKey:    models.CooldownKey{EntityID: "e1", Kind: models.AlertKindGeofenceViolation, GeofenceID: "gf-1"},
		},
		{"missing entity", "?kind=stationary", nil, http.StatusBadRequest, models.CooldownKey{}},
		{"unknown kind", "?entity_id=e1&kind=stampede", nil, http.StatusBadRequest, models.CooldownKey{}},
		{"lookup failure", "?entity_id=e1&kind=stationary", errors.New("database is locked"), http.StatusInternalServerError, models.CooldownKey{EntityID: "e1", Kind: models.AlertKindStationary}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cd := &fakeCooldowns{err: tt.err}
			h := newTestHandler(setupStore(t), &fakeRaiser{}, cd)
			rec := httptest.NewRecorder()
			h.Cooldown(rec, httptest.NewRequest("GET", "/api/v1/alerts/cooldown"+tt.query, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if cd.key != tt.wantKey {
				t.Errorf("key = %+v, want %+v", cd.key, tt.wantKey)
			}
			if tt.wantStatus == http.StatusOK {
				if !cd.at.Equal(fixedNow) {
					t.Errorf("status asked at %v", cd.at)
				}
				var st alerting.CooldownStatus
				decodeData(t, rec, &st)
				if st.Key != "e1:geofence_violation:gf-1" || st.RemainingSeconds != 60 {
					t.Errorf("status = %+v", st)
				}
			}
		})
	}
}
