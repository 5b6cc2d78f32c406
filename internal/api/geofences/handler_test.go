package geofences

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/tracking"
)

type fakeService struct {
	fences          map[string]*models.Geofence
	err             error
	includeInactive bool
	lastParams      tracking.GeofenceParams
}

func newFakeService() *fakeService {
	return &fakeService{fences: map[string]*models.Geofence{
		"gf-1": {ID: "gf-1", Name: "Village buffer", Kind: models.GeofenceSafe, RadiusMeters: 500, Active: true},
	}}
}

func (f *fakeService) Create(_ context.Context, p tracking.GeofenceParams) (*models.Geofence, error) {
	f.lastParams = p
	if f.err != nil {
		return nil, f.err
	}
	if p.Name == nil {
		return nil, &tracking.InvalidGeofenceParamsError{Field: "name", Reason: "is required"}
	}
	g := &models.Geofence{ID: "gf-2", Name: *p.Name, Active: true}
	f.fences[g.ID] = g
	return g, nil
}

func (f *fakeService) Get(_ context.Context, id string) (*models.Geofence, error) {
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.fences[id]
	if !ok {
		return nil, tracking.ErrGeofenceNotFound
	}
	return g, nil
}

func (f *fakeService) List(_ context.Context, includeInactive bool) ([]*models.Geofence, error) {
	f.includeInactive = includeInactive
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Geofence
	for _, g := range f.fences {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeService) Update(ctx context.Context, id string, p tracking.GeofenceParams) (*models.Geofence, error) {
	f.lastParams = p
	g, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		g.Name = *p.Name
	}
	return g, nil
}

func (f *fakeService) Delete(ctx context.Context, id string) error {
	g, err := f.Get(ctx, id)
	if err != nil {
		return err
	}
	g.Active = false
	return nil
}

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return resp.Error.Code
}

func TestList(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantFlag   bool
	}{
		{"default", "", http.StatusOK, false},
		{"include inactive", "?include_inactive=true", http.StatusOK, true},
		{"bad flag", "?include_inactive=maybe", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			rec := httptest.NewRecorder()
			NewHandler(svc, nil).List(rec, httptest.NewRequest("GET", "/api/v1/geofences"+tt.query, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if svc.includeInactive != tt.wantFlag {
				t.Errorf("include_inactive = %v", svc.includeInactive)
			}
		})
	}
}

func TestList_EmptyIsArray(t *testing.T) {
	svc := &fakeService{fences: map[string]*models.Geofence{}}
	rec := httptest.NewRecorder()
	NewHandler(svc, nil).List(rec, httptest.NewRequest("GET", "/api/v1/geofences", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"created", `{"name":"Tank edge","center_lat":6.1,"center_lng":80.2,"radius_meters":300,"kind":"restricted"}`, http.StatusCreated, ""},
		{"invalid json", `{"name":`, http.StatusBadRequest, errCodeBadRequest},
		{"validation", `{"center_lat":6.1}`, http.StatusBadRequest, errCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHandler(newFakeService(), nil).Create(rec, httptest.NewRequest("POST", "/api/v1/geofences", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if got := errCode(t, rec); got != tt.wantCode {
					t.Errorf("code = %q, want %q", got, tt.wantCode)
				}
			}
		})
	}
}

func TestGetUpdateDelete(t *testing.T) {
	svc := newFakeService()
	h := NewHandler(svc, nil)

	rec := httptest.NewRecorder()
	h.Get(rec, withID(httptest.NewRequest("GET", "/api/v1/geofences/gf-1", nil), "gf-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Update(rec, withID(httptest.NewRequest("PUT", "/api/v1/geofences/gf-1", strings.NewReader(`{"name":"Renamed"}`)), "gf-1"))
	if rec.Code != http.StatusOK || svc.fences["gf-1"].Name != "Renamed" {
		t.Errorf("update status = %d, name = %q", rec.Code, svc.fences["gf-1"].Name)
	}
	if svc.lastParams.RadiusMeters != nil {
		t.Error("omitted radius should stay nil on update")
	}

	rec = httptest.NewRecorder()
	h.Delete(rec, withID(httptest.NewRequest("DELETE", "/api/v1/geofences/gf-1", nil), "gf-1"))
	if rec.Code != http.StatusNoContent || svc.fences["gf-1"].Active {
		t.Errorf("delete status = %d, active = %v", rec.Code, svc.fences["gf-1"].Active)
	}

	for _, tc := range []struct {
		method string
		call   func(http.ResponseWriter, *http.Request)
	}{
		{"GET", h.Get},
		{"PUT", h.Update},
		{"DELETE", h.Delete},
	} {
		rec = httptest.NewRecorder()
		tc.call(rec, withID(httptest.NewRequest(tc.method, "/api/v1/geofences/missing", strings.NewReader(`{}`)), "missing"))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s missing status = %d", tc.method, rec.Code)
		}
	}
}

func TestServiceFailureIsInternal(t *testing.T) {
	svc := newFakeService()
	svc.err = errors.New("database is locked")

	rec := httptest.NewRecorder()
	NewHandler(svc, nil).Get(rec, withID(httptest.NewRequest("GET", "/api/v1/geofences/gf-1", nil), "gf-1"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := errCode(t, rec); got != errCodeInternalError {
		t.Errorf("code = %q", got)
	}
}
