package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/geo"
	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/storage"
)

var (
	ErrGeofenceNotFound      = errors.New("geofence not found")
	ErrInvalidGeofenceParams = errors.New("invalid geofence parameters")
)

// GeofenceNotFoundError reports a missing geofence id.
type GeofenceNotFoundError struct {
	ID string
}

func (e *GeofenceNotFoundError) Error() string {
	return fmt.Sprintf("geofence %q not found", e.ID)
}

func (e *GeofenceNotFoundError) Unwrap() error { return ErrGeofenceNotFound }

// InvalidGeofenceParamsError reports a field that failed validation.
type InvalidGeofenceParamsError struct {
	Field  string
	Reason string
}

func (e *InvalidGeofenceParamsError) Error() string {
	return fmt.Sprintf("invalid geofence %s: %s", e.Field, e.Reason)
}

func (e *InvalidGeofenceParamsError) Unwrap() error { return ErrInvalidGeofenceParams }

// GeofenceParams are the caller-supplied geofence fields. Nil pointers are
// left unchanged on update and required on create.
type GeofenceParams struct {
	Name              *string   `json:"name"`
	CenterLat         *float64  `json:"center_lat"`
	CenterLng         *float64  `json:"center_lng"`
	RadiusMeters      *float64  `json:"radius_meters"`
	Kind              *string   `json:"kind"`
	AssignedEntityIDs *[]string `json:"assigned_entity_ids"`
}

// GeofenceService validates and persists geofences.
type GeofenceService struct {
	repo   storage.GeofenceRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewGeofenceService creates a geofence service.
func NewGeofenceService(repo storage.GeofenceRepository, logger *zap.Logger) *GeofenceService {
	return &GeofenceService{repo: repo, logger: logging.OrNop(logger), now: time.Now}
}

// Create validates p and stores a new active geofence.
func (s *GeofenceService) Create(ctx context.Context, p GeofenceParams) (*models.Geofence, error) {
	required := []struct {
		field   string
		missing bool
	}{
		{"name", p.Name == nil},
		{"center_lat", p.CenterLat == nil},
		{"center_lng", p.CenterLng == nil},
		{"radius_meters", p.RadiusMeters == nil},
		{"kind", p.Kind == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, &InvalidGeofenceParamsError{Field: r.field, Reason: "is required"}
		}
	}

	now := s.now().UTC()
	g := &models.Geofence{
		ID:        uuid.New().String(),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := apply(g, p); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create geofence: %w", err)
	}

	s.logger.Info("geofence created",
		zap.String("id", g.ID),
		zap.String("name", g.Name),
		zap.String("kind", string(g.Kind)),
		zap.Float64("radius_meters", g.RadiusMeters),
	)
	return g, nil
}

// Get returns a geofence by id, active or not.
func (s *GeofenceService) Get(ctx context.Context, id string) (*models.Geofence, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get geofence: %w", err)
	}
	if g == nil {
		return nil, &GeofenceNotFoundError{ID: id}
	}
	return g, nil
}

// List returns active geofences, or all when includeInactive is set.
func (s *GeofenceService) List(ctx context.Context, includeInactive bool) ([]*models.Geofence, error) {
	return s.repo.List(ctx, includeInactive)
}

// Update applies the non-nil fields of p to an active geofence.
func (s *GeofenceService) Update(ctx context.Context, id string, p GeofenceParams) (*models.Geofence, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.Active {
		return nil, &GeofenceNotFoundError{ID: id}
	}
	if err := apply(g, p); err != nil {
		return nil, err
	}
	g.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, g); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &GeofenceNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("update geofence: %w", err)
	}
	s.logger.Info("geofence updated", zap.String("id", g.ID))
	return g, nil
}

// Delete deactivates a geofence. The row is kept.
func (s *GeofenceService) Delete(ctx context.Context, id string) error {
	g, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !g.Active {
		return &GeofenceNotFoundError{ID: id}
	}
	if err := s.repo.SetActive(ctx, id, false, s.now().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &GeofenceNotFoundError{ID: id}
		}
		return fmt.Errorf("delete geofence: %w", err)
	}
	s.logger.Info("geofence deactivated", zap.String("id", id))
	return nil
}

// apply validates the set fields of p and copies them onto g.
func apply(g *models.Geofence, p GeofenceParams) error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return &InvalidGeofenceParamsError{Field: "name", Reason: "must not be empty"}
		}
		g.Name = name
	}
	if p.CenterLat != nil {
		if !geo.ValidLatitude(*p.CenterLat) {
			return &InvalidGeofenceParamsError{Field: "center_lat", Reason: "must be between -90 and 90"}
		}
		g.CenterLat = *p.CenterLat
	}
	if p.CenterLng != nil {
		if !geo.ValidLongitude(*p.CenterLng) {
			return &InvalidGeofenceParamsError{Field: "center_lng", Reason: "must be between -180 and 180"}
		}
		g.CenterLng = *p.CenterLng
	}
	if p.RadiusMeters != nil {
		if !geo.ValidRadius(*p.RadiusMeters) {
			return &InvalidGeofenceParamsError{Field: "radius_meters", Reason: "must be greater than 0"}
		}
		g.RadiusMeters = *p.RadiusMeters
	}
	if p.Kind != nil {
		if !models.ValidGeofenceKind(*p.Kind) {
			return &InvalidGeofenceParamsError{Field: "kind", Reason: "must be restricted, safe or monitoring"}
		}
		g.Kind = models.GeofenceKind(*p.Kind)
	}
	if p.AssignedEntityIDs != nil {
		var ids []string
		for _, id := range *p.AssignedEntityIDs {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		g.AssignedEntity = ids
	}
	return nil
}
