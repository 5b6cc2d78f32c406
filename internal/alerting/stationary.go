package alerting

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

// StationaryDuration returns how long the entity has shown no movement.
// Readings are scanned newest to oldest; the first moving reading bounds the
// duration. Without one, the oldest reading bounds it. Empty history is 0.
func StationaryDuration(readings []*models.LocationReading, now time.Time) time.Duration {
	if len(readings) == 0 {
		return 0
	}

	sorted := make([]*models.LocationReading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	since := sorted[len(sorted)-1].Timestamp
	for _, r := range sorted {
		if r.Moving() {
			since = r.Timestamp
			break
		}
	}

	d := now.Sub(since)
	if d < 0 {
		return 0
	}
	return d
}

// RoundHours converts d to hours rounded to one decimal.
func RoundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*10) / 10
}

// StationaryCandidate returns a stationary alert when the duration exceeds
// threshold, or nil.
func StationaryCandidate(entity *models.Entity, readings []*models.LocationReading, now time.Time, threshold time.Duration) *models.Alert {
	d := StationaryDuration(readings, now)
	if d <= threshold {
		return nil
	}

	latest := readings[0]
	for _, r := range readings[1:] {
		if r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}

	entityID, name := entityLabel(entity, latest)
	hours := RoundHours(d)
	return &models.Alert{
		ID:              uuid.New().String(),
		EntityID:        entityID,
		EntityName:      name,
		Kind:            models.AlertKindStationary,
		Level:           models.LevelMedium,
		Message:         fmt.Sprintf("%s has not moved for %.1f hours", name, hours),
		Location:        latest.Snapshot(),
		StationaryHours: hours,
		CreatedAt:       now.UTC(),
	}
}
