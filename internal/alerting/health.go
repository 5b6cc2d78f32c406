package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

// criticalBatteryPercent raises health alerts to high severity.
const criticalBatteryPercent = 5

// HealthCandidate returns a collar_health alert when the reading reports a
// low battery or weak signal, or nil.
func HealthCandidate(entity *models.Entity, reading *models.LocationReading, now time.Time) *models.Alert {
	if reading == nil {
		return nil
	}

	var issues []string
	if reading.LowBattery() {
		issues = append(issues, fmt.Sprintf("battery at %d%%", reading.BatteryLevel))
	}
	if reading.WeakSignal() {
		issues = append(issues, fmt.Sprintf("signal at %d dBm", reading.SignalStrength))
	}
	if len(issues) == 0 {
		return nil
	}

	level := models.LevelWarning
	if reading.BatteryLevel < criticalBatteryPercent {
		level = models.LevelHigh
	}

	entityID, name := entityLabel(entity, reading)
	return &models.Alert{
		ID:         uuid.New().String(),
		EntityID:   entityID,
		EntityName: name,
		Kind:       models.AlertKindCollarHealth,
		Level:      level,
		Message:    fmt.Sprintf("Collar %s on %s needs attention: %s", reading.DeviceID, name, strings.Join(issues, ", ")),
		Location:   reading.Snapshot(),
		CreatedAt:  now.UTC(),
	}
}
