package notifier

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// smsMaxLen is the longest SMS body we send; longer texts are truncated.
const smsMaxLen = 320

// Templates holds parsed notification templates.
type Templates struct {
	html  *htmltemplate.Template
	plain *texttemplate.Template
	sms   *texttemplate.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	AlertID         string
	Title           string
	Kind            string
	KindLabel       string
	Level           string
	LevelColor      string
	Message         string
	EntityID        string
	EntityName      string
	GeofenceName    string
	Distance        string
	StationaryHours float64
	Latitude        float64
	Longitude       float64
	Battery         int
	FixTime         string
	ShortTime       string
	CreatedAt       string
	MapURL          string
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
	SMS     string
}

// LoadTemplates loads embedded notification templates.
func LoadTemplates() (*Templates, error) {
	htmlTmpl, err := htmltemplate.New("alert.html").
		Funcs(htmltemplate.FuncMap{"upper": strings.ToUpper}).
		ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	textFuncs := texttemplate.FuncMap{"upper": strings.ToUpper}
	plainTmpl, err := texttemplate.New("alert.txt").Funcs(textFuncs).ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}
	smsTmpl, err := texttemplate.New("sms.txt").Funcs(textFuncs).ParseFS(templateFS, "templates/sms.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
		sms:   smsTmpl,
	}, nil
}

// Render renders every channel's form of the alert.
func (t *Templates) Render(alert *models.Alert) (*Message, error) {
	data := AlertToTemplateData(alert)

	var html, plain, sms bytes.Buffer
	if err := t.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	if err := t.plain.Execute(&plain, data); err != nil {
		return nil, fmt.Errorf("render plain: %w", err)
	}
	if err := t.sms.Execute(&sms, data); err != nil {
		return nil, fmt.Errorf("render sms: %w", err)
	}

	return &Message{
		Subject: fmt.Sprintf("[%s] %s", strings.ToUpper(data.Level), data.Title),
		Text:    plain.String(),
		HTML:    html.String(),
		SMS:     truncate(strings.TrimSpace(sms.String()), smsMaxLen),
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// levelColor returns the color for an alert level.
func levelColor(level models.Level) string {
	switch level {
	case models.LevelCritical:
		return "#d32f2f" // red
	case models.LevelHigh:
		return "#f57c00" // orange
	case models.LevelMedium, models.LevelWarning:
		return "#fbc02d" // yellow
	case models.LevelLow:
		return "#388e3c" // green
	default:
		return "#757575" // gray
	}
}

func kindLabel(kind models.AlertKind) string {
	switch kind {
	case models.AlertKindGeofenceViolation:
		return "Geofence violation"
	case models.AlertKindStationary:
		return "Stationary animal"
	case models.AlertKindCollarHealth:
		return "Collar health"
	case models.AlertKindManual:
		return "Manual alert"
	default:
		return string(kind)
	}
}

// AlertToTemplateData converts an alert to template data.
func AlertToTemplateData(alert *models.Alert) TemplateData {
	name := alert.EntityName
	if name == "" {
		name = alert.EntityID
	}

	data := TemplateData{
		AlertID:         alert.ID,
		Title:           fmt.Sprintf("%s: %s", kindLabel(alert.Kind), name),
		Kind:            string(alert.Kind),
		KindLabel:       kindLabel(alert.Kind),
		Level:           string(alert.Level),
		LevelColor:      levelColor(alert.Level),
		Message:         alert.Message,
		EntityID:        alert.EntityID,
		EntityName:      name,
		GeofenceName:    alert.GeofenceName,
		StationaryHours: alert.StationaryHours,
		Latitude:        alert.Location.Latitude,
		Longitude:       alert.Location.Longitude,
		Battery:         alert.Location.Battery,
		CreatedAt:       alert.CreatedAt.Format("2006-01-02 15:04:05 MST"),
		MapURL: fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f#map=15/%.6f/%.6f",
			alert.Location.Latitude, alert.Location.Longitude, alert.Location.Latitude, alert.Location.Longitude),
	}
	if alert.GeofenceID != "" {
		data.Distance = fmt.Sprintf("%.0f m", alert.DistanceMeters)
	}
	if !alert.Location.Timestamp.IsZero() {
		data.FixTime = alert.Location.Timestamp.Format("2006-01-02 15:04:05 MST")
		data.ShortTime = alert.Location.Timestamp.Format("Jan 2 15:04 MST")
	}

	return data
}
