package domain

import "time"

// AlertType names a risk pattern.
type AlertType string

const (
	AlertThreat         AlertType = "threat"
	AlertViral          AlertType = "viral"
	AlertSentimentShift AlertType = "sentiment_shift"
)

// Alert is an operator-facing record raised by the alert engine.
type Alert struct {
	ID             string
	Type           AlertType
	Severity       ThreatLevel
	Title          string
	Description    string
	GeoUnit        string
	RelatedItemIDs []string
	CreatedAt      time.Time
	IsResolved     bool
	IsAcknowledged bool
	ResolvedAt     *time.Time
	AcknowledgedAt *time.Time
}
