// Package natsbus streams raised alerts as JSON events over NATS.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/ports"
)

const defaultPrefix = "electionwatch.alerts"

type publisher interface {
	Publish(subject string, data []byte) error
}

// Publisher implements ports.Notifier on a NATS connection.
type Publisher struct {
	conn   publisher
	nc     *nats.Conn
	prefix string
}

var _ ports.Notifier = (*Publisher)(nil)

// Connect dials the server; Close drains the connection.
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("electionwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := newPublisher(nc, prefix)
	p.nc = nc
	return p, nil
}

func newPublisher(conn publisher, prefix string) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Subject is "<prefix>.<severity>" so consumers can subscribe to
// "<prefix>.critical" or "<prefix>.>".
func (p *Publisher) Subject(alert domain.Alert) string {
	severity := string(alert.Severity)
	if severity == "" {
		severity = string(domain.ThreatLow)
	}
	return p.prefix + "." + severity
}

type event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	GeoUnit        string    `json:"geoUnit,omitempty"`
	RelatedItemIDs []string  `json:"relatedItemIds"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PublishAlert marshals and publishes the alert.
func (p *Publisher) PublishAlert(ctx context.Context, alert domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event{
		ID:             alert.ID,
		Type:           string(alert.Type),
		Severity:       string(alert.Severity),
		Title:          alert.Title,
		Description:    alert.Description,
		GeoUnit:        alert.GeoUnit,
		RelatedItemIDs: alert.RelatedItemIDs,
		CreatedAt:      alert.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(alert), data); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close flushes pending events and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
