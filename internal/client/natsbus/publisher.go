// Package natsbus starts the remediation playbook by publishing the incident
// to a NATS subject consumed by the playbook runner.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"incident-detector/internal/model"
)

// conn is the subset of *nats.Conn used by Publisher.
type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// Publisher publishes playbook payloads to one subject.
type Publisher struct {
	conn    conn
	close   func()
	subject string
	logger  zerolog.Logger
}

// ParseEndpoint splits nats://host:port/subject into the server URL and the subject.
func ParseEndpoint(endpoint string) (serverURL, subject string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid NATS endpoint: %w", err)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return "", "", fmt.Errorf("invalid NATS endpoint scheme %q", u.Scheme)
	}
	subject = strings.Trim(u.Path, "/")
	if subject == "" || strings.ContainsAny(subject, " /") {
		return "", "", fmt.Errorf("invalid NATS subject %q", subject)
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String(), subject, nil
}

// Dial connects to the server named by endpoint.
func Dial(endpoint string, logger zerolog.Logger) (*Publisher, error) {
	serverURL, subject, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	nc, err := nats.Connect(serverURL, nats.Name("incident-detector"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := newPublisher(nc, subject, logger)
	p.close = func() {
		_ = nc.Drain()
	}
	return p, nil
}

func newPublisher(c conn, subject string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:    c,
		subject: subject,
		logger:  logger.With().Str("component", "nats-playbook").Logger(),
	}
}

// Start publishes payload and waits until the server has received it.
// The incident id is sent as Nats-Msg-Id so JetStream streams drop duplicates.
func (p *Publisher) Start(ctx context.Context, payload model.PlaybookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode playbook payload: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set(nats.MsgIdHdr, payload.IncidentID)

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush publish to %s: %w", p.subject, err)
	}

	p.logger.Info().
		Str("incident_id", payload.IncidentID).
		Str("subject", p.subject).
		Msg("playbook request published")
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
	}
}
