// Package events publishes deployment outcomes to NATS so other
// systems (chat notifiers, dashboards) can react without polling the
// history endpoint. Publishing is best-effort and optional.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Deployment is the wire record published per finished deployment.
type Deployment struct {
	TaskID     string    `json:"task_id"`
	Event      string    `json:"event"`
	Repo       string    `json:"repo"`
	Ref        string    `json:"ref,omitempty"`
	DeployDir  string    `json:"deploy_dir"`
	SourceSHA  string    `json:"source_sha,omitempty"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Publisher delivers deployment records to interested subscribers.
type Publisher interface {
	PublishDeployment(ctx context.Context, dep Deployment) error
	Close()
}

// Noop is the Publisher used when no NATS URL is configured.
type Noop struct{}

func (Noop) PublishDeployment(context.Context, Deployment) error { return nil }
func (Noop) Close()                                              {}

// NATSPublisher publishes deployment records to a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to the NATS server at url and publishes to
// subject.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("dawbrn"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// PublishDeployment sends dep as JSON.
func (p *NATSPublisher) PublishDeployment(_ context.Context, dep Deployment) error {
	data, err := json.Marshal(dep)
	if err != nil {
		return fmt.Errorf("marshal deployment event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish deployment event: %w", err)
	}
	return nil
}

// Close drains the connection so buffered messages are flushed.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
