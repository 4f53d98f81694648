package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/MikeSquared-Agency/sentinel/internal/extractor"
)

// Subjects published by the honeypot.
const (
	SubjectSessionCreated = "honeypot.session.created"
	SubjectIntelUpdated   = "honeypot.intel.updated"
	SubjectReportSent     = "honeypot.report.sent"
)

// SessionCreated is emitted when a new counterparty makes first contact.
type SessionCreated struct {
	SessionID string    `json:"session_id"`
	PersonaID string    `json:"persona_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IntelUpdated carries the accumulated intelligence after a merge that added
// at least one new value.
type IntelUpdated struct {
	SessionID    string           `json:"session_id"`
	Turns        int              `json:"turns"`
	Intelligence extractor.Record `json:"intelligence"`
}

// ReportSent records a delivery to the external collector.
type ReportSent struct {
	SessionID string `json:"session_id"`
	Turns     int    `json:"turns"`
	Delivered bool   `json:"delivered"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("sentinel"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish sends data as JSON. Each message carries a fresh Nats-Msg-Id so a
// JetStream stream bound to these subjects can drop redeliveries.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Data = payload
	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers handler for subject; wildcards are allowed.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Close flushes pending publishes before disconnecting.
func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.conn.Close()
	}
}
