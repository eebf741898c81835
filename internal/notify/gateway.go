// Package notify delivers best-effort push messages to users. Business
// operations enqueue messages and never observe delivery failures.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Result is the outcome of one delivery attempt.
type Result struct {
	Delivered bool
	Detail    string
}

// Gateway sends a single text message to a user.
type Gateway interface {
	Send(ctx context.Context, userID, text string) Result
}

// Notifier is what business services depend on.
type Notifier interface {
	Notify(userID, text string)
}

// Envelope is the JSON payload published for downstream push workers.
type Envelope struct {
	UserID string    `json:"user_id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// NATSGateway publishes envelopes to a NATS subject consumed by the
// messaging-platform bridge.
type NATSGateway struct {
	conn    *nats.Conn
	subject string
}

// NewNATSGateway connects to url.
func NewNATSGateway(url, subject string) (*NATSGateway, error) {
	if subject == "" {
		return nil, errors.New("notify: subject is required")
	}
	nc, err := nats.Connect(url,
		nats.Name("asset-ace-notify"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSGateway{conn: nc, subject: subject}, nil
}

// Send publishes one envelope and flushes so connection errors surface here.
func (g *NATSGateway) Send(ctx context.Context, userID, text string) Result {
	data, err := json.Marshal(Envelope{UserID: userID, Text: text, SentAt: time.Now().UTC()})
	if err != nil {
		return Result{Detail: err.Error()}
	}
	if err := g.conn.Publish(g.subject, data); err != nil {
		return Result{Detail: err.Error()}
	}
	if err := g.conn.FlushWithContext(ctx); err != nil {
		return Result{Detail: err.Error()}
	}
	return Result{Delivered: true}
}

// Close drains the connection.
func (g *NATSGateway) Close() error {
	return g.conn.Drain()
}

// LogGateway writes messages to the log. Used in development.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway(logger *slog.Logger) *LogGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(_ context.Context, userID, text string) Result {
	g.logger.Info("notification", "user_id", userID, "text", text)
	return Result{Delivered: true}
}
