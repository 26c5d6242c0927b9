package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultSubject prefixes every published subject.
const DefaultSubject = "sagecache.events"

const publishTimeout = 5 * time.Second

// NATSNotifier publishes events to a JetStream stream.
type NATSNotifier struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSNotifier connects to url and makes sure a stream captures subject.>.
func NewNATSNotifier(ctx context.Context, url, subject string) (*NATSNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	conn, err := nats.Connect(url, nats.Name("sagecache"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	n := NewNATSNotifierWithJetStream(js, subject)
	n.conn = conn
	if err := n.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	slog.Info("NATS notifier initialized", "url", url, "subject", n.subject)
	return n, nil
}

// NewNATSNotifierWithJetStream wraps an existing JetStream context.
func NewNATSNotifierWithJetStream(js jetstream.JetStream, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{js: js, subject: subject}
}

func (n *NATSNotifier) streamName() string {
	name := []byte(n.subject)
	for i, c := range name {
		if c == '.' || c == '*' || c == '>' {
			name[i] = '_'
		}
	}
	return string(name)
}

func (n *NATSNotifier) ensureStream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        n.streamName(),
		Description: "sagecache evaluation events",
		Subjects:    []string{n.subject + ".>"},
		MaxAge:      7 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

func (n *NATSNotifier) publish(ctx context.Context, kind string, event any) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := n.subject + "." + kind
	if _, err := n.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}
	slog.Debug("Published evaluation event", "subject", subject)
	return nil
}

// SourceEvaluated publishes to <subject>.source.
func (n *NATSNotifier) SourceEvaluated(ctx context.Context, ev SourceEvaluated) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return n.publish(ctx, "source", ev)
}

// PassCompleted publishes to <subject>.pass.
func (n *NATSNotifier) PassCompleted(ctx context.Context, ev PassCompleted) error {
	if ev.FinishedAt.IsZero() {
		ev.FinishedAt = time.Now()
	}
	return n.publish(ctx, "pass", ev)
}

// Close drains and closes the connection, if this notifier owns one.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	err := n.conn.Drain()
	n.conn.Close()
	return err
}
