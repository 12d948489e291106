package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// NATS JETSTREAM FORWARDER
// ══════════════════════════════════════════════════════════════════════════════

const (
	// StreamName is the JetStream stream holding social events.
	StreamName = "SOCIAL"
	// SubjectPrefix prefixes every forwarded subject.
	SubjectPrefix = "social."
	// SubjectPattern matches every forwarded subject.
	SubjectPattern = SubjectPrefix + ">"
)

// JetStreamPublisher is the part of jetstream.JetStream the forwarder uses.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NatsForwarder republishes domain events to JetStream as JSON envelopes.
// Subscribe its Handle with EventBus.SubscribeAll.
type NatsForwarder struct {
	js         JetStreamPublisher
	breaker    *circuitbreaker.CircuitBreaker
	instanceID string
	timeout    time.Duration
	newID      func() string
	logger     *slog.Logger
}

// NatsForwarderConfig configures a NatsForwarder.
type NatsForwarderConfig struct {
	// PublishTimeout bounds one publish including the server ack.
	PublishTimeout time.Duration
	// Breaker stops publishing while the server is unreachable. Optional.
	Breaker *circuitbreaker.CircuitBreaker
	Logger  *slog.Logger
}

// NewNatsForwarder wraps an existing JetStream context.
func NewNatsForwarder(js JetStreamPublisher, config NatsForwarderConfig) *NatsForwarder {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	return &NatsForwarder{
		js:         js,
		breaker:    config.Breaker,
		instanceID: uuid.NewString(),
		timeout:    config.PublishTimeout,
		newID:      uuid.NewString,
		logger:     config.Logger.With("component", "nats_forwarder"),
	}
}

// ConnectJetStream dials NATS and makes sure the SOCIAL stream exists.
// The stream update is idempotent.
func ConnectJetStream(ctx context.Context, url string, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPattern},
		Storage:  jetstream.FileStorage,
		Replicas: 1,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create stream: %w", err)
	}
	return nc, js, nil
}

// Subject maps an event type to its JetStream subject.
func Subject(eventType shared.EventType) string {
	return SubjectPrefix + strings.TrimPrefix(string(eventType), SubjectPrefix)
}

// forwardedEnvelope is the JSON body of a forwarded message.
type forwardedEnvelope struct {
	shared.EventEnvelope
	Source string `json:"source"`
}

// Handle publishes one event. It implements shared.EventHandler.
func (f *NatsForwarder) Handle(event shared.Event) error {
	env, err := shared.NewEventEnvelope(f.newID(), event)
	if err != nil {
		return fmt.Errorf("build envelope: %w", err)
	}
	data, err := json.Marshal(forwardedEnvelope{EventEnvelope: env, Source: f.instanceID})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := Subject(event.EventType())
	publish := func(ctx context.Context) error {
		_, err := f.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.ID))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if f.breaker != nil {
		err = f.breaker.Execute(ctx, publish)
	} else {
		err = publish(ctx)
	}
	if err != nil {
		f.logger.Warn("failed to forward event", "subject", subject, "error", err)
		return shared.WrapError("messaging", "Forward", shared.ErrExternalService, "event forwarding failed", err)
	}
	return nil
}
