package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nats-io/nats.go"
)

// Event types
const (
	EventLeadCaptured          = "registration.lead_captured"
	EventRegistrationCompleted = "registration.completed"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionPaused    = "subscription.paused"
	EventSubscriptionResumed   = "subscription.resumed"
	EventSubscriptionCanceled  = "subscription.canceled"
	EventPlanChanged           = "subscription.plan_changed"
)

// LeadCapturedEvent is published as soon as identity plus business selection
// produce a partial business record. Downstream marketing and analytics
// consumers act on it even if the flow is later abandoned.
type LeadCapturedEvent struct {
	EventType    string    `json:"event_type"`
	SessionID    string    `json:"session_id"`
	BusinessID   string    `json:"business_id,omitempty"`
	BusinessName string    `json:"business_name"`
	Email        string    `json:"email"`
	Timestamp    time.Time `json:"timestamp"`
}

// SubscriptionEvent is published on every lifecycle transition.
type SubscriptionEvent struct {
	EventType      string    `json:"event_type"`
	BusinessID     string    `json:"business_id"`
	PlanKey        string    `json:"plan_key"`
	PreviousPlan   string    `json:"previous_plan,omitempty"`
	Status         string    `json:"status"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// RegistrationCompletedEvent is published when an onboarding flow finishes
// with an activated subscription.
type RegistrationCompletedEvent struct {
	EventType  string    `json:"event_type"`
	SessionID  string    `json:"session_id"`
	BusinessID string    `json:"business_id"`
	PlanKey    string    `json:"plan_key"`
	Email      string    `json:"email"`
	Timestamp  time.Time `json:"timestamp"`
}

// Client wraps the NATS connection
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Config holds NATS connection configuration
type Config struct {
	URL string
}

// DefaultConfig returns the default NATS configuration
func DefaultConfig() *Config {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	return &Config{
		URL: url,
	}
}

// NewClient creates a new NATS client
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	log.Printf("[NATS] Connecting to %s", cfg.URL)

	opts := []nats.Option{
		nats.Name("registration-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[NATS] Disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Printf("[NATS] Error: %v", err)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// Ensure the registration events stream exists.
	// LimitsPolicy allows multiple consumers (notification, analytics, billing).
	_, err = js.AddStream(&nats.StreamConfig{
		Name:        "REGISTRATION_EVENTS",
		Description: "Stream for registration and subscription lifecycle events",
		Subjects:    []string{"registration.>", "subscription.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      24 * time.Hour * 7,
		MaxMsgs:     100000,
		Discard:     nats.DiscardOld,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		log.Printf("[NATS] Warning: Could not create stream (may already exist): %v", err)
	}

	log.Printf("[NATS] Connected successfully to %s", cfg.URL)

	return &Client{
		conn: conn,
		js:   js,
	}, nil
}

// publishWithRetry publishes with exponential backoff (1s, 2s, 4s).
func (c *Client) publishWithRetry(ctx context.Context, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var ack *nats.PubAck
	maxRetries := 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		ack, err = c.js.Publish(subject, data)
		if err == nil {
			break
		}
		log.Printf("[NATS] Attempt %d/%d: Failed to publish %s event: %v", attempt, maxRetries, subject, err)
		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while retrying publish: %w", ctx.Err())
			case <-time.After(backoff):
				continue
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, err)
	}

	log.Printf("[NATS] Published %s event (seq: %d)", subject, ack.Sequence)
	return nil
}

// PublishLeadCaptured publishes a lead captured event. Lead capture is
// fire-and-forget for the registration flow, so a nil client is a no-op.
func (c *Client) PublishLeadCaptured(ctx context.Context, event *LeadCapturedEvent) error {
	if c == nil || c.js == nil {
		log.Printf("[NATS] Client not initialized, skipping publish")
		return nil
	}

	event.EventType = EventLeadCaptured
	event.Timestamp = time.Now().UTC()
	return c.publishWithRetry(ctx, EventLeadCaptured, event)
}

// PublishRegistrationCompleted publishes a registration completed event
func (c *Client) PublishRegistrationCompleted(ctx context.Context, event *RegistrationCompletedEvent) error {
	if c == nil || c.js == nil {
		log.Printf("[NATS] Client not initialized, skipping publish")
		return nil
	}

	event.EventType = EventRegistrationCompleted
	event.Timestamp = time.Now().UTC()
	return c.publishWithRetry(ctx, EventRegistrationCompleted, event)
}

// PublishSubscriptionEvent publishes a lifecycle transition under the given
// event type (activated, paused, resumed, canceled, plan_changed).
func (c *Client) PublishSubscriptionEvent(ctx context.Context, eventType string, event *SubscriptionEvent) error {
	if c == nil || c.js == nil {
		log.Printf("[NATS] Client not initialized, skipping publish")
		return nil
	}

	event.EventType = eventType
	event.Timestamp = time.Now().UTC()
	return c.publishWithRetry(ctx, eventType, event)
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c != nil && c.conn != nil {
		c.conn.Close()
		log.Printf("[NATS] Connection closed")
	}
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}
