package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Event types. Every subject lives under tenant.> so one stream carries them all.
const (
	EventTenantCreated         = "tenant.created"
	EventTenantUpdated         = "tenant.updated"
	EventTenantDeactivated     = "tenant.deactivated"
	EventTenantDomainAdded     = "tenant.domain_added"
	EventMembershipCreated     = "tenant.membership.created"
	EventMembershipRoleChanged = "tenant.membership.role_changed"
	EventMembershipDeactivated = "tenant.membership.deactivated"
	EventInvitationCreated     = "tenant.invitation.created"
)

// StreamName is the JetStream stream holding tenant lifecycle events
const StreamName = "TENANT_EVENTS"

// TenantEvent is published when a tenant or one of its domains changes
type TenantEvent struct {
	EventType string    `json:"event_type"`
	TenantID  string    `json:"tenant_id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	IsActive  bool      `json:"is_active"`
	Reason    string    `json:"reason,omitempty"` // e.g., "trial_expired"
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MembershipEvent is published when a membership or invitation changes
type MembershipEvent struct {
	EventType    string    `json:"event_type"`
	TenantID     string    `json:"tenant_id"`
	MembershipID string    `json:"membership_id,omitempty"`
	InvitationID string    `json:"invitation_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Role         string    `json:"role"`
	PreviousRole string    `json:"previous_role,omitempty"`
	ActorID      string    `json:"actor_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// publisher is the slice of JetStream the client publishes through
type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Client wraps the NATS connection
type Client struct {
	conn       *nats.Conn
	js         publisher
	logger     *logrus.Entry
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// Config holds NATS connection configuration
type Config struct {
	URL string
}

// NewClient creates a new NATS client and ensures the tenant events stream exists
func NewClient(cfg Config, logger *logrus.Entry) (*Client, error) {
	logger = logger.WithField("component", "nats")
	logger.WithField("url", cfg.URL).Info("Connecting to NATS")

	// Connect with retry options - production-ready settings
	opts := []nats.Option{
		nats.Name("tenancy-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024), // 8MB buffer for messages during reconnect
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.WithError(err).Error("NATS error")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
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

	_, err = js.AddStream(&nats.StreamConfig{
		Name:        StreamName,
		Description: "Stream for tenant and membership lifecycle events",
		Subjects:    []string{"tenant.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy, // Allow multiple consumers
		MaxAge:      24 * time.Hour * 7,
		MaxMsgs:     100000,
		Discard:     nats.DiscardOld,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		logger.WithError(err).Warn("Could not create stream (may already exist)")
	}

	logger.Info("Connected to NATS")
	return &Client{
		conn:       conn,
		js:         js,
		logger:     logger,
		maxRetries: 3,
		backoff:    exponentialBackoff,
	}, nil
}

// exponentialBackoff returns 1s, 2s, 4s, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * time.Second
}

// PublishTenantEvent publishes a tenant lifecycle event.
// A nil client skips the publish so NATS stays optional.
func (c *Client) PublishTenantEvent(ctx context.Context, event *TenantEvent) error {
	if c == nil || c.js == nil {
		return nil
	}
	event.Timestamp = time.Now().UTC()
	return c.publish(ctx, event.EventType, event, logrus.Fields{"tenant_id": event.TenantID})
}

// PublishMembershipEvent publishes a membership or invitation event
func (c *Client) PublishMembershipEvent(ctx context.Context, event *MembershipEvent) error {
	if c == nil || c.js == nil {
		return nil
	}
	event.Timestamp = time.Now().UTC()
	return c.publish(ctx, event.EventType, event, logrus.Fields{
		"tenant_id": event.TenantID,
		"user_id":   event.UserID,
	})
}

// publish sends one JetStream message with retry and exponential backoff
func (c *Client) publish(ctx context.Context, subject string, event interface{}, fields logrus.Fields) error {
	if subject == "" {
		return fmt.Errorf("event type is required")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var ack *nats.PubAck
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		ack, err = c.js.Publish(subject, data)
		if err == nil {
			break
		}
		c.logger.WithFields(fields).WithError(err).
			Warnf("Attempt %d/%d: failed to publish %s event", attempt, c.maxRetries, subject)
		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while retrying publish: %w", ctx.Err())
			case <-time.After(c.backoff(attempt)):
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to publish event after %d attempts: %w", c.maxRetries, err)
	}

	c.logger.WithFields(fields).WithField("seq", ack.Sequence).Debugf("Published %s event", subject)
	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c != nil && c.conn != nil {
		c.conn.Close()
	}
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}
