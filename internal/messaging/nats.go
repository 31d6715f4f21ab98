// Package messaging carries the matcher's NATS traffic: the request/reply
// subject clients submit events on and the announcements of planned events
// that the chat system listens for.
package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/huddle/matchmaker/internal/logging"
)

const (
	SubjectEventsRequest  = "events.request"
	SubjectPlannedCreated = "planned.created" // .<planned_event_id>

	// QueueMatcher spreads requests over every running matcher.
	QueueMatcher = "matcher"
)

// NATSConfig configures the connection.
type NATSConfig struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int // -1 retries forever
}

// DefaultNATSConfig points at a local server and reconnects forever.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "huddle-matcher",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NATSClient owns one connection and the subscriptions made through it.
type NATSClient struct {
	conn *nats.Conn
	log  zerolog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATSClient dials cfg.URL. Only the first connect can fail; later
// outages are retried per cfg and logged.
func NewNATSClient(cfg NATSConfig) (*NATSClient, error) {
	log := logging.New("nats")

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("lost connection")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("connection restored")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info().Msg("connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("messaging: connect %s: %w", cfg.URL, err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Str("name", cfg.Name).Msg("connected")
	return &NATSClient{conn: nc, log: log}, nil
}

// Publish sends data on subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("messaging: publish %s: %w", subject, err)
	}
	return nil
}

// Request sends data on subject and waits up to timeout for one reply.
func (c *NATSClient) Request(subject string, data []byte, timeout time.Duration) ([]byte, error) {
	msg, err := c.conn.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("messaging: request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// Subscribe delivers every message on subject to handler until Close.
func (c *NATSClient) Subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("messaging: subscribe %s: %w", subject, err)
	}
	c.keep(sub)
	return nil
}

// SubscribeEventsRequest serves events.request as a member of QueueMatcher.
// Whatever handler returns is sent back to the requester.
func (c *NATSClient) SubscribeEventsRequest(handler func(data []byte) []byte) error {
	sub, err := c.conn.QueueSubscribe(SubjectEventsRequest, QueueMatcher, func(msg *nats.Msg) {
		reply := handler(msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			c.log.Error().Err(err).Str("subject", msg.Subject).Msg("reply")
		}
	})
	if err != nil {
		return fmt.Errorf("messaging: subscribe %s: %w", SubjectEventsRequest, err)
	}
	c.keep(sub)
	return nil
}

// PublishPlannedCreated announces a committed planned event.
func (c *NATSClient) PublishPlannedCreated(plannedID string, data []byte) error {
	return c.Publish(SubjectPlannedCreated+"."+plannedID, data)
}

// SubscribePlannedCreated receives announcements for every planned event.
func (c *NATSClient) SubscribePlannedCreated(handler func(data []byte)) error {
	return c.Subscribe(SubjectPlannedCreated+".*", handler)
}

// Close lets in-flight messages finish, then closes the connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			c.log.Warn().Err(err).Str("subject", sub.Subject).Msg("drain subscription")
		}
	}
	if err := c.conn.Drain(); err != nil {
		c.log.Warn().Err(err).Msg("drain connection")
	}
}

func (c *NATSClient) keep(sub *nats.Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}
