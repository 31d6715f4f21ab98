package matching

import (
	"encoding/json"
	"fmt"

	"github.com/huddle/matchmaker/internal/event"
	"github.com/huddle/matchmaker/internal/messaging"
)

// NATSPublisher announces planned events on planned.created.<id>, where the
// chat system picks them up to open a group conversation.
type NATSPublisher struct {
	nats *messaging.NATSClient
}

// NewNATSPublisher creates a publisher on the given client.
func NewNATSPublisher(nats *messaging.NATSClient) *NATSPublisher {
	return &NATSPublisher{nats: nats}
}

// PublishPlanned implements Publisher.
func (p *NATSPublisher) PublishPlanned(ev *event.PlannedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("matching: marshal planned event %s: %w", ev.ID, err)
	}
	if err := p.nats.PublishPlannedCreated(ev.ID, data); err != nil {
		return fmt.Errorf("matching: publish planned.created for %s: %w", ev.ID, err)
	}
	return nil
}
