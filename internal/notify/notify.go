package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/governor/internal/models"
)

// Kind groups notifications by the entity that changed.
type Kind string

const (
	KindDecisionEvent Kind = "decision_event"
	KindMeeting       Kind = "meeting"
	KindHierarchy     Kind = "hierarchy"
)

// Notification is emitted after a change commits. Delivery is best effort.
type Notification struct {
	ID         uuid.UUID             `json:"id"`
	Kind       Kind                  `json:"kind"`
	OrgID      uuid.UUID             `json:"org_id"`
	CircleID   uuid.UUID             `json:"circle_id"`
	ProposalID uuid.UUID             `json:"proposal_id,omitzero"`
	MeetingID  uuid.UUID             `json:"meeting_id,omitzero"`
	Event      *models.DecisionEvent `json:"event,omitempty"`
	Summary    string                `json:"summary"`
	At         time.Time             `json:"at"`
}

// Subject returns the routing key used by sinks: prefix.kind.org.
func (n Notification) Subject(prefix string) string {
	return prefix + "." + string(n.Kind) + "." + n.OrgID.String()
}

func (n Notification) encode() ([]byte, error) {
	return json.Marshal(n)
}

// Publisher accepts notifications without blocking the caller.
type Publisher interface {
	Publish(ctx context.Context, n Notification)
}

// NopPublisher discards notifications.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Notification) {}

// Sink delivers a batch of notifications to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, batch []Notification) error
}
