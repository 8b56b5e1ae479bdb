package application

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

const (
	// EventTypeActivationStatusChanged is emitted whenever verification changes an activation status.
	EventTypeActivationStatusChanged = "activation.status_changed"
	// EventTypeActivationFlagsChanged is emitted after a flag mutation commits.
	EventTypeActivationFlagsChanged = "activation.flags_changed"
)

// ActivationStatusChangedEvent is the outbox payload for EventTypeActivationStatusChanged.
type ActivationStatusChangedEvent struct {
	ActivationID  string                  `json:"activation_id"`
	UserID        string                  `json:"user_id"`
	ApplicationID int64                   `json:"application_id"`
	Status        domain.ActivationStatus `json:"status"`
	BlockedReason string                  `json:"blocked_reason,omitempty"`
	OccurredAt    time.Time               `json:"occurred_at"`
}

// ActivationFlagsChangedEvent is the outbox payload for EventTypeActivationFlagsChanged.
type ActivationFlagsChangedEvent struct {
	ActivationID string    `json:"activation_id"`
	Flags        []string  `json:"flags"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func statusChangedEvent(a domain.Activation, now time.Time) ports.OutboxEvent {
	payload, _ := json.Marshal(ActivationStatusChangedEvent{
		ActivationID:  a.ActivationID,
		UserID:        a.UserID,
		ApplicationID: a.ApplicationID,
		Status:        a.Status,
		BlockedReason: a.BlockedReason,
		OccurredAt:    now,
	})
	return ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    EventTypeActivationStatusChanged,
		PartitionKey: a.ActivationID,
		Payload:      payload,
		OccurredAt:   now,
	}
}

func flagsChangedEvent(a domain.Activation, now time.Time) ports.OutboxEvent {
	payload, _ := json.Marshal(ActivationFlagsChangedEvent{
		ActivationID: a.ActivationID,
		Flags:        a.Flags,
		OccurredAt:   now,
	})
	return ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    EventTypeActivationFlagsChanged,
		PartitionKey: a.ActivationID,
		Payload:      payload,
		OccurredAt:   now,
	}
}
