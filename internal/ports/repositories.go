package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

// ActivationTx is the write side available while an activation row lock is held.
// Everything written through it commits or rolls back together.
type ActivationTx interface {
	Save(ctx context.Context, activation domain.Activation) error
	AppendHistory(ctx context.Context, entry domain.ActivationHistoryEntry) error
	AppendSignatureAudit(ctx context.Context, record domain.SignatureAuditRecord) error
	EnqueueOutbox(ctx context.Context, event OutboxEvent) error
}

// LockedActivationFunc runs while the activation is exclusively locked.
// Returning an error rolls back every write made through tx.
type LockedActivationFunc func(ctx context.Context, activation domain.Activation, tx ActivationTx) error

// ActivationRepository owns activation loading and locking.
type ActivationRepository interface {
	// WithLock returns domain.ErrActivationNotFound without calling fn when the row does not exist.
	WithLock(ctx context.Context, activationID string, fn LockedActivationFunc) error
	FindWithoutLock(ctx context.Context, activationID string) (domain.Activation, error)
}

// ApplicationVersionRepository is read-only.
type ApplicationVersionRepository interface {
	// FindByKey reports found=false with a nil error for an unknown key.
	FindByKey(ctx context.Context, applicationKey string) (domain.ApplicationVersion, bool, error)
}

// HistoryQuery bounds an activation history read.
type HistoryQuery struct {
	ActivationID string
	From         time.Time
	To           time.Time
}

// SignatureAuditQuery bounds a signature audit read. ApplicationID zero means any application.
type SignatureAuditQuery struct {
	UserID        string
	ApplicationID int64
	From          time.Time
	To            time.Time
	Limit         int
}

// AuditReadRepository serves the read-only history and audit listings.
type AuditReadRepository interface {
	ListHistory(ctx context.Context, query HistoryQuery) ([]domain.ActivationHistoryEntry, error)
	ListSignatureAudit(ctx context.Context, query SignatureAuditQuery) ([]domain.SignatureAuditRecord, error)
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls the publish-retry workflow for activation events.
type OutboxRepository interface {
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
