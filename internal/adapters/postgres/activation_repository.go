package postgres

import (
	"context"
	"fmt"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type activationRepository struct {
	db *gorm.DB
}

// WithLock holds SELECT ... FOR UPDATE on the activation row for the lifetime of fn.
// The transaction commits only when fn returns nil.
func (r *activationRepository) WithLock(ctx context.Context, activationID string, fn ports.LockedActivationFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row activationModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("activation_id = ?", activationID).
			Take(&row).Error; err != nil {
			if isNotFound(err) {
				return domain.ErrActivationNotFound
			}
			return err
		}
		activation, err := toDomainActivation(row)
		if err != nil {
			return err
		}
		return fn(ctx, activation, &activationTx{tx: tx})
	})
}

func (r *activationRepository) FindWithoutLock(ctx context.Context, activationID string) (domain.Activation, error) {
	var row activationModel
	if err := r.db.WithContext(ctx).Where("activation_id = ?", activationID).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.Activation{}, domain.ErrActivationNotFound
		}
		return domain.Activation{}, err
	}
	return toDomainActivation(row)
}

// activationTx writes through the transaction that holds the row lock.
type activationTx struct {
	tx *gorm.DB
}

func (t *activationTx) Save(ctx context.Context, activation domain.Activation) error {
	updates, err := activationUpdates(activation)
	if err != nil {
		return fmt.Errorf("encode activation: %w", err)
	}
	res := t.tx.WithContext(ctx).
		Model(&activationModel{}).
		Where("activation_id = ?", activation.ActivationID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrActivationNotFound
	}
	return nil
}

func (t *activationTx) AppendHistory(ctx context.Context, entry domain.ActivationHistoryEntry) error {
	rec := toHistoryModel(entry)
	return t.tx.WithContext(ctx).Create(&rec).Error
}

func (t *activationTx) AppendSignatureAudit(ctx context.Context, record domain.SignatureAuditRecord) error {
	rec, err := toSignatureAuditModel(record)
	if err != nil {
		return err
	}
	return t.tx.WithContext(ctx).Create(&rec).Error
}

func (t *activationTx) EnqueueOutbox(ctx context.Context, event ports.OutboxEvent) error {
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	rec := activationOutboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      string(payload),
		CreatedAt:    event.OccurredAt,
	}
	return t.tx.WithContext(ctx).Create(&rec).Error
}
