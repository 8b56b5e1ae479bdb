package postgres

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
	"gorm.io/gorm"
)

type auditReadRepository struct {
	db *gorm.DB
}

func (r *auditReadRepository) ListHistory(ctx context.Context, query ports.HistoryQuery) ([]domain.ActivationHistoryEntry, error) {
	q := r.db.WithContext(ctx).Where("activation_id = ?", query.ActivationID)
	q = withTimeRange(q, query.From, query.To)

	var rows []activationHistoryModel
	if err := q.Order("timestamp_created DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ActivationHistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainHistory(row))
	}
	return out, nil
}

func (r *auditReadRepository) ListSignatureAudit(ctx context.Context, query ports.SignatureAuditQuery) ([]domain.SignatureAuditRecord, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", query.UserID)
	if query.ApplicationID != 0 {
		q = q.Where("application_id = ?", query.ApplicationID)
	}
	q = withTimeRange(q, query.From, query.To)
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var rows []signatureAuditModel
	if err := q.Order("timestamp_created DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SignatureAuditRecord, 0, len(rows))
	for _, row := range rows {
		record, err := toDomainSignatureAudit(row)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func withTimeRange(q *gorm.DB, from, to time.Time) *gorm.DB {
	if !from.IsZero() {
		q = q.Where("timestamp_created >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("timestamp_created <= ?", to)
	}
	return q
}
