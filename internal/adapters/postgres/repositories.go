package postgres

import (
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Activations         ports.ActivationRepository
	ApplicationVersions ports.ApplicationVersionRepository
	AuditReads          ports.AuditReadRepository
	Outbox              ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Activations:         &activationRepository{db: db},
		ApplicationVersions: &applicationVersionRepository{db: db},
		AuditReads:          &auditReadRepository{db: db},
		Outbox:              &outboxRepository{db: db},
	}
}
