package postgres

import (
	"context"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"gorm.io/gorm"
)

type applicationVersionRepository struct {
	db *gorm.DB
}

func (r *applicationVersionRepository) FindByKey(ctx context.Context, applicationKey string) (domain.ApplicationVersion, bool, error) {
	var row applicationVersionModel
	if err := r.db.WithContext(ctx).Where("application_key = ?", applicationKey).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.ApplicationVersion{}, false, nil
		}
		return domain.ApplicationVersion{}, false, err
	}
	return toDomainApplicationVersion(row), true, nil
}
