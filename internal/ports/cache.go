package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

// ApplicationVersionCache holds short-lived copies of application versions.
// A miss is reported as found=false with a nil error.
type ApplicationVersionCache interface {
	Get(ctx context.Context, applicationKey string) (domain.ApplicationVersion, bool, error)
	Put(ctx context.Context, version domain.ApplicationVersion, ttl time.Duration) error
}
