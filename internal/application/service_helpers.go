package application

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

// knownErrors pass through classifyError unchanged.
var knownErrors = []error{
	domain.ErrInvalidRequest,
	domain.ErrActivationNotFound,
	domain.ErrActivationIncorrectState,
	domain.ErrInvalidKeyFormat,
	domain.ErrGenericCryptography,
	domain.ErrInvalidCryptoProvider,
	domain.ErrDecryptionFailed,
	domain.ErrEncryptionFailed,
	domain.ErrInvalidInputFormat,
	domain.ErrUnauthorized,
	domain.ErrUnknown,
}

// classifyError keeps domain sentinels and folds everything else into ErrUnknown.
func classifyError(ctx context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	appLogger().ErrorContext(ctx, "unexpected failure",
		"operation", operation,
		"outcome", "failure",
		"error", err,
	)
	return fmt.Errorf("%w: %s", domain.ErrUnknown, operation)
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", domain.ErrInvalidRequest, f.name)
		}
	}
	return nil
}

// decodeBase64Field reports a malformed field as an invalid request.
func decodeBase64Field(name, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	out, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64", domain.ErrInvalidRequest, name)
	}
	return out, nil
}
