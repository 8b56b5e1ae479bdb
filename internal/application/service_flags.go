package application

import (
	"context"
	"slices"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

// ListActivationFlags returns the flag set without taking a lock.
func (s *Service) ListActivationFlags(ctx context.Context, activationID string) (FlagsResponse, error) {
	if err := requireFields(field{"activation_id", activationID}); err != nil {
		return FlagsResponse{}, err
	}
	act, err := s.activations.FindWithoutLock(ctx, activationID)
	if err != nil {
		return FlagsResponse{}, classifyError(ctx, "list_activation_flags", err)
	}
	return FlagsResponse{ActivationID: act.ActivationID, Flags: slices.Clone(act.Flags)}, nil
}

func (s *Service) AddActivationFlags(ctx context.Context, req FlagsRequest) (FlagsResponse, error) {
	return s.mutateFlags(ctx, "add_activation_flags", req, (*domain.Activation).AddFlags)
}

// UpdateActivationFlags replaces the whole flag set.
func (s *Service) UpdateActivationFlags(ctx context.Context, req FlagsRequest) (FlagsResponse, error) {
	return s.mutateFlags(ctx, "update_activation_flags", req, (*domain.Activation).ReplaceFlags)
}

func (s *Service) RemoveActivationFlags(ctx context.Context, req FlagsRequest) (FlagsResponse, error) {
	return s.mutateFlags(ctx, "remove_activation_flags", req, (*domain.Activation).RemoveFlags)
}

func (s *Service) mutateFlags(ctx context.Context, operation string, req FlagsRequest, apply func(*domain.Activation, []string)) (FlagsResponse, error) {
	if err := requireFields(field{"activation_id", req.ActivationID}); err != nil {
		return FlagsResponse{}, err
	}

	var resp FlagsResponse
	err := s.activations.WithLock(ctx, req.ActivationID, func(ctx context.Context, act domain.Activation, tx ports.ActivationTx) error {
		before := slices.Clone(act.Flags)
		apply(&act, req.Flags)
		resp = FlagsResponse{ActivationID: act.ActivationID, Flags: slices.Clone(act.Flags)}
		if slices.Equal(before, act.Flags) {
			return nil
		}
		now := s.nowFn()
		act.TimestampLastChange = now
		if err := tx.Save(ctx, act); err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, flagsChangedEvent(act, now))
	})
	if err != nil {
		return FlagsResponse{}, classifyError(ctx, operation, err)
	}
	appLogger().InfoContext(ctx, "activation flags updated",
		"operation", operation,
		"outcome", "success",
		"activation_id", resp.ActivationID,
		"flags", resp.Flags,
	)
	return resp, nil
}
