package domain

import "fmt"

const (
	MinSupportedVersion = 2
	MaxSupportedVersion = 3
)

// ValidateProtocol fails when the activation belongs to another protocol family.
func ValidateProtocol(a Activation, expected Protocol) error {
	if a.Protocol != expected {
		return fmt.Errorf("%w: activation protocol %q, expected %q", ErrInvalidRequest, a.Protocol, expected)
	}
	return nil
}

func ValidateActiveStatus(a Activation) error {
	if a.Status != ActivationStatusActive {
		return fmt.Errorf("%w: status %s", ErrActivationIncorrectState, a.Status)
	}
	return nil
}

func ValidateVersionSupported(a Activation) error {
	if a.Version < MinSupportedVersion || a.Version > MaxSupportedVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrActivationIncorrectState, a.Version)
	}
	return nil
}

// ValidateVersion fails when a flow bound to one crypto version meets an activation of another.
func ValidateVersion(a Activation, expected int) error {
	if a.Version != expected {
		return fmt.Errorf("%w: activation version %d, expected %d", ErrActivationIncorrectState, a.Version, expected)
	}
	return nil
}
