package domain

import (
	"slices"
	"strings"
	"time"
)

type ActivationStatus string

const (
	ActivationStatusCreated       ActivationStatus = "CREATED"
	ActivationStatusPendingCommit ActivationStatus = "PENDING_COMMIT"
	ActivationStatusActive        ActivationStatus = "ACTIVE"
	ActivationStatusBlocked       ActivationStatus = "BLOCKED"
	ActivationStatusRemoved       ActivationStatus = "REMOVED"
)

// BlockedReasonAuthFailed is recorded when the failed-attempt ceiling is reached.
const BlockedReasonAuthFailed = "AUTH_FAILED"

type Protocol string

const (
	ProtocolPowerAuth Protocol = "powerauth"
	ProtocolFIDO2     Protocol = "fido2"
)

// KeyEncryptionMode tags how the server private key is protected at rest.
type KeyEncryptionMode string

const (
	KeyEncryptionNone   KeyEncryptionMode = "NO_ENCRYPTION"
	KeyEncryptionAESGCM KeyEncryptionMode = "AES_GCM"
	KeyEncryptionKMS    KeyEncryptionMode = "KMS"
)

// Activation is the durable binding between a user, an application and a device key pair.
type Activation struct {
	ActivationID          string
	UserID                string
	ApplicationID         int64
	ApplicationExternalID string
	ApplicationRoles      []string
	Protocol              Protocol
	Version               int

	DevicePublicKey     []byte
	ServerPrivateKey    []byte
	ServerKeyEncryption KeyEncryptionMode

	Counter     int64
	CounterData []byte

	FailedAttempts    int
	MaxFailedAttempts int

	Status        ActivationStatus
	BlockedReason string

	ActivationName string
	Platform       string
	DeviceInfo     string
	Flags          []string

	TimestampCreated    time.Time
	TimestampLastUsed   time.Time
	TimestampLastChange time.Time
}

var transitions = map[ActivationStatus][]ActivationStatus{
	ActivationStatusCreated:       {ActivationStatusPendingCommit, ActivationStatusRemoved},
	ActivationStatusPendingCommit: {ActivationStatusActive, ActivationStatusRemoved},
	ActivationStatusActive:        {ActivationStatusBlocked, ActivationStatusRemoved},
	ActivationStatusBlocked:       {ActivationStatusActive, ActivationStatusRemoved},
	ActivationStatusRemoved:       {},
}

// CanTransition reports whether the lifecycle allows moving from the current status to next.
func (a Activation) CanTransition(next ActivationStatus) bool {
	return slices.Contains(transitions[a.Status], next)
}

// RemainingAttempts is never negative.
func (a Activation) RemainingAttempts() int {
	remaining := a.MaxFailedAttempts - a.FailedAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CeilingReached reports whether the lockout ceiling has been hit.
func (a Activation) CeilingReached() bool {
	return a.FailedAttempts >= a.MaxFailedAttempts
}

// Block moves an ACTIVE activation to BLOCKED. It reports false when the status was not changed.
func (a *Activation) Block(reason string, at time.Time) bool {
	if a.Status == ActivationStatusBlocked {
		return false
	}
	if !a.CanTransition(ActivationStatusBlocked) {
		return false
	}
	a.Status = ActivationStatusBlocked
	a.BlockedReason = reason
	a.TimestampLastChange = at
	return true
}

// Clone returns a copy that shares no slices with the receiver.
func (a Activation) Clone() Activation {
	out := a
	out.ApplicationRoles = slices.Clone(a.ApplicationRoles)
	out.DevicePublicKey = slices.Clone(a.DevicePublicKey)
	out.ServerPrivateKey = slices.Clone(a.ServerPrivateKey)
	out.CounterData = slices.Clone(a.CounterData)
	out.Flags = slices.Clone(a.Flags)
	return out
}

// NormalizeFlags trims, deduplicates and sorts activation flags.
func NormalizeFlags(flags []string) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		out = append(out, f)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// AddFlags adds only flags not yet present and keeps the set sorted.
func (a *Activation) AddFlags(flags []string) {
	a.Flags = NormalizeFlags(append(slices.Clone(a.Flags), flags...))
}

// ReplaceFlags replaces the whole flag set.
func (a *Activation) ReplaceFlags(flags []string) {
	a.Flags = NormalizeFlags(flags)
}

// RemoveFlags drops the given flags when present.
func (a *Activation) RemoveFlags(flags []string) {
	drop := NormalizeFlags(flags)
	kept := make([]string, 0, len(a.Flags))
	for _, f := range a.Flags {
		if _, found := slices.BinarySearch(drop, f); !found {
			kept = append(kept, f)
		}
	}
	a.Flags = NormalizeFlags(kept)
}

// ApplicationVersion is read-only from this service's point of view.
type ApplicationVersion struct {
	ApplicationID     int64
	ApplicationKey    string
	ApplicationSecret string
	Name              string
	Supported         bool
}
