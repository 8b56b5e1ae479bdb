package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from ActivationStatus
		to   ActivationStatus
		ok   bool
	}{
		{ActivationStatusCreated, ActivationStatusPendingCommit, true},
		{ActivationStatusPendingCommit, ActivationStatusActive, true},
		{ActivationStatusActive, ActivationStatusBlocked, true},
		{ActivationStatusBlocked, ActivationStatusActive, true},
		{ActivationStatusActive, ActivationStatusRemoved, true},
		{ActivationStatusCreated, ActivationStatusActive, false},
		{ActivationStatusRemoved, ActivationStatusActive, false},
		{ActivationStatusRemoved, ActivationStatusBlocked, false},
	}
	for _, tc := range tests {
		tc := tc
		a := Activation{Status: tc.from}
		assert.Equal(t, tc.ok, a.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestActivationBlock(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := Activation{Status: ActivationStatusActive}
	require.True(t, a.Block(BlockedReasonAuthFailed, at))
	assert.Equal(t, ActivationStatusBlocked, a.Status)
	assert.Equal(t, BlockedReasonAuthFailed, a.BlockedReason)
	assert.Equal(t, at, a.TimestampLastChange)

	assert.False(t, a.Block("OTHER", at.Add(time.Minute)), "already blocked")
	assert.Equal(t, BlockedReasonAuthFailed, a.BlockedReason)

	removed := Activation{Status: ActivationStatusRemoved}
	assert.False(t, removed.Block(BlockedReasonAuthFailed, at))
	assert.Equal(t, ActivationStatusRemoved, removed.Status)
}

func TestActivationRemainingAttempts(t *testing.T) {
	t.Parallel()

	a := Activation{MaxFailedAttempts: 5, FailedAttempts: 3}
	assert.Equal(t, 2, a.RemainingAttempts())
	assert.False(t, a.CeilingReached())

	a.FailedAttempts = 7
	assert.Equal(t, 0, a.RemainingAttempts())
	assert.True(t, a.CeilingReached())
}

func TestActivationFlags(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"A", "B"}, NormalizeFlags([]string{"B", " A", "", "B"}))

	a := Activation{Flags: []string{"B"}}
	a.AddFlags([]string{"A", "B"})
	assert.Equal(t, []string{"A", "B"}, a.Flags)

	a.RemoveFlags([]string{"B", "C"})
	assert.Equal(t, []string{"A"}, a.Flags)

	a.ReplaceFlags(nil)
	assert.Empty(t, a.Flags)
}

func TestActivationCloneIsDeep(t *testing.T) {
	t.Parallel()

	a := Activation{Flags: []string{"A"}, CounterData: []byte{1, 2}}
	c := a.Clone()
	c.Flags[0] = "Z"
	c.CounterData[0] = 9
	assert.Equal(t, "A", a.Flags[0])
	assert.Equal(t, byte(1), a.CounterData[0])
}

func TestValidateVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		version  int
		expected int
		wantErr  bool
	}{
		{name: "matching version 3", version: 3, expected: 3},
		{name: "matching version 2", version: 2, expected: 2},
		{name: "older activation", version: 2, expected: 3, wantErr: true},
		{name: "newer activation", version: 3, expected: 2, wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateVersion(Activation{Version: tc.version}, tc.expected)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrActivationIncorrectState)
				return
			}
			require.NoError(t, err)
		})
	}
}
