package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

// RFC 6238 appendix B, SHA-256 rows with a 30 second step.
func TestTimeBasedOTPReferenceVectors(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	seed := []byte("12345678901234567890123456789012")
	tests := []struct {
		unix int64
		want string
	}{
		{59, "46119246"},
		{1111111109, "68084774"},
		{1111111111, "67062674"},
		{1234567890, "91819424"},
		{2000000000, "90698825"},
	}
	for _, tc := range tests {
		tc := tc
		got, err := p.TimeBasedOTP(seed, tc.unix/30, 8)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "t=%d", tc.unix)
	}

	six, err := p.TimeBasedOTP(seed, 59/30, 6)
	require.NoError(t, err)
	assert.Equal(t, "119246", six)
}

func TestTimeBasedOTPValidation(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	_, err := p.TimeBasedOTP([]byte("short"), 1, 8)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	seed := make([]byte, 16)
	_, err = p.TimeBasedOTP(seed, 1, 5)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = p.TimeBasedOTP(seed, 1, 9)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}
