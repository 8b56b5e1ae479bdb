package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

const (
	minOTPDigits = 6
	maxOTPDigits = 8
	minSeedBytes = 16
)

// TimeBasedOTP implements RFC 6238 style codes over HMAC-SHA256.
func (p *Provider) TimeBasedOTP(seed []byte, step int64, digits int) (string, error) {
	if len(seed) < minSeedBytes {
		return "", fmt.Errorf("%w: otp seed too short", domain.ErrInvalidRequest)
	}
	if digits < minOTPDigits || digits > maxOTPDigits {
		return "", fmt.Errorf("%w: otp length %d", domain.ErrInvalidRequest, digits)
	}
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(step))
	sum := hmacSHA256(seed, msg[:])
	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", digits, code%decimalModulus[digits]), nil
}
