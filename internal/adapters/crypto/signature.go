package crypto

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

const (
	minComponentLength = 4
	maxComponentLength = 8
)

var decimalModulus = [...]uint32{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000}

// ComputeSignature produces the multi-factor signature a device computes for payload.
// Each factor key is first bound to the counter data, then used to MAC the payload.
func ComputeSignature(payload []byte, factorKeys [][]byte, counterData []byte, format domain.SignatureFormat, componentLength int) (string, error) {
	if len(factorKeys) == 0 {
		return "", fmt.Errorf("%w: no factor keys", domain.ErrGenericCryptography)
	}
	if len(counterData) != domain.CounterDataLength {
		return "", fmt.Errorf("%w: counter data length %d", domain.ErrGenericCryptography, len(counterData))
	}

	components := make([][]byte, 0, len(factorKeys))
	for _, key := range factorKeys {
		requestKey := hmacSHA256(key, counterData)
		components = append(components, hmacSHA256(requestKey, payload))
	}

	switch format {
	case domain.SignatureFormatDecimal:
		if componentLength == 0 {
			componentLength = domain.DefaultComponentLength
		}
		if componentLength < minComponentLength || componentLength > maxComponentLength {
			return "", fmt.Errorf("%w: component length %d", domain.ErrGenericCryptography, componentLength)
		}
		parts := make([]string, 0, len(components))
		for _, c := range components {
			v := binary.BigEndian.Uint32(c[len(c)-4:]) & 0x7fffffff
			parts = append(parts, fmt.Sprintf("%0*d", componentLength, v%decimalModulus[componentLength]))
		}
		return strings.Join(parts, "-"), nil
	case domain.SignatureFormatBase64:
		raw := make([]byte, 0, len(components)*16)
		for _, c := range components {
			raw = append(raw, c[16:]...)
		}
		return base64.StdEncoding.EncodeToString(raw), nil
	default:
		return "", fmt.Errorf("%w: signature format %q", domain.ErrGenericCryptography, format)
	}
}
