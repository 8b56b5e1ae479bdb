package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"
)

// CounterDataLength is the size of counter data fed into per-request key derivation.
const CounterDataLength = 16

// CounterScheme is the replay-protection state used for one verification attempt:
// a numeric counter (version 2) or an opaque hash chain (version 3).
type CounterScheme struct {
	chained bool
	value   int64
	data    []byte
}

// NumericCounter builds a version 2 counter.
func NumericCounter(value int64) CounterScheme {
	return CounterScheme{value: value}
}

// ChainedCounter builds a version 3 counter from stored counter data.
func ChainedCounter(value int64, data []byte) CounterScheme {
	return CounterScheme{chained: true, value: value, data: slices.Clone(data)}
}

func (c CounterScheme) Chained() bool { return c.chained }

// Value is the numeric position, tracked for both schemes.
func (c CounterScheme) Value() int64 { return c.value }

// Bytes returns the counter data mixed into the per-request signing key.
func (c CounterScheme) Bytes() []byte {
	if c.chained {
		return slices.Clone(c.data)
	}
	out := make([]byte, CounterDataLength)
	binary.BigEndian.PutUint64(out[8:], uint64(c.value))
	return out
}

// Next advances the counter by exactly one step.
func (c CounterScheme) Next() CounterScheme {
	if !c.chained {
		return NumericCounter(c.value + 1)
	}
	sum := sha256.Sum256(c.data)
	return CounterScheme{chained: true, value: c.value + 1, data: sum[:CounterDataLength]}
}

// SignatureVersionForActivation resolves the counter scheme version for a request.
// A version 2 activation that already carries counter data may be forced to version 3
// during a client upgrade.
func SignatureVersionForActivation(a Activation, forced *int) (int, error) {
	if err := ValidateVersionSupported(a); err != nil {
		return 0, err
	}
	if forced != nil && *forced == 3 && a.Version == 2 && len(a.CounterData) > 0 {
		return 3, nil
	}
	return a.Version, nil
}

// CounterSchemeFor returns the authoritative counter state for the given signature version.
func CounterSchemeFor(a Activation, signatureVersion int) (CounterScheme, error) {
	switch signatureVersion {
	case 2:
		return NumericCounter(a.Counter), nil
	case 3:
		if len(a.CounterData) != CounterDataLength {
			return CounterScheme{}, fmt.Errorf("%w: counter data missing for version 3", ErrActivationIncorrectState)
		}
		return ChainedCounter(a.Counter, a.CounterData), nil
	default:
		return CounterScheme{}, fmt.Errorf("%w: signature version %d", ErrActivationIncorrectState, signatureVersion)
	}
}
