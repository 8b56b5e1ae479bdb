package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	server := mustKeyPair(t)
	sharedInfo2 := []byte("app-binding")
	nonce := bytes.Repeat([]byte{5}, 16)
	ts := int64(1767225600000)
	ad := domain.EnvelopeAssociatedData("3.2", "app", "act")

	req, client, err := SealRequest(server.PublicKey, domain.EnvelopeSharedInfoVaultUnlock, sharedInfo2, []byte(`{"reason":"X"}`), nonce, &ts, ad)
	require.NoError(t, err)

	plaintext, session, err := p.OpenEnvelope(server.PrivateKey, domain.EnvelopeSharedInfoVaultUnlock, sharedInfo2, req)
	require.NoError(t, err)
	assert.Equal(t, `{"reason":"X"}`, string(plaintext))

	respNonce := bytes.Repeat([]byte{6}, 16)
	resp, err := session.SealResponse([]byte("response"), respNonce, &ts, ad)
	require.NoError(t, err)

	body, err := client.OpenResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "response", string(body))
}

func TestEnvelopeWithoutNonceUsesZeroIV(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	server := mustKeyPair(t)

	req, _, err := SealRequest(server.PublicKey, domain.EnvelopeSharedInfoVaultUnlock, nil, []byte("legacy"), nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, req.Nonce)

	plaintext, _, err := p.OpenEnvelope(server.PrivateKey, domain.EnvelopeSharedInfoVaultUnlock, nil, req)
	require.NoError(t, err)
	assert.Equal(t, "legacy", string(plaintext))
}

func TestEnvelopeRejectsTampering(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	server := mustKeyPair(t)
	sharedInfo2 := []byte("app-binding")
	ts := int64(42)
	nonce := bytes.Repeat([]byte{1}, 16)

	seal := func(t *testing.T) domain.EncryptedEnvelope {
		t.Helper()
		env, _, err := SealRequest(server.PublicKey, domain.EnvelopeSharedInfoVaultUnlock, sharedInfo2, []byte("body"), nonce, &ts, []byte("ad"))
		require.NoError(t, err)
		return env
	}

	tests := []struct {
		name        string
		mutate      func(*domain.EncryptedEnvelope)
		sharedInfo1 string
		sharedInfo2 []byte
	}{
		{name: "ciphertext", mutate: func(e *domain.EncryptedEnvelope) { e.EncryptedData[0] ^= 1 }},
		{name: "mac", mutate: func(e *domain.EncryptedEnvelope) { e.Mac[0] ^= 1 }},
		{name: "nonce", mutate: func(e *domain.EncryptedEnvelope) { e.Nonce[0] ^= 1 }},
		{name: "timestamp", mutate: func(e *domain.EncryptedEnvelope) { other := int64(43); e.Timestamp = &other }},
		{name: "associated data", mutate: func(e *domain.EncryptedEnvelope) { e.AssociatedData = []byte("other") }},
		{name: "shared info 1", sharedInfo1: "OTHER"},
		{name: "shared info 2", sharedInfo2: []byte("other-app")},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			env := seal(t)
			if tc.mutate != nil {
				tc.mutate(&env)
			}
			si1, si2 := domain.EnvelopeSharedInfoVaultUnlock, sharedInfo2
			if tc.sharedInfo1 != "" {
				si1 = tc.sharedInfo1
			}
			if tc.sharedInfo2 != nil {
				si2 = tc.sharedInfo2
			}
			_, _, err := p.OpenEnvelope(server.PrivateKey, si1, si2, env)
			require.ErrorIs(t, err, domain.ErrDecryptionFailed)
		})
	}
}

func TestCBCPadding(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{7}, 16)
	for _, n := range []int{0, 1, 15, 16, 33} {
		plaintext := bytes.Repeat([]byte{'a'}, n)
		ciphertext, err := cbcEncrypt(key, zeroIV(), plaintext)
		require.NoError(t, err)
		assert.Zero(t, len(ciphertext)%16)
		assert.Greater(t, len(ciphertext), n)

		out, err := cbcDecrypt(key, zeroIV(), ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, out)
	}

	_, err := cbcDecrypt(key, zeroIV(), []byte{1, 2, 3})
	require.Error(t, err)
}
