package application_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	cryptoadapter "github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/adapters/crypto"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

const (
	testActivationID = "6a1cb007-ff75-4f40-a21b-0b546f0f6cad"
	testUserID       = "user-1"
	testAppID        = int64(7)
	testAppKey       = "w4FWDDFKyQ0cZJjmDKvCUg=="
	testAppSecret    = "aygsQJKgp6wBP7FuFaXt6g=="
)

type fixture struct {
	service     *application.Service
	activations *fakeActivations
	appVersions *fakeAppVersions
	provider    *cryptoadapter.Provider
	device      cryptoadapter.KeyPair
	server      cryptoadapter.KeyPair
	ctrData     []byte
}

func defaultTestConfig() application.Config {
	return application.Config{
		SignatureLookahead:     20,
		OfflineComponentLength: 8,
		AuditLogLimit:          100,
	}
}

func newFixture(t *testing.T, mutate ...func(*domain.Activation)) *fixture {
	return newFixtureWithConfig(t, defaultTestConfig(), mutate...)
}

func newFixtureWithConfig(t *testing.T, cfg application.Config, mutate ...func(*domain.Activation)) *fixture {
	t.Helper()

	device, err := cryptoadapter.GenerateKeyPair()
	require.NoError(t, err)
	server, err := cryptoadapter.GenerateKeyPair()
	require.NoError(t, err)
	ctrData := make([]byte, domain.CounterDataLength)
	_, err = rand.Read(ctrData)
	require.NoError(t, err)

	act := domain.Activation{
		ActivationID:        testActivationID,
		UserID:              testUserID,
		ApplicationID:       testAppID,
		ApplicationRoles:    []string{"ROLE_USER"},
		Protocol:            domain.ProtocolPowerAuth,
		Version:             3,
		DevicePublicKey:     device.PublicKey,
		ServerPrivateKey:    server.PrivateKey,
		ServerKeyEncryption: domain.KeyEncryptionNone,
		CounterData:         slices.Clone(ctrData),
		MaxFailedAttempts:   5,
		Status:              domain.ActivationStatusActive,
		Flags:               []string{"VIP"},
	}
	for _, fn := range mutate {
		fn(&act)
	}

	activations := &fakeActivations{items: map[string]domain.Activation{act.ActivationID: act}}
	appVersions := &fakeAppVersions{items: map[string]domain.ApplicationVersion{
		testAppKey: {
			ApplicationID:     testAppID,
			ApplicationKey:    testAppKey,
			ApplicationSecret: testAppSecret,
			Name:              "3.1.0",
			Supported:         true,
		},
	}}
	provider := cryptoadapter.NewProvider()

	svc := application.NewService(application.Dependencies{
		Config:              cfg,
		Activations:         activations,
		ApplicationVersions: appVersions,
		AuditReads:          &fakeAuditReads{store: activations},
		Crypto:              provider,
		KeyProtector:        plainKeys{},
	})

	return &fixture{
		service:     svc,
		activations: activations,
		appVersions: appVersions,
		provider:    provider,
		device:      device,
		server:      server,
		ctrData:     ctrData,
	}
}

// counterAt returns the device-side counter after n successful signatures.
func (f *fixture) counterAt(n int) domain.CounterScheme {
	c := domain.ChainedCounter(0, f.ctrData)
	for i := 0; i < n; i++ {
		c = c.Next()
	}
	return c
}

// sign computes the signature the device would send.
func (f *fixture) sign(t *testing.T, payload []byte, sigType domain.SignatureType, counter domain.CounterScheme, format domain.SignatureFormat) string {
	t.Helper()
	keys, err := f.provider.DeriveFactorKeys(f.device.PrivateKey, f.server.PublicKey, sigType.Factors())
	require.NoError(t, err)
	sig, err := cryptoadapter.ComputeSignature(payload, keys, counter.Bytes(), format, domain.DefaultComponentLength)
	require.NoError(t, err)
	return sig
}

// onlineRequest builds a version 3.1 request signed at the given counter position.
func (f *fixture) onlineRequest(t *testing.T, data string, sigType domain.SignatureType, step int) application.VerifySignatureRequest {
	t.Helper()
	payload := []byte(data + "&" + testAppSecret)
	return application.VerifySignatureRequest{
		ActivationID:     testActivationID,
		ApplicationKey:   testAppKey,
		Data:             data,
		Signature:        f.sign(t, payload, sigType, f.counterAt(step), domain.SignatureFormatBase64),
		SignatureType:    string(sigType),
		SignatureVersion: "3.1",
	}
}

func (f *fixture) activation(t *testing.T) domain.Activation {
	t.Helper()
	act, err := f.activations.FindWithoutLock(context.Background(), testActivationID)
	require.NoError(t, err)
	return act
}

type plainKeys struct{}

func (plainKeys) DecryptServerPrivateKey(_ context.Context, _ ports.ServerKeyContext, stored []byte) ([]byte, error) {
	return bytes.Clone(stored), nil
}

type fakeActivations struct {
	mu      sync.Mutex
	items   map[string]domain.Activation
	history []domain.ActivationHistoryEntry
	audits  []domain.SignatureAuditRecord
	outbox  []ports.OutboxEvent
	saves   int
	nextID  int64
}

func (r *fakeActivations) WithLock(ctx context.Context, activationID string, fn ports.LockedActivationFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	act, ok := r.items[activationID]
	if !ok {
		return domain.ErrActivationNotFound
	}
	tx := &fakeTx{}
	if err := fn(ctx, act.Clone(), tx); err != nil {
		return err
	}
	if tx.saved != nil {
		r.items[activationID] = tx.saved.Clone()
		r.saves++
	}
	for _, entry := range tx.history {
		r.nextID++
		entry.ID = r.nextID
		r.history = append(r.history, entry)
	}
	for _, record := range tx.audits {
		r.nextID++
		record.ID = r.nextID
		r.audits = append(r.audits, record)
	}
	r.outbox = append(r.outbox, tx.outbox...)
	return nil
}

func (r *fakeActivations) FindWithoutLock(_ context.Context, activationID string) (domain.Activation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	act, ok := r.items[activationID]
	if !ok {
		return domain.Activation{}, domain.ErrActivationNotFound
	}
	return act.Clone(), nil
}

func (r *fakeActivations) lastAudit(t *testing.T) domain.SignatureAuditRecord {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.audits)
	return r.audits[len(r.audits)-1]
}

func (r *fakeActivations) auditCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.audits)
}

func (r *fakeActivations) outboxEvents() []ports.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.outbox)
}

func (r *fakeActivations) historyEntries() []domain.ActivationHistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}

// fakeTx buffers writes until the lock callback returns without error.
type fakeTx struct {
	saved   *domain.Activation
	history []domain.ActivationHistoryEntry
	audits  []domain.SignatureAuditRecord
	outbox  []ports.OutboxEvent
}

func (t *fakeTx) Save(_ context.Context, activation domain.Activation) error {
	clone := activation.Clone()
	t.saved = &clone
	return nil
}

func (t *fakeTx) AppendHistory(_ context.Context, entry domain.ActivationHistoryEntry) error {
	t.history = append(t.history, entry)
	return nil
}

func (t *fakeTx) AppendSignatureAudit(_ context.Context, record domain.SignatureAuditRecord) error {
	t.audits = append(t.audits, record)
	return nil
}

func (t *fakeTx) EnqueueOutbox(_ context.Context, event ports.OutboxEvent) error {
	t.outbox = append(t.outbox, event)
	return nil
}

type fakeAppVersions struct {
	items map[string]domain.ApplicationVersion
}

func (r *fakeAppVersions) FindByKey(_ context.Context, applicationKey string) (domain.ApplicationVersion, bool, error) {
	v, ok := r.items[applicationKey]
	return v, ok, nil
}

type fakeAuditReads struct {
	store *fakeActivations
}

func (r *fakeAuditReads) ListHistory(_ context.Context, query ports.HistoryQuery) ([]domain.ActivationHistoryEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]domain.ActivationHistoryEntry, 0)
	for i := len(r.store.history) - 1; i >= 0; i-- {
		entry := r.store.history[i]
		if entry.ActivationID != query.ActivationID {
			continue
		}
		if !query.From.IsZero() && entry.CreatedAt.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && entry.CreatedAt.After(query.To) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *fakeAuditReads) ListSignatureAudit(_ context.Context, query ports.SignatureAuditQuery) ([]domain.SignatureAuditRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]domain.SignatureAuditRecord, 0)
	for i := len(r.store.audits) - 1; i >= 0; i-- {
		record := r.store.audits[i]
		if record.UserID != query.UserID {
			continue
		}
		if query.ApplicationID != 0 && record.ApplicationID != query.ApplicationID {
			continue
		}
		out = append(out, record)
		if query.Limit > 0 && len(out) == query.Limit {
			break
		}
	}
	return out, nil
}
