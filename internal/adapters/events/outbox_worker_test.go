package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

type fakeOutbox struct {
	mu           sync.Mutex
	pending      []ports.OutboxRecord
	claimLimit   int
	claimErr     error
	published    []uuid.UUID
	failed       []uuid.UUID
	deadLettered []uuid.UUID
	tokens       map[string]bool
}

func (o *fakeOutbox) ClaimUnpublished(_ context.Context, limit int, claimToken string, _ time.Time) ([]ports.OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.claimErr != nil {
		return nil, o.claimErr
	}
	o.claimLimit = limit
	if o.tokens == nil {
		o.tokens = map[string]bool{}
	}
	o.tokens[claimToken] = true
	n := min(limit, len(o.pending))
	out := o.pending[:n]
	o.pending = o.pending[n:]
	return out, nil
}

func (o *fakeOutbox) MarkPublished(_ context.Context, id uuid.UUID, token string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.tokens[token] {
		return errors.New("unknown claim")
	}
	o.published = append(o.published, id)
	return nil
}

func (o *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, _, _ string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, id)
	return nil
}

func (o *fakeOutbox) MarkDeadLettered(_ context.Context, id uuid.UUID, _, _ string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deadLettered = append(o.deadLettered, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	failOn map[string]error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, partitionKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failOn[partitionKey]; err != nil {
		return err
	}
	p.events = append(p.events, eventType+"/"+partitionKey)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func outboxRecord(partitionKey string, retries int) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:     uuid.New(),
		EventType:    "activation.status_changed",
		PartitionKey: partitionKey,
		Payload:      []byte(`{}`),
		RetryCount:   retries,
	}
}

func TestOutboxWorkerPublishesBatch(t *testing.T) {
	t.Parallel()

	outbox := &fakeOutbox{pending: []ports.OutboxRecord{outboxRecord("a", 0), outboxRecord("b", 0), outboxRecord("c", 0)}}
	publisher := &recordingPublisher{}
	worker := NewOutboxWorker(discardLogger(), outbox, publisher, OutboxWorkerConfig{BatchSize: 2})

	res, err := worker.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Claimed: 2, Published: 2}, res)
	assert.Equal(t, 2, outbox.claimLimit)
	assert.Equal(t, []string{"activation.status_changed/a", "activation.status_changed/b"}, publisher.events)

	res, err = worker.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Claimed: 1, Published: 1}, res)
	assert.Len(t, outbox.published, 3)
}

func TestOutboxWorkerRetriesAndDeadLetters(t *testing.T) {
	t.Parallel()

	retry := outboxRecord("retry", 0)
	last := outboxRecord("last", 2)
	exhausted := outboxRecord("exhausted", 3)
	outbox := &fakeOutbox{pending: []ports.OutboxRecord{retry, last, exhausted}}
	publisher := &recordingPublisher{failOn: map[string]error{
		"retry": errors.New("broker unavailable"),
		"last":  errors.New("broker unavailable"),
	}}
	worker := NewOutboxWorker(discardLogger(), outbox, publisher, OutboxWorkerConfig{MaxRetries: 3})

	res, err := worker.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Claimed: 3, Failed: 2, DeadLettered: 2}, res)
	assert.Equal(t, []uuid.UUID{retry.OutboxID}, outbox.failed)
	assert.ElementsMatch(t, []uuid.UUID{last.OutboxID, exhausted.OutboxID}, outbox.deadLettered)
	assert.Empty(t, publisher.events)
}

func TestOutboxWorkerClaimError(t *testing.T) {
	t.Parallel()

	outbox := &fakeOutbox{claimErr: errors.New("db down")}
	worker := NewOutboxWorker(discardLogger(), outbox, &recordingPublisher{}, OutboxWorkerConfig{})

	_, err := worker.ProcessOnce(context.Background())
	require.Error(t, err)
}

func TestOutboxWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	outbox := &fakeOutbox{pending: []ports.OutboxRecord{outboxRecord("a", 0)}}
	publisher := &recordingPublisher{}
	worker := NewOutboxWorker(discardLogger(), outbox, publisher, OutboxWorkerConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		publisher.mu.Lock()
		defer publisher.mu.Unlock()
		return len(publisher.events) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
