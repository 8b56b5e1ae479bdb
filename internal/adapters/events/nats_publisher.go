package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/nats-io/nats.go"
)

const (
	headerEventType    = "Event-Type"
	headerPartitionKey = "Partition-Key"
	headerContentType  = "Content-Type"
	contentTypeCBOR    = "application/cbor"
	flushTimeout       = 5 * time.Second
)

type NATSConfig struct {
	URL             string
	SubjectPrefix   string
	CredentialsFile string
	ReconnectWait   time.Duration
	MaxReconnects   int
}

// Envelope is the CBOR message body published for every activation event.
// Payload carries the JSON document stored in the outbox.
type Envelope struct {
	EventType    string `cbor:"1,keyasint"`
	PartitionKey string `cbor:"2,keyasint"`
	PublishedAt  int64  `cbor:"3,keyasint"`
	Payload      []byte `cbor:"4,keyasint"`
}

// natsConn is the subset of *nats.Conn the publisher needs.
type natsConn interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes outbox events to subjects named <prefix>.<event type>.
type NATSPublisher struct {
	conn   natsConn
	prefix string
	enc    cbor.EncMode
	nowFn  func() time.Time
}

// ConnectNATS dials the broker and returns a publisher bound to it.
func ConnectNATS(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	opts := []nats.Option{
		nats.Name("m04-activation-signature-service"),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "module", "events.nats", "layer", "adapter", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "module", "events.nats", "layer", "adapter", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("nats credentials: %w", err)
		}
		opts = append(opts, nats.UserCredentials(cfg.CredentialsFile))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSPublisher(conn, cfg.SubjectPrefix)
}

func NewNATSPublisher(conn natsConn, subjectPrefix string) (*NATSPublisher, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	if subjectPrefix == "" {
		subjectPrefix = "activations"
	}
	return &NATSPublisher{
		conn:   conn,
		prefix: subjectPrefix,
		enc:    enc,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	body, err := p.enc.Marshal(Envelope{
		EventType:    eventType,
		PartitionKey: partitionKey,
		PublishedAt:  p.nowFn().UnixMilli(),
		Payload:      payload,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := nats.NewMsg(p.prefix + "." + eventType)
	msg.Data = body
	msg.Header.Set(headerEventType, eventType)
	msg.Header.Set(headerPartitionKey, partitionKey)
	msg.Header.Set(headerContentType, contentTypeCBOR)
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	// FlushWithContext rejects contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", eventType, err)
	}
	return nil
}

// DecodeEnvelope parses a message body produced by Publish.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
