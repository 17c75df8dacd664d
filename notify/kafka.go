package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/MrEthical07/sessionauth"
)

const envelopeVersion = "1.0"

// KafkaConfig configures the producer built by [NewKafkaProducer].
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewKafkaProducer builds a sync producer that waits for all in-sync
// replicas.
func NewKafkaProducer(cfg KafkaConfig) (sarama.SyncProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V3_5_0_0
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// Envelope is the wire format of a published notification.
type Envelope struct {
	ID        string            `json:"id"`
	Template  string            `json:"template"`
	To        string            `json:"to"`
	Subject   string            `json:"subject"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
}

// Kafka publishes notifications to a Kafka topic. Messages are keyed by
// recipient so one user's mails stay ordered.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
	now      func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewKafka returns a notifier publishing to topic through producer.
func NewKafka(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{
		producer: producer,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
		entropy:  ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Send publishes msg and waits for the broker acknowledgement.
func (k *Kafka) Send(ctx context.Context, msg sessionauth.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := k.now().UTC()
	env := Envelope{
		ID:        k.newID(now),
		Template:  msg.Template,
		To:        msg.To,
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: now,
		Version:   envelopeVersion,
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(msg.To),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("template"), Value: []byte(msg.Template)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	k.logger.Debug("notification published",
		zap.String("id", env.ID),
		zap.String("template", msg.Template),
		zap.String("topic", k.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (k *Kafka) Close() error {
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

func (k *Kafka) newID(now time.Time) string {
	k.entropyMu.Lock()
	defer k.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), k.entropy).String()
}
