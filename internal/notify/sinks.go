package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultPrefix is the subject, stream and topic prefix used by the sinks.
const DefaultPrefix = "governor"

// LogSink writes notifications to the process log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(_ context.Context, batch []Notification) error {
	for _, n := range batch {
		ev := log.Info().
			Str("kind", string(n.Kind)).
			Str("org_id", n.OrgID.String()).
			Str("circle_id", n.CircleID.String())
		if n.Event != nil {
			ev = ev.Str("proposal_id", n.ProposalID.String()).
				Str("event_type", string(n.Event.Type)).
				Int64("sequence", n.Event.Sequence)
		}
		ev.Msg(n.Summary)
	}
	return nil
}

// NATSPublisher is the subset of *nats.Conn used by NATSSink.
type NATSPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink publishes each notification on prefix.kind.org.
type NATSSink struct {
	conn   NATSPublisher
	prefix string
}

// NewNATSSink creates a sink over an existing connection.
func NewNATSSink(conn NATSPublisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// ConnectNATS dials a NATS server with reconnects enabled.
func ConnectNATS(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("governor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Send(_ context.Context, batch []Notification) error {
	for _, n := range batch {
		data, err := n.encode()
		if err != nil {
			return errors.Join(ErrPermanent, err)
		}
		if err := s.conn.Publish(n.Subject(s.prefix), data); err != nil {
			return fmt.Errorf("publish %s: %w", n.ID, err)
		}
	}
	return nil
}

// RedisSink appends notifications to a capped Redis stream.
type RedisSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisSink creates a sink writing to stream, trimmed to roughly maxLen entries.
func NewRedisSink(client redis.Cmdable, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultPrefix + ":notifications"
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return client, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Send(ctx context.Context, batch []Notification) error {
	pipe := s.client.Pipeline()
	for _, n := range batch {
		data, err := n.encode()
		if err != nil {
			return errors.Join(ErrPermanent, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]any{
				"id":      n.ID.String(),
				"kind":    string(n.Kind),
				"subject": n.Subject(DefaultPrefix),
				"payload": string(data),
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// KafkaProducer is the subset of *kgo.Client used by KafkaSink.
type KafkaProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink produces one record per notification, keyed by organization so
// that an organization's notifications stay ordered within a partition.
type KafkaSink struct {
	producer KafkaProducer
	topic    string
}

// NewKafkaSink creates a sink producing to topic.
func NewKafkaSink(producer KafkaProducer, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultPrefix + ".notifications"
	}
	return &KafkaSink{producer: producer, topic: topic}
}

// NewKafkaClient creates a franz-go client for the seed brokers.
func NewKafkaClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("governor"),
		kgo.ProducerLinger(10*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, batch []Notification) error {
	records := make([]*kgo.Record, 0, len(batch))
	for _, n := range batch {
		data, err := n.encode()
		if err != nil {
			return errors.Join(ErrPermanent, err)
		}
		records = append(records, &kgo.Record{
			Topic: s.topic,
			Key:   []byte(n.OrgID.String()),
			Value: data,
			Headers: []kgo.RecordHeader{
				{Key: "kind", Value: []byte(n.Kind)},
				{Key: "notification_id", Value: []byte(n.ID.String())},
			},
		})
	}
	if err := s.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", s.topic, err)
	}
	return nil
}
