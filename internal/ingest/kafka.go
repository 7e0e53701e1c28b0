// v0
// internal/ingest/kafka.go
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"nrgchamp/condenser/internal/circuitbreaker"
	"nrgchamp/condenser/internal/metrics"
)

const (
	kafkaTransport     = "kafka"
	samplesBreakerName = "condenser-samples-reader"
	maxFetchBackoff    = 10 * time.Second
)

// KafkaConfig selects the samples topic and consumer group.
type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topic   string
}

// KafkaSource consumes plant samples and feeds them to a Batcher.
type KafkaSource struct {
	topic   string
	reader  circuitbreaker.MessageReader
	closer  io.Closer
	batcher *Batcher
	log     *slog.Logger
}

// NewKafkaSource builds a consumer-group reader guarded by the circuit breaker.
func NewKafkaSource(cfg KafkaConfig, batcher *Batcher, log *slog.Logger) (*KafkaSource, error) {
	if log == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if batcher == nil {
		return nil, fmt.Errorf("batcher must not be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("samples topic must not be empty")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: []string{cfg.Topic},
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	breaker, err := circuitbreaker.NewKafkaBreakerFromEnv(samplesBreakerName, nil, log)
	if err != nil {
		log.Error("samples_reader_cb_init_err", slog.Any("err", err))
	}
	return newKafkaSource(cfg.Topic, circuitbreaker.NewCBKafkaReader(reader, breaker), reader, batcher, log), nil
}

func newKafkaSource(topic string, reader circuitbreaker.MessageReader, closer io.Closer, batcher *Batcher, log *slog.Logger) *KafkaSource {
	return &KafkaSource{
		topic:   topic,
		reader:  reader,
		closer:  closer,
		batcher: batcher,
		log:     log.With(slog.String("component", "kafka_source"), slog.String("topic", topic)),
	}
}

// Run consumes until ctx is cancelled. Offsets are committed once a sample
// is handed to the batcher or dropped as undecodable.
func (s *KafkaSource) Run(ctx context.Context) {
	defer func() {
		if s.closer == nil {
			return
		}
		if err := s.closer.Close(); err != nil {
			s.log.Error("reader_close", slog.Any("err", err))
		}
	}()
	s.log.Info("consumer_start")

	backoff := time.Second
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				s.log.Info("consumer_stop", slog.String("reason", "context"))
				return
			}
			s.log.Error("fetch_err", slog.Any("err", err))
			select {
			case <-time.After(backoff):
				if backoff < maxFetchBackoff {
					backoff *= 2
				}
				continue
			case <-ctx.Done():
				s.log.Info("consumer_stop", slog.String("reason", "shutdown"))
				return
			}
		}
		backoff = time.Second
		metrics.IncIngestMessage(kafkaTransport)

		sample, err := DecodeSample(msg.Value)
		if err != nil {
			metrics.IncIngestDecodeDrop(dropReason(err))
			s.log.Warn("decode_err", slog.Any("err", err), slog.Int64("offset", msg.Offset), slog.Int("partition", msg.Partition))
		} else if err := s.batcher.Add(ctx, kafkaTransport, sample); err != nil {
			s.log.Info("consumer_stop", slog.String("reason", "shutdown"))
			return
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			s.log.Error("commit_err", slog.Any("err", err))
		}
	}
}
