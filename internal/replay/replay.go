// v0
// internal/replay/replay.go

// Package replay streams a logged sample table to the ingest transports,
// one message per row.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"nrgchamp/condenser/internal/circuitbreaker"
	"nrgchamp/condenser/internal/ingest"
	"nrgchamp/condenser/internal/samples"
)

const (
	connectTimeout   = 10 * time.Second
	disconnectMillis = 250
	writerBreaker    = "condenser-replay-writer"
)

// Publisher delivers one encoded sample.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// Replay publishes every row of t in order, pausing interval between rows.
// It returns the number of rows published.
func Replay(ctx context.Context, t *samples.Table, pub Publisher, interval time.Duration, log *slog.Logger) (int, error) {
	if pub == nil {
		return 0, errors.New("publisher must not be nil")
	}
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	sent := 0
	for r := 0; r < t.Rows(); r++ {
		if r > 0 && tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return sent, ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		s := ingest.Sample{Values: t.Row(r)[:t.Width(r)]}
		if ts, ok := t.Timestamp(r); ok {
			s.Timestamp = ts
		}
		payload, err := ingest.EncodeSample(s)
		if err != nil {
			log.Warn("row_skipped", slog.Int("row", r), slog.Any("err", err))
			continue
		}
		if err := pub.Publish(ctx, payload); err != nil {
			return sent, fmt.Errorf("publish row %d: %w", r, err)
		}
		sent++
	}
	log.Info("replay_complete", slog.Int("rows", t.Rows()), slog.Int("published", sent))
	return sent, nil
}

// MQTTPublisher publishes samples to the gateway topic.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// NewMQTTPublisher connects to the broker named in cfg.
func NewMQTTPublisher(cfg ingest.MQTTConfig) (*MQTTPublisher, error) {
	if strings.TrimSpace(cfg.Broker) == "" || strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("mqtt broker and topic are required")
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &MQTTPublisher{client: client, topic: cfg.Topic, qos: cfg.QoS}, nil
}

// Publish waits for the broker acknowledgement or ctx.
func (p *MQTTPublisher) Publish(ctx context.Context, payload []byte) error {
	token := p.client.Publish(p.topic, p.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(disconnectMillis)
	return nil
}

// KafkaPublisher writes samples to the samples topic.
type KafkaPublisher struct {
	writer circuitbreaker.MessageWriter
	closer interface{ Close() error }
}

// NewKafkaPublisher builds a breaker-guarded writer for topic.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 || strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	breaker, err := circuitbreaker.NewKafkaBreakerFromEnv(writerBreaker, nil, log)
	if err != nil {
		log.Error("replay_writer_cb_init_err", slog.Any("err", err))
	}
	return &KafkaPublisher{writer: circuitbreaker.NewCBKafkaWriter(w, breaker), closer: w}, nil
}

// Publish writes one message.
func (p *KafkaPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Value: payload})
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
