// v0
// internal/ingest/mqtt.go
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"nrgchamp/condenser/internal/metrics"
)

const (
	mqttTransport      = "mqtt"
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesceMillis  = 250
)

// MQTTConfig addresses the instrument gateway broker.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// MQTTSource subscribes to the gateway topic and feeds a Batcher.
type MQTTSource struct {
	cfg     MQTTConfig
	client  mqtt.Client
	batcher *Batcher
	log     *slog.Logger
}

// NewMQTTSource prepares the client; Run connects it.
func NewMQTTSource(cfg MQTTConfig, batcher *Batcher, log *slog.Logger) (*MQTTSource, error) {
	if log == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if batcher == nil {
		return nil, fmt.Errorf("batcher must not be nil")
	}
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("mqtt broker must not be empty")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("mqtt topic must not be empty")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	s := &MQTTSource{
		cfg:     cfg,
		batcher: batcher,
		log:     log.With(slog.String("component", "mqtt_source"), slog.String("topic", cfg.Topic)),
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(cfg.Topic, cfg.QoS, s.onMessage)
		if token.WaitTimeout(mqttConnectTimeout) && token.Error() != nil {
			s.log.Error("subscribe_err", slog.Any("err", token.Error()))
			return
		}
		s.log.Info("subscribed")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.log.Warn("connection_lost", slog.Any("err", err))
	})
	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Run connects, then blocks until ctx is done and disconnects.
func (s *MQTTSource) Run(ctx context.Context) error {
	token := s.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		s.log.Warn("connect_pending", slog.String("broker", s.cfg.Broker))
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	s.log.Info("consumer_start", slog.String("broker", s.cfg.Broker))
	<-ctx.Done()
	s.client.Disconnect(mqttQuiesceMillis)
	s.log.Info("consumer_stop", slog.String("reason", "context"))
	return nil
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	metrics.IncIngestMessage(mqttTransport)
	sample, err := DecodeSample(msg.Payload())
	if err != nil {
		metrics.IncIngestDecodeDrop(dropReason(err))
		s.log.Warn("decode_err", slog.Any("err", err), slog.Uint64("message_id", uint64(msg.MessageID())))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mqttConnectTimeout)
	defer cancel()
	if err := s.batcher.Add(ctx, mqttTransport, sample); err != nil {
		s.log.Error("batch_add_err", slog.Any("err", err))
	}
}
