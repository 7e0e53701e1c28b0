// v0
// internal/circuitbreaker/kafka.go
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of kafka.Writer the wrappers use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MessageReader is the subset of kafka.Reader the wrappers use.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSettings tune a guarded Kafka client. Breaker.MaxFailures also caps
// the attempts of a single call while the breaker stays closed.
type KafkaSettings struct {
	Enabled        bool
	Breaker        Config
	AttemptTimeout time.Duration
	Backoff        time.Duration
}

// DefaultKafkaSettings leaves the breaker off.
func DefaultKafkaSettings() KafkaSettings {
	return KafkaSettings{
		Breaker: Config{
			MaxFailures:      5,
			ResetTimeout:     30 * time.Second,
			SuccessesToClose: 2,
		},
		AttemptTimeout: 3 * time.Second,
		Backoff:        200 * time.Millisecond,
	}
}

// Validate rejects settings the retry loop cannot run with.
func (s KafkaSettings) Validate() error {
	if err := s.Breaker.Validate(); err != nil {
		return err
	}
	if s.AttemptTimeout < 0 || s.Backoff < 0 {
		return errors.New("attempt timeout and backoff must not be negative")
	}
	return nil
}

var kafkaEnv = []struct {
	key   string
	apply func(*KafkaSettings, string) error
}{
	{"CB_ENABLED", func(s *KafkaSettings, v string) error {
		s.Enabled = parseSwitch(v)
		return nil
	}},
	{"CB_KAFKA_FAILURE_THRESHOLD", func(s *KafkaSettings, v string) (err error) {
		s.Breaker.MaxFailures, err = strconv.Atoi(v)
		return err
	}},
	{"CB_KAFKA_SUCCESS_THRESHOLD", func(s *KafkaSettings, v string) (err error) {
		s.Breaker.SuccessesToClose, err = strconv.Atoi(v)
		return err
	}},
	{"CB_KAFKA_OPEN_SECONDS", func(s *KafkaSettings, v string) error {
		secs, err := strconv.ParseFloat(v, 64)
		s.Breaker.ResetTimeout = time.Duration(secs * float64(time.Second))
		return err
	}},
	{"CB_KAFKA_TIMEOUT_MS", func(s *KafkaSettings, v string) error {
		return setMillis(&s.AttemptTimeout, v)
	}},
	{"CB_KAFKA_BACKOFF_MS", func(s *KafkaSettings, v string) error {
		return setMillis(&s.Backoff, v)
	}},
}

// KafkaSettingsFromEnv overlays CB_ENABLED and the CB_KAFKA_* variables on
// the defaults. Blank variables keep the default.
func KafkaSettingsFromEnv() (KafkaSettings, error) {
	s := DefaultKafkaSettings()
	for _, e := range kafkaEnv {
		raw, ok := os.LookupEnv(e.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := e.apply(&s, strings.TrimSpace(raw)); err != nil {
			return KafkaSettings{}, fmt.Errorf("invalid %s: %w", e.key, err)
		}
	}
	if err := s.Validate(); err != nil {
		return KafkaSettings{}, fmt.Errorf("kafka breaker: %w", err)
	}
	return s, nil
}

// KafkaBreaker retries Kafka calls through a shared Breaker.
type KafkaBreaker struct {
	enabled          bool
	failureThreshold int
	timeout          time.Duration
	backoff          time.Duration
	breaker          *Breaker
}

// NewKafkaBreaker builds a breaker named after the client it guards.
func NewKafkaBreaker(name string, s KafkaSettings, probe func(ctx context.Context) error, logger *slog.Logger) (*KafkaBreaker, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("kafka breaker %s: %w", name, err)
	}
	kb := &KafkaBreaker{
		enabled:          s.Enabled,
		failureThreshold: s.Breaker.MaxFailures,
		timeout:          s.AttemptTimeout,
		backoff:          s.Backoff,
	}
	if s.Enabled {
		kb.breaker = New(name, s.Breaker, probe, logger)
	}
	return kb, nil
}

// NewKafkaBreakerFromEnv is NewKafkaBreaker with KafkaSettingsFromEnv.
func NewKafkaBreakerFromEnv(name string, probe func(ctx context.Context) error, logger *slog.Logger) (*KafkaBreaker, error) {
	s, err := KafkaSettingsFromEnv()
	if err != nil {
		return nil, err
	}
	return NewKafkaBreaker(name, s, probe, logger)
}

// Enabled reports whether breaker protections are active.
func (k *KafkaBreaker) Enabled() bool {
	return k != nil && k.enabled && k.breaker != nil
}

// Breaker exposes the underlying breaker for inspection.
func (k *KafkaBreaker) Breaker() *Breaker {
	if k == nil {
		return nil
	}
	return k.breaker
}

// do keeps retrying while the breaker fast-fails and gives up after
// failureThreshold plain failures or when ctx ends.
func (k *KafkaBreaker) do(ctx context.Context, op func(ctx context.Context) error) error {
	if !k.Enabled() {
		return op(ctx)
	}
	for failures := 0; ; {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := k.attempt(ctx, op)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case !errors.Is(err, ErrOpen):
			failures++
			if failures >= k.failureThreshold {
				return err
			}
		}
		if err := k.pause(ctx); err != nil {
			return err
		}
	}
}

func (k *KafkaBreaker) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}
	return k.breaker.Execute(ctx, op)
}

func (k *KafkaBreaker) pause(ctx context.Context) error {
	if k.backoff <= 0 {
		return nil
	}
	timer := time.NewTimer(k.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CBKafkaWriter guards WriteMessages.
type CBKafkaWriter struct {
	breaker *KafkaBreaker
	writer  MessageWriter
}

// NewCBKafkaWriter wraps writer. A nil or disabled breaker passes calls through.
func NewCBKafkaWriter(writer MessageWriter, breaker *KafkaBreaker) *CBKafkaWriter {
	return &CBKafkaWriter{writer: writer, breaker: breaker}
}

// WriteMessages publishes msgs under the breaker policy.
func (w *CBKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w == nil || w.writer == nil {
		return errors.New("nil kafka writer")
	}
	return w.breaker.do(ctx, func(execCtx context.Context) error {
		return w.writer.WriteMessages(execCtx, msgs...)
	})
}

// CBKafkaReader guards FetchMessage; commits go straight to the reader.
type CBKafkaReader struct {
	breaker *KafkaBreaker
	reader  MessageReader
}

// NewCBKafkaReader wraps reader. A nil or disabled breaker passes calls through.
func NewCBKafkaReader(reader MessageReader, breaker *KafkaBreaker) *CBKafkaReader {
	return &CBKafkaReader{reader: reader, breaker: breaker}
}

// FetchMessage reads the next sample message under the breaker policy.
func (r *CBKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r == nil || r.reader == nil {
		return kafka.Message{}, errors.New("nil kafka reader")
	}
	var msg kafka.Message
	err := r.breaker.do(ctx, func(execCtx context.Context) (err error) {
		msg, err = r.reader.FetchMessage(execCtx)
		return err
	})
	return msg, err
}

// CommitMessages forwards to the wrapped reader.
func (r *CBKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if r == nil || r.reader == nil {
		return errors.New("nil kafka reader")
	}
	return r.reader.CommitMessages(ctx, msgs...)
}

func setMillis(dst *time.Duration, v string) error {
	ms, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}

func parseSwitch(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
