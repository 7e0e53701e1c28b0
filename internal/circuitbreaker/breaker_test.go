// v0
// internal/circuitbreaker/breaker_test.go
package circuitbreaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config, probe func(context.Context) error) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("test", cfg, probe, quietLogger())
	b.now = clock.now
	return b, clock
}

var errBroker = errors.New("broker unavailable")

func failing(context.Context) error { return errBroker }
func passing(context.Context) error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 3, ResetTimeout: time.Second, SuccessesToClose: 1}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := b.Execute(ctx, failing); !errors.Is(err, errBroker) || errors.Is(err, ErrOpen) {
			t.Fatalf("attempt %d: expected plain failure, got %v", i, err)
		}
	}
	if err := b.Execute(ctx, failing); !errors.Is(err, ErrOpen) {
		t.Fatalf("third failure should trip the breaker, got %v", err)
	}
	if b.State() != Open {
		t.Fatalf("expected Open, got %s", b.State())
	}

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Fatalf("open breaker must fast-fail without calling op (err=%v called=%v)", err, called)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 2, ResetTimeout: time.Second, SuccessesToClose: 1}, nil)
	ctx := context.Background()
	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, passing)
	if err := b.Execute(ctx, failing); errors.Is(err, ErrOpen) {
		t.Fatalf("failure count should have been reset by the success")
	}
	if b.State() != Closed {
		t.Fatalf("expected Closed, got %s", b.State())
	}
}

func TestBreakerHalfOpenNeedsSuccessesToClose(t *testing.T) {
	b, clock := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Second, SuccessesToClose: 2}, nil)
	ctx := context.Background()
	_ = b.Execute(ctx, failing)
	clock.advance(1500 * time.Millisecond)

	if err := b.Execute(ctx, passing); err != nil {
		t.Fatalf("half-open call failed: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected HalfOpen after one success, got %s", b.State())
	}
	if err := b.Execute(ctx, passing); err != nil {
		t.Fatalf("half-open call failed: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("expected Closed, got %s", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Config{MaxFailures: 5, ResetTimeout: time.Second, SuccessesToClose: 1}, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = b.Execute(ctx, failing)
	}
	clock.advance(2 * time.Second)
	if err := b.Execute(ctx, failing); !errors.Is(err, ErrOpen) {
		t.Fatalf("half-open failure should reopen, got %v", err)
	}
	if b.State() != Open {
		t.Fatalf("expected Open, got %s", b.State())
	}
}

func TestBreakerProbeGuardsHalfOpen(t *testing.T) {
	probeErr := errors.New("probe down")
	probeCalls := 0
	b, clock := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Second, SuccessesToClose: 1}, func(context.Context) error {
		probeCalls++
		return probeErr
	})
	ctx := context.Background()
	_ = b.Execute(ctx, failing)
	clock.advance(2 * time.Second)

	called := false
	if err := b.Execute(ctx, func(context.Context) error { called = true; return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("failed probe must keep the breaker open, got %v", err)
	}
	if called || probeCalls != 1 {
		t.Fatalf("op must not run after failed probe (called=%v probes=%d)", called, probeCalls)
	}
	if b.State() != Open {
		t.Fatalf("expected Open, got %s", b.State())
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []Config{
		{MaxFailures: 0, ResetTimeout: time.Second, SuccessesToClose: 1},
		{MaxFailures: 1, ResetTimeout: 0, SuccessesToClose: 1},
		{MaxFailures: 1, ResetTimeout: time.Second, SuccessesToClose: 0},
	}
	for i, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if err := (Config{MaxFailures: 1, ResetTimeout: time.Second, SuccessesToClose: 1}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStateString(t *testing.T) {
	if Closed.String() != "Closed" || Open.String() != "Open" || HalfOpen.String() != "HalfOpen" {
		t.Fatalf("unexpected state names")
	}
}

func TestNewKafkaBreakerFromEnv(t *testing.T) {
	t.Setenv("CB_ENABLED", "true")
	t.Setenv("CB_KAFKA_FAILURE_THRESHOLD", "4")
	t.Setenv("CB_KAFKA_SUCCESS_THRESHOLD", "3")
	t.Setenv("CB_KAFKA_OPEN_SECONDS", "0.05")
	t.Setenv("CB_KAFKA_TIMEOUT_MS", "150")
	t.Setenv("CB_KAFKA_BACKOFF_MS", "25")

	kb, err := NewKafkaBreakerFromEnv("env-breaker", nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !kb.Enabled() {
		t.Fatalf("expected breaker enabled")
	}
	if kb.failureThreshold != 4 {
		t.Fatalf("expected failure threshold 4, got %d", kb.failureThreshold)
	}
	if kb.timeout != 150*time.Millisecond {
		t.Fatalf("expected timeout 150ms, got %s", kb.timeout)
	}
	if kb.backoff != 25*time.Millisecond {
		t.Fatalf("expected backoff 25ms, got %s", kb.backoff)
	}
	if kb.Breaker().cfg.SuccessesToClose != 3 {
		t.Fatalf("expected success threshold 3, got %d", kb.Breaker().cfg.SuccessesToClose)
	}
}

func TestNewKafkaBreakerFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("CB_KAFKA_FAILURE_THRESHOLD", "zero")
	if _, err := NewKafkaBreakerFromEnv("bad", nil, quietLogger()); err == nil {
		t.Fatalf("expected parse error")
	}
	t.Setenv("CB_KAFKA_FAILURE_THRESHOLD", "0")
	if _, err := NewKafkaBreakerFromEnv("bad", nil, quietLogger()); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestKafkaSettingsFromEnvKeepsDefaultsForBlankValues(t *testing.T) {
	t.Setenv("CB_ENABLED", "")
	t.Setenv("CB_KAFKA_BACKOFF_MS", "  ")
	s, err := KafkaSettingsFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != DefaultKafkaSettings() {
		t.Fatalf("expected defaults, got %+v", s)
	}
}

func TestNewKafkaBreakerValidatesSettings(t *testing.T) {
	s := DefaultKafkaSettings()
	s.Enabled = true
	s.Backoff = -time.Millisecond
	if _, err := NewKafkaBreaker("bad", s, nil, quietLogger()); err == nil {
		t.Fatalf("expected error for negative backoff")
	}

	s.Backoff = 0
	kb, err := NewKafkaBreaker("samples-reader", s, nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !kb.Enabled() || kb.failureThreshold != s.Breaker.MaxFailures {
		t.Fatalf("settings not applied: %+v", kb)
	}
}

func TestNilKafkaBreakerPassesThrough(t *testing.T) {
	stub := &stubKafkaWriter{}
	if err := NewCBKafkaWriter(stub, nil).WriteMessages(context.Background(), kafka.Message{Value: []byte("x")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected one call, got %d", stub.calls)
	}
}

func TestCBKafkaWriterRetryAndStateTransitions(t *testing.T) {
	t.Setenv("CB_ENABLED", "true")
	t.Setenv("CB_KAFKA_FAILURE_THRESHOLD", "2")
	t.Setenv("CB_KAFKA_SUCCESS_THRESHOLD", "2")
	t.Setenv("CB_KAFKA_OPEN_SECONDS", "0.05")
	t.Setenv("CB_KAFKA_TIMEOUT_MS", "50")
	t.Setenv("CB_KAFKA_BACKOFF_MS", "10")

	kb, err := NewKafkaBreakerFromEnv("writer-breaker", nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stub := &stubKafkaWriter{failuresBeforeSuccess: 2}
	writer := NewCBKafkaWriter(stub, kb)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := writer.WriteMessages(ctx, kafka.Message{Value: []byte("payload")}); err != nil {
		t.Fatalf("unexpected error on write: %v", err)
	}
	if kb.Breaker().State() != HalfOpen {
		t.Fatalf("expected breaker to remain half-open after first success, got %s", kb.Breaker().State())
	}
	if err := writer.WriteMessages(ctx, kafka.Message{Value: []byte("payload")}); err != nil {
		t.Fatalf("second write should succeed, got %v", err)
	}
	if kb.Breaker().State() != Closed {
		t.Fatalf("expected breaker closed after second success, got %s", kb.Breaker().State())
	}
	if stub.calls != 4 {
		t.Fatalf("expected 4 write attempts, got %d", stub.calls)
	}
}

func TestCBKafkaWriterGivesUpAfterThreshold(t *testing.T) {
	t.Setenv("CB_ENABLED", "true")
	t.Setenv("CB_KAFKA_FAILURE_THRESHOLD", "3")
	t.Setenv("CB_KAFKA_OPEN_SECONDS", "60")
	t.Setenv("CB_KAFKA_BACKOFF_MS", "1")

	kb, err := NewKafkaBreakerFromEnv("writer-breaker", nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stub := &stubKafkaWriter{failuresBeforeSuccess: 100}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = NewCBKafkaWriter(stub, kb).WriteMessages(ctx, kafka.Message{Value: []byte("x")})
	if err == nil {
		t.Fatalf("expected error while broker is down")
	}
	if kb.Breaker().State() != Open {
		t.Fatalf("expected Open, got %s", kb.Breaker().State())
	}
}

func TestCBKafkaReaderDisabled(t *testing.T) {
	t.Setenv("CB_ENABLED", "false")

	kb, err := NewKafkaBreakerFromEnv("reader-breaker", nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kb.Enabled() {
		t.Fatalf("expected breaker disabled")
	}

	msg := kafka.Message{Topic: "demo", Value: []byte("v")}
	reader := &stubKafkaReader{message: msg}
	wrapped := NewCBKafkaReader(reader, kb)

	out, err := wrapped.FetchMessage(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.calls != 1 {
		t.Fatalf("expected single call when breaker disabled, got %d", reader.calls)
	}
	if string(out.Value) != string(msg.Value) {
		t.Fatalf("expected %q, got %q", msg.Value, out.Value)
	}
	if err := wrapped.CommitMessages(context.Background(), out); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if reader.commits != 1 {
		t.Fatalf("expected commit forwarded, got %d", reader.commits)
	}
}

type stubKafkaWriter struct {
	mu                    sync.Mutex
	calls                 int
	failuresBeforeSuccess int
}

func (s *stubKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.calls++
	if s.calls <= s.failuresBeforeSuccess {
		return errBroker
	}
	return nil
}

type stubKafkaReader struct {
	message kafka.Message
	calls   int
	commits int
}

func (s *stubKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	s.calls++
	return s.message, nil
}

func (s *stubKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	s.commits += len(msgs)
	return nil
}
