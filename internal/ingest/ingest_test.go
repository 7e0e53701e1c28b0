// v0
// internal/ingest/ingest_test.go
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"nrgchamp/condenser/internal/metrics"
	"nrgchamp/condenser/internal/samples"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeSample(t *testing.T) {
	s, err := DecodeSample([]byte(`{"ts":"2024-06-01T08:00:00Z","values":[null,101.3,150]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !s.Timestamp.Equal(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", s.Timestamp)
	}
	if len(s.Values) != 3 || !math.IsNaN(s.Values[0]) || s.Values[1] != 101.3 {
		t.Fatalf("unexpected values %v", s.Values)
	}

	s, err = DecodeSample([]byte(`{"ts":1717228800000,"values":[1]}`))
	if err != nil {
		t.Fatalf("decode epoch: %v", err)
	}
	if s.Timestamp.Unix() != 1717228800 {
		t.Fatalf("unexpected epoch timestamp %s", s.Timestamp)
	}

	s, err = DecodeSample([]byte(`{"values":[1,2]}`))
	if err != nil || !s.Timestamp.IsZero() {
		t.Fatalf("missing ts must decode as zero time (err=%v ts=%s)", err, s.Timestamp)
	}
}

func TestDecodeSampleDropReasons(t *testing.T) {
	cases := map[string]string{
		`not json`:                        metrics.DropReasonJSONError,
		`{"ts":"2024-06-01","values":[]}`: metrics.DropReasonEmptyValues,
		`{"ts":"yesterday","values":[1]}`: metrics.DropReasonTimestamp,
		`{"ts":true,"values":[1]}`:        metrics.DropReasonTimestamp,
	}
	for raw, want := range cases {
		_, err := DecodeSample([]byte(raw))
		if err == nil {
			t.Fatalf("%s: expected error", raw)
		}
		if got := dropReason(err); got != want {
			t.Fatalf("%s: expected reason %s, got %s", raw, want, got)
		}
	}
}

type flushed struct {
	source string
	rows   int
	first  float64
}

type recorder struct {
	mu      sync.Mutex
	batches []flushed
	ch      chan struct{}
}

func newRecorder() *recorder { return &recorder{ch: make(chan struct{}, 16)} }

func (r *recorder) handle(_ context.Context, tbl *samples.Table, source string) {
	first, _ := tbl.At(0, 0)
	r.mu.Lock()
	r.batches = append(r.batches, flushed{source: source, rows: tbl.Rows(), first: first})
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a batch")
	}
}

func (r *recorder) snapshot() []flushed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]flushed(nil), r.batches...)
}

func TestBatcherFlushesOnSize(t *testing.T) {
	rec := newRecorder()
	b := NewBatcher(3, time.Hour, rec.handle, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i := 0; i < 3; i++ {
		if err := b.Add(ctx, "kafka", Sample{Values: []float64{float64(i)}}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	rec.wait(t)
	got := rec.snapshot()
	if len(got) != 1 || got[0].rows != 3 || got[0].source != "kafka" || got[0].first != 0 {
		t.Fatalf("unexpected batches %+v", got)
	}
}

func TestBatcherFlushesOnInterval(t *testing.T) {
	rec := newRecorder()
	b := NewBatcher(100, 20*time.Millisecond, rec.handle, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	if err := b.Add(ctx, "mqtt", Sample{Values: []float64{7}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	rec.wait(t)
	got := rec.snapshot()
	if len(got) != 1 || got[0].rows != 1 || got[0].first != 7 {
		t.Fatalf("unexpected batches %+v", got)
	}
}

func TestBatcherFlushesRemainderOnStop(t *testing.T) {
	rec := newRecorder()
	b := NewBatcher(100, time.Hour, rec.handle, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	if err := b.Add(ctx, "kafka", Sample{Values: []float64{1}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.Add(ctx, "mqtt", Sample{Values: []float64{2}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cancel()
	<-done
	if got := rec.snapshot(); len(got) != 2 {
		t.Fatalf("expected one final batch per source, got %+v", got)
	}
}

type stubReader struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	fails   int
	commits []int64
}

func (s *stubReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return kafka.Message{}, errors.New("leader not available")
	}
	if len(s.msgs) > 0 {
		msg := s.msgs[0]
		s.msgs = s.msgs[1:]
		s.mu.Unlock()
		return msg, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (s *stubReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.commits = append(s.commits, m.Offset)
	}
	return nil
}

func (s *stubReader) committed() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.commits...)
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error { c.n++; return nil }

func TestKafkaSourceBatchesAndCommits(t *testing.T) {
	rec := newRecorder()
	b := NewBatcher(2, time.Hour, rec.handle, testLogger())
	reader := &stubReader{msgs: []kafka.Message{
		{Offset: 10, Value: []byte(`{"values":[1.5]}`)},
		{Offset: 11, Value: []byte(`garbage`)},
		{Offset: 12, Value: []byte(`{"values":[2.5]}`)},
	}}
	closer := &closeCounter{}
	src := newKafkaSource("plant.condenser.samples", reader, closer, b, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	done := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(done)
	}()

	rec.wait(t)
	got := rec.snapshot()
	if len(got) != 1 || got[0].rows != 2 || got[0].first != 1.5 {
		t.Fatalf("unexpected batches %+v", got)
	}
	cancel()
	<-done
	if commits := reader.committed(); len(commits) != 3 {
		t.Fatalf("every fetched message must be committed, got %v", commits)
	}
	if closer.n != 1 {
		t.Fatalf("reader must be closed on stop")
	}
}

func TestKafkaSourceStopsDuringBackoff(t *testing.T) {
	b := NewBatcher(1, time.Hour, func(context.Context, *samples.Table, string) {}, testLogger())
	src := newKafkaSource("t", &stubReader{fails: 1}, nil, b, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not stop with its context")
	}
}

type stubMessage struct{ payload []byte }

func (m stubMessage) Duplicate() bool { return false }
func (m stubMessage) Qos() byte { return 0 }
func (m stubMessage) Retained() bool { return false }
func (m stubMessage) Topic() string { return "plant/condenser/samples" }
func (m stubMessage) MessageID() uint16 { return 1 }
func (m stubMessage) Payload() []byte { return m.payload }
func (m stubMessage) Ack() {}

func TestMQTTSourceForwardsSamples(t *testing.T) {
	rec := newRecorder()
	b := NewBatcher(1, time.Hour, rec.handle, testLogger())
	src, err := NewMQTTSource(MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "test", Topic: "plant/condenser/samples"}, b, testLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	src.onMessage(nil, stubMessage{payload: []byte(`nope`)})
	src.onMessage(nil, stubMessage{payload: []byte(`{"values":[4]}`)})
	rec.wait(t)
	got := rec.snapshot()
	if len(got) != 1 || got[0].source != "mqtt" || got[0].first != 4 {
		t.Fatalf("unexpected batches %+v", got)
	}
}

func TestNewMQTTSourceValidates(t *testing.T) {
	b := NewBatcher(1, time.Second, func(context.Context, *samples.Table, string) {}, testLogger())
	if _, err := NewMQTTSource(MQTTConfig{Topic: "x"}, b, testLogger()); err == nil {
		t.Fatalf("expected error for empty broker")
	}
	if _, err := NewMQTTSource(MQTTConfig{Broker: "tcp://b:1883", Topic: "x", QoS: 3}, b, testLogger()); err == nil {
		t.Fatalf("expected error for invalid qos")
	}
}
