// v0
// internal/publish/kafka.go
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"nrgchamp/condenser/internal/analysis"
	"nrgchamp/condenser/internal/circuitbreaker"
	"nrgchamp/condenser/internal/metrics"
)

const (
	kafkaSinkName      = "kafka"
	publisherQueueSize = 256
	resultsBreakerName = "condenser-results-writer"
	drainTimeout       = 5 * time.Second
)

var (
	errPublisherNilLogger  = errors.New("publisher requires a logger")
	errPublisherNilWriter  = errors.New("publisher requires a writer")
	errPublisherNotStarted = errors.New("results publisher not started")
	errPublisherStopped    = errors.New("results publisher stopped")
)

// KafkaConfig selects the results topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type writeCloser interface {
	Close() error
}

type publishRequest struct {
	runID string
	msgs  []kafka.Message
}

// KafkaPublisher asynchronously publishes every row result of a run, keyed
// by run id and row index, to the results topic.
type KafkaPublisher struct {
	cfg       KafkaConfig
	log       *slog.Logger
	writer    circuitbreaker.MessageWriter
	closer    writeCloser
	queue     chan publishRequest
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

// NewKafkaPublisher builds a publisher backed by a kafka.Writer guarded by
// the circuit breaker.
func NewKafkaPublisher(cfg KafkaConfig, log *slog.Logger) (*KafkaPublisher, error) {
	if log == nil {
		return nil, errPublisherNilLogger
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("results topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	base := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	breaker, err := circuitbreaker.NewKafkaBreakerFromEnv(resultsBreakerName, nil, log)
	if err != nil {
		log.Error("results_publisher_cb_init_err", slog.Any("err", err))
	} else if breaker.Enabled() {
		log.Info("results_publisher_cb_enabled", slog.String("name", resultsBreakerName))
	}
	return newKafkaPublisher(cfg, log, circuitbreaker.NewCBKafkaWriter(base, breaker), base)
}

func newKafkaPublisher(cfg KafkaConfig, log *slog.Logger, writer circuitbreaker.MessageWriter, closer writeCloser) (*KafkaPublisher, error) {
	if log == nil {
		return nil, errPublisherNilLogger
	}
	if writer == nil {
		return nil, errPublisherNilWriter
	}
	return &KafkaPublisher{
		cfg:    cfg,
		log:    log.With(slog.String("component", "results_publisher")),
		writer: writer,
		closer: closer,
		queue:  make(chan publishRequest, publisherQueueSize),
	}, nil
}

// Name identifies the sink in metrics and logs.
func (p *KafkaPublisher) Name() string { return kafkaSinkName }

// Start launches the background publishing loop.
func (p *KafkaPublisher) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context must not be nil")
	}
	p.startOnce.Do(func() {
		p.runCtx, p.cancel = context.WithCancel(ctx)
		p.started.Store(true)
		p.wg.Add(1)
		go p.run()
		p.log.Info("results_publisher_started", slog.String("topic", p.cfg.Topic))
	})
	if !p.started.Load() {
		return errPublisherNotStarted
	}
	return nil
}

// Stop cancels the loop, drains queued runs and closes the writer.
func (p *KafkaPublisher) Stop(ctx context.Context) error {
	var stopErr error
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if p.closer != nil {
			if err := p.closer.Close(); err != nil {
				p.log.Error("results_publisher_close_err", slog.Any("err", err))
			}
		}
		p.log.Info("results_publisher_stopped")
	})
	return stopErr
}

// Publish encodes every row of rep and queues them for delivery.
func (p *KafkaPublisher) Publish(ctx context.Context, rep analysis.Report) error {
	if !p.started.Load() {
		return errPublisherNotStarted
	}
	msgs, err := encodeRows(rep)
	if err != nil {
		metrics.ObservePublish(kafkaSinkName, err)
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	select {
	case p.queue <- publishRequest{runID: rep.RunID, msgs: msgs}:
		p.log.Debug("results_publish_enqueued", slog.String("run_id", rep.RunID), slog.Int("rows", len(msgs)))
		return nil
	case <-ctx.Done():
		metrics.ObservePublish(kafkaSinkName, ctx.Err())
		return ctx.Err()
	case <-p.runCtx.Done():
		metrics.ObservePublish(kafkaSinkName, errPublisherStopped)
		return errPublisherStopped
	}
}

func encodeRows(rep analysis.Report) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(rep.Results))
	for _, row := range rep.Results {
		if row.Status == analysis.StatusSkipped {
			continue
		}
		value, err := json.Marshal(rowMessage{RunID: rep.RunID, Source: rep.Source, RowResult: row})
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", row.Index, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rep.RunID + ":" + strconv.Itoa(row.Index)),
			Value: value,
		})
	}
	return msgs, nil
}

func (p *KafkaPublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.runCtx.Done():
			p.drain()
			p.started.Store(false)
			p.log.Info("results_publisher_loop_exit")
			return
		case req := <-p.queue:
			p.deliver(p.runCtx, req)
		}
	}
}

// drain flushes what is already queued with a fresh bounded context, since
// the run context is cancelled by then.
func (p *KafkaPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case req := <-p.queue:
			p.deliver(ctx, req)
		default:
			return
		}
	}
}

func (p *KafkaPublisher) deliver(ctx context.Context, req publishRequest) {
	err := p.writer.WriteMessages(ctx, req.msgs...)
	metrics.ObservePublish(kafkaSinkName, err)
	if err != nil {
		p.log.Error("results_publish_err", slog.String("run_id", req.runID), slog.Any("err", err))
		return
	}
	p.log.Info("results_published", slog.String("run_id", req.runID), slog.Int("rows", len(req.msgs)))
}
