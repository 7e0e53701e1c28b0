// v0
// internal/ingest/batcher.go
package ingest

import (
	"context"
	"log/slog"
	"time"

	"nrgchamp/condenser/internal/samples"
)

// Handler evaluates one flushed batch.
type Handler func(ctx context.Context, t *samples.Table, source string)

type pending struct {
	source string
	sample Sample
}

// Batcher groups samples per source and hands each group to the handler
// once it holds size samples or the flush interval passes.
type Batcher struct {
	size     int
	interval time.Duration
	handle   Handler
	log      *slog.Logger
	in       chan pending
}

// NewBatcher builds a batcher; size below 1 means 1 and a non-positive
// interval means one second.
func NewBatcher(size int, interval time.Duration, handle Handler, log *slog.Logger) *Batcher {
	if size < 1 {
		size = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Batcher{
		size:     size,
		interval: interval,
		handle:   handle,
		log:      log.With(slog.String("component", "batcher")),
		in:       make(chan pending, size*2),
	}
}

// Add queues s for source. It blocks while the batcher is busy.
func (b *Batcher) Add(ctx context.Context, source string, s Sample) error {
	select {
	case b.in <- pending{source: source, sample: s}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run collects samples until ctx is done, then flushes what is left.
func (b *Batcher) Run(ctx context.Context) {
	buffers := make(map[string][]Sample)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	flush := func(fctx context.Context, source string) {
		batch := buffers[source]
		if len(batch) == 0 {
			return
		}
		delete(buffers, source)
		b.log.Info("batch_flush", slog.String("source", source), slog.Int("rows", len(batch)))
		b.handle(fctx, toTable(batch), source)
	}

	for {
		select {
		case <-ctx.Done():
			final := context.WithoutCancel(ctx)
		drain:
			for {
				select {
				case p := <-b.in:
					buffers[p.source] = append(buffers[p.source], p.sample)
				default:
					break drain
				}
			}
			for source := range buffers {
				flush(final, source)
			}
			b.log.Info("batcher_stop")
			return
		case p := <-b.in:
			buffers[p.source] = append(buffers[p.source], p.sample)
			if len(buffers[p.source]) >= b.size {
				flush(ctx, p.source)
			}
		case <-ticker.C:
			for source := range buffers {
				flush(ctx, source)
			}
		}
	}
}

func toTable(batch []Sample) *samples.Table {
	rows := make([][]float64, len(batch))
	times := make([]time.Time, len(batch))
	for i, s := range batch {
		rows[i] = s.Values
		times[i] = s.Timestamp
	}
	return samples.NewTable(rows, times)
}
