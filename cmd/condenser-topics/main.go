// v0
// cmd/condenser-topics/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"nrgchamp/condenser/internal/app"
	"nrgchamp/condenser/internal/config"
)

const adminTimeout = 10 * time.Second

// topicSpec is the desired layout of one topic.
type topicSpec struct {
	name        string
	partitions  int
	replication int
}

type options struct {
	props             string
	samplesPartitions int
	resultsPartitions int
	replication       int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger := app.NewLogger(slog.LevelInfo, stderr)

	cfg, err := config.LoadFrom(o.props)
	if err != nil {
		logger.Error("config_load_failed", slog.Any("err", err))
		return 1
	}
	topics := plan(cfg, o)
	logger.Info("topic_init_start",
		slog.String("brokers", strings.Join(cfg.KafkaBrokers, ",")),
		slog.Int("topics", len(topics)),
	)
	if err := ensureTopics(ctx, logger, cfg.KafkaBrokers[0], topics); err != nil {
		logger.Error("topic_init_failed", slog.Any("err", err))
		return 1
	}
	logger.Info("topic_init_complete")
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("condenser-topics", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.props, "props", "condenser.properties", "service properties file")
	fs.IntVar(&o.samplesPartitions, "samples-partitions", 1, "partitions of the samples topic")
	fs.IntVar(&o.resultsPartitions, "results-partitions", 3, "partitions of the results topic")
	fs.IntVar(&o.replication, "replication", 1, "replication factor of both topics")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.samplesPartitions < 1 || o.resultsPartitions < 1 {
		return options{}, errors.New("partition counts must be at least 1")
	}
	if o.replication < 1 {
		return options{}, errors.New("replication must be positive")
	}
	return o, nil
}

// plan lists the topics the enabled components read or write.
func plan(cfg config.Config, o options) []topicSpec {
	var out []topicSpec
	if cfg.IngestEnabled {
		out = append(out, topicSpec{name: cfg.SamplesTopic, partitions: o.samplesPartitions, replication: o.replication})
	}
	if cfg.PublishEnabled {
		out = append(out, topicSpec{name: cfg.ResultsTopic, partitions: o.resultsPartitions, replication: o.replication})
	}
	return out
}

func ensureTopics(ctx context.Context, log *slog.Logger, broker string, topics []topicSpec) error {
	if len(topics) == 0 {
		log.Info("topics_skipped", slog.String("reason", "no kafka component enabled"))
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, adminTimeout)
	defer cancel()
	conn, err := kafka.DialContext(dialCtx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", broker, err)
	}
	defer func() {
		_ = conn.Close()
	}()
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("fetch controller metadata: %w", err)
	}
	ctrlAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	admin, err := kafka.DialContext(dialCtx, "tcp", ctrlAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", ctrlAddr, err)
	}
	defer func() {
		_ = admin.Close()
	}()
	if err := admin.SetDeadline(time.Now().Add(adminTimeout)); err != nil {
		log.Warn("controller_deadline", slog.Any("err", err))
	}

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: t.name, NumPartitions: t.partitions, ReplicationFactor: t.replication})
	}
	if err := admin.CreateTopics(configs...); err != nil {
		if !isAlreadyExists(err) {
			return fmt.Errorf("create topics: %w", err)
		}
		log.Info("topics_exist", slog.Any("err", err))
	} else {
		log.Info("topics_created", slog.Int("count", len(configs)))
	}

	for _, t := range topics {
		parts, err := admin.ReadPartitions(t.name)
		if err != nil {
			return fmt.Errorf("read partitions for %s: %w", t.name, err)
		}
		if n := countPartitions(parts, t.name); n < t.partitions {
			return fmt.Errorf("topic %s has %d partitions; expected at least %d", t.name, n, t.partitions)
		}
		log.Info("topic_ready", slog.String("topic", t.name), slog.Int("partitions", t.partitions))
	}
	return nil
}

func countPartitions(parts []kafka.Partition, topic string) int {
	seen := make(map[int]struct{}, len(parts))
	for _, p := range parts {
		if p.Topic == topic {
			seen[p.ID] = struct{}{}
		}
	}
	return len(seen)
}

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, kafka.TopicAlreadyExists) || strings.Contains(err.Error(), "already exists")
}
