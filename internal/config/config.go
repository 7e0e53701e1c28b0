// v0
// internal/config/config.go
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures the runtime settings of the condenser service and the
// batch evaluator. Values come from defaults, an optional properties file
// and environment variables, in that order.
type Config struct {
	// ListenAddress defines the TCP address used by the HTTP server.
	ListenAddress string
	// LogFilePath is the file every log line is teed to.
	LogFilePath string
	// HTTPReadTimeout bounds the time to read incoming requests.
	HTTPReadTimeout time.Duration
	// HTTPWriteTimeout bounds the time to write responses.
	HTTPWriteTimeout time.Duration
	// ShutdownTimeout limits graceful shutdown attempts.
	ShutdownTimeout time.Duration
	// PropertiesPath records the path used to load property values.
	PropertiesPath string
	// PlantPropertiesPath points at the geometry and catalog constants.
	PlantPropertiesPath string
	// Workers sizes the row worker pool; zero selects the CPU count.
	Workers int
	// StorePath is the JSONL file holding evaluated runs.
	StorePath string
	// AccessLog enables the combined access log on stdout.
	AccessLog bool

	// KafkaBrokers lists the bootstrap brokers.
	KafkaBrokers []string
	// IngestEnabled starts the Kafka sample consumer.
	IngestEnabled bool
	// SamplesTopic carries raw plant samples.
	SamplesTopic string
	// SamplesGroupID is the consumer group of the sample consumer.
	SamplesGroupID string
	// PublishEnabled starts the results publisher.
	PublishEnabled bool
	// ResultsTopic receives one message per evaluated row.
	ResultsTopic string

	// BatchSize flushes a streaming batch once it holds this many samples.
	BatchSize int
	// BatchFlush flushes a non-empty streaming batch after this interval.
	BatchFlush time.Duration

	// MQTTEnabled starts the instrument gateway subscriber.
	MQTTEnabled bool
	MQTTBroker  string
	MQTTTopic   string
	MQTTClient  string
	MQTTQoS     byte

	// InfluxEnabled writes successful rows to InfluxDB.
	InfluxEnabled bool
	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string
}

const (
	defaultListenAddress = ":8090"
	defaultLogFile       = "logs/condenser.log"
	defaultReadTimeout   = 10 * time.Second
	defaultWriteTimeout  = 60 * time.Second
	defaultShutdown      = 10 * time.Second
	defaultPropsPath     = "condenser.properties"
	defaultPlantPath     = "plant.properties"
	defaultStorePath     = "data/runs.jsonl"
	defaultKafkaBrokers  = "kafka:9092"
	defaultSamplesTopic  = "plant.condenser.samples"
	defaultSamplesGroup  = "condenser-evaluator"
	defaultResultsTopic  = "plant.condenser.results"
	defaultBatchSize     = 60
	defaultBatchFlush    = 30 * time.Second
	defaultMQTTBroker    = "tcp://mosquitto:1883"
	defaultMQTTTopic     = "plant/condenser/samples"
	defaultMQTTClient    = "condenser-evaluator"
	defaultMQTTQoS       = 1
	defaultInfluxURL     = "http://influxdb:8086"
	defaultInfluxBucket  = "condenser"
)

// Load resolves configuration by layering defaults, an optional
// properties file, and finally environment variables. The properties
// file location can be overridden with CONDENSER_PROPERTIES_PATH.
func Load() (Config, error) {
	propsPath := strings.TrimSpace(os.Getenv("CONDENSER_PROPERTIES_PATH"))
	if propsPath == "" {
		propsPath = defaultPropsPath
	}
	return LoadFrom(propsPath)
}

// LoadFrom is Load with an explicit properties path. A missing file is not
// an error.
func LoadFrom(propsPath string) (Config, error) {
	cfg := Defaults()
	cfg.PropertiesPath = propsPath

	if err := applyProperties(&cfg, propsPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		ListenAddress:       defaultListenAddress,
		LogFilePath:         filepath.Clean(defaultLogFile),
		HTTPReadTimeout:     defaultReadTimeout,
		HTTPWriteTimeout:    defaultWriteTimeout,
		ShutdownTimeout:     defaultShutdown,
		PlantPropertiesPath: defaultPlantPath,
		StorePath:           filepath.Clean(defaultStorePath),
		KafkaBrokers:        splitAndTrim(defaultKafkaBrokers),
		IngestEnabled:       true,
		SamplesTopic:        defaultSamplesTopic,
		SamplesGroupID:      defaultSamplesGroup,
		PublishEnabled:      true,
		ResultsTopic:        defaultResultsTopic,
		BatchSize:           defaultBatchSize,
		BatchFlush:          defaultBatchFlush,
		MQTTBroker:          defaultMQTTBroker,
		MQTTTopic:           defaultMQTTTopic,
		MQTTClient:          defaultMQTTClient,
		MQTTQoS:             defaultMQTTQoS,
		InfluxURL:           defaultInfluxURL,
		InfluxBucket:        defaultInfluxBucket,
	}
}

func applyProperties(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ";") {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid properties entry on line %d", line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := setProperty(cfg, key, value); err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read properties: %w", err)
	}
	return nil
}

func setProperty(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "listen_address":
		cfg.ListenAddress, err = nonEmpty(value)
	case "log_path":
		var p string
		p, err = nonEmpty(value)
		cfg.LogFilePath = filepath.Clean(p)
	case "http_read_timeout_ms":
		cfg.HTTPReadTimeout, err = parsePositiveMillis(value)
	case "http_write_timeout_ms":
		cfg.HTTPWriteTimeout, err = parsePositiveMillis(value)
	case "shutdown_timeout_ms":
		cfg.ShutdownTimeout, err = parsePositiveMillis(value)
	case "plant.properties_path":
		cfg.PlantPropertiesPath, err = nonEmpty(value)
	case "workers":
		cfg.Workers, err = parseNonNegative(value)
	case "store.path":
		var p string
		p, err = nonEmpty(value)
		cfg.StorePath = filepath.Clean(p)
	case "http.access_log":
		cfg.AccessLog, err = strconv.ParseBool(value)
	case "kafka.brokers":
		cfg.KafkaBrokers, err = brokers(value)
	case "kafka.ingest.enabled":
		cfg.IngestEnabled, err = strconv.ParseBool(value)
	case "kafka.samples_topic":
		cfg.SamplesTopic, err = nonEmpty(value)
	case "kafka.group_id":
		cfg.SamplesGroupID, err = nonEmpty(value)
	case "kafka.publish.enabled":
		cfg.PublishEnabled, err = strconv.ParseBool(value)
	case "kafka.results_topic":
		cfg.ResultsTopic, err = nonEmpty(value)
	case "batch.size":
		cfg.BatchSize, err = parsePositive(value)
	case "batch.flush_ms":
		cfg.BatchFlush, err = parsePositiveMillis(value)
	case "mqtt.enabled":
		cfg.MQTTEnabled, err = strconv.ParseBool(value)
	case "mqtt.broker":
		cfg.MQTTBroker, err = nonEmpty(value)
	case "mqtt.topic":
		cfg.MQTTTopic, err = nonEmpty(value)
	case "mqtt.client_id":
		cfg.MQTTClient, err = nonEmpty(value)
	case "mqtt.qos":
		cfg.MQTTQoS, err = parseQoS(value)
	case "influx.enabled":
		cfg.InfluxEnabled, err = strconv.ParseBool(value)
	case "influx.url":
		cfg.InfluxURL, err = nonEmpty(value)
	case "influx.token":
		cfg.InfluxToken = value
	case "influx.org":
		cfg.InfluxOrg, err = nonEmpty(value)
	case "influx.bucket":
		cfg.InfluxBucket, err = nonEmpty(value)
	default:
		// Unknown keys are ignored to keep the loader forward-compatible.
	}
	return err
}

func applyEnv(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"CONDENSER_LISTEN_ADDRESS", &cfg.ListenAddress},
		{"CONDENSER_PLANT_PROPERTIES", &cfg.PlantPropertiesPath},
		{"CONDENSER_SAMPLES_TOPIC", &cfg.SamplesTopic},
		{"CONDENSER_GROUP_ID", &cfg.SamplesGroupID},
		{"CONDENSER_RESULTS_TOPIC", &cfg.ResultsTopic},
		{"CONDENSER_MQTT_BROKER", &cfg.MQTTBroker},
		{"CONDENSER_MQTT_TOPIC", &cfg.MQTTTopic},
		{"CONDENSER_INFLUX_URL", &cfg.InfluxURL},
		{"CONDENSER_INFLUX_ORG", &cfg.InfluxOrg},
		{"CONDENSER_INFLUX_BUCKET", &cfg.InfluxBucket},
	}
	for _, s := range strs {
		if v, ok := lookupEnvTrimmed(s.key); ok {
			if v == "" {
				return fmt.Errorf("%s cannot be empty", s.key)
			}
			*s.dst = v
		}
	}
	if v, ok := lookupEnvTrimmed("CONDENSER_INFLUX_TOKEN"); ok {
		cfg.InfluxToken = v
	}
	if v, ok := lookupEnvTrimmed("CONDENSER_LOG_PATH"); ok {
		if v == "" {
			return errors.New("CONDENSER_LOG_PATH cannot be empty")
		}
		cfg.LogFilePath = filepath.Clean(v)
	}
	if v, ok := lookupEnvTrimmed("CONDENSER_STORE_PATH"); ok {
		if v == "" {
			return errors.New("CONDENSER_STORE_PATH cannot be empty")
		}
		cfg.StorePath = filepath.Clean(v)
	}

	if v, ok := lookupEnvTrimmed("CONDENSER_KAFKA_BROKERS"); ok {
		b, err := brokers(v)
		if err != nil {
			return fmt.Errorf("CONDENSER_KAFKA_BROKERS: %w", err)
		}
		cfg.KafkaBrokers = b
	} else if v, ok := lookupEnvTrimmed("KAFKA_BROKERS"); ok {
		b, err := brokers(v)
		if err != nil {
			return fmt.Errorf("KAFKA_BROKERS: %w", err)
		}
		cfg.KafkaBrokers = b
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"CONDENSER_ACCESS_LOG", &cfg.AccessLog},
		{"CONDENSER_INGEST_ENABLED", &cfg.IngestEnabled},
		{"CONDENSER_PUBLISH_ENABLED", &cfg.PublishEnabled},
		{"CONDENSER_MQTT_ENABLED", &cfg.MQTTEnabled},
		{"CONDENSER_INFLUX_ENABLED", &cfg.InfluxEnabled},
	}
	for _, b := range bools {
		if v, ok := lookupEnvTrimmed(b.key); ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", b.key, err)
			}
			*b.dst = parsed
		}
	}

	millis := []struct {
		key string
		dst *time.Duration
	}{
		{"CONDENSER_HTTP_READ_TIMEOUT_MS", &cfg.HTTPReadTimeout},
		{"CONDENSER_HTTP_WRITE_TIMEOUT_MS", &cfg.HTTPWriteTimeout},
		{"CONDENSER_SHUTDOWN_TIMEOUT_MS", &cfg.ShutdownTimeout},
		{"CONDENSER_BATCH_FLUSH_MS", &cfg.BatchFlush},
	}
	for _, m := range millis {
		if v, ok := lookupEnvTrimmed(m.key); ok {
			d, err := parsePositiveMillis(v)
			if err != nil {
				return fmt.Errorf("%s: %w", m.key, err)
			}
			*m.dst = d
		}
	}

	if v, ok := lookupEnvTrimmed("CONDENSER_BATCH_SIZE"); ok {
		n, err := parsePositive(v)
		if err != nil {
			return fmt.Errorf("CONDENSER_BATCH_SIZE: %w", err)
		}
		cfg.BatchSize = n
	}
	if v, ok := lookupEnvTrimmed("CONDENSER_WORKERS"); ok {
		n, err := parseNonNegative(v)
		if err != nil {
			return fmt.Errorf("CONDENSER_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v, ok := lookupEnvTrimmed("CONDENSER_MQTT_QOS"); ok {
		q, err := parseQoS(v)
		if err != nil {
			return fmt.Errorf("CONDENSER_MQTT_QOS: %w", err)
		}
		cfg.MQTTQoS = q
	}
	return nil
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitAndTrim(raw string) []string {
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func brokers(raw string) ([]string, error) {
	out := splitAndTrim(raw)
	if len(out) == 0 {
		return nil, errors.New("broker list cannot be empty")
	}
	return out, nil
}

func nonEmpty(v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", errors.New("value cannot be empty")
	}
	return v, nil
}

func parsePositive(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return n, nil
}

func parseNonNegative(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if n < 0 {
		return 0, errors.New("value must not be negative")
	}
	return n, nil
}

func parseQoS(v string) (byte, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if n < 0 || n > 2 {
		return 0, errors.New("qos must be 0, 1 or 2")
	}
	return byte(n), nil
}

func parsePositiveMillis(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("value cannot be empty")
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if ms <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return time.Duration(ms) * time.Millisecond, nil
}
