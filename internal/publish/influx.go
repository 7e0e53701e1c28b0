// v0
// internal/publish/influx.go
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"nrgchamp/condenser/internal/analysis"
	"nrgchamp/condenser/internal/metrics"
)

const (
	influxSinkName    = "influx"
	influxMeasurement = "condenser_performance"
)

// InfluxConfig addresses the bucket receiving performance points.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink writes one point per successful row.
type InfluxSink struct {
	writer pointWriter
	close  func()
	log    *slog.Logger
}

// NewInfluxSink connects a blocking write API for cfg.Bucket.
func NewInfluxSink(cfg InfluxConfig, log *slog.Logger) (*InfluxSink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("influx url must not be empty")
	}
	if strings.TrimSpace(cfg.Org) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("influx org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return newInfluxSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), client.Close, log), nil
}

func newInfluxSink(w pointWriter, closeFn func(), log *slog.Logger) *InfluxSink {
	if log == nil {
		log = slog.Default()
	}
	return &InfluxSink{writer: w, close: closeFn, log: log.With(slog.String("component", "influx_sink"))}
}

// Name identifies the sink in metrics and logs.
func (s *InfluxSink) Name() string { return influxSinkName }

// Publish writes every successful row of rep in one request.
func (s *InfluxSink) Publish(ctx context.Context, rep analysis.Report) error {
	points := reportPoints(rep)
	if len(points) == 0 {
		return nil
	}
	err := s.writer.WritePoint(ctx, points...)
	metrics.ObservePublish(influxSinkName, err)
	if err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	s.log.Debug("influx_points_written", slog.String("run_id", rep.RunID), slog.Int("points", len(points)))
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() {
	if s.close != nil {
		s.close()
	}
}

func reportPoints(rep analysis.Report) []*write.Point {
	points := make([]*write.Point, 0, len(rep.Results))
	for _, row := range rep.Results {
		if row.Status != analysis.StatusSuccess || row.Condenser == nil {
			continue
		}
		ts := rep.StartedAt
		if row.Timestamp != nil {
			ts = *row.Timestamp
		}
		c := row.Condenser
		fields := map[string]interface{}{
			"heat_duty_w":           c.HeatDuty,
			"cold_outlet_k":         c.ColdOutletTemperature,
			"hot_outlet_k":          c.HotOutletTemperature,
			"saturation_k":          c.SaturationTemperature,
			"condensing_fraction":   c.CondensingFraction,
			"residual_w":            c.Residual,
			"iterations":            c.Iterations,
			"condensing_ntu":        c.Condensing.NTU,
			"subcooling_ntu":        c.Subcooling.NTU,
			"condensing_efficiency": c.Condensing.Effectiveness,
		}
		if v, ok := row.SteamFlow.Get(); ok {
			fields["steam_flow_m3_s"] = v
		}
		if v, ok := row.CoolingFlow.Get(); ok {
			fields["cooling_flow_m3_s"] = v
		}
		if v, ok := row.ColdOutletDeviation.Get(); ok {
			fields["cold_outlet_deviation_k"] = v
		}
		if v, ok := row.TubeVelocity.Get(); ok {
			fields["tube_velocity_m_s"] = v
		}
		tags := map[string]string{
			"run_id": rep.RunID,
			"source": rep.Source,
		}
		// Rows sharing a timestamp stay distinct points.
		points = append(points, influxdb2.NewPoint(influxMeasurement, tags, fields, ts.UTC().Add(time.Duration(row.Index))))
	}
	return points
}
