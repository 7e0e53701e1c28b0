// v0
// internal/ingest/sample.go

// Package ingest turns streamed plant samples into evaluation runs.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"nrgchamp/condenser/internal/metrics"
)

// Sample is one logged row as streamed by the plant gateway. Values are
// positional and use the same column numbers as the batch tables.
type Sample struct {
	Timestamp time.Time
	Values    []float64
}

type wireSample struct {
	TS     json.RawMessage `json:"ts"`
	Values []*float64      `json:"values"`
}

var (
	errEmptyValues = errors.New("sample has no values")
	errTimestamp   = errors.New("sample timestamp is neither RFC3339 nor epoch milliseconds")
)

// DecodeSample parses {"ts": ..., "values": [...]}. ts is an RFC3339 string
// or epoch milliseconds and may be omitted; null values read as missing.
func DecodeSample(raw []byte) (Sample, error) {
	var w wireSample
	if err := json.Unmarshal(raw, &w); err != nil {
		return Sample{}, fmt.Errorf("decode sample: %w", err)
	}
	if len(w.Values) == 0 {
		return Sample{}, errEmptyValues
	}
	s := Sample{Values: make([]float64, len(w.Values))}
	for i, v := range w.Values {
		if v == nil {
			s.Values[i] = math.NaN()
			continue
		}
		s.Values[i] = *v
	}
	ts, err := decodeTimestamp(w.TS)
	if err != nil {
		return Sample{}, err
	}
	s.Timestamp = ts
	return s, nil
}

// EncodeSample is the inverse of DecodeSample. Non-finite values are
// written as null and a zero timestamp is omitted.
func EncodeSample(s Sample) ([]byte, error) {
	if len(s.Values) == 0 {
		return nil, errEmptyValues
	}
	out := struct {
		TS     string     `json:"ts,omitempty"`
		Values []*float64 `json:"values"`
	}{Values: make([]*float64, len(s.Values))}
	if !s.Timestamp.IsZero() {
		out.TS = s.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	for i, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.Values[i] = &v
	}
	return json.Marshal(out)
}

func decodeTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		ts, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return time.Time{}, errTimestamp
		}
		return ts.UTC(), nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, errTimestamp
}

// dropReason classifies a decode failure for the drop counter.
func dropReason(err error) string {
	switch {
	case errors.Is(err, errEmptyValues):
		return metrics.DropReasonEmptyValues
	case errors.Is(err, errTimestamp):
		return metrics.DropReasonTimestamp
	default:
		return metrics.DropReasonJSONError
	}
}
