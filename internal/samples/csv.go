// v0
// internal/samples/csv.go
package samples

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// LoadCSV reads a comma separated export. A first row holding any
// non-numeric cell is treated as a header. A first column named timestamp
// (or holding RFC 3339 values) becomes the row timestamp and is not part of
// the numeric table. Short rows are padded; unparsable cells become NaN so
// the schema can flag the row instead of aborting the load.
func LoadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("read csv: no rows")
	}

	timestamped := false
	if isHeader(records[0]) {
		first := strings.ToLower(strings.TrimSpace(records[0][0]))
		timestamped = first == "timestamp" || first == "time" || first == "ts"
		records = records[1:]
	} else if len(records[0]) > 0 {
		_, perr := parseTime(records[0][0])
		timestamped = perr == nil
	}

	rows := make([][]float64, 0, len(records))
	var times []time.Time
	if timestamped {
		times = make([]time.Time, 0, len(records))
	}
	for i, rec := range records {
		cells := rec
		if timestamped {
			var ts time.Time
			if len(rec) > 0 && strings.TrimSpace(rec[0]) != "" {
				ts, err = parseTime(rec[0])
				if err != nil {
					return nil, fmt.Errorf("read csv: record %d: %w", i+1, err)
				}
			}
			times = append(times, ts)
			if len(rec) > 0 {
				cells = rec[1:]
			}
		}
		row := make([]float64, len(cells))
		for j, c := range cells {
			row[j] = parseCell(c)
		}
		rows = append(rows, row)
	}
	return NewTable(rows, times), nil
}

func isHeader(rec []string) bool {
	for _, c := range rec {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, err := strconv.ParseFloat(c, 64); err != nil {
			if _, terr := parseTime(c); terr != nil {
				return true
			}
		}
	}
	return false
}

func parseCell(c string) float64 {
	c = strings.TrimSpace(c)
	if c == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(c, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseTime(c string) (time.Time, error) {
	c = strings.TrimSpace(c)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, c); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", c)
}
