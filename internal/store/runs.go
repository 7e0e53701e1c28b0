// v0
// internal/store/runs.go
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"nrgchamp/condenser/internal/analysis"
)

var ErrNotFound = errors.New("not found")

// RunStore keeps run reports in memory and appends each one as a JSON line
// to a file, so reports survive restarts.
type RunStore struct {
	mu      sync.RWMutex
	path    string
	log     *slog.Logger
	file    *os.File
	writer  *bufio.Writer
	reports map[string]analysis.Report
	order   []string
}

// NewRunStore opens or creates path and loads every stored report.
func NewRunStore(path string, log *slog.Logger) (*RunStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	rs := &RunStore{path: path, log: log, file: f, reports: make(map[string]analysis.Report)}
	if err := rs.load(); err != nil {
		f.Close()
		return nil, err
	}
	rs.writer = bufio.NewWriter(f)
	return rs, nil
}

func (rs *RunStore) load() error {
	rs.log.Info("loading", slog.String("path", rs.path))
	scanner := bufio.NewScanner(rs.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rep analysis.Report
		if err := json.Unmarshal(raw, &rep); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if rep.RunID == "" {
			return fmt.Errorf("line %d: run_id missing", line)
		}
		rs.put(rep)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	rs.log.Info("loaded", slog.Int("runs", len(rs.order)))
	return nil
}

func (rs *RunStore) put(rep analysis.Report) {
	if _, exists := rs.reports[rep.RunID]; !exists {
		rs.order = append(rs.order, rep.RunID)
	}
	rs.reports[rep.RunID] = rep
}

// Append persists rep and makes it visible to readers.
func (rs *RunStore) Append(rep analysis.Report) error {
	if rep.RunID == "" {
		return fmt.Errorf("run_id must not be empty")
	}
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, err := rs.writer.Write(payload); err != nil {
		return err
	}
	if err := rs.writer.WriteByte('\n'); err != nil {
		return err
	}
	if err := rs.writer.Flush(); err != nil {
		return err
	}
	if err := rs.file.Sync(); err != nil {
		return err
	}
	rs.put(rep)
	return nil
}

// Get returns the full report of run id.
func (rs *RunStore) Get(id string) (analysis.Report, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	rep, ok := rs.reports[id]
	if !ok {
		return analysis.Report{}, ErrNotFound
	}
	return rep, nil
}

// List returns run summaries, newest first. limit <= 0 returns all.
func (rs *RunStore) List(limit int) []analysis.Summary {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]analysis.Summary, 0, len(rs.order))
	for _, id := range rs.order {
		out = append(out, rs.reports[id].Summary)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len reports the number of stored runs.
func (rs *RunStore) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.order)
}

// Close flushes and closes the backing file.
func (rs *RunStore) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.file == nil {
		return nil
	}
	flushErr := rs.writer.Flush()
	closeErr := rs.file.Close()
	rs.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
