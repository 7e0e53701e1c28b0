// v0
// internal/http/runs.go
package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"nrgchamp/condenser/internal/analysis"
	"nrgchamp/condenser/internal/samples"
	"nrgchamp/condenser/internal/store"
)

const (
	maxBodyBytes     = 32 << 20
	defaultListLimit = 50
	apiSource        = "api"
)

type runsAPI struct {
	svc Service
	log *slog.Logger
}

// tableRequest is the JSON form of a sample table; null cells are missing
// values and timestamps are optional.
type tableRequest struct {
	Rows       [][]*float64 `json:"rows"`
	Timestamps []*time.Time `json:"timestamps"`
}

func (a *runsAPI) create(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	tbl, err := decodeTable(r.Header.Get("Content-Type"), body)
	if err != nil {
		a.log.Warn("run_request_invalid", slog.Any("err", err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := a.svc.Evaluate(r.Context(), tbl, apiSource)
	if err != nil {
		a.log.Error("run_failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Location", "/v1/runs/"+rep.RunID)
	if err := writeJSON(w, http.StatusCreated, rep); err != nil {
		a.log.Error("run_encode_failed", slog.String("run_id", rep.RunID), slog.Any("err", err))
	}
}

func decodeTable(contentType string, body io.Reader) (*samples.Table, error) {
	mediaType := "text/csv"
	if strings.TrimSpace(contentType) != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("content type: %w", err)
		}
		mediaType = mt
	}
	switch mediaType {
	case "text/csv", "text/plain":
		return samples.LoadCSV(body)
	case "application/json":
		var req tableRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		return req.table()
	default:
		return nil, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func (req tableRequest) table() (*samples.Table, error) {
	if len(req.Rows) == 0 {
		return nil, errors.New("rows must not be empty")
	}
	if req.Timestamps != nil && len(req.Timestamps) != len(req.Rows) {
		return nil, fmt.Errorf("timestamps has %d entries for %d rows", len(req.Timestamps), len(req.Rows))
	}
	rows := make([][]float64, len(req.Rows))
	for i, in := range req.Rows {
		row := make([]float64, len(in))
		for j, v := range in {
			if v == nil {
				row[j] = math.NaN()
				continue
			}
			row[j] = *v
		}
		rows[i] = row
	}
	var times []time.Time
	if req.Timestamps != nil {
		times = make([]time.Time, len(req.Timestamps))
		for i, ts := range req.Timestamps {
			if ts != nil {
				times[i] = ts.UTC()
			}
		}
	}
	return samples.NewTable(rows, times), nil
}

func (a *runsAPI) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs := a.svc.Runs(limit)
	if err := writeJSON(w, http.StatusOK, map[string]any{"runs": runs}); err != nil {
		a.log.Error("runs_encode_failed", slog.Any("err", err))
	}
}

func (a *runsAPI) lookup(w http.ResponseWriter, r *http.Request) (analysis.Report, bool) {
	id := mux.Vars(r)["id"]
	rep, err := a.svc.Run(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
			return analysis.Report{}, false
		}
		a.log.Error("run_lookup_failed", slog.String("run_id", id), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return analysis.Report{}, false
	}
	return rep, true
}

func (a *runsAPI) get(w http.ResponseWriter, r *http.Request) {
	rep, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if err := writeJSON(w, http.StatusOK, rep); err != nil {
		a.log.Error("run_encode_failed", slog.String("run_id", rep.RunID), slog.Any("err", err))
	}
}

func (a *runsAPI) failures(w http.ResponseWriter, r *http.Request) {
	rep, ok := a.lookup(w, r)
	if !ok {
		return
	}
	payload := struct {
		RunID    string                  `json:"run_id"`
		Counts   map[analysis.Status]int `json:"counts"`
		Failures []analysis.Failure      `json:"failures"`
	}{RunID: rep.RunID, Counts: rep.Counts, Failures: rep.Failures}
	if err := writeJSON(w, http.StatusOK, payload); err != nil {
		a.log.Error("failures_encode_failed", slog.String("run_id", rep.RunID), slog.Any("err", err))
	}
}

func (a *runsAPI) plant(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, a.svc.Plant()); err != nil {
		a.log.Error("plant_encode_failed", slog.Any("err", err))
	}
}
