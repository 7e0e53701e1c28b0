// v0
// cmd/condenser-eval/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"nrgchamp/condenser/internal/analysis"
	"nrgchamp/condenser/internal/app"
	"nrgchamp/condenser/internal/config"
	"nrgchamp/condenser/internal/plant"
	"nrgchamp/condenser/internal/samples"
	"nrgchamp/condenser/internal/steam"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	props   string
	plant   string
	in      string
	out     string
	workers int
	verbose bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("condenser-eval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.props, "props", "condenser.properties", "service properties file")
	fs.StringVar(&o.plant, "plant", "", "plant properties file (overrides plant.properties_path)")
	fs.StringVar(&o.in, "in", "-", "CSV sample table, - for stdin")
	fs.StringVar(&o.out, "out", "", "JSON report path, - for stdout")
	fs.IntVar(&o.workers, "workers", -1, "row workers, 0 for one per CPU (overrides workers)")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	return o, nil
}

// run evaluates one table and returns the process exit code. Failed rows
// do not change the exit code; unreadable input or configuration does.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := app.NewLogger(level, stderr)

	cfg, err := config.LoadFrom(o.props)
	if err != nil {
		logger.Error("config_load_failed", slog.Any("err", err))
		return exitError
	}
	if o.plant != "" {
		cfg.PlantPropertiesPath = o.plant
	}
	if o.workers >= 0 {
		cfg.Workers = o.workers
	}
	plantCfg, err := plant.Load(cfg.PlantPropertiesPath)
	if err != nil {
		logger.Error("plant_config_failed", slog.String("path", cfg.PlantPropertiesPath), slog.Any("err", err))
		return exitError
	}
	runner, err := analysis.NewRunner(steam.IF97{}, plantCfg, cfg.Workers, logger)
	if err != nil {
		logger.Error("runner_init_failed", slog.Any("err", err))
		return exitError
	}

	tbl, err := readTable(o.in, stdin)
	if err != nil {
		logger.Error("input_read_failed", slog.String("path", o.in), slog.Any("err", err))
		return exitError
	}

	rep, runErr := runner.Run(ctx, tbl, "cli")
	if runErr != nil {
		logger.Warn("run_interrupted", slog.Any("err", runErr))
	}

	summaryOut := stdout
	if o.out == "-" {
		summaryOut = stderr
	}
	if o.out != "" {
		if err := writeReport(o.out, stdout, rep); err != nil {
			logger.Error("report_write_failed", slog.String("path", o.out), slog.Any("err", err))
			return exitError
		}
	}
	printSummary(summaryOut, rep)
	if runErr != nil {
		return exitError
	}
	return exitOK
}

func readTable(path string, stdin io.Reader) (*samples.Table, error) {
	if path == "-" {
		return samples.LoadCSV(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return samples.LoadCSV(f)
}

func writeReport(path string, stdout io.Writer, rep analysis.Report) error {
	var w io.Writer = stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

var statusOrder = []analysis.Status{
	analysis.StatusSuccess,
	analysis.StatusPropertyLookupError,
	analysis.StatusConvergenceFailure,
	analysis.StatusInputSchemaError,
	analysis.StatusSkipped,
}

func printSummary(w io.Writer, rep analysis.Report) {
	fmt.Fprintf(w, "run %s: %d rows\n", rep.RunID, rep.Rows)
	for _, st := range statusOrder {
		if n := rep.Counts[st]; n > 0 {
			fmt.Fprintf(w, "  %-20s %d\n", st, n)
		}
	}
	if d := rep.HeatDuty; d.N > 0 {
		fmt.Fprintf(w, "heat duty over %d rows: mean %.1f kW, stddev %.1f kW, min %.1f kW, max %.1f kW\n",
			d.N, d.Mean/1e3, d.StdDev/1e3, d.Min/1e3, d.Max/1e3)
	}
	if len(rep.Failures) == 0 {
		return
	}
	fmt.Fprintln(w, "failed rows:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ROW\tSTATUS\tSECTION\tCAUSE")
	for _, f := range rep.Failures {
		section := string(f.Section)
		if section == "" {
			section = "-"
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", f.Index, f.Status, section, f.Error)
	}
	_ = tw.Flush()
}
