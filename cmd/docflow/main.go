// CLAUDE:SUMMARY docflow CLI: ingests a directory tree or a single PDF into grouped, chunked JSON.
// CLAUDE:DEPENDS ingest, docpipe, observability
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/hazyhaar/docflow/docpipe"
	"github.com/hazyhaar/docflow/ingest"
	"github.com/hazyhaar/docflow/observability"
)

const usage = `usage:
  docflow run <root> <output.json>   ingest every supported file under root
  docflow pdf <file.pdf>             process one PDF and print the result
  docflow runs                       list runs recorded in the diagnostics database
  docflow engines                    show the extraction engines available here

environment:
  DOCFLOW_CONFIG   yaml configuration file
  DOCFLOW_WORKERS  overrides max_workers
  DOCFLOW_DIAG_DB  overrides diagnostics.path
  LOG_LEVEL        debug, info, warn, error (default warn)
`

func main() {
	_ = godotenv.Load()

	logger := newLogger(env("LOG_LEVEL", "warn"))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		color.Red("config: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch args := os.Args[2:]; os.Args[1] {
	case "run":
		if len(args) != 2 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		code = runTree(ctx, cfg, args[0], args[1])
	case "pdf":
		if len(args) != 1 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		code = runPDF(ctx, cfg, args[0])
	case "runs":
		code = listRuns(ctx, cfg)
	case "engines":
		code = listEngines(cfg)
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	os.Exit(code)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func loadConfig(logger *slog.Logger) (ingest.Config, error) {
	cfg := ingest.DefaultConfig()
	if path := os.Getenv("DOCFLOW_CONFIG"); path != "" {
		loaded, err := ingest.LoadConfig(path)
		if err != nil {
			return ingest.Config{}, err
		}
		cfg = loaded
	}
	if v := os.Getenv("DOCFLOW_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return ingest.Config{}, fmt.Errorf("DOCFLOW_WORKERS: invalid value %q", v)
		}
		cfg.MaxWorkers = n
	}
	cfg.Diagnostics.Path = env("DOCFLOW_DIAG_DB", cfg.Diagnostics.Path)
	cfg.Logger = logger
	return *cfg, cfg.Validate()
}

func runTree(ctx context.Context, cfg ingest.Config, root, output string) int {
	runID := newRunID()
	opts := []ingest.Option{ingest.WithRunID(runID)}

	cancels := ingest.NewCancellations()
	go func() {
		<-ctx.Done()
		cancels.Cancel()
	}()
	opts = append(opts, ingest.WithCancellation(cancels))

	if cfg.Diagnostics.Path != "" {
		db, err := observability.Open(cfg.Diagnostics.Path, observability.WithMkdirAll())
		if err != nil {
			color.Red("diagnostics: %v", err)
			return 1
		}
		defer db.Close()
		opts = append(opts, ingest.WithDiagnostics(observability.NewDiagnostics(db, runID, cfg.Logger)))
	}

	bar := newBar()
	opts = append(opts, ingest.WithProgress(bar.update))

	proc, err := ingest.New(cfg, docpipe.DetectCapabilities(), opts...)
	if err != nil {
		color.Red("init: %v", err)
		return 1
	}
	defer proc.Close()

	// Cancellation is delivered through cancels so the run can still write
	// what it collected.
	run, err := proc.ProcessAllFiles(context.WithoutCancel(ctx), root, output)
	bar.finish()
	if run == nil {
		color.Red("run: %v", err)
		return 1
	}
	printSummary(run, output)
	switch {
	case err != nil:
		color.Red("run: %v", err)
		return 1
	case run.Status == ingest.RunCancelled:
		return 130
	}
	return 0
}

func runPDF(ctx context.Context, cfg ingest.Config, path string) int {
	bar := newBar()
	proc, err := ingest.New(cfg, docpipe.DetectCapabilities(),
		ingest.WithRunID(newRunID()),
		ingest.WithProgress(bar.update),
	)
	if err != nil {
		color.Red("init: %v", err)
		return 1
	}
	defer proc.Close()

	res := proc.ProcessPDF(ctx, path)
	bar.finish()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		color.Red("encode: %v", err)
		return 1
	}
	if res.Status != ingest.StatusSuccess {
		color.Red("%s: %s", res.Status, res.Message)
		return 1
	}
	return 0
}

func listRuns(ctx context.Context, cfg ingest.Config) int {
	if cfg.Diagnostics.Path == "" {
		color.Red("no diagnostics database configured (diagnostics.path or DOCFLOW_DIAG_DB)")
		return 1
	}
	db, err := observability.Open(cfg.Diagnostics.Path)
	if err != nil {
		color.Red("diagnostics: %v", err)
		return 1
	}
	defer db.Close()

	runs, err := observability.Runs(ctx, db)
	if err != nil {
		color.Red("runs: %v", err)
		return 1
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tFILES\tPROCESSED\tERRORS\tFINISHED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.0f\t%.0f\t%s\n", r.RunID, r.Status,
			r.Metrics["total_files"], r.Metrics["processed_files"], r.Metrics["error_files"],
			r.FinishedAt.Format(time.DateTime))
	}
	tw.Flush()
	return 0
}

func listEngines(cfg ingest.Config) int {
	caps := docpipe.DetectCapabilities()
	proc, err := ingest.New(cfg, caps)
	if err != nil {
		color.Red("init: %v", err)
		return 1
	}
	defer proc.Close()

	c := color.New(color.FgCyan)
	for _, f := range []docpipe.Format{docpipe.FormatPDF, docpipe.FormatDocx, docpipe.FormatODT,
		docpipe.FormatHTML, docpipe.FormatMD, docpipe.FormatTXT, docpipe.FormatCode} {
		c.Printf("%-5s", f)
		fmt.Println(" ", proc.Engines(f))
	}
	fmt.Printf("pdftotext=%t pdftoppm=%t ocr=%t\n", caps.Pdftotext, caps.Pdftoppm, caps.OCR && cfg.OCR.Enabled)
	return 0
}

func printSummary(run *ingest.RunResult, output string) {
	st := run.Stats
	status := color.GreenString(run.Status)
	switch run.Status {
	case ingest.RunPartial:
		status = color.YellowString(run.Status)
	case ingest.RunCancelled:
		status = color.RedString(run.Status)
	}
	fmt.Printf("%s %s\n", status, run.Message)
	fmt.Printf("  run        %s\n", run.RunID)
	fmt.Printf("  output     %s (%s)\n", output, run.OutputTier)
	fmt.Printf("  files      %d total, %d processed, %d skipped (%d cached), %d errors\n",
		st.TotalFiles, st.ProcessedFiles, st.SkippedFiles, st.CachedFiles, st.ErrorFiles)
	fmt.Printf("  chunks     %d, tables %d, references %d\n", st.TotalChunks, st.Tables, st.References)
	if st.OCRFiles > 0 {
		fmt.Printf("  ocr        %d files, %d pages\n", st.OCRFiles, st.OCRPages)
	}
	if st.TimeoutFiles > 0 || st.CancelledFiles > 0 {
		color.Yellow("  interrupted %d timed out, %d cancelled", st.TimeoutFiles, st.CancelledFiles)
	}
	fmt.Printf("  duration   %.1fs\n", st.DurationSeconds)
}

// newRunID is shared between the processor and the diagnostics store.
func newRunID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
