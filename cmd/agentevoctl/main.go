package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentevo/internal/config"
	"agentevo/internal/logging"
	"agentevo/internal/model"
	"agentevo/internal/telemetry"
	"agentevo/pkg/agentevo"
)

const (
	defaultConfigPath = "agentevo.yaml"
	exportsDir        = "exports"
)

var stdout io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	out := fs.String("out", defaultConfigPath, "config file to write (.yaml, .yml or .toml)")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s already exists; use -force to overwrite", *out)
	}
	if err := config.Write(*out, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote config=%s\n", filepath.Clean(*out))
	return nil
}

// storeFlags are shared by every command that opens the store.
type storeFlags struct {
	configPath *string
	storeKind  *string
	dbPath     *string
	artifacts  *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		configPath: fs.String("config", "", "YAML or TOML config file"),
		storeKind:  fs.String("store", "memory", "store backend: memory|sqlite"),
		dbPath:     fs.String("db-path", "agentevo.db", "sqlite database path"),
		artifacts:  fs.String("artifacts", "runs", "run artifacts directory"),
	}
}

func (s storeFlags) values() map[string]any {
	return map[string]any{
		"store":     *s.storeKind,
		"db-path":   *s.dbPath,
		"artifacts": *s.artifacts,
	}
}

func setFlagNames(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func resolveConfig(fs *flag.FlagSet, configPath string, values map[string]any) (config.File, error) {
	cfg, err := loadOrDefaultConfig(configPath)
	if err != nil {
		return config.File{}, err
	}
	if err := overrideFromFlags(&cfg, setFlagNames(fs), values); err != nil {
		return config.File{}, err
	}
	return cfg, nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id (default: generated)")
	pop := fs.Int("pop", 20, "population size")
	elite := fs.Int("elite", 2, "elite count")
	gens := fs.Int("gens", 25, "max generations (0 = unlimited)")
	stagnation := fs.Int("stagnation", 10, "stop after this many generations without improvement (0 = never)")
	targetFitness := fs.Float64("target-fitness", 0, "stop once best fitness reaches this value")
	mutationRate := fs.Float64("mutation-rate", 0.2, "per-gene mutation probability")
	crossoverRate := fs.Float64("crossover-rate", 0.7, "crossover probability")
	speciation := fs.Bool("speciation", false, "enable speciation and fitness sharing")
	seed := fs.Int64("seed", 1, "random seed")
	selection := fs.String("selection", "tournament", "selection operator")
	postprocessor := fs.String("fitness-postprocessor", "none", "fitness postprocessor")
	pollMS := fs.Int("poll-ms", 100, "pause poll interval in milliseconds")
	workers := fs.Int("workers", 4, "evaluator workers")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	logFormat := fs.String("log-format", "text", "log format: text|json")
	trace := fs.String("trace", "", "enable tracing with this exporter: stdout")
	jsonOut := fs.Bool("json", false, "emit the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	values := sf.values()
	for name, v := range map[string]any{
		"pop":                   *pop,
		"elite":                 *elite,
		"gens":                  *gens,
		"stagnation":            *stagnation,
		"target-fitness":        *targetFitness,
		"mutation-rate":         *mutationRate,
		"crossover-rate":        *crossoverRate,
		"speciation":            *speciation,
		"seed":                  *seed,
		"selection":             *selection,
		"fitness-postprocessor": *postprocessor,
		"poll-ms":               *pollMS,
		"workers":               *workers,
		"metrics-addr":          *metricsAddr,
		"log-level":             *logLevel,
		"log-format":            *logFormat,
		"trace":                 *trace,
	} {
		values[name] = v
	}
	cfg, err := resolveConfig(fs, *sf.configPath, values)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeLog()
	}()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Metrics.Addr != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer stopMetrics()
	}

	client, err := agentevo.New(ctx, agentevo.Options{Config: cfg, Logger: logger, Registerer: reg})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, agentevo.RunRequest{
		RunID: *runID,
		OnGeneration: func(stats model.GenerationStatistics) {
			logger.Info("generation",
				"generation", stats.Generation,
				"best_fitness", stats.Population.BestFitness,
				"average_fitness", stats.Population.AverageFitness,
				"diversity", stats.Population.Diversity,
				"species", stats.SpeciesCount,
			)
		},
	})
	if err != nil {
		return err
	}

	result := summary.Result
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(stdout, "run_id=%s generations=%d best_fitness=%.6f termination=%s reason=%q duration=%s artifacts=%s\n",
		summary.RunID,
		result.FinalGeneration,
		result.BestFitness,
		result.Termination,
		result.TerminationReason,
		result.Duration.Round(time.Millisecond),
		summary.ArtifactsDir,
	)
	return nil
}

// serveMetrics exposes reg on /metrics and returns a function that shuts the
// server down.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func openClient(ctx context.Context, fs *flag.FlagSet, sf storeFlags) (*agentevo.Client, error) {
	cfg, err := resolveConfig(fs, *sf.configPath, sf.values())
	if err != nil {
		return nil, err
	}
	logger, _, err := logging.New(logging.Config{Level: "error", Output: "stderr"})
	if err != nil {
		return nil, err
	}
	return agentevo.New(ctx, agentevo.Options{Config: cfg, Logger: logger})
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := openClient(ctx, fs, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) > *limit {
		runs = runs[:*limit]
	}
	if *jsonOut {
		type runsItem struct {
			RunID           string                `json:"run_id"`
			CreatedAtUTC    string                `json:"created_at_utc"`
			Evaluator       string                `json:"evaluator"`
			FinalGeneration int                   `json:"final_generation"`
			BestFitness     float64               `json:"best_fitness"`
			Termination     model.TerminationKind `json:"termination"`
		}
		items := make([]runsItem, 0, len(runs))
		for _, r := range runs {
			items = append(items, runsItem{
				RunID:           r.RunID,
				CreatedAtUTC:    r.CreatedAt.UTC().Format(time.RFC3339),
				Evaluator:       r.Evaluator,
				FinalGeneration: r.FinalGeneration,
				BestFitness:     r.BestFitness,
				Termination:     r.Termination,
			})
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s evaluator=%s generations=%d best_fitness=%.6f termination=%s\n",
			r.RunID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Evaluator,
			r.FinalGeneration,
			r.BestFitness,
			r.Termination,
		)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	jsonOut := fs.Bool("json", false, "emit history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("history requires --run-id")
	}

	client, err := openClient(ctx, fs, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.History(ctx, *runID)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}
	for _, gen := range history {
		fmt.Fprintf(stdout, "generation=%d best=%.6f avg=%.6f worst=%.6f diversity=%.6f best_ever=%.6f stagnation=%d species=%d distinct=%d missing=%d\n",
			gen.Generation,
			gen.Population.BestFitness,
			gen.Population.AverageFitness,
			gen.Population.WorstFitness,
			gen.Population.Diversity,
			gen.BestEverFitness,
			gen.StagnationCount,
			gen.SpeciesCount,
			gen.DistinctConfigurations,
			gen.MissingResults,
		)
	}
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("best requires --run-id")
	}

	client, err := openClient(ctx, fs, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	best, err := client.Best(ctx, *runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(best)
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from the run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := openClient(ctx, fs, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exportedDir, err := client.Export(ctx, *runID, *outDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported to=%s\n", filepath.Clean(exportedDir))
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: agentevoctl <init|run|runs|history|best|export> [flags]", msg)
}
