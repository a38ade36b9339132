// Package agentevo is the public entry point for evolving agent
// configurations: it wires the store, the run host, and run artifacts from a
// config.File.
package agentevo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agentevo/internal/config"
	"agentevo/internal/evo"
	"agentevo/internal/fitness"
	"agentevo/internal/logging"
	"agentevo/internal/model"
	"agentevo/internal/platform"
	"agentevo/internal/stats"
	"agentevo/internal/storage"
	"agentevo/internal/telemetry"
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	Config config.File
	Logger *slog.Logger
	// Registerer receives the engine metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

type Client struct {
	cfg          config.File
	store        storage.Store
	lab          *platform.Lab
	logger       *slog.Logger
	artifactsDir string
}

type RunRequest struct {
	// RunID defaults to a fresh ULID.
	RunID string
	// Evaluator defaults to the configured evaluator name.
	Evaluator    string
	OnGeneration func(stats model.GenerationStatistics)
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Result       model.EvolutionResult
}

// RunInfo is one row of Runs: persisted runs merged with the on-disk run
// index, so runs from earlier processes show up with a memory store.
type RunInfo struct {
	RunID           string
	Evaluator       string
	BestFitness     float64
	FinalGeneration int
	Termination     model.TerminationKind
	CreatedAt       time.Time
}

func New(ctx context.Context, opts Options) (*Client, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.OrDiscard(opts.Logger)

	store, err := storage.NewStore(cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(opts.Registerer)
	if err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}

	lab := platform.NewLab(platform.Config{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		Guard:   cfg.Evaluator.Guard,
	})
	if err := lab.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}
	heuristic := fitness.NewHeuristicEvaluator(cfg.Evaluator.Profile, cfg.Evaluator.Workers)
	if err := lab.RegisterEvaluator("heuristic", heuristic); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}

	return &Client{
		cfg:          cfg,
		store:        store,
		lab:          lab,
		logger:       logger,
		artifactsDir: cfg.Store.ArtifactsDir,
	}, nil
}

// RegisterEvaluator adds a named evaluator alongside the built-in
// "heuristic" one.
func (c *Client) RegisterEvaluator(name string, ev fitness.Evaluator) error {
	return c.lab.RegisterEvaluator(name, ev)
}

func (c *Client) Close() error {
	c.lab.Shutdown()
	return storage.CloseIfSupported(c.store)
}

// Run evolves with the client's configuration and writes the run's
// artifacts under the configured artifacts directory.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	evaluator := req.Evaluator
	if evaluator == "" {
		evaluator = c.cfg.Evaluator.Name
	}
	selector, err := evo.ResolveSelector(c.cfg.Evolution.Selector)
	if err != nil {
		return RunSummary{}, err
	}
	postprocessor, err := evo.ResolvePostprocessor(c.cfg.Evolution.Postprocessor)
	if err != nil {
		return RunSummary{}, err
	}

	evolution := c.cfg.EvolutionConfig()
	createdAt := time.Now()
	result, err := c.lab.Run(ctx, platform.RunRequest{
		RunID:         req.RunID,
		Evaluator:     evaluator,
		Config:        evolution,
		Space:         c.cfg.Space,
		Selector:      selector,
		Postprocessor: postprocessor,
		BlendNumeric:  c.cfg.Evolution.BlendNumeric,
		OnGeneration:  req.OnGeneration,
	})
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{RunID: result.RunID, Result: result}
	if c.artifactsDir == "" {
		return summary, nil
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:         result.RunID,
			Evaluator:     evaluator,
			Selector:      c.cfg.Evolution.Selector,
			Postprocessor: c.cfg.Evolution.Postprocessor,
			Evolution:     evolution,
		},
		Result:    result,
		CreatedAt: createdAt,
	})
	if err != nil {
		return summary, fmt.Errorf("write artifacts for run %s: %w", result.RunID, err)
	}
	summary.ArtifactsDir = runDir
	c.logger.Info("run artifacts written", "run_id", result.RunID, "dir", runDir)
	return summary, nil
}

func (c *Client) PauseRun(runID string) error  { return c.lab.PauseRun(runID) }
func (c *Client) ResumeRun(runID string) error { return c.lab.ResumeRun(runID) }
func (c *Client) StopRun(runID string) error   { return c.lab.StopRun(runID) }

// Runs lists known runs, newest first.
func (c *Client) Runs(ctx context.Context) ([]RunInfo, error) {
	records, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]RunInfo, len(records))
	for _, r := range records {
		byID[r.ID] = RunInfo{
			RunID:           r.ID,
			Evaluator:       r.Evaluator,
			BestFitness:     r.BestFitness,
			FinalGeneration: r.FinalGeneration,
			Termination:     r.Termination,
			CreatedAt:       r.CreatedAt,
		}
	}
	if c.artifactsDir != "" {
		entries, err := stats.ReadRunIndex(c.artifactsDir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if _, ok := byID[e.RunID]; ok {
				continue
			}
			created, _ := time.Parse(time.RFC3339Nano, e.CreatedAtUTC)
			byID[e.RunID] = RunInfo{
				RunID:           e.RunID,
				Evaluator:       e.Evaluator,
				BestFitness:     e.BestFitness,
				FinalGeneration: e.FinalGeneration,
				Termination:     e.Termination,
				CreatedAt:       created,
			}
		}
	}

	out := make([]RunInfo, 0, len(byID))
	for _, info := range byID {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RunID > out[j].RunID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// History returns the per-generation statistics of a run, from the store or
// else from its artifacts.
func (c *Client) History(ctx context.Context, runID string) ([]model.GenerationStatistics, error) {
	history, ok, err := c.store.GetGenerationHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if ok {
		return history, nil
	}
	if c.artifactsDir != "" {
		history, ok, err = stats.ReadHistory(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if ok {
			return history, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

// Best returns the best chromosome of a run, from the store or else from its
// artifacts.
func (c *Client) Best(ctx context.Context, runID string) (*model.AgentChromosome, error) {
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if ok && record.BestChromosomeID != "" {
		best, found, err := c.store.GetChromosome(ctx, record.BestChromosomeID)
		if err != nil {
			return nil, err
		}
		if found {
			return best, nil
		}
	}
	if c.artifactsDir != "" {
		best, found, err := stats.ReadBestChromosome(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if found {
			return best, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

// Export copies a run's artifacts to <dir>/<run id> and returns that path.
func (c *Client) Export(_ context.Context, runID, dir string) (string, error) {
	if c.artifactsDir == "" {
		return "", fmt.Errorf("artifacts directory is not configured")
	}
	if runID == "" {
		entries, err := stats.ReadRunIndex(c.artifactsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", fmt.Errorf("%w: no runs available to export", ErrRunNotFound)
		}
		runID = entries[0].RunID
	}
	return stats.ExportRunArtifacts(c.artifactsDir, runID, dir)
}
