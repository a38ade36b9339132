// Package platform hosts evaluators and evolution runs, routes run control
// by run id, and persists finished runs.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"agentevo/internal/evo"
	"agentevo/internal/fitness"
	"agentevo/internal/genotype"
	"agentevo/internal/logging"
	"agentevo/internal/model"
	"agentevo/internal/storage"
	"agentevo/internal/telemetry"
)

var (
	ErrNotStarted       = errors.New("lab is not initialized")
	ErrRunActive        = errors.New("run already active")
	ErrRunNotActive     = errors.New("run not active")
	ErrUnknownEvaluator = errors.New("evaluator not registered")
)

type Config struct {
	Store   storage.Store
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	// Guard wraps every registered evaluator in a rate limiter and circuit
	// breaker.
	Guard fitness.GuardConfig
}

type RunRequest struct {
	// RunID defaults to a fresh ULID.
	RunID     string
	Evaluator string
	Config    model.EvolutionConfig
	// Space defaults to genotype.DefaultSpace.
	Space         genotype.Space
	Selector      evo.Selector
	Postprocessor evo.FitnessPostprocessor
	BlendNumeric  bool
	OnGeneration  func(stats model.GenerationStatistics)
}

// Lab is the run host. Each run gets its own engine; control calls are
// routed to it by run id for as long as the run is active.
type Lab struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics
	guard   fitness.GuardConfig

	mu         sync.RWMutex
	started    bool
	evaluators map[string]fitness.Evaluator
	runs       map[string]*evo.Engine
}

func NewLab(cfg Config) *Lab {
	return &Lab{
		store:      cfg.Store,
		logger:     logging.OrDiscard(cfg.Logger),
		metrics:    cfg.Metrics,
		guard:      cfg.Guard,
		evaluators: make(map[string]fitness.Evaluator),
		runs:       make(map[string]*evo.Engine),
	}
}

func (l *Lab) Init(ctx context.Context) error {
	if l.store == nil {
		return fmt.Errorf("store is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if err := l.store.Init(ctx); err != nil {
		return err
	}
	l.started = true
	return nil
}

func (l *Lab) Started() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

func (l *Lab) Store() storage.Store {
	return l.store
}

// RegisterEvaluator makes ev available to runs under name, guarded by the
// lab's breaker settings.
func (l *Lab) RegisterEvaluator(name string, ev fitness.Evaluator) error {
	if name == "" {
		return fmt.Errorf("evaluator name is required")
	}
	if ev == nil {
		return fmt.Errorf("evaluator is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.evaluators[name]; exists {
		return fmt.Errorf("evaluator already registered: %s", name)
	}
	l.evaluators[name] = fitness.NewGuarded(name, ev, l.guard, l.logger)
	return nil
}

func (l *Lab) Evaluators() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.evaluators))
	for name := range l.evaluators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run evolves to completion and persists the run record, the best
// chromosome, and the generation history. Runs that end by stop or
// cancellation are persisted too.
func (l *Lab) Run(ctx context.Context, req RunRequest) (model.EvolutionResult, error) {
	l.mu.RLock()
	started := l.started
	ev, ok := l.evaluators[req.Evaluator]
	l.mu.RUnlock()
	if !started {
		return model.EvolutionResult{}, ErrNotStarted
	}
	if !ok {
		return model.EvolutionResult{}, fmt.Errorf("%w: %s", ErrUnknownEvaluator, req.Evaluator)
	}

	runID := req.RunID
	if runID == "" {
		runID = newRunID()
	}
	blend := req.BlendNumeric
	engine, err := evo.NewEngine(evo.EngineConfig{
		RunID:     runID,
		Evaluator: ev,
		Space:     req.Space,
		Selector:  req.Selector,
		NewCrossover: func(tracker *genotype.InnovationTracker) evo.Crossover {
			return &evo.UniformCrossover{Tracker: tracker, BlendNumeric: blend}
		},
		Postprocessor: req.Postprocessor,
		Logger:        l.logger,
		Metrics:       l.metrics,
		OnGeneration:  req.OnGeneration,
	})
	if err != nil {
		return model.EvolutionResult{}, err
	}
	if err := l.registerRun(runID, engine); err != nil {
		return model.EvolutionResult{}, err
	}
	defer l.unregisterRun(runID)

	createdAt := time.Now().UTC()
	result, err := engine.Evolve(ctx, req.Config)
	if err != nil {
		return model.EvolutionResult{}, err
	}
	if err := l.persist(context.WithoutCancel(ctx), runID, createdAt, req, result); err != nil {
		return result, fmt.Errorf("persist run %s: %w", runID, err)
	}
	return result, nil
}

func (l *Lab) persist(ctx context.Context, runID string, createdAt time.Time, req RunRequest, result model.EvolutionResult) error {
	record := model.RunRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:                runID,
		CreatedAt:         createdAt,
		Evaluator:         req.Evaluator,
		Config:            req.Config,
		BestFitness:       result.BestFitness,
		FinalGeneration:   result.FinalGeneration,
		Termination:       result.Termination,
		TerminationReason: result.TerminationReason,
		Duration:          result.Duration,
	}
	if result.Best != nil {
		record.BestChromosomeID = result.Best.ID
		if err := l.store.SaveChromosome(ctx, result.Best); err != nil {
			return err
		}
	}
	if err := l.store.SaveGenerationHistory(ctx, runID, result.GenerationHistory); err != nil {
		return err
	}
	return l.store.SaveRun(ctx, record)
}

func (l *Lab) PauseRun(runID string) error {
	engine, err := l.activeRun(runID)
	if err != nil {
		return err
	}
	return engine.Pause()
}

func (l *Lab) ResumeRun(runID string) error {
	engine, err := l.activeRun(runID)
	if err != nil {
		return err
	}
	return engine.Resume()
}

func (l *Lab) StopRun(runID string) error {
	engine, err := l.activeRun(runID)
	if err != nil {
		return err
	}
	return engine.Stop()
}

// RunState reports the engine state of an active run.
func (l *Lab) RunState(runID string) (evo.EngineState, error) {
	engine, err := l.activeRun(runID)
	if err != nil {
		return "", err
	}
	return engine.State(), nil
}

func (l *Lab) ActiveRuns() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.runs))
	for id := range l.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown stops every active run and refuses new ones until Init is called
// again.
func (l *Lab) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, engine := range l.runs {
		_ = engine.Stop()
	}
	l.started = false
}

func (l *Lab) registerRun(runID string, engine *evo.Engine) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return ErrNotStarted
	}
	if _, exists := l.runs[runID]; exists {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	l.runs[runID] = engine
	return nil
}

func (l *Lab) unregisterRun(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.runs, runID)
}

func (l *Lab) activeRun(runID string) (*evo.Engine, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	l.mu.RLock()
	engine, ok := l.runs[runID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}
	return engine, nil
}

func newRunID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
