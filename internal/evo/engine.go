package evo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"agentevo/internal/fitness"
	"agentevo/internal/genotype"
	"agentevo/internal/logging"
	"agentevo/internal/model"
	"agentevo/internal/telemetry"
)

// DefaultPausePollInterval is how often a paused run rechecks its state. It
// is the worst-case latency for a paused run to observe resume or stop.
const DefaultPausePollInterval = 100 * time.Millisecond

type EngineState string

const (
	StateIdle     EngineState = "idle"
	StateRunning  EngineState = "running"
	StatePaused   EngineState = "paused"
	StateStopping EngineState = "stopping"
)

type EngineConfig struct {
	// RunID labels logs, spans, metrics, and the result.
	RunID     string
	Evaluator fitness.Evaluator
	// Space defaults to genotype.DefaultSpace when it has no prompt templates.
	Space    genotype.Space
	Selector Selector
	// NewCrossover and NewMutator build the run's operators around the run's
	// innovation tracker. Nil selects UniformCrossover and GeneMutator.
	NewCrossover  func(tracker *genotype.InnovationTracker) Crossover
	NewMutator    func(space genotype.Space, tracker *genotype.InnovationTracker) Mutator
	Postprocessor FitnessPostprocessor
	Logger        *slog.Logger
	Metrics       *telemetry.Metrics
	// OnGeneration is called synchronously after each recorded generation.
	OnGeneration func(stats model.GenerationStatistics)
}

// Engine drives one run at a time through the generational loop. Pause,
// Resume, and Stop may be called from any goroutine while Evolve runs.
type Engine struct {
	cfg    EngineConfig
	logger *slog.Logger

	mu     sync.Mutex
	state  EngineState
	cancel context.CancelFunc
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("%w: fitness evaluator is required", ErrInvalidArgument)
	}
	if len(cfg.Space.PromptTemplates) == 0 {
		cfg.Space = genotype.DefaultSpace()
	}
	if err := cfg.Space.Validate(); err != nil {
		return nil, fmt.Errorf("%w: genome space: %v", ErrInvalidArgument, err)
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{}
	}
	if cfg.Postprocessor == nil {
		cfg.Postprocessor = NoopFitnessPostprocessor{}
	}
	logger := logging.OrDiscard(cfg.Logger)
	if cfg.RunID != "" {
		logger = logger.With("run_id", cfg.RunID)
	}
	return &Engine{cfg: cfg, logger: logger, state: StateIdle}, nil
}

func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pause holds the run at its next generation boundary. Pausing a paused run
// is a no-op.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateRunning:
		e.state = StatePaused
		e.logger.Info("evolution paused")
	case StatePaused:
	default:
		return ErrNotRunning
	}
	return nil
}

func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StatePaused:
		e.state = StateRunning
		e.logger.Info("evolution resumed")
	case StateRunning:
	default:
		return ErrNotRunning
	}
	return nil
}

// Stop requests cancellation. The run finishes its in-flight evaluation and
// exits at the next checkpoint with a cancelled termination.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateRunning, StatePaused:
		e.state = StateStopping
		e.cancel()
		e.logger.Info("evolution stop requested")
		return nil
	default:
		return ErrNotRunning
	}
}

func (e *Engine) begin(ctx context.Context) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return nil, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.state = StateRunning
	e.cancel = cancel
	return runCtx, nil
}

func (e *Engine) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = nil
	e.state = StateIdle
}

func (e *Engine) paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StatePaused
}

// waitWhilePaused polls the run state every interval until the run is no
// longer paused or runCtx is cancelled.
func (e *Engine) waitWhilePaused(runCtx context.Context, interval time.Duration) {
	if !e.paused() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for e.paused() {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
		}
	}
}

func ValidateConfig(cfg model.EvolutionConfig) error {
	if cfg.PopulationSize <= 0 {
		return fmt.Errorf("%w: population size must be > 0", ErrInvalidArgument)
	}
	if cfg.EliteCount < 0 || cfg.EliteCount > cfg.PopulationSize {
		return fmt.Errorf("%w: elite count must be in [0, population size]", ErrInvalidArgument)
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return fmt.Errorf("%w: mutation rate must be in [0,1]", ErrInvalidArgument)
	}
	if cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1 {
		return fmt.Errorf("%w: crossover rate must be in [0,1]", ErrInvalidArgument)
	}
	if cfg.CompatibilityThreshold < 0 {
		return fmt.Errorf("%w: compatibility threshold must be >= 0", ErrInvalidArgument)
	}
	if cfg.TargetSpeciesCount < 0 || cfg.SpeciesStagnationThreshold < 0 {
		return fmt.Errorf("%w: species settings must be >= 0", ErrInvalidArgument)
	}
	if cfg.PausePollInterval < 0 {
		return fmt.Errorf("%w: pause poll interval must be >= 0", ErrInvalidArgument)
	}
	term := cfg.Termination
	if term.MaxGenerations < 0 {
		return fmt.Errorf("%w: termination max generations must be >= 0", ErrInvalidArgument)
	}
	if term.StagnationGenerations < 0 {
		return fmt.Errorf("%w: termination stagnation generations must be >= 0", ErrInvalidArgument)
	}
	if target, ok := term.TargetFitness.Get(); ok && (math.IsNaN(target) || math.IsInf(target, 0)) {
		return fmt.Errorf("%w: termination target fitness must be finite", ErrInvalidArgument)
	}
	return nil
}

// runState is the bookkeeping owned by one Evolve call.
type runState struct {
	population  model.Population
	best        *model.AgentChromosome
	bestFitness float64
	stagnation  int
	history     []model.GenerationStatistics
}

// Evolve runs the generational loop until a termination condition holds or
// the run is stopped. Cancelling ctx has the same effect as Stop. Evaluation
// and population errors abort the run and are returned.
func (e *Engine) Evolve(ctx context.Context, cfg model.EvolutionConfig) (model.EvolutionResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return model.EvolutionResult{}, err
	}
	runCtx, err := e.begin(ctx)
	if err != nil {
		return model.EvolutionResult{}, err
	}
	defer e.finish()

	start := time.Now()
	interval := cfg.PausePollInterval
	if interval == 0 {
		interval = DefaultPausePollInterval
	}

	spanCtx, span := telemetry.StartSpan(ctx, "evo.evolve",
		attribute.String("run_id", e.cfg.RunID),
		attribute.Int("population_size", cfg.PopulationSize),
		attribute.Int64("seed", cfg.Seed),
	)
	defer span.End()
	e.cfg.Metrics.RunStarted()
	defer e.cfg.Metrics.RunFinished(e.cfg.RunID)

	rng := rand.New(rand.NewSource(cfg.Seed))
	tracker := genotype.NewInnovationTracker()
	managerCfg := ManagerConfig{
		Space:         e.cfg.Space,
		Tracker:       tracker,
		Selector:      e.cfg.Selector,
		MutationRate:  cfg.MutationRate,
		CrossoverRate: cfg.CrossoverRate,
	}
	if e.cfg.NewCrossover != nil {
		managerCfg.Crossover = e.cfg.NewCrossover(tracker)
	}
	if e.cfg.NewMutator != nil {
		managerCfg.Mutator = e.cfg.NewMutator(e.cfg.Space, tracker)
	}
	manager, err := NewPopulationManager(managerCfg)
	if err != nil {
		return model.EvolutionResult{}, err
	}
	var speciation *AdaptiveSpeciation
	if cfg.Speciation {
		speciation = NewSpeciationForConfig(cfg)
	}

	e.logger.Info("evolution started",
		"population_size", cfg.PopulationSize,
		"elite_count", cfg.EliteCount,
		"seed", cfg.Seed,
		"speciation", cfg.Speciation,
	)
	if cfg.Termination.IsOpenEnded() {
		e.logger.Info("no termination condition set; run ends only when stopped")
	}

	st := &runState{}
	st.population, err = manager.InitializePopulation(cfg.PopulationSize, rng)
	if err != nil {
		telemetry.RecordError(span, err)
		return model.EvolutionResult{}, err
	}
	if err := checkOperators(st.population.Members, e.cfg.Selector, e.cfg.Postprocessor); err != nil {
		telemetry.RecordError(span, err)
		return model.EvolutionResult{}, err
	}
	if _, _, err := e.evaluate(spanCtx, st.population, speciation); err != nil {
		if ctx.Err() != nil {
			return e.result(st, cfg, start, model.TerminationCancelled), nil
		}
		telemetry.RecordError(span, err)
		return model.EvolutionResult{}, err
	}
	st.best = bestMember(st.population.Members).Clone()
	st.bestFitness = st.best.Fitness

	for {
		e.waitWhilePaused(runCtx, interval)
		if kind := checkTermination(runCtx, cfg.Termination, st); kind != model.TerminationNone {
			result := e.result(st, cfg, start, kind)
			e.logger.Info("evolution finished",
				"termination", result.Termination,
				"final_generation", result.FinalGeneration,
				"best_fitness", result.BestFitness,
				"duration", result.Duration,
			)
			telemetry.SetOK(span)
			return result, nil
		}

		next, err := manager.CreateNextGeneration(st.population, cfg.EliteCount, rng)
		if err != nil {
			telemetry.RecordError(span, err)
			return model.EvolutionResult{}, fmt.Errorf("generation %d: %w", st.population.Generation+1, err)
		}
		missing, species, err := e.evaluate(spanCtx, next, speciation)
		if err != nil {
			if ctx.Err() != nil {
				return e.result(st, cfg, start, model.TerminationCancelled), nil
			}
			telemetry.RecordError(span, err)
			return model.EvolutionResult{}, err
		}
		st.population = next

		genBest := bestMember(next.Members)
		if genBest.Fitness > st.bestFitness {
			st.best = genBest.Clone()
			st.bestFitness = genBest.Fitness
			st.stagnation = 0
		} else {
			st.stagnation++
		}

		stats := model.GenerationStatistics{
			Generation:             next.Generation,
			Population:             manager.GetStatistics(next),
			BestEverFitness:        st.bestFitness,
			StagnationCount:        st.stagnation,
			SpeciesCount:           species,
			DistinctConfigurations: genotype.DistinctConfigurations(next.Members),
			MissingResults:         missing,
		}
		st.history = append(st.history, stats)
		e.cfg.Metrics.ObserveGeneration(e.cfg.RunID, st.bestFitness, stats.Population.Diversity)
		e.logger.Debug("generation complete",
			"generation", stats.Generation,
			"best_fitness", stats.Population.BestFitness,
			"average_fitness", stats.Population.AverageFitness,
			"diversity", stats.Population.Diversity,
			"stagnation", stats.StagnationCount,
			"species", stats.SpeciesCount,
		)
		if e.cfg.OnGeneration != nil {
			e.cfg.OnGeneration(stats)
		}
	}
}

// evaluate scores the population in one batch and folds the results back by
// id. Fitness keeps the evaluator's score; speciation sharing and the
// postprocessor only shape AdjustedFitness. It returns the number of members the evaluator omitted and the species
// count when speciation is enabled.
func (e *Engine) evaluate(ctx context.Context, population model.Population, speciation *AdaptiveSpeciation) (int, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "evo.evaluate",
		attribute.Int("generation", population.Generation),
		attribute.Int("batch_size", population.Len()),
	)
	defer span.End()

	started := time.Now()
	results, err := e.cfg.Evaluator.EvaluateBatch(ctx, population.Members)
	if err != nil {
		e.cfg.Metrics.ObserveEvaluation(time.Since(started).Seconds(), population.Len(), 0, true)
		telemetry.RecordError(span, err)
		if ctx.Err() == nil {
			e.logger.Error("evaluation failed", "generation", population.Generation, "error", err)
		}
		return 0, 0, fmt.Errorf("%w: generation %d: %w", ErrEvaluationFailure, population.Generation, err)
	}

	missing := 0
	for _, c := range population.Members {
		result, ok := results[c.ID]
		if !ok {
			missing++
			c.Fitness = 0
			continue
		}
		c.Fitness = result.Fitness
	}
	if missing > 0 {
		e.logger.Warn("evaluator omitted chromosomes; scoring them 0",
			"generation", population.Generation,
			"missing", missing,
			"batch_size", population.Len(),
		)
	}
	e.cfg.Metrics.ObserveEvaluation(time.Since(started).Seconds(), population.Len(), missing, false)

	species := 0
	if speciation != nil {
		stats := speciation.Assign(population.Members, population.Generation)
		species = stats.SpeciesCount
		if e.logger.Enabled(ctx, slog.LevelDebug) {
			sizes := make(map[string]int, species)
			for _, sp := range speciation.Species() {
				sizes[sp.ID] = len(sp.Members)
			}
			e.logger.Debug("species assigned",
				"generation", population.Generation,
				"threshold", stats.Threshold,
				"sizes", sizes,
			)
		}
	} else {
		for _, c := range population.Members {
			c.AdjustedFitness = c.Fitness
		}
	}
	e.cfg.Postprocessor.Process(population.Members)
	return missing, species, nil
}

func bestMember(members []*model.AgentChromosome) *model.AgentChromosome {
	best := members[0]
	for _, c := range members[1:] {
		if c.Fitness > best.Fitness {
			best = c
		}
	}
	return best
}

// checkTermination reports the first satisfied condition in the order
// cancellation, generation cap, target fitness, stagnation.
func checkTermination(runCtx context.Context, term model.TerminationCondition, st *runState) model.TerminationKind {
	if runCtx.Err() != nil {
		return model.TerminationCancelled
	}
	if term.MaxGenerations > 0 && st.population.Generation >= term.MaxGenerations {
		return model.TerminationMaxGenerations
	}
	if target, ok := term.TargetFitness.Get(); ok && st.bestFitness >= target {
		return model.TerminationTargetFitness
	}
	if term.StagnationGenerations > 0 && st.stagnation >= term.StagnationGenerations {
		return model.TerminationStagnation
	}
	return model.TerminationNone
}

func (e *Engine) result(st *runState, cfg model.EvolutionConfig, start time.Time, kind model.TerminationKind) model.EvolutionResult {
	return model.EvolutionResult{
		RunID:             e.cfg.RunID,
		Best:              st.best,
		FinalGeneration:   st.population.Generation,
		BestFitness:       st.bestFitness,
		Termination:       kind,
		TerminationReason: terminationReason(kind, cfg.Termination, st),
		GenerationHistory: st.history,
		Duration:          time.Since(start),
	}
}

func terminationReason(kind model.TerminationKind, term model.TerminationCondition, st *runState) string {
	switch kind {
	case model.TerminationCancelled:
		return "cancelled: stop requested"
	case model.TerminationMaxGenerations:
		return fmt.Sprintf("max generations reached: %d", term.MaxGenerations)
	case model.TerminationTargetFitness:
		target, _ := term.TargetFitness.Get()
		return fmt.Sprintf("target fitness reached: %.4f >= %.4f", st.bestFitness, target)
	case model.TerminationStagnation:
		return fmt.Sprintf("stagnation: no improvement for %d generations", st.stagnation)
	default:
		return ""
	}
}
