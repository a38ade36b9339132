package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentevo/internal/evo"
	"agentevo/internal/fitness"
	"agentevo/internal/model"
	"agentevo/internal/storage"
)

func newTestLab(t *testing.T) *Lab {
	t.Helper()
	lab := NewLab(Config{Store: storage.NewMemoryStore()})
	require.NoError(t, lab.Init(context.Background()))
	require.NoError(t, lab.RegisterEvaluator("heuristic", fitness.NewHeuristicEvaluator(fitness.DefaultTargetProfile(), 2)))
	return lab
}

func smallConfig() model.EvolutionConfig {
	return model.EvolutionConfig{
		PopulationSize:    6,
		EliteCount:        1,
		MutationRate:      0.3,
		CrossoverRate:     0.5,
		Seed:              3,
		PausePollInterval: 5 * time.Millisecond,
	}
}

func TestLabInitRequiresStore(t *testing.T) {
	require.Error(t, NewLab(Config{}).Init(context.Background()))
}

func TestLabRegisterEvaluator(t *testing.T) {
	lab := newTestLab(t)
	assert.Error(t, lab.RegisterEvaluator("", fitness.Constant(1)))
	assert.Error(t, lab.RegisterEvaluator("nil", nil))
	assert.Error(t, lab.RegisterEvaluator("heuristic", fitness.Constant(1)))
	require.NoError(t, lab.RegisterEvaluator("constant", fitness.Constant(1)))
	assert.Equal(t, []string{"constant", "heuristic"}, lab.Evaluators())
}

func TestLabRunPersistsResult(t *testing.T) {
	lab := newTestLab(t)
	cfg := smallConfig()
	cfg.Termination.MaxGenerations = 3

	result, err := lab.Run(context.Background(), RunRequest{RunID: "run-a", Evaluator: "heuristic", Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, "run-a", result.RunID)
	assert.Equal(t, model.TerminationMaxGenerations, result.Termination)
	assert.Len(t, result.GenerationHistory, 3)
	assert.Empty(t, lab.ActiveRuns())

	ctx := context.Background()
	record, ok, err := lab.Store().GetRun(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "heuristic", record.Evaluator)
	assert.Equal(t, result.BestFitness, record.BestFitness)
	assert.Equal(t, result.Best.ID, record.BestChromosomeID)
	assert.Equal(t, cfg.Seed, record.Config.Seed)

	best, ok, err := lab.Store().GetChromosome(ctx, record.BestChromosomeID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.BestFitness, best.Fitness)

	history, ok, err := lab.Store().GetGenerationHistory(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.GenerationHistory, history)
}

func TestLabRunAssignsULID(t *testing.T) {
	lab := newTestLab(t)
	cfg := smallConfig()
	cfg.Termination.MaxGenerations = 1

	result, err := lab.Run(context.Background(), RunRequest{Evaluator: "heuristic", Config: cfg})
	require.NoError(t, err)
	_, err = ulid.Parse(result.RunID)
	assert.NoError(t, err)
}

func TestLabRunErrors(t *testing.T) {
	lab := newTestLab(t)
	_, err := lab.Run(context.Background(), RunRequest{Evaluator: "missing", Config: smallConfig()})
	assert.ErrorIs(t, err, ErrUnknownEvaluator)

	_, err = lab.Run(context.Background(), RunRequest{Evaluator: "heuristic", Config: model.EvolutionConfig{}})
	assert.ErrorIs(t, err, evo.ErrInvalidArgument)

	idle := NewLab(Config{Store: storage.NewMemoryStore()})
	_, err = idle.Run(context.Background(), RunRequest{Evaluator: "heuristic", Config: smallConfig()})
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestLabRunControlRoutesByRunID(t *testing.T) {
	lab := newTestLab(t)
	atGeneration := make(chan struct{}, 1)
	req := RunRequest{
		RunID:     "controlled",
		Evaluator: "heuristic",
		Config:    smallConfig(),
		OnGeneration: func(stats model.GenerationStatistics) {
			if stats.Generation == 1 {
				if err := lab.PauseRun("controlled"); err != nil {
					t.Errorf("pause: %v", err)
				}
				atGeneration <- struct{}{}
			}
		},
	}

	type outcome struct {
		result model.EvolutionResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := lab.Run(context.Background(), req)
		done <- outcome{result, err}
	}()

	<-atGeneration
	state, err := lab.RunState("controlled")
	require.NoError(t, err)
	assert.Equal(t, evo.StatePaused, state)
	assert.Equal(t, []string{"controlled"}, lab.ActiveRuns())

	_, err = lab.Run(context.Background(), RunRequest{RunID: "controlled", Evaluator: "heuristic", Config: smallConfig()})
	assert.ErrorIs(t, err, ErrRunActive)

	require.NoError(t, lab.ResumeRun("controlled"))
	require.NoError(t, lab.StopRun("controlled"))

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.Equal(t, model.TerminationCancelled, out.result.Termination)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}

	record, ok, err := lab.Store().GetRun(context.Background(), "controlled")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.TerminationCancelled, record.Termination)

	err = lab.PauseRun("controlled")
	assert.True(t, errors.Is(err, ErrRunNotActive), "got %v", err)
}

func TestLabShutdownStopsRuns(t *testing.T) {
	lab := newTestLab(t)
	started := make(chan struct{}, 1)
	req := RunRequest{
		RunID:     "long",
		Evaluator: "heuristic",
		Config:    smallConfig(),
		OnGeneration: func(stats model.GenerationStatistics) {
			if stats.Generation == 1 {
				started <- struct{}{}
			}
		},
	}
	done := make(chan error, 1)
	go func() {
		_, err := lab.Run(context.Background(), req)
		done <- err
	}()

	<-started
	lab.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not stop the run")
	}
	assert.False(t, lab.Started())
}
