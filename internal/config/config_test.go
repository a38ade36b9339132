package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentevo/internal/evo"
	"agentevo/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, evo.DefaultPausePollInterval, cfg.Evolution.PausePollInterval)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "run.yaml", `
evolution:
  population_size: 30
  elite_count: 3
  target_fitness: 0.9
  pause_poll_interval: 250ms
  selector: roulette
evaluator:
  workers: 8
  guard:
    timeout: 5s
store:
  kind: sqlite
  path: runs.db
logger:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Evolution.PopulationSize)
	assert.Equal(t, 3, cfg.Evolution.EliteCount)
	assert.Equal(t, 0.7, cfg.Evolution.CrossoverRate, "unset fields keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Evolution.PausePollInterval)
	assert.Equal(t, "roulette", cfg.Evolution.Selector)
	assert.Equal(t, 8, cfg.Evaluator.Workers)
	assert.Equal(t, 5*time.Second, cfg.Evaluator.Guard.Timeout)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, "debug", cfg.Logger.Level)

	evolution := cfg.EvolutionConfig()
	target, ok := evolution.Termination.TargetFitness.Get()
	require.True(t, ok)
	assert.Equal(t, 0.9, target)
	assert.Equal(t, 25, evolution.Termination.MaxGenerations)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "run.toml", `
[evolution]
population_size = 12
speciation = true
seed = 99
pause_poll_interval = "50ms"

[evaluator.profile]
model = "openai/gpt-4o"
tools = ["calculator"]

[tracer]
enabled = true
exporter = "stdout"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Evolution.PopulationSize)
	assert.True(t, cfg.Evolution.Speciation)
	assert.Equal(t, int64(99), cfg.Evolution.Seed)
	assert.Equal(t, 50*time.Millisecond, cfg.Evolution.PausePollInterval)
	assert.Equal(t, "openai/gpt-4o", cfg.Evaluator.Profile.Model)
	assert.Equal(t, []string{"calculator"}, cfg.Evaluator.Profile.Tools)
	assert.True(t, cfg.Tracer.Enabled)

	evolution := cfg.EvolutionConfig()
	assert.False(t, evolution.Termination.TargetFitness.IsSome())
	assert.True(t, evolution.Speciation)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "run.yaml", "evolution:\n  populaton_size: 3\n"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "run.toml", "[evolution]\npopulaton_size = 3\n"))
	require.Error(t, err)
}

func TestLoadRejectsUnsupportedExtension(t *testing.T) {
	_, err := Load(writeFile(t, "run.json", "{}"))
	require.ErrorContains(t, err, "unsupported config extension")
}

func TestLoadEmptyYAMLUsesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Evolution, cfg.Evolution)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*File){
		"population":    func(f *File) { f.Evolution.PopulationSize = 0 },
		"elite":         func(f *File) { f.Evolution.EliteCount = f.Evolution.PopulationSize + 1 },
		"mutation rate": func(f *File) { f.Evolution.MutationRate = 2 },
		"selector":      func(f *File) { f.Evolution.Selector = "lottery" },
		"postprocessor": func(f *File) { f.Evolution.Postprocessor = "tournament" },
		"store kind":    func(f *File) { f.Store.Kind = "redis" },
		"sqlite path":   func(f *File) { f.Store.Kind = "sqlite"; f.Store.Path = "" },
		"space":         func(f *File) { f.Space.Models = nil },
		"workers":       func(f *File) { f.Evaluator.Workers = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteThenLoad(t *testing.T) {
	for _, name := range []string{"agentevo.yaml", "agentevo.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			target := 0.8
			cfg.Evolution.TargetFitness = &target
			cfg.Evolution.PopulationSize = 16
			require.NoError(t, Write(path, cfg))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 16, loaded.Evolution.PopulationSize)
			require.NotNil(t, loaded.Evolution.TargetFitness)
			assert.Equal(t, 0.8, *loaded.Evolution.TargetFitness)
			assert.Equal(t, cfg.Evaluator.Guard, loaded.Evaluator.Guard)
			assert.Equal(t, cfg.Space.Models, loaded.Space.Models)
			assert.Equal(t, model.TerminationCondition{
				MaxGenerations:        25,
				TargetFitness:         model.Some(0.8),
				StagnationGenerations: 10,
			}, loaded.EvolutionConfig().Termination)
		})
	}
}
