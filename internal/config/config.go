// Package config loads run configuration files. YAML and TOML are both
// accepted; the format is chosen by file extension.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"agentevo/internal/evo"
	"agentevo/internal/fitness"
	"agentevo/internal/genotype"
	"agentevo/internal/logging"
	"agentevo/internal/model"
	"agentevo/internal/telemetry"
)

type Evolution struct {
	PopulationSize             int           `yaml:"population_size" toml:"population_size"`
	EliteCount                 int           `yaml:"elite_count" toml:"elite_count"`
	MutationRate               float64       `yaml:"mutation_rate" toml:"mutation_rate"`
	CrossoverRate              float64       `yaml:"crossover_rate" toml:"crossover_rate"`
	Speciation                 bool          `yaml:"speciation" toml:"speciation"`
	CompatibilityThreshold     float64       `yaml:"compatibility_threshold" toml:"compatibility_threshold"`
	TargetSpeciesCount         int           `yaml:"target_species_count" toml:"target_species_count"`
	SpeciesStagnationThreshold int           `yaml:"species_stagnation_threshold" toml:"species_stagnation_threshold"`
	MaxGenerations             int           `yaml:"max_generations" toml:"max_generations"`
	TargetFitness              *float64      `yaml:"target_fitness,omitempty" toml:"target_fitness,omitempty"`
	StagnationGenerations      int           `yaml:"stagnation_generations" toml:"stagnation_generations"`
	Seed                       int64         `yaml:"seed" toml:"seed"`
	PausePollInterval          time.Duration `yaml:"pause_poll_interval" toml:"pause_poll_interval"`
	Selector                   string        `yaml:"selector" toml:"selector"`
	Postprocessor              string        `yaml:"postprocessor" toml:"postprocessor"`
	BlendNumeric               bool          `yaml:"blend_numeric" toml:"blend_numeric"`
}

type Evaluator struct {
	Name    string                `yaml:"name" toml:"name"`
	Workers int                   `yaml:"workers" toml:"workers"`
	Profile fitness.TargetProfile `yaml:"profile" toml:"profile"`
	Guard   fitness.GuardConfig   `yaml:"guard" toml:"guard"`
}

type Metrics struct {
	// Addr serves /metrics when non-empty, e.g. ":9090".
	Addr string `yaml:"addr" toml:"addr"`
}

type Store struct {
	Kind         string `yaml:"kind" toml:"kind"`
	Path         string `yaml:"path" toml:"path"`
	ArtifactsDir string `yaml:"artifacts_dir" toml:"artifacts_dir"`
}

// File is the on-disk description of a run and the services around it.
type File struct {
	Evolution Evolution              `yaml:"evolution" toml:"evolution"`
	Space     genotype.Space         `yaml:"space" toml:"space"`
	Evaluator Evaluator              `yaml:"evaluator" toml:"evaluator"`
	Logger    logging.Config         `yaml:"logger" toml:"logger"`
	Tracer    telemetry.TracerConfig `yaml:"tracer" toml:"tracer"`
	Metrics   Metrics                `yaml:"metrics" toml:"metrics"`
	Store     Store                  `yaml:"store" toml:"store"`
}

func Default() File {
	return File{
		Evolution: Evolution{
			PopulationSize:        20,
			EliteCount:            2,
			MutationRate:          0.2,
			CrossoverRate:         0.7,
			MaxGenerations:        25,
			StagnationGenerations: 10,
			Seed:                  1,
			PausePollInterval:     evo.DefaultPausePollInterval,
			Selector:              "tournament",
			Postprocessor:         "none",
		},
		Space: genotype.DefaultSpace(),
		Evaluator: Evaluator{
			Name:    "heuristic",
			Workers: 4,
			Profile: fitness.DefaultTargetProfile(),
			Guard: fitness.GuardConfig{
				MaxFailures: 3,
				Timeout:     30 * time.Second,
				Interval:    time.Minute,
			},
		},
		Logger: logging.Config{Level: "info", Format: "text", Output: "stderr"},
		Tracer: telemetry.TracerConfig{Exporter: "noop"},
		Store: Store{
			Kind:         "memory",
			ArtifactsDir: "runs",
		},
	}
}

// Load applies the file at path on top of Default and validates the result.
func Load(path string) (File, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	switch format(path) {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return File{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case "toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return File{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return File{}, fmt.Errorf("parse %s: unknown keys %v", path, undecoded)
		}
	default:
		return File{}, fmt.Errorf("unsupported config extension %q: use .yaml, .yml or .toml", filepath.Ext(path))
	}
	if err := cfg.Validate(); err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Write encodes cfg to path in the format implied by its extension.
func Write(path string, cfg File) error {
	var buf bytes.Buffer
	switch format(path) {
	case "yaml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	case "toml":
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported config extension %q: use .yaml, .yml or .toml", filepath.Ext(path))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return ""
	}
}

func (f File) Validate() error {
	if err := evo.ValidateConfig(f.EvolutionConfig()); err != nil {
		return fmt.Errorf("evolution: %w", err)
	}
	if err := f.Space.Validate(); err != nil {
		return fmt.Errorf("space: %w", err)
	}
	if _, err := evo.ResolveSelector(f.Evolution.Selector); err != nil {
		return fmt.Errorf("evolution.selector: %w", err)
	}
	if _, err := evo.ResolvePostprocessor(f.Evolution.Postprocessor); err != nil {
		return fmt.Errorf("evolution.postprocessor: %w", err)
	}
	if f.Evaluator.Workers < 0 {
		return errors.New("evaluator.workers must be >= 0")
	}
	switch f.Store.Kind {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("store.kind must be memory or sqlite, got %q", f.Store.Kind)
	}
	if f.Store.Kind == "sqlite" && f.Store.Path == "" {
		return errors.New("store.path is required for sqlite")
	}
	return nil
}

func (f File) EvolutionConfig() model.EvolutionConfig {
	e := f.Evolution
	cfg := model.EvolutionConfig{
		PopulationSize:             e.PopulationSize,
		EliteCount:                 e.EliteCount,
		MutationRate:               e.MutationRate,
		CrossoverRate:              e.CrossoverRate,
		Speciation:                 e.Speciation,
		CompatibilityThreshold:     e.CompatibilityThreshold,
		TargetSpeciesCount:         e.TargetSpeciesCount,
		SpeciesStagnationThreshold: e.SpeciesStagnationThreshold,
		Termination: model.TerminationCondition{
			MaxGenerations:        e.MaxGenerations,
			StagnationGenerations: e.StagnationGenerations,
		},
		Seed:              e.Seed,
		PausePollInterval: e.PausePollInterval,
	}
	if e.TargetFitness != nil {
		cfg.Termination.TargetFitness = model.Some(*e.TargetFitness)
	}
	return cfg
}
