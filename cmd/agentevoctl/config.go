package main

import (
	"fmt"
	"time"

	"agentevo/internal/config"
)

func loadOrDefaultConfig(configPath string) (config.File, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.File{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// overrideFromFlags applies only flags the user set explicitly, so values
// from -config survive unless overridden.
func overrideFromFlags(cfg *config.File, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "pop":
			cfg.Evolution.PopulationSize = v.(int)
		case "elite":
			cfg.Evolution.EliteCount = v.(int)
		case "gens":
			cfg.Evolution.MaxGenerations = v.(int)
		case "stagnation":
			cfg.Evolution.StagnationGenerations = v.(int)
		case "target-fitness":
			target := v.(float64)
			cfg.Evolution.TargetFitness = &target
		case "mutation-rate":
			cfg.Evolution.MutationRate = v.(float64)
		case "crossover-rate":
			cfg.Evolution.CrossoverRate = v.(float64)
		case "speciation":
			cfg.Evolution.Speciation = v.(bool)
		case "seed":
			cfg.Evolution.Seed = v.(int64)
		case "selection":
			cfg.Evolution.Selector = v.(string)
		case "fitness-postprocessor":
			cfg.Evolution.Postprocessor = v.(string)
		case "poll-ms":
			cfg.Evolution.PausePollInterval = time.Duration(v.(int)) * time.Millisecond
		case "workers":
			cfg.Evaluator.Workers = v.(int)
		case "store":
			cfg.Store.Kind = v.(string)
		case "db-path":
			cfg.Store.Path = v.(string)
		case "artifacts":
			cfg.Store.ArtifactsDir = v.(string)
		case "metrics-addr":
			cfg.Metrics.Addr = v.(string)
		case "log-level":
			cfg.Logger.Level = v.(string)
		case "log-format":
			cfg.Logger.Format = v.(string)
		case "trace":
			cfg.Tracer.Enabled = true
			cfg.Tracer.Exporter = v.(string)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return cfg.Validate()
}
