package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Population is one generation's chromosome set.
type Population struct {
	Generation int                `json:"generation"`
	Members    []*AgentChromosome `json:"members"`
}

func (p Population) Len() int {
	return len(p.Members)
}

type PopulationStatistics struct {
	Size           int     `json:"size"`
	AverageFitness float64 `json:"average_fitness"`
	BestFitness    float64 `json:"best_fitness"`
	WorstFitness   float64 `json:"worst_fitness"`
	Diversity      float64 `json:"diversity"`
}

type GenerationStatistics struct {
	Generation             int                  `json:"generation"`
	Population             PopulationStatistics `json:"population"`
	BestEverFitness        float64              `json:"best_ever_fitness"`
	StagnationCount        int                  `json:"stagnation_count"`
	SpeciesCount           int                  `json:"species_count"`
	DistinctConfigurations int                  `json:"distinct_configurations"`
	MissingResults         int                  `json:"missing_results"`
}

// TerminationCondition ends a run automatically. Zero MaxGenerations and
// StagnationGenerations and an absent TargetFitness mean "never".
type TerminationCondition struct {
	MaxGenerations        int               `json:"max_generations,omitempty"`
	TargetFitness         Optional[float64] `json:"target_fitness"`
	StagnationGenerations int               `json:"stagnation_generations,omitempty"`
}

func (t TerminationCondition) IsOpenEnded() bool {
	return t.MaxGenerations == 0 && !t.TargetFitness.IsSome() && t.StagnationGenerations == 0
}

type EvolutionConfig struct {
	PopulationSize int     `json:"population_size"`
	EliteCount     int     `json:"elite_count"`
	MutationRate   float64 `json:"mutation_rate"`
	CrossoverRate  float64 `json:"crossover_rate"`

	Speciation                 bool    `json:"speciation"`
	CompatibilityThreshold     float64 `json:"compatibility_threshold"`
	TargetSpeciesCount         int     `json:"target_species_count"`
	SpeciesStagnationThreshold int     `json:"species_stagnation_threshold"`

	Termination TerminationCondition `json:"termination"`

	Seed int64 `json:"seed"`
	// PausePollInterval bounds how long a paused run waits between checks,
	// and so is the worst-case latency for observing resume or stop.
	PausePollInterval time.Duration `json:"pause_poll_interval"`
}

type TerminationKind string

const (
	TerminationNone           TerminationKind = ""
	TerminationCancelled      TerminationKind = "cancelled"
	TerminationMaxGenerations TerminationKind = "max_generations"
	TerminationTargetFitness  TerminationKind = "target_fitness"
	TerminationStagnation     TerminationKind = "stagnation"
)

type EvolutionResult struct {
	RunID             string                 `json:"run_id,omitempty"`
	Best              *AgentChromosome       `json:"best"`
	FinalGeneration   int                    `json:"final_generation"`
	BestFitness       float64                `json:"best_fitness"`
	Termination       TerminationKind        `json:"termination"`
	TerminationReason string                 `json:"termination_reason"`
	GenerationHistory []GenerationStatistics `json:"generation_history"`
	Duration          time.Duration          `json:"duration"`
}

// RunRecord is the persisted summary of one finished run.
type RunRecord struct {
	VersionedRecord
	ID                string          `json:"id"`
	CreatedAt         time.Time       `json:"created_at"`
	Evaluator         string          `json:"evaluator"`
	Config            EvolutionConfig `json:"config"`
	BestChromosomeID  string          `json:"best_chromosome_id"`
	BestFitness       float64         `json:"best_fitness"`
	FinalGeneration   int             `json:"final_generation"`
	Termination       TerminationKind `json:"termination"`
	TerminationReason string          `json:"termination_reason"`
	Duration          time.Duration   `json:"duration"`
}
