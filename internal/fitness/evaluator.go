package fitness

import (
	"context"

	"agentevo/internal/model"
)

// Result is one chromosome's score. Components and Notes are informational.
type Result struct {
	Fitness    float64            `json:"fitness"`
	Components map[string]float64 `json:"components,omitempty"`
	Notes      string             `json:"notes,omitempty"`
}

// Evaluator scores a batch and returns results keyed by chromosome id. A
// result map may omit ids and need not follow input order.
type Evaluator interface {
	EvaluateBatch(ctx context.Context, batch []*model.AgentChromosome) (map[string]Result, error)
}

type EvaluatorFunc func(ctx context.Context, batch []*model.AgentChromosome) (map[string]Result, error)

func (f EvaluatorFunc) EvaluateBatch(ctx context.Context, batch []*model.AgentChromosome) (map[string]Result, error) {
	return f(ctx, batch)
}

// Scorer scores a single chromosome.
type Scorer interface {
	Score(ctx context.Context, c *model.AgentChromosome) (Result, error)
}

type ScorerFunc func(ctx context.Context, c *model.AgentChromosome) (Result, error)

func (f ScorerFunc) Score(ctx context.Context, c *model.AgentChromosome) (Result, error) {
	return f(ctx, c)
}

// Constant scores every chromosome with the same value.
func Constant(value float64) Evaluator {
	return EvaluatorFunc(func(_ context.Context, batch []*model.AgentChromosome) (map[string]Result, error) {
		out := make(map[string]Result, len(batch))
		for _, c := range batch {
			out[c.ID] = Result{Fitness: value}
		}
		return out, nil
	})
}
