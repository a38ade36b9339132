package evo

import (
	"math"

	"agentevo/internal/model"
)

const sizeProportionalEfficiency = 0.05

// FitnessPostprocessor rescales AdjustedFitness in place after evaluation and
// speciation. Raw Fitness is left as the evaluator reported it.
type FitnessPostprocessor interface {
	Name() string
	Process(members []*model.AgentChromosome)
}

type NoopFitnessPostprocessor struct{}

func (NoopFitnessPostprocessor) Name() string {
	return "none"
}

func (NoopFitnessPostprocessor) Process([]*model.AgentChromosome) {}

// SizeProportionalPostprocessor penalizes larger configurations by
// complexity: enabled tools, prompt instructions, enabled behavior nodes and
// enabled transitions.
type SizeProportionalPostprocessor struct{}

func (SizeProportionalPostprocessor) Name() string {
	return "size_proportional"
}

func (SizeProportionalPostprocessor) Process(members []*model.AgentChromosome) {
	for _, c := range members {
		complexity := float64(Complexity(c))
		if complexity < 1 {
			complexity = 1
		}
		c.AdjustedFitness = c.AdjustedFitness / math.Pow(complexity, sizeProportionalEfficiency)
	}
}

func Complexity(c *model.AgentChromosome) int {
	total := len(c.ToolConfiguration.EnabledTools()) + len(c.SystemPrompt.Instructions)
	if tree, ok := c.BehaviorTree.Get(); ok {
		for _, node := range tree.Nodes {
			if node.Enabled {
				total++
			}
		}
	}
	if machine, ok := c.StateMachine.Get(); ok {
		for _, tr := range machine.Transitions {
			if tr.Enabled {
				total++
			}
		}
	}
	return total
}
