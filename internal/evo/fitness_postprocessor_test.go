package evo

import (
	"math"
	"testing"

	"agentevo/internal/model"
)

func TestSizeProportionalPostprocessorUsesEfficiencyExponent(t *testing.T) {
	small := &model.AgentChromosome{
		SystemPrompt: model.PromptGene{Template: "t", Instructions: []string{"a", "b"}},
		Fitness:         1,
		AdjustedFitness: 1,
	}
	large := &model.AgentChromosome{
		SystemPrompt: model.PromptGene{Template: "t", Instructions: []string{"a", "b", "c"}},
		ToolConfiguration: model.ToolConfigGene{Tools: map[string]model.ToolSetting{
			"web_search": {Enabled: true},
			"calculator": {Enabled: true},
			"retrieval":  {Enabled: false},
		}},
		BehaviorTree: model.Some(model.BehaviorTreeGene{Nodes: []model.BehaviorNode{
			{Innovation: 1, Kind: model.BehaviorSequence, Enabled: true},
			{Innovation: 2, Kind: model.BehaviorAction, Label: "read", Parent: 1, Enabled: true},
			{Innovation: 3, Kind: model.BehaviorAction, Label: "write", Parent: 1, Enabled: false},
		}}),
		Fitness:         1,
		AdjustedFitness: 1,
	}
	if got := Complexity(small); got != 2 {
		t.Fatalf("small complexity = %d, want 2", got)
	}
	if got := Complexity(large); got != 7 {
		t.Fatalf("large complexity = %d, want 7", got)
	}

	SizeProportionalPostprocessor{}.Process([]*model.AgentChromosome{small, large})

	wantSmall := 1.0 / math.Pow(2, sizeProportionalEfficiency)
	wantLarge := 1.0 / math.Pow(7, sizeProportionalEfficiency)
	if math.Abs(small.AdjustedFitness-wantSmall) > 1e-9 {
		t.Fatalf("unexpected small adjusted fitness: got=%f want=%f", small.AdjustedFitness, wantSmall)
	}
	if math.Abs(large.AdjustedFitness-wantLarge) > 1e-9 {
		t.Fatalf("unexpected large adjusted fitness: got=%f want=%f", large.AdjustedFitness, wantLarge)
	}
	if small.Fitness != 1 || large.Fitness != 1 {
		t.Fatalf("expected raw fitness untouched, got small=%f large=%f", small.Fitness, large.Fitness)
	}
}

func TestSizeProportionalPostprocessorEmptyConfigurationUnchanged(t *testing.T) {
	c := &model.AgentChromosome{Fitness: 0.8, AdjustedFitness: 0.8}
	SizeProportionalPostprocessor{}.Process([]*model.AgentChromosome{c})
	if c.AdjustedFitness != 0.8 {
		t.Fatalf("expected complexity floor of 1 to keep adjusted fitness, got %f", c.AdjustedFitness)
	}
}

func TestNoopFitnessPostprocessor(t *testing.T) {
	c := &model.AgentChromosome{Fitness: 0.4, AdjustedFitness: 0.4}
	NoopFitnessPostprocessor{}.Process([]*model.AgentChromosome{c})
	if c.Fitness != 0.4 || c.AdjustedFitness != 0.4 {
		t.Fatalf("expected unchanged fitness, got raw=%f adjusted=%f", c.Fitness, c.AdjustedFitness)
	}
}
