package evo

import (
	"fmt"
	"math/rand"

	"agentevo/internal/genotype"
	"agentevo/internal/model"
)

// UniformCrossover inherits each gene from a randomly chosen parent. Genes
// that exist only in one parent (tools, strategy slots, additional numerics,
// behavior nodes, machine states and transitions) come from the fitter
// parent. Structural genes are aligned by innovation marker after both
// parents are re-derived through Tracker.
type UniformCrossover struct {
	Tracker *genotype.InnovationTracker
	// BlendNumeric interpolates matching numeric genes instead of picking one.
	BlendNumeric bool
}

func NewUniformCrossover(tracker *genotype.InnovationTracker) *UniformCrossover {
	return &UniformCrossover{Tracker: tracker}
}

func (*UniformCrossover) Name() string {
	return "uniform"
}

func (x *UniformCrossover) Crossover(a, b *model.AgentChromosome, rng *rand.Rand) (*model.AgentChromosome, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: crossover requires two parents", ErrInvalidArgument)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}
	fitter, other := a, b
	if b.Fitness > a.Fitness {
		fitter, other = b, a
	}

	child := fitter.Clone()
	child.ID = ""
	genotype.ResetEvaluation(child)

	if rng.Intn(2) == 1 {
		child.SystemPrompt = other.SystemPrompt.Clone()
	}
	if rng.Intn(2) == 1 {
		child.Model = other.Model.Clone()
	}
	child.ToolConfiguration = crossTools(fitter.ToolConfiguration, other.ToolConfiguration, rng)
	child.Strategies = crossStrategies(fitter.Strategies, other.Strategies, rng)

	child.Temperature = x.crossNumeric(fitter.Temperature, other.Temperature, rng)
	child.MaxTokens = x.crossNumeric(fitter.MaxTokens, other.MaxTokens, rng)
	child.MaxRetries = x.crossNumeric(fitter.MaxRetries, other.MaxRetries, rng)
	for _, name := range child.AdditionalNumericNames() {
		if peer := other.AdditionalNumericGenes[name]; peer != nil {
			crossed := x.crossNumeric(*child.AdditionalNumericGenes[name], *peer, rng)
			child.AdditionalNumericGenes[name] = &crossed
		}
	}

	if tree := child.BehaviorTree.Ptr(); tree != nil {
		*tree = x.crossBehaviorTree(*tree, other.BehaviorTree, rng)
	}
	if machine := child.StateMachine.Ptr(); machine != nil {
		*machine = x.crossStateMachine(*machine, other.StateMachine, rng)
	}
	return child, nil
}

func crossTools(fitter, other model.ToolConfigGene, rng *rand.Rand) model.ToolConfigGene {
	out := fitter.Clone()
	for _, name := range out.ToolNames() {
		peer, ok := other.Tools[name]
		if ok && rng.Intn(2) == 1 {
			out.Tools[name] = peer.Clone()
		}
	}
	return out
}

func crossStrategies(fitter, other model.StrategyGene, rng *rand.Rand) model.StrategyGene {
	out := fitter.Clone()
	for i := range out.Slots {
		choice, ok := other.Choice(out.Slots[i].Name)
		if ok && rng.Intn(2) == 1 {
			out.Slots[i].Choice = choice
		}
	}
	return out
}

func (x *UniformCrossover) crossNumeric(fitter, other model.NumericGene, rng *rand.Rand) model.NumericGene {
	out := fitter
	if x.BlendNumeric {
		out.Value = fitter.Value + rng.Float64()*(other.Value-fitter.Value)
	} else if rng.Intn(2) == 1 {
		out.Value = other.Value
	}
	out.Clamp()
	return out
}

func (x *UniformCrossover) crossBehaviorTree(fitter model.BehaviorTreeGene, other model.Optional[model.BehaviorTreeGene], rng *rand.Rand) model.BehaviorTreeGene {
	peer, ok := other.Get()
	if x.Tracker != nil {
		fitter = x.Tracker.CanonicalBehaviorTree(fitter)
		if ok {
			peer = x.Tracker.CanonicalBehaviorTree(peer)
		}
	}
	if !ok {
		return fitter
	}
	for i := range fitter.Nodes {
		if match, found := peer.Node(fitter.Nodes[i].Innovation); found && rng.Intn(2) == 1 {
			fitter.Nodes[i].Enabled = match.Enabled
		}
	}
	if len(fitter.Nodes) > 0 {
		fitter.Nodes[0].Enabled = true
	}
	return fitter
}

func (x *UniformCrossover) crossStateMachine(fitter model.StateMachineGene, other model.Optional[model.StateMachineGene], rng *rand.Rand) model.StateMachineGene {
	peer, ok := other.Get()
	if x.Tracker != nil {
		fitter = x.Tracker.CanonicalStateMachine(fitter)
		if ok {
			peer = x.Tracker.CanonicalStateMachine(peer)
		}
	}
	if !ok {
		return fitter
	}
	enabled := make(map[model.Innovation]bool, len(peer.Transitions))
	for _, tr := range peer.Transitions {
		enabled[tr.Innovation] = tr.Enabled
	}
	for i := range fitter.Transitions {
		if flag, found := enabled[fitter.Transitions[i].Innovation]; found && rng.Intn(2) == 1 {
			fitter.Transitions[i].Enabled = flag
		}
	}
	return fitter
}
