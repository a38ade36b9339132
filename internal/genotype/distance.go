package genotype

import (
	"math"

	"agentevo/internal/model"
)

// DistanceWeights scales the three components of CompatibilityDistance.
type DistanceWeights struct {
	Structural  float64 `json:"structural" yaml:"structural" toml:"structural"`
	Categorical float64 `json:"categorical" yaml:"categorical" toml:"categorical"`
	Numeric     float64 `json:"numeric" yaml:"numeric" toml:"numeric"`
}

func DefaultDistanceWeights() DistanceWeights {
	return DistanceWeights{Structural: 1.0, Categorical: 0.5, Numeric: 1.0}
}

// CompatibilityDistance is symmetric, zero for chromosomes with identical gene
// values, and grows with structural, categorical, and numeric divergence.
func CompatibilityDistance(a, b *model.AgentChromosome) float64 {
	return DefaultDistanceWeights().Distance(a, b)
}

func (w DistanceWeights) Distance(a, b *model.AgentChromosome) float64 {
	return w.Structural*StructuralDistance(a, b) +
		w.Categorical*CategoricalDistance(a, b) +
		w.Numeric*NumericDistance(a, b)
}

// StructuralDistance sums the NEAT-style disjoint fraction of the behavior
// tree and the state machine. Each term lies in [0,1]; an optional gene
// present on only one side contributes 1.
func StructuralDistance(a, b *model.AgentChromosome) float64 {
	dist := 0.0

	ta, okA := a.BehaviorTree.Get()
	tb, okB := b.BehaviorTree.Get()
	switch {
	case okA && okB:
		dist += disjointFraction(behaviorMarkers(ta), behaviorMarkers(tb))
	case okA != okB:
		dist++
	}

	ma, okA := a.StateMachine.Get()
	mb, okB := b.StateMachine.Get()
	switch {
	case okA && okB:
		dist += disjointFraction(machineMarkers(ma), machineMarkers(mb))
	case okA != okB:
		dist++
	}
	return dist
}

func behaviorMarkers(tree model.BehaviorTreeGene) map[model.Innovation]bool {
	out := make(map[model.Innovation]bool, len(tree.Nodes))
	for _, node := range tree.Nodes {
		out[node.Innovation] = node.Enabled
	}
	return out
}

func machineMarkers(machine model.StateMachineGene) map[model.Innovation]bool {
	out := make(map[model.Innovation]bool, len(machine.States)+len(machine.Transitions))
	for _, state := range machine.States {
		out[state.Innovation] = true
	}
	for _, tr := range machine.Transitions {
		out[tr.Innovation] = tr.Enabled
	}
	return out
}

// disjointFraction counts markers present on one side only, plus half a
// point for matching markers whose enabled flag differs, normalised by the
// larger element count.
func disjointFraction(a, b map[model.Innovation]bool) float64 {
	larger := len(a)
	if len(b) > larger {
		larger = len(b)
	}
	if larger == 0 {
		return 0
	}
	mismatch := 0.0
	for marker, enabledA := range a {
		enabledB, ok := b[marker]
		if !ok {
			mismatch++
			continue
		}
		if enabledA != enabledB {
			mismatch += 0.5
		}
	}
	for marker := range b {
		if _, ok := a[marker]; !ok {
			mismatch++
		}
	}
	return math.Min(1, mismatch/float64(larger))
}

// CategoricalDistance is the fraction of mismatched categorical decisions:
// prompt template, instruction set (Jaccard), model, each strategy slot, and
// each tool's enabled flag.
func CategoricalDistance(a, b *model.AgentChromosome) float64 {
	units := 0.0
	mismatch := 0.0

	units++
	if a.SystemPrompt.Template != b.SystemPrompt.Template {
		mismatch++
	}
	units++
	mismatch += jaccardDistance(a.SystemPrompt.Instructions, b.SystemPrompt.Instructions)

	units++
	if a.Model.Selected != b.Model.Selected {
		mismatch++
	}

	slotsA := make(map[string]string, len(a.Strategies.Slots))
	for _, slot := range a.Strategies.Slots {
		slotsA[slot.Name] = slot.Choice
	}
	slotsB := make(map[string]string, len(b.Strategies.Slots))
	for _, slot := range b.Strategies.Slots {
		slotsB[slot.Name] = slot.Choice
	}
	for name, choice := range slotsA {
		units++
		if other, ok := slotsB[name]; !ok || other != choice {
			mismatch++
		}
	}
	for name := range slotsB {
		if _, ok := slotsA[name]; !ok {
			units++
			mismatch++
		}
	}

	for name, setting := range a.ToolConfiguration.Tools {
		units++
		if other, ok := b.ToolConfiguration.Tools[name]; !ok || other.Enabled != setting.Enabled {
			mismatch++
		}
	}
	for name := range b.ToolConfiguration.Tools {
		if _, ok := a.ToolConfiguration.Tools[name]; !ok {
			units++
			mismatch++
		}
	}
	return mismatch / units
}

func jaccardDistance(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, item := range a {
		setA[item] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, item := range b {
		setB[item] = struct{}{}
	}
	union := len(setA)
	shared := 0
	for item := range setB {
		if _, ok := setA[item]; ok {
			shared++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return 1 - float64(shared)/float64(union)
}

// NumericDistance averages range-normalised deltas over the fixed scalars and
// every additional numeric gene; a gene present on one side only counts 1.
func NumericDistance(a, b *model.AgentChromosome) float64 {
	total := numericDelta(a.Temperature, b.Temperature) +
		numericDelta(a.MaxTokens, b.MaxTokens) +
		numericDelta(a.MaxRetries, b.MaxRetries)
	count := 3

	for _, name := range a.AdditionalNumericNames() {
		count++
		gb := b.AdditionalNumericGenes[name]
		if gb == nil {
			total++
			continue
		}
		total += numericDelta(*a.AdditionalNumericGenes[name], *gb)
	}
	for _, name := range b.AdditionalNumericNames() {
		if a.AdditionalNumericGenes[name] == nil {
			count++
			total++
		}
	}
	return total / float64(count)
}

func numericDelta(a, b model.NumericGene) float64 {
	diff := math.Abs(a.Value - b.Value)
	if diff == 0 {
		return 0
	}
	span := math.Max(a.Max-a.Min, b.Max-b.Min)
	if span <= 0 {
		return 1
	}
	return math.Min(1, diff/span)
}
