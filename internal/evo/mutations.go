package evo

import (
	"fmt"
	"math/rand"
	"sort"

	"agentevo/internal/genotype"
	"agentevo/internal/model"
)

const defaultNumericStep = 0.1

// GeneMutator applies one kind-specific mutation to each gene that fires.
// Absent optional genes may also be grown, with probability rate scaled by
// the space's inclusion probability. Structural edits mint or reuse markers
// through Tracker.
type GeneMutator struct {
	Space   genotype.Space
	Tracker *genotype.InnovationTracker
}

func NewGeneMutator(space genotype.Space, tracker *genotype.InnovationTracker) *GeneMutator {
	return &GeneMutator{Space: space, Tracker: tracker}
}

func (*GeneMutator) Name() string {
	return "gene"
}

func (m *GeneMutator) Mutate(c *model.AgentChromosome, rate float64, rng *rand.Rand) error {
	if c == nil {
		return fmt.Errorf("%w: chromosome is required", ErrInvalidArgument)
	}
	if rng == nil {
		return fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}
	if rate < 0 || rate > 1 {
		return fmt.Errorf("%w: mutation rate must be in [0,1], got %f", ErrInvalidArgument, rate)
	}
	if m.Tracker == nil {
		return fmt.Errorf("%w: innovation tracker is required", ErrInvalidArgument)
	}

	for _, gene := range c.Genes() {
		if rng.Float64() >= rate {
			continue
		}
		if err := m.mutateGene(gene, rng); err != nil {
			return err
		}
	}

	if !c.BehaviorTree.IsSome() && len(m.Space.BehaviorActions) > 0 &&
		rng.Float64() < rate*m.Space.BehaviorTreeProbability {
		c.BehaviorTree = model.Some(genotype.RandomBehaviorTree(m.Space, m.Tracker, rng))
	}
	if !c.StateMachine.IsSome() && len(m.Space.MachineStates) >= 2 && len(m.Space.MachineTriggers) > 0 &&
		rng.Float64() < rate*m.Space.StateMachineProbability {
		c.StateMachine = model.Some(genotype.RandomStateMachine(m.Space, m.Tracker, rng))
	}
	return nil
}

func (m *GeneMutator) mutateGene(gene model.Gene, rng *rand.Rand) error {
	switch g := gene.(type) {
	case *model.PromptGene:
		m.mutatePrompt(g, rng)
	case *model.ToolConfigGene:
		mutateTools(g, rng)
	case *model.StrategyGene:
		mutateStrategy(g, rng)
	case *model.ModelGene:
		m.mutateModel(g, rng)
	case *model.NumericGene:
		MutateNumeric(g, rng)
	case *model.BehaviorTreeGene:
		m.mutateBehaviorTree(g, rng)
	case *model.StateMachineGene:
		m.mutateStateMachine(g, rng)
	default:
		return fmt.Errorf("unsupported gene kind: %T", gene)
	}
	return nil
}

// MutateNumeric adds gaussian noise with standard deviation Step*(Max-Min)
// and clamps the result into bounds.
func MutateNumeric(g *model.NumericGene, rng *rand.Rand) {
	step := g.Step
	if step <= 0 {
		step = defaultNumericStep
	}
	g.Value += rng.NormFloat64() * step * (g.Max - g.Min)
	g.Clamp()
}

func (m *GeneMutator) mutatePrompt(g *model.PromptGene, rng *rand.Rand) {
	var unused []string
	for _, item := range m.Space.InstructionPool {
		if !containsString(g.Instructions, item) {
			unused = append(unused, item)
		}
	}

	switch rng.Intn(3) {
	case 0:
		if len(m.Space.PromptTemplates) > 1 {
			g.Template = pickOther(m.Space.PromptTemplates, g.Template, rng)
			return
		}
		fallthrough
	case 1:
		if len(unused) > 0 && (m.Space.MaxInstructions <= 0 || len(g.Instructions) < m.Space.MaxInstructions) {
			g.Instructions = append(g.Instructions, unused[rng.Intn(len(unused))])
			return
		}
		fallthrough
	default:
		if len(g.Instructions) > 0 {
			idx := rng.Intn(len(g.Instructions))
			g.Instructions = append(g.Instructions[:idx:idx], g.Instructions[idx+1:]...)
		}
	}
}

func mutateTools(g *model.ToolConfigGene, rng *rand.Rand) {
	names := g.ToolNames()
	if len(names) == 0 {
		return
	}
	name := names[rng.Intn(len(names))]
	setting := g.Tools[name].Clone()
	if len(setting.Parameters) > 0 && rng.Intn(2) == 1 {
		params := make([]string, 0, len(setting.Parameters))
		for p := range setting.Parameters {
			params = append(params, p)
		}
		sort.Strings(params)
		key := params[rng.Intn(len(params))]
		param := setting.Parameters[key]
		MutateNumeric(&param, rng)
		setting.Parameters[key] = param
	} else {
		setting.Enabled = !setting.Enabled
	}
	g.Tools[name] = setting
}

func mutateStrategy(g *model.StrategyGene, rng *rand.Rand) {
	if len(g.Slots) == 0 {
		return
	}
	slot := &g.Slots[rng.Intn(len(g.Slots))]
	if len(slot.Options) > 1 {
		slot.Choice = pickOther(slot.Options, slot.Choice, rng)
	}
}

func (m *GeneMutator) mutateModel(g *model.ModelGene, rng *rand.Rand) {
	candidates := g.Candidates
	if len(candidates) == 0 {
		candidates = m.Space.Models
	}
	var others []model.ModelChoice
	for _, choice := range candidates {
		if choice != g.Selected {
			others = append(others, choice)
		}
	}
	if len(others) > 0 {
		g.Selected = others[rng.Intn(len(others))]
	}
}

func (m *GeneMutator) mutateBehaviorTree(g *model.BehaviorTreeGene, rng *rand.Rand) {
	if len(g.Nodes) == 0 {
		return
	}
	canGrow := m.Space.MaxBehaviorNodes <= 0 || len(g.Nodes) < m.Space.MaxBehaviorNodes
	switch op := rng.Intn(4); {
	case op == 0 && canGrow && len(m.Space.BehaviorActions) > 0:
		composites := genotype.CompositeNodes(*g)
		parent := composites[rng.Intn(len(composites))]
		kind, label := genotype.RandomBehaviorLeaf(m.Space, rng)
		genotype.AddBehaviorChild(g, m.Tracker, parent.Innovation, kind, label)
	case op == 1 && canGrow:
		composites := genotype.CompositeNodes(*g)
		parent := composites[rng.Intn(len(composites))]
		kind := model.BehaviorSequence
		if rng.Intn(2) == 1 {
			kind = model.BehaviorSelector
		}
		genotype.AddBehaviorChild(g, m.Tracker, parent.Innovation, kind, "")
	case op == 2 && len(g.Nodes) > 1:
		genotype.RemoveBehaviorSubtree(g, g.Nodes[1+rng.Intn(len(g.Nodes)-1)].Innovation)
	case len(g.Nodes) > 1:
		idx := 1 + rng.Intn(len(g.Nodes)-1)
		g.Nodes[idx].Enabled = !g.Nodes[idx].Enabled
	}
}

func (m *GeneMutator) mutateStateMachine(g *model.StateMachineGene, rng *rand.Rand) {
	if len(g.States) == 0 || len(m.Space.MachineTriggers) == 0 {
		return
	}
	trigger := m.Space.MachineTriggers[rng.Intn(len(m.Space.MachineTriggers))]

	var missing []string
	for _, name := range m.Space.MachineStates {
		if !g.HasState(name) {
			missing = append(missing, name)
		}
	}

	switch op := rng.Intn(3); {
	case op == 0 && len(missing) > 0:
		name := missing[rng.Intn(len(missing))]
		from := g.States[rng.Intn(len(g.States))].Name
		genotype.AddMachineState(g, m.Tracker, name)
		genotype.AddTransition(g, m.Tracker, from, name, trigger)
	case op == 1 || len(g.Transitions) == 0:
		from := g.States[rng.Intn(len(g.States))].Name
		to := g.States[rng.Intn(len(g.States))].Name
		if from != to {
			genotype.AddTransition(g, m.Tracker, from, to, trigger)
		}
	default:
		idx := rng.Intn(len(g.Transitions))
		g.Transitions[idx].Enabled = !g.Transitions[idx].Enabled
	}
}

func pickOther(options []string, current string, rng *rand.Rand) string {
	others := make([]string, 0, len(options))
	for _, option := range options {
		if option != current {
			others = append(others, option)
		}
	}
	if len(others) == 0 {
		return current
	}
	return others[rng.Intn(len(others))]
}

func containsString(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
