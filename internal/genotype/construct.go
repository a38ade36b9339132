package genotype

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"agentevo/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// NewChromosomeID mints an identity from rng so that seeded runs reproduce
// the same ids.
func NewChromosomeID(rng *rand.Rand) (string, error) {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return "", fmt.Errorf("mint chromosome id: %w", err)
	}
	return id.String(), nil
}

// NewRandomChromosome builds a generation-0 chromosome drawn uniformly from space.
func NewRandomChromosome(space Space, tracker *InnovationTracker, rng *rand.Rand) (*model.AgentChromosome, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("innovation tracker is required")
	}
	id, err := NewChromosomeID(rng)
	if err != nil {
		return nil, err
	}

	c := &model.AgentChromosome{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: CurrentSchemaVersion,
			CodecVersion:  CurrentCodecVersion,
		},
		ID:                id,
		SystemPrompt:      randomPrompt(space, rng),
		ToolConfiguration: randomTools(space, rng),
		Strategies:        randomStrategies(space, rng),
		Model: model.ModelGene{
			Selected:   space.Models[rng.Intn(len(space.Models))],
			Candidates: append([]model.ModelChoice(nil), space.Models...),
		},
		Temperature: space.Temperature.Random(rng),
		MaxTokens:   space.MaxTokens.Random(rng),
		MaxRetries:  space.MaxRetries.Random(rng),
		Metadata:    map[string]any{},
		Generation:  0,
	}

	if len(space.AdditionalNumeric) > 0 {
		c.AdditionalNumericGenes = make(map[string]*model.NumericGene, len(space.AdditionalNumeric))
		for _, spec := range space.AdditionalNumeric {
			gene := spec.Random(rng)
			c.AdditionalNumericGenes[spec.Name] = &gene
		}
	}
	if space.BehaviorTreeProbability > 0 && rng.Float64() < space.BehaviorTreeProbability {
		c.BehaviorTree = model.Some(RandomBehaviorTree(space, tracker, rng))
	}
	if space.StateMachineProbability > 0 && rng.Float64() < space.StateMachineProbability {
		c.StateMachine = model.Some(RandomStateMachine(space, tracker, rng))
	}
	return c, nil
}

func randomPrompt(space Space, rng *rand.Rand) model.PromptGene {
	prompt := model.PromptGene{Template: space.PromptTemplates[rng.Intn(len(space.PromptTemplates))]}
	limit := space.MaxInstructions
	if limit > len(space.InstructionPool) {
		limit = len(space.InstructionPool)
	}
	if limit <= 0 {
		return prompt
	}
	count := 1 + rng.Intn(limit)
	for _, idx := range rng.Perm(len(space.InstructionPool))[:count] {
		prompt.Instructions = append(prompt.Instructions, space.InstructionPool[idx])
	}
	return prompt
}

func randomTools(space Space, rng *rand.Rand) model.ToolConfigGene {
	tools := model.ToolConfigGene{Tools: make(map[string]model.ToolSetting, len(space.Tools))}
	for _, spec := range space.Tools {
		setting := model.ToolSetting{Enabled: rng.Float64() < spec.EnableProbability}
		if len(spec.Parameters) > 0 {
			setting.Parameters = make(map[string]model.NumericGene, len(spec.Parameters))
			for _, param := range spec.Parameters {
				setting.Parameters[param.Name] = param.Random(rng)
			}
		}
		tools.Tools[spec.Name] = setting
	}
	return tools
}

func randomStrategies(space Space, rng *rand.Rand) model.StrategyGene {
	out := model.StrategyGene{Slots: make([]model.StrategySlot, 0, len(space.Strategies))}
	for _, spec := range space.Strategies {
		out.Slots = append(out.Slots, model.StrategySlot{
			Name:    spec.Name,
			Options: append([]string(nil), spec.Options...),
			Choice:  spec.Options[rng.Intn(len(spec.Options))],
		})
	}
	return out
}

// RandomBehaviorTree builds a composite root with one to three leaves.
func RandomBehaviorTree(space Space, tracker *InnovationTracker, rng *rand.Rand) model.BehaviorTreeGene {
	rootKind := model.BehaviorSequence
	if rng.Intn(2) == 1 {
		rootKind = model.BehaviorSelector
	}
	root := model.BehaviorNode{
		Innovation: tracker.BehaviorNode(0, rootKind, ""),
		Kind:       rootKind,
		Enabled:    true,
	}
	tree := model.BehaviorTreeGene{Nodes: []model.BehaviorNode{root}}
	leaves := 1 + rng.Intn(3)
	for i := 0; i < leaves; i++ {
		kind, label := RandomBehaviorLeaf(space, rng)
		AddBehaviorChild(&tree, tracker, root.Innovation, kind, label)
	}
	return tree
}

// RandomStateMachine picks two or more states, starting from the first
// configured state, and wires each state to a random successor.
func RandomStateMachine(space Space, tracker *InnovationTracker, rng *rand.Rand) model.StateMachineGene {
	machine := model.StateMachineGene{Initial: space.MachineStates[0]}
	AddMachineState(&machine, tracker, space.MachineStates[0])
	rest := space.MachineStates[1:]
	count := 1 + rng.Intn(len(rest))
	for _, idx := range rng.Perm(len(rest))[:count] {
		AddMachineState(&machine, tracker, rest[idx])
	}
	for _, state := range append([]model.MachineState(nil), machine.States...) {
		target := machine.States[rng.Intn(len(machine.States))]
		if target.Name == state.Name {
			continue
		}
		trigger := space.MachineTriggers[rng.Intn(len(space.MachineTriggers))]
		AddTransition(&machine, tracker, state.Name, target.Name, trigger)
	}
	return machine
}
