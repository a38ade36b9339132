package model

import "sort"

// AgentChromosome is one candidate agent configuration.
type AgentChromosome struct {
	VersionedRecord
	ID string `json:"id"`

	SystemPrompt      PromptGene     `json:"system_prompt"`
	ToolConfiguration ToolConfigGene `json:"tool_configuration"`
	Strategies        StrategyGene   `json:"strategies"`
	Model             ModelGene      `json:"model"`
	Temperature       NumericGene    `json:"temperature"`
	MaxTokens         NumericGene    `json:"max_tokens"`
	MaxRetries        NumericGene    `json:"max_retries"`

	BehaviorTree Optional[BehaviorTreeGene] `json:"behavior_tree"`
	StateMachine Optional[StateMachineGene] `json:"state_machine"`

	AdditionalNumericGenes map[string]*NumericGene `json:"additional_numeric_genes,omitempty"`
	Metadata               map[string]any          `json:"metadata,omitempty"`

	Generation      int              `json:"generation"`
	Fitness         float64          `json:"fitness"`
	AdjustedFitness float64          `json:"adjusted_fitness"`
	SpeciesID       Optional[string] `json:"species_id"`
}

// Clone returns a deep copy: every gene instance is independently owned.
// Metadata values are opaque and copied by reference.
func (c *AgentChromosome) Clone() *AgentChromosome {
	out := *c
	out.SystemPrompt = c.SystemPrompt.Clone()
	out.ToolConfiguration = c.ToolConfiguration.Clone()
	out.Strategies = c.Strategies.Clone()
	out.Model = c.Model.Clone()
	out.Temperature = c.Temperature.Clone()
	out.MaxTokens = c.MaxTokens.Clone()
	out.MaxRetries = c.MaxRetries.Clone()

	if tree, ok := c.BehaviorTree.Get(); ok {
		out.BehaviorTree = Some(tree.Clone())
	} else {
		out.BehaviorTree = None[BehaviorTreeGene]()
	}
	if machine, ok := c.StateMachine.Get(); ok {
		out.StateMachine = Some(machine.Clone())
	} else {
		out.StateMachine = None[StateMachineGene]()
	}

	out.AdditionalNumericGenes = nil
	if c.AdditionalNumericGenes != nil {
		out.AdditionalNumericGenes = make(map[string]*NumericGene, len(c.AdditionalNumericGenes))
		for name, gene := range c.AdditionalNumericGenes {
			if gene == nil {
				continue
			}
			copied := gene.Clone()
			out.AdditionalNumericGenes[name] = &copied
		}
	}
	out.Metadata = nil
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// AdditionalNumericNames returns the additional numeric gene names in sorted order.
func (c *AgentChromosome) AdditionalNumericNames() []string {
	names := make([]string, 0, len(c.AdditionalNumericGenes))
	for name, gene := range c.AdditionalNumericGenes {
		if gene != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// NumericGenes returns pointers to every scalar gene in a stable order:
// temperature, max tokens, max retries, then additional genes by name.
func (c *AgentChromosome) NumericGenes() []*NumericGene {
	out := []*NumericGene{&c.Temperature, &c.MaxTokens, &c.MaxRetries}
	for _, name := range c.AdditionalNumericNames() {
		out = append(out, c.AdditionalNumericGenes[name])
	}
	return out
}

// Genes returns pointers to every present gene in a stable order so callers
// can mutate them in place.
func (c *AgentChromosome) Genes() []Gene {
	out := []Gene{
		&c.SystemPrompt,
		&c.ToolConfiguration,
		&c.Strategies,
		&c.Model,
		&c.Temperature,
		&c.MaxTokens,
		&c.MaxRetries,
	}
	if tree := c.BehaviorTree.Ptr(); tree != nil {
		out = append(out, tree)
	}
	if machine := c.StateMachine.Ptr(); machine != nil {
		out = append(out, machine)
	}
	for _, name := range c.AdditionalNumericNames() {
		out = append(out, c.AdditionalNumericGenes[name])
	}
	return out
}

// SelectionFitness is the score selection operators rank by. It is the
// adjusted fitness, which starts from raw fitness and carries any species
// sharing and postprocessing applied after evaluation.
func (c *AgentChromosome) SelectionFitness() float64 {
	return c.AdjustedFitness
}
