package evo

import (
	"fmt"

	"agentevo/internal/model"
)

// SpecieIdentifier assigns a species key to a chromosome.
type SpecieIdentifier interface {
	Name() string
	Identify(c *model.AgentChromosome) string
}

// StructureSpecieIdentifier groups chromosomes by model and coarse structure.
type StructureSpecieIdentifier struct{}

func (StructureSpecieIdentifier) Name() string {
	return "structure"
}

func (StructureSpecieIdentifier) Identify(c *model.AgentChromosome) string {
	nodes, transitions := 0, 0
	if tree, ok := c.BehaviorTree.Get(); ok {
		nodes = len(tree.Nodes)
	}
	if machine, ok := c.StateMachine.Get(); ok {
		transitions = len(machine.Transitions)
	}
	return fmt.Sprintf("m:%s-t:%d-bt:%d-sm:%d",
		c.Model.Selected.String(),
		len(c.ToolConfiguration.EnabledTools()),
		nodes,
		transitions,
	)
}

// AssignedSpecieIdentifier uses the species set by speciation and falls back
// to structure for unassigned chromosomes.
type AssignedSpecieIdentifier struct{}

func (AssignedSpecieIdentifier) Name() string {
	return "assigned"
}

func (AssignedSpecieIdentifier) Identify(c *model.AgentChromosome) string {
	if id, ok := c.SpeciesID.Get(); ok {
		return id
	}
	return StructureSpecieIdentifier{}.Identify(c)
}
