package genotype

import (
	"agentevo/internal/model"
)

// CloneChromosome deep-copies c under a new identity for the given generation.
// Evaluation state (fitness, adjusted fitness, species) is reset; genes and
// metadata are carried unchanged.
func CloneChromosome(c *model.AgentChromosome, id string, generation int) *model.AgentChromosome {
	out := c.Clone()
	if id != "" {
		out.ID = id
	}
	out.Generation = generation
	ResetEvaluation(out)
	return out
}

func ResetEvaluation(c *model.AgentChromosome) {
	c.Fitness = 0
	c.AdjustedFitness = 0
	c.SpeciesID = model.None[string]()
}
