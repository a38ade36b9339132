package evo

import (
	"math/rand"

	"agentevo/internal/model"
)

type Operator interface {
	Name() string
}

// Selector chooses parents. Both methods require a non-empty population and
// SelectParents returns exactly count parents.
type Selector interface {
	Operator
	SelectParents(population []*model.AgentChromosome, count int, rng *rand.Rand) ([]*model.AgentChromosome, error)
	SelectParent(population []*model.AgentChromosome, rng *rand.Rand) (*model.AgentChromosome, error)
}

// Crossover combines two parents into a new offspring. The offspring owns all
// of its genes; identity and generation are assigned by the caller.
type Crossover interface {
	Operator
	Crossover(a, b *model.AgentChromosome, rng *rand.Rand) (*model.AgentChromosome, error)
}

// Mutator perturbs a chromosome in place; each gene mutates independently
// with probability rate.
type Mutator interface {
	Operator
	Mutate(c *model.AgentChromosome, rate float64, rng *rand.Rand) error
}
