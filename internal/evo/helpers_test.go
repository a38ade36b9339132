package evo

import (
	"math/rand"
	"testing"

	"agentevo/internal/genotype"
	"agentevo/internal/model"
)

func newTestManager(t *testing.T, mutationRate, crossoverRate float64) *PopulationManager {
	t.Helper()
	m, err := NewPopulationManager(ManagerConfig{
		Space:         genotype.DefaultSpace(),
		MutationRate:  mutationRate,
		CrossoverRate: crossoverRate,
	})
	if err != nil {
		t.Fatalf("new population manager: %v", err)
	}
	return m
}

// newScoredPopulation builds n random members whose raw and adjusted fitness
// are their index.
func newScoredPopulation(t *testing.T, n int, seed int64) model.Population {
	t.Helper()
	m := newTestManager(t, 0.2, 0.5)
	pop, err := m.InitializePopulation(n, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("initialize population: %v", err)
	}
	for i, c := range pop.Members {
		c.Fitness = float64(i)
		c.AdjustedFitness = float64(i)
	}
	return pop
}

func byID(members []*model.AgentChromosome) map[string]*model.AgentChromosome {
	out := make(map[string]*model.AgentChromosome, len(members))
	for _, c := range members {
		out[c.ID] = c
	}
	return out
}
