package evo

import (
	"fmt"
	"math/rand"
	"sort"

	"agentevo/internal/genotype"
	"agentevo/internal/model"
)

type ManagerConfig struct {
	Space         genotype.Space
	Tracker       *genotype.InnovationTracker
	Selector      Selector
	Crossover     Crossover
	Mutator       Mutator
	MutationRate  float64
	CrossoverRate float64
	// Distance drives the diversity statistic; nil uses the default
	// compatibility distance.
	Distance func(a, b *model.AgentChromosome) float64
}

// PopulationManager owns generational succession for one run. It never
// assigns fitness.
type PopulationManager struct {
	cfg ManagerConfig
}

func NewPopulationManager(cfg ManagerConfig) (*PopulationManager, error) {
	if err := cfg.Space.Validate(); err != nil {
		return nil, fmt.Errorf("%w: genome space: %v", ErrInvalidArgument, err)
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("%w: mutation rate must be in [0,1]", ErrInvalidArgument)
	}
	if cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1 {
		return nil, fmt.Errorf("%w: crossover rate must be in [0,1]", ErrInvalidArgument)
	}
	if cfg.Tracker == nil {
		cfg.Tracker = genotype.NewInnovationTracker()
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{}
	}
	if cfg.Crossover == nil {
		cfg.Crossover = NewUniformCrossover(cfg.Tracker)
	}
	if cfg.Mutator == nil {
		cfg.Mutator = NewGeneMutator(cfg.Space, cfg.Tracker)
	}
	if cfg.Distance == nil {
		cfg.Distance = genotype.CompatibilityDistance
	}
	return &PopulationManager{cfg: cfg}, nil
}

func (m *PopulationManager) InitializePopulation(size int, rng *rand.Rand) (model.Population, error) {
	if size <= 0 {
		return model.Population{}, fmt.Errorf("%w: population size must be > 0, got %d", ErrInvalidArgument, size)
	}
	if rng == nil {
		return model.Population{}, fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}
	members := make([]*model.AgentChromosome, 0, size)
	for i := 0; i < size; i++ {
		c, err := genotype.NewRandomChromosome(m.cfg.Space, m.cfg.Tracker, rng)
		if err != nil {
			return model.Population{}, fmt.Errorf("construct chromosome %d: %w", i, err)
		}
		members = append(members, c)
	}
	return model.Population{Generation: 0, Members: members}, nil
}

// CreateNextGeneration carries the top eliteCount members over unchanged and
// fills the remaining slots with mutated offspring. Every member of the
// result is tagged with the next generation index and has no fitness yet.
func (m *PopulationManager) CreateNextGeneration(current model.Population, eliteCount int, rng *rand.Rand) (model.Population, error) {
	size := current.Len()
	if size == 0 {
		return model.Population{}, fmt.Errorf("%w: current population is empty", ErrInvalidArgument)
	}
	if eliteCount < 0 || eliteCount > size {
		return model.Population{}, fmt.Errorf("%w: elite count must be in [0, %d], got %d", ErrInvalidArgument, size, eliteCount)
	}
	if rng == nil {
		return model.Population{}, fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}

	nextGeneration := current.Generation + 1
	next := make([]*model.AgentChromosome, 0, size)

	for _, idx := range rankByFitness(current.Members)[:eliteCount] {
		id, err := genotype.NewChromosomeID(rng)
		if err != nil {
			return model.Population{}, err
		}
		next = append(next, genotype.CloneChromosome(current.Members[idx], id, nextGeneration))
	}

	for len(next) < size {
		child, err := m.offspring(current.Members, rng)
		if err != nil {
			return model.Population{}, err
		}
		if err := m.cfg.Mutator.Mutate(child, m.cfg.MutationRate, rng); err != nil {
			return model.Population{}, fmt.Errorf("mutate offspring: %w", err)
		}
		id, err := genotype.NewChromosomeID(rng)
		if err != nil {
			return model.Population{}, err
		}
		child.ID = id
		child.Generation = nextGeneration
		genotype.ResetEvaluation(child)
		next = append(next, child)
	}
	return model.Population{Generation: nextGeneration, Members: next}, nil
}

func (m *PopulationManager) offspring(members []*model.AgentChromosome, rng *rand.Rand) (*model.AgentChromosome, error) {
	if len(members) >= 2 && rng.Float64() < m.cfg.CrossoverRate {
		parents, err := m.cfg.Selector.SelectParents(members, 2, rng)
		if err != nil {
			return nil, fmt.Errorf("select parents: %w", err)
		}
		child, err := m.cfg.Crossover.Crossover(parents[0], parents[1], rng)
		if err != nil {
			return nil, fmt.Errorf("crossover: %w", err)
		}
		return child, nil
	}
	parent, err := m.cfg.Selector.SelectParent(members, rng)
	if err != nil {
		return nil, fmt.Errorf("select parent: %w", err)
	}
	return parent.Clone(), nil
}

// rankByFitness returns member indices ordered by raw fitness, best first.
// Ties keep population order.
func rankByFitness(members []*model.AgentChromosome) []int {
	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return members[order[i]].Fitness > members[order[j]].Fitness
	})
	return order
}

func (m *PopulationManager) GetStatistics(population model.Population) model.PopulationStatistics {
	return PopulationStatistics(population.Members, m.cfg.Distance)
}

// PopulationStatistics summarizes fitness spread and diversity, the mean
// pairwise distance over all unordered pairs.
func PopulationStatistics(members []*model.AgentChromosome, distance func(a, b *model.AgentChromosome) float64) model.PopulationStatistics {
	if len(members) == 0 {
		return model.PopulationStatistics{}
	}
	if distance == nil {
		distance = genotype.CompatibilityDistance
	}
	stats := model.PopulationStatistics{
		Size:         len(members),
		BestFitness:  members[0].Fitness,
		WorstFitness: members[0].Fitness,
	}
	total := 0.0
	for _, c := range members {
		total += c.Fitness
		if c.Fitness > stats.BestFitness {
			stats.BestFitness = c.Fitness
		}
		if c.Fitness < stats.WorstFitness {
			stats.WorstFitness = c.Fitness
		}
	}
	stats.AverageFitness = total / float64(len(members))

	if len(members) > 1 {
		sum := 0.0
		pairs := 0
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				sum += distance(members[i], members[j])
				pairs++
			}
		}
		stats.Diversity = sum / float64(pairs)
	}
	return stats
}
