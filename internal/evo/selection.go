package evo

import (
	"fmt"
	"math/rand"
	"sort"

	"agentevo/internal/model"
)

const defaultTournamentSize = 3

func validateSelection(population []*model.AgentChromosome, rng *rand.Rand) error {
	if rng == nil {
		return fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}
	if len(population) == 0 {
		return fmt.Errorf("%w: cannot select from an empty population", ErrInvalidArgument)
	}
	return nil
}

// selectMany draws count parents by repeated single picks.
func selectMany(s Selector, population []*model.AgentChromosome, count int, rng *rand.Rand) ([]*model.AgentChromosome, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: parent count must be >= 0", ErrInvalidArgument)
	}
	if err := validateSelection(population, rng); err != nil {
		return nil, err
	}
	out := make([]*model.AgentChromosome, 0, count)
	for i := 0; i < count; i++ {
		parent, err := s.SelectParent(population, rng)
		if err != nil {
			return nil, err
		}
		out = append(out, parent)
	}
	return out, nil
}

// rankBySelectionFitness returns population indices ordered best first; ties
// keep population order.
func rankBySelectionFitness(population []*model.AgentChromosome) []int {
	order := make([]int, len(population))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return population[order[i]].SelectionFitness() > population[order[j]].SelectionFitness()
	})
	return order
}

// TournamentSelector samples Size members with replacement and keeps the best.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) SelectParents(population []*model.AgentChromosome, count int, rng *rand.Rand) ([]*model.AgentChromosome, error) {
	return selectMany(s, population, count, rng)
}

func (s TournamentSelector) SelectParent(population []*model.AgentChromosome, rng *rand.Rand) (*model.AgentChromosome, error) {
	if err := validateSelection(population, rng); err != nil {
		return nil, err
	}
	return tournament(population, s.Size, rng), nil
}

func tournament(candidates []*model.AgentChromosome, size int, rng *rand.Rand) *model.AgentChromosome {
	if size <= 0 {
		size = defaultTournamentSize
	}
	best := candidates[rng.Intn(len(candidates))]
	for i := 1; i < size; i++ {
		candidate := candidates[rng.Intn(len(candidates))]
		if candidate.SelectionFitness() > best.SelectionFitness() {
			best = candidate
		}
	}
	return best
}

// RouletteSelector picks proportionally to selection fitness. Scores are
// shifted so the weakest member keeps a small positive weight; an all-equal
// population is sampled uniformly.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (s RouletteSelector) SelectParents(population []*model.AgentChromosome, count int, rng *rand.Rand) ([]*model.AgentChromosome, error) {
	return selectMany(s, population, count, rng)
}

func (RouletteSelector) SelectParent(population []*model.AgentChromosome, rng *rand.Rand) (*model.AgentChromosome, error) {
	if err := validateSelection(population, rng); err != nil {
		return nil, err
	}
	minFitness := population[0].SelectionFitness()
	maxFitness := minFitness
	for _, c := range population[1:] {
		f := c.SelectionFitness()
		if f < minFitness {
			minFitness = f
		}
		if f > maxFitness {
			maxFitness = f
		}
	}
	if maxFitness == minFitness {
		return population[rng.Intn(len(population))], nil
	}

	floor := (maxFitness - minFitness) * 0.01
	weights := make([]float64, len(population))
	total := 0.0
	for i, c := range population {
		weights[i] = c.SelectionFitness() - minFitness + floor
		total += weights[i]
	}
	pick := rng.Float64() * total
	for i, w := range weights {
		pick -= w
		if pick < 0 {
			return population[i], nil
		}
	}
	return population[len(population)-1], nil
}

// EliteSelector picks uniformly from the top Count members. Count <= 0 means
// the top fifth, at least one.
type EliteSelector struct {
	Count int
}

func (EliteSelector) Name() string {
	return "elite"
}

func (s EliteSelector) SelectParents(population []*model.AgentChromosome, count int, rng *rand.Rand) ([]*model.AgentChromosome, error) {
	return selectMany(s, population, count, rng)
}

func (s EliteSelector) SelectParent(population []*model.AgentChromosome, rng *rand.Rand) (*model.AgentChromosome, error) {
	if err := validateSelection(population, rng); err != nil {
		return nil, err
	}
	eliteCount := s.Count
	if eliteCount <= 0 {
		eliteCount = len(population) / 5
	}
	if eliteCount < 1 {
		eliteCount = 1
	}
	if eliteCount > len(population) {
		eliteCount = len(population)
	}
	ranked := rankBySelectionFitness(population)
	return population[ranked[rng.Intn(eliteCount)]], nil
}

// SpeciesTournamentSelector first samples a species uniformly and then runs
// tournament selection inside that species.
type SpeciesTournamentSelector struct {
	Identifier     SpecieIdentifier
	TournamentSize int
}

func (SpeciesTournamentSelector) Name() string {
	return "species_tournament"
}

func (s SpeciesTournamentSelector) SelectParents(population []*model.AgentChromosome, count int, rng *rand.Rand) ([]*model.AgentChromosome, error) {
	return selectMany(s, population, count, rng)
}

func (s SpeciesTournamentSelector) SelectParent(population []*model.AgentChromosome, rng *rand.Rand) (*model.AgentChromosome, error) {
	if err := validateSelection(population, rng); err != nil {
		return nil, err
	}
	identifier := s.Identifier
	if identifier == nil {
		identifier = AssignedSpecieIdentifier{}
	}

	bySpecies := make(map[string][]*model.AgentChromosome)
	for _, c := range population {
		key := identifier.Identify(c)
		bySpecies[key] = append(bySpecies[key], c)
	}
	speciesKeys := make([]string, 0, len(bySpecies))
	for key := range bySpecies {
		speciesKeys = append(speciesKeys, key)
	}
	sort.Strings(speciesKeys)
	candidates := bySpecies[speciesKeys[rng.Intn(len(speciesKeys))]]
	return tournament(candidates, s.TournamentSize, rng), nil
}
