package evo

import (
	"fmt"
	"math"
	"sort"

	"agentevo/internal/genotype"
	"agentevo/internal/model"
)

// SpeciationStats captures per-generation species partitioning diagnostics.
type SpeciationStats struct {
	SpeciesCount       int     `json:"species_count"`
	TargetSpeciesCount int     `json:"target_species_count"`
	Threshold          float64 `json:"threshold"`
	MeanSpeciesSize    float64 `json:"mean_species_size"`
	LargestSpeciesSize int     `json:"largest_species_size"`
	StagnantSpecies    int     `json:"stagnant_species"`
}

type Species struct {
	ID             string
	Representative *model.AgentChromosome
	Members        []*model.AgentChromosome
	BestFitness    float64
	CreatedAt      int
	LastImproved   int
}

// AdaptiveSpeciation keeps species across generations, tracks a compatibility
// threshold and nudges it toward a target species count each generation.
type AdaptiveSpeciation struct {
	TargetSpeciesCount int
	Threshold          float64
	MinThreshold       float64
	MaxThreshold       float64
	AdjustStep         float64
	// StagnationThreshold zeroes the adjusted fitness of species that have not
	// improved for this many generations. Zero disables the penalty.
	StagnationThreshold int
	Distance            func(a, b *model.AgentChromosome) float64

	species []*Species
	nextID  int
}

func NewAdaptiveSpeciation(populationSize int) *AdaptiveSpeciation {
	target := int(math.Sqrt(float64(populationSize)))
	if target < 2 {
		target = 2
	}
	return &AdaptiveSpeciation{
		TargetSpeciesCount: target,
		Threshold:          1.0,
		MinThreshold:       0.05,
		MaxThreshold:       8.0,
		AdjustStep:         0.1,
		Distance:           genotype.CompatibilityDistance,
	}
}

// NewSpeciationForConfig applies the run's speciation settings on top of the
// population-size defaults.
func NewSpeciationForConfig(cfg model.EvolutionConfig) *AdaptiveSpeciation {
	s := NewAdaptiveSpeciation(cfg.PopulationSize)
	if cfg.TargetSpeciesCount > 0 {
		s.TargetSpeciesCount = cfg.TargetSpeciesCount
	}
	if cfg.CompatibilityThreshold > 0 {
		s.Threshold = cfg.CompatibilityThreshold
	}
	s.StagnationThreshold = cfg.SpeciesStagnationThreshold
	return s
}

// Assign partitions members into species, sets SpeciesID and AdjustedFitness
// (explicit fitness sharing) on every member, and adapts the threshold.
func (s *AdaptiveSpeciation) Assign(members []*model.AgentChromosome, generation int) SpeciationStats {
	if len(members) == 0 {
		s.species = nil
		return SpeciationStats{TargetSpeciesCount: s.TargetSpeciesCount, Threshold: s.Threshold}
	}
	distance := s.Distance
	if distance == nil {
		distance = genotype.CompatibilityDistance
	}

	for _, sp := range s.species {
		sp.Members = sp.Members[:0]
	}
	for _, c := range members {
		bestIdx := -1
		bestDistance := math.MaxFloat64
		for i, sp := range s.species {
			dist := distance(c, sp.Representative)
			if dist < bestDistance {
				bestDistance = dist
				bestIdx = i
			}
		}
		if bestIdx == -1 || bestDistance > s.Threshold {
			s.nextID++
			s.species = append(s.species, &Species{
				ID:             fmt.Sprintf("sp-%03d", s.nextID),
				Representative: c.Clone(),
				Members:        []*model.AgentChromosome{c},
				BestFitness:    c.Fitness,
				CreatedAt:      generation,
				LastImproved:   generation,
			})
			continue
		}
		s.species[bestIdx].Members = append(s.species[bestIdx].Members, c)
	}

	alive := s.species[:0]
	for _, sp := range s.species {
		if len(sp.Members) > 0 {
			alive = append(alive, sp)
		}
	}
	s.species = alive

	globalBest := members[0]
	for _, c := range members[1:] {
		if c.Fitness > globalBest.Fitness {
			globalBest = c
		}
	}

	stats := SpeciationStats{SpeciesCount: len(s.species), TargetSpeciesCount: s.TargetSpeciesCount}
	for _, sp := range s.species {
		champion := sp.Members[0]
		holdsBest := false
		for _, c := range sp.Members {
			if c.Fitness > champion.Fitness {
				champion = c
			}
			if c == globalBest {
				holdsBest = true
			}
		}
		if champion.Fitness > sp.BestFitness {
			sp.BestFitness = champion.Fitness
			sp.LastImproved = generation
		}
		sp.Representative = champion.Clone()

		stagnant := s.StagnationThreshold > 0 && !holdsBest &&
			generation-sp.LastImproved >= s.StagnationThreshold
		if stagnant {
			stats.StagnantSpecies++
		}
		for _, c := range sp.Members {
			c.SpeciesID = model.Some(sp.ID)
			if stagnant {
				c.AdjustedFitness = 0
				continue
			}
			c.AdjustedFitness = c.Fitness / float64(len(sp.Members))
		}
		if len(sp.Members) > stats.LargestSpeciesSize {
			stats.LargestSpeciesSize = len(sp.Members)
		}
	}
	stats.MeanSpeciesSize = float64(len(members)) / float64(len(s.species))

	if len(s.species) > s.TargetSpeciesCount {
		s.Threshold = math.Min(s.MaxThreshold, s.Threshold+s.AdjustStep)
	} else if len(s.species) < s.TargetSpeciesCount {
		s.Threshold = math.Max(s.MinThreshold, s.Threshold-s.AdjustStep)
	}
	stats.Threshold = s.Threshold
	return stats
}

// Species returns the live species ordered by id.
func (s *AdaptiveSpeciation) Species() []*Species {
	out := append([]*Species(nil), s.species...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
