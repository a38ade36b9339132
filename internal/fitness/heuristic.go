package fitness

import (
	"context"
	"math"
	"sort"
	"strings"

	"agentevo/internal/model"
)

// TargetProfile describes the configuration a Heuristic scorer rewards. Empty
// fields do not contribute to the score.
type TargetProfile struct {
	Model           string             `json:"model,omitempty" yaml:"model" toml:"model"`
	Strategies      map[string]string  `json:"strategies,omitempty" yaml:"strategies" toml:"strategies"`
	Tools           []string           `json:"tools,omitempty" yaml:"tools" toml:"tools"`
	Numeric         map[string]float64 `json:"numeric,omitempty" yaml:"numeric" toml:"numeric"`
	PromptKeywords  []string           `json:"prompt_keywords,omitempty" yaml:"prompt_keywords" toml:"prompt_keywords"`
	BehaviorActions []string           `json:"behavior_actions,omitempty" yaml:"behavior_actions" toml:"behavior_actions"`
	Weights         map[string]float64 `json:"weights,omitempty" yaml:"weights" toml:"weights"`
}

func DefaultTargetProfile() TargetProfile {
	return TargetProfile{
		Model: "anthropic/claude-sonnet",
		Strategies: map[string]string{
			"reasoning":    "react",
			"planning":     "incremental",
			"verification": "test_driven",
		},
		Tools:           []string{"code_exec", "file_read"},
		Numeric:         map[string]float64{"temperature": 0.2, "max_retries": 2},
		PromptKeywords:  []string{"verify", "plan"},
		BehaviorActions: []string{"read", "execute"},
	}
}

// Heuristic deterministically scores how closely a chromosome matches a
// target profile. Fitness is the weighted mean of the scored components and
// lies in [0,1].
type Heuristic struct {
	Profile TargetProfile
}

func NewHeuristicEvaluator(profile TargetProfile, workers int) *Parallel {
	return NewParallel(Heuristic{Profile: profile}, workers)
}

func (h Heuristic) Score(ctx context.Context, c *model.AgentChromosome) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	p := h.Profile
	components := make(map[string]float64, 6)

	if p.Model != "" {
		components["model"] = boolScore(c.Model.Selected.String() == p.Model)
	}
	if len(p.Strategies) > 0 {
		matched := 0
		for slot, want := range p.Strategies {
			if got, ok := c.Strategies.Choice(slot); ok && got == want {
				matched++
			}
		}
		components["strategies"] = float64(matched) / float64(len(p.Strategies))
	}
	if len(p.Tools) > 0 {
		components["tools"] = jaccard(c.ToolConfiguration.EnabledTools(), p.Tools)
	}
	if len(p.Numeric) > 0 {
		components["numeric"] = numericScore(c, p.Numeric)
	}
	if len(p.PromptKeywords) > 0 {
		text := strings.ToLower(c.SystemPrompt.Render())
		hits := 0
		for _, keyword := range p.PromptKeywords {
			if strings.Contains(text, strings.ToLower(keyword)) {
				hits++
			}
		}
		components["prompt"] = float64(hits) / float64(len(p.PromptKeywords))
	}
	if len(p.BehaviorActions) > 0 {
		components["behavior"] = behaviorScore(c, p.BehaviorActions)
	}

	return Result{Fitness: weightedMean(components, p.Weights), Components: components}, nil
}

func numericScore(c *model.AgentChromosome, targets map[string]float64) float64 {
	byName := make(map[string]*model.NumericGene)
	for _, gene := range c.NumericGenes() {
		byName[gene.Name] = gene
	}
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	total := 0.0
	for _, name := range names {
		gene, ok := byName[name]
		if !ok {
			continue
		}
		want := *gene
		want.Value = targets[name]
		total += 1 - math.Abs(gene.Normalized()-want.Normalized())
	}
	return total / float64(len(targets))
}

func behaviorScore(c *model.AgentChromosome, actions []string) float64 {
	tree, ok := c.BehaviorTree.Get()
	if !ok {
		return 0
	}
	present := make(map[string]struct{})
	for _, node := range tree.Nodes {
		if node.Enabled && node.Kind == model.BehaviorAction {
			present[node.Label] = struct{}{}
		}
	}
	hits := 0
	for _, action := range actions {
		if _, ok := present[action]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(actions))
}

func weightedMean(components, weights map[string]float64) float64 {
	if len(components) == 0 {
		return 0
	}
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	sum, totalWeight := 0.0, 0.0
	for _, name := range names {
		weight := 1.0
		if w, ok := weights[name]; ok {
			weight = w
		}
		sum += weight * components[name]
		totalWeight += weight
	}
	if totalWeight <= 0 {
		return 0
	}
	return sum / totalWeight
}

func jaccard(a, b []string) float64 {
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	union := len(set)
	shared := 0
	seen := make(map[string]struct{}, len(b))
	for _, item := range b {
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		if _, ok := set[item]; ok {
			shared++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(shared) / float64(union)
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
