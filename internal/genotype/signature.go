package genotype

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"

	"agentevo/internal/model"
)

type StructureSummary struct {
	Model             string `json:"model"`
	EnabledTools      int    `json:"enabled_tools"`
	Instructions      int    `json:"instructions"`
	BehaviorNodes     int    `json:"behavior_nodes"`
	MachineStates     int    `json:"machine_states"`
	Transitions       int    `json:"transitions"`
	AdditionalNumeric int    `json:"additional_numeric"`
}

type ChromosomeSignature struct {
	Fingerprint string           `json:"fingerprint"`
	Summary     StructureSummary `json:"summary"`
}

// geneValues is the identity-free view of a chromosome used for hashing and
// value equality. encoding/json sorts map keys, so the encoding is canonical.
type geneValues struct {
	SystemPrompt      model.PromptGene                       `json:"p"`
	ToolConfiguration model.ToolConfigGene                   `json:"t"`
	Strategies        model.StrategyGene                     `json:"s"`
	Model             model.ModelGene                        `json:"m"`
	Temperature       model.NumericGene                      `json:"temp"`
	MaxTokens         model.NumericGene                      `json:"tok"`
	MaxRetries        model.NumericGene                      `json:"ret"`
	BehaviorTree      model.Optional[model.BehaviorTreeGene] `json:"bt"`
	StateMachine      model.Optional[model.StateMachineGene] `json:"sm"`
	Additional        map[string]*model.NumericGene          `json:"n,omitempty"`
}

func canonicalGenes(c *model.AgentChromosome) []byte {
	payload, err := json.Marshal(geneValues{
		SystemPrompt:      c.SystemPrompt,
		ToolConfiguration: c.ToolConfiguration,
		Strategies:        c.Strategies,
		Model:             c.Model,
		Temperature:       c.Temperature,
		MaxTokens:         c.MaxTokens,
		MaxRetries:        c.MaxRetries,
		BehaviorTree:      c.BehaviorTree,
		StateMachine:      c.StateMachine,
		Additional:        c.AdditionalNumericGenes,
	})
	if err != nil {
		// Gene values are plain data; a marshal failure means NaN/Inf crept in.
		return []byte(err.Error())
	}
	return payload
}

// SameGeneValues reports whether a and b carry identical gene values,
// regardless of identity, generation, fitness, or metadata.
func SameGeneValues(a, b *model.AgentChromosome) bool {
	return bytes.Equal(canonicalGenes(a), canonicalGenes(b))
}

func ComputeSignature(c *model.AgentChromosome) ChromosomeSignature {
	digest := sha1.Sum(canonicalGenes(c))
	summary := StructureSummary{
		Model:             c.Model.Selected.String(),
		EnabledTools:      len(c.ToolConfiguration.EnabledTools()),
		Instructions:      len(c.SystemPrompt.Instructions),
		AdditionalNumeric: len(c.AdditionalNumericNames()),
	}
	if tree, ok := c.BehaviorTree.Get(); ok {
		summary.BehaviorNodes = len(tree.Nodes)
	}
	if machine, ok := c.StateMachine.Get(); ok {
		summary.MachineStates = len(machine.States)
		summary.Transitions = len(machine.Transitions)
	}
	return ChromosomeSignature{
		Fingerprint: hex.EncodeToString(digest[:8]),
		Summary:     summary,
	}
}

// DistinctConfigurations counts members with distinct gene values.
func DistinctConfigurations(members []*model.AgentChromosome) int {
	seen := make(map[string]struct{}, len(members))
	for _, c := range members {
		seen[ComputeSignature(c).Fingerprint] = struct{}{}
	}
	return len(seen)
}
