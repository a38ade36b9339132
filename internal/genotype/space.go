package genotype

import (
	"fmt"
	"math/rand"

	"agentevo/internal/model"
)

type NumericSpec struct {
	Name    string  `json:"name" yaml:"name" toml:"name"`
	Min     float64 `json:"min" yaml:"min" toml:"min"`
	Max     float64 `json:"max" yaml:"max" toml:"max"`
	Step    float64 `json:"step" yaml:"step" toml:"step"`
	Integer bool    `json:"integer" yaml:"integer" toml:"integer"`
}

func (s NumericSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("numeric spec name is required")
	}
	if s.Max < s.Min {
		return fmt.Errorf("numeric spec %s: max %.4g < min %.4g", s.Name, s.Max, s.Min)
	}
	if s.Step < 0 {
		return fmt.Errorf("numeric spec %s: step must be >= 0", s.Name)
	}
	return nil
}

func (s NumericSpec) Random(rng *rand.Rand) model.NumericGene {
	gene := model.NumericGene{
		Name:    s.Name,
		Min:     s.Min,
		Max:     s.Max,
		Step:    s.Step,
		Integer: s.Integer,
		Value:   s.Min + rng.Float64()*(s.Max-s.Min),
	}
	gene.Clamp()
	return gene
}

type ToolSpec struct {
	Name              string        `json:"name" yaml:"name" toml:"name"`
	Parameters        []NumericSpec `json:"parameters,omitempty" yaml:"parameters" toml:"parameters"`
	EnableProbability float64       `json:"enable_probability" yaml:"enable_probability" toml:"enable_probability"`
}

type StrategySpec struct {
	Name    string   `json:"name" yaml:"name" toml:"name"`
	Options []string `json:"options" yaml:"options" toml:"options"`
}

// Space is the catalog of legal gene values that construction and mutation draw from.
type Space struct {
	PromptTemplates []string `json:"prompt_templates" yaml:"prompt_templates" toml:"prompt_templates"`
	InstructionPool []string `json:"instruction_pool" yaml:"instruction_pool" toml:"instruction_pool"`
	MaxInstructions int      `json:"max_instructions" yaml:"max_instructions" toml:"max_instructions"`

	Tools      []ToolSpec          `json:"tools" yaml:"tools" toml:"tools"`
	Strategies []StrategySpec      `json:"strategies" yaml:"strategies" toml:"strategies"`
	Models     []model.ModelChoice `json:"models" yaml:"models" toml:"models"`

	Temperature       NumericSpec   `json:"temperature" yaml:"temperature" toml:"temperature"`
	MaxTokens         NumericSpec   `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	MaxRetries        NumericSpec   `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	AdditionalNumeric []NumericSpec `json:"additional_numeric,omitempty" yaml:"additional_numeric" toml:"additional_numeric"`

	BehaviorActions         []string `json:"behavior_actions" yaml:"behavior_actions" toml:"behavior_actions"`
	BehaviorConditions      []string `json:"behavior_conditions" yaml:"behavior_conditions" toml:"behavior_conditions"`
	MaxBehaviorNodes        int      `json:"max_behavior_nodes" yaml:"max_behavior_nodes" toml:"max_behavior_nodes"`
	BehaviorTreeProbability float64  `json:"behavior_tree_probability" yaml:"behavior_tree_probability" toml:"behavior_tree_probability"`

	MachineStates           []string `json:"machine_states" yaml:"machine_states" toml:"machine_states"`
	MachineTriggers         []string `json:"machine_triggers" yaml:"machine_triggers" toml:"machine_triggers"`
	StateMachineProbability float64  `json:"state_machine_probability" yaml:"state_machine_probability" toml:"state_machine_probability"`
}

func DefaultSpace() Space {
	return Space{
		PromptTemplates: []string{
			"You are a careful software agent. Solve the task step by step.",
			"You are a concise assistant that prefers tool use over guessing.",
			"You are an autonomous engineer. Plan, act, then verify your work.",
		},
		InstructionPool: []string{
			"Cite the tool output you relied on.",
			"Ask for clarification when the request is ambiguous.",
			"Keep answers under 200 words.",
			"Verify every claim before answering.",
			"Prefer small reversible actions.",
			"Summarize the plan before executing it.",
		},
		MaxInstructions: 4,
		Tools: []ToolSpec{
			{Name: "web_search", EnableProbability: 0.5, Parameters: []NumericSpec{{Name: "max_results", Min: 1, Max: 10, Step: 0.2, Integer: true}}},
			{Name: "code_exec", EnableProbability: 0.5, Parameters: []NumericSpec{{Name: "timeout_seconds", Min: 5, Max: 120, Step: 0.15, Integer: true}}},
			{Name: "file_read", EnableProbability: 0.7},
			{Name: "retrieval", EnableProbability: 0.4, Parameters: []NumericSpec{{Name: "top_k", Min: 1, Max: 20, Step: 0.2, Integer: true}}},
		},
		Strategies: []StrategySpec{
			{Name: "reasoning", Options: []string{"direct", "chain_of_thought", "tree_of_thought", "react"}},
			{Name: "planning", Options: []string{"none", "upfront", "incremental"}},
			{Name: "verification", Options: []string{"none", "self_check", "test_driven"}},
		},
		Models: []model.ModelChoice{
			{Provider: "anthropic", Name: "claude-sonnet"},
			{Provider: "anthropic", Name: "claude-haiku"},
			{Provider: "openai", Name: "gpt-4o"},
			{Provider: "openai", Name: "gpt-4o-mini"},
		},
		Temperature: NumericSpec{Name: "temperature", Min: 0, Max: 2, Step: 0.1},
		MaxTokens:   NumericSpec{Name: "max_tokens", Min: 256, Max: 8192, Step: 0.1, Integer: true},
		MaxRetries:  NumericSpec{Name: "max_retries", Min: 0, Max: 5, Step: 0.2, Integer: true},
		AdditionalNumeric: []NumericSpec{
			{Name: "top_p", Min: 0.1, Max: 1, Step: 0.1},
		},
		BehaviorActions:         []string{"search", "read", "write", "execute", "ask_user", "summarize"},
		BehaviorConditions:      []string{"has_context", "task_complete", "error_seen", "budget_left"},
		MaxBehaviorNodes:        12,
		BehaviorTreeProbability: 0.5,
		MachineStates:           []string{"plan", "act", "observe", "reflect", "done"},
		MachineTriggers:         []string{"ok", "error", "timeout", "needs_input"},
		StateMachineProbability: 0.5,
	}
}

func (s Space) Validate() error {
	if len(s.PromptTemplates) == 0 {
		return fmt.Errorf("at least one prompt template is required")
	}
	if s.MaxInstructions < 0 {
		return fmt.Errorf("max instructions must be >= 0")
	}
	if len(s.Models) == 0 {
		return fmt.Errorf("at least one model is required")
	}
	seenTools := make(map[string]struct{}, len(s.Tools))
	for _, tool := range s.Tools {
		if tool.Name == "" {
			return fmt.Errorf("tool name is required")
		}
		if _, dup := seenTools[tool.Name]; dup {
			return fmt.Errorf("duplicate tool: %s", tool.Name)
		}
		seenTools[tool.Name] = struct{}{}
		for _, param := range tool.Parameters {
			if err := param.Validate(); err != nil {
				return fmt.Errorf("tool %s: %w", tool.Name, err)
			}
		}
	}
	for _, strategy := range s.Strategies {
		if strategy.Name == "" || len(strategy.Options) == 0 {
			return fmt.Errorf("strategy %q requires a name and options", strategy.Name)
		}
	}
	for _, spec := range []NumericSpec{s.Temperature, s.MaxTokens, s.MaxRetries} {
		if err := spec.Validate(); err != nil {
			return err
		}
	}
	seenNumeric := make(map[string]struct{}, len(s.AdditionalNumeric))
	for _, spec := range s.AdditionalNumeric {
		if err := spec.Validate(); err != nil {
			return err
		}
		if _, dup := seenNumeric[spec.Name]; dup {
			return fmt.Errorf("duplicate additional numeric gene: %s", spec.Name)
		}
		seenNumeric[spec.Name] = struct{}{}
	}
	if s.BehaviorTreeProbability < 0 || s.BehaviorTreeProbability > 1 {
		return fmt.Errorf("behavior tree probability must be in [0,1]")
	}
	if s.StateMachineProbability < 0 || s.StateMachineProbability > 1 {
		return fmt.Errorf("state machine probability must be in [0,1]")
	}
	if s.BehaviorTreeProbability > 0 && len(s.BehaviorActions) == 0 {
		return fmt.Errorf("behavior actions are required when behavior trees are enabled")
	}
	if s.StateMachineProbability > 0 && (len(s.MachineStates) < 2 || len(s.MachineTriggers) == 0) {
		return fmt.Errorf("state machines need at least two states and one trigger")
	}
	return nil
}
