package model

import (
	"math"
	"sort"
	"strings"
)

type GeneKind string

const (
	GeneKindPrompt       GeneKind = "prompt"
	GeneKindToolConfig   GeneKind = "tool_config"
	GeneKindStrategy     GeneKind = "strategy"
	GeneKindModel        GeneKind = "model"
	GeneKindNumeric      GeneKind = "numeric"
	GeneKindBehaviorTree GeneKind = "behavior_tree"
	GeneKindStateMachine GeneKind = "state_machine"
)

// Gene is the closed set of heritable configuration units. Only the pointer
// types declared in this file implement it, so a type switch over the seven
// variants is exhaustive.
type Gene interface {
	Kind() GeneKind
	CloneGene() Gene
	sealedGene()
}

// Innovation is a historical marker shared by structurally equivalent elements.
type Innovation int64

type PromptGene struct {
	Template     string   `json:"template"`
	Instructions []string `json:"instructions,omitempty"`
}

func (g PromptGene) Clone() PromptGene {
	out := g
	out.Instructions = append([]string(nil), g.Instructions...)
	return out
}

// Render returns the system prompt text with instructions appended as a bullet list.
func (g PromptGene) Render() string {
	if len(g.Instructions) == 0 {
		return g.Template
	}
	var b strings.Builder
	b.WriteString(g.Template)
	for _, item := range g.Instructions {
		b.WriteString("\n- ")
		b.WriteString(item)
	}
	return b.String()
}

func (g *PromptGene) Kind() GeneKind  { return GeneKindPrompt }
func (g *PromptGene) CloneGene() Gene { c := g.Clone(); return &c }
func (g *PromptGene) sealedGene()     {}

type ToolSetting struct {
	Enabled    bool                   `json:"enabled"`
	Parameters map[string]NumericGene `json:"parameters,omitempty"`
}

func (s ToolSetting) Clone() ToolSetting {
	out := ToolSetting{Enabled: s.Enabled}
	if s.Parameters != nil {
		out.Parameters = make(map[string]NumericGene, len(s.Parameters))
		for k, v := range s.Parameters {
			out.Parameters[k] = v
		}
	}
	return out
}

type ToolConfigGene struct {
	Tools map[string]ToolSetting `json:"tools"`
}

func (g ToolConfigGene) Clone() ToolConfigGene {
	out := ToolConfigGene{}
	if g.Tools != nil {
		out.Tools = make(map[string]ToolSetting, len(g.Tools))
		for name, setting := range g.Tools {
			out.Tools[name] = setting.Clone()
		}
	}
	return out
}

func (g ToolConfigGene) ToolNames() []string {
	names := make([]string, 0, len(g.Tools))
	for name := range g.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g ToolConfigGene) EnabledTools() []string {
	names := make([]string, 0, len(g.Tools))
	for _, name := range g.ToolNames() {
		if g.Tools[name].Enabled {
			names = append(names, name)
		}
	}
	return names
}

func (g *ToolConfigGene) Kind() GeneKind  { return GeneKindToolConfig }
func (g *ToolConfigGene) CloneGene() Gene { c := g.Clone(); return &c }
func (g *ToolConfigGene) sealedGene()     {}

// StrategySlot is one categorical decision, e.g. reasoning style or planning depth.
type StrategySlot struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
	Choice  string   `json:"choice"`
}

type StrategyGene struct {
	Slots []StrategySlot `json:"slots"`
}

func (g StrategyGene) Clone() StrategyGene {
	var out StrategyGene
	if g.Slots == nil {
		return out
	}
	out.Slots = make([]StrategySlot, len(g.Slots))
	for i, slot := range g.Slots {
		out.Slots[i] = StrategySlot{
			Name:    slot.Name,
			Options: append([]string(nil), slot.Options...),
			Choice:  slot.Choice,
		}
	}
	return out
}

func (g StrategyGene) Choice(name string) (string, bool) {
	for _, slot := range g.Slots {
		if slot.Name == name {
			return slot.Choice, true
		}
	}
	return "", false
}

func (g *StrategyGene) Kind() GeneKind  { return GeneKindStrategy }
func (g *StrategyGene) CloneGene() Gene { c := g.Clone(); return &c }
func (g *StrategyGene) sealedGene()     {}

type ModelChoice struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

func (c ModelChoice) String() string {
	if c.Provider == "" {
		return c.Name
	}
	return c.Provider + "/" + c.Name
}

type ModelGene struct {
	Selected   ModelChoice   `json:"selected"`
	Candidates []ModelChoice `json:"candidates,omitempty"`
}

func (g ModelGene) Clone() ModelGene {
	out := g
	out.Candidates = append([]ModelChoice(nil), g.Candidates...)
	return out
}

func (g *ModelGene) Kind() GeneKind  { return GeneKindModel }
func (g *ModelGene) CloneGene() Gene { c := g.Clone(); return &c }
func (g *ModelGene) sealedGene()     {}

// NumericGene is a bounded scalar. Step is the mutation standard deviation
// expressed as a fraction of the range.
type NumericGene struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step,omitempty"`
	Integer bool    `json:"integer,omitempty"`
}

func (g NumericGene) Clone() NumericGene {
	return g
}

// Clamp forces Value into [Min, Max], rounding first for integer genes.
func (g *NumericGene) Clamp() {
	if g.Integer {
		g.Value = math.Round(g.Value)
	}
	if g.Value < g.Min {
		g.Value = g.Min
	}
	if g.Value > g.Max {
		g.Value = g.Max
	}
}

func (g NumericGene) InBounds() bool {
	return g.Value >= g.Min && g.Value <= g.Max
}

// Normalized maps Value into [0,1] over its range; a degenerate range maps to 0.
func (g NumericGene) Normalized() float64 {
	span := g.Max - g.Min
	if span <= 0 {
		return 0
	}
	return (g.Value - g.Min) / span
}

func (g *NumericGene) Kind() GeneKind  { return GeneKindNumeric }
func (g *NumericGene) CloneGene() Gene { c := g.Clone(); return &c }
func (g *NumericGene) sealedGene()     {}

type BehaviorNodeKind string

const (
	BehaviorSequence  BehaviorNodeKind = "sequence"
	BehaviorSelector  BehaviorNodeKind = "selector"
	BehaviorAction    BehaviorNodeKind = "action"
	BehaviorCondition BehaviorNodeKind = "condition"
)

func (k BehaviorNodeKind) IsComposite() bool {
	return k == BehaviorSequence || k == BehaviorSelector
}

// BehaviorNode is one node of a flattened behavior tree. Parent refers to the
// parent's innovation marker; the root has Parent 0.
type BehaviorNode struct {
	Innovation Innovation       `json:"innovation"`
	Kind       BehaviorNodeKind `json:"kind"`
	Label      string           `json:"label,omitempty"`
	Parent     Innovation       `json:"parent"`
	Enabled    bool             `json:"enabled"`
}

type BehaviorTreeGene struct {
	Nodes []BehaviorNode `json:"nodes"`
}

func (g BehaviorTreeGene) Clone() BehaviorTreeGene {
	return BehaviorTreeGene{Nodes: append([]BehaviorNode(nil), g.Nodes...)}
}

func (g BehaviorTreeGene) Node(innovation Innovation) (BehaviorNode, bool) {
	for _, node := range g.Nodes {
		if node.Innovation == innovation {
			return node, true
		}
	}
	return BehaviorNode{}, false
}

func (g BehaviorTreeGene) Children(parent Innovation) []BehaviorNode {
	var out []BehaviorNode
	for _, node := range g.Nodes {
		if node.Parent == parent && node.Innovation != parent {
			out = append(out, node)
		}
	}
	return out
}

func (g *BehaviorTreeGene) Kind() GeneKind  { return GeneKindBehaviorTree }
func (g *BehaviorTreeGene) CloneGene() Gene { c := g.Clone(); return &c }
func (g *BehaviorTreeGene) sealedGene()     {}

type MachineState struct {
	Innovation Innovation `json:"innovation"`
	Name       string     `json:"name"`
}

type Transition struct {
	Innovation Innovation `json:"innovation"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	Trigger    string     `json:"trigger"`
	Enabled    bool       `json:"enabled"`
}

type StateMachineGene struct {
	Initial     string         `json:"initial"`
	States      []MachineState `json:"states"`
	Transitions []Transition   `json:"transitions"`
}

func (g StateMachineGene) Clone() StateMachineGene {
	return StateMachineGene{
		Initial:     g.Initial,
		States:      append([]MachineState(nil), g.States...),
		Transitions: append([]Transition(nil), g.Transitions...),
	}
}

func (g StateMachineGene) HasState(name string) bool {
	for _, state := range g.States {
		if state.Name == name {
			return true
		}
	}
	return false
}

func (g *StateMachineGene) Kind() GeneKind  { return GeneKindStateMachine }
func (g *StateMachineGene) CloneGene() Gene { c := g.Clone(); return &c }
func (g *StateMachineGene) sealedGene()     {}
