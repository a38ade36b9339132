package genotype

import (
	"fmt"
	"sync"

	"agentevo/internal/model"
)

const (
	ElementBehaviorNode = "bt_node"
	ElementMachineState = "sm_state"
	ElementTransition   = "sm_transition"
)

// StructuralElement describes a candidate piece of new structure. Two
// elements with the same key are the same innovation.
type StructuralElement struct {
	Kind   string
	Parent model.Innovation
	From   string
	To     string
	Label  string
}

func (e StructuralElement) Key() string {
	switch e.Kind {
	case ElementBehaviorNode:
		return fmt.Sprintf("%s|%d|%s", e.Kind, e.Parent, e.Label)
	case ElementTransition:
		return fmt.Sprintf("%s|%s|%s|%s", e.Kind, e.From, e.To, e.Label)
	default:
		return fmt.Sprintf("%s|%s", e.Kind, e.Label)
	}
}

// InnovationTracker hands out historical markers for the lifetime of one run.
// Markers start at 1; 0 is reserved for "no parent".
type InnovationTracker struct {
	mu      sync.Mutex
	next    model.Innovation
	markers map[string]model.Innovation
}

func NewInnovationTracker() *InnovationTracker {
	return &InnovationTracker{
		next:    1,
		markers: make(map[string]model.Innovation),
	}
}

// Register returns the marker for e, minting one if e has not been seen.
// The boolean reports whether a new marker was minted.
func (t *InnovationTracker) Register(e StructuralElement) (model.Innovation, bool) {
	key := e.Key()
	t.mu.Lock()
	defer t.mu.Unlock()
	if marker, ok := t.markers[key]; ok {
		return marker, false
	}
	marker := t.next
	t.next++
	t.markers[key] = marker
	return marker, true
}

func (t *InnovationTracker) Lookup(e StructuralElement) (model.Innovation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	marker, ok := t.markers[e.Key()]
	return marker, ok
}

func (t *InnovationTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.markers)
}

func (t *InnovationTracker) BehaviorNode(parent model.Innovation, kind model.BehaviorNodeKind, label string) model.Innovation {
	marker, _ := t.Register(StructuralElement{
		Kind:   ElementBehaviorNode,
		Parent: parent,
		Label:  string(kind) + ":" + label,
	})
	return marker
}

func (t *InnovationTracker) MachineState(name string) model.Innovation {
	marker, _ := t.Register(StructuralElement{Kind: ElementMachineState, Label: name})
	return marker
}

func (t *InnovationTracker) Transition(from, to, trigger string) model.Innovation {
	marker, _ := t.Register(StructuralElement{Kind: ElementTransition, From: from, To: to, Label: trigger})
	return marker
}

// CanonicalBehaviorTree re-derives every node marker through the tracker so
// that trees built under a different tracker align with this run's markers.
// Nodes whose parent cannot be resolved are dropped.
func (t *InnovationTracker) CanonicalBehaviorTree(tree model.BehaviorTreeGene) model.BehaviorTreeGene {
	remap := make(map[model.Innovation]model.Innovation, len(tree.Nodes))
	out := model.BehaviorTreeGene{Nodes: make([]model.BehaviorNode, 0, len(tree.Nodes))}
	pending := append([]model.BehaviorNode(nil), tree.Nodes...)
	for len(pending) > 0 {
		progressed := false
		rest := pending[:0]
		for _, node := range pending {
			parent := model.Innovation(0)
			if node.Parent != 0 {
				mapped, ok := remap[node.Parent]
				if !ok {
					rest = append(rest, node)
					continue
				}
				parent = mapped
			}
			marker := t.BehaviorNode(parent, node.Kind, node.Label)
			remap[node.Innovation] = marker
			node.Innovation = marker
			node.Parent = parent
			out.Nodes = append(out.Nodes, node)
			progressed = true
		}
		pending = rest
		if !progressed {
			break
		}
	}
	return out
}

func (t *InnovationTracker) CanonicalStateMachine(machine model.StateMachineGene) model.StateMachineGene {
	out := machine.Clone()
	for i := range out.States {
		out.States[i].Innovation = t.MachineState(out.States[i].Name)
	}
	for i := range out.Transitions {
		tr := out.Transitions[i]
		out.Transitions[i].Innovation = t.Transition(tr.From, tr.To, tr.Trigger)
	}
	return out
}
