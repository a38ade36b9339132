package genotype

import (
	"math/rand"

	"agentevo/internal/model"
)

// AddBehaviorChild appends a node under parent. It is a no-op (returning
// false) when the parent is not a composite or an identical sibling exists.
func AddBehaviorChild(tree *model.BehaviorTreeGene, tracker *InnovationTracker, parent model.Innovation, kind model.BehaviorNodeKind, label string) bool {
	parentNode, ok := tree.Node(parent)
	if !ok || !parentNode.Kind.IsComposite() {
		return false
	}
	marker := tracker.BehaviorNode(parent, kind, label)
	if _, exists := tree.Node(marker); exists {
		return false
	}
	tree.Nodes = append(tree.Nodes, model.BehaviorNode{
		Innovation: marker,
		Kind:       kind,
		Label:      label,
		Parent:     parent,
		Enabled:    true,
	})
	return true
}

// RemoveBehaviorSubtree deletes the node and all of its descendants. The root
// cannot be removed.
func RemoveBehaviorSubtree(tree *model.BehaviorTreeGene, marker model.Innovation) bool {
	if len(tree.Nodes) == 0 || tree.Nodes[0].Innovation == marker {
		return false
	}
	doomed := map[model.Innovation]struct{}{marker: {}}
	for changed := true; changed; {
		changed = false
		for _, node := range tree.Nodes {
			if _, gone := doomed[node.Innovation]; gone {
				continue
			}
			if _, parentGone := doomed[node.Parent]; parentGone {
				doomed[node.Innovation] = struct{}{}
				changed = true
			}
		}
	}
	kept := tree.Nodes[:0]
	removed := false
	for _, node := range tree.Nodes {
		if _, gone := doomed[node.Innovation]; gone {
			removed = true
			continue
		}
		kept = append(kept, node)
	}
	tree.Nodes = kept
	return removed
}

func CompositeNodes(tree model.BehaviorTreeGene) []model.BehaviorNode {
	var out []model.BehaviorNode
	for _, node := range tree.Nodes {
		if node.Kind.IsComposite() {
			out = append(out, node)
		}
	}
	return out
}

// RandomBehaviorLeaf draws an action or, when conditions exist, a condition.
func RandomBehaviorLeaf(space Space, rng *rand.Rand) (model.BehaviorNodeKind, string) {
	if len(space.BehaviorConditions) > 0 && rng.Float64() < 0.3 {
		return model.BehaviorCondition, space.BehaviorConditions[rng.Intn(len(space.BehaviorConditions))]
	}
	return model.BehaviorAction, space.BehaviorActions[rng.Intn(len(space.BehaviorActions))]
}

func AddMachineState(machine *model.StateMachineGene, tracker *InnovationTracker, name string) bool {
	if machine.HasState(name) {
		return false
	}
	machine.States = append(machine.States, model.MachineState{
		Innovation: tracker.MachineState(name),
		Name:       name,
	})
	return true
}

// AddTransition adds an enabled transition between existing states. An
// existing identical transition is re-enabled instead.
func AddTransition(machine *model.StateMachineGene, tracker *InnovationTracker, from, to, trigger string) bool {
	if !machine.HasState(from) || !machine.HasState(to) {
		return false
	}
	marker := tracker.Transition(from, to, trigger)
	for i := range machine.Transitions {
		if machine.Transitions[i].Innovation == marker {
			if machine.Transitions[i].Enabled {
				return false
			}
			machine.Transitions[i].Enabled = true
			return true
		}
	}
	machine.Transitions = append(machine.Transitions, model.Transition{
		Innovation: marker,
		From:       from,
		To:         to,
		Trigger:    trigger,
		Enabled:    true,
	})
	return true
}
