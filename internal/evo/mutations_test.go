package evo

import (
	"errors"
	"math/rand"
	"testing"

	"agentevo/internal/genotype"
	"agentevo/internal/model"
)

func assertNumericBounds(t *testing.T, c *model.AgentChromosome) {
	t.Helper()
	for _, gene := range c.NumericGenes() {
		if !gene.InBounds() {
			t.Fatalf("%s=%f outside [%f,%f]", gene.Name, gene.Value, gene.Min, gene.Max)
		}
	}
	for name, setting := range c.ToolConfiguration.Tools {
		for _, param := range setting.Parameters {
			if !param.InBounds() {
				t.Fatalf("tool %s param %s=%f out of bounds", name, param.Name, param.Value)
			}
		}
	}
}

func assertTreeWellFormed(t *testing.T, c *model.AgentChromosome) {
	t.Helper()
	tree, ok := c.BehaviorTree.Get()
	if !ok {
		return
	}
	if len(tree.Nodes) == 0 || !tree.Nodes[0].Kind.IsComposite() {
		t.Fatalf("expected composite root, got %+v", tree.Nodes)
	}
	seen := map[model.Innovation]bool{tree.Nodes[0].Innovation: true}
	for _, node := range tree.Nodes[1:] {
		parent, ok := tree.Node(node.Parent)
		if !ok || !seen[node.Parent] {
			t.Fatalf("node %d has unknown or later parent %d", node.Innovation, node.Parent)
		}
		if !parent.Kind.IsComposite() {
			t.Fatalf("node %d hangs under leaf %d", node.Innovation, node.Parent)
		}
		seen[node.Innovation] = true
	}
}

func TestGeneMutatorKeepsNumericGenesInBounds(t *testing.T) {
	space := genotype.DefaultSpace()
	for _, rate := range []float64{0, 0.1, 0.5, 1} {
		pop := newScoredPopulation(t, 10, 31)
		mutator := NewGeneMutator(space, genotype.NewInnovationTracker())
		rng := rand.New(rand.NewSource(int64(rate*100) + 1))
		for round := 0; round < 25; round++ {
			for _, c := range pop.Members {
				if err := mutator.Mutate(c, rate, rng); err != nil {
					t.Fatalf("mutate at rate %f: %v", rate, err)
				}
				assertNumericBounds(t, c)
				assertTreeWellFormed(t, c)
			}
		}
	}
}

func TestGeneMutatorZeroRateIsIdentity(t *testing.T) {
	pop := newScoredPopulation(t, 5, 32)
	mutator := NewGeneMutator(genotype.DefaultSpace(), genotype.NewInnovationTracker())
	rng := rand.New(rand.NewSource(1))
	for _, c := range pop.Members {
		before := genotype.ComputeSignature(c).Fingerprint
		if err := mutator.Mutate(c, 0, rng); err != nil {
			t.Fatalf("mutate: %v", err)
		}
		if after := genotype.ComputeSignature(c).Fingerprint; after != before {
			t.Fatal("expected rate 0 to leave genes unchanged")
		}
	}
}

func TestGeneMutatorFullRateChangesGenes(t *testing.T) {
	pop := newScoredPopulation(t, 5, 33)
	mutator := NewGeneMutator(genotype.DefaultSpace(), genotype.NewInnovationTracker())
	rng := rand.New(rand.NewSource(2))
	changed := 0
	for _, c := range pop.Members {
		before := genotype.ComputeSignature(c).Fingerprint
		if err := mutator.Mutate(c, 1, rng); err != nil {
			t.Fatalf("mutate: %v", err)
		}
		if genotype.ComputeSignature(c).Fingerprint != before {
			changed++
		}
	}
	if changed == 0 {
		t.Fatal("expected rate 1 to change at least one chromosome")
	}
}

func TestGeneMutatorValidation(t *testing.T) {
	pop := newScoredPopulation(t, 1, 34)
	rng := rand.New(rand.NewSource(1))
	mutator := NewGeneMutator(genotype.DefaultSpace(), genotype.NewInnovationTracker())

	cases := []struct {
		name string
		run  func() error
	}{
		{"negative rate", func() error { return mutator.Mutate(pop.Members[0], -0.1, rng) }},
		{"rate above one", func() error { return mutator.Mutate(pop.Members[0], 1.5, rng) }},
		{"nil chromosome", func() error { return mutator.Mutate(nil, 0.5, rng) }},
		{"nil rng", func() error { return mutator.Mutate(pop.Members[0], 0.5, nil) }},
		{"nil tracker", func() error { return (&GeneMutator{Space: genotype.DefaultSpace()}).Mutate(pop.Members[0], 0.5, rng) }},
	}
	for _, tc := range cases {
		if err := tc.run(); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
		}
	}
}

func TestMutateNumericClampsExtremes(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	gene := model.NumericGene{Name: "max_retries", Value: 5, Min: 0, Max: 5, Step: 10, Integer: true}
	for i := 0; i < 200; i++ {
		MutateNumeric(&gene, rng)
		if !gene.InBounds() {
			t.Fatalf("value %f escaped bounds", gene.Value)
		}
		if gene.Value != float64(int(gene.Value)) {
			t.Fatalf("integer gene produced %f", gene.Value)
		}
	}
}

func TestGeneMutatorStructuralEditsReuseMarkers(t *testing.T) {
	space := genotype.DefaultSpace()
	tracker := genotype.NewInnovationTracker()
	mutator := NewGeneMutator(space, tracker)
	rng := rand.New(rand.NewSource(4))

	machine := model.StateMachineGene{Initial: "plan"}
	genotype.AddMachineState(&machine, tracker, "plan")
	genotype.AddMachineState(&machine, tracker, "act")
	for i := 0; i < 50; i++ {
		mutator.mutateStateMachine(&machine, rng)
	}
	for _, tr := range machine.Transitions {
		if want := tracker.Transition(tr.From, tr.To, tr.Trigger); want != tr.Innovation {
			t.Fatalf("transition %s->%s carries marker %d, tracker says %d", tr.From, tr.To, tr.Innovation, want)
		}
		if !machine.HasState(tr.From) || !machine.HasState(tr.To) {
			t.Fatalf("transition %s->%s references unknown state", tr.From, tr.To)
		}
	}
}
