package evo

import (
	"context"
	"errors"
	"testing"

	"agentevo/internal/model"
)

type noopOperator struct{}

func (noopOperator) Name() string { return "noop" }

func versioned() *model.AgentChromosome {
	return &model.AgentChromosome{
		VersionedRecord: model.VersionedRecord{SchemaVersion: SupportedSchemaVersion, CodecVersion: SupportedCodecVersion},
	}
}

func TestRegisterAndResolveOperator(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator("noop", noopOperator{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	op, err := ResolveOperator("noop", versioned())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if op.Name() != "noop" {
		t.Fatalf("unexpected operator: %s", op.Name())
	}
}

func TestRegisterOperatorDuplicate(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator("noop", noopOperator{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := RegisterOperator("noop", noopOperator{}); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists, got: %v", err)
	}
	if err := RegisterOperator("tournament", noopOperator{}); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected builtin name to be taken, got: %v", err)
	}
}

func TestRegisterOperatorValidation(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator("", noopOperator{}); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterOperator("nil", nil); err == nil {
		t.Fatal("expected nil operator error")
	}
	if err := RegisterOperatorWithSpec(OperatorSpec{
		Name:          "bad-version",
		Operator:      noopOperator{},
		SchemaVersion: 99,
		CodecVersion:  1,
	}); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got: %v", err)
	}
}

func TestResolveOperatorNotFound(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if _, err := ResolveOperator("missing", versioned()); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got: %v", err)
	}
}

func TestResolveOperatorVersionMismatch(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	c := versioned()
	c.CodecVersion = SupportedCodecVersion + 1
	if _, err := ResolveOperator("tournament", c); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got: %v", err)
	}
	if _, err := ResolveOperator("tournament", nil); err != nil {
		t.Fatalf("expected nil chromosome to skip version checks, got: %v", err)
	}
}

func TestResolveOperatorCompatibility(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	compatibilityErr := errors.New("requires a behavior tree")
	if err := RegisterOperatorWithSpec(OperatorSpec{
		Name:          "needs-tree",
		Operator:      noopOperator{},
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
		Compatible: func(c *model.AgentChromosome) error {
			if !c.BehaviorTree.IsSome() {
				return compatibilityErr
			}
			return nil
		},
	}); err != nil {
		t.Fatalf("register with compatibility: %v", err)
	}

	if _, err := ResolveOperator("needs-tree", versioned()); !errors.Is(err, ErrOperatorIncompatible) {
		t.Fatalf("expected ErrOperatorIncompatible, got: %v", err)
	}
	withTree := versioned()
	withTree.BehaviorTree = model.Some(model.BehaviorTreeGene{})
	if _, err := ResolveOperator("needs-tree", withTree); err != nil {
		t.Fatalf("expected compatible chromosome to resolve, got: %v", err)
	}
}

func TestResolveSelectorAndPostprocessor(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	for _, name := range []string{"tournament", "roulette", "elite", "species_tournament"} {
		selector, err := ResolveSelector(name)
		if err != nil {
			t.Fatalf("resolve selector %s: %v", name, err)
		}
		if selector.Name() != name {
			t.Fatalf("expected %s, got %s", name, selector.Name())
		}
	}
	for _, name := range []string{"none", "size_proportional"} {
		if _, err := ResolvePostprocessor(name); err != nil {
			t.Fatalf("resolve postprocessor %s: %v", name, err)
		}
	}
	if _, err := ResolveSelector("size_proportional"); !errors.Is(err, ErrOperatorIncompatible) {
		t.Fatalf("expected postprocessor to be rejected as selector, got: %v", err)
	}
	if _, err := ResolvePostprocessor("tournament"); !errors.Is(err, ErrOperatorIncompatible) {
		t.Fatalf("expected selector to be rejected as postprocessor, got: %v", err)
	}
}

func TestListOperatorsSorted(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator("zz-op", noopOperator{}); err != nil {
		t.Fatalf("register zz-op: %v", err)
	}
	if err := RegisterOperator("aa-op", noopOperator{}); err != nil {
		t.Fatalf("register aa-op: %v", err)
	}

	names := ListOperators()
	if len(names) != 8 || names[0] != "aa-op" || names[len(names)-1] != "zz-op" {
		t.Fatalf("unexpected operator list: %+v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("operator list not sorted: %+v", names)
		}
	}
}

type namedSelector struct {
	TournamentSelector
	name string
}

func (s namedSelector) Name() string { return s.name }

func TestEvolveChecksRegisteredOperatorsAgainstPopulation(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperatorWithSpec(OperatorSpec{
		Name:          "strict",
		Operator:      namedSelector{name: "strict"},
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
		Compatible: func(*model.AgentChromosome) error {
			return errors.New("rejects every chromosome")
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	cfg := baseConfig()
	cfg.Termination.MaxGenerations = 2

	strict := newTestEngine(t, EngineConfig{Selector: namedSelector{name: "strict"}})
	if _, err := strict.Evolve(context.Background(), cfg); !errors.Is(err, ErrOperatorIncompatible) {
		t.Fatalf("expected ErrOperatorIncompatible, got: %v", err)
	}

	custom := newTestEngine(t, EngineConfig{Selector: namedSelector{name: "unregistered"}})
	if _, err := custom.Evolve(context.Background(), cfg); err != nil {
		t.Fatalf("expected unregistered selector to run unchecked, got: %v", err)
	}
}
