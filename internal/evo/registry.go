package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"agentevo/internal/model"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

var (
	ErrOperatorExists       = errors.New("operator already registered")
	ErrOperatorNotFound     = errors.New("operator not found")
	ErrOperatorIncompatible = errors.New("operator incompatible with chromosome")
	ErrVersionMismatch      = errors.New("operator version mismatch")
)

type CompatibilityFn func(c *model.AgentChromosome) error

type OperatorSpec struct {
	Name          string
	Operator      Operator
	SchemaVersion int
	CodecVersion  int
	Compatible    CompatibilityFn
}

type registeredOperator struct {
	operator      Operator
	schemaVersion int
	codecVersion  int
	compatible    CompatibilityFn
}

var operatorRegistry = struct {
	mu sync.RWMutex
	m  map[string]registeredOperator
}{
	m: builtinOperators(),
}

// builtinOperators are the stateless operators resolvable by name. Operators
// that need a run's innovation tracker are built per run instead.
func builtinOperators() map[string]registeredOperator {
	out := make(map[string]registeredOperator)
	for _, op := range []Operator{
		TournamentSelector{},
		RouletteSelector{},
		EliteSelector{},
		SpeciesTournamentSelector{},
		NoopFitnessPostprocessor{},
		SizeProportionalPostprocessor{},
	} {
		out[op.Name()] = registeredOperator{
			operator:      op,
			schemaVersion: SupportedSchemaVersion,
			codecVersion:  SupportedCodecVersion,
		}
	}
	return out
}

// RegisterOperator registers an operator with default schema and codec versions.
func RegisterOperator(name string, op Operator) error {
	return RegisterOperatorWithSpec(OperatorSpec{
		Name:          name,
		Operator:      op,
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
	})
}

// RegisterOperatorWithSpec registers an operator with explicit versioning and compatibility metadata.
func RegisterOperatorWithSpec(spec OperatorSpec) error {
	if spec.Name == "" {
		return errors.New("operator name is required")
	}
	if spec.Operator == nil {
		return errors.New("operator is required")
	}
	if spec.SchemaVersion != SupportedSchemaVersion || spec.CodecVersion != SupportedCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, spec.SchemaVersion, spec.CodecVersion)
	}

	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()

	if _, exists := operatorRegistry.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, spec.Name)
	}
	operatorRegistry.m[spec.Name] = registeredOperator{
		operator:      spec.Operator,
		schemaVersion: spec.SchemaVersion,
		codecVersion:  spec.CodecVersion,
		compatible:    spec.Compatible,
	}
	return nil
}

// ResolveOperator returns a registered operator only if the chromosome's
// record versions and compatibility checks pass. A nil chromosome skips them.
func ResolveOperator(name string, c *model.AgentChromosome) (Operator, error) {
	operatorRegistry.mu.RLock()
	entry, ok := operatorRegistry.m[name]
	operatorRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	if c == nil {
		return entry.operator, nil
	}
	if c.SchemaVersion != entry.schemaVersion || c.CodecVersion != entry.codecVersion {
		return nil, fmt.Errorf("%w: operator=%s expected(schema=%d codec=%d) got(schema=%d codec=%d)",
			ErrVersionMismatch,
			name,
			entry.schemaVersion,
			entry.codecVersion,
			c.SchemaVersion,
			c.CodecVersion,
		)
	}
	if entry.compatible != nil {
		if err := entry.compatible(c); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrOperatorIncompatible, name, err)
		}
	}
	return entry.operator, nil
}

// checkOperators runs the registered version and compatibility checks of
// every given operator against each member. Operators that were never
// registered carry no constraints.
func checkOperators(members []*model.AgentChromosome, ops ...Operator) error {
	for _, op := range ops {
		for _, c := range members {
			if _, err := ResolveOperator(op.Name(), c); err != nil {
				if errors.Is(err, ErrOperatorNotFound) {
					break
				}
				return fmt.Errorf("chromosome %s: %w", c.ID, err)
			}
		}
	}
	return nil
}

func ResolveSelector(name string) (Selector, error) {
	op, err := ResolveOperator(name, nil)
	if err != nil {
		return nil, err
	}
	selector, ok := op.(Selector)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a selector", ErrOperatorIncompatible, name)
	}
	return selector, nil
}

func ResolvePostprocessor(name string) (FitnessPostprocessor, error) {
	op, err := ResolveOperator(name, nil)
	if err != nil {
		return nil, err
	}
	processor, ok := op.(FitnessPostprocessor)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a fitness postprocessor", ErrOperatorIncompatible, name)
	}
	return processor, nil
}

func ListOperators() []string {
	operatorRegistry.mu.RLock()
	defer operatorRegistry.mu.RUnlock()

	names := make([]string, 0, len(operatorRegistry.m))
	for name := range operatorRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetOperatorRegistryForTests() {
	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()
	operatorRegistry.m = builtinOperators()
}
