package storage

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"agentevo/internal/genotype"
	"agentevo/internal/model"
)

func TestDecodeChromosomeFixture(t *testing.T) {
	c := decodeChromosomeFixture(t, "minimal_chromosome_v1.json")
	if c.ID != "chromosome-minimal-1" {
		t.Fatalf("unexpected chromosome id: %s", c.ID)
	}
	if c.Model.Selected.String() != "anthropic/claude-sonnet" {
		t.Fatalf("unexpected model: %s", c.Model.Selected)
	}
	tree, ok := c.BehaviorTree.Get()
	if !ok || len(tree.Nodes) != 2 || tree.Nodes[1].Label != "search" {
		t.Fatalf("unexpected behavior tree: %+v", c.BehaviorTree)
	}
	if c.StateMachine.IsSome() {
		t.Fatal("expected absent state machine")
	}
	if species, ok := c.SpeciesID.Get(); !ok || species != "sp-001" {
		t.Fatalf("unexpected species: %+v", c.SpeciesID)
	}
	if got := c.ToolConfiguration.Tools["web_search"].Parameters["max_results"].Value; got != 5 {
		t.Fatalf("unexpected tool parameter: %f", got)
	}
}

func TestChromosomeEncodeDecodePreservesGenes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tracker := genotype.NewInnovationTracker()
	space := genotype.DefaultSpace()
	for i := 0; i < 10; i++ {
		c, err := genotype.NewRandomChromosome(space, tracker, rng)
		if err != nil {
			t.Fatalf("new chromosome: %v", err)
		}
		c.Fitness = 0.25 * float64(i)
		c.SpeciesID = model.Some("sp-002")

		data, err := EncodeChromosome(c)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		decoded, err := DecodeChromosome(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !genotype.SameGeneValues(c, decoded) {
			t.Fatalf("gene values changed across encode/decode for %s", c.ID)
		}
		if decoded.ID != c.ID || decoded.Fitness != c.Fitness || decoded.SpeciesID != c.SpeciesID {
			t.Fatalf("identity or evaluation changed: %+v", decoded)
		}
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	c := decodeChromosomeFixture(t, "minimal_chromosome_v1.json")
	c.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeChromosome(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeChromosome(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	run := model.RunRecord{ID: "run-1", VersionedRecord: model.VersionedRecord{SchemaVersion: 1, CodecVersion: 9}}
	data, err = EncodeRun(run)
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch for run, got %v", err)
	}
}

func TestRunRecordRoundTrip(t *testing.T) {
	run := testRun("run-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, run) {
		t.Fatalf("run changed across encode/decode:\n got %+v\nwant %+v", decoded, run)
	}
}

func TestSortRunsOrdersByCreationThenID(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runs := []model.RunRecord{
		testRun("c", base.Add(time.Hour)),
		testRun("b", base),
		testRun("a", base),
	}
	sortRuns(runs)
	if runs[0].ID != "a" || runs[1].ID != "b" || runs[2].ID != "c" {
		t.Fatalf("unexpected order: %s %s %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}
}

func testRun(id string, created time.Time) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              id,
		CreatedAt:       created,
		Evaluator:       "heuristic",
		Config: model.EvolutionConfig{
			PopulationSize: 20,
			EliteCount:     2,
			MutationRate:   0.2,
			CrossoverRate:  0.7,
			Termination: model.TerminationCondition{
				MaxGenerations: 10,
				TargetFitness:  model.Some(0.95),
			},
			Seed: 11,
		},
		BestChromosomeID:  "c-1",
		BestFitness:       0.9,
		FinalGeneration:   10,
		Termination:       model.TerminationMaxGenerations,
		TerminationReason: "max generations reached: 10",
		Duration:          3 * time.Second,
	}
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

func decodeChromosomeFixture(t *testing.T, name string) *model.AgentChromosome {
	t.Helper()

	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	c, err := DecodeChromosome(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return c
}
