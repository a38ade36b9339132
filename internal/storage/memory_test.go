package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentevo/internal/model"
)

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, run := range []model.RunRecord{testRun("late", base.Add(time.Minute)), testRun("early", base)} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	run, ok, err := store.GetRun(ctx, "early")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok || run.BestFitness != 0.9 {
		t.Fatalf("unexpected run: ok=%v %+v", ok, run)
	}
	if _, ok, _ := store.GetRun(ctx, "missing"); ok {
		t.Fatal("expected missing run")
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "early" || runs[1].ID != "late" {
		t.Fatalf("unexpected run list: %+v", runs)
	}
}

func TestMemoryStoreChromosomeIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	c := decodeChromosomeFixture(t, "minimal_chromosome_v1.json")
	if err := store.SaveChromosome(ctx, c); err != nil {
		t.Fatalf("save chromosome: %v", err)
	}
	c.SystemPrompt.Instructions[0] = "changed after save"

	loaded, ok, err := store.GetChromosome(ctx, c.ID)
	if err != nil {
		t.Fatalf("get chromosome: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted chromosome")
	}
	if loaded.SystemPrompt.Instructions[0] != "Cite sources." {
		t.Fatalf("stored chromosome aliased caller's copy: %q", loaded.SystemPrompt.Instructions[0])
	}
}

func TestMemoryStoreGenerationHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.GenerationStatistics{
		{Generation: 1, BestEverFitness: 0.4, Population: model.PopulationStatistics{Size: 4, BestFitness: 0.4}},
		{Generation: 2, BestEverFitness: 0.6, Population: model.PopulationStatistics{Size: 4, BestFitness: 0.6}},
	}
	if err := store.SaveGenerationHistory(ctx, "run-1", input); err != nil {
		t.Fatalf("save history: %v", err)
	}
	input[0].BestEverFitness = 99

	output, ok, err := store.GetGenerationHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted history")
	}
	if len(output) != 2 || output[0].BestEverFitness != 0.4 || output[1].Generation != 2 {
		t.Fatalf("unexpected history: %+v", output)
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), testRun("r", time.Now())); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
