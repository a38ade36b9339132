//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"agentevo/internal/genotype"
	"agentevo/internal/model"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "agentevo.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	c := decodeChromosomeFixture(t, "minimal_chromosome_v1.json")
	if err := store.SaveChromosome(ctx, c); err != nil {
		t.Fatalf("save chromosome: %v", err)
	}
	loaded, ok, err := store.GetChromosome(ctx, c.ID)
	if err != nil {
		t.Fatalf("get chromosome: %v", err)
	}
	if !ok {
		t.Fatalf("expected chromosome %s", c.ID)
	}
	if !genotype.SameGeneValues(c, loaded) {
		t.Fatalf("unexpected chromosome loaded: %+v", loaded)
	}

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, run := range []model.RunRecord{testRun("late", base.Add(time.Minute)), testRun("early", base)} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}
	run, ok, err := store.GetRun(ctx, "late")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok || run.Termination != model.TerminationMaxGenerations {
		t.Fatalf("unexpected run: ok=%v %+v", ok, run)
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "early" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	history := []model.GenerationStatistics{{Generation: 1, BestEverFitness: 0.5}}
	if err := store.SaveGenerationHistory(ctx, "late", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	loadedHistory, ok, err := store.GetGenerationHistory(ctx, "late")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok || len(loadedHistory) != 1 || loadedHistory[0].BestEverFitness != 0.5 {
		t.Fatalf("unexpected history: %+v", loadedHistory)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "agentevo.db"))
	if _, _, err := store.GetRun(context.Background(), "x"); err == nil {
		t.Fatal("expected error before init")
	}
}
