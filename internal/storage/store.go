package storage

import (
	"context"
	"errors"

	"agentevo/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store persists finished runs: the run record, chromosomes by id, and the
// per-generation statistics history.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run ordered by creation time, oldest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveChromosome(ctx context.Context, c *model.AgentChromosome) error
	GetChromosome(ctx context.Context, id string) (*model.AgentChromosome, bool, error)
	SaveGenerationHistory(ctx context.Context, runID string, history []model.GenerationStatistics) error
	GetGenerationHistory(ctx context.Context, runID string) ([]model.GenerationStatistics, bool, error)
}
