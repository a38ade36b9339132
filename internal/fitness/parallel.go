package fitness

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"agentevo/internal/model"
)

const defaultWorkers = 4

// Parallel fans a batch out to a Scorer with bounded concurrency. The first
// scoring error cancels the remaining work and fails the batch.
type Parallel struct {
	Scorer  Scorer
	Workers int
}

func NewParallel(scorer Scorer, workers int) *Parallel {
	return &Parallel{Scorer: scorer, Workers: workers}
}

func (p *Parallel) EvaluateBatch(ctx context.Context, batch []*model.AgentChromosome) (map[string]Result, error) {
	if p.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	workers := p.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	var mu sync.Mutex
	out := make(map[string]Result, len(batch))

	wp := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for _, c := range batch {
		wp.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := p.Scorer.Score(ctx, c)
			if err != nil {
				return fmt.Errorf("score %s: %w", c.ID, err)
			}
			mu.Lock()
			out[c.ID] = result
			mu.Unlock()
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
