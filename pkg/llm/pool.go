package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/xhad/scribe/internal/models"
)

// GenerateBatch documents a slice of functions on a bounded worker
// pool. Results keep input order; a failed or panicking task produces
// an error record in its slot and never cancels the rest. The contexts
// slice may be shorter than fns.
func (g *Generator) GenerateBatch(ctx context.Context, fns []models.Function, contexts [][]string) []models.Documentation {
	results := make([]models.Documentation, len(fns))
	if len(fns) == 0 {
		return results
	}

	pool, err := ants.NewPool(g.config.Workers)
	if err != nil {
		// Pool creation only fails on a bad capacity; fall back to
		// sequential generation.
		for i := range fns {
			results[i] = g.generateOne(ctx, fns, contexts, i)
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range fns {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = errorDoc(fmt.Sprintf("generation panic: %v", r), "")
				}
			}()
			results[i] = g.generateOne(ctx, fns, contexts, i)
		}

		if err := pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	return results
}

func (g *Generator) generateOne(ctx context.Context, fns []models.Function, contexts [][]string, i int) models.Documentation {
	var contextDocs []string
	if i < len(contexts) {
		contextDocs = contexts[i]
	}

	doc := g.Generate(ctx, fns[i], contextDocs)

	if g.config.OnProgress != nil {
		g.config.OnProgress(fns[i].Name)
	}

	return doc
}
