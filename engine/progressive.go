package engine

import (
	"context"
	"sync"

	"terrasync/surface"
)

// LoadProgressively converges a large candidate list without blocking
// interactivity: ids visible in the current viewport are moved to the
// front, an immediate head of bounded size is reconciled by a worker pool
// and awaited, and the deferred tail is worked through in low-concurrency
// chunks with an idle yield between them. It returns once the immediate
// head has converged; the tail continues in the background until exhausted
// or the context ends. Close waits for the tail.
func (e *Engine) LoadProgressively(ctx context.Context, territoryIDs []string) error {
	ids := e.prioritizeViewport(territoryIDs)

	head := ids
	var tail []string
	if len(ids) > e.immediateHead {
		head = ids[:e.immediateHead]
		tail = ids[e.immediateHead:]
	}

	e.runPool(ctx, head, e.immediateWorkers)

	if len(tail) > 0 {
		e.background.Add(1)
		go func() {
			defer e.background.Done()
			e.drainTail(ctx, tail)
		}()
	}
	return ctx.Err()
}

// runPool reconciles ids with a fixed number of workers pulling from a
// shared queue, and blocks until the queue drains.
func (e *Engine) runPool(ctx context.Context, ids []string, workers int) {
	if len(ids) == 0 {
		return
	}
	if workers > len(ids) {
		workers = len(ids)
	}

	queue := make(chan string, len(ids))
	for _, id := range ids {
		queue <- id
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				if ctx.Err() != nil {
					return
				}
				if err := e.Refresh(ctx, id, RefreshOptions{}); err != nil {
					e.logger.Warn("progressive reconciliation failed", "territory", id, "error", err)
				}
			}
		}()
	}
	wg.Wait()
}

// drainTail works through the deferred tail chunk by chunk, yielding to the
// host scheduler between chunks so foreground work is never starved.
func (e *Engine) drainTail(ctx context.Context, tail []string) {
	for start := 0; start < len(tail); start += e.deferredChunk {
		if err := e.clock.Sleep(ctx, e.idleDelay); err != nil {
			return
		}
		end := start + e.deferredChunk
		if end > len(tail) {
			end = len(tail)
		}
		e.runPool(ctx, tail[start:end], e.deferredWorkers)
	}
}

// prioritizeViewport stably moves ids whose features are rendered in the
// current viewport to the front of the list.
func (e *Engine) prioritizeViewport(ids []string) []string {
	rendered := e.surface.RenderedFeatures()
	if len(rendered) == 0 {
		return ids
	}
	visible := make(map[string]bool, len(rendered))
	for _, f := range rendered {
		if domain := f.StringProp(surface.PropTerritoryID); domain != "" {
			visible[domain] = true
		}
		if name := Slugify(f.StringProp(surface.PropName)); name != "" {
			visible[name] = true
		}
	}

	out := make([]string, 0, len(ids))
	var deferred []string
	for _, id := range ids {
		if visible[id] {
			out = append(out, id)
		} else {
			deferred = append(deferred, id)
		}
	}
	return append(out, deferred...)
}
