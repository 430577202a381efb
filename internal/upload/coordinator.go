package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Progress counts resolved items of a batch
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// ItemError records why a single item failed
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// Result is the aggregate outcome of a batch
type Result struct {
	Total  int
	Failed []ItemError
}

// Succeeded returns the number of items that uploaded
func (r *Result) Succeeded() int {
	return r.Total - len(r.Failed)
}

// FailedIndices returns the failed item indices in ascending order
func (r *Result) FailedIndices() []int {
	indices := make([]int, len(r.Failed))
	for i, f := range r.Failed {
		indices[i] = f.Index
	}
	return indices
}

// Err returns nil when every item succeeded, otherwise an "N of M failed" error
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	parts := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		parts[i] = fmt.Sprintf("%d", f.Index)
	}
	return fmt.Errorf("%d of %d failed (items %s)", len(r.Failed), r.Total, strings.Join(parts, ", "))
}

// Coordinator dispatches every item of a batch independently and waits for all of them
type Coordinator struct {
	sender      Sender
	concurrency int
}

// NewCoordinator creates a Coordinator. concurrency <= 0 dispatches all items at once.
func NewCoordinator(sender Sender, concurrency int) *Coordinator {
	return &Coordinator{sender: sender, concurrency: concurrency}
}

// Run uploads all items. Every item is attempted, failures never abort the
// batch and nothing is retried. onProgress, when set, is called once per
// resolved item with Done strictly increasing from 1 to len(items).
func (c *Coordinator) Run(ctx context.Context, credential, subjectID string, items []Item, onProgress func(Progress)) *Result {
	result := &Result{Total: len(items)}

	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for _, item := range items {
		g.Go(func() error {
			err := c.sender.Send(ctx, credential, subjectID, item)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Error("Failed to upload image",
					"subject_id", subjectID,
					"index", item.Index,
					"size", len(item.Data),
					"error", err,
				)
				result.Failed = append(result.Failed, ItemError{Index: item.Index, Err: err})
			}
			done++
			if onProgress != nil {
				onProgress(Progress{Done: done, Total: len(items)})
			}
			return nil
		})
	}
	g.Wait()

	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].Index < result.Failed[j].Index })
	return result
}
