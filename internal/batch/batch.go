// Package batch runs many independent create requests under one policy.
//
// The first failure fails the batch. Items created before it stay created;
// nothing is rolled back.
package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/joescharf/ado/internal/azure"
	"github.com/joescharf/ado/internal/models"
)

// Policy selects how requests are issued.
type Policy string

const (
	// Sequential issues request i+1 only after request i completes and stops
	// at the first failure.
	Sequential Policy = "sequential"
	// Parallel issues every request concurrently (bounded by MaxParallel)
	// and waits for all of them.
	Parallel Policy = "parallel"
)

// ParsePolicy parses a policy name. Empty means Sequential.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Sequential:
		return Sequential, nil
	case Parallel:
		return Parallel, nil
	default:
		return "", fmt.Errorf("unknown batch policy %q (want sequential or parallel)", s)
	}
}

// CreateFunc sends one request.
type CreateFunc func(ctx context.Context, req azure.Request) (*models.CreationResult, error)

// Error reports the failing item of a batch.
type Error struct {
	Index     int // position of the failing request
	Total     int
	Request   azure.Request
	Completed []*models.CreationResult // created before (or, in parallel, alongside) the failure
	Err       error
}

func (e *Error) Error() string {
	title := e.Request.Title()
	if title == "" {
		return fmt.Sprintf("item %d of %d failed: %v", e.Index+1, e.Total, e.Err)
	}
	return fmt.Sprintf("item %d of %d (%q) failed: %v", e.Index+1, e.Total, title, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Executor runs batches.
type Executor struct {
	Policy      Policy
	MaxParallel int // Parallel only; <= 0 means GOMAXPROCS workers
	Create      CreateFunc

	// OnResult, if set, is called after each successful request with its
	// index. Under Parallel it may be called from several goroutines.
	OnResult func(i int, res *models.CreationResult)
}

// CreateMany executes reqs and returns results in submission order.
func (e *Executor) CreateMany(ctx context.Context, reqs []azure.Request) ([]*models.CreationResult, error) {
	if e.Policy == Parallel {
		return e.parallel(ctx, reqs)
	}
	return e.sequential(ctx, reqs)
}

func (e *Executor) sequential(ctx context.Context, reqs []azure.Request) ([]*models.CreationResult, error) {
	results := make([]*models.CreationResult, 0, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results, &Error{Index: i, Total: len(reqs), Request: req, Completed: results, Err: err}
		}
		res, err := e.Create(ctx, req)
		if err != nil {
			return results, &Error{Index: i, Total: len(reqs), Request: req, Completed: results, Err: err}
		}
		results = append(results, res)
		if e.OnResult != nil {
			e.OnResult(i, res)
		}
	}
	return results, nil
}

type outcome struct {
	res *models.CreationResult
	err error
}

func (e *Executor) parallel(ctx context.Context, reqs []azure.Request) ([]*models.CreationResult, error) {
	workers := e.MaxParallel
	if workers < 0 {
		workers = 0
	}
	outcomes := make([]outcome, len(reqs))
	it := iter.Iterator[azure.Request]{MaxGoroutines: workers}
	it.ForEachIdx(reqs, func(i int, req *azure.Request) {
		res, err := e.Create(ctx, *req)
		outcomes[i] = outcome{res: res, err: err}
		if err == nil && e.OnResult != nil {
			e.OnResult(i, res)
		}
	})

	results := make([]*models.CreationResult, 0, len(reqs))
	var first *Error
	for i, o := range outcomes {
		if o.err != nil {
			if first == nil {
				first = &Error{Index: i, Total: len(reqs), Request: reqs[i], Err: o.err}
			}
			continue
		}
		results = append(results, o.res)
	}
	if first != nil {
		first.Completed = results
		return results, first
	}
	return results, nil
}
