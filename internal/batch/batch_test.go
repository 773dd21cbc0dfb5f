package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ado/internal/azure"
	"github.com/joescharf/ado/internal/models"
)

func titled(titles ...string) []azure.Request {
	b := azure.NewBuilder("", "")
	conn := models.Connection{Token: "t", Organization: "o", Project: "p"}
	reqs := make([]azure.Request, len(titles))
	for i, title := range titles {
		reqs[i] = b.WorkItem(conn, models.WorkItemDraft{Title: title, ItemType: "Bug"})
	}
	return reqs
}

// recorder is a fake CreateFunc that records the titles it saw and fails on
// the titles in failOn.
type recorder struct {
	mu     sync.Mutex
	seen   []string
	failOn map[string]error
	nextID atomic.Int64
}

func (r *recorder) create(_ context.Context, req azure.Request) (*models.CreationResult, error) {
	r.mu.Lock()
	r.seen = append(r.seen, req.Title())
	r.mu.Unlock()
	if err := r.failOn[req.Title()]; err != nil {
		return nil, err
	}
	id := int(r.nextID.Add(1))
	return &models.CreationResult{ID: id, Success: true, Fields: map[string]string{"System.Title": req.Title()}}, nil
}

func resultTitles(rs []*models.CreationResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Title()
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Sequential, p)

	p, err = ParsePolicy(" Parallel ")
	require.NoError(t, err)
	assert.Equal(t, Parallel, p)

	_, err = ParsePolicy("eventually")
	assert.Error(t, err)
}

func TestSequential_AllSucceedInOrder(t *testing.T) {
	rec := &recorder{}
	var indexes []int
	e := &Executor{Policy: Sequential, Create: rec.create, OnResult: func(i int, _ *models.CreationResult) {
		indexes = append(indexes, i)
	}}

	results, err := e.CreateMany(context.Background(), titled("A", "B", "C"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, resultTitles(results))
	assert.Equal(t, []string{"A", "B", "C"}, rec.seen)
	assert.Equal(t, []int{0, 1, 2}, indexes)
}

func TestSequential_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("TF400813: not authorized")
	rec := &recorder{failOn: map[string]error{"B": boom}}
	e := &Executor{Policy: Sequential, Create: rec.create}

	results, err := e.CreateMany(context.Background(), titled("A", "B", "C"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Index)
	assert.Equal(t, 3, be.Total)
	assert.Equal(t, "B", be.Request.Title())
	assert.Equal(t, []string{"A"}, resultTitles(be.Completed))
	assert.Equal(t, []string{"A"}, resultTitles(results))
	assert.Contains(t, err.Error(), `item 2 of 3 ("B") failed`)

	// C is never attempted
	assert.Equal(t, []string{"A", "B"}, rec.seen)
}

func TestSequential_CancelledContext(t *testing.T) {
	rec := &recorder{}
	e := &Executor{Policy: Sequential, Create: rec.create}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.CreateMany(ctx, titled("A"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.seen)
}

func TestParallel_ResultsInSubmissionOrder(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	create := func(_ context.Context, req azure.Request) (*models.CreationResult, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &models.CreationResult{Success: true, Fields: map[string]string{"System.Title": req.Title()}}, nil
	}

	titles := make([]string, 12)
	for i := range titles {
		titles[i] = fmt.Sprintf("item-%02d", i)
	}
	e := &Executor{Policy: Parallel, MaxParallel: 3, Create: create}

	results, err := e.CreateMany(context.Background(), titled(titles...))
	require.NoError(t, err)
	assert.Equal(t, titles, resultTitles(results))
	assert.LessOrEqual(t, maxInFlight.Load(), int32(3))
}

func TestParallel_ReportsFirstFailureByIndex(t *testing.T) {
	rec := &recorder{failOn: map[string]error{
		"B": errors.New("b failed"),
		"D": errors.New("d failed"),
	}}
	e := &Executor{Policy: Parallel, Create: rec.create}

	results, err := e.CreateMany(context.Background(), titled("A", "B", "C", "D"))
	require.Error(t, err)

	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Index)
	assert.EqualError(t, be.Err, "b failed")
	// Every request is issued; the successful ones are reported.
	assert.Len(t, rec.seen, 4)
	assert.Equal(t, []string{"A", "C"}, resultTitles(results))
	assert.Equal(t, []string{"A", "C"}, resultTitles(be.Completed))
}

func TestCreateMany_Empty(t *testing.T) {
	for _, p := range []Policy{Sequential, Parallel} {
		e := &Executor{Policy: p, Create: (&recorder{}).create}
		results, err := e.CreateMany(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
}
