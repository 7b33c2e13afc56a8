package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/repository/sqlstore"
)

func newTestQueue(t *testing.T) *Queue {
	dir := t.TempDir()
	db, err := sqlstore.Open(filepath.Join(dir, "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

// TestLeaseIsExclusive asserts concurrent leasers must never both
// claim the same task.
func TestLeaseIsExclusive(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := q.Enqueue(ctx, EnqueueParams{Operation: domain.OpOCR})
		require.NoError(t, err)
	}

	var mu sync.Mutex
	seen := map[string]int{}

	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		wg.Add(1)
		workerID := "worker-" + string(rune('a'+w))
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				tasks, err := q.Lease(ctx, id, 2, time.Minute)
				if err != nil {
					continue
				}
				mu.Lock()
				for _, task := range tasks {
					seen[task.TaskID]++
				}
				mu.Unlock()
			}
		}(workerID)
	}
	wg.Wait()

	for taskID, count := range seen {
		require.Equal(t, 1, count, "task %s leased more than once", taskID)
	}
}

// TestFailRetriesThenTerminates asserts a task retries up to
// max_attempts, each retry scheduled in the future, then fails
// terminally.
func TestFailRetriesThenTerminates(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Enqueue(ctx, EnqueueParams{Operation: domain.OpOCR, MaxAttempts: 2})
	require.NoError(t, err)

	leased, err := q.Lease(ctx, "w1", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, leased, 1)

	require.NoError(t, q.Fail(ctx, task.TaskID, errors.New("transient upstream error")))

	refetched, err := q.GetTask(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusPending, refetched.Status)
	require.NotNil(t, refetched.LastError)
	require.True(t, refetched.NextEligibleAt.After(time.Now().UTC()))

	// Force eligibility for the second lease attempt rather than
	// sleeping out the real backoff window in a unit test.
	_, err = q.db.ExecContext(ctx, `UPDATE tasks SET next_eligible_at = ? WHERE task_id = ?`, time.Now().UTC().Unix(), task.TaskID)
	require.NoError(t, err)

	leased, err = q.Lease(ctx, "w1", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, leased, 1)

	require.NoError(t, q.Fail(ctx, task.TaskID, errors.New("transient upstream error again")))

	final, err := q.GetTask(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusFailed, final.Status)
	require.True(t, final.Status.IsTerminal())
}

// TestBulkPauseStopsLeasing asserts pausing a bulk operation stops
// new leases and resuming it makes its tasks leasable again.
func TestBulkPauseStopsLeasing(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	bulk, err := q.BulkCreate(ctx, "reprocess 1890s", domain.OpOCR, []EnqueueParams{
		{Operation: domain.OpOCR}, {Operation: domain.OpOCR}, {Operation: domain.OpOCR},
	})
	require.NoError(t, err)
	require.Equal(t, 3, bulk.Counters.Total)

	require.NoError(t, q.PauseBulk(ctx, bulk.BulkID))

	leased, err := q.Lease(ctx, "w1", 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, leased)

	require.NoError(t, q.ResumeBulk(ctx, bulk.BulkID))

	leased, err = q.Lease(ctx, "w1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, leased, 3)
}

func TestCompleteMarksBulkCompletedWhenAllTasksFinish(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	bulk, err := q.BulkCreate(ctx, "small bulk", domain.OpReindex, []EnqueueParams{
		{Operation: domain.OpReindex}, {Operation: domain.OpReindex},
	})
	require.NoError(t, err)

	leased, err := q.Lease(ctx, "w1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, leased, 2)

	for _, task := range leased {
		require.NoError(t, q.Complete(ctx, task.TaskID))
	}

	var status string
	var pending int
	require.NoError(t, q.db.QueryRowContext(ctx, `SELECT status, pending FROM bulk_operations WHERE bulk_id = ?`, bulk.BulkID).Scan(&status, &pending))
	require.Equal(t, string(domain.BulkStatusCompleted), status)
	require.Equal(t, 0, pending)
}
