// Package creationqueue is the client-side buffer a trackside device runs.
// Reports written while offline queue up locally and replay strictly in
// order on reconnect, one at a time, each waiting for the server's ack (or
// the idempotent-duplicate ack) before the next is sent. A crash mid-replay
// resumes from the first unacknowledged item.
package creationqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sethvargo/go-retry"

	"skimo-var/core/faults"
	"skimo-var/core/reports"
	"skimo-var/core/store"
)

// Sender is the server's CreateReport surface as seen from the device.
type Sender interface {
	CreateReport(ctx context.Context, in reports.CreateReportInput) (*store.Report, error)
}

// Journal persists the pending items across device restarts.
type Journal interface {
	Save(items []Item) error
	Load() ([]Item, error)
}

type Item struct {
	Input      reports.CreateReportInput `json:"input"`
	EnqueuedAt time.Time                 `json:"enqueued_at"`
}

type Queue struct {
	sender  Sender
	journal Journal

	mu    sync.Mutex
	items []Item

	retryBase time.Duration
	maxTries  uint64
}

func New(sender Sender, journal Journal) (*Queue, error) {
	q := &Queue{sender: sender, journal: journal, retryBase: time.Second, maxTries: 5}
	if journal != nil {
		items, err := journal.Load()
		if err != nil {
			return nil, err
		}
		q.items = items
	}
	return q, nil
}

// Enqueue stamps the item with a fresh idempotency token unless the caller
// already assigned one, and journals it. The token is what makes a later
// replay of this exact item safe.
func (q *Queue) Enqueue(in reports.CreateReportInput) error {
	if in.ClientToken == "" {
		in.ClientToken = uuid.Must(uuid.NewV4()).String()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, Item{Input: in, EnqueuedAt: time.Now().UTC()})
	return q.persistLocked()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ReplayResult reports what a replay pass did.
type ReplayResult struct {
	Acked []store.Report
	// Rejected holds items the server refused with a non-transient fault.
	// They are removed from the queue; the device surfaces the specific
	// error to the official rather than retrying forever.
	Rejected []RejectedItem
}

type RejectedItem struct {
	Item Item
	Err  error
}

// Replay drains the queue head-first. Transient failures back off and
// retry in place, so ordering is preserved; the pass aborts when retries
// are exhausted or the context ends, leaving the unacknowledged tail for
// the next reconnect.
func (q *Queue) Replay(ctx context.Context) (*ReplayResult, error) {
	result := &ReplayResult{}
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return result, nil
		}
		head := q.items[0]
		q.mu.Unlock()

		rep, err := q.sendWithBackoff(ctx, head.Input)
		if err != nil {
			if faults.Is(err, faults.KindTransient) || ctx.Err() != nil {
				// Still offline; keep the head for the next pass.
				return result, err
			}
			result.Rejected = append(result.Rejected, RejectedItem{Item: head, Err: err})
			if popErr := q.pop(); popErr != nil {
				return result, popErr
			}
			continue
		}
		result.Acked = append(result.Acked, *rep)
		if popErr := q.pop(); popErr != nil {
			return result, popErr
		}
	}
}

func (q *Queue) sendWithBackoff(ctx context.Context, in reports.CreateReportInput) (*store.Report, error) {
	var rep *store.Report
	backoff := retry.WithMaxRetries(q.maxTries, retry.NewExponential(q.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := q.sender.CreateReport(ctx, in)
		if err != nil {
			if faults.Is(err, faults.KindTransient) {
				return retry.RetryableError(err)
			}
			return err
		}
		rep = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (q *Queue) pop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[1:]
	return q.persistLocked()
}

func (q *Queue) persistLocked() error {
	if q.journal == nil {
		return nil
	}
	return q.journal.Save(append([]Item(nil), q.items...))
}
