package creationqueue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"skimo-var/core/faults"
	"skimo-var/core/reports"
	"skimo-var/core/store"
)

// scriptedSender answers each create from a per-token script and records
// the order tokens arrive in.
type scriptedSender struct {
	fail   map[string][]error
	seen   []string
	nextID int64
}

func (s *scriptedSender) CreateReport(ctx context.Context, in reports.CreateReportInput) (*store.Report, error) {
	s.seen = append(s.seen, in.ClientToken)
	if errs := s.fail[in.ClientToken]; len(errs) > 0 {
		err := errs[0]
		s.fail[in.ClientToken] = errs[1:]
		return nil, err
	}
	s.nextID++
	return &store.Report{ID: s.nextID, ClientToken: in.ClientToken, RaceID: in.RaceID, BibNumber: in.BibNumber}, nil
}

func fastQueue(t *testing.T, sender Sender, journal Journal) *Queue {
	t.Helper()
	q, err := New(sender, journal)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	q.retryBase = time.Millisecond
	q.maxTries = 2
	return q
}

func input(token string, bib int) reports.CreateReportInput {
	return reports.CreateReportInput{RaceID: 1, BibNumber: bib, ClientToken: token}
}

func TestReplayDrainsInEnqueueOrder(t *testing.T) {
	sender := &scriptedSender{}
	q := fastQueue(t, sender, nil)
	for i, token := range []string{"t-1", "t-2", "t-3"} {
		if err := q.Enqueue(input(token, i+1)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	res, err := q.Replay(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(res.Acked) != 3 || q.Len() != 0 {
		t.Fatalf("acked=%d len=%d, want 3 and 0", len(res.Acked), q.Len())
	}
	for i, want := range []string{"t-1", "t-2", "t-3"} {
		if sender.seen[i] != want {
			t.Fatalf("send order %v, want head-first", sender.seen)
		}
	}
}

func TestEnqueueAssignsTokenWhenMissing(t *testing.T) {
	q := fastQueue(t, &scriptedSender{}, nil)
	if err := q.Enqueue(reports.CreateReportInput{RaceID: 1, BibNumber: 9}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if q.items[0].Input.ClientToken == "" {
		t.Fatalf("no token assigned on enqueue")
	}
}

func TestTransientFailureKeepsHeadAndOrder(t *testing.T) {
	offline := faults.Transient(errors.New("uplink down"))
	sender := &scriptedSender{fail: map[string][]error{
		"t-1": {offline, offline, offline},
	}}
	q := fastQueue(t, sender, nil)
	if err := q.Enqueue(input("t-1", 1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(input("t-2", 2)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := q.Replay(context.Background())
	if !faults.Is(err, faults.KindTransient) {
		t.Fatalf("replay = %v, want transient", err)
	}
	if len(res.Acked) != 0 || q.Len() != 2 {
		t.Fatalf("acked=%d len=%d after offline pass, want 0 and 2", len(res.Acked), q.Len())
	}
	for _, token := range sender.seen {
		if token != "t-1" {
			t.Fatalf("later item sent while head unacked: %v", sender.seen)
		}
	}

	// Uplink back: the retained head goes out first, then the tail.
	sender.seen = nil
	res, err = q.Replay(context.Background())
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if len(res.Acked) != 2 || q.Len() != 0 {
		t.Fatalf("acked=%d len=%d, want 2 and 0", len(res.Acked), q.Len())
	}
	if sender.seen[0] != "t-1" || sender.seen[1] != "t-2" {
		t.Fatalf("resume order %v", sender.seen)
	}
}

func TestTransientThenSuccessRetriesInPlace(t *testing.T) {
	sender := &scriptedSender{fail: map[string][]error{
		"t-1": {faults.Transient(errors.New("blip"))},
	}}
	q := fastQueue(t, sender, nil)
	if err := q.Enqueue(input("t-1", 1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	res, err := q.Replay(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(res.Acked) != 1 {
		t.Fatalf("acked = %d, want 1 after in-place retry", len(res.Acked))
	}
}

func TestRejectedItemIsRemovedAndReported(t *testing.T) {
	sender := &scriptedSender{fail: map[string][]error{
		"t-bad": {faults.Validation("bib number is required")},
	}}
	q := fastQueue(t, sender, nil)
	if err := q.Enqueue(input("t-bad", 0)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(input("t-ok", 2)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := q.Replay(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Item.Input.ClientToken != "t-bad" {
		t.Fatalf("rejected = %+v", res.Rejected)
	}
	if !faults.Is(res.Rejected[0].Err, faults.KindValidation) {
		t.Fatalf("rejected err = %v", res.Rejected[0].Err)
	}
	if len(res.Acked) != 1 || res.Acked[0].ClientToken != "t-ok" {
		t.Fatalf("acked = %+v", res.Acked)
	}
	if q.Len() != 0 {
		t.Fatalf("len = %d after replay, want 0", q.Len())
	}
}

func TestJournalSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	journal := &FileJournal{Path: filepath.Join(dir, "queue.json")}

	q := fastQueue(t, &scriptedSender{}, journal)
	if err := q.Enqueue(input("t-1", 1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(input("t-2", 2)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// A fresh queue over the same journal picks up the pending items.
	sender := &scriptedSender{}
	restarted := fastQueue(t, sender, journal)
	if restarted.Len() != 2 {
		t.Fatalf("len after restart = %d, want 2", restarted.Len())
	}
	res, err := restarted.Replay(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(res.Acked) != 2 {
		t.Fatalf("acked = %d, want 2", len(res.Acked))
	}
	if sender.seen[0] != "t-1" || sender.seen[1] != "t-2" {
		t.Fatalf("replay order after restart: %v", sender.seen)
	}

	// Journal reflects the drained queue.
	again := fastQueue(t, &scriptedSender{}, journal)
	if again.Len() != 0 {
		t.Fatalf("len after drained restart = %d, want 0", again.Len())
	}
}

func TestReplayStopsWhenContextEnds(t *testing.T) {
	sender := &scriptedSender{fail: map[string][]error{
		"t-1": {faults.Transient(errors.New("down")), faults.Transient(errors.New("down")), faults.Transient(errors.New("down"))},
	}}
	q := fastQueue(t, sender, nil)
	if err := q.Enqueue(input("t-1", 1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Replay(ctx); err == nil {
		t.Fatalf("replay with cancelled context succeeded")
	}
	if q.Len() != 1 {
		t.Fatalf("cancelled replay dropped the head")
	}
}
