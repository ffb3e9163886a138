package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/queue"
	"github.com/jonesrussell/pricefeed/internal/scheduler"
)

type fakeFeedStore struct {
	due     []domain.Feed
	manual  []domain.Feed
	cleared []string
}

func (f *fakeFeedStore) ClaimDue(_ context.Context, limit int) ([]domain.Feed, error) {
	if limit < len(f.due) {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeFeedStore) ListManualPending(_ context.Context, limit int) ([]domain.Feed, error) {
	if limit < len(f.manual) {
		return f.manual[:limit], nil
	}
	return f.manual, nil
}

func (f *fakeFeedStore) SetManualPending(_ context.Context, id string, pending bool) error {
	if !pending {
		f.cleared = append(f.cleared, id)
	}
	return nil
}

type fakeRunStore struct {
	pruned    int64
	retention time.Duration
}

func (f *fakeRunStore) PruneTerminal(_ context.Context, retention time.Duration) (int64, error) {
	f.retention = retention
	return f.pruned, nil
}

type fakeJobQueue struct {
	enqueued  []string
	triggers  []domain.TriggerKind
	duplicate map[string]bool
	err       error
}

func (f *fakeJobQueue) Enqueue(_ context.Context, feedID string, trigger domain.TriggerKind) (*queue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.duplicate[feedID] {
		return nil, queue.ErrDuplicate
	}
	f.enqueued = append(f.enqueued, feedID)
	f.triggers = append(f.triggers, trigger)
	return &queue.Job{ID: "job-" + feedID, FeedID: feedID, Trigger: trigger}, nil
}

func feeds(ids ...string) []domain.Feed {
	out := make([]domain.Feed, len(ids))
	for i, id := range ids {
		out[i] = domain.Feed{ID: id, Status: domain.FeedStatusEnabled}
	}
	return out
}

func TestTick(t *testing.T) {
	store := &fakeFeedStore{due: feeds("f-1", "f-2")}
	q := &fakeJobQueue{}
	s := scheduler.New(store, &fakeRunStore{}, q, logger.NewNopLogger())

	n, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if n != 2 {
		t.Errorf("enqueued = %d, want 2", n)
	}
	for _, trigger := range q.triggers {
		if trigger != domain.TriggerScheduled {
			t.Errorf("trigger = %v, want scheduled", trigger)
		}
	}
}

func TestTickSkipsDuplicates(t *testing.T) {
	store := &fakeFeedStore{due: feeds("f-1", "f-2", "f-3")}
	q := &fakeJobQueue{duplicate: map[string]bool{"f-2": true}}
	s := scheduler.New(store, &fakeRunStore{}, q, logger.NewNopLogger())

	n, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if n != 2 {
		t.Errorf("enqueued = %d, want 2 with the duplicate skipped", n)
	}
}

func TestTickPropagatesQueueErrors(t *testing.T) {
	store := &fakeFeedStore{due: feeds("f-1")}
	q := &fakeJobQueue{err: errors.New("redis down")}
	s := scheduler.New(store, &fakeRunStore{}, q, logger.NewNopLogger())

	if _, err := s.Tick(context.Background()); err == nil {
		t.Error("Tick() expected error when enqueue fails hard")
	}
}

func TestTickConcurrentSchedulersClaimEachFeedOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := queue.New(client, logger.NewNopLogger())

	// Two instances see the same due set; the queue's unique-key
	// reservation arbitrates which one enqueues each feed.
	due := feeds("f-1", "f-2", "f-3")
	schedulers := []*scheduler.Scheduler{
		scheduler.New(&fakeFeedStore{due: due}, &fakeRunStore{}, q, logger.NewNopLogger()),
		scheduler.New(&fakeFeedStore{due: due}, &fakeRunStore{}, q, logger.NewNopLogger()),
	}

	counts := make([]int, len(schedulers))
	var wg sync.WaitGroup
	for i, s := range schedulers {
		wg.Add(1)
		go func(i int, s *scheduler.Scheduler) {
			defer wg.Done()
			n, err := s.Tick(context.Background())
			if err != nil {
				t.Errorf("Tick() error = %v", err)
			}
			counts[i] = n
		}(i, s)
	}
	wg.Wait()

	if total := counts[0] + counts[1]; total != len(due) {
		t.Errorf("total enqueued = %d, want %d", total, len(due))
	}
	_, scheduled, _, err := q.Depths(context.Background())
	if err != nil {
		t.Fatalf("Depths() error = %v", err)
	}
	if scheduled != int64(len(due)) {
		t.Errorf("scheduled depth = %d, want %d", scheduled, len(due))
	}
}

func TestDrainManualRuns(t *testing.T) {
	store := &fakeFeedStore{manual: feeds("f-1", "f-2")}
	q := &fakeJobQueue{}
	s := scheduler.New(store, &fakeRunStore{}, q, logger.NewNopLogger())

	n, err := s.DrainManualRuns(context.Background())
	if err != nil {
		t.Fatalf("DrainManualRuns() error = %v", err)
	}
	if n != 2 {
		t.Errorf("enqueued = %d, want 2", n)
	}
	for _, trigger := range q.triggers {
		if trigger != domain.TriggerManual {
			t.Errorf("trigger = %v, want manual", trigger)
		}
	}
	if len(store.cleared) != 2 {
		t.Errorf("flags cleared = %d, want 2", len(store.cleared))
	}
}

func TestDrainManualRunsClearsFlagOnDuplicate(t *testing.T) {
	store := &fakeFeedStore{manual: feeds("f-1")}
	q := &fakeJobQueue{duplicate: map[string]bool{"f-1": true}}
	s := scheduler.New(store, &fakeRunStore{}, q, logger.NewNopLogger())

	n, err := s.DrainManualRuns(context.Background())
	if err != nil {
		t.Fatalf("DrainManualRuns() error = %v", err)
	}
	if n != 0 {
		t.Errorf("enqueued = %d, want 0", n)
	}
	// The pending job satisfies the request, so the flag still clears.
	if len(store.cleared) != 1 || store.cleared[0] != "f-1" {
		t.Errorf("cleared = %v, want [f-1]", store.cleared)
	}
}

func TestPruneRuns(t *testing.T) {
	runs := &fakeRunStore{pruned: 42}
	s := scheduler.New(&fakeFeedStore{}, runs, &fakeJobQueue{}, logger.NewNopLogger())

	retention := 90 * 24 * time.Hour
	deleted, err := s.PruneRuns(context.Background(), retention)
	if err != nil {
		t.Fatalf("PruneRuns() error = %v", err)
	}
	if deleted != 42 {
		t.Errorf("deleted = %d, want 42", deleted)
	}
	if runs.retention != retention {
		t.Errorf("retention = %v, want %v", runs.retention, retention)
	}
}
