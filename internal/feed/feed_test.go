package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SMohammed-suhail/ClinicCare/internal/models"
	"github.com/SMohammed-suhail/ClinicCare/internal/store"
)

type fakeSource struct {
	mu        sync.Mutex
	records   []models.PatientRecord
	events    []store.OutboxEvent
	listCalls int
}

func (s *fakeSource) ListRecords(ctx context.Context) ([]models.PatientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := make([]models.PatientRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *fakeSource) ListOutboxEvents(ctx context.Context, after time.Time, afterID string, limit int) ([]store.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.OutboxEvent
	for _, event := range s.events {
		if event.CreatedAt.After(after) || (event.CreatedAt.Equal(after) && event.EventID > afterID) {
			out = append(out, event)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeSource) set(records []models.PatientRecord, events []store.OutboxEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.events = events
}

func (s *fakeSource) listCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func waitSnapshot(t *testing.T, ch <-chan []models.PatientRecord) []models.PatientRecord {
	t.Helper()
	select {
	case snapshot := <-ch:
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestRunPublishesInitialSnapshot(t *testing.T) {
	source := &fakeSource{}
	source.set([]models.PatientRecord{{ID: "rec-1", Name: "Ann"}}, nil)

	f := New(source)
	ch, cancel := f.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go f.Run(ctx, 10*time.Millisecond, 100)

	snapshot := waitSnapshot(t, ch)
	if len(snapshot) != 1 || snapshot[0].ID != "rec-1" {
		t.Fatalf("unexpected initial snapshot: %+v", snapshot)
	}
}

func TestRunPublishesOnOutboxEvents(t *testing.T) {
	source := &fakeSource{}
	source.set(nil, nil)

	f := New(source)
	ch, cancel := f.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go f.Run(ctx, 10*time.Millisecond, 100)

	initial := waitSnapshot(t, ch)
	if len(initial) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", initial)
	}

	now := time.Now().UTC()
	source.set(
		[]models.PatientRecord{{ID: "rec-1", Name: "Ann"}},
		[]store.OutboxEvent{{EventID: "11111111-1111-1111-1111-111111111111", Type: "patient.created", CreatedAt: now}},
	)

	snapshot := waitSnapshot(t, ch)
	if len(snapshot) != 1 || snapshot[0].ID != "rec-1" {
		t.Fatalf("unexpected snapshot after event: %+v", snapshot)
	}
}

func TestRunDoesNotRepublishConsumedEvents(t *testing.T) {
	now := time.Now().UTC()
	source := &fakeSource{}
	source.set(
		[]models.PatientRecord{{ID: "rec-1"}},
		[]store.OutboxEvent{{EventID: "11111111-1111-1111-1111-111111111111", Type: "patient.created", CreatedAt: now}},
	)

	f := New(source)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go f.Run(ctx, 10*time.Millisecond, 100)

	// One initial load plus one for the pending event; the event must not
	// trigger further loads once the offset has moved past it.
	deadline := time.Now().Add(2 * time.Second)
	for source.listCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 snapshot loads, got %d", source.listCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := source.listCount(); got != 2 {
		t.Fatalf("expected exactly 2 snapshot loads, got %d", got)
	}
}

func TestPublishLatestWins(t *testing.T) {
	f := New(&fakeSource{})
	ch, cancel := f.Subscribe()
	defer cancel()

	f.publish([]models.PatientRecord{{ID: "stale"}})
	f.publish([]models.PatientRecord{{ID: "fresh"}})

	snapshot := waitSnapshot(t, ch)
	if len(snapshot) != 1 || snapshot[0].ID != "fresh" {
		t.Fatalf("expected latest snapshot to win, got %+v", snapshot)
	}
}

func TestCancelClosesChannelAndIsIdempotent(t *testing.T) {
	f := New(&fakeSource{})
	ch, cancel := f.Subscribe()

	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Fatal("expected channel closed after cancel")
	}

	// Publishing after cancel must not panic or deliver.
	f.publish([]models.PatientRecord{{ID: "rec-1"}})
}

func TestSubscribersAreIndependent(t *testing.T) {
	f := New(&fakeSource{})
	ch1, cancel1 := f.Subscribe()
	ch2, cancel2 := f.Subscribe()
	defer cancel2()

	cancel1()
	f.publish([]models.PatientRecord{{ID: "rec-1"}})

	snapshot := waitSnapshot(t, ch2)
	if len(snapshot) != 1 || snapshot[0].ID != "rec-1" {
		t.Fatalf("remaining subscriber should still receive, got %+v", snapshot)
	}
	if _, open := <-ch1; open {
		t.Fatal("cancelled subscriber channel should be closed")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	source := &fakeSource{}
	f := New(source)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx, 10*time.Millisecond, 100)
		close(done)
	}()

	stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}
