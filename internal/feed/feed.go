// Package feed implements the live subscription over the record store:
// a poller watches the outbox for new events and, on every change, loads
// the full record set ordered by created_at descending and publishes it
// to all subscribers. Subscribers always receive whole snapshots, never
// diffs.
package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/SMohammed-suhail/ClinicCare/internal/models"
	"github.com/SMohammed-suhail/ClinicCare/internal/store"
)

const zeroUUID = "00000000-0000-0000-0000-000000000000"

type Source interface {
	ListRecords(ctx context.Context) ([]models.PatientRecord, error)
	ListOutboxEvents(ctx context.Context, after time.Time, afterID string, limit int) ([]store.OutboxEvent, error)
}

type Feed struct {
	source Source

	mu     sync.Mutex
	subs   map[int]chan []models.PatientRecord
	nextID int
}

func New(source Source) *Feed {
	return &Feed{source: source, subs: make(map[int]chan []models.PatientRecord)}
}

// Subscribe registers a snapshot consumer. The returned cancel func
// releases the subscription and closes the channel; no deliveries happen
// after it returns.
func (f *Feed) Subscribe() (<-chan []models.PatientRecord, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan []models.PatientRecord, 1)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish delivers the snapshot to every subscriber. A subscriber that
// has not drained its previous snapshot gets it replaced: snapshots are
// whole-view, so only the latest matters.
func (f *Feed) publish(records []models.PatientRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- records:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- records:
			default:
			}
		}
	}
}

// Run polls the outbox and publishes a fresh snapshot whenever events
// appear, starting with one initial snapshot. It returns when ctx is
// cancelled. Errors are logged and do not stop the loop; the
// subscription outlives individual store failures.
func (f *Feed) Run(ctx context.Context, interval time.Duration, batchSize int) {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	lastEventTime := time.Unix(0, 0).UTC()
	lastEventID := zeroUUID

	if err := f.loadAndPublish(ctx); err != nil {
		log.Printf("feed: initial snapshot error: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		events, err := f.source.ListOutboxEvents(ctx, lastEventTime, lastEventID, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("feed: outbox poll error: %v", err)
			continue
		}
		if len(events) == 0 {
			continue
		}
		last := events[len(events)-1]
		lastEventTime = last.CreatedAt
		lastEventID = last.EventID

		if err := f.loadAndPublish(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("feed: snapshot load error: %v", err)
		}
	}
}

func (f *Feed) loadAndPublish(ctx context.Context) error {
	records, err := f.source.ListRecords(ctx)
	if err != nil {
		return err
	}
	f.publish(records)
	return nil
}
