package repository

import (
	"context"
	"sync"

	"github.com/S1riyS/vnodefs/internal/models"
)

type memoryEventRepository struct {
	mu       sync.Mutex
	capacity int
	lastID   int64
	events   []models.Event
}

// NewMemoryEventRepository keeps the newest capacity events in memory. It
// stands in for Postgres when the database is disabled.
func NewMemoryEventRepository(capacity int) EventRepository {
	return &memoryEventRepository{capacity: capacity}
}

func (r *memoryEventRepository) EnsureSchema(context.Context) error {
	return nil
}

func (r *memoryEventRepository) Save(_ context.Context, events ...*models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range events {
		r.lastID++
		e.ID = r.lastID
		r.events = append(r.events, *e)
	}
	if r.capacity > 0 && len(r.events) > r.capacity {
		r.events = append(r.events[:0], r.events[len(r.events)-r.capacity:]...)
	}
	return nil
}

func (r *memoryEventRepository) List(_ context.Context, limit int) ([]models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []models.Event
	for i := len(r.events) - 1; i >= 0 && len(events) < limit; i-- {
		events = append(events, r.events[i])
	}
	return events, nil
}
