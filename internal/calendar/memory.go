package calendar

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryGateway keeps events in process. It serves deployments without a connected calendar
// and the handler tests.
type MemoryGateway struct {
	mu         sync.Mutex
	calendarID string
	events     map[string]Event
	failures   map[string]error
}

var _ Gateway = (*MemoryGateway)(nil)

// Operation names accepted by FailOn.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpList   = "list"
)

func NewMemoryGateway(calendarID string) *MemoryGateway {
	return &MemoryGateway{
		calendarID: calendarID,
		events:     make(map[string]Event),
		failures:   make(map[string]error),
	}
}

// FailOn makes every call of the operation return err. A nil err clears the failure.
func (g *MemoryGateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

// Put stores an event as if it had been created on the calendar directly.
func (g *MemoryGateway) Put(event Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if event.Status == "" {
		event.Status = StatusConfirmed
	}
	g.events[event.ID] = event
}

// Get returns a stored event.
func (g *MemoryGateway) Get(eventID string) (Event, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ev, ok := g.events[eventID]
	return ev, ok
}

func (g *MemoryGateway) CalendarID() string {
	return g.calendarID
}

func (g *MemoryGateway) CreateEvent(_ context.Context, event Event) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[OpCreate]; err != nil {
		return "", err
	}
	if event.ID == "" {
		event.ID = primitive.NewObjectID().Hex()
	}
	if _, exists := g.events[event.ID]; exists {
		return event.ID, nil
	}
	event.Status = StatusConfirmed
	g.events[event.ID] = event
	return event.ID, nil
}

func (g *MemoryGateway) UpdateEvent(_ context.Context, eventID string, update EventUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[OpUpdate]; err != nil {
		return err
	}
	ev, ok := g.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	if update.Summary != "" {
		ev.Summary = update.Summary
	}
	if update.Description != "" {
		ev.Description = update.Description
	}
	g.events[eventID] = ev
	return nil
}

func (g *MemoryGateway) DeleteEvent(_ context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[OpDelete]; err != nil {
		return err
	}
	delete(g.events, eventID)
	return nil
}

func (g *MemoryGateway) ListEvents(_ context.Context, from, to time.Time) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[OpList]; err != nil {
		return nil, err
	}
	out := []Event{}
	for _, ev := range g.events {
		if !ev.Start.Before(from) && ev.Start.Before(to) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
