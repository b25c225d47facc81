// Package events is the in-process notification bus the submitter signals
// terminal batch outcomes on.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const DefaultBuffer = 16

// Event is one terminal notification. Data carries the run payload on
// success; Error the failure message otherwise.
type Event struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Sink receives a copy of every published event.
type Sink interface {
	Forward(ctx context.Context, ev Event) error
}

type subscription struct {
	ch chan Event
}

// Bus fans events out to subscribers by exact name. A subscriber whose
// buffer is full misses the event; publishers never block.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscription
	nextID uint64
	buffer int
	sinks  []Sink
	log    logrus.FieldLogger
}

func NewBus(buffer int, logger logrus.FieldLogger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = logrus.WithField("component", "events")
	}
	return &Bus{
		subs:   make(map[string]map[uint64]*subscription),
		buffer: buffer,
		log:    logger,
	}
}

// AddSink registers s. Not safe to call concurrently with Publish.
func (b *Bus) AddSink(s Sink) {
	b.sinks = append(b.sinks, s)
}

// Subscribe returns a channel receiving events named name until ctx is done,
// at which point the channel is closed.
func (b *Bus) Subscribe(ctx context.Context, name string) (<-chan Event, error) {
	if name == "" {
		return nil, errors.New("events: name is required")
	}

	sub := &subscription{ch: make(chan Event, b.buffer)}
	id := atomic.AddUint64(&b.nextID, 1)

	b.mu.Lock()
	if _, ok := b.subs[name]; !ok {
		b.subs[name] = make(map[uint64]*subscription)
	}
	b.subs[name][id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(name, id)
	}()

	return sub.ch, nil
}

// Publish delivers ev to current subscribers and forwards it to sinks.
// Sink failures are logged and returned joined; local delivery always
// happens.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.Name == "" {
		return errors.New("events: name is required")
	}

	// sends never block, so delivering under the read lock keeps remove
	// from closing a channel mid-send
	b.mu.RLock()
	for _, sub := range b.subs[ev.Name] {
		b.send(sub, ev)
	}
	b.mu.RUnlock()

	var errs []error
	for _, sink := range b.sinks {
		if err := sink.Forward(ctx, ev); err != nil {
			b.log.WithError(err).WithField("event", ev.Name).Warn("Events: sink forward failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribers returns how many subscribers listen on name.
func (b *Bus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// send must be called with b.mu held.
func (b *Bus) send(s *subscription, ev Event) {
	select {
	case s.ch <- ev:
	default:
		b.log.WithField("event", ev.Name).Warn("Events: subscriber buffer full, event dropped")
	}
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	if subs == nil {
		return
	}
	if s, ok := subs[id]; ok {
		delete(subs, id)
		close(s.ch)
	}
	if len(subs) == 0 {
		delete(b.subs, name)
	}
}
