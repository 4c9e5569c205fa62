// Package event fans job lifecycle and per-record events out to streaming
// subscribers. Each subscriber owns a bounded channel; a subscriber that
// stops draining is dropped rather than ever stalling the producing job.
package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types pushed over a subscription.
const (
	TypeSnapshot        = "snapshot"
	TypeRecordProcessed = "record_processed"
	TypeJobProgress     = "job_progress"
	TypeHeartbeat       = "heartbeat"
	TypeJobCompleted    = "job_completed"
	TypeJobFailed       = "job_failed"
	TypeJobCancelled    = "job_cancelled"
)

// Event is one self-describing message on a job's stream.
type Event struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// New builds an event stamped with the current time.
func New(eventType, jobID string, payload any) Event {
	return Event{Type: eventType, JobID: jobID, Timestamp: time.Now().UTC(), Payload: payload}
}

// IsTerminal reports whether this event ends its job's stream.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case TypeJobCompleted, TypeJobFailed, TypeJobCancelled:
		return true
	}
	return false
}

// Subscription is one subscriber's view of a job's event stream. The channel
// is closed by the bus after the terminal event, or by Close.
type Subscription struct {
	id    string
	jobID string
	ch    chan Event
	bus   *Bus
	done  chan struct{}
	once  sync.Once
}

// Events returns the subscriber's receive channel.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close deregisters the subscription. It is safe to call multiple times and
// safe to call after the bus has already dropped the subscriber.
func (s *Subscription) Close() {
	s.bus.remove(s, true)
}

// Bus is the process-wide streaming notifier. It is constructed once at the
// composition root and shared by the job manager and the HTTP layer.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[string]*Subscription // job id -> sub id -> sub

	heartbeatInterval time.Duration
	bufferSize        int
	logger            *slog.Logger
}

// NewBus creates an event bus. bufferSize bounds each subscriber's queue;
// heartbeatInterval paces keepalive events on every open subscription.
func NewBus(heartbeatInterval time.Duration, bufferSize int, logger *slog.Logger) *Bus {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 15 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:              make(map[string]map[string]*Subscription),
		heartbeatInterval: heartbeatInterval,
		bufferSize:        bufferSize,
		logger:            logger,
	}
}

// Subscribe registers a subscriber for a job. Initial events (typically the
// job snapshot) are queued before any subsequently published event can
// arrive. If the initial events already include a terminal event the
// subscription is completed immediately and never registered.
func (b *Bus) Subscribe(jobID string, initial ...Event) *Subscription {
	// The initial events are queued below while holding b.mu, so the buffer
	// must be able to take all of them without blocking.
	size := b.bufferSize
	if len(initial) > size {
		size = len(initial)
	}
	sub := &Subscription{
		id:    uuid.New().String(),
		jobID: jobID,
		ch:    make(chan Event, size),
		bus:   b,
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	terminal := false
	for _, ev := range initial {
		sub.ch <- ev
		if ev.IsTerminal() {
			terminal = true
		}
	}
	if terminal {
		close(sub.ch)
		b.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[string]*Subscription)
	}
	b.subs[jobID][sub.id] = sub
	b.mu.Unlock()

	go b.heartbeatLoop(sub)
	return sub
}

// Publish fans an event out to every subscriber of its job, in publish
// order. A subscriber whose buffer is full is dropped. A terminal event
// closes all of the job's subscriptions after delivery.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[ev.JobID] {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("Dropping slow event subscriber",
				slog.String("job_id", ev.JobID),
				slog.String("subscription_id", sub.id),
			)
			b.removeLocked(sub, true)
		}
	}

	if ev.IsTerminal() {
		for _, sub := range b.subs[ev.JobID] {
			b.removeLocked(sub, true)
		}
		delete(b.subs, ev.JobID)
	}
}

// SubscriberCount reports how many subscribers a job currently has.
func (b *Bus) SubscriberCount(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}

func (b *Bus) heartbeatLoop(sub *Subscription) {
	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			b.mu.Lock()
			if _, still := b.subs[sub.jobID][sub.id]; still {
				select {
				case sub.ch <- New(TypeHeartbeat, sub.jobID, nil):
				default:
					// Buffer full; the next data publish will drop them.
				}
			}
			b.mu.Unlock()
		}
	}
}

func (b *Bus) remove(sub *Subscription, closeChan bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub, closeChan)
}

// removeLocked deregisters a subscription and closes its channel. Callers
// hold b.mu, which serializes the close against all channel sends.
func (b *Bus) removeLocked(sub *Subscription, closeChan bool) {
	if jobSubs, ok := b.subs[sub.jobID]; ok {
		if _, registered := jobSubs[sub.id]; registered {
			delete(jobSubs, sub.id)
			if len(jobSubs) == 0 {
				delete(b.subs, sub.jobID)
			}
			if closeChan {
				close(sub.ch)
			}
		}
	}
	sub.once.Do(func() { close(sub.done) })
}
