// Package feed pushes change notifications for a user's private collections
// to live subscribers.
//
// Delivery is one-way and best effort. Each subscription has its own buffer and
// delivery goroutine, so callbacks for one subscription never run concurrently
// and a slow subscriber never blocks publishers: when its buffer is full the
// event is dropped and counted. There is no ordering guarantee across
// collections.
package feed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idvault_feed_events_published_total",
		Help: "Feed events published, by collection.",
	}, []string{"collection"})
	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idvault_feed_events_dropped_total",
		Help: "Feed events dropped because a subscriber buffer was full, by collection.",
	}, []string{"collection"})
	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "idvault_feed_subscriptions",
		Help: "Currently active feed subscriptions.",
	})
)

// Collection names a per-user collection that emits events.
type Collection string

const (
	CollectionCredentials Collection = "credentials"
	CollectionBlocks      Collection = "blocks"
	CollectionShares      Collection = "shares"
	CollectionClaims      Collection = "claims"

	// CollectionAll subscribes to every collection.
	CollectionAll Collection = ""
)

// Op is the kind of change.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// Event describes one change to a record in a user's collection.
type Event struct {
	Collection Collection `json:"collection"`
	Op         Op         `json:"op"`
	ID         uuid.UUID  `json:"id"`
	At         time.Time  `json:"at"`
}

// Publisher is implemented by *Hub. Domain managers depend on this.
type Publisher interface {
	Publish(userID uuid.UUID, e Event)
}

// Hub fans events out to the subscriptions of each user.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscription is a live registration. Call Unsubscribe to release it.
type Subscription struct {
	hub        *Hub
	userID     uuid.UUID
	collection Collection
	events     chan Event
	done       chan struct{}
	once       sync.Once
}

// Subscribe registers fn for events on the given user's collection
// (CollectionAll for every collection). fn runs on the subscription's own
// goroutine until Unsubscribe is called.
func (h *Hub) Subscribe(userID uuid.UUID, collection Collection, fn func(Event)) *Subscription {
	s := &Subscription{
		hub:        h,
		userID:     userID,
		collection: collection,
		events:     make(chan Event, h.buffer),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.mu.Unlock()
	activeSubscriptions.Inc()

	go s.deliver(fn)
	return s
}

// Publish delivers e to every matching subscription of userID without blocking.
func (h *Hub) Publish(userID uuid.UUID, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	eventsPublished.WithLabelValues(string(e.Collection)).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[userID] {
		if s.collection != CollectionAll && s.collection != e.Collection {
			continue
		}
		select {
		case s.events <- e:
		default:
			eventsDropped.WithLabelValues(string(e.Collection)).Inc()
			h.logger.Warn("feed subscriber buffer full, event dropped",
				"user_id", userID, "collection", e.Collection)
		}
	}
}

// Subscribers returns the number of live subscriptions of userID.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Unsubscribe stops delivery. It is safe to call more than once and from
// within the subscription's own callback. Events still buffered are discarded.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set := h.subs[s.userID]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.userID)
			}
		}
		h.mu.Unlock()
		activeSubscriptions.Dec()
		close(s.done)
	})
}

// Done is closed once the subscription has been cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) deliver(fn func(Event)) {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.events:
			select {
			case <-s.done:
				return
			default:
			}
			fn(e)
		}
	}
}
