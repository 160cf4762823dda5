// Package broadcaster fans status events out to the sinks subscribed to a
// server identity.
package broadcaster

import (
	"fmt"
	"sync"

	"github.com/cyberinferno/pzrcon/logger"
	"github.com/cyberinferno/pzrcon/safemap"
	"github.com/cyberinferno/pzrcon/safeset"
)

// Sink is a delivery endpoint for events, typically one live client
// connection. Implementations must be comparable; pointer types are.
// Deliver returning an error means the sink is gone and is unsubscribed.
type Sink interface {
	Deliver(event Event) error
}

// Broadcaster maps server identities to subscriber sets. Set creation and
// removal are serialized by a single lock so an emptied set is never deleted
// while another subscriber is being added to it.
type Broadcaster struct {
	mu    sync.Mutex
	sinks *safemap.SafeMap[int, *safeset.SafeSet[Sink]]
	log   logger.Logger
}

// New creates an empty Broadcaster.
//
// Parameters:
//   - log: Receives warnings about dropped sinks; nil discards them
//
// Returns:
//   - A new *Broadcaster
func New(log logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Broadcaster{
		sinks: safemap.NewSafeMap[int, *safeset.SafeSet[Sink]](),
		log:   log.With(logger.Field{Key: "component", Value: "broadcaster"}),
	}
}

// Subscribe adds sink to the subscribers of serverID. Subscribing the same
// sink twice has no further effect.
func (b *Broadcaster) Subscribe(serverID int, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.sinks.Load(serverID)
	if !ok {
		set = safeset.NewSafeSet[Sink]()
		b.sinks.Store(serverID, set)
	}

	set.Add(sink)
}

// Unsubscribe removes sink from the subscribers of serverID. Removing the
// last sink deletes the entry for serverID.
//
// Returns:
//   - true if sink was subscribed
func (b *Broadcaster) Unsubscribe(serverID int, sink Sink) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.sinks.Load(serverID)
	if !ok {
		return false
	}

	removed := set.Remove(sink)
	if set.Size() == 0 {
		b.sinks.Delete(serverID)
	}

	return removed
}

// Publish delivers event to every sink subscribed to serverID, one after
// another in the calling goroutine. Each delivery is independent: a sink
// whose Deliver fails is unsubscribed and the remaining sinks still receive
// the event. Publishing to an identity without subscribers is a no-op.
//
// Parameters:
//   - serverID: The server identity
//   - event: The event to deliver
//
// Returns:
//   - The number of sinks that accepted the event
func (b *Broadcaster) Publish(serverID int, event Event) int {
	set, ok := b.sinks.Load(serverID)
	if !ok {
		return 0
	}

	delivered := 0
	for _, sink := range set.Values() {
		if err := deliver(sink, event); err != nil {
			b.log.Warn("dropping sink",
				logger.Field{Key: "server_id", Value: serverID},
				logger.Field{Key: "event", Value: string(event.EventType())},
				logger.Field{Key: "error", Value: err},
			)
			b.Unsubscribe(serverID, sink)
			continue
		}

		delivered++
	}

	return delivered
}

// SubscriberCount returns the number of sinks subscribed to serverID.
func (b *Broadcaster) SubscriberCount(serverID int) int {
	set, ok := b.sinks.Load(serverID)
	if !ok {
		return 0
	}

	return set.Size()
}

// deliver calls sink.Deliver, turning a panic into an error.
func deliver(sink Sink, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()

	return sink.Deliver(event)
}
