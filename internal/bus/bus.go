package bus

import (
	"context"
	"sync"
	"time"

	"github.com/foldb/folddb/internal/ids"
	ferrors "github.com/foldb/folddb/pkg/errors"
)

// Subscriber receives every Event of the Kind it was registered for.
type Subscriber func(ctx context.Context, event Event)

// Bus is the in-process pub/sub hub. A Bus value is ready to use; the
// zero value is not (use New).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]Subscriber

	pending sync.Map // correlation id -> chan Event, used by Request
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[Kind][]Subscriber)}
}

// Subscribe attaches fn to every future event of kind. Subscriptions are
// additive and cannot be revoked individually; a component that needs to
// stop listening should guard fn with its own closed-over flag.
func (b *Bus) Subscribe(kind Kind, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], fn)
}

// Publish delivers event to every subscriber of its Kind, in subscription
// order, and resolves any pending Request waiting on event's correlation
// id. Publish does not block on subscriber work beyond invoking it
// synchronously in the publisher's goroutine; callers that need
// publish to return immediately should not perform blocking work inside
// a Subscriber.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.publish(ctx, event, true)
}

// publish delivers event to subscribers and, when resolvePending is true,
// hands it to any in-flight Request waiting on its correlation id.
// Request publishes its own request event with resolvePending=false so
// that event doesn't satisfy its own wait; only a later response publish
// (a normal, public Publish call from a responder) can do that.
func (b *Bus) publish(ctx context.Context, event Event, resolvePending bool) {
	if event.PublishedAt.IsZero() {
		event.PublishedAt = time.Now()
	}

	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers[event.Kind]))
	copy(subs, b.subscribers[event.Kind])
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(ctx, event)
	}

	if !resolvePending || event.CorrelationID == "" {
		return
	}
	if ch, ok := b.pending.Load(event.CorrelationID); ok {
		select {
		case ch.(chan Event) <- event:
		default:
		}
	}
}

// Request publishes event with a fresh correlation id (overwriting any
// id already set), then waits up to timeout for a response event bearing
// that id. The response Kind is whatever the caller is listening for;
// Request itself is kind-agnostic, it just waits on the correlation id.
func (b *Bus) Request(ctx context.Context, event Event, timeout time.Duration) (Event, error) {
	event.CorrelationID = ids.NewCorrelationID()

	ch := make(chan Event, 1)
	b.pending.Store(event.CorrelationID, ch)
	defer b.pending.Delete(event.CorrelationID)

	b.publish(ctx, event, false)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return Event{}, ferrors.TimeoutErr(event.CorrelationID)
	case <-ctx.Done():
		return Event{}, ferrors.TimeoutErr(event.CorrelationID)
	}
}
