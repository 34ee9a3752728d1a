package api

import (
	"context"
	"sync"

	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/retry"
)

// Feed multiplexes the backend update stream into per-request subscriptions.
// One feed owns one streaming connection; subscribers come and go without
// touching it.
type Feed struct {
	client *APIClient

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// Subscription delivers status updates for one request ID. Updates arrives on
// C; Unsubscribe is idempotent and safe to call from any goroutine.
type Subscription struct {
	C chan StatusUpdate

	feed      *Feed
	requestID string
	once      sync.Once
}

// Unsubscribe detaches the subscription from the feed. Calling it more than
// once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.remove(s)
	})
}

// NewFeed creates a feed over the client's update stream.
func NewFeed(client *APIClient) *Feed {
	return &Feed{
		client: client,
		subs:   map[string]map[*Subscription]struct{}{},
	}
}

// Start opens the streaming connection and dispatches updates until the
// context is cancelled or the retry budget for reconnects is exhausted. A
// dropped stream is restarted from the beginning; subscribers simply see the
// next updates.
func (f *Feed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		executor := retry.New(f.client.RetryConfig)
		err := executor.ExecuteStream(ctx, func() error {
			return f.client.StreamUpdates(ctx, f.Dispatch)
		}, func(err error) bool {
			return ctx.Err() == nil
		})
		if err != nil && ctx.Err() == nil {
			log.Debug("Update feed terminated", "error", err)
		}
	}()
}

// Stop tears down the streaming connection and waits for the dispatch
// goroutine to exit.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
}

// Subscribe registers interest in status updates for a request ID.
func (f *Feed) Subscribe(requestID string) *Subscription {
	sub := &Subscription{
		C:         make(chan StatusUpdate, 8),
		feed:      f,
		requestID: requestID,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[requestID] == nil {
		f.subs[requestID] = map[*Subscription]struct{}{}
	}
	f.subs[requestID][sub] = struct{}{}
	return sub
}

func (f *Feed) remove(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.subs[sub.requestID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(f.subs, sub.requestID)
	}
}

// Dispatch fans one status update out to that request's subscribers. It is
// called by the stream goroutine and never blocks; a subscriber that falls
// behind loses updates rather than stalling the feed.
func (f *Feed) Dispatch(update StatusUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs[update.RequestID] {
		select {
		case sub.C <- update:
		default:
			log.Debug("Dropping status update for slow subscriber", "request_id", update.RequestID)
		}
	}
}
