// Package provision waits for the backend to drive an access request to a
// terminal status.
package provision

import (
	"context"
	"fmt"
	"time"

	errUtils "github.com/cloudposse/grant/errors"
	"github.com/cloudposse/grant/pkg/api"
	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/schema"
)

// Subscriber provides per-request status subscriptions. *api.Feed satisfies
// it.
type Subscriber interface {
	Subscribe(requestID string) *api.Subscription
}

// Fetcher resolves the full request payload when a terminal update arrives
// without one. *api.APIClient satisfies it.
type Fetcher interface {
	GetAccessRequest(ctx context.Context, id string) (*schema.ProvisionedRequest, error)
}

// Waiter watches the update feed until a request reaches a terminal status or
// the grant window elapses.
type Waiter struct {
	Feed   Subscriber
	Client Fetcher
	Window time.Duration
}

const defaultGrantWindow = 60 * time.Second

// Wait blocks until the request reaches a terminal status. DONE resolves with
// the provisioned payload; DENIED and ERROR reject with user-facing messages;
// no terminal status inside the grant window rejects with a timeout. The
// subscription is always torn down, and the wait settles exactly once.
func (w *Waiter) Wait(ctx context.Context, requestID string) (*schema.ProvisionedRequest, error) {
	window := w.Window
	if window <= 0 {
		window = defaultGrantWindow
	}

	sub := w.Feed.Subscribe(requestID)
	defer sub.Unsubscribe()

	// The decision may have landed before the subscription existed. Reconcile
	// once against the backend so a terminal status in that gap doesn't leave
	// us riding out the full grant window.
	current, err := w.Client.GetAccessRequest(ctx, requestID)
	if err != nil {
		log.Trace("Reconciliation fetch failed, falling back to the feed", "request_id", requestID, "error", err)
	} else if current != nil && current.Status.Terminal() {
		result, done, err := w.settle(ctx, api.StatusUpdate{
			RequestID: requestID,
			Status:    current.Status,
			Request:   current,
		})
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case update := <-sub.C:
			result, done, err := w.settle(ctx, update)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}

		case <-timer.C:
			return nil, fmt.Errorf("%w: no decision within %s", errUtils.ErrProvisioningTimeout, window)

		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
}

// settle maps one status update to an outcome. Non-terminal updates report
// done=false and are ignored by the caller's loop.
func (w *Waiter) settle(ctx context.Context, update api.StatusUpdate) (*schema.ProvisionedRequest, bool, error) {
	log.Trace("Status update", "request_id", update.RequestID, "status", update.Status)

	switch {
	case update.Status == schema.StatusDone:
		if update.Request != nil {
			return update.Request, true, nil
		}
		// Terminal update without an inline payload; fetch the full request.
		result, err := w.Client.GetAccessRequest(ctx, update.RequestID)
		if err != nil {
			return nil, false, err
		}
		return result, true, nil

	case update.Status == schema.StatusDenied:
		return nil, false, fmt.Errorf("%w: request %s", errUtils.ErrAccessDenied, update.RequestID)

	case update.Status == schema.StatusError:
		return nil, false, fmt.Errorf("%w while provisioning request %s", errUtils.ErrBackend, update.RequestID)

	default:
		return nil, false, nil
	}
}
