package session

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	charm "github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	errUtils "github.com/cloudposse/grant/errors"
	"github.com/cloudposse/grant/pkg/api"
	"github.com/cloudposse/grant/pkg/guard"
	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/proc"
	"github.com/cloudposse/grant/pkg/provider"
)

const (
	defaultRetryDelay         = 5 * time.Second
	defaultPropagationTimeout = 90 * time.Second
)

// connect runs the subprocess until it either succeeds, fails for a reason
// retrying cannot fix, or the provider's propagation deadline passes. Each
// attempt gets a fresh guard; only a transient-deny classification earns a
// retry of the identical command.
func (o *Orchestrator) connect(ctx context.Context, caps *provider.Capabilities, spec *proc.Spec, audit *auditRecorder, preTest bool) error {
	retryDelay := o.Config.Session.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	timeout := caps.Config.PropagationTimeout
	if timeout <= 0 {
		timeout = defaultPropagationTimeout
	}
	deadline := time.Now().Add(timeout)

	for attempt := 1; ; attempt++ {
		g := guard.New(caps.Patterns, o.Config.Session.ValidationWindow, preTest)

		handle, err := proc.Spawn(ctx, spec)
		if err != nil {
			return err
		}

		for line := range handle.Stderr() {
			g.Observe(line)
			if audit != nil && g.AuthSuccess() {
				audit.Start(ctx)
			}
		}
		code, waitErr := handle.Wait()

		if cause := unrecoverableCause(ctx); cause != nil {
			return cause
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if g.LoginRequired() {
			return fmt.Errorf("%w: %s", errUtils.ErrLoginRequired, caps.LoginHint())
		}

		if code == 0 && waitErr == nil {
			return nil
		}

		if g.AccessPropagated() {
			if preTest {
				// The probe's own exit code is irrelevant once stderr
				// proves the access path works.
				log.Debug("Pre-flight probe confirmed access", "exit_code", code)
				return nil
			}
			if errors.Is(waitErr, proc.ErrKilledBySignal) {
				return fmt.Errorf("%w: %w", errUtils.ErrSessionFailed, waitErr)
			}
			return errUtils.WithExitCode(
				fmt.Errorf("%w: exit status %d", errUtils.ErrSessionFailed, code), code)
		}

		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: access to %s did not propagate within %s",
				errUtils.ErrPropagationTimeout, caps.Name, timeout)
		}

		log.Info("Access not propagated yet, retrying", "provider", caps.Name, "attempt", attempt, "delay", retryDelay)
		o.say("Access is still propagating, retrying in %s...", retryDelay)

		select {
		case <-ctx.Done():
			if cause := unrecoverableCause(ctx); cause != nil {
				return cause
			}
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// sshDebugLine matches the verbose client chatter produced by the forced -v.
var sshDebugLine = regexp.MustCompile(`^debug\d+: `)

// stderrFilter suppresses ssh debug chatter from the user's terminal unless
// the CLI itself runs at debug level. Everything else passes through.
func stderrFilter(line string) bool {
	if sshDebugLine.MatchString(line) {
		return log.Default().GetLevel() <= charm.DebugLevel
	}
	return true
}

// discardStderr keeps probe output off the terminal entirely; its lines only
// feed the guard.
func discardStderr(string) bool { return false }

// auditRecorder emits at most one start and one end event per session. Audit
// failures are logged and swallowed.
type auditRecorder struct {
	client Backend
	event  api.SessionEvent

	startOnce sync.Once
	endOnce   sync.Once
	started   bool
	startDone chan struct{}
}

func newAuditRecorder(client Backend, event api.SessionEvent) *auditRecorder {
	return &auditRecorder{
		client:    client,
		event:     event,
		startDone: make(chan struct{}),
	}
}

// Start records the session start. Called on every stderr line that carries
// the auth-success banner; only the first call emits. The backend call runs
// off the caller's goroutine so the stderr drain loop never stalls behind a
// slow or retried audit request.
func (a *auditRecorder) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		a.started = true
		event := a.event
		go func() {
			defer close(a.startDone)
			if err := a.client.AuditSessionStart(ctx, &event); err != nil {
				log.Warn("Failed to audit session start", "session", a.event.SessionID, "error", err)
			}
		}()
	})
}

// End records the session end, once, and only when a start was observed. It
// waits for the start event to land first so the backend never sees them out
// of order.
func (a *auditRecorder) End(ctx context.Context) {
	a.endOnce.Do(func() {
		if !a.started {
			return
		}
		<-a.startDone
		event := a.event
		if err := a.client.AuditSessionEnd(ctx, &event); err != nil {
			log.Warn("Failed to audit session end", "session", a.event.SessionID, "error", err)
		}
	})
}
