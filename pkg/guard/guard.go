// Package guard classifies live subprocess stderr to tell "access not yet
// propagated, retry" apart from genuine authorization failures and from
// "log in to the provider CLI first".
package guard

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	errUtils "github.com/cloudposse/grant/errors"
	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/proc"
	"github.com/cloudposse/grant/pkg/schema"
)

// Patterns are the compiled provider-specific stderr signatures.
type Patterns struct {
	Unprovisioned []*regexp.Regexp
	ValidAccess   []*regexp.Regexp
	LoginRequired *regexp.Regexp
	AuthSuccess   *regexp.Regexp
}

// Compile builds the pattern sets from provider configuration.
func Compile(provider *schema.Provider) (*Patterns, error) {
	p := &Patterns{}

	for _, raw := range provider.UnprovisionedAccessPatterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errUtils.ErrInvalidPattern, raw, err)
		}
		p.Unprovisioned = append(p.Unprovisioned, re)
	}
	for _, raw := range provider.ValidAccessPatterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errUtils.ErrInvalidPattern, raw, err)
		}
		p.ValidAccess = append(p.ValidAccess, re)
	}
	if provider.LoginRequiredPattern != "" {
		re, err := regexp.Compile(provider.LoginRequiredPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errUtils.ErrInvalidPattern, provider.LoginRequiredPattern, err)
		}
		p.LoginRequired = re
	}
	if provider.AuthSuccessPattern != "" {
		re, err := regexp.Compile(provider.AuthSuccessPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errUtils.ErrInvalidPattern, provider.AuthSuccessPattern, err)
		}
		p.AuthSuccess = re
	}
	return p, nil
}

// Guard accumulates classification state for one subprocess attempt. Create a
// fresh Guard per attempt; state never carries across retries.
type Guard struct {
	patterns *Patterns

	// window bounds how long after process start an unprovisioned-access
	// match is honored as transient. Matches outside the window are organic
	// error output. Zero means unbounded.
	window time.Duration

	// preTest enables the valid-access classification used by pre-flight
	// probes.
	preTest bool

	mu            sync.Mutex
	transientDeny bool
	loginRequired bool
	validError    bool
	authSuccess   bool
}

// New creates a guard for one subprocess attempt.
func New(patterns *Patterns, window time.Duration, preTest bool) *Guard {
	return &Guard{
		patterns: patterns,
		window:   window,
		preTest:  preTest,
	}
}

// Observe classifies one stderr line as it arrives.
func (g *Guard) Observe(line proc.Line) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.patterns.LoginRequired != nil && g.patterns.LoginRequired.MatchString(line.Text) {
		// A login requirement is not retryable by waiting: the flag is sticky
		// and overrides any transient-deny observation.
		g.loginRequired = true
		g.transientDeny = false
		log.Trace("Login-required signature in subprocess output", "line", line.Text)
		return
	}

	unprovisioned := matchAny(g.patterns.Unprovisioned, line.Text)

	if unprovisioned && !g.loginRequired {
		if g.window <= 0 || line.At <= g.window {
			g.transientDeny = true
			log.Trace("Transient access-denied signature", "at", line.At, "line", line.Text)
		} else {
			log.Trace("Access-denied signature outside validation window, treating as organic output", "at", line.At)
		}
	}

	if g.preTest && !unprovisioned && matchAny(g.patterns.ValidAccess, line.Text) {
		g.validError = true
		log.Trace("Valid-access signature in pre-flight output", "line", line.Text)
	}

	if g.patterns.AuthSuccess != nil && g.patterns.AuthSuccess.MatchString(line.Text) {
		g.authSuccess = true
	}
}

// AccessPropagated reports whether the attempt's output shows access worked.
// False means the orchestrator should retry (unless LoginRequired).
func (g *Guard) AccessPropagated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loginRequired {
		return false
	}
	if g.transientDeny {
		return false
	}
	if g.preTest && len(g.patterns.ValidAccess) > 0 {
		return g.validError
	}
	return true
}

// LoginRequired reports whether the user must log in to the provider CLI.
// Once set it never clears.
func (g *Guard) LoginRequired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loginRequired
}

// ValidError reports whether a pre-flight probe failed in the specific,
// non-fatal way that proves access now works.
func (g *Guard) ValidError() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validError
}

// AuthSuccess reports whether the provider's authentication-success banner
// was observed. The orchestrator audits session start on this signal.
func (g *Guard) AuthSuccess() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authSuccess
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
