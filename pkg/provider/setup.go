package provider

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	errUtils "github.com/cloudposse/grant/errors"
	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/proc"
	"github.com/cloudposse/grant/pkg/schema"
)

// Resources are the ephemeral session resources a provider's Setup created.
// They are owned by one session orchestration and released exactly once on
// every exit path.
type Resources struct {
	Keys      *KeyMaterial
	Tunnel    *proc.Handle
	LocalPort int
}

// Release tears the resources down: the tunnel process group is killed and
// the temp key directory is removed. Safe to call on a partially-built
// Resources and safe to call twice.
func (r *Resources) Release() {
	if r == nil {
		return
	}
	if r.Tunnel != nil {
		log.Debug("Killing tunnel process group", "pid", r.Tunnel.Pid())
		r.Tunnel.KillGroup()
		r.Tunnel = nil
	}
	if r.Keys != nil && r.Keys.Dir != "" {
		if err := os.RemoveAll(r.Keys.Dir); err != nil {
			log.Debug("Failed to remove session key dir", "dir", r.Keys.Dir, "error", err)
		}
		r.Keys = nil
	}
}

// staleMSALCachePattern matches the Azure CLI complaining about an expired
// refresh token in its MSAL cache. Waiting cannot fix it, so the session's
// wait is aborted immediately instead of timing out.
var staleMSALCachePattern = regexp.MustCompile(`AADSTS700082|The refresh token has expired|re-authenticate`)

const (
	tunnelReadyTimeout = 60 * time.Second
	portRangeBase      = 40000
	portRangeSize      = 20000
	portBindRetries    = 5
)

// Setup provisions the provider-specific session resources: the ephemeral
// key material for every kind, plus the background Bastion tunnel for Azure.
// cancel aborts the orchestrator's in-flight waits when live tunnel output
// shows an unrecoverable condition.
func (c *Capabilities) Setup(ctx context.Context, cancel context.CancelCauseFunc, request *schema.ProvisionedRequest) (*Resources, error) {
	dir, err := os.MkdirTemp("", "grant-session-")
	if err != nil {
		return nil, fmt.Errorf("failed to create session temp dir: %w", err)
	}

	res := &Resources{}

	keys, err := GenerateKeyMaterial(dir, request.Permission.InstanceID, request.Permission.HostPublicKey)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	res.Keys = keys

	if c.Config.Kind == KindAzureBastion {
		if err := c.startBastionTunnel(ctx, cancel, request, res); err != nil {
			res.Release()
			return nil, err
		}
	}

	return res, nil
}

// startBastionTunnel launches `az network bastion tunnel` on a random local
// port, retrying on bind failures, and blocks until the tunnel reports ready.
// No two sessions race for the same port because selection is random with
// bounded retry, not coordinated.
func (c *Capabilities) startBastionTunnel(ctx context.Context, cancel context.CancelCauseFunc, request *schema.ProvisionedRequest, res *Resources) error {
	readyPattern := regexp.MustCompile(`Tunnel is ready`)
	if len(c.Patterns.ValidAccess) > 0 {
		readyPattern = c.Patterns.ValidAccess[0]
	}

	var lastErr error
	for attempt := 0; attempt < portBindRetries; attempt++ {
		port, err := randomFreePort()
		if err != nil {
			lastErr = err
			continue
		}

		args := make([]string, 0, len(c.Config.ProxyCommand)+2)
		for _, tok := range c.Config.ProxyCommand[1:] {
			tok = strings.ReplaceAll(tok, "%h", request.Permission.InstanceID)
			tok = strings.ReplaceAll(tok, "%p", "22")
			args = append(args, tok)
		}
		args = append(args, "--port", strconv.Itoa(port))

		handle, err := proc.Spawn(ctx, &proc.Spec{
			Command:      c.Config.ProxyCommand[0],
			Args:         args,
			SetPgid:      true,
			StderrFilter: func(string) bool { return false },
		})
		if err != nil {
			return err
		}

		ready, err := awaitTunnelReady(ctx, cancel, handle, readyPattern)
		if err != nil {
			handle.KillGroup()
			return err
		}
		if ready {
			res.Tunnel = handle
			res.LocalPort = port
			log.Debug("Bastion tunnel ready", "port", port)
			return nil
		}

		// The tunnel died before signalling ready; assume a port clash and
		// pick another.
		handle.KillGroup()
		code, _ := handle.Wait()
		lastErr = fmt.Errorf("bastion tunnel exited with code %d before becoming ready", code)
	}

	return fmt.Errorf("failed to establish bastion tunnel: %w", lastErr)
}

// awaitTunnelReady watches the tunnel's stderr for the ready signal. A stale
// MSAL cache signature aborts the session's waits through cancel rather than
// letting them time out naturally.
func awaitTunnelReady(ctx context.Context, cancel context.CancelCauseFunc, handle *proc.Handle, readyPattern *regexp.Regexp) (bool, error) {
	deadline := time.NewTimer(tunnelReadyTimeout)
	defer deadline.Stop()

	for {
		select {
		case line, ok := <-handle.Stderr():
			if !ok {
				return false, nil
			}
			if staleMSALCachePattern.MatchString(line.Text) {
				err := fmt.Errorf("%w: the Azure CLI token cache is stale", errUtils.ErrLoginRequired)
				if cancel != nil {
					cancel(err)
				}
				return false, err
			}
			if readyPattern.MatchString(line.Text) {
				return true, nil
			}

		case <-deadline.C:
			return false, fmt.Errorf("bastion tunnel did not become ready within %s", tunnelReadyTimeout)

		case <-ctx.Done():
			return false, context.Cause(ctx)
		}
	}
}

// randomFreePort picks a random high port and verifies it binds.
func randomFreePort() (int, error) {
	port := portRangeBase + rand.Intn(portRangeSize)
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return 0, err
	}
	_ = l.Close()
	return port, nil
}
