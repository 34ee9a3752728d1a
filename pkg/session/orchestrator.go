// Package session orchestrates one end-to-end access session: submit the
// access request, wait for provisioning, acquire credentials, set up
// provider resources, run the subprocess under the propagation guard, audit,
// and tear everything down on every exit path.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/google/uuid"

	errUtils "github.com/cloudposse/grant/errors"
	"github.com/cloudposse/grant/pkg/api"
	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/proc"
	"github.com/cloudposse/grant/pkg/provider"
	"github.com/cloudposse/grant/pkg/provision"
	"github.com/cloudposse/grant/pkg/schema"
	"github.com/cloudposse/grant/pkg/sshcmd"
)

// Tool names accepted by Request.Tool.
const (
	ToolSSH   = "ssh"
	ToolSCP   = "scp"
	ToolRsync = "rsync"
)

// Backend is the slice of the Grant Pro API the orchestrator needs.
// *api.APIClient satisfies it.
type Backend interface {
	SubmitAccessRequest(ctx context.Context, dto *schema.AccessRequest) (*schema.ProvisionedRequest, error)
	GetAccessRequest(ctx context.Context, id string) (*schema.ProvisionedRequest, error)
	AuditSessionStart(ctx context.Context, event *api.SessionEvent) error
	AuditSessionEnd(ctx context.Context, event *api.SessionEvent) error
}

// Request is one user-initiated session: what tool to run against which
// resource, plus the passthrough flags collected by the CLI layer.
type Request struct {
	Tool     string
	Provider string
	Resource string
	Reason   string
	Duration time.Duration

	// RemoteCommand is the command to run instead of an interactive shell
	// (ssh only).
	RemoteCommand []string

	// Source and Destination are the transfer endpoints (scp and rsync).
	Source      string
	Destination string

	// ExtraFlags are passthrough flags after `--` (rsync only).
	ExtraFlags []string

	IdentityFile string
	SSHOptions   []string
	Port         int
	Sudo         bool
	PreTest      bool
}

// Orchestrator drives the session state machine. One Orchestrator serves many
// sequential sessions; per-session state lives in Run's frame.
type Orchestrator struct {
	Client   Backend
	Feed     provision.Subscriber
	Config   *schema.GrantConfiguration
	Registry *Registry

	// DryRun prints the composed command instead of spawning it.
	DryRun bool

	// Progress is where user-facing progress messages go. Defaults to
	// os.Stderr so they never mix with piped subprocess stdout.
	Progress io.Writer
}

// Run executes one session end to end. It returns nil only when the
// subprocess ended cleanly (or the dry-run/pre-test completed).
func (o *Orchestrator) Run(ctx context.Context, req *Request) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	caps, err := provider.Resolve(req.Provider, o.Config)
	if err != nil {
		return err
	}

	provisioned, err := o.provision(ctx, req)
	if err != nil {
		return err
	}

	if o.DryRun {
		return o.dryRun(caps, provisioned, req)
	}

	env, err := caps.AcquireCredential(ctx, provisioned)
	if err != nil {
		return o.withLoginHint(caps, err)
	}

	// Advisory only: a false answer usually means the agent is still coming
	// up, which the connect loop's retry already covers.
	if !caps.InstanceReachable(ctx, provisioned, env) {
		log.Warn("Instance is not reporting to the provider agent yet", "instance", provisioned.Permission.InstanceID)
	}

	res, err := caps.Setup(ctx, cancel, provisioned)
	if err != nil {
		if cause := unrecoverableCause(ctx); cause != nil {
			err = cause
		}
		return o.withLoginHint(caps, err)
	}
	unregister := o.registry().Register(res.Release)
	defer func() {
		unregister()
		res.Release()
	}()

	opts := buildOptions(caps, provisioned, res, req)
	spec, err := buildSpec(req, opts)
	if err != nil {
		return err
	}
	spec.Env = append(os.Environ(), env...)
	spec.StderrFilter = stderrFilter

	if req.PreTest || o.Config.Session.PreTest {
		probe := buildProbeSpec(opts)
		probe.Env = spec.Env
		probe.StderrFilter = discardStderr
		o.say("Verifying access with a pre-flight probe...")
		if err := o.connect(ctx, caps, probe, nil, true); err != nil {
			return err
		}
	}

	var audit *auditRecorder
	if o.Config.Session.Audit {
		audit = newAuditRecorder(o.Client, api.SessionEvent{
			SessionID: uuid.New().String(),
			RequestID: provisioned.ID,
			Tool:      req.Tool,
			Target:    provisioned.Permission.InstanceID,
		})
		// End is emitted once after the final subprocess exit, not per
		// retry attempt, and only if a start was observed.
		defer audit.End(context.WithoutCancel(ctx))
	}

	return o.connect(ctx, caps, spec, audit, false)
}

// provision submits the access request and waits for the backend to grant
// it. Preexisting and already-granted requests skip the wait entirely.
func (o *Orchestrator) provision(ctx context.Context, req *Request) (*schema.ProvisionedRequest, error) {
	dto := &schema.AccessRequest{
		Resource:        req.Resource,
		Provider:        req.Provider,
		Reason:          req.Reason,
		DurationSeconds: int(req.Duration.Seconds()),
	}

	submitted, err := o.Client.SubmitAccessRequest(ctx, dto)
	if err != nil {
		return nil, err
	}

	if submitted.IsPreexisting || submitted.Status == schema.StatusDone {
		log.Debug("Reusing provisioned access", "request", submitted.ID, "preexisting", submitted.IsPreexisting)
		return submitted, nil
	}

	o.say("Waiting for access request %s to be approved...", submitted.ID)

	waiter := &provision.Waiter{
		Feed:   o.Feed,
		Client: o.Client,
		Window: o.Config.Backend.GrantWindow,
	}
	return waiter.Wait(ctx, submitted.ID)
}

// dryRun composes and prints the command without acquiring credentials or
// spawning anything. Key material is generated so the printed paths are the
// real shape, then discarded.
func (o *Orchestrator) dryRun(caps *provider.Capabilities, provisioned *schema.ProvisionedRequest, req *Request) error {
	dir, err := os.MkdirTemp("", "grant-session-")
	if err != nil {
		return fmt.Errorf("failed to create session temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	keys, err := provider.GenerateKeyMaterial(dir, provisioned.Permission.InstanceID, provisioned.Permission.HostPublicKey)
	if err != nil {
		return err
	}

	opts := buildOptions(caps, provisioned, &provider.Resources{Keys: keys}, req)
	spec, err := buildSpec(req, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(o.progress(), spec.Command+" "+strings.Join(spec.Args, " "))
	return nil
}

// buildOptions assembles the ssh options shared by every tool from the
// provisioned request, the provider endpoint, and the user's flags.
func buildOptions(caps *provider.Capabilities, provisioned *schema.ProvisionedRequest, res *provider.Resources, req *Request) *sshcmd.Options {
	endpoint := caps.Endpoint(provisioned, res)

	opts := &sshcmd.Options{
		User:             provisioned.Permission.LinuxUserName,
		Instance:         endpoint.Host,
		IdentityFile:     res.Keys.PrivateKeyPath,
		KnownHostsFile:   res.Keys.KnownHostsPath,
		ProxyCommand:     endpoint.ProxyCommand,
		Port:             req.Port,
		UserIdentityFile: req.IdentityFile,
		UserOptions:      req.SSHOptions,
		Sudo:             req.Sudo,
	}

	if opts.Port == 0 {
		opts.Port = endpoint.Port
	}

	// Tunneled sessions connect to localhost; pin the host key under the
	// instance alias so verification still binds to the real target.
	if opts.KnownHostsFile != "" && endpoint.Host != provisioned.Permission.InstanceID {
		opts.HostKeyAlias = provisioned.Permission.InstanceID
	}

	return opts
}

// buildSpec composes the tool invocation. Every real session inherits the
// user's stdin and stdout: remote command output, transfer listings, and
// rsync progress all belong on the terminal. Only pre-flight probes capture.
func buildSpec(req *Request, opts *sshcmd.Options) (*proc.Spec, error) {
	var spec *proc.Spec
	var err error

	switch req.Tool {
	case ToolSSH:
		spec = sshcmd.BuildSSH(opts, req.RemoteCommand)
	case ToolSCP:
		spec, err = sshcmd.BuildSCP(opts, req.Source, req.Destination)
	case ToolRsync:
		spec, err = sshcmd.BuildRsync(opts, req.Source, req.Destination, req.ExtraFlags)
	default:
		return nil, errors.Newf("unknown tool %q", req.Tool)
	}
	if err != nil {
		return nil, err
	}

	spec.Interactive = true
	return spec, nil
}

// buildProbeSpec composes the non-interactive pre-flight probe: a BatchMode
// ssh running `true`, so a denial surfaces as a classifiable stderr line
// instead of hanging on a prompt.
func buildProbeSpec(opts *sshcmd.Options) *proc.Spec {
	probeOpts := *opts
	probeOpts.UserOptions = append(append([]string{}, opts.UserOptions...), "BatchMode=yes")
	probeOpts.Sudo = false

	probe := sshcmd.BuildSSH(&probeOpts, []string{"true"})
	probe.CaptureStdout = true
	return probe
}

func (o *Orchestrator) withLoginHint(caps *provider.Capabilities, err error) error {
	if errors.Is(err, errUtils.ErrLoginRequired) {
		return fmt.Errorf("%w: %s", err, caps.LoginHint())
	}
	return err
}

// unrecoverableCause returns the cancellation cause when the context was
// cancelled for a reason beyond plain cancellation, e.g. the stale MSAL
// cache detector.
func unrecoverableCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

func (o *Orchestrator) registry() *Registry {
	if o.Registry != nil {
		return o.Registry
	}
	return DefaultRegistry()
}

func (o *Orchestrator) progress() io.Writer {
	if o.Progress != nil {
		return o.Progress
	}
	return os.Stderr
}

func (o *Orchestrator) say(format string, a ...any) {
	fmt.Fprintln(o.progress(), color.CyanString(format, a...))
}
