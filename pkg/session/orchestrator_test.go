package session

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errUtils "github.com/cloudposse/grant/errors"
	"github.com/cloudposse/grant/pkg/api"
	"github.com/cloudposse/grant/pkg/provider"
	"github.com/cloudposse/grant/pkg/schema"
)

func testResources(t *testing.T) *provider.Resources {
	t.Helper()
	keys, err := provider.GenerateKeyMaterial(t.TempDir(), "i-0abc", "ssh-ed25519 AAAA")
	require.NoError(t, err)
	return &provider.Resources{Keys: keys}
}

func resolveNamed(cfg *schema.GrantConfiguration, name string) (*provider.Capabilities, error) {
	return provider.Resolve(name, cfg)
}

type fakeBackend struct {
	submitted  *schema.ProvisionedRequest
	submitErr  error
	startDelay time.Duration

	mu    sync.Mutex
	audit []string
}

func (f *fakeBackend) SubmitAccessRequest(_ context.Context, _ *schema.AccessRequest) (*schema.ProvisionedRequest, error) {
	return f.submitted, f.submitErr
}

func (f *fakeBackend) GetAccessRequest(_ context.Context, _ string) (*schema.ProvisionedRequest, error) {
	return f.submitted, nil
}

func (f *fakeBackend) AuditSessionStart(_ context.Context, _ *api.SessionEvent) error {
	time.Sleep(f.startDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audit = append(f.audit, "start")
	return nil
}

func (f *fakeBackend) AuditSessionEnd(_ context.Context, _ *api.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audit = append(f.audit, "end")
	return nil
}

func (f *fakeBackend) auditOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.audit...)
}

func (f *fakeBackend) startCount() int { return f.countAudit("start") }
func (f *fakeBackend) endCount() int   { return f.countAudit("end") }

func (f *fakeBackend) countAudit(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.audit {
		if e == kind {
			n++
		}
	}
	return n
}

func TestRun_UnknownProviderRejected(t *testing.T) {
	o := testOrchestrator(testSessionConfig())

	err := o.Run(context.Background(), &Request{Tool: ToolSSH, Provider: "nope", Resource: "i-0abc"})
	assert.ErrorIs(t, err, errUtils.ErrUnknownProvider)
}

func TestRun_DryRunPrintsCommandWithoutSpawning(t *testing.T) {
	cfg := testSessionConfig()
	backend := &fakeBackend{
		submitted: &schema.ProvisionedRequest{
			ID:     "req-1",
			Status: schema.StatusDone,
			Permission: schema.Permission{
				InstanceID:    "i-0abc",
				LinuxUserName: "ops",
			},
		},
	}

	var out bytes.Buffer
	o := &Orchestrator{Client: backend, Config: cfg, DryRun: true, Progress: &out}

	err := o.Run(context.Background(), &Request{Tool: ToolSSH, Provider: "aws", Resource: "i-0abc"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "ssh ")
	assert.Contains(t, out.String(), "ops@i-0abc")
	assert.Zero(t, backend.startCount())
}

func TestRun_PreexistingAccessSkipsWaitMessage(t *testing.T) {
	cfg := testSessionConfig()
	backend := &fakeBackend{
		submitted: &schema.ProvisionedRequest{
			ID:            "req-1",
			IsPreexisting: true,
			Status:        schema.StatusPending,
			Permission: schema.Permission{
				InstanceID:    "i-0abc",
				LinuxUserName: "ops",
			},
		},
	}

	var out bytes.Buffer
	o := &Orchestrator{Client: backend, Config: cfg, DryRun: true, Progress: &out}

	err := o.Run(context.Background(), &Request{Tool: ToolSSH, Provider: "aws", Resource: "i-0abc"})
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "approved")
}

func TestRun_DeniedRequestRejects(t *testing.T) {
	cfg := testSessionConfig()
	backend := &fakeBackend{
		submitted: &schema.ProvisionedRequest{ID: "req-1", Status: schema.StatusNew},
	}
	feed := api.NewFeed(nil)

	o := &Orchestrator{Client: backend, Feed: feed, Config: cfg, Progress: &bytes.Buffer{}}

	go func() {
		time.Sleep(50 * time.Millisecond)
		feed.Dispatch(api.StatusUpdate{RequestID: "req-1", Status: schema.StatusDenied})
	}()

	err := o.Run(context.Background(), &Request{Tool: ToolSSH, Provider: "aws", Resource: "i-0abc"})
	assert.ErrorIs(t, err, errUtils.ErrAccessDenied)
}

func TestRun_DryRunRsyncRoutesSSHFlags(t *testing.T) {
	cfg := testSessionConfig()
	backend := &fakeBackend{
		submitted: &schema.ProvisionedRequest{
			ID:     "req-1",
			Status: schema.StatusDone,
			Permission: schema.Permission{
				InstanceID:    "i-0abc",
				LinuxUserName: "ops",
			},
		},
	}

	var out bytes.Buffer
	o := &Orchestrator{Client: backend, Config: cfg, DryRun: true, Progress: &out}

	err := o.Run(context.Background(), &Request{
		Tool:        ToolRsync,
		Provider:    "aws",
		Resource:    "i-0abc",
		Source:      "./local",
		Destination: "i-0abc:/tmp/remote",
		Sudo:        true,
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "rsync")
	assert.Contains(t, out.String(), "--rsync-path")
}

func TestBuildProbeSpec_BatchModeNonInteractive(t *testing.T) {
	cfg := testSessionConfig()
	caps := resolveTestProvider(t, cfg)

	provisioned := &schema.ProvisionedRequest{
		Permission: schema.Permission{InstanceID: "i-0abc", LinuxUserName: "ops"},
	}
	opts := buildOptions(caps, provisioned, testResources(t), &Request{Tool: ToolSSH})

	probe := buildProbeSpec(opts)
	assert.Equal(t, "ssh", probe.Command)
	assert.False(t, probe.Interactive)
	assert.True(t, probe.CaptureStdout)
	assert.Contains(t, probe.Args, "BatchMode=yes")
	assert.Equal(t, `"true"`, probe.Args[len(probe.Args)-1])
}

func TestBuildSpec_SessionsInheritTerminalIO(t *testing.T) {
	cfg := testSessionConfig()
	caps := resolveTestProvider(t, cfg)

	provisioned := &schema.ProvisionedRequest{
		Permission: schema.Permission{InstanceID: "i-0abc", LinuxUserName: "ops"},
	}

	requests := []*Request{
		{Tool: ToolSSH, RemoteCommand: []string{"uptime"}},
		{Tool: ToolSCP, Source: "i-0abc:/var/log/syslog", Destination: "./syslog"},
		{Tool: ToolRsync, Source: "./local", Destination: "i-0abc:/tmp/remote"},
	}
	for _, req := range requests {
		opts := buildOptions(caps, provisioned, testResources(t), req)
		spec, err := buildSpec(req, opts)
		require.NoError(t, err, req.Tool)
		assert.True(t, spec.Interactive, req.Tool)
		assert.False(t, spec.CaptureStdout, req.Tool)
	}
}

func TestBuildOptions_TunnelEndpointPinsHostKeyAlias(t *testing.T) {
	cfg := testSessionConfig()
	azure := schema.Provider{
		Kind:         "azure/bastion",
		ProxyCommand: []string{"az", "network", "bastion", "tunnel"},
	}
	cfg.Providers["azure"] = azure

	caps, err := resolveNamed(cfg, "azure")
	require.NoError(t, err)

	provisioned := &schema.ProvisionedRequest{
		Permission: schema.Permission{InstanceID: "i-0abc", HostPublicKey: "ssh-ed25519 AAAA"},
	}
	res := testResources(t)
	res.LocalPort = 40123

	opts := buildOptions(caps, provisioned, res, &Request{Tool: ToolSSH})
	assert.Equal(t, "localhost", opts.Instance)
	assert.Equal(t, 40123, opts.Port)
	assert.Equal(t, "i-0abc", opts.HostKeyAlias)
}
