// Package provider implements the per-cloud capability sets: proxy commands,
// stderr signatures, credential acquisition, and session setup/teardown.
package provider

import (
	"context"
	"fmt"
	"strings"

	errUtils "github.com/cloudposse/grant/errors"
	"github.com/cloudposse/grant/pkg/guard"
	"github.com/cloudposse/grant/pkg/schema"
)

// Provider kinds. Dispatch is by tag, not subclassing: one Capabilities
// struct per cloud, selected by the request's provider name.
const (
	KindAWSSSM       = "aws/ssm"
	KindGCPIAP       = "gcp/iap"
	KindAzureBastion = "azure/bastion"
)

// Capabilities bundles everything the orchestrator needs from one cloud
// provider.
type Capabilities struct {
	Name     string
	Config   schema.Provider
	Patterns *guard.Patterns
}

// Resolve looks up the named provider in the CLI config and compiles its
// pattern sets.
func Resolve(name string, grantConfig *schema.GrantConfiguration) (*Capabilities, error) {
	cfg, ok := grantConfig.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUtils.ErrUnknownProvider, name)
	}

	switch cfg.Kind {
	case KindAWSSSM, KindGCPIAP, KindAzureBastion:
	default:
		return nil, fmt.Errorf("%w: provider %q has unsupported kind %q", errUtils.ErrInvalidProviderConfig, name, cfg.Kind)
	}

	if len(cfg.ProxyCommand) == 0 {
		return nil, fmt.Errorf("%w: provider %q has no proxy_command", errUtils.ErrInvalidProviderConfig, name)
	}

	patterns, err := guard.Compile(&cfg)
	if err != nil {
		return nil, err
	}

	return &Capabilities{
		Name:     name,
		Config:   cfg,
		Patterns: patterns,
	}, nil
}

// Endpoint is where ssh should connect once setup ran: either the instance
// through a proxy command, or a local tunnel endpoint.
type Endpoint struct {
	Host         string
	Port         int
	ProxyCommand string
}

// Endpoint resolves the connection endpoint for a provisioned request given
// the setup resources. Azure sessions go through the local Bastion tunnel;
// AWS and GCP wrap the connection in a proxy command.
func (c *Capabilities) Endpoint(request *schema.ProvisionedRequest, res *Resources) Endpoint {
	if c.Config.Kind == KindAzureBastion && res != nil && res.LocalPort != 0 {
		return Endpoint{Host: "localhost", Port: res.LocalPort}
	}
	return Endpoint{
		Host:         request.Permission.InstanceID,
		ProxyCommand: strings.Join(c.Config.ProxyCommand, " "),
	}
}

// AcquireCredential obtains and validates the short-lived session credential
// and returns the environment variables the subprocess needs. The credential
// is scoped to one session and never persisted beyond what the provider CLI
// itself manages.
func (c *Capabilities) AcquireCredential(ctx context.Context, request *schema.ProvisionedRequest) ([]string, error) {
	switch c.Config.Kind {
	case KindAWSSSM:
		return c.awsCredentialEnv(ctx, request)
	case KindGCPIAP:
		return c.gcpCredentialEnv(ctx, request)
	case KindAzureBastion:
		return c.azureCredentialEnv(ctx)
	default:
		return nil, fmt.Errorf("%w: kind %q", errUtils.ErrInvalidProviderConfig, c.Config.Kind)
	}
}

// LoginHint is the provider-specific remediation message shown when the
// guard reports a login requirement.
func (c *Capabilities) LoginHint() string {
	if c.Config.LoginHint != "" {
		return c.Config.LoginHint
	}
	return fmt.Sprintf("your %s session has expired; log in to the provider CLI and try again", c.Name)
}
