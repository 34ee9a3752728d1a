package config

import (
	"time"

	"github.com/cloudposse/grant/pkg/schema"
)

// defaultCliConfig is merged in when no `grant.yaml` is found anywhere.
//
// The provider pattern sets below track the output of specific provider CLI
// versions. They are configuration, not code: when a provider CLI changes its
// error text, users can override these in `grant.yaml` without a new release.
var defaultCliConfig = schema.GrantConfiguration{
	Default: true,
	Backend: schema.Backend{
		BaseURL:         GrantDefaultBaseURL,
		BaseAPIEndpoint: GrantDefaultEndpoint,
		Timeout:         30 * time.Second,
		GrantWindow:     60 * time.Second,
	},
	Session: schema.Session{
		RetryDelay:       5 * time.Second,
		ValidationWindow: 5 * time.Second,
		Audit:            true,
	},
	Retry: schema.RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFactor:   0.1,
		MaxElapsedTime: 2 * time.Minute,
	},
	Logs: schema.Logs{
		File:  "/dev/stderr",
		Level: "Info",
	},
	Providers: map[string]schema.Provider{
		"aws": {
			Kind: "aws/ssm",
			ProxyCommand: []string{
				"aws", "ssm", "start-session",
				"--target", "%h",
				"--document-name", "AWS-StartSSHSession",
				"--parameters", "portNumber=%p",
			},
			UnprovisionedAccessPatterns: []string{
				`An error occurred \(AccessDeniedException\) when calling the StartSession operation`,
				`is not authorized to perform: ssm:StartSession`,
				`An error occurred \(TargetNotConnected\) when calling the StartSession operation`,
			},
			ValidAccessPatterns: []string{
				`Starting session with SessionId`,
			},
			LoginRequiredPattern: `(The SSO session associated with this profile has expired|Error when retrieving token from sso|ExpiredTokenException)`,
			AuthSuccessPattern:   `Authenticated to .+ using`,
			LoginHint:            "your AWS session has expired; run `aws sso login` and try again",
			PropagationTimeout:   90 * time.Second,
		},
		"gcp": {
			Kind: "gcp/iap",
			ProxyCommand: []string{
				"gcloud", "compute", "start-iap-tunnel",
				"%h", "%p",
				"--listen-on-stdin",
			},
			UnprovisionedAccessPatterns: []string{
				`Error while connecting \[4033: 'not authorized'\]`,
				`Permission denied \(or the resource may not exist\)`,
			},
			ValidAccessPatterns: []string{
				`Listening on stdin`,
			},
			LoginRequiredPattern: `(Reauthentication required|You do not currently have an active account selected|Your credentials have expired)`,
			AuthSuccessPattern:   `Authenticated to .+ using`,
			LoginHint:            "your Google Cloud session has expired; run `gcloud auth login` and try again",
			PropagationTimeout:   120 * time.Second,
		},
		"azure": {
			Kind: "azure/bastion",
			ProxyCommand: []string{
				"az", "network", "bastion", "tunnel",
				"--target-resource-id", "%h",
				"--resource-port", "%p",
			},
			UnprovisionedAccessPatterns: []string{
				`AuthorizationFailed`,
				`does not have authorization to perform action`,
			},
			ValidAccessPatterns: []string{
				`Tunnel is ready`,
			},
			LoginRequiredPattern: `(Please run 'az login'|AADSTS700082|The refresh token has expired)`,
			AuthSuccessPattern:   `Authenticated to .+ using`,
			LoginHint:            "your Azure session has expired; run `az login` and try again",
			PropagationTimeout:   180 * time.Second,
		},
	},
}
