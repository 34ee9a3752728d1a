package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	errUtils "github.com/cloudposse/grant/errors"
	"github.com/cloudposse/grant/pkg/session"
)

// sessionFlags are the flags shared by every session command.
type sessionFlags struct {
	provider string
	reason   string
	duration time.Duration
	identity string
	options  []string
	port     int
	sudo     bool
	preTest  bool
	dryRun   bool
}

func addSessionFlags(cmd *cobra.Command, f *sessionFlags) {
	cmd.Flags().StringVar(&f.provider, "provider", "aws", "Cloud provider to establish the session through (aws, gcp, azure)")
	cmd.Flags().StringVar(&f.reason, "reason", "", "Reason for the access request, shown to approvers")
	cmd.Flags().DurationVar(&f.duration, "duration", 0, "Requested access duration, e.g. 1h (the backend may cap it)")
	cmd.Flags().StringVarP(&f.identity, "identity", "i", "", "Use this identity file instead of the generated session key")
	cmd.Flags().StringArrayVarP(&f.options, "ssh-option", "o", nil, "Additional ssh -o option as Key=Value (repeatable)")
	cmd.Flags().IntVar(&f.port, "port", 0, "Remote port to connect to")
	cmd.Flags().BoolVar(&f.preTest, "pre-test", false, "Verify access with a non-interactive probe before the real session")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print the composed command instead of running it")
}

func (f *sessionFlags) request(tool, resource string) *session.Request {
	return &session.Request{
		Tool:         tool,
		Provider:     f.provider,
		Resource:     resource,
		Reason:       f.reason,
		Duration:     f.duration,
		IdentityFile: f.identity,
		SSHOptions:   f.options,
		Port:         f.port,
		Sudo:         f.sudo,
		PreTest:      f.preTest,
	}
}

// runSession wires the backend client and update feed, then drives one
// session end to end.
func runSession(ctx context.Context, req *session.Request, f *sessionFlags) error {
	o, feed, err := newOrchestrator(f.dryRun)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feed.Start(ctx)
	defer feed.Stop()

	return o.Run(ctx, req)
}

// remoteResource extracts the instance from the one remote transfer endpoint
// (`host:path` with an unescaped colon). Zero or two remote endpoints is a
// user-input error raised before anything is submitted.
func remoteResource(source, destination string) (string, error) {
	srcHost, srcRemote := remoteHost(source)
	dstHost, dstRemote := remoteHost(destination)

	switch {
	case srcRemote && dstRemote:
		return "", fmt.Errorf("%w: %q and %q", errUtils.ErrAmbiguousRemotePath, source, destination)
	case srcRemote:
		return srcHost, nil
	case dstRemote:
		return dstHost, nil
	default:
		return "", fmt.Errorf("%w: %q and %q", errUtils.ErrNoRemotePath, source, destination)
	}
}

func remoteHost(path string) (string, bool) {
	host, _, found := strings.Cut(path, ":")
	if !found || host == "" {
		return "", false
	}
	if strings.ContainsAny(host, `/\`) {
		return "", false
	}
	return host, true
}
