package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errUtils "github.com/cloudposse/grant/errors"
	"github.com/cloudposse/grant/pkg/session"
)

func TestRemoteResource(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		destination string
		want        string
		wantErr     error
	}{
		{
			name:        "remote destination",
			source:      "./local",
			destination: "i-0abc:/tmp/file",
			want:        "i-0abc",
		},
		{
			name:        "remote source",
			source:      "i-0abc:/var/log/app.log",
			destination: "./",
			want:        "i-0abc",
		},
		{
			name:        "both remote",
			source:      "i-0abc:/a",
			destination: "i-0def:/b",
			wantErr:     errUtils.ErrAmbiguousRemotePath,
		},
		{
			name:        "neither remote",
			source:      "./a",
			destination: "./b",
			wantErr:     errUtils.ErrNoRemotePath,
		},
		{
			name:        "escaped colon is local",
			source:      `weird\:name`,
			destination: "i-0abc:/tmp/",
			want:        "i-0abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := remoteResource(tt.source, tt.destination)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionFlagsRequest(t *testing.T) {
	f := sessionFlags{
		provider: "gcp",
		reason:   "incident 4711",
		duration: 2 * time.Hour,
		identity: "~/.ssh/id_ed25519",
		options:  []string{"ForwardAgent=yes"},
		port:     2222,
		sudo:     true,
		preTest:  true,
	}

	req := f.request(session.ToolRsync, "my-vm")
	assert.Equal(t, session.ToolRsync, req.Tool)
	assert.Equal(t, "gcp", req.Provider)
	assert.Equal(t, "my-vm", req.Resource)
	assert.Equal(t, 2*time.Hour, req.Duration)
	assert.Equal(t, []string{"ForwardAgent=yes"}, req.SSHOptions)
	assert.True(t, req.Sudo)
	assert.True(t, req.PreTest)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"ssh", "scp", "rsync", "request", "version"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestSessionCommandsCarrySharedFlags(t *testing.T) {
	for _, c := range []string{"ssh", "scp", "rsync"} {
		cmd, _, err := RootCmd.Find([]string{c})
		require.NoError(t, err)
		for _, flag := range []string{"provider", "reason", "duration", "identity", "ssh-option", "port", "pre-test", "dry-run"} {
			assert.NotNil(t, cmd.Flags().Lookup(flag), "%s missing --%s", c, flag)
		}
	}

	rsync, _, err := RootCmd.Find([]string{"rsync"})
	require.NoError(t, err)
	assert.NotNil(t, rsync.Flags().Lookup("sudo"))
}
