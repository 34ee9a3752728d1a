package sshcmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errUtils "github.com/cloudposse/grant/errors"
)

func testOptions() *Options {
	return &Options{
		User:           "app",
		Instance:       "i-0123456789abcdef0",
		IdentityFile:   "/tmp/grant-keys/id_ed25519",
		KnownHostsFile: "/tmp/grant-keys/known_hosts",
		HostKeyAlias:   "i-0123456789abcdef0",
		ProxyCommand:   "aws ssm start-session --target %h --document-name AWS-StartSSHSession --parameters portNumber=%p",
	}
}

func countArg(args []string, want string) int {
	n := 0
	for _, a := range args {
		if a == want || strings.HasPrefix(a, want) {
			n++
		}
	}
	return n
}

func TestBuildSSH_DefaultFlags(t *testing.T) {
	spec := BuildSSH(testOptions(), nil)

	assert.Equal(t, "ssh", spec.Command)
	assert.Equal(t, 1, countArg(spec.Args, "/tmp/grant-keys/id_ed25519"))
	assert.Equal(t, 1, countArg(spec.Args, "IdentitiesOnly=yes"))
	assert.Equal(t, 1, countArg(spec.Args, "ProxyCommand=aws ssm start-session"))
	assert.Equal(t, 1, countArg(spec.Args, "UserKnownHostsFile="))
	assert.Equal(t, 1, countArg(spec.Args, "HostKeyAlias="))
	assert.Contains(t, spec.Args, "-v")
	assert.Equal(t, "app@i-0123456789abcdef0", spec.Args[len(spec.Args)-1])
}

func TestBuildSSH_UserIdentitySuppressesDefaults(t *testing.T) {
	o := testOptions()
	o.UserIdentityFile = "~/.ssh/my_key"

	spec := BuildSSH(o, nil)

	assert.Equal(t, 1, countArg(spec.Args, "~/.ssh/my_key"))
	assert.Equal(t, 0, countArg(spec.Args, "/tmp/grant-keys/id_ed25519"))
	assert.Equal(t, 0, countArg(spec.Args, "IdentitiesOnly=yes"))
}

func TestBuildSSH_UserOptionSuppressesEquivalentDefault(t *testing.T) {
	o := testOptions()
	o.UserOptions = []string{"UserKnownHostsFile=/dev/null"}

	spec := BuildSSH(o, nil)

	assert.Equal(t, 1, countArg(spec.Args, "UserKnownHostsFile="))
	assert.Contains(t, spec.Args, "UserKnownHostsFile=/dev/null")
}

func TestBuildSSH_RemoteCommandArgsAreQuoted(t *testing.T) {
	spec := BuildSSH(testOptions(), []string{"echo", `say "hi"`})

	assert.Equal(t, `"echo"`, spec.Args[len(spec.Args)-2])
	assert.Equal(t, `"say \"hi\""`, spec.Args[len(spec.Args)-1])
}

func TestBuildSCP_Flags(t *testing.T) {
	spec, err := BuildSCP(testOptions(), "local/file.txt", "i-0123456789abcdef0:/var/tmp/file.txt")
	require.NoError(t, err)

	assert.Equal(t, "scp", spec.Command)
	assert.Contains(t, spec.Args, "-r")
	assert.Equal(t, 1, countArg(spec.Args, "ServerAliveCountMax=3"))
	assert.Equal(t, 1, countArg(spec.Args, "ServerAliveInterval=300"))

	// The remote side's host is substituted with user@instance.
	assert.Equal(t, "local/file.txt", spec.Args[len(spec.Args)-2])
	assert.Equal(t, "app@i-0123456789abcdef0:/var/tmp/file.txt", spec.Args[len(spec.Args)-1])
}

func TestBuildSCP_BothRemoteFailsBeforeSpawn(t *testing.T) {
	_, err := BuildSCP(testOptions(), "hostA:/a", "hostB:/b")
	require.Error(t, err)
	assert.ErrorIs(t, err, errUtils.ErrAmbiguousRemotePath)
}

func TestBuildSCP_NeitherRemoteFailsBeforeSpawn(t *testing.T) {
	_, err := BuildSCP(testOptions(), "/a", "./b")
	require.Error(t, err)
	assert.ErrorIs(t, err, errUtils.ErrNoRemotePath)
}

func TestIsRemotePath(t *testing.T) {
	assert.True(t, isRemotePath("host:/path"))
	assert.True(t, isRemotePath("i-0abc:relative/path"))
	assert.False(t, isRemotePath("/local/path"))
	assert.False(t, isRemotePath("./relative"))
	assert.False(t, isRemotePath(`weird\:file`))
}

func TestBuildRsync_RoutesSSHFlagsIntoDashE(t *testing.T) {
	o := testOptions()
	o.Sudo = true

	spec, err := BuildRsync(o, "local/path", "i-0123456789abcdef0:remote/path",
		[]string{"-az", "--delete", "-o", "StrictHostKeyChecking=no", "-P", "2222"})
	require.NoError(t, err)

	assert.Equal(t, "rsync", spec.Command)

	// rsync-only flags stay on the rsync command line.
	assert.Contains(t, spec.Args, "-az")
	assert.Contains(t, spec.Args, "--delete")
	assert.NotContains(t, spec.Args, "StrictHostKeyChecking=no")

	// ssh flags end up inside the -e command string, shell-escaped.
	var eValue string
	for i, a := range spec.Args {
		if a == "-e" {
			eValue = spec.Args[i+1]
		}
	}
	require.NotEmpty(t, eValue)
	assert.True(t, strings.HasPrefix(eValue, "ssh "))
	assert.Contains(t, eValue, "StrictHostKeyChecking=no")
	assert.Contains(t, eValue, "-p 2222")
	assert.Contains(t, eValue, "IdentitiesOnly=yes")

	// --sudo adds the rsync-path exactly once.
	assert.Equal(t, 1, countArg(spec.Args, "--rsync-path"))
	assert.Contains(t, spec.Args, "sudo rsync")

	assert.Equal(t, "app@i-0123456789abcdef0:remote/path", spec.Args[len(spec.Args)-1])
}

func TestBuildRsync_UserRsyncPathSuppressesSudoDefault(t *testing.T) {
	o := testOptions()
	o.Sudo = true

	spec, err := BuildRsync(o, "local/path", "host:remote/path",
		[]string{"--rsync-path=/opt/bin/rsync"})
	require.NoError(t, err)

	assert.Equal(t, 1, countArg(spec.Args, "--rsync-path"))
	assert.NotContains(t, spec.Args, "sudo rsync")
}
