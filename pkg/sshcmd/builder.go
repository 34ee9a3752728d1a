// Package sshcmd assembles concrete ssh, scp and rsync invocations from a
// provisioned session, a provider's proxy command, and user-supplied flags.
package sshcmd

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"

	errUtils "github.com/cloudposse/grant/errors"
	"github.com/cloudposse/grant/pkg/proc"
)

// Options carries everything the builder needs. User-supplied values win over
// defaults: a default flag is only appended when no equivalent option is
// already present.
type Options struct {
	User           string
	Instance       string
	IdentityFile   string
	KnownHostsFile string
	HostKeyAlias   string
	ProxyCommand   string
	Port           int

	// UserIdentityFile is a user-supplied -i. When set, the default identity
	// file and IdentitiesOnly are both suppressed.
	UserIdentityFile string

	// UserOptions are user-supplied -o values ("Key=Value").
	UserOptions []string

	// Sudo requests `--rsync-path "sudo rsync"` for rsync transfers.
	Sudo bool
}

// hasOption reports whether the user already supplied an -o option with the
// given key, so defaults never duplicate or conflict.
func hasOption(userOptions []string, key string) bool {
	for _, opt := range userOptions {
		k, _, _ := strings.Cut(opt, "=")
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return true
		}
	}
	return false
}

// commonSSHArgs builds the flag set shared by ssh and scp: identity file,
// IdentitiesOnly, proxy command, known-hosts pinning, host-key alias, and a
// forced verbose flag so the propagation guard can parse the output.
func (o *Options) commonSSHArgs() []string {
	var args []string

	if o.UserIdentityFile != "" {
		args = append(args, "-i", o.UserIdentityFile)
	} else if o.IdentityFile != "" {
		args = append(args, "-i", o.IdentityFile)
		if !hasOption(o.UserOptions, "IdentitiesOnly") {
			args = append(args, "-o", "IdentitiesOnly=yes")
		}
	}

	if o.ProxyCommand != "" && !hasOption(o.UserOptions, "ProxyCommand") {
		args = append(args, "-o", "ProxyCommand="+o.ProxyCommand)
	}
	if o.KnownHostsFile != "" && !hasOption(o.UserOptions, "UserKnownHostsFile") {
		args = append(args, "-o", "UserKnownHostsFile="+o.KnownHostsFile)
	}
	if o.HostKeyAlias != "" && !hasOption(o.UserOptions, "HostKeyAlias") {
		args = append(args, "-o", "HostKeyAlias="+o.HostKeyAlias)
	}

	for _, opt := range o.UserOptions {
		args = append(args, "-o", opt)
	}

	// Verbose is forced: authentication banners and proxy errors only appear
	// at -v, and session classification depends on them.
	args = append(args, "-v")

	return args
}

func (o *Options) target() string {
	if o.User == "" {
		return o.Instance
	}
	return o.User + "@" + o.Instance
}

// BuildSSH produces the ssh invocation. remoteCommand, when non-empty, is
// appended after the target with each argument double-quoted (inner double
// quotes escaped) so the remote shell sees them as written.
func BuildSSH(o *Options, remoteCommand []string) *proc.Spec {
	args := o.commonSSHArgs()

	if o.Port != 0 {
		args = append(args, "-p", strconv.Itoa(o.Port))
	}

	args = append(args, o.target())

	for _, arg := range remoteCommand {
		args = append(args, quoteRemoteArg(arg))
	}

	return &proc.Spec{Command: "ssh", Args: args}
}

func quoteRemoteArg(arg string) string {
	return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
}

// remotePathPattern detects an unescaped leading `host:` component.
var remotePathPattern = regexp.MustCompile(`^[^/\\]+:`)

// isRemotePath reports whether the path addresses the remote side. A colon
// escaped as `\:` does not count.
func isRemotePath(path string) bool {
	host, _, found := strings.Cut(path, ":")
	if !found {
		return false
	}
	if strings.Contains(host, "\\") {
		return false
	}
	return remotePathPattern.MatchString(path)
}

// resolveEndpoints validates that exactly one of source/destination is remote
// and substitutes the session target for the remote side's host. The check
// runs before any subprocess is spawned.
func (o *Options) resolveEndpoints(source, destination string) (string, string, error) {
	sourceRemote := isRemotePath(source)
	destinationRemote := isRemotePath(destination)

	switch {
	case sourceRemote && destinationRemote:
		return "", "", fmt.Errorf("%w: %q and %q", errUtils.ErrAmbiguousRemotePath, source, destination)
	case !sourceRemote && !destinationRemote:
		return "", "", fmt.Errorf("%w: %q and %q", errUtils.ErrNoRemotePath, source, destination)
	case sourceRemote:
		return o.substituteHost(source), destination, nil
	default:
		return source, o.substituteHost(destination), nil
	}
}

func (o *Options) substituteHost(path string) string {
	_, rest, _ := strings.Cut(path, ":")
	return o.target() + ":" + rest
}

// BuildSCP produces the scp invocation: the common ssh flags plus recursive
// copy and keepalive settings, then the resolved source and destination.
func BuildSCP(o *Options, source, destination string) (*proc.Spec, error) {
	src, dst, err := o.resolveEndpoints(source, destination)
	if err != nil {
		return nil, err
	}

	args := o.commonSSHArgs()

	args = append(args, "-r")
	if !hasOption(o.UserOptions, "ServerAliveCountMax") {
		args = append(args, "-o", "ServerAliveCountMax=3")
	}
	if !hasOption(o.UserOptions, "ServerAliveInterval") {
		args = append(args, "-o", "ServerAliveInterval=300")
	}

	if o.Port != 0 {
		args = append(args, "-P", strconv.Itoa(o.Port))
	}

	args = append(args, src, dst)

	return &proc.Spec{Command: "scp", Args: args}, nil
}

// BuildRsync produces the rsync invocation. Rsync's remote execution goes
// through ssh, so the ssh flags are folded into a fully shell-escaped command
// string passed via -e. extraFlags (everything after --) is partitioned:
// recognized ssh flag tokens and their values go into the -e command, the
// remainder goes to rsync itself.
func BuildRsync(o *Options, source, destination string, extraFlags []string) (*proc.Spec, error) {
	src, dst, err := o.resolveEndpoints(source, destination)
	if err != nil {
		return nil, err
	}

	sshFlags, rsyncFlags := partitionFlags(extraFlags)

	sshArgs := o.commonSSHArgs()
	if o.Port != 0 {
		sshArgs = append(sshArgs, "-p", strconv.Itoa(o.Port))
	}
	sshArgs = append(sshArgs, sshFlags...)

	sshCommand := "ssh"
	for _, a := range sshArgs {
		sshCommand += " " + shellescape.Quote(a)
	}

	args := append([]string{}, rsyncFlags...)

	if o.Sudo && !containsFlag(rsyncFlags, "--rsync-path") {
		args = append(args, "--rsync-path", "sudo rsync")
	}

	args = append(args, "-e", sshCommand, src, dst)

	return &proc.Spec{Command: "rsync", Args: args}, nil
}

// sshFlagTokens are the flags routed to the ssh command string along with
// their values.
var sshFlagTokens = map[string]bool{
	"-i": true,
	"-o": true,
	"-p": true,
	"-P": true,
}

func partitionFlags(flags []string) (sshFlags, rsyncFlags []string) {
	for i := 0; i < len(flags); i++ {
		flag := flags[i]
		switch {
		case sshFlagTokens[flag]:
			if flag == "-P" {
				// scp spelling; ssh takes lowercase.
				flag = "-p"
			}
			sshFlags = append(sshFlags, flag)
			if i+1 < len(flags) {
				i++
				sshFlags = append(sshFlags, flags[i])
			}
		case flag == "-v":
			sshFlags = append(sshFlags, flag)
		default:
			rsyncFlags = append(rsyncFlags, flag)
		}
	}
	return sshFlags, rsyncFlags
}

func containsFlag(flags []string, name string) bool {
	for _, f := range flags {
		if f == name || strings.HasPrefix(f, name+"=") {
			return true
		}
	}
	return false
}
