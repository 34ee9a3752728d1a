// Package proc spawns and supervises provider CLI subprocesses, exposing
// their stderr as a live, timestamped line stream.
package proc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	errUtils "github.com/cloudposse/grant/errors"
	log "github.com/cloudposse/grant/pkg/logger"
)

// Spec is the fully-resolved subprocess invocation. Immutable once built;
// retries re-spawn from the same Spec.
type Spec struct {
	Command string
	Args    []string
	Env     []string
	Dir     string

	// Interactive inherits stdin so the user can type into (or pipe data
	// through) the remote session.
	Interactive bool

	// CaptureStdout pipes stdout into an internal buffer instead of the
	// user's terminal. Pre-flight probes use this; real sessions inherit
	// stdout so transfer listings and remote command output reach the user.
	// Stderr is always piped for classification.
	CaptureStdout bool

	// SetPgid starts the process in its own process group so teardown can
	// kill forked children (some provider CLIs fork tunnels).
	SetPgid bool

	// StderrFilter decides whether an intercepted stderr line is re-emitted
	// to the real stderr for the user. Nil re-emits everything.
	StderrFilter func(line string) bool
}

// Line is one stderr line with its offset from process start.
type Line struct {
	Text string
	At   time.Duration
}

// Handle supervises one running subprocess.
type Handle struct {
	cmd     *exec.Cmd
	started time.Time

	stderr chan Line
	stdout bytes.Buffer

	scanDone chan struct{}

	once     sync.Once
	exitCode int
	waitErr  error
}

// ErrKilledBySignal is reported as the Wait error when the subprocess was
// terminated by a signal instead of exiting.
var ErrKilledBySignal = fmt.Errorf("subprocess killed by signal")

// Spawn starts the subprocess described by spec. A spawn failure (command not
// found, permission denied) is returned as an error; it never panics and the
// handle settles exactly once.
func Spawn(ctx context.Context, spec *Spec) (*Handle, error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Dir = spec.Dir

	if spec.Interactive {
		cmd.Stdin = os.Stdin
	}
	if !spec.CaptureStdout {
		cmd.Stdout = os.Stdout
	}

	if spec.SetPgid {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUtils.ErrSpawnFailed, err)
	}

	h := &Handle{
		cmd:      cmd,
		stderr:   make(chan Line, 256),
		scanDone: make(chan struct{}),
	}

	var stdoutPipe io.ReadCloser
	if spec.CaptureStdout {
		stdoutPipe, err = cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errUtils.ErrSpawnFailed, err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", errUtils.ErrSpawnFailed, cmd.String(), err)
	}
	h.started = time.Now()
	log.Debug("Spawned subprocess", "command", cmd.String(), "pid", cmd.Process.Pid)

	var scanners sync.WaitGroup
	scanners.Add(1)
	go func() {
		defer scanners.Done()
		h.scanStderr(stderrPipe, spec.StderrFilter)
	}()

	if stdoutPipe != nil {
		scanners.Add(1)
		go func() {
			defer scanners.Done()
			_, _ = io.Copy(&h.stdout, stdoutPipe)
		}()
	}

	go func() {
		scanners.Wait()
		close(h.stderr)
		close(h.scanDone)
	}()

	return h, nil
}

func (h *Handle) scanStderr(r io.Reader, filter func(string) bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := scanner.Text()
		line := Line{Text: text, At: time.Since(h.started)}

		select {
		case h.stderr <- line:
		default:
			// The classifier fell behind; favor liveness over completeness.
		}

		if filter == nil || filter(text) {
			fmt.Fprintln(os.Stderr, text)
		}
	}
}

// Stderr returns the live stderr line stream. The channel is closed when the
// process's stderr is exhausted.
func (h *Handle) Stderr() <-chan Line {
	return h.stderr
}

// Stdout returns the buffered stdout of a CaptureStdout subprocess after
// Wait has returned.
func (h *Handle) Stdout() string {
	return h.stdout.String()
}

// Pid returns the subprocess pid.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Started returns when the subprocess started.
func (h *Handle) Started() time.Time {
	return h.started
}

// Wait blocks until the subprocess terminates and returns its exit code. A
// signal-killed process reports code -1 wrapped in ErrKilledBySignal. Wait is
// idempotent; concurrent callers observe the same result.
func (h *Handle) Wait() (int, error) {
	h.once.Do(func() {
		err := h.cmd.Wait()
		<-h.scanDone

		if err == nil {
			h.exitCode = 0
			return
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if status, isStatus := exitErr.Sys().(syscall.WaitStatus); isStatus && status.Signaled() {
				h.exitCode = -1
				h.waitErr = fmt.Errorf("%w: %v", ErrKilledBySignal, status.Signal())
				return
			}
			h.exitCode = exitErr.ExitCode()
			return
		}

		h.exitCode = -1
		h.waitErr = err
	})
	return h.exitCode, h.waitErr
}

// KillGroup terminates the subprocess and, when it leads a process group, the
// whole group. Used for teardown of tunnel processes whose CLIs fork further
// children.
func (h *Handle) KillGroup() {
	if h.cmd.Process == nil {
		return
	}
	pid := h.cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid == pid {
		if err := syscall.Kill(-pgid, syscall.SIGTERM); err == nil {
			return
		}
	}
	_ = h.cmd.Process.Kill()
}
