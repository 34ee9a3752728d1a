package proc

import (
	"context"
	"io"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errUtils "github.com/cloudposse/grant/errors"
)

func TestSpawn_CommandNotFound(t *testing.T) {
	_, err := Spawn(context.Background(), &Spec{Command: "definitely-not-a-real-command-xyz"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errUtils.ErrSpawnFailed)
}

func TestWait_ExitCode(t *testing.T) {
	h, err := Spawn(context.Background(), &Spec{
		Command: "sh",
		Args:    []string{"-c", "exit 42"},
	})
	require.NoError(t, err)

	code, waitErr := h.Wait()
	assert.NoError(t, waitErr)
	assert.Equal(t, 42, code)
}

func TestWait_Idempotent(t *testing.T) {
	h, err := Spawn(context.Background(), &Spec{
		Command: "sh",
		Args:    []string{"-c", "exit 7"},
	})
	require.NoError(t, err)

	code1, _ := h.Wait()
	code2, _ := h.Wait()
	assert.Equal(t, code1, code2)
	assert.Equal(t, 7, code1)
}

func TestStderr_LinesCarryOffsets(t *testing.T) {
	h, err := Spawn(context.Background(), &Spec{
		Command:      "sh",
		Args:         []string{"-c", "echo first >&2; sleep 0.1; echo second >&2"},
		StderrFilter: func(string) bool { return false },
	})
	require.NoError(t, err)

	var lines []Line
	for line := range h.Stderr() {
		lines = append(lines, line)
	}
	_, waitErr := h.Wait()
	require.NoError(t, waitErr)

	require.Len(t, lines, 2)
	assert.Equal(t, "first", lines[0].Text)
	assert.Equal(t, "second", lines[1].Text)
	assert.GreaterOrEqual(t, lines[1].At, lines[0].At)
}

func TestStdout_CapturedWhenRequested(t *testing.T) {
	h, err := Spawn(context.Background(), &Spec{
		Command:       "sh",
		Args:          []string{"-c", "echo hello"},
		CaptureStdout: true,
		StderrFilter:  func(string) bool { return false },
	})
	require.NoError(t, err)

	_, waitErr := h.Wait()
	require.NoError(t, waitErr)
	assert.Equal(t, "hello", strings.TrimSpace(h.Stdout()))
}

func TestStdout_InheritedByDefault(t *testing.T) {
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	h, err := Spawn(context.Background(), &Spec{
		Command:      "sh",
		Args:         []string{"-c", "echo remote output"},
		StderrFilter: func(string) bool { return false },
	})
	require.NoError(t, err)

	_, waitErr := h.Wait()
	w.Close()
	os.Stdout = orig
	require.NoError(t, waitErr)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "remote output", strings.TrimSpace(string(out)))
	assert.Empty(t, h.Stdout())
}

func TestWait_KilledBySignal(t *testing.T) {
	h, err := Spawn(context.Background(), &Spec{
		Command:      "sh",
		Args:         []string{"-c", "sleep 10"},
		StderrFilter: func(string) bool { return false },
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(h.Pid(), syscall.SIGTERM))

	code, waitErr := h.Wait()
	assert.Equal(t, -1, code)
	assert.ErrorIs(t, waitErr, ErrKilledBySignal)
}

func TestKillGroup_TerminatesProcessGroup(t *testing.T) {
	h, err := Spawn(context.Background(), &Spec{
		Command:      "sh",
		Args:         []string{"-c", "sleep 10 & wait"},
		SetPgid:      true,
		StderrFilter: func(string) bool { return false },
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	h.KillGroup()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process group was not terminated")
	}
}
