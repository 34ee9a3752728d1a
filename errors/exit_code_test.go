package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, 0, GetExitCode(nil))
	assert.Equal(t, 1, GetExitCode(fmt.Errorf("plain failure")))
}

func TestWithExitCode_SurvivesWrapping(t *testing.T) {
	err := WithExitCode(fmt.Errorf("%w: exit status 3", ErrSessionFailed), 3)
	wrapped := fmt.Errorf("session: %w", err)

	assert.Equal(t, 3, GetExitCode(wrapped))
	assert.ErrorIs(t, wrapped, ErrSessionFailed)
}

func TestWithExitCode_NilPassesThrough(t *testing.T) {
	assert.NoError(t, WithExitCode(nil, 7))
}
