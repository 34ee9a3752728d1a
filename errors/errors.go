package errors

import "errors"

// Sentinel errors shared across packages. User-facing messages are built on
// top of these with fmt.Errorf("%w: ...", ...) so callers can classify
// failures with errors.Is.
var (
	// Backend API.
	ErrFailedToCreateRequest     = errors.New("failed to create request")
	ErrFailedToCreateAuthRequest = errors.New("failed to create authenticated request")
	ErrFailedToMakeRequest       = errors.New("failed to make request")
	ErrFailedToReadResponseBody  = errors.New("error reading response body")
	ErrFailedToUnmarshalJSON     = errors.New("error unmarshaling JSON")
	ErrTokenNotSet               = errors.New("token is not set")
	ErrBackend                   = errors.New("the backend encountered an error")
	ErrStream                    = errors.New("update stream error")

	// Provisioning.
	ErrAccessDenied        = errors.New("access request was denied")
	ErrProvisioningTimeout = errors.New("timed out waiting for the access request to be provisioned")

	// Session establishment.
	ErrLoginRequired      = errors.New("cloud provider login required")
	ErrPropagationTimeout = errors.New("access did not propagate in time")
	ErrSpawnFailed        = errors.New("failed to start subprocess")
	ErrSessionFailed      = errors.New("session ended with an error")

	// Command building.
	ErrNoRemotePath        = errors.New("neither source nor destination is a remote path")
	ErrAmbiguousRemotePath = errors.New("both source and destination are remote paths")

	// Configuration.
	ErrInvalidProviderConfig = errors.New("invalid provider configuration")
	ErrUnknownProvider       = errors.New("unknown cloud provider")
	ErrInvalidPattern        = errors.New("invalid stderr classification pattern")
)
