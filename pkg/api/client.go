// Package api implements the client for the Grant Pro backend: access-request
// submission, session audit events, and the NDJSON update stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	errUtils "github.com/cloudposse/grant/errors"
	cfg "github.com/cloudposse/grant/pkg/config"
	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/retry"
	"github.com/cloudposse/grant/pkg/schema"
)

// APIClient represents the client to interact with the Grant Pro API.
type APIClient struct {
	APIToken        string
	BaseAPIEndpoint string
	BaseURL         string
	HTTPClient      *http.Client
	RetryConfig     schema.RetryConfig
}

// NewAPIClient creates a new instance of APIClient.
func NewAPIClient(baseURL, baseAPIEndpoint, apiToken string, retryConfig schema.RetryConfig) *APIClient {
	return &APIClient{
		BaseURL:         baseURL,
		BaseAPIEndpoint: baseAPIEndpoint,
		APIToken:        apiToken,
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
		RetryConfig:     retryConfig,
	}
}

// NewAPIClientFromConfig creates a new APIClient from the CLI config and
// environment variables. The token always comes from the environment.
func NewAPIClientFromConfig(grantConfig *schema.GrantConfiguration) (*APIClient, error) {
	baseURL := os.Getenv(cfg.GrantBaseURLEnvVarName)
	if baseURL == "" {
		baseURL = grantConfig.Backend.BaseURL
	}

	baseAPIEndpoint := os.Getenv(cfg.GrantEndpointEnvVarName)
	if baseAPIEndpoint == "" {
		baseAPIEndpoint = grantConfig.Backend.BaseAPIEndpoint
	}

	apiToken := os.Getenv(cfg.GrantTokenEnvVarName)
	if apiToken == "" {
		return nil, fmt.Errorf("%w: %s", errUtils.ErrTokenNotSet, cfg.GrantTokenEnvVarName)
	}

	return NewAPIClient(baseURL, baseAPIEndpoint, apiToken, grantConfig.Retry), nil
}

func getAuthenticatedRequest(ctx context.Context, c *APIClient, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUtils.ErrFailedToCreateRequest, err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIToken))
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

// retryable reports whether a backend call is worth another attempt: network
// errors and HTTP 429 are, everything else is not.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests
	}
	return errors.Is(err, errUtils.ErrFailedToMakeRequest)
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: %s", errUtils.ErrBackend, e.status)
}

func (e *statusError) Unwrap() error {
	return errUtils.ErrBackend
}

// doJSON performs one authenticated request and decodes a JSON response into
// out (when out is non-nil).
func (c *APIClient) doJSON(ctx context.Context, method, url string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: %w", errUtils.ErrFailedToCreateRequest, err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := getAuthenticatedRequest(ctx, c, method, url, body)
	if err != nil {
		return fmt.Errorf("%w: %w", errUtils.ErrFailedToCreateAuthRequest, err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errUtils.ErrFailedToMakeRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		return &statusError{code: resp.StatusCode, status: resp.Status}
	}

	if out == nil {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", errUtils.ErrFailedToReadResponseBody, err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %w", errUtils.ErrFailedToUnmarshalJSON, err)
	}
	return nil
}

// SubmitAccessRequest submits an access request and returns the backend's
// view of it. A pre-existing grant comes back with IsPreexisting set and a
// terminal status, so callers can skip the provisioning wait.
func (c *APIClient) SubmitAccessRequest(ctx context.Context, dto *schema.AccessRequest) (*schema.ProvisionedRequest, error) {
	url := fmt.Sprintf("%s/%s/access-requests", c.BaseURL, c.BaseAPIEndpoint)
	log.Trace("Submitting access request", "url", url, "resource", dto.Resource, "provider", dto.Provider)

	var result schema.ProvisionedRequest
	err := retry.WithPredicate(ctx, &c.RetryConfig, func() error {
		return c.doJSON(ctx, http.MethodPost, url, dto, &result)
	}, retryable)
	if err != nil {
		return nil, err
	}

	log.Trace("Submitted access request", "id", result.ID, "status", result.Status, "preexisting", result.IsPreexisting)
	return &result, nil
}

// GetAccessRequest fetches the current state of a request by ID.
func (c *APIClient) GetAccessRequest(ctx context.Context, id string) (*schema.ProvisionedRequest, error) {
	url := fmt.Sprintf("%s/%s/access-requests/%s", c.BaseURL, c.BaseAPIEndpoint, id)

	var result schema.ProvisionedRequest
	err := retry.WithPredicate(ctx, &c.RetryConfig, func() error {
		return c.doJSON(ctx, http.MethodGet, url, nil, &result)
	}, retryable)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SessionEvent is the payload for session audit calls.
type SessionEvent struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Event     string `json:"event"`
	Tool      string `json:"tool,omitempty"`
	Target    string `json:"target,omitempty"`
}

// AuditSessionStart records the start of an interactive session. Audit
// failures are retried but never fatal to the session; callers log and move
// on.
func (c *APIClient) AuditSessionStart(ctx context.Context, event *SessionEvent) error {
	event.Event = "start"
	return c.auditSession(ctx, event)
}

// AuditSessionEnd records the end of an interactive session.
func (c *APIClient) AuditSessionEnd(ctx context.Context, event *SessionEvent) error {
	event.Event = "end"
	return c.auditSession(ctx, event)
}

func (c *APIClient) auditSession(ctx context.Context, event *SessionEvent) error {
	url := fmt.Sprintf("%s/%s/sessions/%s/events", c.BaseURL, c.BaseAPIEndpoint, event.SessionID)
	log.Trace("Auditing session event", "url", url, "event", event.Event)

	return retry.WithPredicate(ctx, &c.RetryConfig, func() error {
		return c.doJSON(ctx, http.MethodPost, url, event, nil)
	}, retryable)
}
