package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	errUtils "github.com/cloudposse/grant/errors"
	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/schema"
)

// Segment is one newline-delimited JSON frame of the update stream.
type Segment struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Segment types delivered by the backend.
const (
	SegmentData      = "data"
	SegmentHeartbeat = "heartbeat"
	SegmentError     = "error"
)

// StatusUpdate is a single request-status transition carried in a data
// segment.
type StatusUpdate struct {
	RequestID string                     `json:"requestId"`
	Status    schema.RequestStatus       `json:"status"`
	Request   *schema.ProvisionedRequest `json:"request,omitempty"`
}

// StreamUpdates connects to the live update stream and delivers each status
// transition to handle until the stream ends, the context is cancelled, or an
// error segment arrives. Heartbeat segments keep the connection alive and are
// discarded.
func (c *APIClient) StreamUpdates(ctx context.Context, handle func(StatusUpdate)) error {
	url := fmt.Sprintf("%s/%s/access-requests/updates", c.BaseURL, c.BaseAPIEndpoint)

	req, err := getAuthenticatedRequest(ctx, c, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errUtils.ErrFailedToCreateAuthRequest, err)
	}
	req.Header.Set("Accept", "application/x-ndjson")

	// The stream stays open for the life of the wait; the per-call timeout on
	// the shared client would kill it.
	streamClient := &http.Client{Transport: c.HTTPClient.Transport}

	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errUtils.ErrFailedToMakeRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		return &statusError{code: resp.StatusCode, status: resp.Status}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var segment Segment
		if err := json.Unmarshal(line, &segment); err != nil {
			log.Debug("Skipping malformed stream segment", "error", err)
			continue
		}

		switch segment.Type {
		case SegmentHeartbeat:
			continue
		case SegmentError:
			return fmt.Errorf("%w: %s", errUtils.ErrStream, segment.Message)
		case SegmentData:
			var update StatusUpdate
			if err := json.Unmarshal(segment.Data, &update); err != nil {
				log.Debug("Skipping malformed status update", "error", err)
				continue
			}
			handle(update)
		default:
			log.Debug("Skipping unknown stream segment", "type", segment.Type)
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", errUtils.ErrStream, err)
	}
	return ctx.Err()
}
