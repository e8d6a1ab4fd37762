package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
)

// CreateSession registers a session on the backend. Creating a session
// that already exists with identical fields succeeds; divergent state
// comes back as ErrConflict with the server's view in the body.
func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/sessions", req, nil)
}

// CloseSession reports a session's end time and totals. The server
// answers 409 when it holds divergent state for the session; use
// ConflictState to extract its view for merging.
func (c *Client) CloseSession(ctx context.Context, sessionID string, req *CloseSessionRequest) error {
	return c.doJSON(ctx, http.MethodPut, "/sessions/"+url.PathEscape(sessionID), req, nil)
}

// GetSession fetches the server's view of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionState, error) {
	var state SessionState
	if err := c.doJSON(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, &state); err != nil {
		return nil, err
	}

	return &state, nil
}

// UploadBlinkBatch submits a batch of interval records for one session.
// The server deduplicates by record id, so replaying a batch after a lost
// acknowledgement is safe.
func (c *Client) UploadBlinkBatch(ctx context.Context, sessionID string, req *BlinkBatchRequest) (*BlinkBatchResponse, error) {
	var resp BlinkBatchResponse

	path := "/sessions/" + url.PathEscape(sessionID) + "/blinks/batch"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// ConflictState extracts the server's session view from an ErrConflict
// response body. Returns false when err is not a conflict or the body
// does not parse.
func ConflictState(err error) (*SessionState, bool) {
	var apiErr *Error
	if !errors.As(err, &apiErr) || !errors.Is(apiErr, ErrConflict) {
		return nil, false
	}

	var state SessionState
	if jsonErr := json.Unmarshal([]byte(apiErr.Message), &state); jsonErr != nil || state.SessionID == "" {
		return nil, false
	}

	return &state, true
}
