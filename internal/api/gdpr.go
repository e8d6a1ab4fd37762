package api

import (
	"context"
	"net/http"
)

// RequestExport asks the server to assemble the user's full data export.
// The server processes exports asynchronously; poll the returned ticket.
func (c *Client) RequestExport(ctx context.Context) (*ExportTicket, error) {
	var ticket ExportTicket
	if err := c.doJSON(ctx, http.MethodPost, "/gdpr/export", nil, &ticket); err != nil {
		return nil, err
	}

	return &ticket, nil
}

// EraseUser requests server-side deletion of all of the user's data.
// Deletion on an already erased account succeeds.
func (c *Client) EraseUser(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/user/data", nil, nil)
}

// Health probes the backend. A nil error means the server is reachable
// and reports itself healthy; the engine uses this to notice offline to
// online transitions.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &status); err != nil {
		return nil, err
	}

	return &status, nil
}
