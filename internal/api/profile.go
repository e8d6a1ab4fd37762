package api

import (
	"context"
	"net/http"
)

// GetProfile fetches the user's account profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.doJSON(ctx, http.MethodGet, "/user/profile", nil, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

// UpdateProfile replaces the user's profile. Last write wins on the
// server; there is no merge for profile fields.
func (c *Client) UpdateProfile(ctx context.Context, p *Profile) error {
	return c.doJSON(ctx, http.MethodPut, "/user/profile", p, nil)
}
