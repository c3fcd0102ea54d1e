package gatesdk

import (
	"context"
	"net/http"
)

// GetSession fetches the read-only session view.
func (c *Client) GetSession(ctx context.Context) (*SessionView, error) {
	var view SessionView
	if err := c.doJSON(ctx, http.MethodGet, "/v1/session", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetEntitlement fetches the cached entitlement view.
func (c *Client) GetEntitlement(ctx context.Context) (*EntitlementView, error) {
	var view EntitlementView
	if err := c.doJSON(ctx, http.MethodGet, "/v1/entitlement", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Validate forces a fresh entitlement validation pass and returns its
// result.
func (c *Client) Validate(ctx context.Context) (*EntitlementView, error) {
	var view EntitlementView
	if err := c.doJSON(ctx, http.MethodPost, "/v1/validate", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}
