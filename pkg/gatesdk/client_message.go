package gatesdk

import (
	"context"
	"net/http"
)

const messagePath = "/v1/message"

// StoreToken relays a freshly extracted credential to the gate.
// expiresAt is epoch milliseconds, zero when unknown.
func (c *Client) StoreToken(ctx context.Context, token string, expiresAt int64, refreshToken string) (*StoreTokenResult, error) {
	msg := Message{
		Type:         MessageStoreToken,
		Token:        token,
		ExpiresAt:    expiresAt,
		RefreshToken: refreshToken,
	}

	var result StoreTokenResult
	if err := c.doJSON(ctx, http.MethodPost, messagePath, msg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetToken requests the currently held credential.
func (c *Client) GetToken(ctx context.Context) (*TokenResult, error) {
	var result TokenResult
	if err := c.doJSON(ctx, http.MethodPost, messagePath, Message{Type: MessageGetToken}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RevokeToken clears the held credential and logs the session out.
func (c *Client) RevokeToken(ctx context.Context) (*StoreTokenResult, error) {
	var result StoreTokenResult
	if err := c.doJSON(ctx, http.MethodPost, messagePath, Message{Type: MessageRevokeToken}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status aggregates credential, session and entitlement state.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var result StatusResult
	if err := c.doJSON(ctx, http.MethodPost, messagePath, Message{Type: MessageGetStatus}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
