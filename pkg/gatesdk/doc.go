/*
Package gatesdk provides a client for the gated loopback HTTP API.

# Overview

gated exposes two surfaces: the message API (POST /v1/message with an
enumerated message vocabulary) used by relaying contexts and gatectl, and
read-only REST views of the session and entitlement state.

Create a Client and use the typed methods:

	client := gatesdk.NewClient("http://127.0.0.1:8321")

	// Relay a freshly extracted credential
	_, err := client.StoreToken(ctx, rawToken, expiresAtMillis, refreshToken)

	// Read the currently held credential
	tok, err := client.GetToken(ctx)

	// Aggregate state for display
	status, err := client.Status(ctx)

# Error Handling

Non-2xx responses are returned as *APIError carrying the gate's error code
and description:

	tok, err := client.GetToken(ctx)
	if apiErr, ok := err.(*gatesdk.APIError); ok && apiErr.Code == gatesdk.ErrorCodeNoToken {
		// no credential held
	}
*/
package gatesdk
