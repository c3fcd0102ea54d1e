package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nanolos/gate/internal/gate/domain"
)

// ProfileClient fetches the user identity behind a bearer credential.
type ProfileClient interface {
	Fetch(ctx context.Context, bearer string) (*domain.Identity, error)
}

// HTTPProfileClient talks to the host application's profile endpoint.
type HTTPProfileClient struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewHTTPProfileClient(endpoint string) *HTTPProfileClient {
	return &HTTPProfileClient{
		Endpoint: endpoint,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// profileResponse is the wire shape: an identifier plus a flat attributes
// object.
type profileResponse struct {
	ID         string `json:"id"`
	Attributes struct {
		FirstName       string `json:"first_name"`
		LastName        string `json:"last_name"`
		DisplayAlias    string `json:"display_alias"`
		Email           string `json:"email"`
		OrganizationID  string `json:"organization_id"`
		Role            string `json:"role"`
		PermissionCodes []int  `json:"permissions"`
	} `json:"attributes"`
}

func (c *HTTPProfileClient) Fetch(ctx context.Context, bearer string) (*domain.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("session: profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: profile send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("session: profile read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("session: profile status %d", resp.StatusCode)
	}

	var parsed profileResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("session: profile decode: %w", err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("session: profile response without id")
	}

	return &domain.Identity{
		UserID:          parsed.ID,
		FirstName:       parsed.Attributes.FirstName,
		LastName:        parsed.Attributes.LastName,
		DisplayAlias:    parsed.Attributes.DisplayAlias,
		Email:           parsed.Attributes.Email,
		OrganizationID:  parsed.Attributes.OrganizationID,
		Role:            parsed.Attributes.Role,
		PermissionCodes: parsed.Attributes.PermissionCodes,
	}, nil
}
