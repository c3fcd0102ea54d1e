package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nanolos/gate/internal/gate/domain"
)

// HTTPRefresher exchanges a refresh token against the host application's
// token endpoint.
type HTTPRefresher struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewHTTPRefresher(endpoint string) *HTTPRefresher {
	return &HTTPRefresher{
		Endpoint: endpoint,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (*domain.Credential, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("credential: refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential: refresh send: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("credential: refresh read: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credential: refresh status %d", resp.StatusCode)
	}

	var tokenResp struct {
		Token        string `json:"token"`
		ExpiresAt    int64  `json:"expires_at"` // epoch milliseconds
		ExpiresIn    int64  `json:"expires_in"` // seconds
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(payload, &tokenResp); err != nil {
		return nil, fmt.Errorf("credential: refresh decode: %w", err)
	}
	if tokenResp.Token == "" {
		return nil, fmt.Errorf("credential: refresh response without token")
	}

	cred := &domain.Credential{
		Raw:          tokenResp.Token,
		RefreshToken: tokenResp.RefreshToken,
	}
	switch {
	case tokenResp.ExpiresAt > 0:
		cred.ExpiresAt = time.UnixMilli(tokenResp.ExpiresAt)
	case tokenResp.ExpiresIn > 0:
		cred.ExpiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	return cred, nil
}
