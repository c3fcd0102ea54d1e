package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nanolos/gate/internal/gate/domain"
	"gopkg.in/yaml.v3"
)

// Result is what a license source yields: either the raw document to run
// matching against, or an entitlement the remote side already computed.
// Exactly one of the two fields is set.
type Result struct {
	Document    *domain.LicenseDocument
	Precomputed *domain.Entitlement
}

// Source fetches license data. The engine does not care which configuration
// backs it: a static document URL, a validation endpoint, or a local file.
type Source interface {
	Load(ctx context.Context, host, email string) (*Result, error)
}

// DocumentHTTPSource GETs the license document from a fixed URL. A
// cache-busting query parameter defeats intermediary caches; a stale
// document would outlive license revocation.
type DocumentHTTPSource struct {
	URL        string
	HTTPClient *http.Client
}

func NewDocumentHTTPSource(url string) *DocumentHTTPSource {
	return &DocumentHTTPSource{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *DocumentHTTPSource) Load(ctx context.Context, host, email string) (*Result, error) {
	url := s.URL
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	url += sep + "t=" + strconv.FormatInt(time.Now().UnixNano(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("entitlement: document request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("entitlement: document fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("entitlement: document read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("entitlement: document status %d", resp.StatusCode)
	}

	var doc domain.LicenseDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("entitlement: document decode: %w", err)
	}

	return &Result{Document: &doc}, nil
}

// ValidateHTTPSource POSTs the principal to a validation endpoint that
// returns a precomputed entitlement. The alternative configuration for
// deployments that keep license records server-side.
type ValidateHTTPSource struct {
	URL        string
	HTTPClient *http.Client
}

func NewValidateHTTPSource(url string) *ValidateHTTPSource {
	return &ValidateHTTPSource{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *ValidateHTTPSource) Load(ctx context.Context, host, email string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{"domain": host, "email": email})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("entitlement: validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("entitlement: validate fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("entitlement: validate read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("entitlement: validate status %d", resp.StatusCode)
	}

	var ent domain.Entitlement
	if err := json.Unmarshal(body, &ent); err != nil {
		return nil, fmt.Errorf("entitlement: validate decode: %w", err)
	}

	return &Result{Precomputed: &ent}, nil
}

// FileSource reads the license document from a local file. YAML or JSON by
// extension.
type FileSource struct {
	Path string
}

func (s *FileSource) Load(ctx context.Context, host, email string) (*Result, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("entitlement: document file: %w", err)
	}

	var doc domain.LicenseDocument
	switch filepath.Ext(s.Path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("entitlement: document file decode: %w", err)
	}

	return &Result{Document: &doc}, nil
}
