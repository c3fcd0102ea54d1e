package entitlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nanolos/gate/internal/gate/domain"
	"github.com/stretchr/testify/require"
)

func TestDocumentHTTPSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.URL.Query().Get("t"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"enabled": true,
			"domain_licenses": {
				"*.example.com": {"valid": true, "expires": "2030-01-01", "features": ["search"]}
			},
			"user_licenses": {},
			"default_features": ["search"]
		}`))
	}))
	defer srv.Close()

	src := NewDocumentHTTPSource(srv.URL)
	result, err := src.Load(context.Background(), "app.example.com", "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, result.Document)
	require.Nil(t, result.Precomputed)
	require.True(t, result.Document.Enabled)
	require.Len(t, result.Document.DomainLicenses, 1)
	require.Equal(t, "*.example.com", result.Document.DomainLicenses[0].Pattern)
}

func TestDocumentHTTPSourceCacheBustPreservesQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("v"))
		require.NotEmpty(t, r.URL.Query().Get("t"))
		w.Write([]byte(`{"enabled": true}`))
	}))
	defer srv.Close()

	src := NewDocumentHTTPSource(srv.URL + "?v=1")
	_, err := src.Load(context.Background(), "app.example.com", "")
	require.NoError(t, err)
}

func TestDocumentHTTPSourceNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewDocumentHTTPSource(srv.URL)
	_, err := src.Load(context.Background(), "app.example.com", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestValidateHTTPSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "app.example.com", body["domain"])
		require.Equal(t, "user@example.com", body["email"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"valid": true, "features": ["search", "export"], "match_type": "user"}`))
	}))
	defer srv.Close()

	src := NewValidateHTTPSource(srv.URL)
	result, err := src.Load(context.Background(), "app.example.com", "user@example.com")
	require.NoError(t, err)
	require.Nil(t, result.Document)
	require.NotNil(t, result.Precomputed)
	require.True(t, result.Precomputed.Valid)
	require.Equal(t, domain.MatchUser, result.Precomputed.MatchType)
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "license.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
enabled: true
domain_licenses:
  "*.example.com":
    valid: true
    expires: "2030-01-01"
    features: [search, export]
user_licenses: {}
default_features: [search]
`), 0o600))

		src := &FileSource{Path: path}
		result, err := src.Load(context.Background(), "app.example.com", "")
		require.NoError(t, err)
		require.True(t, result.Document.Enabled)
		require.Equal(t, []string{"search", "export"}, result.Document.DomainLicenses[0].Record.Features)
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "license.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"enabled": false,
			"domain_licenses": {},
			"user_licenses": {},
			"default_features": []
		}`), 0o600))

		src := &FileSource{Path: path}
		result, err := src.Load(context.Background(), "app.example.com", "")
		require.NoError(t, err)
		require.False(t, result.Document.Enabled)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		src := &FileSource{Path: filepath.Join(t.TempDir(), "absent.json")}
		_, err := src.Load(context.Background(), "app.example.com", "")
		require.Error(t, err)
	})
}
