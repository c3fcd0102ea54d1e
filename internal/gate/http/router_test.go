package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nanolos/gate/internal/gate/credential"
	"github.com/nanolos/gate/internal/gate/domain"
	"github.com/nanolos/gate/internal/gate/entitlement"
	"github.com/nanolos/gate/internal/gate/session"
	"github.com/nanolos/gate/internal/gate/store/drivers/memory"
	"github.com/nanolos/gate/pkg/cryptox"
	"github.com/nanolos/gate/pkg/gatesdk"
	"github.com/stretchr/testify/require"
)

func buildToken(t *testing.T, claims map[string]any) string {
	t.Helper()

	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." +
		enc.EncodeToString([]byte("test-signature-padding-padding"))
}

type fakeProfile struct {
	identity *domain.Identity
	err      error
}

func (f *fakeProfile) Fetch(ctx context.Context, bearer string) (*domain.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type fakeEntSource struct {
	result *entitlement.Result
	err    error
}

func (f *fakeEntSource) Load(ctx context.Context, host, email string) (*entitlement.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestRouter(t *testing.T) *httptest.Server {
	t.Helper()

	st := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sealer, err := cryptox.NewSealer([]byte("router-test-secret"))
	require.NoError(t, err)

	creds := credential.NewManager(st.Credentials(), st.Host(), sealer, nil, logger, credential.Config{
		MaxAttempts: 1,
		RetryDelay:  time.Millisecond,
	})
	t.Cleanup(creds.Close)

	profile := &fakeProfile{identity: &domain.Identity{
		UserID:          "user-1",
		Email:           "user@example.com",
		PermissionCodes: []int{100, 300},
	}}
	sessions := session.NewManager(creds, profile, st.Sessions(), logger, session.Config{})
	sessions.Start()
	t.Cleanup(sessions.Stop)

	expires := time.Now().Add(30 * 24 * time.Hour).Format(time.RFC3339)
	entSource := &fakeEntSource{result: &entitlement.Result{
		Document: licenseDoc(t, fmt.Sprintf(`{
			"enabled": true,
			"domain_licenses": {
				"*.example.com": {"valid": true, "expires": %q, "features": ["search", "export"]}
			},
			"user_licenses": {},
			"default_features": ["search"]
		}`, expires)),
	}}
	engine := entitlement.NewEngine(sessions, entSource, st.Entitlements(), logger, entitlement.Config{
		Host: "app.example.com",
	})

	router := NewRouter("test", st, logger)
	router.Credentials = creds
	router.Sessions = sessions
	router.Entitlements = engine
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func licenseDoc(t *testing.T, raw string) *domain.LicenseDocument {
	t.Helper()

	var doc domain.LicenseDocument
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

func postMessage(t *testing.T, srv *httptest.Server, msg gatesdk.Message) *http.Response {
	t.Helper()

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/v1/message", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestMessageStoreAndGetToken(t *testing.T) {
	t.Parallel()

	srv := newTestRouter(t)
	token := buildToken(t, map[string]any{
		"sub": "user-1",
		"exp": time.Now().Add(2 * time.Hour).Unix(),
	})

	resp := postMessage(t, srv, gatesdk.Message{
		Type:         gatesdk.MessageStoreToken,
		Token:        token,
		RefreshToken: "rt-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stored := decodeBody[gatesdk.StoreTokenResult](t, resp)
	require.True(t, stored.Success)

	resp = postMessage(t, srv, gatesdk.Message{Type: gatesdk.MessageGetToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[gatesdk.TokenResult](t, resp)
	require.Equal(t, token, got.Token)
	require.Equal(t, "rt-1", got.RefreshToken)
	require.NotZero(t, got.ExpiresAt)
}

func TestMessageGetTokenWithoutCredential(t *testing.T) {
	t.Parallel()

	srv := newTestRouter(t)

	resp := postMessage(t, srv, gatesdk.Message{Type: gatesdk.MessageGetToken})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	errResp := decodeBody[gatesdk.ErrorResponse](t, resp)
	require.Equal(t, gatesdk.ErrorCodeNoToken, errResp.Error)
}

func TestMessageStoreTokenRejectsMalformed(t *testing.T) {
	t.Parallel()

	srv := newTestRouter(t)

	resp := postMessage(t, srv, gatesdk.Message{
		Type:  gatesdk.MessageStoreToken,
		Token: "not-a-jwt",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errResp := decodeBody[gatesdk.ErrorResponse](t, resp)
	require.Equal(t, gatesdk.ErrorCodeInvalidToken, errResp.Error)
}

func TestMessageUnknownType(t *testing.T) {
	t.Parallel()

	srv := newTestRouter(t)

	resp := postMessage(t, srv, gatesdk.Message{Type: "SELF_DESTRUCT"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errResp := decodeBody[gatesdk.ErrorResponse](t, resp)
	require.Equal(t, gatesdk.ErrorCodeUnknownAction, errResp.Error)
}

func TestMessageRevokeToken(t *testing.T) {
	t.Parallel()

	srv := newTestRouter(t)
	token := buildToken(t, map[string]any{
		"exp": time.Now().Add(2 * time.Hour).Unix(),
	})

	resp := postMessage(t, srv, gatesdk.Message{Type: gatesdk.MessageStoreToken, Token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postMessage(t, srv, gatesdk.Message{Type: gatesdk.MessageRevokeToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	revoked := decodeBody[gatesdk.StoreTokenResult](t, resp)
	require.True(t, revoked.Success)

	resp = postMessage(t, srv, gatesdk.Message{Type: gatesdk.MessageGetToken})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestMessageGetStatus(t *testing.T) {
	t.Parallel()

	srv := newTestRouter(t)
	token := buildToken(t, map[string]any{
		"exp": time.Now().Add(2 * time.Hour).Unix(),
	})

	resp := postMessage(t, srv, gatesdk.Message{Type: gatesdk.MessageStoreToken, Token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postMessage(t, srv, gatesdk.Message{Type: gatesdk.MessageGetStatus})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[gatesdk.StatusResult](t, resp)
	require.True(t, status.Credential.Present)
	require.False(t, status.Credential.Exhausted)
	require.Equal(t, "test", status.Version)
	require.True(t, status.Entitlement.Valid)
}

func TestSessionView(t *testing.T) {
	t.Parallel()

	srv := newTestRouter(t)
	token := buildToken(t, map[string]any{
		"exp": time.Now().Add(2 * time.Hour).Unix(),
	})

	resp := postMessage(t, srv, gatesdk.Message{Type: gatesdk.MessageStoreToken, Token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The session refetch after a credential change is asynchronous.
	var view gatesdk.SessionView
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/v1/session")
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		view = decodeBody[gatesdk.SessionView](t, resp)
		return view.Authenticated
	}, 2*time.Second, 10*time.Millisecond)

	require.NotNil(t, view.Identity)
	require.Equal(t, "user@example.com", view.Identity.Email)
	require.Equal(t, []string{"export", "search"}, view.Capabilities)
}

func TestEntitlementViewAndValidate(t *testing.T) {
	t.Parallel()

	srv := newTestRouter(t)

	resp, err := http.Post(srv.URL+"/v1/validate", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validated := decodeBody[gatesdk.EntitlementView](t, resp)
	require.True(t, validated.Valid)
	require.Equal(t, "domain", validated.MatchType)
	require.Equal(t, []string{"search", "export"}, validated.Features)

	resp, err = http.Get(srv.URL + "/v1/entitlement")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cached := decodeBody[gatesdk.EntitlementView](t, resp)
	require.True(t, cached.Valid)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/livez")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	live := decodeBody[gatesdk.HealthResponse](t, resp)
	require.Equal(t, "ok", live.Status)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ready := decodeBody[gatesdk.HealthResponse](t, resp)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
}
