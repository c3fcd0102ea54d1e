package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nanolos/gate/internal/gate/credential"
	"github.com/nanolos/gate/internal/gate/domain"
	"github.com/nanolos/gate/internal/gate/entitlement"
	"github.com/nanolos/gate/internal/gate/session"
	"github.com/nanolos/gate/pkg/gatesdk"
	"github.com/nanolos/gate/pkg/httpx"
	"github.com/nanolos/gate/pkg/jwtx"
)

// MessageHandler serves the POST /v1/message vocabulary. Every request is a
// typed envelope; a type outside the vocabulary is an explicit
// unknown_action failure, never a silent drop.
type MessageHandler struct {
	Credentials  *credential.Manager
	Sessions     *session.Manager
	Entitlements *entitlement.Engine
	StartTime    time.Time
	Version      string
	Logger       *slog.Logger
}

func (h *MessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var msg gatesdk.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		gatesdk.ErrInvalidRequest.WriteError(w)
		return
	}

	switch msg.Type {
	case gatesdk.MessageStoreToken:
		h.handleStoreToken(w, r, msg)
	case gatesdk.MessageGetToken:
		h.handleGetToken(w, r)
	case gatesdk.MessageRevokeToken:
		h.handleRevokeToken(w, r)
	case gatesdk.MessageGetStatus:
		h.handleGetStatus(w, r)
	default:
		h.Logger.Warn("unknown message type", "type", msg.Type)
		gatesdk.ErrUnknownAction.WriteError(w)
	}
}

func (h *MessageHandler) handleStoreToken(w http.ResponseWriter, r *http.Request, msg gatesdk.Message) {
	if msg.Token == "" {
		gatesdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Credentials.Accept(r.Context(), msg.Token, msg.ExpiresAt, msg.RefreshToken); err != nil {
		if errors.Is(err, jwtx.ErrDecode) || errors.Is(err, credential.ErrExhausted) {
			gatesdk.ErrInvalidToken.WriteError(w)
			return
		}
		h.Logger.Error("store token failed", "error", err)
		gatesdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatesdk.StoreTokenResult{Success: true})
}

func (h *MessageHandler) handleGetToken(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.Credentials.Token(r.Context())
	if !ok {
		gatesdk.ErrNoToken.WriteError(w)
		return
	}

	result := gatesdk.TokenResult{Token: raw}
	if cur := h.Credentials.Current(); cur != nil && cur.Raw == raw {
		if !cur.ExpiresAt.IsZero() {
			result.ExpiresAt = cur.ExpiresAt.UnixMilli()
		}
		result.RefreshToken = cur.RefreshToken
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *MessageHandler) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Logout(r.Context())
	h.Credentials.Clear(r.Context())

	httpx.WriteJSON(w, http.StatusOK, gatesdk.StoreTokenResult{Success: true})
}

func (h *MessageHandler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()

	status := gatesdk.StatusResult{
		Session: sessionView(h.Sessions.Current(ctx)),
		Entitlement: entitlementView(
			h.Entitlements.Current(ctx),
			h.Entitlements.NeedsRenewal(ctx),
		),
		Uptime:  time.Since(h.StartTime).String(),
		Version: h.Version,
	}

	status.Credential.Exhausted = h.Credentials.Exhausted()
	if cur := h.Credentials.Current(); cur != nil {
		status.Credential.Present = true
		status.Credential.Stale = cur.Stale(now, domain.StaleThreshold)
		status.Credential.Source = cur.Source
		if !cur.ExpiresAt.IsZero() {
			expires := cur.ExpiresAt
			status.Credential.ExpiresAt = &expires
		}
	}

	httpx.WriteJSON(w, http.StatusOK, status)
}
