package http

import (
	"net/http"

	"github.com/nanolos/gate/internal/gate/domain"
	"github.com/nanolos/gate/internal/gate/entitlement"
	"github.com/nanolos/gate/pkg/gatesdk"
	"github.com/nanolos/gate/pkg/httpx"
)

// EntitlementHandler serves the cached entitlement decision.
type EntitlementHandler struct {
	Entitlements *entitlement.Engine
}

func (h *EntitlementHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	httpx.WriteJSON(w, http.StatusOK, entitlementView(
		h.Entitlements.Current(ctx),
		h.Entitlements.NeedsRenewal(ctx),
	))
}

// ValidateHandler forces a fresh validation pass instead of reusing the
// cached decision.
type ValidateHandler struct {
	Entitlements *entitlement.Engine
}

func (h *ValidateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ent := h.Entitlements.Validate(ctx)
	httpx.WriteJSON(w, http.StatusOK, entitlementView(ent, h.Entitlements.NeedsRenewal(ctx)))
}

func entitlementView(ent domain.Entitlement, needsRenewal bool) gatesdk.EntitlementView {
	features := ent.Features
	if features == nil {
		features = []string{}
	}
	return gatesdk.EntitlementView{
		Valid:         ent.Valid,
		ExpiresAt:     ent.ExpiresAt,
		Features:      features,
		MatchType:     string(ent.MatchType),
		DaysRemaining: ent.DaysRemaining,
		CheckedAt:     ent.CheckedAt,
		NeedsRenewal:  needsRenewal,
	}
}
