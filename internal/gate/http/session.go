package http

import (
	"net/http"

	"github.com/nanolos/gate/internal/gate/domain"
	"github.com/nanolos/gate/internal/gate/session"
	"github.com/nanolos/gate/pkg/gatesdk"
	"github.com/nanolos/gate/pkg/httpx"
)

// SessionHandler serves the read-only session view. Reading the session
// counts as activity and pushes the idle timeout out.
type SessionHandler struct {
	Sessions *session.Manager
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, sessionView(h.Sessions.Current(r.Context())))
}

func sessionView(s domain.Session) gatesdk.SessionView {
	view := gatesdk.SessionView{
		Authenticated:  s.Authenticated,
		Capabilities:   s.CapabilityList(),
		StartedAt:      s.StartedAt,
		LastActivityAt: s.LastActivityAt,
	}
	if s.Identity != nil {
		view.Identity = &gatesdk.Identity{
			UserID:          s.Identity.UserID,
			FirstName:       s.Identity.FirstName,
			LastName:        s.Identity.LastName,
			DisplayAlias:    s.Identity.DisplayAlias,
			Email:           s.Identity.Email,
			OrganizationID:  s.Identity.OrganizationID,
			Role:            s.Identity.Role,
			PermissionCodes: s.Identity.PermissionCodes,
		}
	}
	return view
}
