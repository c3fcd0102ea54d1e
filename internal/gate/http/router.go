package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nanolos/gate/internal/gate/credential"
	"github.com/nanolos/gate/internal/gate/entitlement"
	"github.com/nanolos/gate/internal/gate/session"
	"github.com/nanolos/gate/internal/gate/store"
	"github.com/nanolos/gate/pkg/httpx"
	"github.com/nanolos/gate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store        store.Store
	Credentials  *credential.Manager
	Sessions     *session.Manager
	Entitlements *entitlement.Engine
}

func NewRouter(
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerMessages()
	r.registerViews()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerMessages() {
	h := &MessageHandler{
		Credentials:  r.Credentials,
		Sessions:     r.Sessions,
		Entitlements: r.Entitlements,
		StartTime:    r.startTime,
		Version:      r.buildVersion,
		Logger:       r.logger,
	}

	// POST /v1/message - mutating vocabulary, write rate limit
	r.Mux.Handle("POST /v1/message",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.WriteLimit),
		),
	)
}

func (r *Router) registerViews() {
	sessionHandler := &SessionHandler{Sessions: r.Sessions}
	entitlementHandler := &EntitlementHandler{Entitlements: r.Entitlements}

	r.Mux.Handle("GET /v1/session",
		httpx.Chain(sessionHandler,
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)
	r.Mux.Handle("GET /v1/entitlement",
		httpx.Chain(entitlementHandler,
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)

	// POST /v1/validate - forces a fresh validation pass, write rate limit
	validateHandler := &ValidateHandler{Entitlements: r.Entitlements}
	r.Mux.Handle("POST /v1/validate",
		httpx.Chain(validateHandler,
			httpx.RateLimitByIP(httpx.WriteLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)
}
