// Package session derives a user identity and capability set from the
// current credential, enforces the session timeout, and notifies listeners
// of session changes.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nanolos/gate/internal/gate/credential"
	"github.com/nanolos/gate/internal/gate/domain"
	"github.com/nanolos/gate/internal/gate/store"
)

const storedSessionKey = "current"

// Listener is invoked with the new session snapshot on every change,
// including the explicit unauthenticated session after logout or timeout.
type Listener func(domain.Session)

type Config struct {
	// SessionTimeout bounds session age. Past it the session reports
	// unauthenticated and the periodic check triggers logout.
	SessionTimeout time.Duration

	// MaxCacheAge bounds how old a persisted session may be and still be
	// accepted at Initialize instead of re-fetching.
	MaxCacheAge time.Duration

	// CheckInterval is the cadence of the proactive expiry check.
	CheckInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Minute
	}
	if c.MaxCacheAge <= 0 {
		c.MaxCacheAge = 24 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	return c
}

// Manager owns the session state machine.
type Manager struct {
	credentials *credential.Manager
	profile     ProfileClient
	cache       store.Bucket
	logger      *slog.Logger
	cfg         Config

	now func() time.Time

	mu           sync.Mutex
	current      domain.Session
	listeners    []registration
	nextListener int

	unsubscribe func()
	stopCh      chan struct{}
	doneCh      chan struct{}
	started     bool
}

type registration struct {
	id int
	fn Listener
}

func NewManager(
	credentials *credential.Manager,
	profile ProfileClient,
	cache store.Bucket,
	logger *slog.Logger,
	cfg Config,
) *Manager {
	m := &Manager{
		credentials: credentials,
		profile:     profile,
		cache:       cache,
		logger:      logger,
		cfg:         cfg.withDefaults(),
		now:         time.Now,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	m.current = domain.Unauthenticated(m.now())
	return m
}

// Initialize brings up the session: a persisted session younger than
// MaxCacheAge is accepted as-is, otherwise the identity is fetched with the
// current credential. Reports whether an authenticated session is now held.
func (m *Manager) Initialize(ctx context.Context) bool {
	if cached := m.loadCached(ctx); cached != nil {
		m.install(ctx, *cached, false)
		m.logger.Info("session loaded from cache", "user_id", cached.Identity.UserID)
		return true
	}

	return m.fetch(ctx)
}

// Start launches the proactive expiry check loop and begins following
// credential changes. Call Stop to shut both down.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.unsubscribe = m.credentials.Subscribe(m.onCredentialChange)

	go m.run()
	m.logger.Info("session manager started", "check_interval", m.cfg.CheckInterval)
}

// Stop shuts down the check loop. Blocks until the loop exits.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	close(m.stopCh)
	<-m.doneCh
	m.logger.Info("session manager stopped")
}

func (m *Manager) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkExpiry()
		case <-m.stopCh:
			return
		}
	}
}

// checkExpiry logs the session out as soon as it times out, rather than
// waiting for the next Current call to notice.
func (m *Manager) checkExpiry() {
	m.mu.Lock()
	expired := m.current.Authenticated && m.current.Age(m.now()) >= m.cfg.SessionTimeout
	m.mu.Unlock()

	if expired {
		m.logger.Info("session timed out, logging out")
		m.Logout(context.Background())
	}
}

// onCredentialChange re-derives the session when a new credential lands. A
// cleared credential is ignored here; session teardown flows through Logout
// and the timeout check.
func (m *Manager) onCredentialChange(cred *domain.Credential) {
	if cred == nil {
		return
	}

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return
	}

	go func() {
		if !m.fetch(context.Background()) {
			m.logger.Warn("session refetch after credential change failed")
		}
	}()
}

// Current returns the session if its age is under the timeout; otherwise it
// attempts one re-fetch, and on failure returns the explicit unauthenticated
// session. Never returns an error.
func (m *Manager) Current(ctx context.Context) domain.Session {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()

	now := m.now()
	if cur.Authenticated && cur.Age(now) < m.cfg.SessionTimeout {
		m.mu.Lock()
		if m.current.Authenticated {
			m.current.LastActivityAt = now
		}
		cur = m.current
		m.mu.Unlock()
		return cur
	}

	if cur.Authenticated {
		// Timed out; one re-fetch attempt before giving up.
		if m.fetch(ctx) {
			m.mu.Lock()
			cur = m.current
			m.mu.Unlock()
			return cur
		}
		m.Logout(ctx)
	}

	return domain.Unauthenticated(now)
}

// HasPermissionCode checks raw numeric permission-code membership on the
// current session.
func (m *Manager) HasPermissionCode(ctx context.Context, code int) bool {
	return m.Current(ctx).HasPermissionCode(code)
}

// HasCapability checks the derived capability set.
func (m *Manager) HasCapability(ctx context.Context, name string) bool {
	return m.Current(ctx).HasCapability(name)
}

// HasAnyCapability reports whether the session holds at least one of the
// named capabilities.
func (m *Manager) HasAnyCapability(ctx context.Context, names ...string) bool {
	s := m.Current(ctx)
	for _, name := range names {
		if s.HasCapability(name) {
			return true
		}
	}
	return false
}

// HasAllCapabilities reports whether the session holds every named
// capability.
func (m *Manager) HasAllCapabilities(ctx context.Context, names ...string) bool {
	s := m.Current(ctx)
	for _, name := range names {
		if !s.HasCapability(name) {
			return false
		}
	}
	return len(names) > 0
}

// Logout clears in-memory and persisted session state and notifies listeners
// with the explicit unauthenticated session.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.cache.Delete(ctx, storedSessionKey); err != nil {
		m.logger.Warn("session cache delete failed", "error", err)
	}

	m.install(ctx, domain.Unauthenticated(m.now()), false)
	m.logger.Info("session logged out")
}

// fetch derives a fresh session from the current credential and the profile
// endpoint. Every failure path degrades to "not authenticated"; nothing
// escapes as an error.
func (m *Manager) fetch(ctx context.Context) bool {
	bearer, ok := m.credentials.Token(ctx)
	if !ok {
		m.logger.Info("session fetch skipped, no credential")
		return false
	}

	identity, err := m.profile.Fetch(ctx, bearer)
	if err != nil {
		m.logger.Warn("profile fetch failed", "error", err)
		return false
	}

	now := m.now()
	next := domain.Session{
		Authenticated:  true,
		Identity:       identity,
		Capabilities:   deriveCapabilities(identity.PermissionCodes),
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.install(ctx, next, true)
	m.logger.Info("session established",
		"user_id", identity.UserID, "capabilities", len(next.Capabilities))
	return true
}

// install swaps in a new session wholesale, optionally persisting it, and
// notifies listeners in registration order.
func (m *Manager) install(ctx context.Context, next domain.Session, persist bool) {
	if persist {
		if data, err := json.Marshal(next); err == nil {
			if err := m.cache.Set(ctx, storedSessionKey, data); err != nil {
				m.logger.Warn("session persist failed", "error", err)
			}
		}
	}

	m.mu.Lock()
	m.current = next
	listeners := append([]registration(nil), m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, next)
}

func (m *Manager) loadCached(ctx context.Context) *domain.Session {
	data, err := m.cache.Get(ctx, storedSessionKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("session cache read failed", "error", err)
		}
		return nil
	}

	var cached domain.Session
	if err := json.Unmarshal(data, &cached); err != nil {
		m.logger.Warn("session cache decode failed", "error", err)
		return nil
	}

	if !cached.Authenticated || cached.Identity == nil {
		return nil
	}
	if cached.Age(m.now()) >= m.cfg.MaxCacheAge {
		return nil
	}

	// Capabilities are derived state and not persisted; rebuild them.
	cached.Capabilities = deriveCapabilities(cached.Identity.PermissionCodes)
	return &cached
}

// Subscribe registers a listener and invokes it immediately with the current
// session.
func (m *Manager) Subscribe(fn Listener) (cancel func()) {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners = append(m.listeners, registration{id: id, fn: fn})
	cur := m.current
	m.mu.Unlock()

	m.notify([]registration{{id: id, fn: fn}}, cur)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, reg := range m.listeners {
			if reg.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) notify(listeners []registration, s domain.Session) {
	for _, reg := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("session listener panicked", "panic", r)
				}
			}()
			reg.fn(s)
		}()
	}
}
