// Package credential owns the lifecycle of the extracted bearer credential:
// acquisition from prioritized host-storage snapshots, validity and staleness
// policy, refresh, and change notification.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nanolos/gate/internal/gate/domain"
	"github.com/nanolos/gate/internal/gate/store"
	"github.com/nanolos/gate/pkg/cryptox"
	"github.com/nanolos/gate/pkg/jwtx"
)

// ErrExhausted means extraction ran out of attempts with no usable
// credential. The manager settles into an unavailable steady state until an
// external trigger restarts it.
var ErrExhausted = errors.New("credential: extraction exhausted")

const storedCredentialKey = "current"

// Refresher exchanges a refresh token for a new credential. The HTTP
// implementation lives in refresh.go; tests inject fakes.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.Credential, error)
}

// Listener is invoked with the current credential, or nil for absence. Once
// at registration, then on every subsequent successful extraction, refresh,
// or clear.
type Listener func(*domain.Credential)

type Config struct {
	// MaxAttempts bounds an extraction cycle. Exceeding it is a terminal
	// "exhausted" state for the cycle, not a crash.
	MaxAttempts int

	// RetryDelay is the flat backoff between extraction attempts.
	RetryDelay time.Duration

	// StaleThreshold is the pre-expiry window that triggers a background
	// refresh while the current value is still served.
	StaleThreshold time.Duration

	// DefaultLifetime applies when neither the claims exp nor a storage
	// hint provides an expiry.
	DefaultLifetime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = domain.StaleThreshold
	}
	if c.DefaultLifetime <= 0 {
		c.DefaultLifetime = time.Hour
	}
	return c
}

// Manager is the credential lifecycle state machine.
type Manager struct {
	cache     store.Bucket // sealed cached credential, owned exclusively
	host      store.Bucket // relayed host-page storage snapshots, read-only
	sealer    *cryptox.Sealer
	refresher Refresher
	sources   []Source
	logger    *slog.Logger
	cfg       Config

	now func() time.Time

	mu           sync.Mutex
	current      *domain.Credential
	listeners    []registration
	nextListener int
	exhausted    bool
	refreshing   bool
	closed       bool
}

type registration struct {
	id int
	fn Listener
}

func NewManager(
	cache, host store.Bucket,
	sealer *cryptox.Sealer,
	refresher Refresher,
	logger *slog.Logger,
	cfg Config,
) *Manager {
	return &Manager{
		cache:     cache,
		host:      host,
		sealer:    sealer,
		refresher: refresher,
		sources:   DefaultSources(),
		logger:    logger,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// Initialize acquires a credential: first from the local sealed cache if the
// cached value has not expired, otherwise by running the bounded extraction
// cycle against the host-storage candidates. Reports whether a usable
// credential is now held. Never returns an error; failure is the
// "unavailable" steady state.
func (m *Manager) Initialize(ctx context.Context) bool {
	if cred := m.loadCached(ctx); cred != nil {
		m.logger.Info("credential loaded from cache", "source", cred.Source)
		m.adopt(ctx, cred, false)
		return true
	}

	return m.extract(ctx)
}

// extract runs the bounded retry state machine: attempt, flat delay, attempt,
// until a candidate wins or MaxAttempts is exceeded.
func (m *Manager) extract(ctx context.Context) bool {
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if cred := m.extractOnce(ctx); cred != nil {
			m.logger.Info("credential extracted",
				"source", cred.Source, "attempt", attempt)
			m.adopt(ctx, cred, true)
			return true
		}

		if attempt == m.cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(m.cfg.RetryDelay):
		case <-ctx.Done():
			return false
		}
	}

	m.mu.Lock()
	m.exhausted = true
	m.mu.Unlock()

	m.logger.Warn("credential extraction exhausted", "attempts", m.cfg.MaxAttempts)
	return false
}

// extractOnce tries every candidate source in priority order and returns the
// first structurally valid, non-expired credential. All candidates are tried
// before the attempt is given up.
func (m *Manager) extractOnce(ctx context.Context) *domain.Credential {
	now := m.now()

	for _, src := range m.sources {
		data, err := m.host.Get(ctx, src.Key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			m.logger.Warn("host storage read failed", "key", src.Key, "error", err)
			continue
		}

		cred, err := src.Parse(data, now)
		if err != nil {
			m.logger.Debug("candidate rejected", "key", src.Key, "error", err)
			continue
		}

		if !jwtx.IsCandidate(cred.Raw) {
			m.logger.Debug("candidate not token-shaped", "key", src.Key)
			continue
		}

		cred.ExpiresAt = m.resolveExpiry(cred.Raw, cred.ExpiresAt, now)
		if cred.Expired(now) {
			m.logger.Debug("candidate expired", "key", src.Key, "expires_at", cred.ExpiresAt)
			continue
		}

		cred.Source = src.Key
		return cred
	}

	return nil
}

// resolveExpiry applies the expiry precedence: decoded claims exp, then the
// storage-supplied hint, then the default lifetime.
func (m *Manager) resolveExpiry(raw string, hint time.Time, now time.Time) time.Time {
	if claims, err := jwtx.Decode(raw); err == nil {
		if exp, ok := claims.ExpiresAt(); ok {
			return exp
		}
	} else {
		m.logger.Debug("credential claims undecodable", "error", err)
	}

	if !hint.IsZero() {
		return hint
	}
	return now.Add(m.cfg.DefaultLifetime)
}

// Accept adopts a credential relayed from an external context (the
// STORE_TOKEN message). expiresAt is epoch milliseconds, zero when the
// relaying side had no expiry. The same validity policy applies as for
// extraction.
func (m *Manager) Accept(ctx context.Context, token string, expiresAt int64, refreshToken string) error {
	if !jwtx.IsCandidate(token) {
		return jwtx.ErrDecode
	}

	now := m.now()
	var hint time.Time
	if expiresAt > 0 {
		hint = time.UnixMilli(expiresAt)
	}

	cred := &domain.Credential{
		Raw:          token,
		ExpiresAt:    m.resolveExpiry(token, hint, now),
		RefreshToken: refreshToken,
		Source:       "relay",
	}
	if cred.Expired(now) {
		return ErrExhausted
	}

	m.adopt(ctx, cred, true)
	return nil
}

// Token returns the current credential's raw value if one is held and not
// expired. An expired credential with a refresh token triggers one
// synchronous refresh cycle; expired without one clears state. A stale but
// unexpired credential is returned immediately while a single background
// refresh is scheduled, so callers are never blocked by staleness.
func (m *Manager) Token(ctx context.Context) (string, bool) {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()

	now := m.now()

	if cur == nil {
		return "", false
	}

	if cur.Expired(now) {
		if cur.RefreshToken == "" {
			m.logger.Info("credential expired with no refresh token, clearing")
			m.Clear(ctx)
			return "", false
		}

		fresh, err := m.refresh(ctx, cur.RefreshToken)
		if err != nil {
			m.logger.Warn("credential refresh failed", "error", err)
			m.Clear(ctx)
			return "", false
		}
		return fresh.Raw, true
	}

	if cur.Stale(now, m.cfg.StaleThreshold) {
		m.scheduleBackgroundRefresh(cur.RefreshToken)
	}

	return cur.Raw, true
}

// Current returns the held credential, nil when unavailable. Policy checks
// are the caller's job; prefer Token.
func (m *Manager) Current() *domain.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Exhausted reports whether the last extraction cycle gave up.
func (m *Manager) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

// scheduleBackgroundRefresh starts at most one in-flight refresh. A refresh
// completing after Close checks liveness before touching state.
func (m *Manager) scheduleBackgroundRefresh(refreshToken string) {
	if refreshToken == "" || m.refresher == nil {
		return
	}

	m.mu.Lock()
	if m.refreshing || m.closed {
		m.mu.Unlock()
		return
	}
	m.refreshing = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.refreshing = false
			m.mu.Unlock()
		}()

		if _, err := m.refresh(context.Background(), refreshToken); err != nil {
			m.logger.Warn("background refresh failed", "error", err)
		}
	}()
}

// refresh runs one refresh cycle and adopts the result.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (*domain.Credential, error) {
	if m.refresher == nil {
		return nil, errors.New("credential: no refresher configured")
	}

	fresh, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	now := m.now()
	fresh.ExpiresAt = m.resolveExpiry(fresh.Raw, fresh.ExpiresAt, now)
	fresh.Source = "refresh"
	if fresh.Expired(now) {
		return nil, errors.New("credential: refresh returned expired credential")
	}

	m.adopt(ctx, fresh, true)
	return fresh, nil
}

// adopt persists the credential, installs it as current, and notifies
// listeners. Persistence failure is reported but does not revert the
// in-memory value. A manager that has been closed drops late results.
func (m *Manager) adopt(ctx context.Context, cred *domain.Credential, persist bool) {
	if persist {
		if err := m.persist(ctx, cred); err != nil {
			m.logger.Error("credential persist failed", "error", err)
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.current = cred
	m.exhausted = false
	listeners := append([]registration(nil), m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, cred)
}

func (m *Manager) persist(ctx context.Context, cred *domain.Credential) error {
	plain, err := json.Marshal(cred)
	if err != nil {
		return err
	}

	sealed, err := m.sealer.Seal(plain)
	if err != nil {
		return err
	}

	return m.cache.Set(ctx, storedCredentialKey, sealed)
}

func (m *Manager) loadCached(ctx context.Context) *domain.Credential {
	sealed, err := m.cache.Get(ctx, storedCredentialKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("credential cache read failed", "error", err)
		}
		return nil
	}

	plain, err := m.sealer.Open(sealed)
	if err != nil {
		m.logger.Warn("credential cache unseal failed", "error", err)
		return nil
	}

	var cred domain.Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		m.logger.Warn("credential cache decode failed", "error", err)
		return nil
	}

	if !cred.Valid(m.now()) {
		return nil
	}
	return &cred
}

// Clear drops the in-memory credential and the persisted copy, and notifies
// listeners with absence.
func (m *Manager) Clear(ctx context.Context) {
	if err := m.cache.Delete(ctx, storedCredentialKey); err != nil {
		m.logger.Warn("credential cache delete failed", "error", err)
	}

	m.mu.Lock()
	m.current = nil
	listeners := append([]registration(nil), m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, nil)
}

// Subscribe registers a listener and invokes it immediately with the current
// value (or nil for absence). The returned cancel removes the registration.
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

// notify invokes listeners in registration order. A panicking listener is
// caught and logged; it must not prevent the others from being notified.
func (m *Manager) notify(listeners []registration, cred *domain.Credential) {
	for _, reg := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("credential listener panicked", "panic", r)
				}
			}()
			reg.fn(cred)
		}()
	}
}

// Close marks the manager inactive. In-flight refreshes that complete after
// Close are dropped rather than mutating state.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.listeners = nil
}
