// Package entitlement decides whether the current principal holds a valid
// license, which features it grants, and how long until it expires. It keeps
// a cached decision, revalidates on a long-period timer, and prefers a stale
// decision over none when the license source is unreachable.
package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nanolos/gate/internal/gate/domain"
	"github.com/nanolos/gate/internal/gate/store"
)

// SessionSource supplies the current session. Satisfied by
// session.Manager.
type SessionSource interface {
	Current(ctx context.Context) domain.Session
}

const (
	storedEntitlementKey = "current"
	storedDocumentKey    = "document"

	// unknownPrincipal is the sentinel identity used when no session is
	// authenticated. User licenses are keyed by email, so it does not
	// match any real record.
	unknownPrincipal = "unknown"
)

// fallbackFeatures is the minimal tier handed out when the license source
// cannot be reached at all and no cached decision exists.
var fallbackFeatures = []string{"search"}

// Listener is invoked with each newly computed entitlement.
type Listener func(domain.Entitlement)

type Config struct {
	// Host is the current domain the gate runs against, e.g.
	// "app.nanolos.com".
	Host string

	// RevalidateInterval is the cadence of the unconditional periodic
	// revalidation pass.
	RevalidateInterval time.Duration

	// DocumentTTL bounds reuse of a fetched license document between
	// validation passes.
	DocumentTTL time.Duration

	// RenewalWarningDays is the window in which NeedsRenewal turns on.
	RenewalWarningDays int
}

func (c Config) withDefaults() Config {
	if c.RevalidateInterval <= 0 {
		c.RevalidateInterval = 24 * time.Hour
	}
	if c.DocumentTTL <= 0 {
		c.DocumentTTL = time.Hour
	}
	if c.RenewalWarningDays <= 0 {
		c.RenewalWarningDays = 30
	}
	return c
}

// Engine is the entitlement validation state machine.
type Engine struct {
	sessions SessionSource
	source   Source
	cache    store.Bucket
	logger   *slog.Logger
	cfg      Config

	now func() time.Time

	mu           sync.Mutex
	current      *domain.Entitlement
	doc          *domain.LicenseDocument
	docFetchedAt time.Time
	listeners    []registration
	nextListener int

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

type registration struct {
	id int
	fn Listener
}

func NewEngine(
	sessions SessionSource,
	source Source,
	cache store.Bucket,
	logger *slog.Logger,
	cfg Config,
) *Engine {
	return &Engine{
		sessions: sessions,
		source:   source,
		cache:    cache,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the periodic revalidation loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	go e.run()
	e.logger.Info("entitlement engine started", "interval", e.cfg.RevalidateInterval)
}

// Stop shuts the loop down and blocks until it exits.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	close(e.stopCh)
	<-e.doneCh
	e.logger.Info("entitlement engine stopped")
}

func (e *Engine) run() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.RevalidateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Unconditional revalidation; Validate keeps the previous
			// cached decision on failure.
			e.Validate(context.Background())
		case <-e.stopCh:
			return
		}
	}
}

// Validate resolves the current principal, fetches or reuses the license
// document, applies the matching algorithm, and caches and returns the
// decision. Fetch failures degrade: the previous cached decision survives,
// and with no cache at all a minimal fallback tier is returned. Never
// returns an error.
func (e *Engine) Validate(ctx context.Context) domain.Entitlement {
	email := unknownPrincipal
	if s := e.sessions.Current(ctx); s.Authenticated && s.Identity != nil && s.Identity.Email != "" {
		email = s.Identity.Email
	}

	now := e.now()

	result, err := e.load(ctx, email)
	if err != nil {
		e.logger.Warn("entitlement source unavailable", "error", err)

		e.mu.Lock()
		cached := e.current
		e.mu.Unlock()
		if cached != nil {
			// Stale-but-valid beats no entitlement.
			return *cached
		}

		fallback := domain.Entitlement{
			Valid:     false,
			Features:  fallbackFeatures,
			MatchType: domain.MatchNone,
			CheckedAt: now,
		}
		e.install(ctx, fallback)
		return fallback
	}

	var ent domain.Entitlement
	if result.Precomputed != nil {
		ent = *result.Precomputed
		ent.DaysRemaining = domain.DaysUntil(ent.ExpiresAt, now)
		ent.CheckedAt = now
		if ent.Features == nil {
			ent.Features = []string{}
		}
	} else {
		ent = evaluate(result.Document, e.cfg.Host, email, now)
	}

	e.install(ctx, ent)

	e.logger.Info("entitlement validated",
		"valid", ent.Valid,
		"match_type", ent.MatchType,
		"features", len(ent.Features),
		"days_remaining", ent.DaysRemaining,
	)
	return ent
}

// Current returns the cached entitlement, computing one if none exists yet.
func (e *Engine) Current(ctx context.Context) domain.Entitlement {
	e.mu.Lock()
	cached := e.current
	e.mu.Unlock()

	if cached != nil {
		return *cached
	}
	return e.Validate(ctx)
}

// HasFeature reports whether the current entitlement grants the feature.
func (e *Engine) HasFeature(ctx context.Context, name string) bool {
	return e.Current(ctx).HasFeature(name)
}

// DaysRemaining returns whole days until license expiry, zero when invalid.
func (e *Engine) DaysRemaining(ctx context.Context) int {
	return e.Current(ctx).DaysRemaining
}

// NeedsRenewal is true when the license is valid but inside the renewal
// warning window.
func (e *Engine) NeedsRenewal(ctx context.Context) bool {
	d := e.Current(ctx).DaysRemaining
	return d > 0 && d <= e.cfg.RenewalWarningDays
}

// load returns a usable source result, reusing the in-memory document while
// it is inside DocumentTTL, then the persisted copy, then the remote source.
// Each tier populates the one above on success.
func (e *Engine) load(ctx context.Context, email string) (*Result, error) {
	now := e.now()

	e.mu.Lock()
	doc, fetchedAt := e.doc, e.docFetchedAt
	e.mu.Unlock()

	if doc != nil && now.Sub(fetchedAt) < e.cfg.DocumentTTL {
		return &Result{Document: doc}, nil
	}

	if doc == nil {
		if stored := e.loadStoredDocument(ctx); stored != nil {
			return &Result{Document: stored}, nil
		}
	}

	result, err := e.source.Load(ctx, e.cfg.Host, email)
	if err != nil {
		return nil, err
	}

	if result.Document != nil {
		e.mu.Lock()
		e.doc = result.Document
		e.docFetchedAt = now
		e.mu.Unlock()

		if data, err := json.Marshal(storedDocument{Document: result.Document, FetchedAt: now}); err == nil {
			if err := e.cache.Set(ctx, storedDocumentKey, data); err != nil {
				e.logger.Warn("license document persist failed", "error", err)
			}
		}
	}

	return result, nil
}

// storedDocument wraps the persisted license document with its fetch
// timestamp; the document itself is never locally mutated.
type storedDocument struct {
	Document  *domain.LicenseDocument `json:"document"`
	FetchedAt time.Time               `json:"fetched_at"`
}

func (e *Engine) loadStoredDocument(ctx context.Context) *domain.LicenseDocument {
	data, err := e.cache.Get(ctx, storedDocumentKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("license document cache read failed", "error", err)
		}
		return nil
	}

	var stored storedDocument
	if err := json.Unmarshal(data, &stored); err != nil {
		e.logger.Warn("license document cache decode failed", "error", err)
		return nil
	}
	if stored.Document == nil {
		return nil
	}
	if e.now().Sub(stored.FetchedAt) >= e.cfg.DocumentTTL {
		return nil
	}

	e.mu.Lock()
	e.doc = stored.Document
	e.docFetchedAt = stored.FetchedAt
	e.mu.Unlock()
	return stored.Document
}

// install caches the decision in memory and the store and notifies
// listeners.
func (e *Engine) install(ctx context.Context, ent domain.Entitlement) {
	if data, err := json.Marshal(ent); err == nil {
		if err := e.cache.Set(ctx, storedEntitlementKey, data); err != nil {
			e.logger.Warn("entitlement persist failed", "error", err)
		}
	}

	e.mu.Lock()
	e.current = &ent
	listeners := append([]registration(nil), e.listeners...)
	e.mu.Unlock()

	e.notify(listeners, ent)
}

// Teardown clears the cached decision and document. The next Validate call
// starts from the remote source.
func (e *Engine) Teardown(ctx context.Context) {
	if err := e.cache.Delete(ctx, storedEntitlementKey); err != nil {
		e.logger.Warn("entitlement cache delete failed", "error", err)
	}
	if err := e.cache.Delete(ctx, storedDocumentKey); err != nil {
		e.logger.Warn("license document cache delete failed", "error", err)
	}

	e.mu.Lock()
	e.current = nil
	e.doc = nil
	e.docFetchedAt = time.Time{}
	e.mu.Unlock()
}

// Subscribe registers a listener, invoking it immediately when a decision is
// already cached.
func (e *Engine) Subscribe(fn Listener) (cancel func()) {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners = append(e.listeners, registration{id: id, fn: fn})
	cached := e.current
	e.mu.Unlock()

	if cached != nil {
		e.notify([]registration{{id: id, fn: fn}}, *cached)
	}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, reg := range e.listeners {
			if reg.id == id {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) notify(listeners []registration, ent domain.Entitlement) {
	for _, reg := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("entitlement listener panicked", "panic", r)
				}
			}()
			reg.fn(ent)
		}()
	}
}
