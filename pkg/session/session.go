// Package session owns the authenticated Steam identity. Cookies are
// re-derived by driving a browser surface to the community root; the
// resulting cookie set is pushed to the HTTP layer through a sync hook.
// Browser operations are not thread-safe, so every surface call is marshaled
// onto a single dedicated goroutine and awaited through a completion signal.
package session

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/steamscope/steamscope/internal/utils"
)

const (
	// AuthCookieName is the cookie whose presence defines a live session.
	AuthCookieName = "steamLoginSecure"

	// DefaultRefreshInterval is how long a refreshed cookie set is trusted
	// before the next EnsureSession re-derives it.
	DefaultRefreshInterval = 6 * time.Hour

	// DefaultNavTimeout bounds one browser navigation.
	DefaultNavTimeout = 30 * time.Second

	// DefaultSettleDelay gives the browser a moment to commit cookies
	// after load completion before we read them.
	DefaultSettleDelay = 2 * time.Second

	communityRootURL = "https://steamcommunity.com/"
	loginURL         = "https://steamcommunity.com/login/home/"
)

// State is the authentication state machine position.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

var steamIDRe = regexp.MustCompile(`^(7656\d{13})`)

// ErrNoAuthCookie is returned when a refresh completes without producing the
// authentication cookie and no previously cached identity exists.
var ErrNoAuthCookie = errors.New("session: no authentication cookie after refresh")

// Config wires a Manager.
type Config struct {
	Factory         SurfaceFactory
	RefreshInterval time.Duration
	NavTimeout      time.Duration
	SettleDelay     time.Duration
	// OnCookies is invoked with the full browser cookie set after every
	// successful refresh. The HTTP layer uses it to synchronize its jar.
	OnCookies func([]*http.Cookie)
	// Now is the clock; nil means time.Now. The refresh policy is a pure
	// function of the clock so it can be tested without browser I/O.
	Now func() time.Time
}

// Manager owns the browser surface and the cached identity.
type Manager struct {
	cfg Config

	mu          sync.Mutex
	state       State
	steamID     string
	lastRefresh time.Time
	surface     Surface

	uiOnce sync.Once
	uiOps  chan func()
}

func NewManager(cfg Config) *Manager {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = DefaultNavTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	} else if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg}
}

// SteamID returns the cached numeric identity, empty if never derived.
func (m *Manager) SteamID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steamID
}

// SetSteamID seeds the identity from configuration, for users whose profile
// ID is known without a cookie round trip.
func (m *Manager) SetSteamID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != "" {
		m.steamID = id
		if m.state == Unauthenticated {
			m.state = Authenticated
		}
	}
}

// State returns the current state machine position.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// needsRefresh is the pure refresh policy: refresh when forced, when no
// refresh ever happened, or when the interval has elapsed.
func needsRefresh(now, lastRefresh time.Time, interval time.Duration, force, haveCookies bool) bool {
	if force {
		return true
	}
	if !haveCookies || lastRefresh.IsZero() {
		return true
	}
	return now.Sub(lastRefresh) >= interval
}

// runOnSurface marshals fn onto the single UI-affinity goroutine and waits
// for it.
func (m *Manager) runOnSurface(ctx context.Context, fn func() error) error {
	m.uiOnce.Do(func() {
		m.uiOps = make(chan func())
		go func() {
			for op := range m.uiOps {
				op()
			}
		}()
	})
	done := make(chan error, 1)
	select {
	case m.uiOps <- func() { done <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureSession refreshes cookies if the refresh policy calls for it. The
// refresh timestamp advances whether or not the refresh succeeded, so a
// broken browser cannot cause a refresh storm on every subsequent call.
func (m *Manager) EnsureSession(ctx context.Context, force bool) error {
	m.mu.Lock()
	now := m.cfg.Now()
	if !needsRefresh(now, m.lastRefresh, m.cfg.RefreshInterval, force, m.surface != nil) {
		m.mu.Unlock()
		return nil
	}
	m.state = Authenticating
	m.mu.Unlock()

	err := m.runOnSurface(ctx, func() error { return m.refresh(ctx) })

	m.mu.Lock()
	m.lastRefresh = m.cfg.Now()
	if m.steamID != "" {
		m.state = Authenticated
	} else {
		m.state = Unauthenticated
	}
	m.mu.Unlock()
	return err
}

// refresh runs on the UI goroutine.
func (m *Manager) refresh(ctx context.Context) error {
	surface, err := m.ensureSurface(false)
	if err != nil {
		return err
	}

	if err := surface.Navigate(ctx, communityRootURL, m.cfg.NavTimeout); err != nil {
		return err
	}
	if err := sleepCtx(ctx, m.cfg.SettleDelay); err != nil {
		return err
	}

	cookies, err := surface.Cookies(ctx)
	if err != nil {
		return err
	}
	return m.adoptCookies(cookies)
}

// adoptCookies inspects a browser cookie set for the authentication cookie,
// caches the identity it carries and pushes the set to the HTTP layer.
func (m *Manager) adoptCookies(cookies []*http.Cookie) error {
	if m.cfg.OnCookies != nil {
		m.cfg.OnCookies(cookies)
	}

	auth := findCookie(cookies, AuthCookieName)
	if auth == nil {
		m.mu.Lock()
		cached := m.steamID
		m.mu.Unlock()
		if cached != "" {
			return nil
		}
		return ErrNoAuthCookie
	}

	if id := ExtractSteamID(auth.Value); id != "" {
		m.mu.Lock()
		m.steamID = id
		m.mu.Unlock()
	} else {
		// Cookie presence alone is sufficient signal when an identity was
		// cached earlier; the value format shifts more often than the name.
		m.mu.Lock()
		cached := m.steamID
		m.mu.Unlock()
		if cached == "" {
			utils.Log.Warn("auth cookie present but no identity could be extracted")
		}
	}
	return nil
}

// AuthenticateInteractive opens a user-visible login surface and waits for
// the authentication cookie to appear, closing the surface once it does.
// The wait is bounded only by ctx and the surface's own lifecycle.
func (m *Manager) AuthenticateInteractive(ctx context.Context) error {
	m.mu.Lock()
	m.state = Authenticating
	m.mu.Unlock()

	err := m.runOnSurface(ctx, func() error { return m.interactiveLogin(ctx) })

	m.mu.Lock()
	m.lastRefresh = m.cfg.Now()
	if m.steamID != "" {
		m.state = Authenticated
	} else {
		m.state = Unauthenticated
	}
	m.mu.Unlock()
	return err
}

func (m *Manager) interactiveLogin(ctx context.Context) error {
	surface, err := m.cfg.Factory(true)
	if err != nil {
		return err
	}
	defer surface.Close()

	if err := surface.Navigate(ctx, loginURL, m.cfg.NavTimeout); err != nil {
		return err
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cookies, err := surface.Cookies(ctx)
		if err != nil {
			continue
		}
		if findCookie(cookies, AuthCookieName) != nil {
			return m.adoptCookies(cookies)
		}
	}
}

// Cookies reads the browser's current cookie set, starting the off-screen
// surface if needed.
func (m *Manager) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var out []*http.Cookie
	err := m.runOnSurface(ctx, func() error {
		surface, err := m.ensureSurface(false)
		if err != nil {
			return err
		}
		cookies, err := surface.Cookies(ctx)
		if err != nil {
			return err
		}
		out = cookies
		return nil
	})
	return out, err
}

// Invalidate wipes community cookies so the next EnsureSession starts clean.
func (m *Manager) Invalidate(ctx context.Context) error {
	return m.runOnSurface(ctx, func() error {
		surface, err := m.ensureSurface(false)
		if err != nil {
			return err
		}
		return surface.DeleteCookies(ctx, "steamcommunity.com")
	})
}

// Close tears down the off-screen surface.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.surface == nil {
		return nil
	}
	err := m.surface.Close()
	m.surface = nil
	return err
}

func (m *Manager) ensureSurface(visible bool) (Surface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.surface != nil {
		return m.surface, nil
	}
	surface, err := m.cfg.Factory(visible)
	if err != nil {
		return nil, err
	}
	m.surface = surface
	return surface, nil
}

// ExtractSteamID pulls the 17-digit SteamID64 from an auth cookie value,
// which is rendered as "<id>%7C%7C<token>".
func ExtractSteamID(cookieValue string) string {
	if m := steamIDRe.FindStringSubmatch(cookieValue); m != nil {
		return m[1]
	}
	return ""
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return c
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
