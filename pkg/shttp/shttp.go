// Package shttp owns every HTTP conversation with the community site. It
// keeps two clients apart on purpose: a cookie-bearing one for community
// pages, and a bare one for the JSON API so the API key never travels next
// to the session cookies.
package shttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/publicsuffix"

	"github.com/steamscope/steamscope/internal/utils"
	"github.com/steamscope/steamscope/pkg/classify"
)

const (
	COMMUNITY_BASE_URL = "https://steamcommunity.com"
	PROBE_URL          = COMMUNITY_BASE_URL + "/my/"

	USER_AGENT = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// TRANSPORT_RETRIES is per request; the outer scan driver handles
	// retrying whole units of work.
	TRANSPORT_RETRIES = 2

	// Cookie resync from the session manager is throttled; the jar only
	// goes stale when the browser refreshes, which is hours apart.
	cookieSyncInterval = 30 * time.Second
)

// SessionSource is the slice of the session manager the orchestrator needs.
type SessionSource interface {
	EnsureSession(ctx context.Context, force bool) error
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	SteamID() string
}

// Outcome is the result of fetching one stats page: the parsed document
// when one was obtained, the classifier's verdict, and the URLs involved so
// redirect behaviour stays debuggable.
type Outcome struct {
	Verdict      classify.Verdict
	StatusCode   int
	RequestedURL string
	FinalURL     string
	Doc          *goquery.Document
}

// Client is the HTTP orchestrator.
type Client struct {
	session  SessionSource
	language string

	community *retryablehttp.Client
	jar       http.CookieJar

	mu        sync.Mutex
	lastSync  time.Time
	refreshed bool // one forced session refresh already spent this run
}

func newRetryClient() *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = TRANSPORT_RETRIES
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = nil
	return rc
}

// NewClient builds the orchestrator. language is the Steam language code
// pages are requested in; it drives both the l= query parameter and the
// Accept-Language header so the two never disagree.
func NewClient(session SessionSource, language string) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	community := newRetryClient()
	community.HTTPClient.Jar = jar
	community.HTTPClient.Timeout = 60 * time.Second

	return &Client{
		session:   session,
		language:  language,
		community: community,
		jar:       jar,
	}, nil
}

// APIHTTPClient returns a cookie-free retrying client for the JSON API.
func APIHTTPClient() *http.Client {
	rc := newRetryClient()
	rc.HTTPClient.Timeout = 30 * time.Second
	return rc.StandardClient()
}

func (c *Client) setHeaders(req *retryablehttp.Request) {
	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", acceptLanguage(c.language))
	req.Header.Set("Cache-Control", "no-transform")
}

// acceptLanguage maps a Steam language code to a plausible browser header.
func acceptLanguage(language string) string {
	tags := map[string]string{
		"english": "en-US,en;q=0.9", "german": "de-DE,de;q=0.9,en;q=0.5",
		"french": "fr-FR,fr;q=0.9,en;q=0.5", "italian": "it-IT,it;q=0.9,en;q=0.5",
		"spanish": "es-ES,es;q=0.9,en;q=0.5", "latam": "es-MX,es;q=0.9,en;q=0.5",
		"portuguese": "pt-PT,pt;q=0.9,en;q=0.5", "brazilian": "pt-BR,pt;q=0.9,en;q=0.5",
		"russian": "ru-RU,ru;q=0.9,en;q=0.5", "polish": "pl-PL,pl;q=0.9,en;q=0.5",
		"japanese": "ja-JP,ja;q=0.9,en;q=0.5", "koreana": "ko-KR,ko;q=0.9,en;q=0.5",
		"schinese": "zh-CN,zh;q=0.9,en;q=0.5", "tchinese": "zh-TW,zh;q=0.9,en;q=0.5",
	}
	if tag, ok := tags[strings.ToLower(language)]; ok {
		return tag
	}
	return "en-US,en;q=0.9"
}

// syncCookies copies the session manager's cookies into the jar. Throttled
// to once per cookieSyncInterval unless forced.
func (c *Client) syncCookies(ctx context.Context, force bool) error {
	c.mu.Lock()
	due := force || time.Since(c.lastSync) >= cookieSyncInterval
	c.mu.Unlock()
	if !due {
		return nil
	}

	cookies, err := c.session.Cookies(ctx)
	if err != nil {
		return err
	}
	base, _ := url.Parse(COMMUNITY_BASE_URL)
	c.jar.SetCookies(base, cookies)

	c.mu.Lock()
	c.lastSync = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	c.setHeaders(req)
	return c.community.Do(req)
}

// StatsURL builds the canonical achievements URL for a profile and app.
func (c *Client) StatsURL(steamID string, appID int) string {
	return fmt.Sprintf("%s/profiles/%s/stats/%d/achievements/?l=%s",
		COMMUNITY_BASE_URL, steamID, appID, url.QueryEscape(c.language))
}

// StatsURLWithKey builds the achievements URL from a game's own stats key.
// Some titles only resolve under their vanity key, not the numeric app id.
func (c *Client) StatsURLWithKey(steamID, statsKey string) string {
	return fmt.Sprintf("%s/profiles/%s/stats/%s/achievements/?l=%s",
		COMMUNITY_BASE_URL, steamID, url.PathEscape(statsKey), url.QueryEscape(c.language))
}

// FetchStatsPage fetches and classifies one stats page. When the page comes
// back unauthenticated it spends the run's single forced session refresh
// and retries once; further auth failures surface as-is so a dead login
// cannot trigger a refresh storm.
func (c *Client) FetchStatsPage(ctx context.Context, pageURL string) (*Outcome, error) {
	if err := c.session.EnsureSession(ctx, false); err != nil {
		return nil, err
	}
	if err := c.syncCookies(ctx, false); err != nil {
		return nil, err
	}

	out, err := c.fetchOnce(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if out.Verdict != classify.Unauthenticated {
		return out, nil
	}

	c.mu.Lock()
	spent := c.refreshed
	c.refreshed = true
	c.mu.Unlock()
	if spent {
		return out, nil
	}

	utils.Log.Info("Page came back unauthenticated, refreshing session and retrying once")
	if err := c.session.EnsureSession(ctx, true); err != nil {
		return out, nil
	}
	if err := c.syncCookies(ctx, true); err != nil {
		return out, nil
	}
	retried, err := c.fetchOnce(ctx, pageURL)
	if err != nil {
		return out, nil
	}
	return retried, nil
}

func (c *Client) fetchOnce(ctx context.Context, pageURL string) (*Outcome, error) {
	resp, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Outcome{
		StatusCode:   resp.StatusCode,
		RequestedURL: pageURL,
		FinalURL:     pageURL,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	out.Doc = doc
	out.Verdict = classify.Classify(doc, out.FinalURL, resp.StatusCode)

	utils.Log.WithField("url", pageURL).WithField("verdict", out.Verdict.String()).
		WithField("status", resp.StatusCode).Debug("Fetched stats page")
	return out, nil
}

// ErrNotLoggedIn is returned by ProbeLoggedIn when the community site
// bounced the probe to the login page.
var ErrNotLoggedIn = errors.New("shttp: community site does not recognize the session")

// ProbeLoggedIn checks whether the current cookies are accepted by the
// community site. The /my/ route redirects to the profile when logged in
// and to the login page when not, so the final URL is the whole answer.
func (c *Client) ProbeLoggedIn(ctx context.Context) error {
	if err := c.syncCookies(ctx, true); err != nil {
		return err
	}
	resp, err := c.get(ctx, PROBE_URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	final := PROBE_URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	if classify.IsLoginURL(final) {
		return ErrNotLoggedIn
	}
	utils.Log.WithField("final_url", final).Debug("Session probe passed")
	return nil
}
