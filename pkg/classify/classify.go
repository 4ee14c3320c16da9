// Package classify decides what a fetched community stats page actually is.
// These pages are user-facing HTML with no stable schema, rendered in the
// viewer's language, so every check here is structural (selectors and URLs),
// never text matching. Checks are layered from most specific to least
// specific: a false "private" or false "unauthenticated" diagnosis would
// trigger pointless session refresh storms upstream.
package classify

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Verdict is the closed classification of one stats page fetch.
type Verdict int

const (
	// Scraped means genuine achievement rows were found.
	Scraped Verdict = iota
	// Unauthenticated means the session cookies no longer identify a user.
	Unauthenticated
	// ProfilePrivate means the profile hides game details.
	ProfilePrivate
	// ProfileNotFound means the profile identifier resolves to nothing.
	ProfileNotFound
	// StructurallyUnavailable is a generic Steam error block with no more
	// specific marker.
	StructurallyUnavailable
	// AllHidden means rows exist but every one is the hidden-achievement
	// placeholder.
	AllHidden
	// NoAchievements is assigned by the scanner once the schema confirms
	// the game defines none; Classify itself never returns it.
	NoAchievements
	// RedirectOffStats means navigation left the stats route entirely.
	RedirectOffStats
	// TooManyRequests is an HTTP 429.
	TooManyRequests
	// NoRowsUnknown is the ambiguous zero-row case that triggers a
	// same-URL retry with an explicit language parameter.
	NoRowsUnknown
)

var verdictNames = map[Verdict]string{
	Scraped:                 "scraped",
	Unauthenticated:         "unauthenticated",
	ProfilePrivate:          "profile_private",
	ProfileNotFound:         "profile_not_found",
	StructurallyUnavailable: "structurally_unavailable",
	AllHidden:               "all_hidden",
	NoAchievements:          "no_achievements",
	RedirectOffStats:        "redirect_off_stats",
	TooManyRequests:         "too_many_requests",
	NoRowsUnknown:           "no_rows_unknown",
}

func (v Verdict) String() string {
	if s, ok := verdictNames[v]; ok {
		return s
	}
	return "unknown"
}

// Transient reports whether a fetch ending in this verdict is worth
// retrying. Private, not-found, no-achievements and all-hidden are terminal
// outcomes for the game; retrying them only burns rate-limit budget.
func (v Verdict) Transient() bool {
	switch v {
	case TooManyRequests, Unauthenticated, NoRowsUnknown, RedirectOffStats, StructurallyUnavailable:
		return true
	}
	return false
}

// Terminal reports whether the verdict is a definitive per-game outcome that
// must never be retried.
func (v Verdict) Terminal() bool {
	switch v {
	case Scraped, ProfilePrivate, ProfileNotFound, NoAchievements, AllHidden:
		return true
	}
	return false
}

const (
	modernRowSelector  = "div.achieveRow"
	legacyRowSelector  = ".achievement_list .achievement, table.achievementList tr.achieveRow"
	genericRowSelector = "div[class*='achieve'][class*='Row'], div[id^='achievement_']"

	summarySelector = "#topSummaryAchievements, .achieveBarSummary, .achievement_progress"

	privateSelector  = ".profile_private_info"
	notFoundSelector = ".profile_fatalerror, .profile_fatalerror_message"
	errorSelector    = ".error_ctn, #error_msg"
	loginSelector    = "#loginForm, form[action*='login'], .login_bottom_row"
)

// Rows returns the achievement row selection for the page, trying the modern
// card layout first, then the legacy table layout, then a generic fallback.
// Whichever selector yields the first non-empty set wins for the page.
func Rows(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{modernRowSelector, legacyRowSelector, genericRowSelector} {
		s := doc.Find(sel)
		if s.Length() > 0 {
			return s
		}
	}
	return doc.Find(modernRowSelector)
}

// Summary returns the "X of Y achievements" header selection.
func Summary(doc *goquery.Document) *goquery.Selection {
	return doc.Find(summarySelector)
}

// IsHiddenPlaceholder reports whether a row is the hidden-achievement
// placeholder rather than a real achievement: no title text and no icon.
func IsHiddenPlaceholder(row *goquery.Selection) bool {
	if cls, ok := row.Attr("class"); ok && strings.Contains(strings.ToLower(cls), "hidden") {
		return true
	}
	title := strings.TrimSpace(row.Find("h3").First().Text())
	if title != "" {
		return false
	}
	img := row.Find("img").First()
	src, _ := img.Attr("src")
	return strings.TrimSpace(src) == ""
}

// IsLoginURL reports whether a resolved URL looks like the login surface.
// Probing the outcome URL is cheaper and locale-proof compared to reading
// page content.
func IsLoginURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)
	if strings.HasPrefix(host, "login.") {
		return true
	}
	return strings.HasPrefix(path, "/login") || strings.Contains(path, "/openid/")
}

// IsStatsURL reports whether a resolved URL is still on the per-game stats
// route.
func IsStatsURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.Contains(path, "/stats/") || strings.HasSuffix(path, "/stats") ||
		strings.Contains(path, "/achievements")
}

// Classify buckets one fetched page into exactly one verdict. finalURL is
// the URL after redirects; statusCode the final HTTP status. Row presence
// always wins over every negative marker on the page.
func Classify(doc *goquery.Document, finalURL string, statusCode int) Verdict {
	if statusCode == http.StatusTooManyRequests {
		return TooManyRequests
	}

	rows := Rows(doc)
	if rows.Length() > 0 {
		genuine := 0
		rows.Each(func(_ int, row *goquery.Selection) {
			if !IsHiddenPlaceholder(row) {
				genuine++
			}
		})
		if genuine > 0 {
			return Scraped
		}
		return AllHidden
	}

	// No rows: figure out why. First establish whether we are even looking
	// at a stats page.
	if finalURL != "" && !IsStatsURL(finalURL) {
		if IsLoginURL(finalURL) {
			return Unauthenticated
		}
		return RedirectOffStats
	}

	if doc.Find(loginSelector).Length() > 0 {
		return Unauthenticated
	}
	if doc.Find(privateSelector).Length() > 0 {
		return ProfilePrivate
	}
	if doc.Find(notFoundSelector).Length() > 0 {
		return ProfileNotFound
	}
	if doc.Find(errorSelector).Length() > 0 {
		return StructurallyUnavailable
	}

	return NoRowsUnknown
}
