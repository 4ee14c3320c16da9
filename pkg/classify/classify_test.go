package classify

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const statsURL = "https://steamcommunity.com/profiles/76561198000000000/stats/440/achievements"

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func achieveRow(title string) string {
	return `<div class="achieveRow"><div class="achieveImgHolder"><img src="https://cdn.example/apps/440/abc.jpg"></div><div class="achieveTxt"><h3>` + title + `</h3><h5>desc</h5></div></div>`
}

func TestClassifyScraped(t *testing.T) {
	html := `<html><body>` + achieveRow("First Blood") + achieveRow("Second") + `</body></html>`
	require.Equal(t, Scraped, Classify(doc(t, html), statsURL, 200))
}

func TestClassifyRowsBeatNegativeMarkers(t *testing.T) {
	// A genuine row must win even when login and private markers are
	// present elsewhere in the page chrome.
	html := `<html><body><form id="loginForm"></form><div class="profile_private_info">x</div>` +
		achieveRow("Winner") + `</body></html>`
	require.Equal(t, Scraped, Classify(doc(t, html), statsURL, 200))
}

func TestClassifyAllHidden(t *testing.T) {
	html := `<html><body><div class="achieveRow hidden"></div><div class="achieveRow hidden"></div></body></html>`
	require.Equal(t, AllHidden, Classify(doc(t, html), statsURL, 200))
}

func TestClassifyExclusiveVerdicts(t *testing.T) {
	cases := []struct {
		name string
		html string
		url  string
		code int
		want Verdict
	}{
		{"private", `<div class="profile_private_info">This profile is private</div>`, statsURL, 200, ProfilePrivate},
		{"not found", `<div class="profile_fatalerror"><h3>gone</h3></div>`, statsURL, 200, ProfileNotFound},
		{"login form", `<form id="loginForm"></form>`, statsURL, 200, Unauthenticated},
		{"generic error", `<div class="error_ctn"><h3>oops</h3></div>`, statsURL, 200, StructurallyUnavailable},
		{"rate limited", `<html></html>`, statsURL, 429, TooManyRequests},
		{"login redirect", `<html></html>`, "https://login.steampowered.com/", 200, Unauthenticated},
		{"off stats", `<html></html>`, "https://steamcommunity.com/id/someone/home", 200, RedirectOffStats},
		{"ambiguous", `<html><body><p>nothing here</p></body></html>`, statsURL, 200, NoRowsUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(doc(t, tc.html), tc.url, tc.code))
		})
	}
}

func TestVerdictRetryPartition(t *testing.T) {
	for _, v := range []Verdict{TooManyRequests, Unauthenticated, NoRowsUnknown, RedirectOffStats, StructurallyUnavailable} {
		require.True(t, v.Transient(), v.String())
		require.False(t, v.Terminal(), v.String())
	}
	for _, v := range []Verdict{Scraped, ProfilePrivate, ProfileNotFound, NoAchievements, AllHidden} {
		require.True(t, v.Terminal(), v.String())
		require.False(t, v.Transient(), v.String())
	}
}

func TestIsLoginURL(t *testing.T) {
	require.True(t, IsLoginURL("https://login.steampowered.com/jwt/refresh"))
	require.True(t, IsLoginURL("https://steamcommunity.com/login/home/?goto="))
	require.False(t, IsLoginURL(statsURL))
}

func TestLegacyRowSelector(t *testing.T) {
	html := `<div class="achievement_list"><div class="achievement"><img src="x.jpg"><h3>Old One</h3></div></div>`
	require.Equal(t, 1, Rows(doc(t, html)).Length())
}
