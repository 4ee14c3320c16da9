package scanner

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steamscope/steamscope/pkg/classify"
	"github.com/steamscope/steamscope/pkg/retry"
	"github.com/steamscope/steamscope/pkg/shttp"
	"github.com/steamscope/steamscope/pkg/steamapi"
)

const testSteamID = "76561198000000001"

const germanStatsPage = `<html><body>
<div id="topSummaryAchievements">1 von 3 Errungenschaften</div>
<div class="achieveRow">
  <div class="achieveImgHolder"><img src="https://cdn.example.com/apps/440/a.jpg"/></div>
  <h3>Geschafft</h3><h5>Beende Kapitel zwei</h5>
  <div class="achieveUnlockTime">Freigeschaltet am 12. M&#228;rz um 14:30</div>
</div>
<div class="achieveRow">
  <div class="achieveImgHolder"><img src="https://cdn.example.com/apps/440/b.jpg"/></div>
  <h3>Anf&#228;nger</h3><h5>Starte das Spiel</h5>
</div>
</body></html>`

// garbledStatsPage unlocks the same row as germanStatsPage but its unlock
// marker carries no recognizable date.
const garbledStatsPage = `<html><body>
<div id="topSummaryAchievements">1 von 3 Errungenschaften</div>
<div class="achieveRow">
  <div class="achieveImgHolder"><img src="https://cdn.example.com/apps/440/a.jpg"/></div>
  <h3>Geschafft</h3><h5>Beende Kapitel zwei</h5>
  <div class="achieveUnlockTime">Freigeschaltet am Blorptag im Nebelmond</div>
</div>
<div class="achieveRow">
  <div class="achieveImgHolder"><img src="https://cdn.example.com/apps/440/b.jpg"/></div>
  <h3>Anf&#228;nger</h3><h5>Starte das Spiel</h5>
</div>
</body></html>`

const privatePage = `<html><body><div class="profile_private_info">Dieses Profil ist privat.</div></body></html>`

type fakeFetcher struct {
	probeErr error
	fetchFn  func(pageURL string) (*shttp.Outcome, error)
	fetches  []string
}

func (f *fakeFetcher) ProbeLoggedIn(ctx context.Context) error { return f.probeErr }

func (f *fakeFetcher) StatsURL(steamID string, appID int) string {
	return fmt.Sprintf("https://steamcommunity.com/profiles/%s/stats/%d/achievements/?l=german", steamID, appID)
}

func (f *fakeFetcher) StatsURLWithKey(steamID, statsKey string) string {
	return fmt.Sprintf("https://steamcommunity.com/profiles/%s/stats/%s/achievements/?l=german", steamID, statsKey)
}

func (f *fakeFetcher) FetchStatsPage(ctx context.Context, pageURL string) (*shttp.Outcome, error) {
	f.fetches = append(f.fetches, pageURL)
	return f.fetchFn(pageURL)
}

type fakeAPI struct {
	owned       map[int]steamapi.OwnedGame
	ownedCalls  int
	schemas     map[int][]steamapi.SchemaAchievement
	schemaCalls map[int]int
	statsKeys   map[int]string
	keyCalls    int
}

func (f *fakeAPI) GetOwnedGames(ctx context.Context, steamID string) map[int]steamapi.OwnedGame {
	f.ownedCalls++
	return f.owned
}

func (f *fakeAPI) GetSchema(ctx context.Context, appID int, language string) []steamapi.SchemaAchievement {
	if f.schemaCalls == nil {
		f.schemaCalls = make(map[int]int)
	}
	f.schemaCalls[appID]++
	return f.schemas[appID]
}

func (f *fakeAPI) GetStatsKey(ctx context.Context, appID int) string {
	f.keyCalls++
	return f.statsKeys[appID]
}

func outcomeFrom(t *testing.T, pageURL, html string) *shttp.Outcome {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return &shttp.Outcome{
		Verdict:      classify.Classify(doc, pageURL, 200),
		StatusCode:   200,
		RequestedURL: pageURL,
		FinalURL:     pageURL,
		Doc:          doc,
	}
}

func quickDriver() *retry.Driver {
	d := retry.New()
	d.Sleep = func(ctx context.Context, dur time.Duration) error { return nil }
	return d
}

func germanSchema() []steamapi.SchemaAchievement {
	return []steamapi.SchemaAchievement{
		{Name: "ACH_1", DisplayName: "Meister", Description: "Gewinne 100 Spiele",
			IconURL: "https://cdn.example.com/apps/440/a.jpg"},
		{Name: "ACH_2", DisplayName: "Geschafft", Description: "Beende Kapitel zwei",
			IconURL: "https://cdn.example.com/apps/440/a.jpg"},
		{Name: "ACH_3", DisplayName: "Anfänger", Description: "Starte das Spiel",
			IconURL: "https://cdn.example.com/apps/440/b.jpg"},
	}
}

func testScanner(fetcher *fakeFetcher, api *fakeAPI, includeLocked bool, onResult func(GameResult)) *Scanner {
	return New(Config{
		Fetcher:       fetcher,
		API:           api,
		Driver:        quickDriver(),
		Language:      "german",
		IncludeLocked: includeLocked,
		OnResult:      onResult,
		Now:           func() time.Time { return time.Date(2020, 7, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func TestScanAbortsWhenNotLoggedIn(t *testing.T) {
	fetcher := &fakeFetcher{probeErr: shttp.ErrNotLoggedIn}
	api := &fakeAPI{owned: map[int]steamapi.OwnedGame{440: {AppID: 440, Name: "Team Fortress 2"}}}
	s := testScanner(fetcher, api, true, nil)

	_, err := s.ScanGames(context.Background(), testSteamID, nil)
	require.ErrorIs(t, err, ErrAuthRequired)
	assert.Empty(t, fetcher.fetches, "an unauthenticated run must not touch any stats page")
}

func TestScanReconcilesSharedIconByDescription(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.fetchFn = func(pageURL string) (*shttp.Outcome, error) {
		return outcomeFrom(t, pageURL, germanStatsPage), nil
	}
	api := &fakeAPI{
		owned:   map[int]steamapi.OwnedGame{440: {AppID: 440, Name: "Team Fortress 2", PlaytimeMinutes: 120}},
		schemas: map[int][]steamapi.SchemaAchievement{440: germanSchema()},
	}

	var results []GameResult
	s := testScanner(fetcher, api, true, func(r GameResult) { results = append(results, r) })

	summary, err := s.ScanGames(context.Background(), testSteamID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, classify.Scraped, r.Verdict)
	require.Len(t, r.Achievements, 3)

	// Schema order is preserved; the shared a.jpg row lands on ACH_2 via
	// its description, leaving ACH_1 locked.
	assert.Equal(t, "ACH_1", r.Achievements[0].APIName)
	assert.False(t, r.Achievements[0].Unlocked)

	a2 := r.Achievements[1]
	assert.Equal(t, "ACH_2", a2.APIName)
	assert.True(t, a2.Unlocked)
	assert.Equal(t, "Geschafft", a2.DisplayName)
	require.NotNil(t, a2.UnlockTime)
	assert.Equal(t, time.March, a2.UnlockTime.Month())
	assert.Equal(t, 12, a2.UnlockTime.Day())
	assert.Equal(t, 14, a2.UnlockTime.Hour())
	assert.Equal(t, 2020, a2.UnlockTime.Year())

	a3 := r.Achievements[2]
	assert.Equal(t, "ACH_3", a3.APIName)
	assert.False(t, a3.Unlocked, "summary says one unlock, the second row is locked")
}

func TestScanLockedFilteredOut(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.fetchFn = func(pageURL string) (*shttp.Outcome, error) {
		return outcomeFrom(t, pageURL, germanStatsPage), nil
	}
	api := &fakeAPI{
		owned:   map[int]steamapi.OwnedGame{440: {AppID: 440, Name: "Team Fortress 2"}},
		schemas: map[int][]steamapi.SchemaAchievement{440: germanSchema()},
	}

	var results []GameResult
	s := testScanner(fetcher, api, false, func(r GameResult) { results = append(results, r) })
	_, err := s.ScanGames(context.Background(), testSteamID, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Achievements, 1)
	assert.Equal(t, "ACH_2", results[0].Achievements[0].APIName)
}

func TestScanSchemalessGameSkipsPageFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	api := &fakeAPI{
		owned:   map[int]steamapi.OwnedGame{10: {AppID: 10, Name: "Counter-Strike"}},
		schemas: map[int][]steamapi.SchemaAchievement{},
	}
	s := testScanner(fetcher, api, true, nil)

	summary, err := s.ScanGames(context.Background(), testSteamID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NoAchievements)
	assert.Empty(t, fetcher.fetches)

	// The no-achievements answer is cached per app.
	_, err = s.ScanGames(context.Background(), testSteamID, []int{10})
	require.NoError(t, err)
	assert.Equal(t, 1, api.schemaCalls[10])
}

func TestScanRetriesTransientVerdict(t *testing.T) {
	attempts := 0
	fetcher := &fakeFetcher{}
	fetcher.fetchFn = func(pageURL string) (*shttp.Outcome, error) {
		attempts++
		if attempts < 3 {
			out := outcomeFrom(t, pageURL, "<html><body></body></html>")
			out.Verdict = classify.TooManyRequests
			out.StatusCode = 429
			return out, nil
		}
		return outcomeFrom(t, pageURL, germanStatsPage), nil
	}
	api := &fakeAPI{
		owned:   map[int]steamapi.OwnedGame{440: {AppID: 440, Name: "Team Fortress 2"}},
		schemas: map[int][]steamapi.SchemaAchievement{440: germanSchema()},
	}
	s := testScanner(fetcher, api, true, nil)

	summary, err := s.ScanGames(context.Background(), testSteamID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 3, attempts)
}

func TestScanCountsUnparseableUnlockTimes(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.fetchFn = func(pageURL string) (*shttp.Outcome, error) {
		return outcomeFrom(t, pageURL, garbledStatsPage), nil
	}
	api := &fakeAPI{
		owned:   map[int]steamapi.OwnedGame{440: {AppID: 440, Name: "Team Fortress 2"}},
		schemas: map[int][]steamapi.SchemaAchievement{440: germanSchema()},
	}
	var results []GameResult
	s := testScanner(fetcher, api, true, func(r GameResult) { results = append(results, r) })

	summary, err := s.ScanGames(context.Background(), testSteamID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.ParseFailures)

	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].ParseFailures)

	// The summary header still settles unlock state; only the timestamp
	// is lost.
	require.Len(t, results[0].Achievements, 3)
	a2 := results[0].Achievements[1]
	assert.Equal(t, "ACH_2", a2.APIName)
	assert.True(t, a2.Unlocked)
	assert.Nil(t, a2.UnlockTime)
}

func TestScanAmbiguousPageRetriedUnderStatsKey(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.fetchFn = func(pageURL string) (*shttp.Outcome, error) {
		if strings.Contains(pageURL, "/stats/TF2/") {
			return outcomeFrom(t, pageURL, germanStatsPage), nil
		}
		out := outcomeFrom(t, pageURL, "<html><body></body></html>")
		out.Verdict = classify.NoRowsUnknown
		return out, nil
	}
	api := &fakeAPI{
		owned:     map[int]steamapi.OwnedGame{440: {AppID: 440, Name: "Team Fortress 2"}},
		schemas:   map[int][]steamapi.SchemaAchievement{440: germanSchema()},
		statsKeys: map[int]string{440: "TF2"},
	}
	s := testScanner(fetcher, api, true, nil)

	summary, err := s.ScanGames(context.Background(), testSteamID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, api.keyCalls)

	require.Len(t, fetcher.fetches, 2)
	assert.Contains(t, fetcher.fetches[0], "/stats/440/")
	assert.Contains(t, fetcher.fetches[1], "/stats/TF2/")
}

func TestScanTerminalVerdictNotRetried(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.fetchFn = func(pageURL string) (*shttp.Outcome, error) {
		return outcomeFrom(t, pageURL, privatePage), nil
	}
	api := &fakeAPI{
		owned:   map[int]steamapi.OwnedGame{440: {AppID: 440, Name: "Team Fortress 2"}},
		schemas: map[int][]steamapi.SchemaAchievement{440: germanSchema()},
	}
	var results []GameResult
	s := testScanner(fetcher, api, true, func(r GameResult) { results = append(results, r) })

	summary, err := s.ScanGames(context.Background(), testSteamID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, fetcher.fetches, 1, "a private profile must not be retried")
	require.Len(t, results, 1)
	assert.Equal(t, classify.ProfilePrivate, results[0].Verdict)
	assert.NoError(t, results[0].Err)
}

func TestScanFailedGameDoesNotAbortRun(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.fetchFn = func(pageURL string) (*shttp.Outcome, error) {
		if strings.Contains(pageURL, "/stats/10/") {
			out := outcomeFrom(t, pageURL, "<html><body></body></html>")
			out.Verdict = classify.TooManyRequests
			return out, nil
		}
		return outcomeFrom(t, pageURL, germanStatsPage), nil
	}
	api := &fakeAPI{
		owned: map[int]steamapi.OwnedGame{
			10:  {AppID: 10, Name: "Counter-Strike"},
			440: {AppID: 440, Name: "Team Fortress 2"},
		},
		schemas: map[int][]steamapi.SchemaAchievement{
			10:  germanSchema(),
			440: germanSchema(),
		},
	}
	var results []GameResult
	s := testScanner(fetcher, api, true, func(r GameResult) { results = append(results, r) })

	summary, err := s.ScanGames(context.Background(), testSteamID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Scanned)

	require.Len(t, results, 2, "results arrive in game order, failed or not")
	assert.Equal(t, 10, results[0].AppID)
	assert.Error(t, results[0].Err)
	assert.Equal(t, 440, results[1].AppID)
	assert.NoError(t, results[1].Err)
}

func TestOwnedGamesCachedAndInvalidated(t *testing.T) {
	api := &fakeAPI{owned: map[int]steamapi.OwnedGame{440: {AppID: 440, Name: "Team Fortress 2"}}}
	s := testScanner(&fakeFetcher{}, api, true, nil)

	ctx := context.Background()
	s.OwnedGames(ctx, testSteamID)
	s.OwnedGames(ctx, testSteamID)
	assert.Equal(t, 1, api.ownedCalls)

	s.InvalidateOwned(testSteamID)
	s.OwnedGames(ctx, testSteamID)
	assert.Equal(t, 2, api.ownedCalls)
}

func TestOwnedGamesEmptyAnswerNotCached(t *testing.T) {
	api := &fakeAPI{owned: map[int]steamapi.OwnedGame{}}
	s := testScanner(&fakeFetcher{}, api, true, nil)

	ctx := context.Background()
	s.OwnedGames(ctx, testSteamID)
	api.owned = map[int]steamapi.OwnedGame{440: {AppID: 440, Name: "Team Fortress 2"}}
	owned := s.OwnedGames(ctx, testSteamID)
	assert.Equal(t, 2, api.ownedCalls)
	assert.Len(t, owned, 1)
}
