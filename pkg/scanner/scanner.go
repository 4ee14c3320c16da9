// Package scanner drives a full scan: resolves the game list, fetches and
// classifies each stats page, reconciles scraped rows against the official
// schema and hands ordered results to the caller. Page traffic is strictly
// sequential; the community site tolerates one polite browser, not a crawler.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/steamscope/steamscope/internal/utils"
	"github.com/steamscope/steamscope/pkg/audit"
	"github.com/steamscope/steamscope/pkg/classify"
	"github.com/steamscope/steamscope/pkg/retry"
	"github.com/steamscope/steamscope/pkg/scrape"
	"github.com/steamscope/steamscope/pkg/shttp"
	"github.com/steamscope/steamscope/pkg/steamapi"
	"github.com/steamscope/steamscope/pkg/storage"
)

// ErrAuthRequired aborts a run before any page work: the community site does
// not recognize the session and every subsequent page would bounce the same
// way.
var ErrAuthRequired = errors.New("scanner: not logged in to the community site")

// AchievementDetail is one fully reconciled achievement: schema identity
// plus the page's unlock truth.
type AchievementDetail struct {
	APIName       string
	DisplayName   string
	Description   string
	IconURL       string
	Hidden        bool
	Unlocked      bool
	UnlockTime    *time.Time
	ProgressNum   *int
	ProgressDen   *int
	GlobalPercent *float64
}

// GameResult is the outcome for one game. Err is set only when the game was
// given up on after retries; terminal verdicts like a private profile are
// not errors, they are answers.
type GameResult struct {
	AppID           int
	Name            string
	PlaytimeMinutes int
	Verdict         classify.Verdict
	Achievements    []AchievementDetail
	Changes         []storage.Change
	ParseFailures   int
	DiscardedRows   int
	Err             error
}

// Progress is emitted before each game is attempted.
type Progress struct {
	Index, Total int
	AppID        int
	Name         string
}

// RunSummary aggregates end-of-run counts.
type RunSummary struct {
	Scanned        int
	NoAchievements int
	Skipped        int
	Failed         int
	NewlyUnlocked  int
	ParseFailures  int
	DiscardedRows  int
}

// PageFetcher is the slice of the HTTP orchestrator the scanner consumes.
type PageFetcher interface {
	FetchStatsPage(ctx context.Context, pageURL string) (*shttp.Outcome, error)
	StatsURL(steamID string, appID int) string
	StatsURLWithKey(steamID, statsKey string) string
	ProbeLoggedIn(ctx context.Context) error
}

// SchemaSource is the slice of the Web API client the scanner consumes.
type SchemaSource interface {
	GetOwnedGames(ctx context.Context, steamID string) map[int]steamapi.OwnedGame
	GetSchema(ctx context.Context, appID int, language string) []steamapi.SchemaAchievement
	GetStatsKey(ctx context.Context, appID int) string
}

type Config struct {
	Fetcher PageFetcher
	API     SchemaSource
	Driver  *retry.Driver

	Store   *storage.DB // optional result cache
	Audit   *audit.Sink // optional parse-failure sink
	Metrics *Metrics    // optional

	Language      string
	IncludeLocked bool

	// Both callbacks fire on the scan goroutine, in game order.
	OnProgress func(Progress)
	OnResult   func(GameResult)

	Now func() time.Time // test hook
}

type Scanner struct {
	cfg Config

	sf singleflight.Group

	mu              sync.Mutex
	ownedCache      map[string]map[int]steamapi.OwnedGame
	hasAchievements map[int]bool
}

func New(cfg Config) *Scanner {
	if cfg.Driver == nil {
		cfg.Driver = retry.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scanner{
		cfg:             cfg,
		ownedCache:      make(map[string]map[int]steamapi.OwnedGame),
		hasAchievements: make(map[int]bool),
	}
}

// verdictError carries a transient classifier verdict through the retry
// driver.
type verdictError struct {
	verdict classify.Verdict
}

func (e *verdictError) Error() string {
	return fmt.Sprintf("page verdict: %s", e.verdict)
}

func isTransient(err error) bool {
	var ve *verdictError
	if errors.As(err, &ve) {
		return ve.verdict.Transient()
	}
	// Anything else at this level is transport noise.
	return true
}

// OwnedGames returns the profile's owned games with playtimes, cached per
// steam ID for the scanner's lifetime. Concurrent callers share one fetch.
// An empty answer is not cached: the API fails soft, and a blip must not
// pin "no games" for the rest of the run.
func (s *Scanner) OwnedGames(ctx context.Context, steamID string) map[int]steamapi.OwnedGame {
	s.mu.Lock()
	if owned, ok := s.ownedCache[steamID]; ok {
		s.mu.Unlock()
		return owned
	}
	s.mu.Unlock()

	v, _, _ := s.sf.Do("owned:"+steamID, func() (interface{}, error) {
		owned := s.cfg.API.GetOwnedGames(ctx, steamID)
		if len(owned) > 0 {
			s.mu.Lock()
			s.ownedCache[steamID] = owned
			s.mu.Unlock()
		}
		return owned, nil
	})
	return v.(map[int]steamapi.OwnedGame)
}

// InvalidateOwned drops the cached game list for a profile.
func (s *Scanner) InvalidateOwned(steamID string) {
	s.mu.Lock()
	delete(s.ownedCache, steamID)
	s.mu.Unlock()
}

// ScanGames scans the given apps for one profile. An empty appIDs scans the
// whole library. The run aborts up front when the session probe fails; a
// single game failing after retries is recorded and skipped.
func (s *Scanner) ScanGames(ctx context.Context, steamID string, appIDs []int) (*RunSummary, error) {
	err := s.cfg.Driver.Execute(ctx, func(ctx context.Context) error {
		return s.cfg.Fetcher.ProbeLoggedIn(ctx)
	}, func(err error) bool {
		return !errors.Is(err, shttp.ErrNotLoggedIn)
	})
	if errors.Is(err, shttp.ErrNotLoggedIn) {
		return nil, ErrAuthRequired
	}
	if err != nil {
		return nil, err
	}

	owned := s.OwnedGames(ctx, steamID)
	if len(appIDs) == 0 {
		for appID := range owned {
			appIDs = append(appIDs, appID)
		}
		sort.Ints(appIDs)
	}

	summary := &RunSummary{}
	for i, appID := range appIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if i > 0 {
			if err := s.cfg.Driver.Pace(ctx); err != nil {
				return summary, err
			}
		}

		game := owned[appID]
		game.AppID = appID
		if game.Name == "" {
			game.Name = fmt.Sprintf("app %d", appID)
		}
		if s.cfg.OnProgress != nil {
			s.cfg.OnProgress(Progress{Index: i, Total: len(appIDs), AppID: appID, Name: game.Name})
		}

		var result *GameResult
		err := s.cfg.Driver.Execute(ctx, func(ctx context.Context) error {
			var unitErr error
			result, unitErr = s.scanGame(ctx, steamID, game)
			return unitErr
		}, isTransient)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			utils.Log.WithField("app_id", appID).WithField("game", game.Name).
				WithError(err).Warn("Giving up on game")
			summary.Failed++
			result = &GameResult{AppID: appID, Name: game.Name, PlaytimeMinutes: game.PlaytimeMinutes, Err: err}
			var ve *verdictError
			if errors.As(err, &ve) {
				result.Verdict = ve.verdict
			}
		} else {
			s.tally(summary, result)
		}

		if s.cfg.OnResult != nil {
			s.cfg.OnResult(*result)
		}
	}

	if s.cfg.Audit != nil {
		if err := s.cfg.Audit.Flush(); err != nil {
			utils.Log.WithError(err).Warn("Could not flush audit records")
		}
	}
	utils.Log.WithField("scanned", summary.Scanned).WithField("failed", summary.Failed).
		WithField("skipped", summary.Skipped).WithField("newly_unlocked", summary.NewlyUnlocked).
		Info("Scan finished")
	return summary, nil
}

func (s *Scanner) tally(summary *RunSummary, r *GameResult) {
	switch r.Verdict {
	case classify.Scraped, classify.AllHidden:
		summary.Scanned++
	case classify.NoAchievements:
		summary.NoAchievements++
	default:
		summary.Skipped++
	}
	for _, c := range r.Changes {
		if c.ChangeType == "unlocked" {
			summary.NewlyUnlocked++
		}
	}
	summary.ParseFailures += r.ParseFailures
	summary.DiscardedRows += r.DiscardedRows
}

// scanGame performs one attempt at one game.
func (s *Scanner) scanGame(ctx context.Context, steamID string, game steamapi.OwnedGame) (*GameResult, error) {
	result := &GameResult{AppID: game.AppID, Name: game.Name, PlaytimeMinutes: game.PlaytimeMinutes}

	// The schema decides whether the game has achievements at all; a page
	// fetch for a schemaless game would only produce an ambiguous empty
	// page. The answer is immutable per app, so it is cached.
	s.mu.Lock()
	has, known := s.hasAchievements[game.AppID]
	s.mu.Unlock()
	if known && !has {
		result.Verdict = classify.NoAchievements
		return result, nil
	}

	schema := s.cfg.API.GetSchema(ctx, game.AppID, s.cfg.Language)
	if len(schema) == 0 {
		s.mu.Lock()
		s.hasAchievements[game.AppID] = false
		s.mu.Unlock()
		result.Verdict = classify.NoAchievements
		return result, nil
	}
	s.mu.Lock()
	s.hasAchievements[game.AppID] = true
	s.mu.Unlock()

	outcome, err := s.cfg.Fetcher.FetchStatsPage(ctx, s.cfg.Fetcher.StatsURL(steamID, game.AppID))
	if err != nil {
		return nil, err
	}
	s.cfg.Metrics.incPage(outcome.Verdict.String())
	result.Verdict = outcome.Verdict

	if outcome.Verdict == classify.NoRowsUnknown {
		// An empty page under the numeric URL is ambiguous: some titles
		// only resolve under their vanity stats key. One extra fetch
		// against the key URL before the verdict counts as transient.
		if key := s.cfg.API.GetStatsKey(ctx, game.AppID); key != "" {
			alt, altErr := s.cfg.Fetcher.FetchStatsPage(ctx, s.cfg.Fetcher.StatsURLWithKey(steamID, key))
			if altErr == nil && alt.Verdict != classify.NoRowsUnknown {
				outcome = alt
				s.cfg.Metrics.incPage(outcome.Verdict.String())
				result.Verdict = outcome.Verdict
			}
		}
	}

	if outcome.Verdict.Transient() {
		return nil, &verdictError{verdict: outcome.Verdict}
	}
	if outcome.Verdict != classify.Scraped && outcome.Verdict != classify.AllHidden {
		// Terminal for this game: private profile, missing profile, a page
		// Steam itself cannot render. Recorded and moved past.
		return result, nil
	}

	var rows []scrape.Row
	var failures []scrape.TimeParseFailure
	if outcome.Verdict == classify.Scraped {
		rows, failures = scrape.Parse(outcome.Doc, true, s.cfg.Language, game.Name, s.cfg.Now())
	}

	details, discarded := reconcile(schema, rows)
	if !s.cfg.IncludeLocked {
		kept := details[:0]
		for _, d := range details {
			if d.Unlocked {
				kept = append(kept, d)
			}
		}
		details = kept
	}
	result.Achievements = details
	result.ParseFailures = len(failures)
	result.DiscardedRows = discarded

	for _, f := range failures {
		if s.cfg.Audit != nil {
			s.cfg.Audit.Record(f)
		}
	}
	s.cfg.Metrics.incGames()
	s.cfg.Metrics.addAchievements(len(details))
	s.cfg.Metrics.addParseFailures(len(failures))
	s.cfg.Metrics.addDiscarded(discarded)

	if s.cfg.Store != nil {
		changes, err := s.cfg.Store.UpsertGameResults(ctx, steamID, game.AppID, game.Name,
			game.PlaytimeMinutes, outcome.Verdict.String(), detailRecords(details))
		if err != nil {
			utils.Log.WithField("app_id", game.AppID).WithError(err).Warn("Could not cache scan results")
		} else {
			result.Changes = changes
		}
	}
	return result, nil
}

func detailRecords(details []AchievementDetail) []storage.AchievementRecord {
	recs := make([]storage.AchievementRecord, 0, len(details))
	for _, d := range details {
		recs = append(recs, storage.AchievementRecord{
			APIName:       d.APIName,
			DisplayName:   d.DisplayName,
			Description:   d.Description,
			IconFile:      utils.LastPathSegment(d.IconURL),
			Unlocked:      d.Unlocked,
			UnlockTime:    d.UnlockTime,
			GlobalPercent: d.GlobalPercent,
		})
	}
	return recs
}
