// Package steamapi is a thin client for the official Web API endpoints the
// scanner uses as ground truth: owned games for playtime, the achievement
// schema, global unlock percentages, and player summaries. The schema's
// Name field is the only stable, language-independent achievement identifier
// anywhere in the pipeline.
//
// All calls fail soft: a network or parse failure yields an empty result,
// never an error, except when the context is cancelled.
package steamapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/steamscope/steamscope/internal/utils"
)

const (
	DefaultBaseURL = "https://api.steampowered.com"

	// FallbackLanguage is retried when the requested language yields an
	// empty schema; the endpoint can be incomplete for a language while
	// complete for the default.
	FallbackLanguage = "english"

	summariesChunkSize = 100
)

// OwnedGame is one entry of the playtime inventory.
type OwnedGame struct {
	AppID           int
	Name            string
	PlaytimeMinutes int
}

// SchemaAchievement is the official definition of one achievement.
type SchemaAchievement struct {
	Name          string
	DisplayName   string
	Description   string
	IconURL       string
	IconGrayURL   string
	Hidden        bool
	GlobalPercent *float64
}

// PlayerSummary is the subset of GetPlayerSummaries the scanner consumes.
type PlayerSummary struct {
	SteamID     string
	PersonaName string
	AvatarURL   string
	Private     bool
}

// Client issues key-authenticated JSON calls. The HTTP client must be
// cookie-free; these endpoints authenticate by key, not by session.
type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

func NewClient(apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{APIKey: apiKey, BaseURL: DefaultBaseURL, HTTP: httpClient}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (string, error) {
	query.Set("key", c.APIKey)
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("steamapi: %s returned status %d", path, res.StatusCode)
	}
	return string(body), nil
}

// GetOwnedGames returns the playtime inventory keyed by AppID. Steam has
// been seen returning duplicate apps; the entry with the highest playtime
// wins.
func (c *Client) GetOwnedGames(ctx context.Context, steamID string) map[int]OwnedGame {
	query := url.Values{}
	query.Set("steamid", steamID)
	query.Set("include_appinfo", "1")
	query.Set("include_played_free_games", "1")

	body, err := c.get(ctx, "/IPlayerService/GetOwnedGames/v1/", query)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			utils.Log.Debug("owned games fetch failed: ", err)
		}
		return nil
	}

	games := make(map[int]OwnedGame)
	gjson.Get(body, "response.games").ForEach(func(_, value gjson.Result) bool {
		g := OwnedGame{
			AppID:           int(value.Get("appid").Int()),
			Name:            value.Get("name").String(),
			PlaytimeMinutes: int(value.Get("playtime_forever").Int()),
		}
		if existing, ok := games[g.AppID]; !ok || g.PlaytimeMinutes > existing.PlaytimeMinutes {
			games[g.AppID] = g
		}
		return true
	})
	return games
}

// GetSchema returns the achievement schema for appID in the requested
// language, merged with global unlock percentages. An empty schema in the
// requested language is retried once in the fallback language.
func (c *Client) GetSchema(ctx context.Context, appID int, language string) []SchemaAchievement {
	achievements := c.fetchSchema(ctx, appID, language)
	if len(achievements) == 0 && language != FallbackLanguage {
		achievements = c.fetchSchema(ctx, appID, FallbackLanguage)
	}
	if len(achievements) == 0 {
		return nil
	}

	percents := c.globalPercentages(ctx, appID)
	for i := range achievements {
		if p, ok := percents[strings.ToLower(achievements[i].Name)]; ok {
			v := p
			achievements[i].GlobalPercent = &v
		}
	}
	return achievements
}

func (c *Client) fetchSchema(ctx context.Context, appID int, language string) []SchemaAchievement {
	query := url.Values{}
	query.Set("appid", fmt.Sprint(appID))
	query.Set("l", language)

	body, err := c.get(ctx, "/ISteamUserStats/GetSchemaForGame/v2/", query)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			utils.Log.Debug("schema fetch failed for app ", appID, ": ", err)
		}
		return nil
	}

	var out []SchemaAchievement
	gjson.Get(body, "game.availableGameStats.achievements").ForEach(func(_, value gjson.Result) bool {
		out = append(out, SchemaAchievement{
			Name:        value.Get("name").String(),
			DisplayName: value.Get("displayName").String(),
			Description: value.Get("description").String(),
			IconURL:     value.Get("icon").String(),
			IconGrayURL: value.Get("icongray").String(),
			Hidden:      value.Get("hidden").Int() == 1,
		})
		return true
	})
	return out
}

// GetStatsKey returns the game's vanity stats key ("TF2", "Portal2"), the
// gameName the schema endpoint reports. Some community stats pages only
// resolve under this key, not the numeric app id. Empty when unknown.
func (c *Client) GetStatsKey(ctx context.Context, appID int) string {
	query := url.Values{}
	query.Set("appid", fmt.Sprint(appID))

	body, err := c.get(ctx, "/ISteamUserStats/GetSchemaForGame/v2/", query)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			utils.Log.Debug("stats key fetch failed for app ", appID, ": ", err)
		}
		return ""
	}
	key := gjson.Get(body, "game.gameName").String()
	// Steam fills gameName with a placeholder for unconfigured titles.
	if strings.HasPrefix(key, "ValveTestApp") {
		return ""
	}
	return key
}

// globalPercentages builds a case-insensitive Name -> percent map.
func (c *Client) globalPercentages(ctx context.Context, appID int) map[string]float64 {
	query := url.Values{}
	query.Set("gameid", fmt.Sprint(appID))

	body, err := c.get(ctx, "/ISteamUserStats/GetGlobalAchievementPercentagesForApp/v2/", query)
	if err != nil {
		return nil
	}

	percents := make(map[string]float64)
	gjson.Get(body, "achievementpercentages.achievements").ForEach(func(_, value gjson.Result) bool {
		percents[strings.ToLower(value.Get("name").String())] = value.Get("percent").Float()
		return true
	})
	return percents
}

// GetPlayerSummaries looks up profiles in chunks of 100 IDs, returning the
// merged result in the caller-supplied order. Unknown IDs are omitted.
func (c *Client) GetPlayerSummaries(ctx context.Context, steamIDs []string) []PlayerSummary {
	byID := make(map[string]PlayerSummary, len(steamIDs))

	for start := 0; start < len(steamIDs); start += summariesChunkSize {
		end := start + summariesChunkSize
		if end > len(steamIDs) {
			end = len(steamIDs)
		}

		query := url.Values{}
		query.Set("steamids", strings.Join(steamIDs[start:end], ","))

		body, err := c.get(ctx, "/ISteamUser/GetPlayerSummaries/v2/", query)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				utils.Log.Debug("player summaries fetch failed: ", err)
			}
			continue
		}

		gjson.Get(body, "response.players").ForEach(func(_, value gjson.Result) bool {
			s := PlayerSummary{
				SteamID:     value.Get("steamid").String(),
				PersonaName: value.Get("personaname").String(),
				AvatarURL:   value.Get("avatarfull").String(),
				Private:     value.Get("communityvisibilitystate").Int() != 3,
			}
			byID[s.SteamID] = s
			return true
		})
	}

	out := make([]PlayerSummary, 0, len(byID))
	for _, id := range steamIDs {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out
}
