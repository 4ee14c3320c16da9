package steamapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	c := NewClient("test-key", &http.Client{Transport: transport})
	t.Cleanup(transport.Reset)
	return c, transport
}

func TestGetOwnedGamesDedupesByMaxPlaytime(t *testing.T) {
	c, mock := newMockedClient(t)
	mock.RegisterResponder("GET", DefaultBaseURL+"/IPlayerService/GetOwnedGames/v1/",
		httpmock.NewStringResponder(200, `{"response":{"games":[
			{"appid":440,"name":"Team Fortress 2","playtime_forever":120},
			{"appid":440,"name":"Team Fortress 2","playtime_forever":90},
			{"appid":570,"name":"Dota 2","playtime_forever":10}
		]}}`))

	games := c.GetOwnedGames(context.Background(), "76561198012345678")
	require.Len(t, games, 2)
	require.Equal(t, 120, games[440].PlaytimeMinutes)
	require.Equal(t, 10, games[570].PlaytimeMinutes)
}

func TestGetOwnedGamesFailsSoft(t *testing.T) {
	c, mock := newMockedClient(t)
	mock.RegisterResponder("GET", DefaultBaseURL+"/IPlayerService/GetOwnedGames/v1/",
		httpmock.NewStringResponder(500, `boom`))

	require.Nil(t, c.GetOwnedGames(context.Background(), "76561198012345678"))
}

func TestGetSchemaFallsBackToEnglish(t *testing.T) {
	c, mock := newMockedClient(t)
	calls := 0
	mock.RegisterResponder("GET", DefaultBaseURL+"/ISteamUserStats/GetSchemaForGame/v2/",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if req.URL.Query().Get("l") == "german" {
				return httpmock.NewStringResponse(200, `{"game":{}}`), nil
			}
			return httpmock.NewStringResponse(200, `{"game":{"availableGameStats":{"achievements":[
				{"name":"ACH_WIN","displayName":"Winner","description":"Win a match","icon":"https://cdn/a.jpg","icongray":"https://cdn/a_gray.jpg","hidden":0}
			]}}}`), nil
		})
	mock.RegisterResponder("GET", DefaultBaseURL+"/ISteamUserStats/GetGlobalAchievementPercentagesForApp/v2/",
		httpmock.NewStringResponder(200, `{"achievementpercentages":{"achievements":[{"name":"ach_win","percent":12.5}]}}`))

	achievements := c.GetSchema(context.Background(), 440, "german")
	require.Equal(t, 2, calls)
	require.Len(t, achievements, 1)
	require.Equal(t, "ACH_WIN", achievements[0].Name)
	require.False(t, achievements[0].Hidden)
	// Percent keys are matched case-insensitively.
	require.NotNil(t, achievements[0].GlobalPercent)
	require.Equal(t, 12.5, *achievements[0].GlobalPercent)
}

func TestGetStatsKey(t *testing.T) {
	c, mock := newMockedClient(t)
	mock.RegisterResponder("GET", DefaultBaseURL+"/ISteamUserStats/GetSchemaForGame/v2/",
		httpmock.NewStringResponder(200, `{"game":{"gameName":"TF2","gameVersion":"255"}}`))

	require.Equal(t, "TF2", c.GetStatsKey(context.Background(), 440))
}

func TestGetStatsKeySkipsPlaceholder(t *testing.T) {
	c, mock := newMockedClient(t)
	mock.RegisterResponder("GET", DefaultBaseURL+"/ISteamUserStats/GetSchemaForGame/v2/",
		httpmock.NewStringResponder(200, `{"game":{"gameName":"ValveTestApp570"}}`))

	require.Empty(t, c.GetStatsKey(context.Background(), 570))
}

func TestGetPlayerSummariesPreservesOrder(t *testing.T) {
	c, mock := newMockedClient(t)
	mock.RegisterResponder("GET", DefaultBaseURL+"/ISteamUser/GetPlayerSummaries/v2/",
		httpmock.NewStringResponder(200, `{"response":{"players":[
			{"steamid":"2","personaname":"B","communityvisibilitystate":3},
			{"steamid":"1","personaname":"A","communityvisibilitystate":1}
		]}}`))

	summaries := c.GetPlayerSummaries(context.Background(), []string{"1", "2"})
	require.Len(t, summaries, 2)
	require.Equal(t, "A", summaries[0].PersonaName)
	require.True(t, summaries[0].Private)
	require.Equal(t, "B", summaries[1].PersonaName)
	require.False(t, summaries[1].Private)
}
