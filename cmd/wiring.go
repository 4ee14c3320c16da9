package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/steamscope/steamscope/internal/utils"
	"github.com/steamscope/steamscope/pkg/session"
	"github.com/steamscope/steamscope/pkg/shttp"
	"github.com/steamscope/steamscope/pkg/steamapi"
	"github.com/steamscope/steamscope/pkg/storage"
)

func newSessionManager() *session.Manager {
	return session.NewManager(session.Config{
		Factory: session.NewChromeSurface,
	})
}

func newCommunityClient(mgr *session.Manager) (*shttp.Client, error) {
	return shttp.NewClient(mgr, viper.GetString("steam.language"))
}

func newAPIClient() (*steamapi.Client, error) {
	apiKey := viper.GetString("steam.apikey")
	if apiKey == "" {
		return nil, errors.New("no Web API key configured, set steam.apikey in $HOME/.steamscope.yaml (get one at https://steamcommunity.com/dev/apikey)")
	}
	return steamapi.NewClient(apiKey, shttp.APIHTTPClient()), nil
}

// resolveSteamID prefers the explicit flag/config value and falls back to
// deriving it from the live session cookie.
func resolveSteamID(ctx context.Context, mgr *session.Manager, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if id := viper.GetString("steam.steamid"); id != "" {
		return id, nil
	}
	if err := mgr.EnsureSession(ctx, false); err != nil {
		return "", err
	}
	if id := mgr.SteamID(); id != "" {
		return id, nil
	}
	return "", errors.New("could not determine a steam ID, set steam.steamid or pass --steamid")
}

// openLockedDB resolves the db path, takes the cross-process lock and opens
// the cache. The caller must call the returned release func.
func openLockedDB(path string) (*storage.DB, func(), error) {
	absPath, err := utils.GetAbsDBPath(path)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, nil, err
	}

	lock, err := utils.NewDBLock(path)
	if err != nil {
		return nil, nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, nil, err
	}

	db, err := storage.Open(absPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, nil, err
	}
	release := func() {
		_ = db.Close()
		_ = lock.Unlock()
	}
	return db, release, nil
}
