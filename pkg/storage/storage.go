// Package storage caches scan results in a local sqlite database so repeat
// scans can diff against the previous run and report newly-unlocked
// achievements.
package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS games (
  steam_id         TEXT NOT NULL,
  app_id           INTEGER NOT NULL,
  name             TEXT NOT NULL,
  playtime_forever INTEGER NOT NULL DEFAULT 0,
  verdict          TEXT NOT NULL,
  scanned_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(steam_id, app_id)
);
CREATE TABLE IF NOT EXISTS achievements (
  id             INTEGER PRIMARY KEY,
  steam_id       TEXT NOT NULL,
  app_id         INTEGER NOT NULL,
  api_name       TEXT NOT NULL,
  display_name   TEXT NOT NULL,
  description    TEXT,
  icon_file      TEXT,
  unlocked       INTEGER NOT NULL CHECK (unlocked IN (0,1)),
  unlock_time    DATETIME,
  global_percent REAL,
  first_seen_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  last_seen_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(steam_id, app_id, api_name)
);
CREATE INDEX IF NOT EXISTS idx_achievements_game ON achievements(steam_id, app_id);
CREATE TABLE IF NOT EXISTS achievement_changes (
  id           INTEGER PRIMARY KEY,
  occurred_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  steam_id     TEXT NOT NULL,
  app_id       INTEGER NOT NULL,
  game_name    TEXT NOT NULL,
  api_name     TEXT NOT NULL,
  display_name TEXT NOT NULL,
  change_type  TEXT NOT NULL CHECK (change_type IN ('added','unlocked','updated'))
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON achievement_changes(occurred_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// UpsertGameResults stores one game's scan results for a profile and
// returns the achievement-level changes against the previous run: rows never
// seen before are 'added', rows that flipped from locked to unlocked are
// 'unlocked', rows whose metadata moved are 'updated'.
func (d *DB) UpsertGameResults(ctx context.Context, steamID string, appID int, gameName string, playtime int, verdict string, recs []AchievementRecord) ([]Change, error) {
	now := time.Now().UTC()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO games(steam_id, app_id, name, playtime_forever, verdict, scanned_at) VALUES(?,?,?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(steam_id, app_id) DO UPDATE SET name = excluded.name, playtime_forever = excluded.playtime_forever, verdict = excluded.verdict, scanned_at = CURRENT_TIMESTAMP`,
		steamID, appID, gameName, playtime, verdict)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, "SELECT api_name, display_name, description, unlocked FROM achievements WHERE steam_id = ? AND app_id = ?", steamID, appID)
	if err != nil {
		return nil, err
	}
	type existing struct {
		Display, Desc string
		Unlocked      bool
	}
	existingMap := make(map[string]existing)
	for rows.Next() {
		var (
			api, display string
			desc         sql.NullString
			unlocked     int
		)
		if err = rows.Scan(&api, &display, &desc, &unlocked); err != nil {
			rows.Close()
			return nil, err
		}
		existingMap[api] = existing{Display: display, Desc: desc.String, Unlocked: unlocked == 1}
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}

	var changes []Change
	for _, r := range recs {
		ex, existed := existingMap[r.APIName]

		var unlockTime interface{}
		if r.UnlockTime != nil {
			unlockTime = r.UnlockTime.UTC().Format(time.RFC3339)
		}
		var globalPercent interface{}
		if r.GlobalPercent != nil {
			globalPercent = *r.GlobalPercent
		}

		if !existed {
			_, err = tx.ExecContext(ctx, `INSERT INTO achievements(steam_id, app_id, api_name, display_name, description, icon_file, unlocked, unlock_time, global_percent, first_seen_at, last_seen_at)
VALUES(?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`,
				steamID, appID, r.APIName, r.DisplayName, nullIfEmpty(r.Description), nullIfEmpty(r.IconFile), boolToInt(r.Unlocked), unlockTime, globalPercent)
			if err != nil {
				return nil, err
			}
			changes = append(changes, Change{OccurredAt: now, SteamID: steamID, AppID: appID, GameName: gameName, APIName: r.APIName, DisplayName: r.DisplayName, ChangeType: "added"})
			if r.Unlocked {
				changes = append(changes, Change{OccurredAt: now, SteamID: steamID, AppID: appID, GameName: gameName, APIName: r.APIName, DisplayName: r.DisplayName, ChangeType: "unlocked"})
			}
			continue
		}

		_, err = tx.ExecContext(ctx, `UPDATE achievements SET display_name = ?, description = ?, icon_file = ?, unlocked = ?, unlock_time = ?, global_percent = ?, last_seen_at = CURRENT_TIMESTAMP
WHERE steam_id = ? AND app_id = ? AND api_name = ?`,
			r.DisplayName, nullIfEmpty(r.Description), nullIfEmpty(r.IconFile), boolToInt(r.Unlocked), unlockTime, globalPercent, steamID, appID, r.APIName)
		if err != nil {
			return nil, err
		}

		switch {
		case !ex.Unlocked && r.Unlocked:
			changes = append(changes, Change{OccurredAt: now, SteamID: steamID, AppID: appID, GameName: gameName, APIName: r.APIName, DisplayName: r.DisplayName, ChangeType: "unlocked"})
		case ex.Display != r.DisplayName || ex.Desc != r.Description:
			changes = append(changes, Change{OccurredAt: now, SteamID: steamID, AppID: appID, GameName: gameName, APIName: r.APIName, DisplayName: r.DisplayName, ChangeType: "updated"})
		}
	}

	for _, c := range changes {
		_, err = tx.ExecContext(ctx, `INSERT INTO achievement_changes(occurred_at, steam_id, app_id, game_name, api_name, display_name, change_type) VALUES(CURRENT_TIMESTAMP,?,?,?,?,?,?)`,
			c.SteamID, c.AppID, c.GameName, c.APIName, c.DisplayName, c.ChangeType)
		if err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

// ListGames returns the cached games for a profile, most recently scanned
// first.
func (d *DB) ListGames(ctx context.Context, steamID string) ([]GameRecord, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT steam_id, app_id, name, playtime_forever, verdict, scanned_at FROM games WHERE steam_id = ? ORDER BY scanned_at DESC, app_id", steamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GameRecord
	for rows.Next() {
		var g GameRecord
		var scannedAt string
		if err := rows.Scan(&g.SteamID, &g.AppID, &g.Name, &g.PlaytimeForever, &g.Verdict, &scannedAt); err != nil {
			return nil, err
		}
		g.ScannedAt = parseSQLiteTime(scannedAt)
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListAchievements returns the cached achievements for one game.
func (d *DB) ListAchievements(ctx context.Context, steamID string, appID int, onlyUnlocked bool) ([]AchievementRecord, error) {
	q := "SELECT api_name, display_name, description, icon_file, unlocked, unlock_time, global_percent FROM achievements WHERE steam_id = ? AND app_id = ?"
	if onlyUnlocked {
		q += " AND unlocked = 1"
	}
	q += " ORDER BY api_name"
	rows, err := d.sql.QueryContext(ctx, q, steamID, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AchievementRecord
	for rows.Next() {
		var (
			r             AchievementRecord
			desc, icon    sql.NullString
			unlocked      int
			unlockTime    sql.NullString
			globalPercent sql.NullFloat64
		)
		if err := rows.Scan(&r.APIName, &r.DisplayName, &desc, &icon, &unlocked, &unlockTime, &globalPercent); err != nil {
			return nil, err
		}
		r.Description = desc.String
		r.IconFile = icon.String
		r.Unlocked = unlocked == 1
		if unlockTime.Valid {
			if t := parseSQLiteTime(unlockTime.String); !t.IsZero() {
				r.UnlockTime = &t
			}
		}
		if globalPercent.Valid {
			p := globalPercent.Float64
			r.GlobalPercent = &p
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRecentChanges returns the most recent N changes across all profiles.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx, "SELECT occurred_at, steam_id, app_id, game_name, api_name, display_name, change_type FROM achievement_changes ORDER BY occurred_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var occurredAt string
		if err := rows.Scan(&occurredAt, &c.SteamID, &c.AppID, &c.GameName, &c.APIName, &c.DisplayName, &c.ChangeType); err != nil {
			return nil, err
		}
		c.OccurredAt = parseSQLiteTime(occurredAt)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// GetStats summarizes the cache per profile.
func (d *DB) GetStats(ctx context.Context) ([]ProfileStats, error) {
	query := `
		SELECT
			g.steam_id,
			COUNT(DISTINCT g.app_id),
			COUNT(a.id),
			COALESCE(SUM(a.unlocked), 0)
		FROM games g
		LEFT JOIN achievements a ON a.steam_id = g.steam_id AND a.app_id = g.app_id
		GROUP BY g.steam_id
		ORDER BY g.steam_id;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ProfileStats
	for rows.Next() {
		var s ProfileStats
		if err := rows.Scan(&s.SteamID, &s.GameCount, &s.AchievementCount, &s.UnlockedCount); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// parseSQLiteTime handles both CURRENT_TIMESTAMP's format and RFC3339
// values written by the driver.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02 15:04:05.999999999 -0700 MST"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
