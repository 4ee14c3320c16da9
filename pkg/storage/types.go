package storage

import "time"

// GameRecord is one scanned game for one profile.
type GameRecord struct {
	SteamID         string
	AppID           int
	Name            string
	PlaytimeForever int
	Verdict         string
	ScannedAt       time.Time
}

// AchievementRecord is one achievement row as last observed for a profile.
// APIName is the schema identity; IconFile the scrape-side identity.
type AchievementRecord struct {
	APIName       string
	DisplayName   string
	Description   string
	IconFile      string
	Unlocked      bool
	UnlockTime    *time.Time
	GlobalPercent *float64
}

// Change captures one achievement-level change event between scans.
type Change struct {
	OccurredAt  time.Time
	SteamID     string
	AppID       int
	GameName    string
	APIName     string
	DisplayName string
	ChangeType  string // added | unlocked | updated
}

// ProfileStats summarizes the cached state of one profile.
type ProfileStats struct {
	SteamID          string
	GameCount        int
	AchievementCount int
	UnlockedCount    int
}
