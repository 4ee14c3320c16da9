package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/steamscope/steamscope/internal/utils"
)

var dbPath string

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the local scan result cache",
}

func resolvedDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return viper.GetString("db.path")
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		absPath, err := utils.GetAbsDBPath(resolvedDBPath())
		if err != nil {
			return err
		}
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", absPath)
		}

		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, absPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, absPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-profile statistics about the cached scan results",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, release, err := openLockedDB(resolvedDBPath())
		if err != nil {
			return err
		}
		defer release()

		stats, err := db.GetStats(context.Background())
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("No data in the database to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "STEAM ID\tGAMES\tACHIEVEMENTS\tUNLOCKED\t")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t\n", s.SteamID, s.GameCount, s.AchievementCount, s.UnlockedCount)
		}
		w.Flush()
		return nil
	},
}

// changesCmd represents the changes command
var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Print recent achievement changes across all cached profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		db, release, err := openLockedDB(resolvedDBPath())
		if err != nil {
			return err
		}
		defer release()

		changes, err := db.ListRecentChanges(context.Background(), limit)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			fmt.Println("No changes recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tTYPE\tGAME\tACHIEVEMENT\t")
		for _, c := range changes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", c.OccurredAt.Format(time.RFC3339), c.ChangeType, c.GameName, c.DisplayName)
		}
		w.Flush()
		return nil
	},
}

// gamesCmd represents the games command
var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List the cached games for a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		steamID, _ := cmd.Flags().GetString("steamid")
		if steamID == "" {
			steamID = viper.GetString("steam.steamid")
		}
		if steamID == "" {
			return fmt.Errorf("no steam ID given, set steam.steamid or pass --steamid")
		}

		db, release, err := openLockedDB(resolvedDBPath())
		if err != nil {
			return err
		}
		defer release()

		games, err := db.ListGames(context.Background(), steamID)
		if err != nil {
			return err
		}
		if len(games) == 0 {
			fmt.Println("No cached games for", steamID)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "APP\tNAME\tPLAYTIME\tVERDICT\tSCANNED\t")
		for _, g := range games {
			fmt.Fprintf(w, "%d\t%s\t%dm\t%s\t%s\t\n", g.AppID, g.Name, g.PlaytimeForever, g.Verdict, g.ScannedAt.Format("2006-01-02 15:04"))
		}
		w.Flush()
		return nil
	},
}

// achievementsCmd represents the achievements command
var achievementsCmd = &cobra.Command{
	Use:   "achievements",
	Short: "List the cached achievements for one game",
	RunE: func(cmd *cobra.Command, args []string) error {
		steamID, _ := cmd.Flags().GetString("steamid")
		appID, _ := cmd.Flags().GetInt("appid")
		onlyUnlocked, _ := cmd.Flags().GetBool("unlocked-only")
		if steamID == "" {
			steamID = viper.GetString("steam.steamid")
		}
		if steamID == "" || appID == 0 {
			return fmt.Errorf("both a steam ID and --appid are required")
		}

		db, release, err := openLockedDB(resolvedDBPath())
		if err != nil {
			return err
		}
		defer release()

		recs, err := db.ListAchievements(context.Background(), steamID, appID, onlyUnlocked)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Printf("No cached achievements for app %d\n", appID)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "API NAME\tNAME\tUNLOCKED\tWHEN\tGLOBAL %\t")
		for _, rec := range recs {
			when, percent := "", ""
			if rec.UnlockTime != nil {
				when = rec.UnlockTime.Format("2006-01-02 15:04")
			}
			if rec.GlobalPercent != nil {
				percent = fmt.Sprintf("%.1f", *rec.GlobalPercent)
			}
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\t\n", rec.APIName, rec.DisplayName, rec.Unlocked, when, percent)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.AddCommand(changesCmd)
	dbCmd.AddCommand(gamesCmd)
	dbCmd.AddCommand(achievementsCmd)
	dbCmd.PersistentFlags().StringVar(&dbPath, "dbpath", "", "Path to SQLite DB file (default: db.path from config)")

	changesCmd.Flags().Int("limit", 50, "Max changes to print")
	gamesCmd.Flags().StringP("steamid", "s", "", "64-bit steam ID")
	achievementsCmd.Flags().StringP("steamid", "s", "", "64-bit steam ID")
	achievementsCmd.Flags().Int("appid", 0, "App ID")
	achievementsCmd.Flags().Bool("unlocked-only", false, "Only show unlocked achievements")
}
