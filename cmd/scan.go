package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/steamscope/steamscope/internal/utils"
	"github.com/steamscope/steamscope/pkg/audit"
	"github.com/steamscope/steamscope/pkg/retry"
	"github.com/steamscope/steamscope/pkg/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a profile's games and scrape achievement unlock data",
	Long: `Scans the configured profile: resolves the owned games through the Web
API, fetches each game's community stats page and prints the reconciled
achievements. Results are cached in the local database so repeat scans can
report newly unlocked achievements.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		steamIDFlag, _ := cmd.Flags().GetString("steamid")
		appIDs, _ := cmd.Flags().GetIntSlice("appids")
		includeLocked, _ := cmd.Flags().GetBool("include-locked")
		noDB, _ := cmd.Flags().GetBool("no-db")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		delay, _ := cmd.Flags().GetDuration("delay")
		retries, _ := cmd.Flags().GetInt("retries")

		if !cmd.Flags().Changed("include-locked") {
			includeLocked = viper.GetBool("scan.include_locked")
		}
		if !cmd.Flags().Changed("delay") {
			delay = viper.GetDuration("scan.request_delay")
		}
		if !cmd.Flags().Changed("retries") {
			retries = viper.GetInt("scan.max_retries")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mgr := newSessionManager()
		defer mgr.Close()

		steamID, err := resolveSteamID(ctx, mgr, steamIDFlag)
		if err != nil {
			return err
		}

		client, err := newCommunityClient(mgr)
		if err != nil {
			return err
		}
		api, err := newAPIClient()
		if err != nil {
			return err
		}

		cfg := scanner.Config{
			Fetcher:       client,
			API:           api,
			Language:      viper.GetString("steam.language"),
			IncludeLocked: includeLocked,
			Metrics:       scanner.NewMetrics(),
		}

		driver := retry.New()
		if retries > 0 {
			driver.MaxAttempts = retries
		}
		if delay > 0 {
			driver.RequestDelay = delay
		}
		cfg.Driver = driver

		if !noDB {
			db, release, err := openLockedDB(viper.GetString("db.path"))
			if err != nil {
				return err
			}
			defer release()
			cfg.Store = db
		}

		if auditPath := viper.GetString("audit.path"); auditPath != "" {
			cfg.Audit = audit.NewSink(auditPath)
		}

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{}))
			go func() {
				if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
					utils.Log.WithError(err).Warn("Metrics listener stopped")
				}
			}()
			utils.Log.Info("Serving metrics on ", metricsAddr, "/metrics")
		}

		cfg.OnProgress = func(p scanner.Progress) {
			utils.Log.Infof("[%d/%d] %s (app %d)", p.Index+1, p.Total, p.Name, p.AppID)
		}
		cfg.OnResult = printResult

		summary, err := scanner.New(cfg).ScanGames(ctx, steamID, appIDs)
		if err != nil {
			if errors.Is(err, scanner.ErrAuthRequired) {
				return errors.New("not logged in to the community site, run 'steamscope login' first")
			}
			return err
		}

		fmt.Printf("\nScanned %d games (%d without achievements, %d skipped, %d failed), %d newly unlocked achievements\n",
			summary.Scanned, summary.NoAchievements, summary.Skipped, summary.Failed, summary.NewlyUnlocked)
		if summary.ParseFailures > 0 {
			fmt.Printf("%d unlock timestamps could not be parsed; raw fragments recorded in %s\n",
				summary.ParseFailures, viper.GetString("audit.path"))
		}
		if summary.DiscardedRows > 0 {
			fmt.Printf("%d scraped rows could not be matched to the schema and were discarded\n", summary.DiscardedRows)
		}
		return nil
	},
}

func printResult(r scanner.GameResult) {
	switch {
	case r.Err != nil:
		fmt.Printf("%s: FAILED (%v)\n", r.Name, r.Err)
		return
	case len(r.Achievements) == 0:
		fmt.Printf("%s: %s\n", r.Name, r.Verdict)
		return
	}

	unlocked := 0
	for _, a := range r.Achievements {
		if a.Unlocked {
			unlocked++
		}
	}
	fmt.Printf("%s: %d/%d unlocked\n", r.Name, unlocked, len(r.Achievements))
	for _, a := range r.Achievements {
		marker := " "
		if a.Unlocked {
			marker = "x"
		}
		line := fmt.Sprintf("  [%s] %s", marker, a.DisplayName)
		if a.UnlockTime != nil {
			line += " (" + a.UnlockTime.Format(time.RFC3339) + ")"
		}
		if a.ProgressNum != nil && a.ProgressDen != nil {
			line += fmt.Sprintf(" %d/%d", *a.ProgressNum, *a.ProgressDen)
		}
		fmt.Println(line)
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("steamid", "s", "", "64-bit steam ID of the profile to scan (default: steam.steamid from config, or derived from the session)")
	scanCmd.Flags().IntSlice("appids", nil, "App IDs to scan, comma separated (default: the whole library)")
	scanCmd.Flags().Bool("include-locked", false, "Include locked achievements in the output")
	scanCmd.Flags().Bool("no-db", false, "Do not cache results in the local database")
	scanCmd.Flags().Duration("delay", time.Second, "Delay between page requests")
	scanCmd.Flags().Int("retries", 3, "Max attempts per page before giving up on a game")
	scanCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address (example: :9090)")
}
