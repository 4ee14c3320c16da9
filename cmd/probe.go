package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steamscope/steamscope/pkg/shttp"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether the community site accepts the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mgr := newSessionManager()
		defer mgr.Close()

		if err := mgr.EnsureSession(ctx, false); err != nil {
			return err
		}

		client, err := newCommunityClient(mgr)
		if err != nil {
			return err
		}
		if err := client.ProbeLoggedIn(ctx); err != nil {
			if errors.Is(err, shttp.ErrNotLoggedIn) {
				return errors.New("session rejected, run 'steamscope login' to authenticate")
			}
			return err
		}

		fmt.Println("Session OK, logged in as", mgr.SteamID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
