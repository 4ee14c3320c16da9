package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the Steam community site through a visible browser",
	Long: `Opens a browser window on the Steam login page and waits for you to
complete the login, including any Steam Guard prompt. The resulting session
cookies stay inside the browser profile; steamscope only mirrors them for
its own requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mgr := newSessionManager()
		defer mgr.Close()

		if err := mgr.AuthenticateInteractive(ctx); err != nil {
			return err
		}
		fmt.Println("Logged in as", mgr.SteamID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
