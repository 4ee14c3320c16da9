package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/steamscope/steamscope/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `
	      _                                                
	  ___| |_ ___  __ _ _ __ ___  ___  ___ ___  _ __   ___
	 / __| __/ _ \/ _  | '_   _  \/ __|/ __/ _ \| '_ \ / _ \
	 \__ \ ||  __/ (_| | | | | | |\__ \ (_| (_) | |_) |  __/
	 |___/\__\___|\__,_|_| |_| |_||___/\___\___/| .__/ \___|
	                                            |_|        
`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "steamscope",
	Short: "Scrape Steam achievement unlock data straight from community profile pages.",
	Long: LOGO + `steamscope combines the official Web API schema with scraped community
stats pages, so you get unlock timestamps the API does not expose, in any
profile language.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.steamscope.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".steamscope")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.steamscope.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("steam.apikey", "")
	viper.SetDefault("steam.steamid", "")
	viper.SetDefault("steam.language", "english")
	viper.SetDefault("scan.request_delay", "1s")
	viper.SetDefault("scan.max_retries", 3)
	viper.SetDefault("scan.include_locked", false)
	viper.SetDefault("db.path", "")
	viper.SetDefault("audit.path", "steamscope_parse_failures.csv")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
