package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/bdschart/config"
	"github.com/rustyeddy/bdschart/internal/logx"
)

var rootCmd = &cobra.Command{
	Use:   "bdschart",
	Short: "Real-time candlestick charts from Birdeye Data Services",
	Long: `bdschart generates a standalone HTML page that charts a Solana token with
TradingView lightweight-charts, loading history over REST and live updates over
the Birdeye WebSocket.

It also provides tools for:
  - Printing a page of historical candles as a table or CSV
  - Following the live price stream from a terminal
  - Looking up token prices, overviews, swaps and new listings
  - Generating and validating configuration files

The API key is read from BDS_API_KEY (or BDS_STANDARD_API_KEY), optionally
loaded from a .env file.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	cfgFile  string
	envFile  string
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON); defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

// setup loads the environment, configuration and logger for every command.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}

	if cfgFile == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.LoadFromFile(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg.APIKey = config.APIKeyFromEnv()

	l, err := logx.New(logLevel)
	if err != nil {
		return err
	}
	logger = l
	return nil
}
