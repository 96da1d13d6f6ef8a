package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/bdschart/config"
	"github.com/rustyeddy/bdschart/market"
	"github.com/rustyeddy/bdschart/render"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the standalone HTML chart",
	Long: `Render the real-time candlestick chart page and write it to disk.

The page embeds the API key and talks to Birdeye directly from the browser, so
no server is required. Generation fails when BDS_API_KEY (or
BDS_STANDARD_API_KEY) is not set.

Example:
  bdschart generate --out chart.html --timeframe 1H`,
	RunE: runGenerate,
}

var (
	generateOut       string
	generateToken     string
	generateTimeframe string
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateOut, "out", "", "output HTML path (default from config: bds-realtime-chart.html)")
	generateCmd.Flags().StringVar(&generateToken, "token", "", "token address preset in the page (default from config)")
	generateCmd.Flags().StringVar(&generateTimeframe, "timeframe", "", "timeframe preselected in the page: 1m, 5m, 15m, 1H, 4H, 1D")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🚀 BDS Chart HTML Generator")
	fmt.Fprintln(out, "📊 Generating standalone HTML chart...")

	params, err := render.FromConfig(cfg)
	if err != nil {
		return err
	}
	if generateToken != "" {
		params.Token = generateToken
	}
	if generateTimeframe != "" {
		tf, err := market.ParseTimeframe(generateTimeframe)
		if err != nil {
			return err
		}
		params.Timeframe = tf
	}

	path := cfg.Chart.Output
	if generateOut != "" {
		path = generateOut
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	if err := render.WriteFile(path, params); err != nil {
		if errors.Is(err, render.ErrMissingAPIKey) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Please add %s=your_api_key_here to your .env file\n", config.EnvAPIKey)
			return err
		}
		return fmt.Errorf("generating HTML file: %w", err)
	}
	logger.Info("chart page written", zap.String("path", path), zap.Stringer("timeframe", params.Timeframe))

	fmt.Fprintln(out, "✅ HTML chart generated successfully!")
	fmt.Fprintf(out, "📄 File saved as: %s\n", path)
	fmt.Fprintln(out, "🌐 Open the file in your browser to use the chart")
	fmt.Fprintln(out, "\n📋 Features:")
	fmt.Fprintln(out, "   • Direct connection to Birdeye API")
	fmt.Fprintln(out, "   • Real-time WebSocket updates")
	fmt.Fprintln(out, "   • TradingView Lightweight Charts")
	fmt.Fprintln(out, "   • Standalone HTML file (no server required)")
	return nil
}
