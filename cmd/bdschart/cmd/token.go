package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/bdschart/internal/birdeye"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Query token data from the Birdeye REST API",
	Long: `Look up the current price, overview, recent swaps or price history of a
token. The token defaults to the configured chart token.

Requires BDS_API_KEY (or BDS_STANDARD_API_KEY).

Examples:
  bdschart token price
  bdschart token overview --token <address>
  bdschart token txs --limit 10
  bdschart token history --timeframe 1H --csv --out sol-price.csv`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(cmd, args); err != nil {
			return err
		}
		if cfg.APIKey == "" {
			return fmt.Errorf("missing api key: set BDS_API_KEY")
		}
		return nil
	},
}

var tokenPriceCmd = &cobra.Command{
	Use:   "price",
	Short: "Print the current usd price",
	RunE:  runTokenPrice,
}

var tokenOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print name, price, market cap and volume",
	RunE:  runTokenOverview,
}

var tokenTxsCmd = &cobra.Command{
	Use:   "txs",
	Short: "Print the most recent swaps",
	RunE:  runTokenTxs,
}

var tokenHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the price line over one page of intervals",
	RunE:  runTokenHistory,
}

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Print newly listed tokens",
	RunE:  runListings,
}

var (
	tokenAddress   string
	tokenLimit     int
	tokenTimeframe string
	tokenCSV       bool
	tokenOut       string
	listingsLimit  int
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(listingsCmd)
	tokenCmd.AddCommand(tokenPriceCmd, tokenOverviewCmd, tokenTxsCmd, tokenHistoryCmd)

	tokenCmd.PersistentFlags().StringVar(&tokenAddress, "token", "", "token address (default from config)")
	tokenTxsCmd.Flags().IntVar(&tokenLimit, "limit", birdeye.DefaultTxsLimit, "number of swaps")
	tokenHistoryCmd.Flags().StringVar(&tokenTimeframe, "timeframe", "", "timeframe: 1m, 5m, 15m, 1H, 4H, 1D (default from config)")
	tokenHistoryCmd.Flags().BoolVar(&tokenCSV, "csv", false, "write CSV instead of a table")
	tokenHistoryCmd.Flags().StringVar(&tokenOut, "out", "", "output path (default stdout)")
	listingsCmd.Flags().IntVar(&listingsLimit, "limit", birdeye.DefaultListingLimit, "number of tokens")
}

func runTokenPrice(cmd *cobra.Command, args []string) error {
	token, _, err := target(tokenAddress, "")
	if err != nil {
		return err
	}
	p, err := newClient().Price(cmd.Context(), token)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: $%.6f (24h %+.2f%%) at %s\n",
		short(token), p.Value.Float64(), p.PriceChange24h.Float64(),
		p.Updated().UTC().Format(time.RFC3339))
	return nil
}

func runTokenOverview(cmd *cobra.Command, args []string) error {
	token, _, err := target(tokenAddress, "")
	if err != nil {
		return err
	}
	o, err := newClient().TokenOverview(cmd.Context(), token)
	if err != nil {
		return fmt.Errorf("token overview: %w", err)
	}
	writeOverview(cmd.OutOrStdout(), o)
	return nil
}

func writeOverview(w io.Writer, o birdeye.TokenOverview) {
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Token: %s (%s)\n", o.Name, o.Symbol)
	fmt.Fprintf(w, "Address: %s\n", o.Address)
	fmt.Fprintf(w, "Current Price: $%.6f\n", o.Price.Float64())
	fmt.Fprintf(w, "Market Cap: %s\n", formatCurrency(o.MarketCap.Float64()))
	fmt.Fprintf(w, "Liquidity: %s\n", formatCurrency(o.Liquidity.Float64()))
	fmt.Fprintf(w, "24h Volume: %s\n", formatCurrency(o.Volume24hUSD.Float64()))
	fmt.Fprintf(w, "24h Change: %.2f%%\n", o.PriceChange24hPercent.Float64())
	fmt.Fprintf(w, "Holders: %d\n", o.Holders.Int64())
	fmt.Fprintln(w, strings.Repeat("=", 50))
}

func runTokenTxs(cmd *cobra.Command, args []string) error {
	token, _, err := target(tokenAddress, "")
	if err != nil {
		return err
	}
	txs, err := newClient().TokenTxs(cmd.Context(), token, tokenLimit)
	if err != nil {
		return fmt.Errorf("token txs: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSIDE\tAMOUNT\tUSD VALUE\tPRICE\tSOURCE\tOWNER\tSIGNATURE")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%s\t%.6f\t%s\t%s\t%s\n",
			tx.Time().UTC().Format("2006-01-02 15:04:05"),
			tx.Side, tx.Volume.Float64(), formatCurrency(tx.VolumeUSD.Float64()),
			tx.PricePair.Float64(), tx.Source, short(tx.Owner), signature(tx.TxHash))
	}
	return tw.Flush()
}

func runTokenHistory(cmd *cobra.Command, args []string) error {
	token, tf, err := target(tokenAddress, tokenTimeframe)
	if err != nil {
		return err
	}
	points, err := newClient().HistoryPrice(cmd.Context(), birdeye.HistoryPriceOptions{
		Address: token,
		Type:    tf,
	})
	if err != nil {
		return fmt.Errorf("history price: %w", err)
	}

	return writeOutput(cmd.OutOrStdout(), tokenOut, func(w io.Writer) error {
		if tokenCSV {
			cw := csv.NewWriter(w)
			_ = cw.Write([]string{"time", "price"})
			for _, p := range points {
				_ = cw.Write([]string{
					time.Unix(p.UnixTime.Int64(), 0).UTC().Format(time.RFC3339),
					fmtFloat(p.Value.Float64()),
				})
			}
			cw.Flush()
			return cw.Error()
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "TIME\tPRICE\t")
		for _, p := range points {
			fmt.Fprintf(tw, "%s\t%.6f\t\n",
				time.Unix(p.UnixTime.Int64(), 0).UTC().Format("2006-01-02 15:04"), p.Value.Float64())
		}
		return tw.Flush()
	})
}

func runListings(cmd *cobra.Command, args []string) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("missing api key: set BDS_API_KEY")
	}
	ls, err := newClient().NewListings(cmd.Context(), listingsLimit)
	if err != nil {
		return fmt.Errorf("new listings: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tNAME\tLIQUIDITY\tSOURCE\tLISTED\tADDRESS")
	for _, l := range ls {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.Symbol, l.Name, formatCurrency(l.Liquidity.Float64()), l.Source, l.LiquidityAddedAt, l.Address)
	}
	return tw.Flush()
}

// formatCurrency abbreviates large usd amounts, e.g. $1.23B.
func formatCurrency(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.2fK", v/1e3)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}

func signature(hash string) string {
	if len(hash) <= 10 {
		return hash
	}
	return hash[:10] + "..."
}

func short(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:8]
}
