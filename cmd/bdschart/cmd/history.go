package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/bdschart/chart"
	"github.com/rustyeddy/bdschart/internal/birdeye"
	"github.com/rustyeddy/bdschart/internal/metrics"
	"github.com/rustyeddy/bdschart/market"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print one page of historical candles",
	Long: `Load the most recent candles for a token from the Birdeye OHLCV endpoint
and print them as a table or CSV.

Requires BDS_API_KEY (or BDS_STANDARD_API_KEY).

Example:
  bdschart history --token So11111111111111111111111111111111111111112 \
    --timeframe 1H --count 48 --csv --out sol-1h.csv`,
	RunE: runHistory,
}

var (
	historyToken     string
	historyTimeframe string
	historyCount     int
	historyCSV       bool
	historyOut       string
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyToken, "token", "", "token address (default from config)")
	historyCmd.Flags().StringVar(&historyTimeframe, "timeframe", "", "timeframe: 1m, 5m, 15m, 1H, 4H, 1D (default from config)")
	historyCmd.Flags().IntVar(&historyCount, "count", 0, "number of candles (default from config)")
	historyCmd.Flags().BoolVar(&historyCSV, "csv", false, "write CSV instead of a table")
	historyCmd.Flags().StringVar(&historyOut, "out", "", "output path (default stdout)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("missing api key: set BDS_API_KEY")
	}
	token, tf, err := target(historyToken, historyTimeframe)
	if err != nil {
		return err
	}
	count := cfg.Chart.CountLimit
	if historyCount > 0 {
		count = historyCount
	}

	c := chart.New()
	loader := &chart.Loader{
		Source:  newClient(),
		Surface: c,
		Log:     newLog(cmd.ErrOrStderr()),
		Count:   count,
		Logger:  logger,
		Metrics: metrics.New(),
	}
	if err := loader.Load(cmd.Context(), token, tf); err != nil {
		return err
	}

	return writeOutput(cmd.OutOrStdout(), historyOut, func(w io.Writer) error {
		if historyCSV {
			return writeCandlesCSV(w, c.Candles(), c.Volumes())
		}
		return writeCandlesTable(w, c.Candles(), c.Volumes())
	})
}

// newClient builds a REST client from the loaded config.
func newClient() *birdeye.Client {
	return &birdeye.Client{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.APIKey,
		Chain:   cfg.API.Chain,
	}
}

// writeOutput runs write against path, or against stdout when path is
// empty. A failed close is reported like a failed write.
func writeOutput(stdout io.Writer, path string, write func(io.Writer) error) (err error) {
	if path == "" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	return write(f)
}

// target resolves the token and timeframe flags against the config.
func target(tokenFlag, tfFlag string) (string, market.Timeframe, error) {
	token := cfg.Chart.Token
	if tokenFlag != "" {
		token = tokenFlag
	}
	raw := string(cfg.Chart.Timeframe)
	if tfFlag != "" {
		raw = tfFlag
	}
	tf, err := market.ParseTimeframe(raw)
	if err != nil {
		return "", "", err
	}
	return token, tf, nil
}

// newLog prints every chart log entry on w.
func newLog(w io.Writer) *chart.Log {
	l := chart.NewLog(logger, 0)
	l.OnEntry(func(e chart.Entry) {
		fmt.Fprintln(w, e.String())
	})
	return l
}

func volumeAt(volumes []market.VolumeBar) map[int64]float64 {
	m := make(map[int64]float64, len(volumes))
	for _, v := range volumes {
		m[v.Time] = v.Value
	}
	return m
}

func writeCandlesCSV(w io.Writer, candles []market.Candle, volumes []market.VolumeBar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	vol := volumeAt(volumes)
	for _, c := range candles {
		if err := cw.Write([]string{
			time.Unix(c.Time, 0).UTC().Format(time.RFC3339),
			fmtFloat(c.Open),
			fmtFloat(c.High),
			fmtFloat(c.Low),
			fmtFloat(c.Close),
			fmtFloat(vol[c.Time]),
		}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}
	return nil
}

func writeCandlesTable(w io.Writer, candles []market.Candle, volumes []market.VolumeBar) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "TIME\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME\t")
	vol := volumeAt(volumes)
	for _, c := range candles {
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%.6f\t%.6f\t%.2f\t\n",
			time.Unix(c.Time, 0).UTC().Format("2006-01-02 15:04"),
			c.Open, c.High, c.Low, c.Close, vol[c.Time])
	}
	return tw.Flush()
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
