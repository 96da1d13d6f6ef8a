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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/bdschart/chart"
	"github.com/rustyeddy/bdschart/internal/metrics"
	"github.com/rustyeddy/bdschart/market"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Follow live price updates in the terminal",
	Long: `Open one WebSocket session to Birdeye, subscribe to price updates for a
token and print every log entry as it arrives. The session ends on Ctrl-C, when
--duration elapses, or when the server closes the connection. There is no
reconnect.

Example:
  bdschart stream --timeframe 1m --history --duration 10m --metrics-addr :9102
  bdschart stream --trades`,
	RunE: runStream,
}

var (
	streamToken       string
	streamTimeframe   string
	streamDuration    time.Duration
	streamHistory     bool
	streamMetricsAddr string
	streamTrades      bool
)

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().StringVar(&streamToken, "token", "", "token address (default from config)")
	streamCmd.Flags().StringVar(&streamTimeframe, "timeframe", "", "timeframe: 1m, 5m, 15m, 1H, 4H, 1D (default from config)")
	streamCmd.Flags().DurationVar(&streamDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
	streamCmd.Flags().BoolVar(&streamHistory, "history", false, "load one page of history before streaming")
	streamCmd.Flags().StringVar(&streamMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
	streamCmd.Flags().BoolVar(&streamTrades, "trades", false, "also subscribe to the token's swaps and print each trade")
}

func runStream(cmd *cobra.Command, args []string) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("missing api key: set BDS_API_KEY")
	}
	token, tf, err := target(streamToken, streamTimeframe)
	if err != nil {
		return err
	}
	delay, err := cfg.Chart.ParseSubscribeDelay()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if streamDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, streamDuration)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	m := metrics.New()
	log := newLog(out)
	c := chart.New()
	c.OnStatus(func(state market.ConnectionState, msg string) {
		logger.Debug("status", zap.Stringer("state", state), zap.String("message", msg))
	})
	c.OnCandle(func(bar market.Candle) {
		logger.Debug("candle", zap.Int64("time", bar.Time), zap.Float64("close", bar.Close))
	})

	if streamMetricsAddr != "" {
		srv := serveMetrics(streamMetricsAddr, m)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sub := &chart.Subscriber{
		URL:            cfg.API.WSURL,
		APIKey:         cfg.APIKey,
		Origin:         cfg.API.Origin,
		SubscribeDelay: delay,
		Trades:         streamTrades,
		Surface:        c,
		Status:         c,
		Log:            log,
		Logger:         logger,
		Metrics:        m,
	}

	if streamHistory {
		loader := &chart.Loader{
			Source:  newClient(),
			Surface: c,
			Log:     log,
			Count:   cfg.Chart.CountLimit,
			Live:    sub,
			Logger:  logger,
			Metrics: m,
		}
		// a failed load is already logged and does not stop the stream
		_ = loader.Load(ctx, token, tf)
	}

	sess, err := sub.Connect(ctx, token, tf)
	if err != nil {
		return err
	}
	<-sess.Done()

	if last, ok := c.Last(); ok {
		fmt.Fprintf(out, "Last candle %s: O=%.6f H=%.6f L=%.6f C=%.6f (%d candles)\n",
			time.Unix(last.Time, 0).UTC().Format(time.RFC3339),
			last.Open, last.High, last.Low, last.Close, len(c.Candles()))
	}
	return sess.Err()
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}
