// Package render produces the standalone chart page.
package render

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/rustyeddy/bdschart/chart"
	"github.com/rustyeddy/bdschart/config"
	"github.com/rustyeddy/bdschart/internal/birdeye"
	"github.com/rustyeddy/bdschart/market"
)

// ErrMissingAPIKey is returned when there is no key to embed in the page.
var ErrMissingAPIKey = errors.New("BDS_API_KEY not found in environment variables")

//go:embed chart.html.tmpl
var pageSource string

// Page values are escaped explicitly with the js and html builtins where
// they are interpolated.
var page = template.Must(template.New("chart").Parse(pageSource))

// Params are the values substituted into the page. Empty fields take the
// config defaults.
type Params struct {
	APIKey          string
	BaseURL         string
	WSURL           string
	Chain           string
	Token           string
	Timeframe       market.Timeframe
	CountLimit      int
	SubscribeDelay  time.Duration
	Title           string
	ChartLibraryURL string
	UpColor         string
	DownColor       string
}

// FromConfig maps a loaded configuration onto page parameters.
func FromConfig(cfg *config.Config) (Params, error) {
	delay, err := cfg.Chart.ParseSubscribeDelay()
	if err != nil {
		return Params{}, fmt.Errorf("subscribe delay: %w", err)
	}
	return Params{
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.API.BaseURL,
		WSURL:           cfg.API.WSURL,
		Chain:           cfg.API.Chain,
		Token:           cfg.Chart.Token,
		Timeframe:       cfg.Chart.Timeframe,
		CountLimit:      cfg.Chart.CountLimit,
		SubscribeDelay:  delay,
		Title:           cfg.Chart.Title,
		ChartLibraryURL: cfg.Chart.ChartLibraryURL,
		UpColor:         cfg.Chart.UpColor,
		DownColor:       cfg.Chart.DownColor,
	}, nil
}

func (p Params) withDefaults() Params {
	d := config.Default()
	or := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	or(&p.BaseURL, d.API.BaseURL)
	or(&p.WSURL, d.API.WSURL)
	or(&p.Chain, birdeye.DefaultChain)
	or(&p.Token, d.Chart.Token)
	or(&p.Title, d.Chart.Title)
	or(&p.ChartLibraryURL, d.Chart.ChartLibraryURL)
	or(&p.UpColor, d.Chart.UpColor)
	or(&p.DownColor, d.Chart.DownColor)
	if p.Timeframe == "" {
		p.Timeframe = d.Chart.Timeframe
	}
	if p.CountLimit <= 0 {
		p.CountLimit = d.Chart.CountLimit
	}
	if p.SubscribeDelay <= 0 {
		p.SubscribeDelay = chart.DefaultSubscribeDelay
	}
	return p
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

type interval struct {
	Code    string
	Seconds int64
}

type view struct {
	Params
	Options              []option
	Intervals            []interval
	DefaultInterval      int64
	SubscribeDelayMillis int64
	MaxLogEntries        int
}

func newView(p Params) view {
	v := view{
		Params:               p,
		DefaultInterval:      market.D1.Seconds(),
		SubscribeDelayMillis: p.SubscribeDelay.Milliseconds(),
		MaxLogEntries:        chart.DefaultMaxEntries,
	}
	for _, tf := range market.Timeframes() {
		v.Options = append(v.Options, option{
			Value:    tf.String(),
			Label:    tf.Label(),
			Selected: tf == p.Timeframe,
		})
		v.Intervals = append(v.Intervals, interval{Code: tf.String(), Seconds: tf.Seconds()})
	}
	return v
}

// Render writes the page for p to w. Nothing is written when the API key is
// missing.
func Render(w io.Writer, p Params) error {
	if p.APIKey == "" {
		return ErrMissingAPIKey
	}
	p = p.withDefaults()
	if _, err := market.ParseTimeframe(string(p.Timeframe)); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := page.Execute(&buf, newView(p)); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Document returns the page text for p.
func Document(p Params) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteFile renders the page and writes it to path, replacing any existing
// file. No file is created when rendering fails.
func WriteFile(path string, p Params) error {
	doc, err := Document(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	return nil
}
