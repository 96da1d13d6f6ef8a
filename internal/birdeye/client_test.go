package birdeye

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/bdschart/market"
)

func TestOHLCV_MissingInputs(t *testing.T) {
	t.Parallel()

	opts := OHLCVOptions{Address: SOLAddress, Type: market.D1}

	tests := []struct {
		name   string
		client Client
		opts   OHLCVOptions
		want   string
	}{
		{"missing api key", Client{BaseURL: "http://example.com"}, opts, "missing api key"},
		{"missing base url", Client{APIKey: "k"}, opts, "missing base url"},
		{"missing address", Client{APIKey: "k", BaseURL: "http://example.com"}, OHLCVOptions{Type: market.D1}, "missing address"},
		{"missing type", Client{APIKey: "k", BaseURL: "http://example.com"}, OHLCVOptions{Address: SOLAddress}, "missing type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.client.OHLCV(context.Background(), tt.opts)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOHLCV_ParsesItems(t *testing.T) {
	t.Parallel()

	to := time.Unix(1726704000, 0)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/defi/v3/ohlcv", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, SOLAddress, q.Get("address"))
		require.Equal(t, "1H", q.Get("type"))
		require.Equal(t, "1726704000", q.Get("time_to"))
		require.Equal(t, "count", q.Get("mode"))
		require.Equal(t, "200", q.Get("count_limit"))
		require.Equal(t, "key", r.Header.Get("X-API-KEY"))
		require.Equal(t, "solana", r.Header.Get("x-chain"))

		_, _ = w.Write([]byte(`{"success":true,"data":{"items":[
			{"unix_time":1726700400,"o":10,"h":"12.5","l":9.5,"c":"11","v":1000},
			{"unix_time":"1726704000","o":"11","h":11.2,"l":"10.1","c":10.5,"v":"250.5"}
		]}}`))
	})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := Client{BaseURL: srv.URL, APIKey: "key"}
	items, err := client.OHLCV(context.Background(), OHLCVOptions{
		Address: SOLAddress,
		Type:    market.H1,
		TimeTo:  to,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	c, v := items[0].Candle()
	assert.Equal(t, market.Candle{Time: 1726700400, Open: 10, High: 12.5, Low: 9.5, Close: 11}, c)
	assert.Equal(t, market.VolumeBar{Time: 1726700400, Value: 1000, Color: market.UpColor}, v)

	c, v = items[1].Candle()
	assert.Equal(t, int64(1726704000), c.Time)
	assert.Equal(t, 250.5, v.Value)
	assert.Equal(t, market.DownColor, v.Color)
}

func TestOHLCV_Unsuccessful(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"provider message", http.StatusOK, `{"success":false,"message":"Invalid address"}`, "Invalid address"},
		{"no message", http.StatusBadRequest, `{"success":false}`, "Unknown error"},
		{"success without items", http.StatusOK, `{"success":true,"data":{}}`, "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := Client{BaseURL: srv.URL, APIKey: "key"}
			_, err := client.OHLCV(context.Background(), OHLCVOptions{Address: SOLAddress, Type: market.M1})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestOHLCV_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"not json", http.StatusOK, `<html>`, "bad ohlcv response"},
		{"bad number", http.StatusOK, `{"success":true,"data":{"items":[{"unix_time":1,"o":"x"}]}}`, "bad ohlcv response"},
		{"http error without envelope", http.StatusUnauthorized, `Unauthorized`, "birdeye ohlcv http 401: Unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := Client{BaseURL: srv.URL, APIKey: "key"}
			_, err := client.OHLCV(context.Background(), OHLCVOptions{Address: SOLAddress, Type: market.M1})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var apiErr *APIError
			assert.False(t, errors.As(err, &apiErr))
		})
	}
}
