package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_ = json.NewEncoder(w).Encode(map[string]string{"lastPrice": "67000.5"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithTimeout(time.Second), WithHeader("X-Api-Key", "secret"))
	var out struct {
		LastPrice string `json:"lastPrice"`
	}
	err := c.GetJSON(context.Background(), "/api/v3/ticker/24hr", url.Values{"symbol": {"BTCUSDT"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "67000.5", out.LastPrice)
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).GetJSON(context.Background(), "x", nil, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, "rate limited", se.Body)
}

func TestClientPostsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]int{"n": in["n"] + 1})
	}))
	defer srv.Close()

	var out map[string]int
	err := NewClient(srv.URL).Do(context.Background(), &RequestOptions{
		Method: http.MethodPost,
		Path:   "/inc",
		Body:   map[string]int{"n": 1},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, out["n"])
}
