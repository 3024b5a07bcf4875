package aemet_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firewatch/hotspot-ingest/internal/feed"
	"github.com/firewatch/hotspot-ingest/internal/feed/aemet"
)

const forecastBody = `[
  {
    "prediccion": {
      "dia": [
        {
          "fecha": "2024-07-02T00:00:00",
          "temperatura": {"maxima": 38, "minima": 21},
          "humedadRelativa": {"maxima": 60, "minima": 15},
          "viento": [{"velocidad": 10}, {"velocidad": 35}, {"velocidad": 20}],
          "probPrecipitacion": [{"value": 0}, {"value": 5}]
        },
        {
          "fecha": "2024-07-03T00:00:00",
          "temperatura": {"maxima": 36, "minima": 20},
          "humedadRelativa": {"maxima": 70, "minima": 25},
          "viento": [],
          "probPrecipitacion": []
        }
      ]
    }
  }
]`

// newTwoStageServer serves the indirection envelope at the forecast endpoint
// and the payload at /datos, mirroring the provider's two-stage shape.
func newTwoStageServer(t *testing.T, payload string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/api/prediccion/especifica/municipio/diaria/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api_key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"estado": 200, "datos": "%s/datos"}`, srv.URL)
	})
	mux.HandleFunc("/datos", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(payload))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srvURL string) *aemet.Client {
	fetcher := feed.NewFetcher(feed.Config{MaxAttempts: 1, Timeout: time.Second}, nil, slog.New(slog.DiscardHandler))
	return aemet.NewClient(fetcher, srvURL, "test-key", slog.New(slog.DiscardHandler))
}

func TestFetchProvinceFollowsIndirection(t *testing.T) {
	srv := newTwoStageServer(t, forecastBody)

	days, err := newClient(srv.URL).FetchProvince(context.Background(), "28079")
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, "2024-07-02T00:00:00", days[0].Date)
	assert.Equal(t, 38.0, days[0].TempMax)
	assert.Equal(t, 21.0, days[0].TempMin)
	assert.Equal(t, 60.0, days[0].HumidityMax)
	assert.Equal(t, 35.0, days[0].WindMax, "wind is the maximum over intervals")
	assert.Equal(t, 5.0, days[0].PrecipProbMax)

	assert.Equal(t, 0.0, days[1].WindMax, "empty intervals flatten to zero")
	assert.Equal(t, 0.0, days[1].PrecipProbMax)
}

func TestFetchProvinceKeepsKeyOutOfURL(t *testing.T) {
	var gotURL, gotKey string
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/api/prediccion/especifica/municipio/diaria/", func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		gotKey = r.Header.Get("api_key")
		fmt.Fprintf(w, `{"estado": 200, "datos": "%s/datos"}`, srv.URL)
	})
	mux.HandleFunc("/datos", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("[]"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	_, err := newClient(srv.URL).FetchProvince(context.Background(), "28079")
	require.NoError(t, err)

	// Keys must never appear in URLs: the fetcher logs URLs verbatim when it
	// retries, and those log lines must stay free of credentials.
	assert.NotContains(t, gotURL, "test-key")
	assert.Equal(t, "test-key", gotKey)
}

func TestFetchProvinceRejectsEnvelopeWithoutResultURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"estado": 404, "descripcion": "No hay datos"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).FetchProvince(context.Background(), "28079")
	assert.ErrorContains(t, err, "no result url")
	assert.ErrorContains(t, err, "No hay datos")
}

func TestFetchProvinceEmptyForecastArray(t *testing.T) {
	srv := newTwoStageServer(t, "[]")

	days, err := newClient(srv.URL).FetchProvince(context.Background(), "28079")
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestFetchProvinceFailedStageOne(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).FetchProvince(context.Background(), "28079")
	assert.ErrorContains(t, err, "province 28079")
	assert.Equal(t, int32(1), calls.Load())
}
