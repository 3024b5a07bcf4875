// Package aemet fetches AEMET-style OpenData municipal daily forecasts.
//
// The API is two-stage: the forecast endpoint answers with an indirection
// envelope whose "datos" field is a temporary result URL, and the actual
// forecast array lives behind that second URL.
package aemet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/firewatch/hotspot-ingest/internal/domain"
	"github.com/firewatch/hotspot-ingest/internal/feed"
)

// Client fetches daily forecasts, one province per call.
type Client struct {
	fetcher *feed.Fetcher
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewClient creates a forecast feed client. baseURL is the API root, e.g.
// "https://opendata.aemet.es/opendata".
func NewClient(fetcher *feed.Fetcher, baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{fetcher: fetcher, baseURL: baseURL, apiKey: apiKey, logger: logger}
}

// envelope is the stage-one indirection payload.
type envelope struct {
	Estado      int    `json:"estado"`
	Datos       string `json:"datos"`
	Descripcion string `json:"descripcion"`
}

// Stage-two response: an array whose first element nests the daily forecasts
// under prediccion.dia.
type municipalForecast struct {
	Prediccion struct {
		Dia []forecastDay `json:"dia"`
	} `json:"prediccion"`
}

type forecastDay struct {
	Fecha       string `json:"fecha"`
	Temperatura struct {
		Maxima float64 `json:"maxima"`
		Minima float64 `json:"minima"`
	} `json:"temperatura"`
	HumedadRelativa struct {
		Maxima float64 `json:"maxima"`
		Minima float64 `json:"minima"`
	} `json:"humedadRelativa"`
	Viento []struct {
		Velocidad float64 `json:"velocidad"`
	} `json:"viento"`
	ProbPrecipitacion []struct {
		Value float64 `json:"value"`
	} `json:"probPrecipitacion"`
}

// FetchProvince performs the two-stage fetch for one province code and
// flattens the nested daily objects into raw forecast days.
func (c *Client) FetchProvince(ctx context.Context, code string) ([]domain.RawForecastDay, error) {
	endpoint := fmt.Sprintf("%s/api/prediccion/especifica/municipio/diaria/%s",
		c.baseURL, url.PathEscape(code))

	// The key travels as a header so fetch warnings that include the URL
	// never expose it.
	header := http.Header{}
	header.Set("api_key", c.apiKey)
	body, err := c.fetcher.Get(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("province %s: %w", code, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("province %s: decode envelope: %w", code, err)
	}
	if env.Datos == "" {
		return nil, fmt.Errorf("province %s: envelope has no result url (estado %d: %s)", code, env.Estado, env.Descripcion)
	}

	data, err := c.fetcher.Get(ctx, env.Datos, nil)
	if err != nil {
		return nil, fmt.Errorf("province %s: result url: %w", code, err)
	}

	var forecasts []municipalForecast
	if err := json.Unmarshal(data, &forecasts); err != nil {
		return nil, fmt.Errorf("province %s: decode forecast: %w", code, err)
	}
	if len(forecasts) == 0 {
		return nil, nil
	}

	days := forecasts[0].Prediccion.Dia
	out := make([]domain.RawForecastDay, 0, len(days))
	for _, day := range days {
		out = append(out, flattenDay(day))
	}
	return out, nil
}

// flattenDay reconciles the provider's interval-structured wind and
// precipitation fields into single daily maxima.
func flattenDay(day forecastDay) domain.RawForecastDay {
	raw := domain.RawForecastDay{
		Date:        day.Fecha,
		TempMax:     day.Temperatura.Maxima,
		TempMin:     day.Temperatura.Minima,
		HumidityMax: day.HumedadRelativa.Maxima,
		HumidityMin: day.HumedadRelativa.Minima,
	}
	for _, w := range day.Viento {
		if w.Velocidad > raw.WindMax {
			raw.WindMax = w.Velocidad
		}
	}
	for _, p := range day.ProbPrecipitacion {
		if p.Value > raw.PrecipProbMax {
			raw.PrecipProbMax = p.Value
		}
	}
	return raw
}
