// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package weather captures current conditions and a daily forecast from
// OpenWeatherMap, geocoding place names when needed.
package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/httputil"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/pkg/types"
)

// owmAPIBase is the OpenWeatherMap root. Declared as a var so tests can
// substitute an httptest server.
var owmAPIBase = "https://api.openweathermap.org"

const (
	// slotStride samples one 3-hour forecast slot per day.
	slotStride   = 8
	maxForecasts = 7
)

var (
	coordRe    = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)
	coordAnyRe = regexp.MustCompile(`-?\d{1,3}\.\d+\s*,\s*-?\d{1,3}\.\d+`)
	locationRe = regexp.MustCompile(`(?i)\b(?:in|for|at)\s+([\p{L}][\p{L} .,'-]*?)\s*(?:\b(?:today|tomorrow|tonight|this week|next week|right now|now|this weekend)\b)?\s*[?.!]*\s*$`)
)

// ExtractLocation pulls a place name or "lat,lon" pair out of a request
// such as "What's the weather in Paris today?". It returns "" when none
// is found.
func ExtractLocation(text string) string {
	if m := coordAnyRe.FindString(text); m != "" {
		return m
	}
	if m := locationRe.FindStringSubmatch(text); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), ",.")
	}
	return ""
}

// Collector fetches weather snapshots. Safe for concurrent use.
type Collector struct {
	Client     *http.Client
	APIKey     string
	Units      string
	MaxRetries int
	logger     *zap.Logger
}

// New returns a Collector. Units default to metric.
func New(client *http.Client, cfg types.CollectorConfig, maxRetries int, logger *zap.Logger) *Collector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	units := cfg.WeatherUnits
	if units == "" {
		units = "metric"
	}
	return &Collector{Client: client, APIKey: cfg.OpenWeatherAPIKey, Units: units, MaxRetries: maxRetries, logger: logging.OrNop(logger)}
}

type place struct {
	Name    string  `json:"name"`
	State   string  `json:"state"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (p place) label() string {
	parts := []string{p.Name}
	if p.State != "" {
		parts = append(parts, p.State)
	}
	if p.Country != "" {
		parts = append(parts, p.Country)
	}
	return strings.Join(parts, ", ")
}

type owmMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Humidity  int     `json:"humidity"`
}

type owmReading struct {
	Dt      int64   `json:"dt"`
	Main    owmMain `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (r owmReading) reading() types.WeatherReading {
	desc := ""
	if len(r.Weather) > 0 {
		desc = r.Weather[0].Description
	}
	return types.WeatherReading{
		Time:        time.Unix(r.Dt, 0).UTC(),
		Temperature: r.Main.Temp,
		FeelsLike:   r.Main.FeelsLike,
		TempMin:     r.Main.TempMin,
		TempMax:     r.Main.TempMax,
		Humidity:    r.Main.Humidity,
		WindSpeed:   r.Wind.Speed,
		Description: desc,
	}
}

// Snapshot returns current conditions and up to seven daily forecast
// entries for location. A failed forecast leaves Forecast empty; a failed
// current reading fails the snapshot.
func (c *Collector) Snapshot(ctx context.Context, location string) (*types.WeatherSnapshot, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fault.Errorf(fault.Validation, "weather", "no location given")
	}
	if c.APIKey == "" {
		return nil, fault.Errorf(fault.Config, "weather", "OpenWeatherMap API key not configured")
	}
	p, err := c.resolve(ctx, location)
	if err != nil {
		return nil, err
	}

	var current types.WeatherReading
	var forecast []types.WeatherReading
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var r owmReading
		if err := c.get(gctx, "/data/2.5/weather", p, &r, "weather current"); err != nil {
			return err
		}
		current = r.reading()
		return nil
	})
	g.Go(func() error {
		var resp struct {
			List []owmReading `json:"list"`
		}
		if err := c.get(gctx, "/data/2.5/forecast", p, &resp, "weather forecast"); err != nil {
			if gctx.Err() == nil {
				c.logger.Warn("forecast unavailable", zap.String("location", p.label()), zap.Error(err))
			}
			return nil
		}
		forecast = sample(resp.List)
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fault.New(fault.Cancelled, "weather", ctx.Err())
		}
		return nil, err
	}

	c.logger.Info("weather captured",
		zap.String("location", p.label()),
		zap.Float64("temperature", current.Temperature),
		zap.Int("forecast_days", len(forecast)))
	return &types.WeatherSnapshot{
		Location: p.label(),
		Units:    c.Units,
		Current:  current,
		Forecast: forecast,
	}, nil
}

// sample keeps every eighth 3-hour slot, one per day, up to seven.
func sample(list []owmReading) []types.WeatherReading {
	out := []types.WeatherReading{}
	for i := 0; i < len(list) && len(out) < maxForecasts; i += slotStride {
		out = append(out, list[i].reading())
	}
	return out
}

// resolve geocodes location unless it is already "lat,lon".
func (c *Collector) resolve(ctx context.Context, location string) (place, error) {
	if m := coordRe.FindStringSubmatch(location); m != nil {
		lat, _ := strconv.ParseFloat(m[1], 64)
		lon, _ := strconv.ParseFloat(m[2], 64)
		return place{Name: location, Lat: lat, Lon: lon}, nil
	}
	q := url.Values{}
	q.Set("q", location)
	q.Set("limit", "1")
	q.Set("appid", c.APIKey)
	var places []place
	if err := httputil.GetJSON(ctx, c.Client, owmAPIBase+"/geo/1.0/direct?"+q.Encode(), nil, &places, c.MaxRetries, "weather geocode"); err != nil {
		return place{}, err
	}
	if len(places) == 0 {
		return place{}, fault.Errorf(fault.Validation, "weather geocode", "location %q not found", location)
	}
	return places[0], nil
}

func (c *Collector) get(ctx context.Context, path string, p place, out any, op string) error {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', -1, 64))
	q.Set("units", c.Units)
	q.Set("appid", c.APIKey)
	if err := httputil.GetJSON(ctx, c.Client, owmAPIBase+path+"?"+q.Encode(), nil, out, c.MaxRetries, op); err != nil {
		return fmt.Errorf("%s for %s: %w", op, p.label(), err)
	}
	return nil
}
