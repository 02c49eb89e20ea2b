// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/httputil"
	"github.com/pdiddy/research-agents/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

func TestExtractLocation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What's the weather in Paris today?", "Paris"},
		{"weather forecast for New York, NY", "New York, NY"},
		{"Is it going to rain in São Paulo this weekend", "São Paulo"},
		{"temperature at 48.8566, 2.3522", "48.8566, 2.3522"},
		{"what's the weather like", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLocation(tt.in))
		})
	}
}

func forecastList(n int) []map[string]any {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var out []map[string]any
	for i := 0; i < n; i++ {
		out = append(out, map[string]any{
			"dt":      base.Add(time.Duration(i) * 3 * time.Hour).Unix(),
			"main":    map[string]any{"temp": float64(i), "temp_min": float64(i) - 1, "temp_max": float64(i) + 1, "humidity": 50},
			"weather": []map[string]any{{"description": fmt.Sprintf("slot %d", i)}},
		})
	}
	return out
}

type fakeOWM struct {
	geocodes  atomic.Int32
	forecastF bool
	slots     int
}

func (f *fakeOWM) serve(t *testing.T) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("appid"))
		switch r.URL.Path {
		case "/geo/1.0/direct":
			f.geocodes.Add(1)
			if q.Get("q") == "Atlantis" {
				w.Write([]byte(`[]`))
				return
			}
			w.Write([]byte(`[{"name":"Paris","country":"FR","lat":48.8566,"lon":2.3522}]`))
		case "/data/2.5/weather":
			assert.Equal(t, "metric", q.Get("units"))
			assert.NotEmpty(t, q.Get("lat"))
			w.Write([]byte(`{"dt":1777636800,"main":{"temp":18.5,"feels_like":17.9,"temp_min":16,"temp_max":20,"humidity":72},
				"weather":[{"description":"light rain"}],"wind":{"speed":4.1}}`))
		case "/data/2.5/forecast":
			if f.forecastF {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"list": forecastList(f.slots)})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	old := owmAPIBase
	owmAPIBase = ts.URL
	t.Cleanup(func() { owmAPIBase = old })
}

func newCollector(t *testing.T) *Collector {
	return New(nil, types.CollectorConfig{OpenWeatherAPIKey: "test-key"}, 1, zaptest.NewLogger(t))
}

func TestSnapshot(t *testing.T) {
	f := &fakeOWM{slots: 40}
	f.serve(t)

	s, err := newCollector(t).Snapshot(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, "Paris, FR", s.Location)
	assert.Equal(t, "metric", s.Units)
	assert.Equal(t, 18.5, s.Current.Temperature)
	assert.Equal(t, 72, s.Current.Humidity)
	assert.Equal(t, "light rain", s.Current.Description)
	assert.Equal(t, 4.1, s.Current.WindSpeed)

	require.Len(t, s.Forecast, 5, "40 slots sampled every 8th")
	for i, f := range s.Forecast {
		assert.Equal(t, fmt.Sprintf("slot %d", i*8), f.Description)
	}
	assert.Equal(t, 24*time.Hour, s.Forecast[1].Time.Sub(s.Forecast[0].Time))
	assert.Equal(t, int32(1), f.geocodes.Load())
}

func TestSnapshot_ForecastCappedAtSeven(t *testing.T) {
	f := &fakeOWM{slots: 80}
	f.serve(t)
	s, err := newCollector(t).Snapshot(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Len(t, s.Forecast, 7)
}

func TestSnapshot_CoordinatesSkipGeocoding(t *testing.T) {
	f := &fakeOWM{slots: 8}
	f.serve(t)
	s, err := newCollector(t).Snapshot(context.Background(), "48.8566, 2.3522")
	require.NoError(t, err)
	assert.Zero(t, f.geocodes.Load())
	assert.Equal(t, "48.8566, 2.3522", s.Location)
	assert.Len(t, s.Forecast, 1)
}

func TestSnapshot_ForecastFailureDegrades(t *testing.T) {
	f := &fakeOWM{forecastF: true}
	f.serve(t)
	s, err := newCollector(t).Snapshot(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Empty(t, s.Forecast)
	assert.Equal(t, "light rain", s.Current.Description)
}

func TestSnapshot_Errors(t *testing.T) {
	f := &fakeOWM{}
	f.serve(t)

	_, err := newCollector(t).Snapshot(context.Background(), "Atlantis")
	assert.True(t, fault.IsKind(err, fault.Validation))
	assert.Contains(t, err.Error(), "not found")

	_, err = newCollector(t).Snapshot(context.Background(), "  ")
	assert.True(t, fault.IsKind(err, fault.Validation))

	c := newCollector(t)
	c.APIKey = ""
	_, err = c.Snapshot(context.Background(), "Paris")
	assert.True(t, fault.IsKind(err, fault.Config))
}

func TestSample(t *testing.T) {
	assert.Empty(t, sample(nil))
	var list []owmReading
	for i := 0; i < 17; i++ {
		list = append(list, owmReading{Dt: int64(i)})
	}
	got := sample(list)
	require.Len(t, got, 3)
	assert.Equal(t, int64(16), got[2].Time.Unix())
}
