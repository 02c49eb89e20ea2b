// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/pkg/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), "abc123", types.JobRequest{JobType: types.JobResearch, Query: "AI trends", ReportStyle: types.StyleSummary}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestUpdateTyped(t *testing.T) {
	s := newStore(t)
	p := types.ResearchPipeline{OriginalQuery: "AI trends", SubQueries: []string{"a"}, PipelineType: types.PipelineTavily}

	require.NoError(t, s.UpdateResearch("research", p))
	require.NotNil(t, s.Research())
	assert.Equal(t, "AI trends", s.Research().OriginalQuery)

	require.NoError(t, s.UpdateResearch("research", &p))
	assert.Equal(t, []string{"research"}, s.Snapshot().AgentsUsed, "no duplicate agents")
	assert.True(t, s.Success())
}

func TestUpdateCoercion(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.UpdateWeather("weather", map[string]any{
		"location": "Paris",
		"units":    "metric",
		"current":  map[string]any{"temperature": 18.5, "humidity": 60},
	}))
	require.NotNil(t, s.Weather())
	assert.Equal(t, "Paris", s.Weather().Location)
	assert.InDelta(t, 18.5, s.Weather().Current.Temperature, 1e-9)

	require.NoError(t, s.UpdateYouTube("youtube", `{"url":"https://youtu.be/dQw4w9WgXcQ","video_id":"dQw4w9WgXcQ","transcript":"hi","metadata":{"title":"T"}}`))
	assert.Equal(t, "dQw4w9WgXcQ", s.YouTube().VideoID)
	assert.True(t, s.Success())
}

func TestUpdateCoercionFailure(t *testing.T) {
	tests := []struct {
		name string
		v    any
	}{
		{"bad json", `{"location": `},
		{"unknown field", map[string]any{"location": "Paris", "bogus": 1}},
		{"wrong type", 42},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.UpdateWeather("weather", types.WeatherSnapshot{Location: "Oslo"}))

			err := s.UpdateWeather("weather", tt.v)
			require.Error(t, err)
			assert.True(t, fault.IsKind(err, fault.Validation))
			assert.Nil(t, s.Weather(), "slot cleared")
			assert.False(t, s.Success())

			snap := s.Snapshot()
			require.Len(t, snap.Errors, 1)
			assert.Equal(t, "weather", snap.Errors[0].Agent)
			assert.Contains(t, snap.Errors[0].Message, SlotWeather)
		})
	}
}

func TestAddErrorAndCompletion(t *testing.T) {
	s := newStore(t)
	s.MarkAgentComplete("research")
	s.MarkAgentComplete("research")
	assert.True(t, s.IsComplete("research"))
	assert.False(t, s.IsComplete("youtube"))

	s.AddError("youtube", "Invalid YouTube URL: https://www.youtube.com/")
	snap := s.Snapshot()
	assert.Equal(t, []string{"research"}, snap.CompletedAgents)
	assert.Equal(t, []string{"research", "youtube"}, snap.AgentsUsed)
	assert.False(t, snap.Success)
	assert.False(t, s.Success())
}

func TestPersistRoundTrip(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.UpdateResearch("research", types.ResearchPipeline{
		OriginalQuery: "AI trends",
		SubQueries:    []string{"one", "two"},
		PipelineType:  types.PipelineCombined,
		Items: []types.ResearchItem{{
			SubQuery: "one", SourceURL: "https://a.example", Title: "A",
			Provider: types.ProviderTavily, RelevanceScore: 0.9, Timestamp: stamp(),
			Metadata: types.ItemMetadata{Extra: map[string]any{"rank": 3}},
		}},
		TotalResults: 1,
	}))
	require.NoError(t, s.UpdateReport("report", types.ReportArtifact{
		Style: types.StyleSummary, Text: "# Report", ProcessingApproach: types.StrategyTraditional,
		GenerationMetadata: map[string]any{"sources_blocked": 2, "fallback": false, "problems": []string{"short"}},
	}))
	s.MarkAgentComplete("report")
	s.Finish(1500 * time.Millisecond)

	path := s.Path()
	require.NotEmpty(t, path)
	assert.Regexp(t, `master_state_abc123_\d{8}_\d{6}\.json$`, filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "summary")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), loaded)
	assert.InDelta(t, 1.5, loaded.TotalProcessingTime, 1e-9)
	assert.Equal(t, float64(2), loaded.ReportData.GenerationMetadata["sources_blocked"])
	assert.Equal(t, s.Report().GenerationMetadata, loaded.ReportData.GenerationMetadata)
}

func TestPersistEveryMutation(t *testing.T) {
	s := newStore(t)
	tick := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	s.MarkAgentComplete("a")
	s.AddError("b", "boom")
	require.NoError(t, s.UpdateReport("c", types.ReportArtifact{Text: "x"}))

	files, err := filepath.Glob(filepath.Join(s.dir, "master_state_abc123_*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 3)
	assert.Equal(t, FileName("abc123", tick), filepath.Base(s.Path()))
}

func TestNoPersistence(t *testing.T) {
	s, err := New("", "id", types.JobRequest{}, nil)
	require.NoError(t, err)
	s.AddError("x", "y")
	assert.Empty(t, s.Path())
}

func TestConcurrentWrites(t *testing.T) {
	s := newStore(t)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent := fmt.Sprintf("agent-%d", i%4)
			s.MarkAgentComplete(agent)
			_ = s.UpdateReport(agent, types.ReportArtifact{Text: agent})
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap.AgentsUsed, 4)
	assert.Len(t, snap.CompletedAgents, 4)
	assert.True(t, snap.Success)
}

func TestSnapshotIsolation(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.UpdateResearch("research", types.ResearchPipeline{SubQueries: []string{"a"}}))
	snap := s.Snapshot()
	snap.ResearchData.SubQueries[0] = "mutated"
	snap.AgentsUsed[0] = "mutated"
	assert.Equal(t, "a", s.Research().SubQueries[0])
	assert.Equal(t, "research", s.Snapshot().AgentsUsed[0])
}
