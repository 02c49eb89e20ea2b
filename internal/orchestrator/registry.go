// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/state"
	"github.com/pdiddy/research-agents/pkg/types"
)

// Runner collects one capability's data for job.
type Runner func(ctx context.Context, job types.JobRequest) (any, error)

// Saver writes a runner's result into the state store.
type Saver func(st *state.Store, agent string, v any) error

// Capability is one registered collector.
type Capability struct {
	Name        string
	Agent       string
	Description string
	Run         Runner
	Save        Saver
	// Key identifies equivalent inputs so results can be reused.
	Key func(job types.JobRequest) string
}

// Registry maps capability names to collectors.
type Registry struct {
	caps map[string]Capability
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: map[string]Capability{}}
}

// Register adds or replaces c.
func (r *Registry) Register(c Capability) {
	if c.Agent == "" {
		c.Agent = c.Name + "_agent"
	}
	if c.Key == nil {
		c.Key = func(job types.JobRequest) string { return job.Query }
	}
	r.caps[c.Name] = c
}

// Get returns the capability named name.
func (r *Registry) Get(name string) (Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

// Names returns the registered capability names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for n := range r.caps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe lists each capability with its description.
func (r *Registry) Describe() string {
	var s string
	for _, n := range r.Names() {
		s += fmt.Sprintf("- %s: %s\n", n, r.caps[n].Description)
	}
	return s
}

// Researcher runs the research pipeline.
type Researcher interface {
	Run(ctx context.Context, query string, subQueries []string) (*types.ResearchPipeline, error)
}

// VideoCapturer captures a YouTube video.
type VideoCapturer interface {
	Capture(ctx context.Context, url string) (*types.YouTubeCapture, error)
}

// WeatherReporter fetches a weather snapshot.
type WeatherReporter interface {
	Snapshot(ctx context.Context, location string) (*types.WeatherSnapshot, error)
}

// ResearchCapability wires a Researcher. subQueries, when non-empty, are
// used verbatim.
func ResearchCapability(r Researcher, subQueries []string) Capability {
	return Capability{
		Name:        CapResearch,
		Description: "web research: expands the query, searches Tavily and Serper, scrapes and cleans sources",
		Run: func(ctx context.Context, job types.JobRequest) (any, error) {
			return r.Run(ctx, researchQuery(job), slices.Clone(subQueries))
		},
		Save: func(st *state.Store, agent string, v any) error { return st.UpdateResearch(agent, v) },
		Key:  func(job types.JobRequest) string { return researchQuery(job) },
	}
}

// LoadedResearch serves a previously saved pipeline instead of searching.
func LoadedResearch(p *types.ResearchPipeline) Capability {
	return Capability{
		Name:        CapResearch,
		Description: "research pipeline loaded from a file",
		Run: func(context.Context, types.JobRequest) (any, error) {
			if p == nil {
				return nil, fault.Errorf(fault.Validation, "research", "no pipeline loaded")
			}
			return p, nil
		},
		Save: func(st *state.Store, agent string, v any) error { return st.UpdateResearch(agent, v) },
	}
}

// YouTubeCapability wires a VideoCapturer.
func YouTubeCapability(c VideoCapturer) Capability {
	return Capability{
		Name:        CapYouTube,
		Description: "YouTube video metadata and transcript; requires a YouTube URL in the request",
		Run: func(ctx context.Context, job types.JobRequest) (any, error) {
			return c.Capture(ctx, job.YouTubeURL)
		},
		Save: func(st *state.Store, agent string, v any) error { return st.UpdateYouTube(agent, v) },
		Key:  func(job types.JobRequest) string { return job.YouTubeURL },
	}
}

// WeatherCapability wires a WeatherReporter.
func WeatherCapability(c WeatherReporter) Capability {
	return Capability{
		Name:        CapWeather,
		Description: "current weather and a seven-day forecast; requires a location",
		Run: func(ctx context.Context, job types.JobRequest) (any, error) {
			return c.Snapshot(ctx, job.Location)
		},
		Save: func(st *state.Store, agent string, v any) error { return st.UpdateWeather(agent, v) },
		Key:  func(job types.JobRequest) string { return job.Location },
	}
}
