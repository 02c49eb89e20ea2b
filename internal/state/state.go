// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state holds the shared MasterState document for one orchestrated
// run. Every write goes through a Store, which serializes mutations and
// persists a timestamped JSON copy after each one.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/internal/metrics"
	"github.com/pdiddy/research-agents/pkg/types"
)

// Slot names used in error records.
const (
	SlotResearch = "research_data"
	SlotYouTube  = "youtube_data"
	SlotWeather  = "weather_data"
	SlotReport   = "report_data"
)

const fileTimeFmt = "20060102_150405"

// Store is the single writer to a MasterState. Safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	state      types.MasterState
	dir        string
	slotFailed bool
	lastPath   string
	logger     *zap.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New returns a Store for job. An empty dir disables persistence.
func New(dir, orchestratorID string, job types.JobRequest, logger *zap.Logger) (*Store, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state dir: %w", err)
		}
	}
	s := &Store{dir: dir, logger: logging.OrNop(logger), now: stamp}
	s.state = types.MasterState{
		JobRequest:      job,
		OrchestratorID:  orchestratorID,
		Timestamp:       s.now(),
		AgentsUsed:      []string{},
		CompletedAgents: []string{},
		Errors:          []types.AgentError{},
		Success:         true,
	}
	return s, nil
}

// stamp returns the current UTC time without a monotonic reading, so
// persisted documents compare equal after a round trip.
func stamp() time.Time {
	return time.Now().UTC().Round(0)
}

// UpdateResearch stores a ResearchPipeline given as a typed value, a map,
// or a JSON string. Coercion failures clear the slot, record an error, and
// return a Validation error; the run continues.
func (s *Store) UpdateResearch(agent string, v any) error {
	p, err := coerce[types.ResearchPipeline](v)
	return s.update(agent, SlotResearch, err, func(st *types.MasterState) { st.ResearchData = p })
}

// UpdateYouTube stores a YouTubeCapture.
func (s *Store) UpdateYouTube(agent string, v any) error {
	c, err := coerce[types.YouTubeCapture](v)
	return s.update(agent, SlotYouTube, err, func(st *types.MasterState) { st.YouTubeData = c })
}

// UpdateWeather stores a WeatherSnapshot.
func (s *Store) UpdateWeather(agent string, v any) error {
	w, err := coerce[types.WeatherSnapshot](v)
	return s.update(agent, SlotWeather, err, func(st *types.MasterState) { st.WeatherData = w })
}

// UpdateReport stores a ReportArtifact.
func (s *Store) UpdateReport(agent string, v any) error {
	r, err := coerce[types.ReportArtifact](v)
	return s.update(agent, SlotReport, err, func(st *types.MasterState) { st.ReportData = r })
}

func (s *Store) update(agent, slot string, cerr error, set func(*types.MasterState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.useAgent(agent)
	if cerr != nil {
		// set stores the nil result, clearing the slot.
		set(&s.state)
		s.slotFailed = true
		s.addError(agent, fmt.Sprintf("%s: %v", slot, cerr))
		s.persist()
		return fault.New(fault.Validation, "state update "+slot, cerr)
	}
	set(&s.state)
	s.persist()
	return nil
}

// coerce converts v to *T. Maps and JSON text are decoded strictly so
// unknown fields fail. Typed values are copied through their JSON form so
// the slot holds exactly what the document holds (numbers in metadata maps
// become float64, empty omitempty slices become nil).
func coerce[T any](v any) (*T, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("nil value")
	case *T:
		if x == nil {
			return nil, fmt.Errorf("nil value")
		}
		return viaJSON[T](x)
	case T:
		return viaJSON[T](&x)
	case string:
		return decode[T]([]byte(x))
	case []byte:
		return decode[T](x)
	case json.RawMessage:
		return decode[T](x)
	case map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("encoding map: %w", err)
		}
		return decode[T](data)
	default:
		var zero T
		return nil, fmt.Errorf("cannot coerce %T to %T", v, zero)
	}
}

func viaJSON[T any](x *T) (*T, error) {
	data, err := json.Marshal(x)
	if err != nil {
		return nil, fmt.Errorf("encoding: %w", err)
	}
	return decode[T](data)
}

func decode[T any](data []byte) (*T, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var out T
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	return &out, nil
}

// Research returns the research slot or nil.
func (s *Store) Research() *types.ResearchPipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ResearchData
}

// YouTube returns the YouTube slot or nil.
func (s *Store) YouTube() *types.YouTubeCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.YouTubeData
}

// Weather returns the weather slot or nil.
func (s *Store) Weather() *types.WeatherSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.WeatherData
}

// Report returns the report slot or nil.
func (s *Store) Report() *types.ReportArtifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ReportData
}

// AddError records msg against agent and marks the run unsuccessful.
func (s *Store) AddError(agent, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useAgent(agent)
	s.addError(agent, msg)
	s.persist()
}

func (s *Store) addError(agent, msg string) {
	s.state.Errors = append(s.state.Errors, types.AgentError{Agent: agent, Message: msg, Timestamp: s.now()})
	s.state.Success = false
}

func (s *Store) useAgent(agent string) {
	if agent != "" && !slices.Contains(s.state.AgentsUsed, agent) {
		s.state.AgentsUsed = append(s.state.AgentsUsed, agent)
	}
}

// MarkAgentComplete records that agent finished.
func (s *Store) MarkAgentComplete(agent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useAgent(agent)
	if !slices.Contains(s.state.CompletedAgents, agent) {
		s.state.CompletedAgents = append(s.state.CompletedAgents, agent)
	}
	s.persist()
}

// IsComplete reports whether agent has finished in this run.
func (s *Store) IsComplete(agent string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.state.CompletedAgents, agent)
}

// Finish records the total processing time and persists.
func (s *Store) Finish(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TotalProcessingTime = elapsed.Seconds()
	s.persist()
}

// Success reports whether the run has no errors and no failed coercions.
func (s *Store) Success() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.success()
}

func (s *Store) success() bool {
	return len(s.state.Errors) == 0 && !s.slotFailed
}

// Snapshot returns a copy of the current state. Slot records and their
// slices are copied; item metadata maps are shared.
func (s *Store) Snapshot() types.MasterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) snapshot() types.MasterState {
	st := s.state
	st.Success = s.success()
	st.AgentsUsed = slices.Clone(st.AgentsUsed)
	st.CompletedAgents = slices.Clone(st.CompletedAgents)
	st.Errors = slices.Clone(st.Errors)
	if st.ResearchData != nil {
		p := *st.ResearchData
		p.Items = slices.Clone(p.Items)
		p.SubQueries = slices.Clone(p.SubQueries)
		st.ResearchData = &p
	}
	if st.YouTubeData != nil {
		c := *st.YouTubeData
		st.YouTubeData = &c
	}
	if st.WeatherData != nil {
		w := *st.WeatherData
		w.Forecast = slices.Clone(w.Forecast)
		st.WeatherData = &w
	}
	if st.ReportData != nil {
		r := *st.ReportData
		st.ReportData = &r
	}
	return st
}

// Path returns the last persisted document path, or "".
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPath
}

// Summary is persisted alongside the state for quick inspection.
type Summary struct {
	AgentsUsed      int  `json:"agents_used"`
	CompletedAgents int  `json:"completed_agents"`
	Errors          int  `json:"errors"`
	HasResearch     bool `json:"has_research"`
	HasYouTube      bool `json:"has_youtube"`
	HasWeather      bool `json:"has_weather"`
	HasReport       bool `json:"has_report"`
}

type document struct {
	types.MasterState
	Summary Summary `json:"summary"`
}

// persist writes the state document. Write failures are logged, not
// returned: a full disk must not abort the run. Callers hold s.mu.
func (s *Store) persist() {
	if s.dir == "" {
		return
	}
	st := s.snapshot()
	doc := document{
		MasterState: st,
		Summary: Summary{
			AgentsUsed:      len(st.AgentsUsed),
			CompletedAgents: len(st.CompletedAgents),
			Errors:          len(st.Errors),
			HasResearch:     st.ResearchData != nil,
			HasYouTube:      st.YouTubeData != nil,
			HasWeather:      st.WeatherData != nil,
			HasReport:       st.ReportData != nil,
		},
	}
	path := filepath.Join(s.dir, FileName(st.OrchestratorID, s.now()))
	err := writeJSON(path, doc)
	metrics.StateWrites.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		s.logger.Warn("persisting state", zap.String("path", path), zap.Error(err))
		return
	}
	s.lastPath = path
}

// FileName returns the state document name for id at t.
func FileName(id string, t time.Time) string {
	return fmt.Sprintf("master_state_%s_%s.json", id, t.Format(fileTimeFmt))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".master_state_*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing state: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a persisted state document.
func Load(path string) (types.MasterState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.MasterState{}, fmt.Errorf("reading state: %w", err)
	}
	var st types.MasterState
	if err := json.Unmarshal(data, &st); err != nil {
		return types.MasterState{}, fmt.Errorf("parsing state: %w", err)
	}
	return st, nil
}
