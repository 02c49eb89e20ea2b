// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// JobType names the capability set a request asks for.
type JobType string

const (
	JobResearch JobType = "research"
	JobYouTube  JobType = "youtube"
	JobWeather  JobType = "weather"
	JobMulti    JobType = "multi"
)

// JobRequest is the parsed user request.
type JobRequest struct {
	JobType     JobType     `json:"job_type" yaml:"job_type"`
	Query       string      `json:"query" yaml:"query"`
	ReportStyle ReportStyle `json:"report_style" yaml:"report_style"`
	YouTubeURL  string      `json:"youtube_url,omitempty" yaml:"youtube_url,omitempty"`
	Location    string      `json:"location,omitempty" yaml:"location,omitempty"`

	// Capabilities lists the collectors to run in phase 1.
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
}

// AgentError is one error recorded against an agent.
type AgentError struct {
	Agent     string    `json:"agent" yaml:"agent"`
	Message   string    `json:"message" yaml:"message"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// MasterState is the shared document for one orchestrated run.
type MasterState struct {
	JobRequest     JobRequest `json:"job_request" yaml:"job_request"`
	OrchestratorID string     `json:"orchestrator_id" yaml:"orchestrator_id"`
	Timestamp      time.Time  `json:"timestamp" yaml:"timestamp"`

	ResearchData *ResearchPipeline `json:"research_data" yaml:"research_data"`
	YouTubeData  *YouTubeCapture   `json:"youtube_data" yaml:"youtube_data"`
	WeatherData  *WeatherSnapshot  `json:"weather_data" yaml:"weather_data"`
	ReportData   *ReportArtifact   `json:"report_data" yaml:"report_data"`

	AgentsUsed      []string     `json:"agents_used" yaml:"agents_used"`
	CompletedAgents []string     `json:"completed_agents" yaml:"completed_agents"`
	Success         bool         `json:"success" yaml:"success"`
	Errors          []AgentError `json:"errors" yaml:"errors"`

	TotalProcessingTime float64 `json:"total_processing_time" yaml:"total_processing_time"`
}

// AgentResponse is the typed result every collector returns.
type AgentResponse struct {
	AgentName      string  `json:"agent_name" yaml:"agent_name"`
	Success        bool    `json:"success" yaml:"success"`
	Data           any     `json:"data,omitempty" yaml:"data,omitempty"`
	Error          string  `json:"error,omitempty" yaml:"error,omitempty"`
	ProcessingTime float64 `json:"processing_time" yaml:"processing_time"`
}

// UpdateType classifies a StreamingUpdate.
type UpdateType string

const (
	UpdateStatus        UpdateType = "status"
	UpdatePartialResult UpdateType = "partial_result"
	UpdateFinalResult   UpdateType = "final_result"
	UpdateError         UpdateType = "error"
)

// StreamingUpdate is one event emitted by an orchestrated run.
type StreamingUpdate struct {
	Type      UpdateType `json:"type" yaml:"type"`
	AgentName string     `json:"agent_name" yaml:"agent_name"`
	Message   string     `json:"message" yaml:"message"`
	Data      any        `json:"data,omitempty" yaml:"data,omitempty"`
	Timestamp time.Time  `json:"timestamp" yaml:"timestamp"`
}
