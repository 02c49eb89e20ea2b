// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// YouTubeMetadata describes a captured video.
type YouTubeMetadata struct {
	Title           string             `json:"title" yaml:"title"`
	Channel         string             `json:"channel" yaml:"channel"`
	ChannelID       string             `json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
	DurationSeconds int                `json:"duration_seconds" yaml:"duration_seconds"`
	Language        string             `json:"language,omitempty" yaml:"language,omitempty"`
	LanguageCode    string             `json:"language_code,omitempty" yaml:"language_code,omitempty"`
	IsGenerated     bool               `json:"is_generated" yaml:"is_generated"`
	ViewCount       int64              `json:"view_count" yaml:"view_count"`
	LikeCount       int64              `json:"like_count" yaml:"like_count"`
	CommentCount    int64              `json:"comment_count" yaml:"comment_count"`
	PublishedAt     string             `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	Description     string             `json:"description,omitempty" yaml:"description,omitempty"`
	Tags            []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
	Timing          map[string]float64 `json:"timing,omitempty" yaml:"timing,omitempty"`
}

// YouTubeCapture holds a video's transcript and metadata.
type YouTubeCapture struct {
	URL        string          `json:"url" yaml:"url"`
	VideoID    string          `json:"video_id" yaml:"video_id"`
	Transcript string          `json:"transcript" yaml:"transcript"`
	Metadata   YouTubeMetadata `json:"metadata" yaml:"metadata"`
}

// WeatherReading is one observation or forecast slot.
type WeatherReading struct {
	Time        time.Time `json:"time" yaml:"time"`
	Temperature float64   `json:"temperature" yaml:"temperature"`
	FeelsLike   float64   `json:"feels_like" yaml:"feels_like"`
	TempMin     float64   `json:"temp_min" yaml:"temp_min"`
	TempMax     float64   `json:"temp_max" yaml:"temp_max"`
	Humidity    int       `json:"humidity" yaml:"humidity"`
	WindSpeed   float64   `json:"wind_speed" yaml:"wind_speed"`
	Description string    `json:"description" yaml:"description"`
}

// WeatherSnapshot is the weather collector's output.
type WeatherSnapshot struct {
	Location string           `json:"location" yaml:"location"`
	Units    string           `json:"units" yaml:"units"`
	Current  WeatherReading   `json:"current" yaml:"current"`
	Forecast []WeatherReading `json:"forecast" yaml:"forecast"`
}
