// Package config provides the configuration schema, loader, and LLM provider
// registry for the commentary orchestrator.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the orchestrator. It is
// typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server              ServerConfig           `yaml:"server"`
	ContextBuffer       BufferConfig           `yaml:"context_buffer"`
	UncommentedBuffer   BufferConfig           `yaml:"uncommented_buffer"`
	ShortTurnAggregator AggregatorConfig       `yaml:"short_turn_aggregator"`
	EventDetector       EventDetectorConfig    `yaml:"event_detector"`
	DecisionEngine      DecisionEngineConfig   `yaml:"decision_engine"`
	CommentGenerator    CommentGeneratorConfig `yaml:"comment_generator"`
}

// ServerConfig holds ambient logging and (optional) metrics-endpoint
// settings; the orchestrator itself is an embedded facade, not a network
// service, but a host process typically exposes a Prometheus scrape
// endpoint and wants its log level driven by the same config file.
type ServerConfig struct {
	// ListenAddr is the TCP address the optional metrics endpoint listens
	// on (e.g., ":9090"). Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated slog level name.
type LogLevel string

// Recognised LogLevel values.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised level names.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// Seconds decodes a bare YAML number as a count of seconds into a
// time.Duration, so the YAML surface stays in plain units (seconds,
// milliseconds) while every in-process value stays a time.Duration —
// there is never a raw numeric duration field ambiguous between the two.
type Seconds time.Duration

// UnmarshalYAML decodes a plain numeric seconds value.
func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	var v float64
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("seconds: %w", err)
	}
	*s = Seconds(time.Duration(v * float64(time.Second)))
	return nil
}

// Dur returns s as a time.Duration.
func (s Seconds) Dur() time.Duration { return time.Duration(s) }

// Millis decodes a bare YAML number as a count of milliseconds into a
// time.Duration; see [Seconds] for the rationale.
type Millis time.Duration

// UnmarshalYAML decodes a plain numeric milliseconds value.
func (m *Millis) UnmarshalYAML(node *yaml.Node) error {
	var v float64
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("millis: %w", err)
	}
	*m = Millis(time.Duration(v * float64(time.Millisecond)))
	return nil
}

// Dur returns m as a time.Duration.
func (m Millis) Dur() time.Duration { return time.Duration(m) }

// BufferConfig configures one of the two text buffers (context or
// uncommented). Sizes are in words, durations in seconds.
type BufferConfig struct {
	// BufferSize is the buffer's nominal size in words. Informational only —
	// internal/buffer evicts by retention time and never enforces a word cap.
	BufferSize int `yaml:"buffer_size"`

	// WindowDuration is the default GetWindow size.
	WindowDuration Seconds `yaml:"window_duration"`

	// SegmentMaxSize caps a single appended segment at this many words.
	// Informational only (see BufferSize note).
	SegmentMaxSize int `yaml:"segment_max_size"`

	// RetentionTime is the maximum age of a segment before eviction.
	RetentionTime Seconds `yaml:"retention_time"`
}

// AggregatorConfig configures the short-turn aggregator. All four durations
// are milliseconds; MaxWords is a plain count.
type AggregatorConfig struct {
	MinTurnDuration  Millis `yaml:"min_turn_duration_ms"`
	MaxDelay         Millis `yaml:"aggregation_max_delay_ms"`
	MaxGap           Millis `yaml:"aggregation_max_gap_ms"`
	MaxWords         int    `yaml:"aggregation_max_words"`
	MaxTotalDuration Millis `yaml:"aggregation_max_total_duration_ms"`
}

// ModelProvider names the backend an LLM-driven stage resolves against via
// [Registry]. "google" resolves to the any-llm-go "gemini" backend (see
// factories.go).
type ModelProvider string

// Recognised ModelProvider values.
const (
	ModelProviderOpenAI ModelProvider = "openai"
	ModelProviderGoogle ModelProvider = "google"
)

// IsValid reports whether p is a recognised provider name.
func (p ModelProvider) IsValid() bool {
	switch p {
	case ModelProviderOpenAI, ModelProviderGoogle:
		return true
	default:
		return false
	}
}

// EventDetectorConfig configures internal/detector and the LLM backend it
// runs against.
type EventDetectorConfig struct {
	DetectionSensitivity     float64 `yaml:"detection_sensitivity"`
	EmotionThreshold         float64 `yaml:"emotion_threshold"`
	TopicTransitionThreshold float64 `yaml:"topic_transition_threshold"`
	KeypointDensityThreshold float64 `yaml:"keypoint_density_threshold"`

	ModelProvider ModelProvider `yaml:"model_provider"`
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
}

// DecisionEngineConfig configures internal/decision's scoring weights and
// thresholds.
type DecisionEngineConfig struct {
	BaseThreshold float64 `yaml:"base_threshold"`
	MinInterval   Seconds `yaml:"min_interval"`
	MaxInterval   Seconds `yaml:"max_interval"`

	EmotionWeight        float64 `yaml:"emotion_weight"`
	TopicWeight          float64 `yaml:"topic_weight"`
	TimingWeight         float64 `yaml:"timing_weight"`
	ImportanceWeight     float64 `yaml:"importance_weight"`
	KeywordWeight        float64 `yaml:"keyword_weight"`
	FrequencySuppression float64 `yaml:"frequency_suppression"`
	TimeDecayRate        float64 `yaml:"time_decay_rate"`
}

// WriterEntry is one configured comment style, mirrored by pkg/writer.WriterConfig.
type WriterEntry struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
	MinLength    int    `yaml:"min_length"`
	MaxLength    int    `yaml:"max_length"`
	Model        string `yaml:"model"`
}

// CommentGeneratorConfig configures pkg/writer's writer roster, selector,
// and the shared LLM backend they resolve against.
type CommentGeneratorConfig struct {
	ModelProvider ModelProvider `yaml:"model_provider"`
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`

	Writers              []WriterEntry `yaml:"writers"`
	SelectorModel        string        `yaml:"selector_model"`
	SelectorInstructions string        `yaml:"selector_instructions"`
}
