package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// builtinWriters are the six default writer styles used when
// CommentGenerator.Writers is left empty.
func builtinWriters() []WriterEntry {
	return []WriterEntry{
		{Name: "hype", Instructions: "React with high energy to exciting moments.", MinLength: 10, MaxLength: 240, Model: "gpt-5-nano"},
		{Name: "analyst", Instructions: "Offer a measured, informative observation.", MinLength: 10, MaxLength: 320, Model: "gpt-5-nano"},
		{Name: "comedian", Instructions: "Land a short, situational joke.", MinLength: 10, MaxLength: 200, Model: "gpt-5-nano"},
		{Name: "historian", Instructions: "Connect the moment to earlier context.", MinLength: 10, MaxLength: 320, Model: "gpt-5-nano"},
		{Name: "hypeman", Instructions: "Hype up the audience with short exclamations.", MinLength: 5, MaxLength: 120, Model: "gpt-5-nano"},
		{Name: "skeptic", Instructions: "Question or push back on what just happened.", MinLength: 10, MaxLength: 240, Model: "gpt-5-nano"},
	}
}

// applyDefaults fills zero-valued config fields with their production
// defaults.
func applyDefaults(cfg *Config) {
	if cfg.ContextBuffer.BufferSize == 0 {
		cfg.ContextBuffer.BufferSize = 10_000
	}
	if cfg.ContextBuffer.WindowDuration == 0 {
		cfg.ContextBuffer.WindowDuration = Seconds(300 * time.Second)
	}
	if cfg.ContextBuffer.SegmentMaxSize == 0 {
		cfg.ContextBuffer.SegmentMaxSize = 50
	}
	if cfg.ContextBuffer.RetentionTime == 0 {
		cfg.ContextBuffer.RetentionTime = Seconds(3600 * time.Second)
	}

	// UncommentedBuffer inherits the context buffer's schema when left
	// entirely unset.
	if cfg.UncommentedBuffer == (BufferConfig{}) {
		cfg.UncommentedBuffer = cfg.ContextBuffer
	}

	if cfg.ShortTurnAggregator.MinTurnDuration == 0 {
		cfg.ShortTurnAggregator.MinTurnDuration = Millis(1200 * time.Millisecond)
	}
	if cfg.ShortTurnAggregator.MaxDelay == 0 {
		cfg.ShortTurnAggregator.MaxDelay = Millis(800 * time.Millisecond)
	}
	if cfg.ShortTurnAggregator.MaxGap == 0 {
		cfg.ShortTurnAggregator.MaxGap = Millis(400 * time.Millisecond)
	}
	if cfg.ShortTurnAggregator.MaxWords == 0 {
		cfg.ShortTurnAggregator.MaxWords = 50
	}
	if cfg.ShortTurnAggregator.MaxTotalDuration == 0 {
		cfg.ShortTurnAggregator.MaxTotalDuration = Millis(12_000 * time.Millisecond)
	}

	if cfg.EventDetector.DetectionSensitivity == 0 {
		cfg.EventDetector.DetectionSensitivity = 0.70
	}
	if cfg.EventDetector.EmotionThreshold == 0 {
		cfg.EventDetector.EmotionThreshold = 0.75
	}
	if cfg.EventDetector.TopicTransitionThreshold == 0 {
		cfg.EventDetector.TopicTransitionThreshold = 0.30
	}
	if cfg.EventDetector.KeypointDensityThreshold == 0 {
		cfg.EventDetector.KeypointDensityThreshold = 0.50
	}
	if cfg.EventDetector.ModelProvider == "" {
		cfg.EventDetector.ModelProvider = ModelProviderOpenAI
	}
	if cfg.EventDetector.Model == "" {
		cfg.EventDetector.Model = "gpt-5-nano"
	}

	if cfg.DecisionEngine.BaseThreshold == 0 {
		cfg.DecisionEngine.BaseThreshold = 0.65
	}
	if cfg.DecisionEngine.MinInterval == 0 {
		cfg.DecisionEngine.MinInterval = Seconds(20 * time.Second)
	}
	if cfg.DecisionEngine.MaxInterval == 0 {
		cfg.DecisionEngine.MaxInterval = Seconds(90 * time.Second)
	}
	if cfg.DecisionEngine.EmotionWeight == 0 {
		cfg.DecisionEngine.EmotionWeight = 0.20
	}
	if cfg.DecisionEngine.TopicWeight == 0 {
		cfg.DecisionEngine.TopicWeight = 0.40
	}
	if cfg.DecisionEngine.TimingWeight == 0 {
		cfg.DecisionEngine.TimingWeight = 0.15
	}
	if cfg.DecisionEngine.ImportanceWeight == 0 {
		cfg.DecisionEngine.ImportanceWeight = 0.60
	}
	if cfg.DecisionEngine.KeywordWeight == 0 {
		cfg.DecisionEngine.KeywordWeight = 0.30
	}
	if cfg.DecisionEngine.FrequencySuppression == 0 {
		cfg.DecisionEngine.FrequencySuppression = 0.80
	}
	if cfg.DecisionEngine.TimeDecayRate == 0 {
		cfg.DecisionEngine.TimeDecayRate = 0.95
	}

	if len(cfg.CommentGenerator.Writers) == 0 {
		cfg.CommentGenerator.Writers = builtinWriters()
	}
	if cfg.CommentGenerator.SelectorModel == "" {
		cfg.CommentGenerator.SelectorModel = "gpt-5-mini"
	}
	if cfg.CommentGenerator.ModelProvider == "" {
		cfg.CommentGenerator.ModelProvider = ModelProviderOpenAI
	}
}

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found — fail-fast, nothing
// is silently defaulted past this point.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateBuffer("context_buffer", cfg.ContextBuffer, &errs)
	validateBuffer("uncommented_buffer", cfg.UncommentedBuffer, &errs)

	agg := cfg.ShortTurnAggregator
	validateNonNegativeDur("short_turn_aggregator.min_turn_duration_ms", agg.MinTurnDuration.Dur(), &errs)
	validateNonNegativeDur("short_turn_aggregator.aggregation_max_delay_ms", agg.MaxDelay.Dur(), &errs)
	validateNonNegativeDur("short_turn_aggregator.aggregation_max_gap_ms", agg.MaxGap.Dur(), &errs)
	if agg.MaxWords < 0 {
		errs = append(errs, fmt.Errorf("short_turn_aggregator.aggregation_max_words must be >= 0"))
	}
	validateNonNegativeDur("short_turn_aggregator.aggregation_max_total_duration_ms", agg.MaxTotalDuration.Dur(), &errs)

	ed := cfg.EventDetector
	validateUnit("event_detector.detection_sensitivity", ed.DetectionSensitivity, &errs)
	validateUnit("event_detector.emotion_threshold", ed.EmotionThreshold, &errs)
	validateUnit("event_detector.topic_transition_threshold", ed.TopicTransitionThreshold, &errs)
	validateUnit("event_detector.keypoint_density_threshold", ed.KeypointDensityThreshold, &errs)
	if ed.ModelProvider != "" && !ed.ModelProvider.IsValid() {
		errs = append(errs, fmt.Errorf("event_detector.model_provider %q is invalid; valid values: openai, google", ed.ModelProvider))
	}

	de := cfg.DecisionEngine
	validateUnit("decision_engine.base_threshold", de.BaseThreshold, &errs)
	validateNonNegativeDur("decision_engine.min_interval", de.MinInterval.Dur(), &errs)
	validateNonNegativeDur("decision_engine.max_interval", de.MaxInterval.Dur(), &errs)
	if de.MaxInterval.Dur() < de.MinInterval.Dur() {
		errs = append(errs, fmt.Errorf("decision_engine.max_interval must be >= min_interval"))
	}
	validateUnit("decision_engine.emotion_weight", de.EmotionWeight, &errs)
	validateUnit("decision_engine.topic_weight", de.TopicWeight, &errs)
	validateUnit("decision_engine.timing_weight", de.TimingWeight, &errs)
	validateUnit("decision_engine.importance_weight", de.ImportanceWeight, &errs)
	validateUnit("decision_engine.keyword_weight", de.KeywordWeight, &errs)
	validateUnit("decision_engine.frequency_suppression", de.FrequencySuppression, &errs)
	validateUnit("decision_engine.time_decay_rate", de.TimeDecayRate, &errs)

	cg := cfg.CommentGenerator
	if cg.ModelProvider != "" && !cg.ModelProvider.IsValid() {
		errs = append(errs, fmt.Errorf("comment_generator.model_provider %q is invalid; valid values: openai, google", cg.ModelProvider))
	}
	seen := make(map[string]int, len(cg.Writers))
	for i, w := range cg.Writers {
		prefix := fmt.Sprintf("comment_generator.writers[%d]", i)
		if w.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := seen[w.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of writers[%d]", prefix, w.Name, prev))
		} else {
			seen[w.Name] = i
		}
		if w.MaxLength > 0 && w.MinLength > w.MaxLength {
			errs = append(errs, fmt.Errorf("%s.min_length must be <= max_length", prefix))
		}
	}

	return errors.Join(errs...)
}

func validateBuffer(prefix string, b BufferConfig, errs *[]error) {
	if b.BufferSize < 0 {
		*errs = append(*errs, fmt.Errorf("%s.buffer_size must be >= 0", prefix))
	}
	validateNonNegativeDur(prefix+".window_duration", b.WindowDuration.Dur(), errs)
	if b.SegmentMaxSize < 0 {
		*errs = append(*errs, fmt.Errorf("%s.segment_max_size must be >= 0", prefix))
	}
	validateNonNegativeDur(prefix+".retention_time", b.RetentionTime.Dur(), errs)
}

func validateNonNegativeDur(field string, d time.Duration, errs *[]error) {
	if d < 0 {
		*errs = append(*errs, fmt.Errorf("%s must be >= 0", field))
	}
}

func validateUnit(field string, v float64, errs *[]error) {
	if v < 0 || v > 1 {
		*errs = append(*errs, fmt.Errorf("%s %.3f is out of range [0,1]", field, v))
	}
}
