package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/commentator/internal/config"
)

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.EventDetector.ModelProvider != config.ModelProviderOpenAI {
		t.Errorf("event_detector.model_provider default = %q, want %q", cfg.EventDetector.ModelProvider, config.ModelProviderOpenAI)
	}
	if cfg.EventDetector.Model != "gpt-5-nano" {
		t.Errorf("event_detector.model default = %q, want gpt-5-nano", cfg.EventDetector.Model)
	}
	if len(cfg.CommentGenerator.Writers) == 0 {
		t.Fatal("comment_generator.writers should default to the six builtin writers")
	}
	if cfg.CommentGenerator.SelectorModel != "gpt-5-mini" {
		t.Errorf("comment_generator.selector_model default = %q, want gpt-5-mini", cfg.CommentGenerator.SelectorModel)
	}
}

func TestLoadFromReader_UncommentedBufferInheritsContextBuffer(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
context_buffer:
  buffer_size: 5000
  window_duration: 120
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UncommentedBuffer != cfg.ContextBuffer {
		t.Errorf("uncommented_buffer = %+v, want it to inherit context_buffer %+v", cfg.UncommentedBuffer, cfg.ContextBuffer)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("unknown_top_level_field: true\n"))
	if err == nil {
		t.Fatal("expected an error for an unrecognised top-level field")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoad_ReadsFromDisk(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogLevelDebug {
		t.Errorf("server.log_level = %q, want debug", cfg.Server.LogLevel)
	}
}

func TestValidate_RejectsInvalidLogLevel(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: verbose\n"))
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("expected a log_level validation error, got: %v", err)
	}
}

func TestValidate_RejectsInvalidModelProvider(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("event_detector:\n  model_provider: azure\n"))
	if err == nil || !strings.Contains(err.Error(), "model_provider") {
		t.Fatalf("expected a model_provider validation error, got: %v", err)
	}
}

func TestValidate_RejectsOutOfRangeUnitValue(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("event_detector:\n  emotion_threshold: 1.5\n"))
	if err == nil || !strings.Contains(err.Error(), "emotion_threshold") {
		t.Fatalf("expected an emotion_threshold range error, got: %v", err)
	}
}

func TestValidate_RejectsMaxIntervalBelowMinInterval(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
decision_engine:
  min_interval: 90
  max_interval: 20
`))
	if err == nil || !strings.Contains(err.Error(), "max_interval") {
		t.Fatalf("expected a max_interval/min_interval ordering error, got: %v", err)
	}
}

func TestValidate_RejectsDuplicateWriterNames(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
comment_generator:
  writers:
    - name: hype
      instructions: a
    - name: hype
      instructions: b
`))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected a duplicate writer name error, got: %v", err)
	}
}

func TestValidate_RejectsWriterMinLengthAboveMax(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
comment_generator:
  writers:
    - name: hype
      min_length: 100
      max_length: 10
`))
	if err == nil || !strings.Contains(err.Error(), "min_length") {
		t.Fatalf("expected a min_length/max_length ordering error, got: %v", err)
	}
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: verbose
event_detector:
  model_provider: azure
`))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") || !strings.Contains(errStr, "model_provider") {
		t.Errorf("expected both log_level and model_provider errors joined, got: %v", errStr)
	}
}

func TestValidate_WellFormedConfigIsValid(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  listen_addr: ":9090"
  log_level: info
event_detector:
  model_provider: google
  model: gemini-2.5-flash
comment_generator:
  model_provider: openai
  writers:
    - name: hype
      min_length: 10
      max_length: 200
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
