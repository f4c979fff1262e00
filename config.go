package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigDir = "config"

//go:embed config/settings.yaml
var defaultSettings string

// AgentSettings tunes one generation stage. Every stage declares its own
// maximum duration.
type AgentSettings struct {
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

func (a AgentSettings) timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RetrySettings is the YAML shape behind a RetryPolicy.
type RetrySettings struct {
	MaxRetries  int     `yaml:"max_retries"`
	BaseDelayMS int     `yaml:"base_delay_ms"`
	MaxDelayMS  int     `yaml:"max_delay_ms"`
	Multiplier  float64 `yaml:"multiplier"`
}

func (r RetrySettings) policy(retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxRetries: r.MaxRetries,
		BaseDelay:  time.Duration(r.BaseDelayMS) * time.Millisecond,
		MaxDelay:   time.Duration(r.MaxDelayMS) * time.Millisecond,
		Multiplier: r.Multiplier,
		Retryable:  retryable,
	}
}

// Settings is the YAML configuration structure.
type Settings struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	DefaultLanguage       string   `yaml:"default_language"`
	SupportedLanguages    []string `yaml:"supported_languages"`
	YTDLPBinary           string   `yaml:"ytdlp_binary"`
	ExtractTimeoutSeconds int      `yaml:"extract_timeout_seconds"`
	AdmissionTTLMinutes   int      `yaml:"admission_ttl_minutes"`
	ContentMaxTokens      int      `yaml:"content_max_tokens"`
	InvalidCategories     []string `yaml:"invalid_categories"`

	ToolRetry  RetrySettings `yaml:"tool_retry"`
	StageRetry RetrySettings `yaml:"stage_retry"`

	Agents struct {
		Validator   AgentSettings `yaml:"validator"`
		Categorizer AgentSettings `yaml:"categorizer"`
		Describer   AgentSettings `yaml:"describer"`
		Chapters    AgentSettings `yaml:"chapters"`
		Lessons     AgentSettings `yaml:"lessons"`
		Concepts    AgentSettings `yaml:"concepts"`
		Exercises   AgentSettings `yaml:"exercises"`
		Assessment  AgentSettings `yaml:"assessment"`
	} `yaml:"agents"`
}

func (s *Settings) supportsLanguage(lang string) bool {
	return slices.Contains(s.SupportedLanguages, lang)
}

func (s *Settings) admissionTTL() time.Duration {
	if s.AdmissionTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(s.AdmissionTTLMinutes) * time.Minute
}

func (s *Settings) extractTimeout() time.Duration {
	if s.ExtractTimeoutSeconds <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(s.ExtractTimeoutSeconds) * time.Second
}

// loadSettings reads settings from path, falling back to the embedded
// defaults when the file does not exist.
func loadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return parseSettings([]byte(defaultSettings))
		}
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}
	return parseSettings(data)
}

func parseSettings(data []byte) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	applySettingsDefaults(&settings)
	return &settings, nil
}

func applySettingsDefaults(s *Settings) {
	if s.Server.Addr == "" {
		s.Server.Addr = ":8080"
	}
	if s.DefaultLanguage == "" {
		s.DefaultLanguage = "es"
	}
	if len(s.SupportedLanguages) == 0 {
		s.SupportedLanguages = []string{"es", "en"}
	}
	if s.YTDLPBinary == "" {
		s.YTDLPBinary = "yt-dlp"
	}
	if s.ContentMaxTokens < 2000 {
		s.ContentMaxTokens = 2000
	}
	if len(s.InvalidCategories) == 0 {
		s.InvalidCategories = []string{
			"entertainment", "music", "vlog", "gaming", "promotional", "other",
		}
	}
	if s.ToolRetry.MaxRetries == 0 {
		s.ToolRetry = RetrySettings{MaxRetries: 3, BaseDelayMS: 1000, MaxDelayMS: 30000, Multiplier: 2}
	}
	if s.StageRetry.MaxRetries == 0 {
		s.StageRetry = RetrySettings{MaxRetries: 2, BaseDelayMS: 2000, MaxDelayMS: 60000, Multiplier: 2}
	}
}

// ensureConfigExists writes the default settings file on first run so it can
// be customized in place.
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	settingsPath := filepath.Join(defaultConfigDir, "settings.yaml")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0o644); err != nil {
			return fmt.Errorf("writing default settings: %w", err)
		}
	}
	return nil
}
