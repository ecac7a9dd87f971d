package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service. Values come from the
// environment (exact keys below), with an optional YAML file layered
// underneath when CONFIG_PATH is set.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	ASR       ASRConfig       `mapstructure:"asr"`
	Translate TranslateConfig `mapstructure:"translate"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Merge     MergeConfig     `mapstructure:"merge"`
	Subtitle  SubtitleConfig  `mapstructure:"subtitle"`
	UploadDir string          `mapstructure:"upload_dir"`
	RedisURL  string          `mapstructure:"redis_url"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type ASRConfig struct {
	// Provider: "mock", "openai" or "google"
	Provider string `mapstructure:"provider"`
	// Language: source language hint (optional)
	Language string `mapstructure:"language"`
	// Timestamps requests word-level timing from the provider
	Timestamps bool   `mapstructure:"timestamps"`
	APIKey     string `mapstructure:"api_key"`
}

type TranslateConfig struct {
	// Provider: "mock" or "google"
	Provider string `mapstructure:"provider"`
	// Target: BCP-47ish target language code, e.g. "id", "en"
	Target string `mapstructure:"target"`
	APIKey string `mapstructure:"api_key"`
	// RateLimitRPM: requests per minute (0 = no limit)
	RateLimitRPM int `mapstructure:"rate_limit_rpm"`
}

type TTSConfig struct {
	// Provider: "mock" or "google"
	Provider string `mapstructure:"provider"`
	// Language: default synthesis language code, e.g. "id-ID"
	Language string `mapstructure:"language"`
	// Voice: provider voice name (empty = provider default)
	Voice  string `mapstructure:"voice"`
	APIKey string `mapstructure:"api_key"`
}

type MergeConfig struct {
	// Mode: "replace" or "mix"
	Mode          string `mapstructure:"mode"`
	BurnSubtitles bool   `mapstructure:"burn_subtitles"`
	Enhance       bool   `mapstructure:"enhance"`
}

type SubtitleConfig struct {
	MaxWords        int     `mapstructure:"max_words"`
	MaxLineDuration float64 `mapstructure:"max_line_duration"`
	MaxChars        int     `mapstructure:"max_chars"`
}

// envBindings maps viper keys to the environment variables that set them.
var envBindings = map[string]string{
	"server.port":                 "SERVER_PORT",
	"asr.provider":                "ASR_PROVIDER",
	"asr.language":                "ASR_LANGUAGE",
	"asr.timestamps":              "ASR_TIMESTAMPS",
	"asr.api_key":                 "ASR_API_KEY",
	"translate.provider":          "TRANSLATE_PROVIDER",
	"translate.target":            "TRANSLATE_TARGET",
	"translate.api_key":           "TRANSLATE_API_KEY",
	"translate.rate_limit_rpm":    "TRANSLATE_RATE_LIMIT_RPM",
	"tts.provider":                "TTS_PROVIDER",
	"tts.language":                "TTS_LANGUAGE",
	"tts.voice":                   "TTS_VOICE",
	"tts.api_key":                 "TTS_API_KEY",
	"merge.mode":                  "MERGE_MODE",
	"merge.burn_subtitles":        "BURN_SUBTITLES",
	"merge.enhance":               "ENHANCE",
	"subtitle.max_words":          "SRT_MAX_WORDS",
	"subtitle.max_line_duration":  "SRT_MAX_LINE_DURATION",
	"subtitle.max_chars":          "SRT_MAX_CHARS",
	"upload_dir":                  "UPLOAD_DIR",
	"redis_url":                   "REDIS_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("asr.provider", "mock")
	v.SetDefault("asr.language", "")
	v.SetDefault("asr.timestamps", false)
	v.SetDefault("translate.provider", "google")
	v.SetDefault("translate.target", "id")
	v.SetDefault("translate.rate_limit_rpm", 0)
	v.SetDefault("tts.provider", "google")
	v.SetDefault("tts.language", "id-ID")
	v.SetDefault("tts.voice", "")
	v.SetDefault("merge.mode", "replace")
	v.SetDefault("merge.burn_subtitles", false)
	v.SetDefault("merge.enhance", false)
	v.SetDefault("subtitle.max_words", 7)
	v.SetDefault("subtitle.max_line_duration", 4.0)
	v.SetDefault("subtitle.max_chars", 80)
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("redis_url", "redis://localhost:6379")
}

// Load reads configuration from the environment, layered over an optional
// YAML file at path (ignored when empty).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Merge.Mode = normalizeMergeMode(cfg.Merge.Mode)
	return &cfg, nil
}

func normalizeMergeMode(mode string) string {
	switch strings.ToLower(mode) {
	case "mix":
		return "mix"
	default:
		return "replace"
	}
}
