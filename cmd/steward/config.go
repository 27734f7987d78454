package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all steward server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath                 string  `json:"db_path"`
	LogLevel               string  `json:"log_level"`
	MetricsAddr            string  `json:"metrics_addr"`
	LLMBaseURL             string  `json:"llm_base_url"`
	LLMAPIKey              string  `json:"llm_api_key"`
	LLMModel               string  `json:"llm_model"`
	RatePerMinute          float64 `json:"rate_per_minute"`
	RateBurst              int     `json:"rate_burst"`
	ConversationTTLMinutes int     `json:"conversation_ttl_minutes"`
}

func defaultConfig() Config {
	return Config{
		DBPath:                 filepath.Join(stewardDir(), "steward.db"),
		LogLevel:               "info",
		MetricsAddr:            ":9464",
		LLMBaseURL:             "http://localhost:11434",
		LLMModel:               "steward-planner",
		RatePerMinute:          30,
		RateBurst:              5,
		ConversationTTLMinutes: 30,
	}
}

func stewardDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".steward"
	}
	return filepath.Join(home, ".steward")
}

func settingsPath() string {
	return filepath.Join(stewardDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STEWARD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STEWARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STEWARD_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("STEWARD_LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("STEWARD_LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("STEWARD_LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("STEWARD_RATE_PER_MINUTE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RatePerMinute = f
		}
	}
	if v := os.Getenv("STEWARD_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateBurst = n
		}
	}
	if v := os.Getenv("STEWARD_CONVERSATION_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConversationTTLMinutes = n
		}
	}

	return cfg
}
