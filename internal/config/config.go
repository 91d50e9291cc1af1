// Package config loads the ema-voice configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koscakluka/ema-voice/internal/utils"
)

const (
	ProviderOpenAI   = "openai"
	ProviderGroq     = "groq"
	ProviderZhipu    = "zhipu"
	ProviderDeepgram = "deepgram"
)

const DefaultGreeting = "你好！我是AI助手，很高兴与你对话。请问有什么我可以帮助你的吗？"

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Conversation ConversationConfig `yaml:"conversation"`
	LLM          LLMConfig          `yaml:"llm"`
	ASR          ASRConfig          `yaml:"asr"`
	TTS          TTSConfig          `yaml:"tts"`
	Zhipu        VendorConfig       `yaml:"zhipu"`
	Deepgram     VendorConfig       `yaml:"deepgram"`
	Groq         VendorConfig       `yaml:"groq"`
	Retry        RetryConfig        `yaml:"retry"`
}

type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	EvictionInterval time.Duration `yaml:"eviction_interval"`
}

type ConversationConfig struct {
	SystemPrompt  string `yaml:"system_prompt"`
	Greeting      string `yaml:"greeting"`
	KeepListening *bool  `yaml:"keep_listening"`
}

// LLMConfig configures an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

type ASRConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	// FFmpegPath enables transcoding of formats the provider rejects.
	FFmpegPath string `yaml:"ffmpeg_path"`
}

type TTSConfig struct {
	Provider string   `yaml:"provider"`
	Model    string   `yaml:"model"`
	Voice    string   `yaml:"voice"`
	Speed    *float64 `yaml:"speed"`
	Volume   *float64 `yaml:"volume"`
}

type VendorConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads path, when it exists, applies environment overrides from the
// process environment and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return parse(data, lookup)
}

// Parse unmarshals YAML bytes into a validated Config without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, func(string) (string, bool) { return "", false })
}

func parse(data []byte, lookup LookupFunc) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	stringVars := map[string]*string{
		"EMA_VOICE_ADDR":    &c.Server.Addr,
		"SYSTEM_PROMPT":     &c.Conversation.SystemPrompt,
		"GREETING":          &c.Conversation.Greeting,
		"LLM_PROVIDER":      &c.LLM.Provider,
		"LLM_API_KEY":       &c.LLM.APIKey,
		"LLM_BASE_URL":      &c.LLM.BaseURL,
		"LLM_MODEL":         &c.LLM.Model,
		"ASR_PROVIDER":      &c.ASR.Provider,
		"ASR_MODEL":         &c.ASR.Model,
		"ASR_LANGUAGE":      &c.ASR.Language,
		"FFMPEG_PATH":       &c.ASR.FFmpegPath,
		"TTS_PROVIDER":      &c.TTS.Provider,
		"TTS_MODEL":         &c.TTS.Model,
		"TTS_VOICE":         &c.TTS.Voice,
		"ZHIPU_API_KEY":     &c.Zhipu.APIKey,
		"ZHIPU_BASE_URL":    &c.Zhipu.BaseURL,
		"DEEPGRAM_API_KEY":  &c.Deepgram.APIKey,
		"DEEPGRAM_BASE_URL": &c.Deepgram.BaseURL,
		"GROQ_API_KEY":      &c.Groq.APIKey,
	}
	for key, field := range stringVars {
		if value, ok := lookup(key); ok && value != "" {
			*field = value
		}
	}

	floatVars := map[string]**float64{
		"TTS_SPEED":       &c.TTS.Speed,
		"TTS_VOLUME":      &c.TTS.Volume,
		"LLM_TEMPERATURE": &c.LLM.Temperature,
	}
	var errs []error
	for key, field := range floatVars {
		value, ok := lookup(key)
		if !ok || value == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
			continue
		}
		*field = utils.Ptr(parsed)
	}
	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 30 * time.Minute
	}
	if c.Server.EvictionInterval == 0 {
		c.Server.EvictionInterval = time.Minute
	}

	if c.Conversation.Greeting == "" {
		c.Conversation.Greeting = DefaultGreeting
	}
	if c.Conversation.KeepListening == nil {
		c.Conversation.KeepListening = utils.Ptr(true)
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	if c.LLM.Provider == ProviderOpenAI {
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = "https://api.xiaomimimo.com/v1"
		}
		if c.LLM.Model == "" {
			c.LLM.Model = "mimo-v2-flash"
		}
	}
	if c.LLM.Provider == ProviderGroq && c.LLM.APIKey == "" {
		c.LLM.APIKey = c.Groq.APIKey
	}
	if c.LLM.Temperature == nil {
		c.LLM.Temperature = utils.Ptr(0.7)
	}

	if c.Zhipu.BaseURL == "" {
		c.Zhipu.BaseURL = "https://open.bigmodel.cn/api/paas/v4"
	}

	if c.ASR.Provider == "" {
		c.ASR.Provider = ProviderZhipu
	}
	if c.ASR.Provider == ProviderZhipu && c.ASR.Model == "" {
		c.ASR.Model = "glm-asr-2512"
	}

	if c.TTS.Provider == "" {
		c.TTS.Provider = ProviderZhipu
	}
	if c.TTS.Provider == ProviderZhipu {
		if c.TTS.Model == "" {
			c.TTS.Model = "glm-tts"
		}
		if c.TTS.Voice == "" {
			c.TTS.Voice = "female"
		}
	}
	if c.TTS.Speed == nil {
		c.TTS.Speed = utils.Ptr(1.0)
	}
	if c.TTS.Volume == nil {
		c.TTS.Volume = utils.Ptr(1.0)
	}

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 10 * time.Second
	}
}

func (c *Config) validate() error {
	var errs []string

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGroq:
	default:
		errs = append(errs, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "llm.api_key is required (LLM_API_KEY)")
	}

	for _, provider := range []struct{ name, value string }{
		{"asr.provider", c.ASR.Provider},
		{"tts.provider", c.TTS.Provider},
	} {
		switch provider.value {
		case ProviderZhipu:
			if c.Zhipu.APIKey == "" {
				errs = append(errs, fmt.Sprintf("zhipu.api_key is required by %s (ZHIPU_API_KEY)", provider.name))
			}
		case ProviderDeepgram:
			if c.Deepgram.APIKey == "" {
				errs = append(errs, fmt.Sprintf("deepgram.api_key is required by %s (DEEPGRAM_API_KEY)", provider.name))
			}
		default:
			errs = append(errs, fmt.Sprintf("%s %q is not supported", provider.name, provider.value))
		}
	}

	if speed := *c.TTS.Speed; speed < 0.5 || speed > 2.0 {
		errs = append(errs, fmt.Sprintf("tts.speed %.2f must be between 0.5 and 2.0", speed))
	}
	if volume := *c.TTS.Volume; volume < 0 || volume > 2.0 {
		errs = append(errs, fmt.Sprintf("tts.volume %.2f must be between 0 and 2.0", volume))
	}

	if c.Retry.MaxRetries < 1 || c.Retry.MaxRetries > 10 {
		errs = append(errs, fmt.Sprintf("retry.max_retries %d must be between 1 and 10", c.Retry.MaxRetries))
	}
	if c.Retry.BaseDelay < 100*time.Millisecond || c.Retry.BaseDelay > 5*time.Second {
		errs = append(errs, fmt.Sprintf("retry.base_delay %s must be between 100ms and 5s", c.Retry.BaseDelay))
	}
	if c.Retry.MaxDelay < time.Second || c.Retry.MaxDelay > time.Minute {
		errs = append(errs, fmt.Sprintf("retry.max_delay %s must be between 1s and 1m", c.Retry.MaxDelay))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Masked returns the configuration for logging with API keys hidden.
func (c *Config) Masked() map[string]string {
	return map[string]string{
		"llm_provider":   c.LLM.Provider,
		"llm_api_key":    MaskAPIKey(c.LLM.APIKey),
		"llm_base_url":   c.LLM.BaseURL,
		"llm_model":      c.LLM.Model,
		"zhipu_api_key":  MaskAPIKey(c.Zhipu.APIKey),
		"zhipu_base_url": c.Zhipu.BaseURL,
		"deepgram_key":   MaskAPIKey(c.Deepgram.APIKey),
		"asr_provider":   c.ASR.Provider,
		"asr_model":      c.ASR.Model,
		"tts_provider":   c.TTS.Provider,
		"tts_model":      c.TTS.Model,
		"tts_voice":      c.TTS.Voice,
	}
}

// MaskAPIKey keeps the first 8 and last 4 characters of key.
func MaskAPIKey(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
