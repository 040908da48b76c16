package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind           string   `yaml:"bind"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type GameConfig struct {
	MaxParticipants     int    `yaml:"max_participants"`
	DefaultParticipants int    `yaml:"default_participants"`
	DefaultSynthesis    string `yaml:"default_synthesis"`
	DefaultRecognition  string `yaml:"default_recognition"`
	StepTimeoutMS       int    `yaml:"step_timeout_ms"`
}

type TTSCacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TTSConfig struct {
	Command     string         `yaml:"command"`
	SampleRate  int            `yaml:"sample_rate"`
	EdgeVoice   string         `yaml:"edge_voice"`
	OpenAIModel string         `yaml:"openai_model"`
	OpenAIVoice string         `yaml:"openai_voice"`
	Cache       TTSCacheConfig `yaml:"cache"`
}

type STTConfig struct {
	Command     string `yaml:"command"`
	ModelPath   string `yaml:"model_path"`
	Language    string `yaml:"language"`
	OpenAIModel string `yaml:"openai_model"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Game        GameConfig      `yaml:"game"`
	TTS         TTSConfig       `yaml:"tts"`
	STT         STTConfig       `yaml:"stt"`
	OpenAI      OpenAIConfig    `yaml:"openai"`
}

func Default() Config {
	return Config{
		RuntimeName: "echotrail",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Game: GameConfig{
			MaxParticipants:     20,
			DefaultParticipants: 4,
			DefaultSynthesis:    "mock",
			DefaultRecognition:  "mock",
			StepTimeoutMS:       45000,
		},
		TTS: TTSConfig{
			SampleRate:  22050,
			EdgeVoice:   "en-US-AriaNeural",
			OpenAIModel: "tts-1",
			OpenAIVoice: "alloy",
			Cache: TTSCacheConfig{
				Enabled: false,
				Path:    "./data/clips.db",
			},
		},
		STT: STTConfig{
			Language: "en",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "ECHOTRAIL_RUNTIME_NAME")
	overrideString(&cfg.Environment, "ECHOTRAIL_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ECHOTRAIL_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ECHOTRAIL_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.AllowedOrigins, "ECHOTRAIL_HTTP_ALLOWED_ORIGINS")
	overrideString(&cfg.Telemetry.LogLevel, "ECHOTRAIL_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ECHOTRAIL_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ECHOTRAIL_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "ECHOTRAIL_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "ECHOTRAIL_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ECHOTRAIL_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "ECHOTRAIL_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ECHOTRAIL_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ECHOTRAIL_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ECHOTRAIL_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "ECHOTRAIL_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "ECHOTRAIL_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Game.MaxParticipants, "ECHOTRAIL_GAME_MAX_PARTICIPANTS")
	overrideInt(&cfg.Game.DefaultParticipants, "ECHOTRAIL_GAME_DEFAULT_PARTICIPANTS")
	overrideString(&cfg.Game.DefaultSynthesis, "ECHOTRAIL_GAME_DEFAULT_SYNTHESIS")
	overrideString(&cfg.Game.DefaultRecognition, "ECHOTRAIL_GAME_DEFAULT_RECOGNITION")
	overrideInt(&cfg.Game.StepTimeoutMS, "ECHOTRAIL_GAME_STEP_TIMEOUT_MS")
	overrideString(&cfg.TTS.Command, "ECHOTRAIL_TTS_COMMAND")
	overrideInt(&cfg.TTS.SampleRate, "ECHOTRAIL_TTS_SAMPLE_RATE")
	overrideString(&cfg.TTS.EdgeVoice, "ECHOTRAIL_TTS_EDGE_VOICE")
	overrideString(&cfg.TTS.OpenAIModel, "ECHOTRAIL_TTS_OPENAI_MODEL")
	overrideString(&cfg.TTS.OpenAIVoice, "ECHOTRAIL_TTS_OPENAI_VOICE")
	overrideBool(&cfg.TTS.Cache.Enabled, "ECHOTRAIL_TTS_CACHE_ENABLED")
	overrideString(&cfg.TTS.Cache.Path, "ECHOTRAIL_TTS_CACHE_PATH")
	overrideString(&cfg.STT.Command, "ECHOTRAIL_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "ECHOTRAIL_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "ECHOTRAIL_STT_LANGUAGE")
	overrideString(&cfg.STT.OpenAIModel, "ECHOTRAIL_STT_OPENAI_MODEL")
	overrideString(&cfg.OpenAI.APIKey, "ECHOTRAIL_OPENAI_API_KEY")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		return errors.New("http.allowed_origins must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Game.MaxParticipants <= 0 {
		return errors.New("game.max_participants must be positive")
	}
	if cfg.Game.DefaultParticipants <= 0 || cfg.Game.DefaultParticipants > cfg.Game.MaxParticipants {
		return errors.New("game.default_participants must be between 1 and game.max_participants")
	}
	if cfg.Game.DefaultSynthesis == "" || cfg.Game.DefaultRecognition == "" {
		return errors.New("game.default_synthesis and game.default_recognition must not be empty")
	}
	if cfg.Game.StepTimeoutMS < 0 {
		return errors.New("game.step_timeout_ms must be >= 0")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Cache.Enabled && cfg.TTS.Cache.Path == "" {
		return errors.New("tts.cache.path must not be empty when the cache is enabled")
	}
	return nil
}
