package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8000"
	DefaultGraphBaseURL     = "https://graph.facebook.com"
	DefaultGraphAPIVersion  = "v19.0"
	DefaultGeminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel      = "gemini-2.5-flash"
	DefaultEmbeddingModel   = "gemini-embedding-001"
	DefaultMaxOutputTokens  = 250
	DefaultQdrantHost       = "127.0.0.1"
	DefaultQdrantPort       = 6334
	DefaultQdrantCollection = "passages"
	DefaultTopK             = 4
	DefaultScoreThreshold   = 0.55
	DefaultEventTimeoutSecs = 60
	DefaultClientTimeout    = 15
)

type Config struct {
	Log          LogConfig          `toml:"log"`
	Server       ServerConfig       `toml:"server"`
	Meta         MetaConfig         `toml:"meta"`
	Backend      BackendConfig      `toml:"backend"`
	Gemini       GeminiConfig       `toml:"gemini"`
	Qdrant       QdrantConfig       `toml:"qdrant"`
	Generation   GenerationConfig   `toml:"generation"`
	Admin        AdminConfig        `toml:"admin"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// MetaConfig holds WhatsApp Cloud API credentials.
type MetaConfig struct {
	VerifyToken    string `toml:"verify_token"`
	AccessToken    string `toml:"access_token"`
	PhoneNumberID  string `toml:"phone_number_id"`
	GraphBaseURL   string `toml:"graph_base_url"`
	APIVersion     string `toml:"api_version"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// BackendConfig points at the conversation persistence API.
type BackendConfig struct {
	BaseURL        string `toml:"base_url"`
	AuthToken      string `toml:"auth_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type GeminiConfig struct {
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	Model           string `toml:"model"`
	VisionModel     string `toml:"vision_model"`
	EmbeddingModel  string `toml:"embedding_model"`
	MaxOutputTokens int    `toml:"max_output_tokens"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

type QdrantConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	APIKey     string `toml:"api_key"`
	UseTLS     bool   `toml:"use_tls"`
	Collection string `toml:"collection"`
}

// GenerationConfig selects the text-generation strategy for inbound text.
type GenerationConfig struct {
	Grounded       bool    `toml:"grounded"`
	TopK           int     `toml:"top_k"`
	ScoreThreshold float64 `toml:"score_threshold"`
}

type AdminConfig struct {
	AuthToken string `toml:"auth_token"`
}

type OrchestratorConfig struct {
	EventTimeoutSeconds int `toml:"event_timeout_seconds"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Meta: MetaConfig{
			GraphBaseURL:   DefaultGraphBaseURL,
			APIVersion:     DefaultGraphAPIVersion,
			TimeoutSeconds: DefaultClientTimeout,
		},
		Backend: BackendConfig{
			TimeoutSeconds: DefaultClientTimeout,
		},
		Gemini: GeminiConfig{
			BaseURL:         DefaultGeminiBaseURL,
			Model:           DefaultGeminiModel,
			VisionModel:     DefaultGeminiModel,
			EmbeddingModel:  DefaultEmbeddingModel,
			MaxOutputTokens: DefaultMaxOutputTokens,
			TimeoutSeconds:  DefaultClientTimeout,
		},
		Qdrant: QdrantConfig{
			Host:       DefaultQdrantHost,
			Port:       DefaultQdrantPort,
			Collection: DefaultQdrantCollection,
		},
		Generation: GenerationConfig{
			TopK:           DefaultTopK,
			ScoreThreshold: DefaultScoreThreshold,
		},
		Orchestrator: OrchestratorConfig{
			EventTimeoutSeconds: DefaultEventTimeoutSecs,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
