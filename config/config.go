package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"roundtable/models"
)

// Config is the full runtime configuration.
// Precedence: defaults, then the YAML file, then environment variables.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Gemini GeminiConfig `yaml:"gemini"`
	Engine EngineConfig `yaml:"engine"`
	Memory MemoryConfig `yaml:"memory"`
	Mongo  MongoConfig  `yaml:"mongo"`
	Cast   CastConfig   `yaml:"cast"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxAudioBytes   int64         `yaml:"max_audio_bytes"`
}

type GeminiConfig struct {
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	Temperature       float32 `yaml:"temperature"`
	TopP              float32 `yaml:"top_p"`
	TopK              float32 `yaml:"top_k"`
	MaxOutputTokens   int32   `yaml:"max_output_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type EngineConfig struct {
	SessionID            string        `yaml:"session_id"`
	IdleThreshold        int           `yaml:"idle_threshold"`
	MaxAutonomousTurns   int           `yaml:"max_autonomous_turns"`
	HistoryTail          int           `yaml:"history_tail"`
	PropagationThreshold float64       `yaml:"propagation_threshold"`
	RecallK              int           `yaml:"recall_k"`
	ExternalTimeout      time.Duration `yaml:"external_timeout"`
	CoachFeedback        bool          `yaml:"coach_feedback"`
	Seed                 uint64        `yaml:"seed"`
}

type MemoryConfig struct {
	RedisAddr        string        `yaml:"redis_addr"`
	KeyPrefix        string        `yaml:"key_prefix"`
	ShortTermWindow  int           `yaml:"short_term_window"`
	TTL              time.Duration `yaml:"ttl"`
	QueueSize        int           `yaml:"queue_size"`
	UseLLMImportance bool          `yaml:"use_llm_importance"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type CastConfig struct {
	Characters []models.Character `yaml:"characters"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxAudioBytes:   10 << 20,
		},
		Gemini: GeminiConfig{
			Model:             GetGeminiModel(),
			EmbeddingModel:    "gemini-embedding-001",
			Temperature:       0.8,
			TopP:              0.9,
			TopK:              40,
			MaxOutputTokens:   1024,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Engine: EngineConfig{
			SessionID:            "default",
			IdleThreshold:        3,
			MaxAutonomousTurns:   2,
			HistoryTail:          6,
			PropagationThreshold: 0.6,
			RecallK:              3,
			ExternalTimeout:      30 * time.Second,
			CoachFeedback:        true,
			Seed:                 42,
		},
		Memory: MemoryConfig{
			KeyPrefix:       "roundtable",
			ShortTermWindow: 20,
			TTL:             24 * time.Hour,
			QueueSize:       256,
		},
		Mongo: MongoConfig{
			Database: "roundtable",
		},
		Cast: CastConfig{
			Characters: models.DefaultCharacters(),
		},
	}
}

// Load reads path (which may be empty or missing) over the defaults and then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := GetGeminiAPIKey(); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv("GEMINI_EMBEDDING_MODEL"); v != "" {
		c.Gemini.EmbeddingModel = v
	}
	if v := GetMongoDBURI(); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		c.Mongo.Database = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Memory.RedisAddr = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if origins := GetAllowedOrigins(); len(origins) > 0 {
		c.Server.AllowedOrigins = origins
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string
	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Gemini.Model == "" {
		errs = append(errs, "gemini.model is required")
	}
	if c.Gemini.RequestsPerSecond <= 0 || c.Gemini.Burst <= 0 {
		errs = append(errs, "gemini rate limit must be positive")
	}
	if c.Engine.IdleThreshold <= 0 {
		errs = append(errs, "engine.idle_threshold must be positive")
	}
	if c.Engine.MaxAutonomousTurns <= 0 {
		errs = append(errs, "engine.max_autonomous_turns must be positive")
	}
	if c.Engine.HistoryTail <= 0 {
		errs = append(errs, "engine.history_tail must be positive")
	}
	if c.Engine.PropagationThreshold <= 0 || c.Engine.PropagationThreshold > 1 {
		errs = append(errs, "engine.propagation_threshold must be in (0, 1]")
	}
	if c.Engine.RecallK <= 0 {
		errs = append(errs, "engine.recall_k must be positive")
	}
	if len(c.Cast.Characters) == 0 {
		errs = append(errs, "cast.characters must not be empty")
	}
	seen := map[string]bool{}
	for _, ch := range c.Cast.Characters {
		key := strings.ToLower(strings.TrimSpace(ch.Name))
		if key == "" {
			errs = append(errs, "cast character name is required")
			continue
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("duplicate cast character %q", ch.Name))
		}
		seen[key] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// GetGeminiModel returns the Gemini model from the environment, defaulting to
// "gemini-2.5-flash".
func GetGeminiModel() string {
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		return "gemini-2.5-flash"
	}
	return model
}

// GetGeminiAPIKey returns the Gemini API key from the environment.
func GetGeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// GetMongoDBURI returns the MongoDB connection URI from the environment.
func GetMongoDBURI() string {
	return os.Getenv("MONGODB_URI")
}

// GetAllowedOrigins returns the comma separated CORS origins from the environment.
func GetAllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
