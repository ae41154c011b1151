package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/matthewtan01/pdf-rag/types"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	IndexBackendMemory   = "memory"
	IndexBackendWeaviate = "weaviate"
)

type Config struct {
	Port             string `mapstructure:"port"`
	LogLevel         string `mapstructure:"log_level"`
	Provider         string `mapstructure:"provider"`
	AIEndpoint       string `mapstructure:"ai_endpoint"`
	Model            string `mapstructure:"model"`           // empty selects the provider default
	EmbeddingModel   string `mapstructure:"embedding_model"` // empty selects the provider default
	OpenAIAPIKey     string `mapstructure:"OPENAI_API_KEY"`
	GeminiAPIKeys    string `mapstructure:"GEMINI_API_KEYS"` // comma separated, rotated on failure
	IndexBackend     string `mapstructure:"index_backend"`
	RetrievalTopK    int    `mapstructure:"retrieval_top_k"`
	DefaultSessionID string `mapstructure:"default_session_id"`
	MaxUploadSize    int64  `mapstructure:"max_upload_size"`
	OCRFallback      bool   `mapstructure:"ocr_fallback"`

	Chunking            types.DocumentServiceConfig `mapstructure:"chunking"`
	Timeouts            TimeoutConfig               `mapstructure:"timeouts"`
	Retry               RetryConfig                 `mapstructure:"retry"`
	WeaviateStoreConfig WeaviateStoreConfig         `mapstructure:"weaviate_store_config"`
}

type TimeoutConfig struct {
	Retrieval  time.Duration `mapstructure:"retrieval"`
	Generation time.Duration `mapstructure:"generation"`
	Indexing   time.Duration `mapstructure:"indexing"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

type WeaviateStoreConfig struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"WEAVIATE_APIKEY"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("ai_endpoint", "https://api.openai.com/v1")
	v.SetDefault("index_backend", IndexBackendMemory)
	v.SetDefault("retrieval_top_k", 4)
	v.SetDefault("default_session_id", "user1")
	v.SetDefault("max_upload_size", 50<<20)
	v.SetDefault("ocr_fallback", false)
	v.SetDefault("chunking.max_chunk_size", 1000)
	v.SetDefault("chunking.overlap_size", 200)
	v.SetDefault("chunking.separator", "\n")
	v.SetDefault("timeouts.retrieval", 30*time.Second)
	v.SetDefault("timeouts.generation", 120*time.Second)
	v.SetDefault("timeouts.indexing", 10*time.Minute)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 200*time.Millisecond)
	v.SetDefault("weaviate_store_config.host", "http://localhost:8080")
}

// LoadConfig reads the YAML file at configPath (optional when empty) and
// overlays credentials from the environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Set up Viper to read from environment variables
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Bind environment variables
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("GEMINI_API_KEYS")
	v.BindEnv("weaviate_store_config.WEAVIATE_APIKEY", "WEAVIATE_APIKEY")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// GeminiKeys splits the comma separated key list.
func (c *Config) GeminiKeys() []string {
	var keys []string
	for _, k := range strings.Split(c.GeminiAPIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Validate checks that the credentials required by the selected
// collaborators are present.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider %q", types.ErrConfiguration, c.Provider)
		}
	case ProviderGemini:
		if len(c.GeminiKeys()) == 0 {
			return fmt.Errorf("%w: GEMINI_API_KEYS is required for provider %q", types.ErrConfiguration, c.Provider)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", types.ErrConfiguration, c.Provider)
	}

	switch c.IndexBackend {
	case IndexBackendMemory:
	case IndexBackendWeaviate:
		if c.WeaviateStoreConfig.Host == "" {
			return fmt.Errorf("%w: weaviate_store_config.host is required", types.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown index backend %q", types.ErrConfiguration, c.IndexBackend)
	}

	if c.Chunking.MaxChunkSize <= 0 || c.Chunking.OverlapSize < 0 || c.Chunking.OverlapSize >= c.Chunking.MaxChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			types.ErrConfiguration, c.Chunking.OverlapSize, c.Chunking.MaxChunkSize)
	}
	return nil
}
