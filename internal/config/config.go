package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers"`
	AI          AIConfig                  `json:"ai"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Storage     StorageConfig             `json:"storage"`
	Speech      SpeechConfig              `json:"speech"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// AIConfig selects which provider backs the prompt flows.
type AIConfig struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	EnableWebSearch bool   `json:"enable_web_search"`
	RateLimit       int    `json:"rate_limit"`
	RateWindowSecs  int    `json:"rate_window_seconds"`
}

type BasicConfig struct {
	ServerAddress      string   `json:"server_address"`
	PublicBaseURL      string   `json:"public_base_url"`
	Database           string   `json:"database"`
	LogMode            string   `json:"log_mode"`
	AllowedOrigins     []string `json:"allowed_origins"`
	MinWorkers         int      `json:"min_workers"`
	MaxWorkers         int      `json:"max_workers"`
	QueueSize          int      `json:"queue_size"`
	WorkerIdleTimeout  int      `json:"worker_idle_timeout"`
	TokenTTLHours      int      `json:"token_ttl_hours"`
	TokenSweepInterval int      `json:"token_sweep_interval"`
	UploadConcurrency  int      `json:"upload_concurrency"`
	PDFFontPath        string   `json:"pdf_font_path"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// StorageConfig picks the blob backend. Backend is one of local, minio, gcs, supabase.
type StorageConfig struct {
	Backend string `json:"backend"`
	Bucket  string `json:"bucket"`

	LocalDir string `json:"local_dir"`
	URLKey   string `json:"url_key"`

	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	UseSSL    bool   `json:"use_ssl"`

	// PublicBucket grants anonymous read on the bucket so object URLs never
	// expire. PublicURL optionally replaces the endpoint in those URLs.
	PublicBucket bool   `json:"public_bucket"`
	PublicURL    string `json:"public_url"`

	CredentialsFile string `json:"credentials_file"`

	SupabaseURL string `json:"supabase_url"`
	SupabaseKey string `json:"supabase_key"`
}

// SpeechConfig enables Google Cloud Speech as the transcriber instead of the LLM.
type SpeechConfig struct {
	Enabled         bool   `json:"enabled"`
	LanguageCode    string `json:"language_code"`
	CredentialsFile string `json:"credentials_file"`
}

// Load reads configuration from the provided path (defaults to config.json).
// A .env file next to the working directory is applied first; env values win over the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if dbCfg, ok := cfg.Databases["sqlite3"]; ok && dbCfg.DSN != "" && !strings.HasPrefix(dbCfg.DSN, "file:") && !filepath.IsAbs(dbCfg.DSN) {
		dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
		cfg.Databases["sqlite3"] = dbCfg
	}
	if cfg.Storage.Backend == "local" && !filepath.IsAbs(cfg.Storage.LocalDir) {
		cfg.Storage.LocalDir = filepath.Join(filepath.Dir(absPath), cfg.Storage.LocalDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MEDOAI_DB"); v != "" {
		c.BasicConfig.Database = v
	}
	if v := os.Getenv("MEDOAI_AI_PROVIDER"); v != "" {
		c.AI.Provider = v
	}
	if v := os.Getenv("MEDOAI_AI_API_KEY"); v != "" && c.AI.Provider != "" {
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p := c.Providers[c.AI.Provider]
		p.APIKey = v
		c.Providers[c.AI.Provider] = p
	}
	if v := os.Getenv("MEDOAI_BLOB_URL_KEY"); v != "" {
		c.Storage.URLKey = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		c.Storage.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Storage.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Storage.SecretKey = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Storage.SupabaseURL = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_KEY"); v != "" {
		c.Storage.SupabaseKey = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		if c.Storage.CredentialsFile == "" {
			c.Storage.CredentialsFile = v
		}
		if c.Speech.CredentialsFile == "" {
			c.Speech.CredentialsFile = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.Database == "" {
		c.BasicConfig.Database = "sqlite3"
	}
	if c.BasicConfig.LogMode == "" {
		c.BasicConfig.LogMode = "development"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./data/blobs"
	}
	if c.Speech.LanguageCode == "" {
		c.Speech.LanguageCode = "ar-SA"
	}
}

// Validate reports configuration errors that would only surface at request time otherwise.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := c.Databases[c.BasicConfig.Database]; !ok {
		errs = append(errs, fmt.Errorf("database config for %s not found", c.BasicConfig.Database))
	}
	switch c.AI.Provider {
	case "openai", "gemini", "claude":
		if _, ok := c.Providers[c.AI.Provider]; !ok {
			errs = append(errs, fmt.Errorf("provider %s not configured", c.AI.Provider))
		}
	case "":
		errs = append(errs, errors.New("ai.provider must be configured"))
	default:
		errs = append(errs, fmt.Errorf("invalid ai.provider: %s", c.AI.Provider))
	}
	switch c.Storage.Backend {
	case "local":
	case "minio":
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			errs = append(errs, errors.New("minio storage requires endpoint and bucket"))
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("gcs storage requires bucket"))
		}
	case "supabase":
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" || c.Storage.Bucket == "" {
			errs = append(errs, errors.New("supabase storage requires supabase_url, supabase_key and bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage.backend: %s", c.Storage.Backend))
	}
	return errors.Join(errs...)
}
