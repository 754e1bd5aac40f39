// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Context store backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	SecretKey   string
	LogLevel    string
	WorkDir     string
	UploadDir   string
	MaxUploadMB int
	OpenAI      OpenAIConfig
	Google      GoogleConfig
	Context     ContextConfig
	Exec        ExecConfig
	OCR         OCRConfig
}

// OpenAIConfig selects the chat model and where its key comes from.
type OpenAIConfig struct {
	APIKey      string
	ParamPrefix string // SSM prefix; <prefix>/open-ai-token holds {"token": "..."}
	Model       string
	BaseURL     string
	Timeout     time.Duration
}

// GoogleConfig is the OAuth client written to credentials.json.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	ProjectID    string
	AuthURI      string
	TokenURI     string
	CertURL      string
	RedirectURI  string
}

// ContextConfig selects where named context stores live.
type ContextConfig struct {
	Backend string
	DBPath  string
	Table   string
}

type ExecConfig struct {
	PythonPath string
	Timeout    time.Duration
}

type OCRConfig struct {
	TesseractPath string
	PdftoppmPath  string
	SofficePath   string
	Language      string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	workDir := getEnv("WORK_DIR", ".")

	cfg := &Config{
		Port:        getEnv("PORT", "5000"),
		SecretKey:   getEnv("SECRET_KEY", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		WorkDir:     workDir,
		UploadDir:   getEnv("UPLOAD_FOLDER", os.TempDir()),
		MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 16),
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			ParamPrefix: getEnv("PARAM_PREFIX", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o"),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Timeout:     getEnvDuration("OPENAI_TIMEOUT", 0),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			ProjectID:    getEnv("GOOGLE_PROJECT_ID", ""),
			AuthURI:      getEnv("GOOGLE_AUTH_URI", "https://accounts.google.com/o/oauth2/v2/auth"),
			TokenURI:     getEnv("GOOGLE_TOKEN_URI", "https://oauth2.googleapis.com/token"),
			CertURL:      getEnv("GOOGLE_AUTH_PROVIDER_CERT", "https://www.googleapis.com/oauth2/v1/certs"),
			RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", ""),
		},
		Context: ContextConfig{
			Backend: strings.ToLower(getEnv("CONTEXT_BACKEND", BackendFile)),
			DBPath:  getEnv("CONTEXT_DB_PATH", "./data/context.db"),
			Table:   getEnv("CONTEXT_TABLE", ""),
		},
		Exec: ExecConfig{
			PythonPath: getEnv("PYTHON_PATH", ""),
			Timeout:    getEnvDuration("EXEC_TIMEOUT", 0),
		},
		OCR: OCRConfig{
			TesseractPath: getEnv("TESSERACT_PATH", ""),
			PdftoppmPath:  getEnv("PDFTOPPM_PATH", ""),
			SofficePath:   getEnv("SOFFICE_PATH", ""),
			Language:      getEnv("OCR_LANG", "eng"),
		},
	}
	if cfg.Google.RedirectURI == "" {
		cfg.Google.RedirectURI = "http://localhost:" + cfg.Port + "/oauth2callback"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set. The Google
// client may be omitted when PARAM_PREFIX is set; it is then read from SSM.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.OpenAI.APIKey == "" && c.OpenAI.ParamPrefix == "" {
		return fmt.Errorf("OPENAI_API_KEY not set in environment variables")
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("OPENAI_MODEL cannot be empty")
	}
	if c.OpenAI.ParamPrefix == "" {
		if c.Google.ClientID == "" {
			return fmt.Errorf("GOOGLE_CLIENT_ID not set in environment variables")
		}
		if c.Google.ClientSecret == "" {
			return fmt.Errorf("GOOGLE_CLIENT_SECRET not set in environment variables")
		}
	}
	if c.WorkDir == "" {
		return fmt.Errorf("WORK_DIR cannot be empty")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be > 0")
	}
	switch c.Context.Backend {
	case BackendFile:
	case BackendSQLite:
		if c.Context.DBPath == "" {
			return fmt.Errorf("CONTEXT_DB_PATH cannot be empty")
		}
	case BackendDynamoDB:
		if c.Context.Table == "" {
			return fmt.Errorf("CONTEXT_TABLE is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("CONTEXT_BACKEND must be one of file, sqlite, dynamodb: got %q", c.Context.Backend)
	}
	return nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.OpenAI.ParamPrefix != "" || c.Context.Backend == BackendDynamoDB
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
