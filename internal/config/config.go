package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          string
	AllowedOrigin string
	// RAG backend
	BackendBaseURL string
	RequestTimeout time.Duration
	TopK           int
	UIMode         string
	// Identity defaults when the gateway sends no headers
	DefaultTenantID string
	DefaultUserID   string
	DefaultRoles    []string
	// Optional OAuth2 client credentials for the backend
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthScopes       []string
	// Database
	DatabaseURL   string
	MigrationsDir string
	AutoMigrate   bool
	// Logging
	LogFilePath string
	Production  bool
	// Sessions and polling
	SessionTTL      time.Duration
	JobPollEvery    time.Duration
	HealthPollEvery time.Duration
	ProfilePath     string
}

func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:              getEnvDefault("PORT", "8090"),
		AllowedOrigin:     getEnvDefault("ALLOWED_ORIGIN", "*"),
		BackendBaseURL:    strings.TrimRight(getEnvDefault("RAG_API_BASE_URL", "http://localhost:8100"), "/"),
		RequestTimeout:    time.Duration(getEnvIntDefault("RAG_REQUEST_TIMEOUT_SEC", 60)) * time.Second,
		TopK:              getEnvIntDefault("RAG_TOP_K", 10),
		UIMode:            getEnvDefault("RAG_UI_MODE", "prod"),
		DefaultTenantID:   os.Getenv("DEFAULT_TENANT_ID"),
		DefaultUserID:     getEnvDefault("DEFAULT_USER_ID", "console"),
		DefaultRoles:      getEnvListDefault("DEFAULT_ROLES", []string{"viewer"}),
		OAuthTokenURL:     os.Getenv("BACKEND_OAUTH_TOKEN_URL"),
		OAuthClientID:     os.Getenv("BACKEND_OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("BACKEND_OAUTH_CLIENT_SECRET"),
		OAuthScopes:       getEnvListDefault("BACKEND_OAUTH_SCOPES", nil),
		DatabaseURL:       os.Getenv("DB_URL"),
		MigrationsDir:     getEnvDefault("MIGRATIONS_DIR", "./migrations"),
		AutoMigrate:       getEnvBoolDefault("DB_AUTO_MIGRATE", true),
		LogFilePath:       getEnvDefault("LOG_FILE_PATH", "logs/ragconsole.log"),
		Production:        getEnvDefault("GO_ENV", "development") == "production",
		SessionTTL:        time.Duration(getEnvIntDefault("SESSION_TTL_MIN", 30)) * time.Minute,
		JobPollEvery:      time.Duration(getEnvIntDefault("JOB_POLL_INTERVAL_SEC", 3)) * time.Second,
		HealthPollEvery:   time.Duration(getEnvIntDefault("HEALTH_POLL_INTERVAL_SEC", 30)) * time.Second,
		ProfilePath:       getEnvDefault("CONSOLE_PROFILE", "./console.yaml"),
	}
}

// Profile holds console behaviour that operators tune per deployment.
type Profile struct {
	Clarification struct {
		Markers    []string `yaml:"markers"`
		MaxOptions int      `yaml:"max_options"`
		DepthBound int      `yaml:"depth_bound"`
	} `yaml:"clarification"`
	Ingestion struct {
		SourceTypes []string `yaml:"source_types"`
	} `yaml:"ingestion"`
}

func DefaultProfile() Profile {
	var p Profile
	p.Clarification.Markers = []string{"или"}
	p.Clarification.MaxOptions = 3
	p.Clarification.DepthBound = 2
	p.Ingestion.SourceTypes = []string{"CONFLUENCE_PAGE", "CONFLUENCE_ATTACHMENT", "FILE_CATALOG_OBJECT"}
	return p
}

// LoadProfile reads the YAML profile at path. A missing file yields the
// defaults; keys left out of the file keep their default values.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return p, err
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return DefaultProfile(), fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.Clarification.DepthBound < 0 {
		return DefaultProfile(), fmt.Errorf("parse profile %s: depth_bound must not be negative", path)
	}
	for _, m := range p.Clarification.Markers {
		if len(strings.Fields(m)) > 1 {
			return DefaultProfile(), fmt.Errorf("parse profile %s: marker %q must be a single word", path, m)
		}
	}
	return p.WithDefaults(), nil
}

// WithDefaults fills fields left empty with their default values. A fully
// zero profile becomes DefaultProfile; otherwise depth_bound 0 is kept since
// it turns clarification off.
func (p Profile) WithDefaults() Profile {
	def := DefaultProfile()
	if len(p.Clarification.Markers) == 0 && p.Clarification.MaxOptions == 0 &&
		p.Clarification.DepthBound == 0 && len(p.Ingestion.SourceTypes) == 0 {
		return def
	}
	if len(p.Clarification.Markers) == 0 {
		p.Clarification.Markers = def.Clarification.Markers
	}
	if p.Clarification.MaxOptions <= 0 {
		p.Clarification.MaxOptions = def.Clarification.MaxOptions
	}
	if len(p.Ingestion.SourceTypes) == 0 {
		p.Ingestion.SourceTypes = def.Ingestion.SourceTypes
	}
	return p
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}
