package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	Environment string

	// AllowedOrigins restricts CORS and websocket upgrades. Empty allows any origin.
	AllowedOrigins []string

	Storage     StorageConfig
	Firebase    FirebaseConfig
	Audit       AuditConfig
	Moderation  ModerationConfig
	Transaction TransactionConfig
	Auth        AuthConfig
	Log         LogConfig
	RateLimit   RateLimitConfig
}

type StorageConfig struct {
	Driver    string // sqlite or firestore
	SQLiteDSN string
}

type FirebaseConfig struct {
	ProjectID          string
	ServiceAccountPath string
	ServiceAccountJSON string
}

type AuditConfig struct {
	Driver   string // storage (same driver as entities) or bolt
	BoltPath string
}

type ModerationConfig struct {
	AutoApproveThreshold int64
}

type TransactionConfig struct {
	PostSystemMessages bool
	MaxNotesLength     int
}

type AuthConfig struct {
	// Verifier is firebase or header. header trusts X-User-ID/X-User-Roles and is only honoured in development.
	Verifier string
	// RoleCapabilities maps a role to the capabilities it grants, e.g. "admin=moderate,resolve;support=view_conversations".
	RoleCapabilities map[string][]string
}

type LogConfig struct {
	Level    string
	FilePath string
}

type RateLimitConfig struct {
	MessagesPerMinute int
	MessageBurst      int
	RequestsPerSecond float64
	RequestBurst      int
	IdleEviction      time.Duration
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
		Storage: StorageConfig{
			Driver:    getEnv("STORAGE_DRIVER", "sqlite"),
			SQLiteDSN: getEnv("SQLITE_DSN", "file:pasarbekas.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"),
		},
		Firebase: FirebaseConfig{
			ProjectID:          getEnv("FIREBASE_PROJECT_ID", ""),
			ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
			ServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		},
		Audit: AuditConfig{
			Driver:   getEnv("AUDIT_DRIVER", "storage"),
			BoltPath: getEnv("AUDIT_BOLT_PATH", "audit.db"),
		},
		Moderation: ModerationConfig{
			AutoApproveThreshold: getEnvAsInt64("AUTO_APPROVE_THRESHOLD", 500000),
		},
		Transaction: TransactionConfig{
			PostSystemMessages: getEnvAsBool("TRANSACTION_SYSTEM_MESSAGES", true),
			MaxNotesLength:     int(getEnvAsInt64("TRANSACTION_MAX_NOTES_LENGTH", 1000)),
		},
		Auth: AuthConfig{
			Verifier:         getEnv("AUTH_VERIFIER", "firebase"),
			RoleCapabilities: parseRoleCapabilities(getEnv("ROLE_CAPABILITIES", DefaultRoleCapabilities)),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE", ""),
		},
		RateLimit: RateLimitConfig{
			MessagesPerMinute: int(getEnvAsInt64("CHAT_MESSAGES_PER_MINUTE", 30)),
			MessageBurst:      int(getEnvAsInt64("CHAT_MESSAGE_BURST", 10)),
			RequestsPerSecond: getEnvAsFloat("HTTP_REQUESTS_PER_SECOND", 20),
			RequestBurst:      int(getEnvAsInt64("HTTP_REQUEST_BURST", 40)),
			IdleEviction:      getEnvAsDuration("RATE_LIMIT_IDLE_EVICTION", time.Hour),
		},
	}

	return config, nil
}

// DefaultRoleCapabilities grants admins every capability the core checks.
const DefaultRoleCapabilities = "admin=moderate,complete,resolve,cancel,edit_listing,view_conversations"

func parseRoleCapabilities(raw string) map[string][]string {
	out := make(map[string][]string)
	for _, entry := range strings.Split(raw, ";") {
		role, caps, ok := strings.Cut(strings.TrimSpace(entry), "=")
		role = strings.TrimSpace(role)
		if !ok || role == "" {
			continue
		}
		for _, c := range strings.Split(caps, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out[role] = append(out[role], c)
			}
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
