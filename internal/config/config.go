package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type DatabaseConfig struct {
	Driver string // mysql, postgres, sqlite
	DSN    string
}

type FirebaseConfig struct {
	CredentialsFile string
	CredentialsJSON string
	ProjectID       string
}

type MandaoConfig struct {
	APIURL        string
	WebhookSecret string
	Timeout       time.Duration
}

type Config struct {
	Addr                      string
	BaseURL                   string
	CORSAllowOrigins          []string
	AllowRegistration         bool
	JWTSecret                 string
	JWTTTL                    time.Duration
	GeminiAPIKey              string
	OutboxPollInterval        time.Duration
	OutboxMaxAttempts         int
	SubscriptionCheckInterval time.Duration
	TrialDays                 int
	MDNSEnabled               bool
	SuperAdminUsername        string
	SuperAdminPassword        string
	LogLevel                  string
	LogFormat                 string
	Environment               string
	Database                  DatabaseConfig
	Firebase                  FirebaseConfig
	Mandao                    MandaoConfig
}

// Load reads the configuration from the environment. Call godotenv.Load first
// if a .env file should be honoured.
func Load() Config {
	port := getenv("PORT", "8080")

	return Config{
		Addr:                      ":" + port,
		BaseURL:                   strings.TrimRight(getenv("BASE_URL", "http://localhost:"+port), "/"),
		CORSAllowOrigins:          splitList(getenv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		AllowRegistration:         getenv("ALLOW_REGISTRATION", "true") == "true",
		JWTSecret:                 getenv("JWT_SECRET", "secreto-super-seguro-cambiar-en-produccion"),
		JWTTTL:                    getenvDuration("JWT_TTL", 7*24*time.Hour),
		GeminiAPIKey:              os.Getenv("GEMINI_API_KEY"),
		OutboxPollInterval:        getenvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		OutboxMaxAttempts:         getenvInt("OUTBOX_MAX_ATTEMPTS", 8, 1, 100),
		SubscriptionCheckInterval: getenvDuration("SUBSCRIPTION_CHECK_INTERVAL", time.Hour),
		TrialDays:                 getenvInt("TRIAL_DAYS", 30, 1, 365),
		MDNSEnabled:               getenv("MDNS_ENABLED", "false") == "true",
		SuperAdminUsername:        strings.ToLower(os.Getenv("SUPERADMIN_USERNAME")),
		SuperAdminPassword:        os.Getenv("SUPERADMIN_PASSWORD"),
		LogLevel:                  getenv("LOG_LEVEL", "info"),
		LogFormat:                 getenv("LOG_FORMAT", "json"),
		Environment:               getenv("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "mysql")),
			DSN:    os.Getenv("DB_DSN"),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: os.Getenv("FIREBASE_CREDENTIALS_FILE"),
			CredentialsJSON: os.Getenv("FIREBASE_CREDENTIALS_JSON"),
			ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		},
		Mandao: MandaoConfig{
			APIURL:        strings.TrimRight(getenv("MANDAO_API_URL", "https://mandao-server.onrender.com/api"), "/"),
			WebhookSecret: getenv("MANDAO_WEBHOOK_SECRET", "webhook-secret"),
			Timeout:       getenvDuration("MANDAO_TIMEOUT", 10*time.Second),
		},
	}
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getenvInt(key string, fallback int, min int, max int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if min > 0 && v < min {
		return fallback
	}
	if max > 0 && v > max {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
