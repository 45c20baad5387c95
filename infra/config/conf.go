package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mstgnz/dukapi/infra/validate"
)

type CKey string

type Config struct {
	Validator *validator.Validate
	SecretKey string
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port            string
	AppURL          string
	FrontendBaseURL string
	Environment     string
	UploadDir       string
	AdminEmail      string
	JWTTTL          time.Duration

	DB         DBConfig
	Redis      RedisConfig
	Mail       MailConfig
	Mpesa      MpesaConfig
	OpenSearch OpenSearchConfig
	Reconcile  ReconcileConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Pass     string
	Name     string
	SSLMode  string
	TimeZone string
}

// DSN builds a lib/pq connection string
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Pass, c.Name, c.SSLMode, c.TimeZone)
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MailConfig struct {
	Username string
	Password string
	From     string
	Server   string
	Port     int
}

// Enabled reports whether enough SMTP settings are present to send mail
func (c MailConfig) Enabled() bool {
	return c.Server != "" && c.Username != "" && c.Password != ""
}

type MpesaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Environment    string
	PassKey        string
	ShortCode      string
	CallbackURL    string
	CallbackSecret string
	CallbackIPs    []string
}

type OpenSearchConfig struct {
	Enabled bool
	URL     string
	User    string
	Pass    string
}

type ReconcileConfig struct {
	Interval time.Duration
	After    time.Duration
	Batch    int
}

var (
	instance          *Config
	appConfigInstance *AppConfig
)

func App() *Config {
	if instance == nil {
		secret := GetEnv("JWT_SECRET", "")
		if secret == "" {
			// tokens do not survive a restart without JWT_SECRET
			secret = uuid.New().String()
		}
		instance = &Config{
			Validator: validate.New(),
			SecretKey: secret,
		}
	}
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:            GetEnv("APP_PORT", "8000"),
			AppURL:          GetEnv("APP_URL", "http://localhost:8000"),
			FrontendBaseURL: GetEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
			Environment:     GetEnv("ENVIRONMENT", "development"),
			UploadDir:       GetEnv("UPLOAD_DIR", "uploads"),
			AdminEmail:      GetEnv("ADMIN_EMAIL", ""),
			JWTTTL:          GetDurationEnv("JWT_TTL", 6*time.Hour),
			DB: DBConfig{
				Host:     GetEnv("DB_HOST", "localhost"),
				Port:     GetEnv("DB_PORT", "5432"),
				User:     GetEnv("DB_USER", "postgres"),
				Pass:     GetEnv("DB_PASS", ""),
				Name:     GetEnv("DB_NAME", "dukapi"),
				SSLMode:  GetEnv("DB_SSLMODE", "disable"),
				TimeZone: GetEnv("DB_ZONE", "UTC"),
			},
			Redis: RedisConfig{
				URL:          GetEnv("REDIS_URL", ""),
				PoolSize:     GetIntEnv("REDIS_POOL_SIZE", 10),
				MinIdleConns: GetIntEnv("REDIS_MIN_IDLE_CONNS", 2),
				DialTimeout:  GetDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
				ReadTimeout:  GetDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
				WriteTimeout: GetDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			},
			Mail: MailConfig{
				Username: GetEnv("MAIL_USERNAME", ""),
				Password: GetEnv("MAIL_PASSWORD", ""),
				From:     GetEnv("MAIL_FROM", ""),
				Server:   GetEnv("MAIL_SERVER", "smtp.gmail.com"),
				Port:     GetIntEnv("MAIL_PORT", 587),
			},
			Mpesa: MpesaConfig{
				ConsumerKey:    GetEnv("MPESA_LNMO_CONSUMER_KEY", ""),
				ConsumerSecret: GetEnv("MPESA_LNMO_CONSUMER_SECRET", ""),
				Environment:    GetEnv("MPESA_LNMO_ENVIRONMENT", "sandbox"),
				PassKey:        GetEnv("MPESA_LNMO_PASS_KEY", ""),
				ShortCode:      GetEnv("MPESA_LNMO_SHORT_CODE", ""),
				CallbackURL:    GetEnv("MPESA_CALLBACK_URL", ""),
				CallbackSecret: GetEnv("MPESA_CALLBACK_SECRET", ""),
				CallbackIPs:    GetListEnv("MPESA_CALLBACK_IPS"),
			},
			OpenSearch: OpenSearchConfig{
				Enabled: GetBoolEnv("OPENSEARCH_ENABLED", false),
				URL:     GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
				User:    GetEnv("OPENSEARCH_USER", ""),
				Pass:    GetEnv("OPENSEARCH_PASSWORD", ""),
			},
			Reconcile: ReconcileConfig{
				Interval: GetDurationEnv("RECONCILE_INTERVAL", time.Minute),
				After:    GetDurationEnv("RECONCILE_AFTER", 2*time.Minute),
				Batch:    GetIntEnv("RECONCILE_BATCH", 50),
			},
		}
	}
	return appConfigInstance
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv accepts Go duration strings ("90s", "6h")
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// GetListEnv splits a comma separated variable, dropping empty entries
func GetListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RandomToken returns a url-safe random string built from n random bytes
func RandomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
