package config

import (
	"errors"  // Validation errors
	"fmt"     // Error wrapping
	"os"      // For environment variables
	"strconv" // For string to number conversion
	"strings" // For list parsing
	"time"    // Durations

	"credit_ledger/internal/domain" // Default balance

	"github.com/joho/godotenv" // For loading .env files
	"gopkg.in/yaml.v3"         // Optional config file
)

// Supported store backends
const (
	BackendMySQL     = "mysql"
	BackendFirestore = "firestore"
)

// Supported user auth modes
const (
	AuthNone     = "none"
	AuthJWT      = "jwt"
	AuthFirebase = "firebase"
)

// Config holds the application configuration
type Config struct {
	AppPort         string        `yaml:"app_port"`          // Application port
	IsProd          bool          `yaml:"is_prod"`           // Is production environment
	LogLevel        string        `yaml:"log_level"`         // logrus level name
	CORSOrigins     []string      `yaml:"cors_origins"`      // Allowed browser origins, "*" for any
	StoreBackend    string        `yaml:"store_backend"`     // mysql or firestore
	DBUser          string        `yaml:"db_user"`           // Database user
	DBPassword      string        `yaml:"db_password"`       // Database password
	DBHost          string        `yaml:"db_host"`           // Database host
	DBPort          string        `yaml:"db_port"`           // Database port
	DBName          string        `yaml:"db_name"`           // Database name
	FirebaseProject string        `yaml:"firebase_project"`  // Firebase project ID
	FirebaseCreds   string        `yaml:"firebase_creds"`    // Service account JSON path
	RedisAddr       string        `yaml:"redis_addr"`        // Redis server address, empty disables the cache
	RedisPass       string        `yaml:"redis_pass"`        // Redis password
	RedisDB         int           `yaml:"redis_db"`          // Redis database number
	BalanceCacheTTL time.Duration `yaml:"balance_cache_ttl"` // How long a balance read stays cached
	DefaultBalance  float64       `yaml:"default_balance"`   // Credit granted to new users
	AuthMode        string        `yaml:"auth_mode"`         // none, jwt or firebase
	JWTSecret       string        `yaml:"jwt_secret"`        // JWT secret key
	JWTTTL          time.Duration `yaml:"jwt_ttl"`           // Lifetime of issued user tokens
	AdminKeyHash    string        `yaml:"admin_key_hash"`    // bcrypt hash of the operator key
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`    // Mutations per second per user, 0 disables
	RateLimitBurst  int           `yaml:"rate_limit_burst"`  // Burst size for the limiter
	ChatAPIKey      string        `yaml:"chat_api_key"`      // Chat-completion API key, empty disables generation
	ChatBaseURL     string        `yaml:"chat_base_url"`     // OpenAI compatible base URL
	ChatModel       string        `yaml:"chat_model"`        // Model name sent with each request
	ChatMaxTokens   int           `yaml:"chat_max_tokens"`   // Upper bound for max_tokens
	ChatTokenPrice  float64       `yaml:"chat_token_price"`  // Credits charged per token
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		AppPort:         "3001",
		LogLevel:        "info",
		CORSOrigins:     []string{"*"},
		StoreBackend:    BackendMySQL,
		DBHost:          "127.0.0.1",
		DBPort:          "3306",
		BalanceCacheTTL: 30 * time.Second,
		DefaultBalance:  domain.DefaultBalance,
		AuthMode:        AuthNone,
		JWTTTL:          24 * time.Hour,
		RateLimitBurst:  5,
		ChatBaseURL:     "https://api.openai.com/v1",
		ChatModel:       "gpt-4o-mini",
		ChatMaxTokens:   4096,
		ChatTokenPrice:  0.01,
	}
}

// LoadConfig loads configuration from an optional YAML file and environment variables
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	cfg := Default()
	// YAML file gives the base values
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	// Environment variables win over the file
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.AppPort, "APP_PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.StoreBackend, "STORE_BACKEND")
	setString(&c.DBUser, "DB_USER")
	setString(&c.DBPassword, "DB_PASSWORD")
	setString(&c.DBHost, "DB_HOST")
	setString(&c.DBPort, "DB_PORT")
	setString(&c.DBName, "DB_NAME")
	setString(&c.FirebaseProject, "FIREBASE_PROJECT_ID")
	setString(&c.FirebaseCreds, "FIREBASE_CREDENTIALS_FILE")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPass, "REDIS_PASS")
	setString(&c.AuthMode, "AUTH_MODE")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.AdminKeyHash, "ADMIN_KEY_HASH")
	setString(&c.ChatAPIKey, "CHAT_API_KEY")
	setString(&c.ChatBaseURL, "CHAT_BASE_URL")
	setString(&c.ChatModel, "CHAT_MODEL")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("IS_PROD"); v != "" {
		c.IsProd = v == "true"
	}
	// Numeric values fail loudly instead of silently falling back
	var errs []error
	errs = append(errs, setInt(&c.RedisDB, "REDIS_DB"))
	errs = append(errs, setInt(&c.RateLimitBurst, "RATE_LIMIT_BURST"))
	errs = append(errs, setInt(&c.ChatMaxTokens, "CHAT_MAX_TOKENS"))
	errs = append(errs, setFloat(&c.DefaultBalance, "DEFAULT_BALANCE"))
	errs = append(errs, setFloat(&c.RateLimitRPS, "RATE_LIMIT_RPS"))
	errs = append(errs, setFloat(&c.ChatTokenPrice, "CHAT_TOKEN_PRICE"))
	errs = append(errs, setDuration(&c.BalanceCacheTTL, "BALANCE_CACHE_TTL"))
	errs = append(errs, setDuration(&c.JWTTTL, "JWT_TTL"))
	return errors.Join(errs...)
}

// Validate checks the combination of settings
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMySQL:
		if c.DBName == "" {
			return errors.New("DB_NAME is required for the mysql backend")
		}
	case BackendFirestore:
		if c.FirebaseProject == "" {
			return errors.New("FIREBASE_PROJECT_ID is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.AuthMode {
	case AuthNone:
	case AuthJWT:
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case AuthFirebase:
		if c.FirebaseProject == "" {
			return errors.New("FIREBASE_PROJECT_ID is required when AUTH_MODE=firebase")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	if c.DefaultBalance < 0 {
		return errors.New("DEFAULT_BALANCE must not be negative")
	}
	if c.ChatTokenPrice <= 0 {
		return errors.New("CHAT_TOKEN_PRICE must be positive")
	}
	if c.ChatMaxTokens < 1 {
		return errors.New("CHAT_MAX_TOKENS must be at least 1")
	}
	return nil
}

// DSN builds the MySQL Data Source Name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
