// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Shadansa24/Inventory-app/internal/logger"
)

const (
	DefaultCSVPath    = "data/products.csv"
	DefaultSuppliers  = "data/suppliers.csv"
	DefaultSales      = "data/sales.csv"
	DefaultModel      = "gpt-4o-mini"
	DefaultLLMBaseURL = "https://api.openai.com/v1"
	DefaultDBPath     = "data/inventory-app.db"
)

// Settings is the resolved application configuration. Precedence, lowest first:
// built-in defaults, the optional TOML file named by CONFIG_FILE, then the
// environment (including values loaded from .env).
type Settings struct {
	CSVPath        string
	ReorderDefault int

	// SuppliersCSVPath and SalesCSVPath are optional companion files; a
	// missing file is skipped.
	SuppliersCSVPath string
	SalesCSVPath     string

	APIKey            string
	ModelName         string
	LLMBaseURL        string
	ChatTimeout       time.Duration
	ChatMaxRetries    int
	ChatRatePerMinute int

	ContextMaxChars int
	ContextMaxRows  int

	ServerHost          string
	ServerPort          string
	SessionTTL          time.Duration
	SessionSecureCookie bool

	DBPath          string
	CleanupInterval time.Duration
	AuditRetention  time.Duration

	AlertWatch          bool
	AlertWebhookURL     string
	EmailAlerts         bool
	EmailAlertRecipient string
	EmailAlertSender    string
	EmailMockMode       bool
}

// fileSettings mirrors the TOML layout. Pointers distinguish "absent" from zero.
// The API key is deliberately not readable from the file.
type fileSettings struct {
	CSVPath             *string `toml:"csv_path"`
	SuppliersCSVPath    *string `toml:"suppliers_csv_path"`
	SalesCSVPath        *string `toml:"sales_csv_path"`
	ReorderDefault      *int    `toml:"reorder_default"`
	ModelName           *string `toml:"model_name"`
	LLMBaseURL          *string `toml:"llm_base_url"`
	ChatTimeout         *string `toml:"chat_timeout"`
	ChatMaxRetries      *int    `toml:"chat_max_retries"`
	ChatRatePerMinute   *int    `toml:"chat_rate_per_minute"`
	ContextMaxChars     *int    `toml:"context_max_chars"`
	ContextMaxRows      *int    `toml:"context_max_rows"`
	ServerHost          *string `toml:"server_host"`
	ServerPort          *string `toml:"server_port"`
	SessionTTL          *string `toml:"session_ttl"`
	SessionSecureCookie *bool   `toml:"session_secure_cookie"`
	DBPath              *string `toml:"db_path"`
	CleanupInterval     *string `toml:"cleanup_interval"`
	AuditRetention      *string `toml:"audit_retention"`
	AlertWatch          *bool   `toml:"alert_watch"`
	AlertWebhookURL     *string `toml:"alert_webhook_url"`
	EmailAlerts         *bool   `toml:"email_alerts"`
	EmailRecipient      *string `toml:"email_alert_recipient"`
	EmailSender         *string `toml:"email_alert_sender"`
	EmailMockMode       *bool   `toml:"email_mock_mode"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		CSVPath:             DefaultCSVPath,
		SuppliersCSVPath:    DefaultSuppliers,
		SalesCSVPath:        DefaultSales,
		ReorderDefault:      0,
		ModelName:           DefaultModel,
		LLMBaseURL:          DefaultLLMBaseURL,
		ChatTimeout:         60 * time.Second,
		ChatMaxRetries:      1,
		ChatRatePerMinute:   10,
		ContextMaxChars:     6000,
		ContextMaxRows:      50,
		ServerHost:          "127.0.0.1",
		ServerPort:          "8501",
		SessionTTL:          2 * time.Hour,
		DBPath:              DefaultDBPath,
		CleanupInterval:     time.Hour,
		AuditRetention:      30 * 24 * time.Hour,
		EmailAlertRecipient: "admin@yourdomain.org",
		EmailAlertSender:    "alerts@yourdomain.org",
	}
}

//
// --- Utility Helpers ---
//

// Environment returns the ENVIRONMENT name, "dev" when unset.
func Environment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT")))
	if env == "" {
		env = "dev"
	}
	return env
}

// GetEnvBasedSetting reads BASE_<ENVIRONMENT> first (e.g. CSV_PATH_PROD), then BASE.
func GetEnvBasedSetting(base string) string {
	if v := os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(Environment()))); v != "" {
		return v
	}
	return os.Getenv(base)
}

func LogCurrentEnvironment() {
	if Environment() == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in %s environment", Environment())
	}
}

//
// --- Loaders ---
//

// LoadEnv reads a .env file (ENV_FILE overrides the name) into the process
// environment. A missing file is not an error.
func LoadEnv() {
	name := os.Getenv("ENV_FILE")
	if name == "" {
		name = ".env"
	}
	if err := godotenv.Load(name); err != nil {
		log.Printf("No %s file loaded (%v). Using system environment variables.", name, err)
		return
	}
	log.Printf("Loaded environment variables from %s", name)
}

// Load resolves Settings from defaults, CONFIG_FILE and the environment.
func Load() (Settings, error) {
	s := Defaults()

	if path := GetEnvBasedSetting("CONFIG_FILE"); path != "" {
		if err := s.applyFile(path); err != nil {
			return Settings{}, err
		}
	}
	if err := s.applyEnv(); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) applyFile(path string) error {
	var f fileSettings
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	setString(&s.CSVPath, f.CSVPath)
	setString(&s.SuppliersCSVPath, f.SuppliersCSVPath)
	setString(&s.SalesCSVPath, f.SalesCSVPath)
	setBool(&s.SessionSecureCookie, f.SessionSecureCookie)
	setInt(&s.ReorderDefault, f.ReorderDefault)
	setString(&s.ModelName, f.ModelName)
	setString(&s.LLMBaseURL, f.LLMBaseURL)
	setInt(&s.ChatMaxRetries, f.ChatMaxRetries)
	setInt(&s.ChatRatePerMinute, f.ChatRatePerMinute)
	setInt(&s.ContextMaxChars, f.ContextMaxChars)
	setInt(&s.ContextMaxRows, f.ContextMaxRows)
	setString(&s.ServerHost, f.ServerHost)
	setString(&s.ServerPort, f.ServerPort)
	setString(&s.DBPath, f.DBPath)
	setBool(&s.AlertWatch, f.AlertWatch)
	setString(&s.AlertWebhookURL, f.AlertWebhookURL)
	setBool(&s.EmailAlerts, f.EmailAlerts)
	setString(&s.EmailAlertRecipient, f.EmailRecipient)
	setString(&s.EmailAlertSender, f.EmailSender)
	setBool(&s.EmailMockMode, f.EmailMockMode)

	durations := []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"chat_timeout", f.ChatTimeout, &s.ChatTimeout},
		{"session_ttl", f.SessionTTL, &s.SessionTTL},
		{"cleanup_interval", f.CleanupInterval, &s.CleanupInterval},
		{"audit_retention", f.AuditRetention, &s.AuditRetention},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("config file %s: invalid %s %q: %w", path, d.key, *d.src, err)
		}
		*d.dst = v
	}
	return nil
}

func (s *Settings) applyEnv() error {
	var errs []error

	envString(&s.CSVPath, "CSV_PATH")
	envString(&s.SuppliersCSVPath, "SUPPLIERS_CSV_PATH")
	envString(&s.SalesCSVPath, "SALES_CSV_PATH")
	envString(&s.ModelName, "LLM_MODEL")
	envString(&s.LLMBaseURL, "LLM_BASE_URL")
	envString(&s.ServerHost, "SERVER_HOST")
	envString(&s.ServerPort, "SERVER_PORT")
	envString(&s.DBPath, "DB_PATH")
	envString(&s.AlertWebhookURL, "ALERT_WEBHOOK_URL")
	envString(&s.EmailAlertRecipient, "EMAIL_ALERT_RECIPIENT")
	envString(&s.EmailAlertSender, "EMAIL_ALERT_SENDER")

	// these may be set to an empty value on purpose to turn the feature off
	for key, dst := range map[string]*string{
		"DB_PATH":            &s.DBPath,
		"SUPPLIERS_CSV_PATH": &s.SuppliersCSVPath,
		"SALES_CSV_PATH":     &s.SalesCSVPath,
	} {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) == "" {
			*dst = ""
		}
	}

	s.APIKey = strings.TrimSpace(GetEnvBasedSetting("LLM_API_KEY"))
	if s.APIKey == "" {
		s.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	errs = append(errs,
		envInt(&s.ReorderDefault, "REORDER_DEFAULT"),
		envInt(&s.ChatMaxRetries, "CHAT_MAX_RETRIES"),
		envInt(&s.ChatRatePerMinute, "CHAT_RATE_PER_MINUTE"),
		envInt(&s.ContextMaxChars, "CONTEXT_MAX_CHARS"),
		envInt(&s.ContextMaxRows, "CONTEXT_MAX_ROWS"),
		envDuration(&s.ChatTimeout, "CHAT_TIMEOUT"),
		envDuration(&s.SessionTTL, "SESSION_TTL"),
		envDuration(&s.CleanupInterval, "CLEANUP_INTERVAL"),
		envDuration(&s.AuditRetention, "AUDIT_RETENTION"),
		envBool(&s.SessionSecureCookie, "SESSION_SECURE_COOKIE"),
		envBool(&s.AlertWatch, "ALERT_WATCH"),
		envBool(&s.EmailAlerts, "EMAIL_ALERTS"),
		envBool(&s.EmailMockMode, "EMAIL_MOCK_MODE"),
	)
	return errors.Join(errs...)
}

// Validate rejects settings the rest of the program cannot work with.
func (s Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.CSVPath) == "" {
		errs = append(errs, errors.New("csv_path must not be empty"))
	}
	if s.ReorderDefault < 0 {
		errs = append(errs, fmt.Errorf("reorder_default must be >= 0, got %d", s.ReorderDefault))
	}
	if s.ChatTimeout <= 0 {
		errs = append(errs, fmt.Errorf("chat_timeout must be positive, got %s", s.ChatTimeout))
	}
	if s.ChatMaxRetries < 0 || s.ChatMaxRetries > 3 {
		errs = append(errs, fmt.Errorf("chat_max_retries must be between 0 and 3, got %d", s.ChatMaxRetries))
	}
	if s.ChatRatePerMinute <= 0 {
		errs = append(errs, fmt.Errorf("chat_rate_per_minute must be positive, got %d", s.ChatRatePerMinute))
	}
	if s.ContextMaxChars < 200 {
		errs = append(errs, fmt.Errorf("context_max_chars must be at least 200, got %d", s.ContextMaxChars))
	}
	if s.ContextMaxRows <= 0 {
		errs = append(errs, fmt.Errorf("context_max_rows must be positive, got %d", s.ContextMaxRows))
	}
	if s.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session_ttl must be positive, got %s", s.SessionTTL))
	}
	if s.ModelName == "" {
		errs = append(errs, errors.New("model_name must not be empty"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (s Settings) Addr() string {
	return s.ServerHost + ":" + s.ServerPort
}

// LoggerConfig returns a logger.Config populated from the environment.
func LoggerConfig() logger.Config {
	logDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logDir == "" {
		logDir = "./logs"
	}

	logFormat := GetEnvBasedSetting("LOG_FILE_FORMAT")
	if logFormat == "" {
		logFormat = "server_%s.log"
	}

	timezone := os.Getenv("TIME_ZONE")
	if timezone == "" {
		timezone = "Local"
	}

	return logger.Config{
		LogsDirectory: logDir,
		LogFileFormat: logFormat,
		TimeZone:      timezone,
		Level:         logger.ParseLevel(os.Getenv("LOG_LEVEL")),
		Console:       os.Getenv("LOG_CONSOLE_ONLY") == "true",
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func envString(dst *string, key string) {
	if v := strings.TrimSpace(GetEnvBasedSetting(key)); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) error {
	v := strings.TrimSpace(GetEnvBasedSetting(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(GetEnvBasedSetting(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func envBool(dst *bool, key string) error {
	v := strings.TrimSpace(GetEnvBasedSetting(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}
