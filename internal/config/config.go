package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kasharian/internal/core"
)

type Config struct {
	// HTTP Server
	Port           string
	TrustedProxies []string

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	SpreadsheetID      string
	SummarySheetName   string
	ExpensesSheetName  string
	ServiceAccountJSON string
	ServiceAccountFile string

	// Session
	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string
	ExtraUsers        string
	CookieSecure      bool

	// Ledger
	CashPolicy string
	CacheTTL   time.Duration

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/kasharian.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kasharian"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_sync"),

		SpreadsheetID:      getEnv("SPREADSHEET_ID", getEnv("GOOGLE_SPREADSHEET_ID", "")),
		SummarySheetName:   getEnv("SUMMARY_SHEET_NAME", "summary"),
		ExpensesSheetName:  getEnv("EXPENSES_SHEET_NAME", "expenses"),
		ServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		ServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		AdminUsername:     getEnv("ADMIN_USERNAME", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		ExtraUsers:        getEnv("EXTRA_USERS", ""),
		CookieSecure:      getEnvBool("COOKIE_SECURE", true),

		CashPolicy: getEnv("CASH_POLICY", string(core.CashReset)),
		CacheTTL:   getEnvDuration("CACHE_TTL", 30*time.Second),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate checks the configuration of the HTTP server and returns every
// problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sheets", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		errors = append(errors, c.sqliteErrors()...)
		errors = append(errors, c.amqpErrors()...)
	case "sheets":
		errors = append(errors, c.sheetsErrors()...)
	}

	if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET is required and must be at least 16 characters")
	}
	if strings.TrimSpace(c.AdminUsername) == "" {
		errors = append(errors, "ADMIN_USERNAME is required")
	}
	if !strings.HasPrefix(c.AdminPasswordHash, "$2") {
		errors = append(errors, "ADMIN_PASSWORD_HASH must be a bcrypt hash")
	}

	errors = append(errors, c.ledgerErrors()...)

	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	return combine(errors)
}

// ValidateWorker checks the configuration of the sync worker, which needs
// both the SQLite store and a spreadsheet.
func (c *Config) ValidateWorker() error {
	var errors []string

	errors = append(errors, c.sqliteErrors()...)
	errors = append(errors, c.sheetsErrors()...)
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the sync worker")
	}
	errors = append(errors, c.amqpErrors()...)
	errors = append(errors, c.ledgerErrors()...)

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	return combine(errors)
}

func (c *Config) sqliteErrors() []string {
	if c.SQLiteDBPath == "" {
		return []string{"SQLite database path cannot be empty when using sqlite backend"}
	}
	dir := filepath.Dir(c.SQLiteDBPath)
	if dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return []string{fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err)}
			}
		}
	}
	return nil
}

func (c *Config) amqpErrors() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

func (c *Config) sheetsErrors() []string {
	var errors []string
	if c.SpreadsheetID == "" {
		errors = append(errors, "SPREADSHEET_ID is required when using sheets backend")
	}
	if c.SummarySheetName == "" || c.ExpensesSheetName == "" {
		errors = append(errors, "sheet names cannot be empty")
	} else if c.SummarySheetName == c.ExpensesSheetName {
		errors = append(errors, fmt.Sprintf("summary and expenses sheets must differ, both are '%s'", c.SummarySheetName))
	}
	if c.ServiceAccountJSON == "" && c.ServiceAccountFile == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
	}
	if c.ServiceAccountJSON == "" && c.ServiceAccountFile != "" {
		if _, err := os.Stat(c.ServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("service account file does not exist: %s", c.ServiceAccountFile))
		}
	}
	return errors
}

func (c *Config) ledgerErrors() []string {
	var errors []string
	if _, err := core.ParseCashPolicy(c.CashPolicy); err != nil {
		errors = append(errors, fmt.Sprintf("invalid CASH_POLICY '%s': must be reset or carry", c.CashPolicy))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL '%s'", c.LogLevel))
	}
	return errors
}

// Policy returns the parsed cash policy. Call after Validate.
func (c *Config) Policy() core.CashPolicy {
	p, err := core.ParseCashPolicy(c.CashPolicy)
	if err != nil {
		return core.CashReset
	}
	return p
}

func combine(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
