// Package config provides configuration for the chat widget and the
// storefront backend.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the shopchat configuration.
type Config struct {
	// Widget settings
	ServerURL       string // Backend WebSocket address the widget connects to
	Greeting        string // Bot message appended when the connection opens
	ErrorNotice     string // Bot message appended on transport errors
	CartUserID      string // Placeholder user id of the session cart
	DefaultCurrency string

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
	SendBuffer     int

	// Storefront backend settings
	WSPort      int    // External WebSocket port
	HTTPPort    int    // Internal HTTP port for /internal/send, /health
	CatalogPath string // YAML product catalog; empty uses the built-in one
	CartDBPath  string // SQLite DSN for sessions, carts and the message log
	PolicyPath  string // Rego cart policy; empty uses the built-in one

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerURL:       getEnv("SHOPCHAT_SERVER_URL", "ws://localhost:8090/ws"),
		Greeting:        getEnv("SHOPCHAT_GREETING", "¡Conectado! ¿En qué puedo ayudarte hoy? 👋"),
		ErrorNotice:     getEnv("SHOPCHAT_ERROR_NOTICE", "Error de conexión"),
		CartUserID:      getEnv("CART_USER_ID", "guest"),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "USD"),
		PingInterval:    getEnvDuration("WS_PING_INTERVAL_MS", 30000),
		WriteTimeout:    getEnvDuration("WS_WRITE_TIMEOUT_MS", 10000),
		ReadTimeout:     getEnvDuration("WS_READ_TIMEOUT_MS", 60000),
		MaxMessageSize:  int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		SendBuffer:      getEnvInt("WS_SEND_BUFFER", 256),
		WSPort:          getEnvInt("WS_PORT", 8090),
		HTTPPort:        getEnvInt("HTTP_PORT", 8091),
		CatalogPath:     getEnv("CATALOG_PATH", ""),
		CartDBPath:      getEnv("CART_DB", ":memory:"),
		PolicyPath:      getEnv("POLICY_PATH", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
