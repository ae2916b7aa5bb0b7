package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type DatabaseType string

const (
	MongoDB DatabaseType = "mongodb"
	SQLite  DatabaseType = "sqlite"
)

// Cache policy defaults. Successful lookups are remembered for a day;
// failed lookups only briefly, bounding how long a transient provider
// failure is incorrectly remembered.
const (
	DefaultSuccessCacheTTL     = 24 * time.Hour
	DefaultErrorCacheTTL       = 1 * time.Hour
	DefaultRequestCacheMaxSize = 100
)

type Config struct {
	JwtKey       []byte
	ListenAddr   string
	DatabaseType DatabaseType
	// MongoDB config
	MongoURI string
	// SQLite config
	SQLitePath string
	// Redis object cache (optional, empty disables the shared cache layer)
	RedisAddr string
	// ipstack provider
	IPStackAccessKey string
	IPStackUseHTTPS  bool
	// Cache policy
	SuccessCacheTTL     time.Duration
	ErrorCacheTTL       time.Duration
	RequestCacheMaxSize int
	// Admin credentials
	Username     string
	Password     string
	DatabaseName string
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		return nil, err
	}

	databaseName := os.Getenv("DATABASE_NAME")
	if databaseName == "" {
		return nil, fmt.Errorf("DATABASE_NAME is not set in .env file")
	}

	username := os.Getenv("LOGIN_USERNAME")
	password := os.Getenv("LOGIN_PASSWORD")
	if username == "" || password == "" {
		return nil, fmt.Errorf("LOGIN_USERNAME or LOGIN_PASSWORD is not set in .env file")
	}

	jwtSecret := os.Getenv("JWT_SECRET_KEY")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY is not set in .env file")
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":3020"
	}

	// Determine database type
	dbType := os.Getenv("DATABASE_TYPE")
	if dbType == "" {
		dbType = string(SQLite) // Default to SQLite
	}

	config := &Config{
		JwtKey:       []byte(jwtSecret),
		ListenAddr:   listenAddr,
		DatabaseType: DatabaseType(dbType),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		// The access key is deliberately not required at boot. A missing key
		// is classified as a configuration error at resolution time so that
		// operators see it on affected submissions instead of a dead process.
		IPStackAccessKey:    os.Getenv("IPSTACK_ACCESS_KEY"),
		IPStackUseHTTPS:     parseBool(os.Getenv("IPSTACK_USE_HTTPS"), false),
		SuccessCacheTTL:     parseDuration(os.Getenv("SUCCESS_CACHE_TTL"), DefaultSuccessCacheTTL),
		ErrorCacheTTL:       parseDuration(os.Getenv("ERROR_CACHE_TTL"), DefaultErrorCacheTTL),
		RequestCacheMaxSize: parseInt(os.Getenv("REQUEST_CACHE_MAX_SIZE"), DefaultRequestCacheMaxSize),
		Username:            username,
		Password:            password,
		DatabaseName:        databaseName,
	}

	// Configure based on database type
	if config.DatabaseType == MongoDB {
		mongoURI := os.Getenv("MONGODB_URI")
		if mongoURI == "" {
			return nil, fmt.Errorf("MONGODB_URI is not set in .env file")
		}
		config.MongoURI = mongoURI
	} else if config.DatabaseType == SQLite {
		sqlitePath := os.Getenv("SQLITE_PATH")
		if sqlitePath == "" {
			// Default to a data directory in the current directory
			sqlitePath = filepath.Join("data", fmt.Sprintf("%s.db", databaseName))
		}
		config.SQLitePath = sqlitePath
	} else {
		return nil, fmt.Errorf("unsupported DATABASE_TYPE: %s", dbType)
	}

	return config, nil
}

func parseBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
