package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	HTTPAddr    string
	Store       string
	DatabaseURL string

	LogLevel string
	LogDev   bool

	ServerURL string
	PrefsPath string
	TimeLimit int

	// CreateRate is sessions per second per client IP.
	CreateRate  float64
	CreateBurst int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

// Load reads the environment, after merging a .env file when one exists.
// Variables already set win over the file.
func Load() Config {
	_ = godotenv.Load()

	store := strings.ToLower(getenv("ABLUKA_STORE", StoreMemory))
	if store != StorePostgres {
		store = StoreMemory
	}

	return Config{
		HTTPAddr:    getenv("ABLUKA_HTTP_ADDR", ":8080"),
		Store:       store,
		DatabaseURL: getenv("ABLUKA_DATABASE_URL", ""),
		LogLevel:    getenv("ABLUKA_LOG_LEVEL", "info"),
		LogDev:      getenvBool("ABLUKA_LOG_DEV", false),
		ServerURL:   getenv("ABLUKA_SERVER_URL", "http://localhost:8080"),
		PrefsPath:   getenv("ABLUKA_PREFS_PATH", "abluka.prefs"),
		TimeLimit:   max(0, getenvInt("ABLUKA_TIME_LIMIT", 0)),
		CreateRate:  getenvFloat("ABLUKA_CREATE_RATE", 1),
		CreateBurst: getenvInt("ABLUKA_CREATE_BURST", 3),
	}
}
