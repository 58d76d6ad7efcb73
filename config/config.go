package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file if present. Missing file is fine in production,
// where everything comes from real environment variables.
func LoadEnv() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env")
	}
}

func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// AgentConfig configures the scan-station process.
type AgentConfig struct {
	Port       string
	WebOrigin  string
	DataPath   string // bbolt file for the local queue + registry snapshot
	BackendURL string // base URL of inventoryd

	SyncInterval  time.Duration
	SyncBatchSize int
	MaxRetries    int

	PollInitialDelay time.Duration
	PollInterval     time.Duration
	RegistryTTL      time.Duration

	FlushDebounce time.Duration
	ProbeInterval time.Duration
	RPCTimeout    time.Duration
}

func LoadAgent() AgentConfig {
	return AgentConfig{
		Port:       get("PORT", "3002"),
		WebOrigin:  get("WEB_ORIGIN", "http://localhost:5173"),
		DataPath:   get("AGENT_DATA_PATH", "scanstation.db"),
		BackendURL: get("BACKEND_URL", "http://127.0.0.1:3001"),

		SyncInterval:  getDuration("SYNC_INTERVAL", 2*time.Second),
		SyncBatchSize: getInt("SYNC_BATCH_SIZE", 10),
		MaxRetries:    getInt("SYNC_MAX_RETRIES", 5),

		PollInitialDelay: getDuration("REGISTRY_INITIAL_DELAY", 3*time.Second),
		PollInterval:     getDuration("REGISTRY_POLL_INTERVAL", 30*time.Second),
		RegistryTTL:      getDuration("REGISTRY_TTL", 10*time.Minute),

		FlushDebounce: getDuration("STORE_FLUSH_DEBOUNCE", 400*time.Millisecond),
		ProbeInterval: getDuration("PROBE_INTERVAL", 5*time.Second),
		RPCTimeout:    getDuration("RPC_TIMEOUT", 15*time.Second),
	}
}

// BackendConfig configures the inventoryd process.
type BackendConfig struct {
	Port       string
	WebOrigin  string
	RedisAddr  string
	RedisPwd   string
	SummaryTTL time.Duration

	AppVersion    string
	InventoryOpen bool
	MinValidDate  string // RFC 3339; agents purge local records older than this
}

func LoadBackend() BackendConfig {
	return BackendConfig{
		Port:       get("PORT", "3001"),
		WebOrigin:  get("WEB_ORIGIN", "http://localhost:5173"),
		RedisAddr:  get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:   os.Getenv("REDIS_PASSWORD"),
		SummaryTTL: getDuration("SUMMARY_CACHE_TTL", 10*time.Second),

		AppVersion:    get("APP_VERSION", "1"),
		InventoryOpen: get("INVENTORY_OPEN", "true") == "true",
		MinValidDate:  os.Getenv("MIN_VALID_DATE"),
	}
}
