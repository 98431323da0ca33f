package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/120m4n/infovis/internal/logging"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
// The YAML parser also reads the JSON config files used by older deployments.
var DefaultConfigPaths = []string{
	"config.json",
	"config.yaml",
	"config.yml",
}

type Config struct {
	ListeningPort int `koanf:"listeningPort"`

	// MongoDB
	MongoURI               string        `koanf:"mongoURI"`
	DBHost                 string        `koanf:"dbHost"`
	DBPort                 int           `koanf:"dbPort"`
	DBUser                 string        `koanf:"dbUser"`
	DBPassword             string        `koanf:"dbPwd"`
	AuthDB                 string        `koanf:"authDB"`
	DatabaseName           string        `koanf:"dbName"`
	CollectionName         string        `koanf:"collectionName"`
	DistrictsCollection    string        `koanf:"districtsCollection"`
	ServerSelectionTimeout time.Duration `koanf:"serverSelectionTimeout"`

	// Result limits
	QueryLimitCount int `koanf:"queryLimitCount"`
	HighlightLimit  int `koanf:"highlightLimit"`

	// NATS admin channel, disabled when NatsURL is empty
	NatsURL     string `koanf:"natsURL"`
	NatsSubject string `koanf:"natsSubject"`

	LogLevel      string        `koanf:"logLevel"`
	LogFormat     string        `koanf:"logFormat"`
	StatsInterval time.Duration `koanf:"statsInterval"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ListeningPort:          8080,
		DBHost:                 "localhost",
		DBPort:                 27017,
		AuthDB:                 "admin",
		DatabaseName:           "infovis",
		CollectionName:         "accidents",
		DistrictsCollection:    "municipi",
		ServerSelectionTimeout: 10 * time.Second,
		QueryLimitCount:        500,
		HighlightLimit:         20,
		NatsSubject:            "infovis.admin",
		LogLevel:               "info",
		LogFormat:              "json",
		StatsInterval:          120 * time.Second,
	}
}

// envKeys maps environment variables to config keys. Variables not listed
// here are ignored.
var envKeys = map[string]string{
	"LISTENING_PORT":           "listeningPort",
	"MONGO_URI":                "mongoURI",
	"DB_HOST":                  "dbHost",
	"DB_PORT":                  "dbPort",
	"DB_USER":                  "dbUser",
	"DB_PASSWORD":              "dbPwd",
	"AUTH_DB":                  "authDB",
	"DATABASE_NAME":            "dbName",
	"COLLECTION_NAME":          "collectionName",
	"DISTRICTS_COLLECTION":     "districtsCollection",
	"SERVER_SELECTION_TIMEOUT": "serverSelectionTimeout",
	"QUERY_LIMIT_COUNT":        "queryLimitCount",
	"HIGHLIGHT_LIMIT":          "highlightLimit",
	"NATS_URL":                 "natsURL",
	"NATS_SUBJECT":             "natsSubject",
	"LOG_LEVEL":                "logLevel",
	"LOG_FORMAT":               "logFormat",
	"STATS_INTERVAL":           "statsInterval",
}

// LoadConfig layers defaults, an optional config file and the environment
// (including a .env file when present).
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.Debug().Msg("No .env file found, using environment and defaults")
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("error loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("error loading config file %s: %w", path, err)
		}
		logging.Info().Str("path", path).Msg("Loaded config file")
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(name string) string {
	return envKeys[strings.ToUpper(name)]
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	if c.ListeningPort <= 0 || c.ListeningPort > 65535 {
		return fmt.Errorf("invalid listeningPort %d", c.ListeningPort)
	}
	if c.MongoURI == "" && (c.DBPort <= 0 || c.DBPort > 65535) {
		return fmt.Errorf("invalid dbPort %d", c.DBPort)
	}
	if c.DatabaseName == "" {
		return fmt.Errorf("dbName must not be empty")
	}
	if c.CollectionName == "" {
		return fmt.Errorf("collectionName must not be empty")
	}
	if c.DistrictsCollection == "" {
		return fmt.Errorf("districtsCollection must not be empty")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.ListeningPort)
}
