package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Seed     SeedConfig     `json:"seed"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver"`
	URL             string        `json:"url"`
	Name            string        `json:"name"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	MaxRetries      int           `json:"max_retries"`
	RetryBackoff    time.Duration `json:"retry_backoff"`
}

type RedisConfig struct {
	Addr         string        `json:"addr"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type SeedConfig struct {
	DemoEmail string `json:"demo_email"`
}

// settingsFile mirrors the subset of Config a local settings file may supply.
// Environment variables always win over file values.
type settingsFile struct {
	Database struct {
		Driver string `json:"driver"`
		URL    string `json:"url"`
		Name   string `json:"name"`
	} `json:"database"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       *int   `json:"db"`
	} `json:"redis"`
	Seed struct {
		DemoEmail string `json:"demo_email"`
	} `json:"seed"`
}

const defaultSettingsPath = "settings.json"

// LoadConfig resolves each value as: environment variable, else local
// settings file, else built-in default. The database URL and name have no
// default; loading fails when neither source supplies them.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(getEnv("SETTINGS_FILE", defaultSettingsPath))
}

func LoadConfigFrom(settingsPath string) (*Config, error) {
	var fs settingsFile
	if data, err := os.ReadFile(settingsPath); err == nil {
		if err := json.Unmarshal(data, &fs); err != nil {
			return nil, fmt.Errorf("settings file %s is not valid JSON: %w", settingsPath, err)
		}
	}

	redisDB := 0
	if fs.Redis.DB != nil {
		redisDB = *fs.Redis.DB
	}

	config := &Config{
		Database: DatabaseConfig{
			Driver:          getEnv("DATABASE_DRIVER", orDefault(fs.Database.Driver, "postgres")),
			URL:             getEnv("DATABASE_URL", fs.Database.URL),
			Name:            getEnv("DATABASE_NAME", fs.Database.Name),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			MaxRetries:      getEnvAsInt("DB_MAX_RETRIES", 3),
			RetryBackoff:    getEnvAsDuration("DB_RETRY_BACKOFF", 50*time.Millisecond),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", orDefault(fs.Redis.Addr, "localhost:6379")),
			Password:     getEnv("REDIS_PASSWORD", fs.Redis.Password),
			DB:           getEnvAsInt("REDIS_DB", redisDB),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Seed: SeedConfig{
			DemoEmail: getEnv("SEED_DEMO_EMAIL", orDefault(fs.Seed.DemoEmail, "demo@example.com")),
		},
	}

	if config.Database.URL == "" {
		return nil, fmt.Errorf("database URL is required: set DATABASE_URL or database.url in %s", settingsPath)
	}
	if config.Database.Name == "" {
		return nil, fmt.Errorf("database name is required: set DATABASE_NAME or database.name in %s", settingsPath)
	}
	if config.Database.Driver != "postgres" && config.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}
