// Package config загружает настройки cronlock из окружения.
//
// Источник: переменные окружения, дополненные файлом .env (если есть).
// Флаги командной строки перекрывают значения из окружения в пакете cli.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Хранилища блокировок.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config: настройки процесса.
type Config struct {
	// Store: postgres, redis или memory (только для одного процесса).
	Store       string
	DBURL       string
	RedisURL    string
	RedisPrefix string

	// JobsFile: YAML с определениями задач.
	JobsFile string

	// HolderID: идентификатор процесса. Пусто: host:pid:uuid8.
	HolderID string

	// HTTPPort: порт /healthz и /metrics в режиме serve.
	HTTPPort int

	// RabbitMQURL: брокер для оповещений. Пусто: оповещения только в логах.
	RabbitMQURL string

	ReleaseAttempts int
	ReleaseBackoff  time.Duration

	// CleanupInterval: период очистки просроченных блокировок в serve (0: выключено).
	CleanupInterval time.Duration

	// CleanupBeforeAcquire: удалять просроченные записи перед каждым acquire.
	CleanupBeforeAcquire bool

	// Timezone: часовой пояс cron-расписаний.
	Timezone string
}

// Load читает .env (если есть) и переменные окружения.
// Ошибка только для значений, которые не разбираются. Согласованность
// проверяет Validate после того, как флаги CLI перекрыли окружение.
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Store:                getEnv("LOCK_STORE", StorePostgres),
		DBURL:                getEnv("DB_URL", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisPrefix:          getEnv("REDIS_PREFIX", "cronlock"),
		JobsFile:             getEnv("JOBS_FILE", "jobs.yaml"),
		HolderID:             getEnv("HOLDER_ID", ""),
		HTTPPort:             getEnvAsInt("HTTP_PORT", 9090, &errs),
		RabbitMQURL:          getEnv("RABBITMQ_URL", ""),
		ReleaseAttempts:      getEnvAsInt("RELEASE_ATTEMPTS", 3, &errs),
		ReleaseBackoff:       getEnvAsDuration("RELEASE_BACKOFF", 500*time.Millisecond, &errs),
		CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", 15*time.Minute, &errs),
		CleanupBeforeAcquire: getEnvAsBool("CLEANUP_BEFORE_ACQUIRE", false, &errs),
		Timezone:             getEnv("TZ_SCHEDULE", "UTC"),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("LOCK_STORE must be one of %s, %s, %s; got %q", StorePostgres, StoreRedis, StoreMemory, c.Store)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.ReleaseAttempts < 1 {
		return fmt.Errorf("RELEASE_ATTEMPTS must be at least 1, got %d", c.ReleaseAttempts)
	}
	if c.ReleaseBackoff <= 0 {
		return fmt.Errorf("RELEASE_BACKOFF must be positive, got %s", c.ReleaseBackoff)
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must not be negative, got %s", c.CleanupInterval)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location возвращает часовой пояс расписаний.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ_SCHEDULE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]error) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool, errs *[]error) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return value
}
