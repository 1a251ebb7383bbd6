package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	App      AppConfig
	Device   DeviceConfig
	Engine   EngineConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
	Timezone string
}

// DeviceConfig holds connection defaults for the terminals.
type DeviceConfig struct {
	DefaultIP      string
	DefaultPort    int
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	CatchupRetry   time.Duration
	RescanInterval time.Duration
	LockPoll       time.Duration
}

// EngineConfig holds the reconciliation policy parameters. The punctuality
// bands and the past-cutoff status label are product decisions, not fixed
// rules; defaults mirror the deployed monitor.
type EngineConfig struct {
	OnTimeEndHour        int
	LateCutoffHour       int
	CutoffStatus         string
	DebounceSeconds      int
	CatchupWindowDays    int
	CacheRefreshInterval time.Duration
	DispatchConcurrency  int
	AbsentSweepTime      string
	AbsentSweepOffDay    time.Weekday
}

func Load() (*Config, error) {
	// .env is optional; a packaged service may carry all settings in the
	// environment already.
	_ = godotenv.Load()

	config := &Config{}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "smartstock"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	appPort, err := strconv.Atoi(getEnv("APP_PORT", "5050"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("APP_TIMEZONE", "Local"),
	}

	devicePort, err := strconv.Atoi(getEnv("ZK_PORT", "4370"))
	if err != nil {
		return nil, fmt.Errorf("invalid ZK_PORT: %w", err)
	}

	config.Device = DeviceConfig{
		DefaultIP:      getEnv("ZK_IP", "192.168.100.201"),
		DefaultPort:    devicePort,
		ConnectTimeout: getEnvDuration("ZK_CONNECT_TIMEOUT", 30*time.Second),
		ReconnectDelay: getEnvDuration("ZK_RECONNECT_DELAY", 10*time.Second),
		CatchupRetry:   getEnvDuration("ZK_CATCHUP_RETRY", 30*time.Second),
		RescanInterval: getEnvDuration("DEVICE_RESCAN_INTERVAL", 30*time.Second),
		LockPoll:       getEnvDuration("DEVICE_LOCK_POLL", 2*time.Second),
	}

	onTimeEnd, err := strconv.Atoi(getEnv("PUNCTUALITY_ONTIME_END_HOUR", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUNCTUALITY_ONTIME_END_HOUR: %w", err)
	}
	lateCutoff, err := strconv.Atoi(getEnv("PUNCTUALITY_LATE_CUTOFF_HOUR", "9"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUNCTUALITY_LATE_CUTOFF_HOUR: %w", err)
	}
	debounce, err := strconv.Atoi(getEnv("DEBOUNCE_SECONDS", "120"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEBOUNCE_SECONDS: %w", err)
	}
	catchupDays, err := strconv.Atoi(getEnv("CATCHUP_WINDOW_DAYS", "7"))
	if err != nil {
		return nil, fmt.Errorf("invalid CATCHUP_WINDOW_DAYS: %w", err)
	}
	dispatch, err := strconv.Atoi(getEnv("DISPATCH_CONCURRENCY", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_CONCURRENCY: %w", err)
	}

	offDay, err := parseWeekday(getEnv("ABSENT_SWEEP_OFF_DAY", "Friday"))
	if err != nil {
		return nil, err
	}

	config.Engine = EngineConfig{
		OnTimeEndHour:        onTimeEnd,
		LateCutoffHour:       lateCutoff,
		CutoffStatus:         getEnv("PUNCTUALITY_CUTOFF_STATUS", "LATE"),
		DebounceSeconds:      debounce,
		CatchupWindowDays:    catchupDays,
		CacheRefreshInterval: getEnvDuration("CACHE_REFRESH_INTERVAL", 30*time.Minute),
		DispatchConcurrency:  dispatch,
		AbsentSweepTime:      getEnv("ABSENT_SWEEP_TIME", "09:00"),
		AbsentSweepOffDay:    offDay,
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Engine.OnTimeEndHour < 0 || c.Engine.OnTimeEndHour > 23 {
		return fmt.Errorf("PUNCTUALITY_ONTIME_END_HOUR must be between 0 and 23")
	}
	if c.Engine.LateCutoffHour < c.Engine.OnTimeEndHour {
		return fmt.Errorf("PUNCTUALITY_LATE_CUTOFF_HOUR must not precede the on-time band end")
	}
	if c.Engine.CutoffStatus != "LATE" && c.Engine.CutoffStatus != "ABSENT" {
		return fmt.Errorf("PUNCTUALITY_CUTOFF_STATUS must be LATE or ABSENT")
	}
	if c.Engine.DebounceSeconds <= 0 {
		return fmt.Errorf("DEBOUNCE_SECONDS must be positive")
	}
	if c.Engine.DispatchConcurrency <= 0 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be positive")
	}
	if _, err := time.Parse("15:04", c.Engine.AbsentSweepTime); err != nil {
		return fmt.Errorf("invalid ABSENT_SWEEP_TIME: %w", err)
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string. Empty when no
// password is configured so the caller can start in degraded mode instead
// of dialing with known-bad credentials.
func (c *Config) DatabaseURL() string {
	if c.Database.Password == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Location resolves the configured timezone, falling back to the system zone.
func (c *Config) Location() *time.Location {
	if c.App.Timezone == "" || c.App.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid ABSENT_SWEEP_OFF_DAY: %q", name)
}
