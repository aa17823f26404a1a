// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Admission AdmissionConfig `mapstructure:"admission"`
	League    LeagueConfig    `mapstructure:"league"`
	Missions  MissionsConfig  `mapstructure:"missions"`
	Queue     QueueConfig     `mapstructure:"queue"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// KafkaConfig holds the activity ingest and notification topics.
type KafkaConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Brokers           []string      `mapstructure:"brokers"`
	ActivityTopic     string        `mapstructure:"activity_topic"`
	GroupID           string        `mapstructure:"group_id"`
	NotificationTopic string        `mapstructure:"notification_topic"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
	HandleAttempts    int           `mapstructure:"handle_attempts"`
}

// AdmissionConfig holds activity admission rules.
type AdmissionConfig struct {
	MinHeartRate float64       `mapstructure:"min_heart_rate"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
}

// LeagueConfig holds weekly rotation configuration.
type LeagueConfig struct {
	PromoteCount  int    `mapstructure:"promote_count"`
	RelegateCount int    `mapstructure:"relegate_count"`
	Timezone      string `mapstructure:"timezone"`
	// RotationWeekday is an English weekday name, RotationTime is HH:MM:SS.
	RotationWeekday string `mapstructure:"rotation_weekday"`
	RotationTime    string `mapstructure:"rotation_time"`
	// Categories seeds an empty ladder, top tier first.
	Categories []string `mapstructure:"categories"`
}

// MissionsConfig holds mission finalization configuration.
type MissionsConfig struct {
	Timezone       string `mapstructure:"timezone"`
	FinalizeHour   int    `mapstructure:"finalize_hour"`
	FinalizeMinute int    `mapstructure:"finalize_minute"`
}

// QueueConfig holds the side-effect queue configuration.
type QueueConfig struct {
	Workers     int           `mapstructure:"workers"`
	Buffer      int           `mapstructure:"buffer"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Weekday parses RotationWeekday.
func (l *LeagueConfig) Weekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(l.RotationWeekday))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid rotation weekday %q", l.RotationWeekday)
}

// Clock parses RotationTime into hour, minute and second.
func (l *LeagueConfig) Clock() (hour, min, sec int, err error) {
	t, err := time.Parse("15:04:05", strings.TrimSpace(l.RotationTime))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid rotation time %q: %w", l.RotationTime, err)
	}
	return t.Hour(), t.Minute(), t.Second(), nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Admission.LockTimeout <= 0 {
		errs = append(errs, errors.New("admission.lock_timeout must be positive"))
	}
	if c.League.PromoteCount < 0 || c.League.RelegateCount < 0 {
		errs = append(errs, errors.New("league thresholds must not be negative"))
	}
	if _, err := c.League.Weekday(); err != nil {
		errs = append(errs, err)
	}
	if _, _, _, err := c.League.Clock(); err != nil {
		errs = append(errs, err)
	}
	if c.Missions.FinalizeHour < 0 || c.Missions.FinalizeHour > 23 ||
		c.Missions.FinalizeMinute < 0 || c.Missions.FinalizeMinute > 59 {
		errs = append(errs, errors.New("missions finalize time out of range"))
	}
	if c.Queue.Workers <= 0 || c.Queue.MaxAttempts <= 0 {
		errs = append(errs, errors.New("queue workers and max_attempts must be positive"))
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
		}
		if c.Kafka.ActivityTopic == "" || c.Kafka.GroupID == "" {
			errs = append(errs, errors.New("kafka.activity_topic and kafka.group_id are required"))
		}
	}
	return errors.Join(errs...)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, KAFKA_ENABLED, LEAGUE_PROMOTE_COUNT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fitness")
	v.SetDefault("database.name", "fitness")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.activity_topic", "activities.ingested")
	v.SetDefault("kafka.group_id", "fitness-league-engine")
	v.SetDefault("kafka.notification_topic", "notifications")
	v.SetDefault("kafka.poll_timeout", "5s")
	v.SetDefault("kafka.handle_attempts", 3)

	v.SetDefault("admission.min_heart_rate", 80)
	v.SetDefault("admission.lock_timeout", "10s")

	v.SetDefault("league.promote_count", 3)
	v.SetDefault("league.relegate_count", 3)
	v.SetDefault("league.timezone", "America/Bogota")
	v.SetDefault("league.rotation_weekday", "sunday")
	v.SetDefault("league.rotation_time", "23:59:59")
	v.SetDefault("league.categories", []string{"Diamond", "Gold", "Silver", "Bronze"})

	v.SetDefault("missions.timezone", "America/Bogota")
	v.SetDefault("missions.finalize_hour", 0)
	v.SetDefault("missions.finalize_minute", 5)

	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.buffer", 1024)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff", "500ms")
}
