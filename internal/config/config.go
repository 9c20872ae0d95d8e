package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string

	KafkaBrokers      []string
	NotificationTopic string
	ApprovalTopic     string
	KafkaGroup        string

	PGDSN string

	RequestTTL       time.Duration
	FuzzyThreshold   float64
	ProximityKm      float64
	ScoreFloor       float64
	GeocodeTimeout   time.Duration
	GeocodeEndpoints []string
	SweepInterval    time.Duration

	PushEndpoint string
	PushToken    string

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:          ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		NotificationTopic: "notification-events",
		ApprovalTopic:     "approval-events",
		KafkaGroup:        "carpool-approvals",
		RequestTTL:        24 * time.Hour,
		FuzzyThreshold:    0.8,
		ProximityKm:       5,
		ScoreFloor:        25,
		GeocodeTimeout:    2 * time.Second,
		SweepInterval:     time.Minute,
		LogLevel:          "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.NotificationTopic, "NOTIFICATION_TOPIC")
	setStringFromEnv(&cfg.ApprovalTopic, "APPROVAL_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setDurationFromEnv(&cfg.RequestTTL, "REQUEST_TTL", &errs)
	setFloatFromEnv(&cfg.FuzzyThreshold, "FUZZY_THRESHOLD", &errs)
	setFloatFromEnv(&cfg.ProximityKm, "PROXIMITY_KM", &errs)
	setFloatFromEnv(&cfg.ScoreFloor, "SCORE_FLOOR", &errs)
	setDurationFromEnv(&cfg.GeocodeTimeout, "GEOCODE_TIMEOUT", &errs)
	if eps := os.Getenv("GEOCODE_ENDPOINTS"); eps != "" {
		cfg.GeocodeEndpoints = splitAndTrim(eps)
	}
	setDurationFromEnv(&cfg.SweepInterval, "AUTO_APPROVE_SWEEP_INTERVAL", &errs)

	setStringFromEnv(&cfg.PushEndpoint, "PUSH_ENDPOINT")
	cfg.PushToken = os.Getenv("PUSH_TOKEN")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.FuzzyThreshold <= 0 || cfg.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("FUZZY_THRESHOLD must be in (0,1]"))
	}
	if cfg.RequestTTL <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TTL must be > 0"))
	}
	if cfg.ProximityKm <= 0 {
		errs = append(errs, fmt.Errorf("PROXIMITY_KM must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
