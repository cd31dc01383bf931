package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string      `env:"KAFKA_BROKERS" validate:"required,min=1,dive,required"`
	KafkaSourceTopic string        `env:"KAFKA_SOURCE_TOPIC" validate:"required"`
	KafkaSinkTopic   string        `env:"KAFKA_SINK_TOPIC" validate:"required"`
	KafkaGroupID     string        `env:"KAFKA_GROUP_ID" validate:"required"`
	HTTPAddr         string        `env:"HTTP_ADDR" validate:"required"`
	LogLevel         string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat        string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT"`

	BatchSize          int           `env:"BATCH_SIZE"`
	BatchFlushInterval time.Duration `env:"BATCH_FLUSH_INTERVAL"`

	// Feature schema and model artifacts.
	SchemaPath      string `env:"SCHEMA_PATH" validate:"required"`
	ModelPath       string `env:"MODEL_PATH" validate:"required"`
	SchemaCacheSize int    `env:"SCHEMA_CACHE_SIZE" validate:"min=1"`

	// Prediction recorder (Postgres).
	DatabaseURL     string        `env:"DATABASE_URL" validate:"required_if=RecorderEnabled true"`
	RecorderEnabled bool          `env:"RECORDER_ENABLED"`
	RecorderTimeout time.Duration `env:"RECORDER_TIMEOUT" validate:"gt=0"`
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; it never
// overrides variables already set in the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	recorderTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("RECORDER_TIMEOUT", "2s"))
	if err != nil {
		return nil, errors.New("invalid RECORDER_TIMEOUT")
	}

	cacheSize, err := strconv.Atoi(sharedcfg.EnvOrDefault("SCHEMA_CACHE_SIZE", "16"))
	if err != nil {
		return nil, errors.New("invalid SCHEMA_CACHE_SIZE")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	recorderEnabled := databaseURL != ""
	if v := os.Getenv("RECORDER_ENABLED"); v != "" {
		recorderEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "inference-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "climate-predictions"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "climate-predictor"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		SchemaPath:      sharedcfg.EnvOrDefault("SCHEMA_PATH", "data/feature_schema.json"),
		ModelPath:       sharedcfg.EnvOrDefault("MODEL_PATH", "data/model.json"),
		SchemaCacheSize: cacheSize,

		DatabaseURL:     databaseURL,
		RecorderEnabled: recorderEnabled,
		RecorderTimeout: recorderTimeout,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks the populated struct and reports failures by environment key.
func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", envKey(fe.StructField()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

var envKeys = func() map[string]string {
	keys := make(map[string]string)
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if k := f.Tag.Get("env"); k != "" {
			keys[f.Name] = k
		}
	}
	return keys
}()

func envKey(field string) string {
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	if k, ok := envKeys[field]; ok {
		return k
	}
	return field
}
