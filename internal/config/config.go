package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Logger     LoggerConfig
	Database   DatabaseConfig
	Kubernetes KubernetesConfig
	Prometheus PrometheusConfig
	Pipeline   PipelineConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type LoggerConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type KubernetesConfig struct {
	Enabled        bool
	InCluster      bool
	KubeConfigPath string
	DefaultNS      string
}

type PrometheusConfig struct {
	Enabled bool
	URL     string
	Timeout time.Duration
}

// PipelineConfig bounds the live sessions and the training workers.
type PipelineConfig struct {
	QueueSize        int
	PredictionBuffer int
	SubscriberBuffer int
	IdleTimeout      time.Duration
	FlushInterval    time.Duration
	FlushBatch       int
	StopTimeout      time.Duration
	EvalFolds        int
	EvalWorkers      int
	MaxUploadBytes   int64
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "json")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "eeg_decoder")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("K8S_ENABLED", false)
	v.SetDefault("K8S_IN_CLUSTER", false)
	v.SetDefault("K8S_KUBECONFIG", "")
	v.SetDefault("K8S_DEFAULT_NAMESPACE", "eeg-decoders")

	v.SetDefault("PROMETHEUS_ENABLED", false)
	v.SetDefault("PROMETHEUS_URL", "http://localhost:9090")
	v.SetDefault("PROMETHEUS_TIMEOUT", "10s")

	v.SetDefault("PIPELINE_QUEUE_SIZE", 64)
	v.SetDefault("PIPELINE_PREDICTION_BUFFER", 1024)
	v.SetDefault("PIPELINE_SUBSCRIBER_BUFFER", 64)
	v.SetDefault("PIPELINE_IDLE_TIMEOUT", "5m")
	v.SetDefault("PIPELINE_FLUSH_INTERVAL", "1s")
	v.SetDefault("PIPELINE_FLUSH_BATCH", 500)
	v.SetDefault("PIPELINE_STOP_TIMEOUT", "10s")
	v.SetDefault("PIPELINE_EVAL_FOLDS", 5)
	v.SetDefault("PIPELINE_EVAL_WORKERS", 4)
	v.SetDefault("PIPELINE_MAX_UPLOAD_BYTES", 64<<20)

	// Env
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("LOGGER_LEVEL"),
			Format: v.GetString("LOGGER_FORMAT"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: duration(v, "DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Kubernetes: KubernetesConfig{
			Enabled:        v.GetBool("K8S_ENABLED"),
			InCluster:      v.GetBool("K8S_IN_CLUSTER"),
			KubeConfigPath: v.GetString("K8S_KUBECONFIG"),
			DefaultNS:      v.GetString("K8S_DEFAULT_NAMESPACE"),
		},
		Prometheus: PrometheusConfig{
			Enabled: v.GetBool("PROMETHEUS_ENABLED"),
			URL:     v.GetString("PROMETHEUS_URL"),
			Timeout: duration(v, "PROMETHEUS_TIMEOUT", 10*time.Second),
		},
		Pipeline: PipelineConfig{
			QueueSize:        v.GetInt("PIPELINE_QUEUE_SIZE"),
			PredictionBuffer: v.GetInt("PIPELINE_PREDICTION_BUFFER"),
			SubscriberBuffer: v.GetInt("PIPELINE_SUBSCRIBER_BUFFER"),
			IdleTimeout:      duration(v, "PIPELINE_IDLE_TIMEOUT", 5*time.Minute),
			FlushInterval:    duration(v, "PIPELINE_FLUSH_INTERVAL", time.Second),
			FlushBatch:       v.GetInt("PIPELINE_FLUSH_BATCH"),
			StopTimeout:      duration(v, "PIPELINE_STOP_TIMEOUT", 10*time.Second),
			EvalFolds:        v.GetInt("PIPELINE_EVAL_FOLDS"),
			EvalWorkers:      v.GetInt("PIPELINE_EVAL_WORKERS"),
			MaxUploadBytes:   v.GetInt64("PIPELINE_MAX_UPLOAD_BYTES"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// duration falls back to def when the value does not parse.
func duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port))
	}
	if c.Pipeline.QueueSize <= 0 {
		errs = append(errs, errors.New("PIPELINE_QUEUE_SIZE must be positive"))
	}
	if c.Pipeline.PredictionBuffer <= 0 {
		errs = append(errs, errors.New("PIPELINE_PREDICTION_BUFFER must be positive"))
	}
	if c.Pipeline.FlushBatch <= 0 {
		errs = append(errs, errors.New("PIPELINE_FLUSH_BATCH must be positive"))
	}
	if c.Pipeline.EvalFolds < 2 {
		errs = append(errs, errors.New("PIPELINE_EVAL_FOLDS must be at least 2"))
	}
	if c.Pipeline.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("PIPELINE_MAX_UPLOAD_BYTES must be positive"))
	}
	return errors.Join(errs...)
}
