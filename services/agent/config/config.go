package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the agent service.
type Config struct {
	LogLevel string

	HTTPAddr    string
	MetricsAddr string

	CheckpointDB     string
	CheckpointMaxAge time.Duration
	SweepSchedule    string

	AuditDir string

	ScreenWidth  int
	ScreenHeight int

	MaxSteps  int
	StepDelay time.Duration

	MaxRetries int
	BaseDelay  time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration

	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration
	BreakerSuccessThreshold int

	BridgeURL     string
	OracleURL     string
	OracleTimeout time.Duration

	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel: v.GetString("log_level"),

		HTTPAddr:    v.GetString("http_addr"),
		MetricsAddr: v.GetString("metrics_addr"),

		CheckpointDB:     v.GetString("checkpoint_db"),
		CheckpointMaxAge: v.GetDuration("checkpoint_max_age"),
		SweepSchedule:    v.GetString("sweep_schedule"),

		AuditDir: v.GetString("audit_dir"),

		ScreenWidth:  v.GetInt("screen_width"),
		ScreenHeight: v.GetInt("screen_height"),

		MaxSteps:  v.GetInt("max_steps"),
		StepDelay: v.GetDuration("step_delay"),

		MaxRetries: v.GetInt("max_retries"),
		BaseDelay:  v.GetDuration("base_delay"),

		RateLimitRequests: v.GetInt("rate_limit_requests"),
		RateLimitWindow:   v.GetDuration("rate_limit_window"),

		BreakerFailureThreshold: v.GetInt("breaker_failure_threshold"),
		BreakerRecoveryTimeout:  v.GetDuration("breaker_recovery_timeout"),
		BreakerSuccessThreshold: v.GetInt("breaker_success_threshold"),

		BridgeURL:     v.GetString("bridge_url"),
		OracleURL:     v.GetString("oracle_url"),
		OracleTimeout: v.GetDuration("oracle_timeout"),

		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
