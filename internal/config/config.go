// Package config handles configuration loading and validation for the outreach engine.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the outreach engine
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Limits   LimitsConfig   `yaml:"limits"`
	Workers  WorkersConfig  `yaml:"workers"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Browser  BrowserConfig  `yaml:"browser"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
	API      APIConfig      `yaml:"api"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// EngineConfig holds the scheduler cadence and action state machine tuning
type EngineConfig struct {
	ExecutionIntervalMin time.Duration `yaml:"execution_interval_min" validate:"gt=0"`
	ExecutionIntervalMax time.Duration `yaml:"execution_interval_max" validate:"gtefield=ExecutionIntervalMin"`
	EnrollmentInterval   time.Duration `yaml:"enrollment_interval" validate:"gt=0"`
	HealthInterval       time.Duration `yaml:"health_interval" validate:"gt=0"`
	StatsInterval        time.Duration `yaml:"stats_interval" validate:"gt=0"`
	BatchSize            int           `yaml:"batch_size" validate:"gt=0"`

	MaxRetries  int           `yaml:"max_retries" validate:"gte=0"`
	BackoffBase time.Duration `yaml:"backoff_base" validate:"gt=0"`
	BackoffMax  time.Duration `yaml:"backoff_max" validate:"gtefield=BackoffBase"`

	StartStagger time.Duration `yaml:"start_stagger" validate:"gte=0"`
	StepDelayMin time.Duration `yaml:"step_delay_min" validate:"gte=0"`
	StepDelayMax time.Duration `yaml:"step_delay_max" validate:"gtefield=StepDelayMin"`
	DefaultDelay time.Duration `yaml:"default_delay" validate:"gt=0"`

	CampaignDailyCap int `yaml:"campaign_daily_cap" validate:"gt=0"`

	InviteFollowupAfter  time.Duration `yaml:"invite_followup_after" validate:"gt=0"`
	MessageFollowupAfter time.Duration `yaml:"message_followup_after" validate:"gt=0"`

	HealthWindow              time.Duration `yaml:"health_window" validate:"gt=0"`
	HealthMinSample           int           `yaml:"health_min_sample" validate:"gt=0"`
	HealthFailureRate         float64       `yaml:"health_failure_rate" validate:"gt=0,lte=1"`
	HealthConsecutiveFailures int           `yaml:"health_consecutive_failures" validate:"gt=0"`

	// Campaigns handled concurrently within one enrollment/health/stats tick
	TickConcurrency int `yaml:"tick_concurrency" validate:"gt=0"`
}

// LimitsConfig holds per-account daily limits for each action method
type LimitsConfig struct {
	DailyInvites      int `yaml:"daily_invites" validate:"gt=0"`
	DailyMessages     int `yaml:"daily_messages" validate:"gt=0"`
	DailyViews        int `yaml:"daily_views" validate:"gt=0"`
	DailyFollows      int `yaml:"daily_follows" validate:"gt=0"`
	DailyLikes        int `yaml:"daily_likes" validate:"gt=0"`
	DailyEndorsements int `yaml:"daily_endorsements" validate:"gt=0"`
	DailyEmails       int `yaml:"daily_emails" validate:"gt=0"`
	DailyTotal        int `yaml:"daily_total" validate:"gt=0"`
}

// WorkersConfig holds worker pool settings
type WorkersConfig struct {
	MaxWorkers           int           `yaml:"max_workers" validate:"gt=0"`
	MaxIdleTime          time.Duration `yaml:"max_idle_time" validate:"gt=0"`
	ActionTimeout        time.Duration `yaml:"action_timeout" validate:"gt=0"`
	AcquireRetryInterval time.Duration `yaml:"acquire_retry_interval" validate:"gt=0"`
	SweepInterval        time.Duration `yaml:"sweep_interval" validate:"gt=0"`
}

// ProxyConfig holds egress allocation settings
type ProxyConfig struct {
	Bypass         bool   `yaml:"bypass"`
	IssueThreshold int    `yaml:"issue_threshold" validate:"gt=0"`
	DefaultRegion  string `yaml:"default_region"`
	// RequireProxy refuses to start a worker without a proxy when not bypassed
	RequireProxy bool `yaml:"require_proxy"`
}

// ScheduleConfig holds human-like timing windows
type ScheduleConfig struct {
	// Window used when an action is pushed to the next day by a rate limit
	RescheduleStartHour int `yaml:"reschedule_start_hour" validate:"gte=0,lte=23"`
	RescheduleEndHour   int `yaml:"reschedule_end_hour" validate:"gte=0,lte=24,gtfield=RescheduleStartHour"`

	// Delays used by the browser driver between UI steps
	MinStepDelayMs   int     `yaml:"min_step_delay_ms" validate:"gt=0"`
	MaxStepDelayMs   int     `yaml:"max_step_delay_ms" validate:"gtefield=MinStepDelayMs"`
	MinTypingDelayMs int     `yaml:"min_typing_delay_ms" validate:"gt=0"`
	MaxTypingDelayMs int     `yaml:"max_typing_delay_ms" validate:"gtefield=MinTypingDelayMs"`
	TypoProbability  float64 `yaml:"typo_probability" validate:"gte=0,lte=1"`
	EnableOvershoot  bool    `yaml:"enable_overshoot"`

	// Hours in which the browser driver may act on an account
	BusinessHoursOnly bool `yaml:"business_hours_only"`
	WorkStartHour     int  `yaml:"work_start_hour" validate:"gte=0,lte=23"`
	WorkEndHour       int  `yaml:"work_end_hour" validate:"gte=0,lte=24,gtfield=WorkStartHour"`
	WorkWeekends      bool `yaml:"work_weekends"`
}

// BrowserConfig holds browser settings
type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	UserDataRoot      string        `yaml:"user_data_root"`
	ViewportWidth     int           `yaml:"viewport_width" validate:"gt=0"`
	ViewportHeight    int           `yaml:"viewport_height" validate:"gt=0"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" validate:"gt=0"`
}

// StorageConfig holds storage settings
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" validate:"required"`
}

// NotifyConfig holds outbound event sink settings
type NotifyConfig struct {
	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`
	SentryDSN    string `yaml:"sentry_dsn"`
	Buffer       int    `yaml:"buffer" validate:"gte=0"`
}

// APIConfig holds the status HTTP surface settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			ExecutionIntervalMin:      5 * time.Minute,
			ExecutionIntervalMax:      10 * time.Minute,
			EnrollmentInterval:        8 * time.Hour,
			HealthInterval:            2 * time.Hour,
			StatsInterval:             12 * time.Hour,
			BatchSize:                 20,
			MaxRetries:                3,
			BackoffBase:               15 * time.Minute,
			BackoffMax:                time.Hour,
			StartStagger:              2 * time.Minute,
			StepDelayMin:              4 * time.Hour,
			StepDelayMax:              24 * time.Hour,
			DefaultDelay:              24 * time.Hour,
			CampaignDailyCap:          100,
			InviteFollowupAfter:       72 * time.Hour,
			MessageFollowupAfter:      120 * time.Hour,
			HealthWindow:              24 * time.Hour,
			HealthMinSample:           10,
			HealthFailureRate:         0.5,
			HealthConsecutiveFailures: 5,
			TickConcurrency:           4,
		},
		Limits: LimitsConfig{
			DailyInvites:      100,
			DailyMessages:     100,
			DailyViews:        250,
			DailyFollows:      100,
			DailyLikes:        100,
			DailyEndorsements: 100,
			DailyEmails:       100,
			DailyTotal:        500,
		},
		Workers: WorkersConfig{
			MaxWorkers:           5,
			MaxIdleTime:          30 * time.Minute,
			ActionTimeout:        60 * time.Second,
			AcquireRetryInterval: 5 * time.Second,
			SweepInterval:        time.Minute,
		},
		Proxy: ProxyConfig{
			IssueThreshold: 5,
			DefaultRegion:  "us",
		},
		Schedule: ScheduleConfig{
			RescheduleStartHour: 8,
			RescheduleEndHour:   12,
			MinStepDelayMs:      500,
			MaxStepDelayMs:      2000,
			MinTypingDelayMs:    50,
			MaxTypingDelayMs:    200,
			TypoProbability:     0.03,
			EnableOvershoot:     true,
			BusinessHoursOnly:   true,
			WorkStartHour:       9,
			WorkEndHour:         18,
		},
		Browser: BrowserConfig{
			Headless:          true,
			UserDataRoot:      "./data/browser",
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			NavigationTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DatabasePath: "./data/outreach.db",
		},
		Notify: NotifyConfig{
			RedisChannel: "outreach-events",
			Buffer:       256,
		},
		API: APIConfig{
			Addr: ":8085",
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads configuration from YAML file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.loadEnvOverrides()

	return cfg, nil
}

// loadEnvOverrides applies environment variable overrides to config
func (c *Config) loadEnvOverrides() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}

	if v := os.Getenv("HEADLESS"); v != "" {
		c.Browser.Headless = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("BUSINESS_HOURS_ONLY"); v != "" {
		c.Schedule.BusinessHoursOnly = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}

	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers.MaxWorkers = n
		}
	}

	if v := os.Getenv("PROXY_BYPASS"); v != "" {
		c.Proxy.Bypass = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Notify.RedisAddr = v
	}

	if v := os.Getenv("SENTRY_DSN"); v != "" {
		c.Notify.SentryDSN = v
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		c.API.Addr = v
		c.API.Enabled = true
	}
}
