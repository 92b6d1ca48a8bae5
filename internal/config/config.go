package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. All knobs have
// documented defaults; nothing is read ad hoc mid-algorithm.
type Config struct {
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Phases     PhasesConfig     `yaml:"phases" mapstructure:"phases"`
	Thresholds ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the artifact and raw-submission directories.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// StoreConfig configures the assessment index backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AnthropicConfig holds batch provider settings.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	AnalysisModel  string `yaml:"analysis_model" mapstructure:"analysis_model"`
	SynthesisModel string `yaml:"synthesis_model" mapstructure:"synthesis_model"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// BatchConfig configures batch submission and polling.
type BatchConfig struct {
	PollIntervalSecs int     `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollCapSecs      int     `yaml:"poll_cap_secs" mapstructure:"poll_cap_secs"`
	PollTimeoutSecs  int     `yaml:"poll_timeout_secs" mapstructure:"poll_timeout_secs"`
	SubmitRatePerSec float64 `yaml:"submit_rate_per_sec" mapstructure:"submit_rate_per_sec"`
	SubmitBurst      int     `yaml:"submit_burst" mapstructure:"submit_burst"`
}

// PollInterval returns the configured poll interval.
func (b BatchConfig) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalSecs) * time.Second
}

// PollCap returns the configured maximum poll interval.
func (b BatchConfig) PollCap() time.Duration {
	return time.Duration(b.PollCapSecs) * time.Second
}

// PollTimeout returns the configured poll budget.
func (b BatchConfig) PollTimeout() time.Duration {
	return time.Duration(b.PollTimeoutSecs) * time.Second
}

// RetryConfig configures provider retry budgets.
type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts" mapstructure:"max_attempts"`
	RateLimitAttempts int `yaml:"rate_limit_attempts" mapstructure:"rate_limit_attempts"`
	InitialBackoffMs  int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// PhasesConfig holds per-phase wall-clock budgets in seconds, keyed by
// phase name (phase0, phase1, phase1_5, ...).
type PhasesConfig struct {
	TimeoutSecs map[string]int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the wall-clock budget for phase, falling back to one hour.
func (p PhasesConfig) Timeout(phase string) time.Duration {
	if secs, ok := p.TimeoutSecs[phase]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Hour
}

// ThresholdsConfig holds the data-quality knobs called out as open
// questions in the source design; all carry documented defaults.
type ThresholdsConfig struct {
	// MinAnswersFraction: per-category insufficient-data threshold as a
	// fraction of the category's registered question count (floor 3).
	MinAnswersFraction float64 `yaml:"min_answers_fraction" mapstructure:"min_answers_fraction"`
	// MinSufficientCategories: minimum categories with sufficient data
	// required before synthesis generation may start.
	MinSufficientCategories int `yaml:"min_sufficient_categories" mapstructure:"min_sufficient_categories"`
	// MaxFallbackRate: at or above this fallback fraction the run is
	// flagged for manual review instead of proceeding silently.
	MaxFallbackRate float64 `yaml:"max_fallback_rate" mapstructure:"max_fallback_rate"`
	// MinLeveragePoints required by the post-generation synthesis gate.
	MinLeveragePoints int `yaml:"min_leverage_points" mapstructure:"min_leverage_points"`
	// MinNarrativeWords required by the post-generation synthesis gate.
	MinNarrativeWords int `yaml:"min_narrative_words" mapstructure:"min_narrative_words"`
}

// ServerConfig configures the intake webhook server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ASSESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "./data")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "./data/assessment.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.analysis_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.synthesis_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("batch.poll_interval_secs", 30)
	v.SetDefault("batch.poll_cap_secs", 60)
	v.SetDefault("batch.poll_timeout_secs", 1800)
	v.SetDefault("batch.submit_rate_per_sec", 2.0)
	v.SetDefault("batch.submit_burst", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.rate_limit_attempts", 6)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("phases.timeout_secs", map[string]int{
		"phase0":   120,
		"phase1":   3600,
		"phase1_5": 3600,
		"phase2":   1800,
		"phase3":   1800,
		"phase4":   1800,
		"phase5":   120,
	})
	v.SetDefault("thresholds.min_answers_fraction", 0.5)
	v.SetDefault("thresholds.min_sufficient_categories", 8)
	v.SetDefault("thresholds.max_fallback_rate", 0.30)
	v.SetDefault("thresholds.min_leverage_points", 3)
	v.SetDefault("thresholds.min_narrative_words", 150)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
