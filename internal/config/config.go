package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App           App           `mapstructure:"app"`
	AI            AI            `mapstructure:"ai"`
	Search        Search        `mapstructure:"search"`
	Breaker       Breaker       `mapstructure:"breaker"`
	Triangulation Triangulation `mapstructure:"triangulation"`
	Gates         Gates         `mapstructure:"gates"`
	Backfill      Backfill      `mapstructure:"backfill"`
	Trust         Trust         `mapstructure:"trust"`
	Run           Run           `mapstructure:"run"`
}

// App holds general application configuration
type App struct {
	LogLevel   string `mapstructure:"log_level"`
	GlobalSeed string `mapstructure:"global_seed"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	Dimensions     int32  `mapstructure:"dimensions"`
	Timeout        string `mapstructure:"timeout"`
}

// Search holds search provider configuration
type Search struct {
	Providers      string           `mapstructure:"providers"`        // Comma-separated enable list; empty = all registered
	EnableFreeAPIs bool             `mapstructure:"enable_free_apis"` // Keyless vertical providers
	MaxResults     int              `mapstructure:"max_results"`
	Timeout        string           `mapstructure:"timeout"`
	SerpAPI        SerpAPIConfig    `mapstructure:"serpapi"`
	DuckDuckGo     DuckDuckGoConfig `mapstructure:"duckduckgo"`
}

// SerpAPIConfig holds SerpAPI configuration
type SerpAPIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	CircuitBreaker bool   `mapstructure:"circuit_breaker"`
	MaxCallsPerRun int    `mapstructure:"max_calls_per_run"`
	TripOn429      bool   `mapstructure:"trip_on_429"`
}

// DuckDuckGoConfig holds DuckDuckGo configuration
type DuckDuckGoConfig struct {
	RateLimit string `mapstructure:"rate_limit"`
}

// Breaker holds per-provider circuit breaker configuration
type Breaker struct {
	Threshold         int `mapstructure:"threshold"`           // Consecutive failures before the circuit opens
	CooldownSec       int `mapstructure:"cooldown_sec"`        // Open-circuit duration
	InitialBackoffSec int `mapstructure:"initial_backoff_sec"` // First 429 backoff
	MaxBackoffSec     int `mapstructure:"max_backoff_sec"`     // 429 backoff cap
}

// Triangulation holds paraphrase-clustering configuration
type Triangulation struct {
	ParaThreshold  float64 `mapstructure:"para_threshold"`  // Cosine-distance threshold for paraphrase linkage
	BroadThreshold float64 `mapstructure:"broad_threshold"` // Relaxed threshold for broad topics
}

// Gates holds gate-profile configuration
type Gates struct {
	Profile           string `mapstructure:"profile"` // default or discovery
	WriteReportOnFail bool   `mapstructure:"write_report_on_fail"`
	WriteDraftOnFail  bool   `mapstructure:"write_draft_on_fail"`
	BackfillOnFail    bool   `mapstructure:"backfill_on_fail"`
}

// Backfill holds backfill-controller configuration
type Backfill struct {
	MaxAttempts     int     `mapstructure:"max_attempts"`
	MinTimeFraction float64 `mapstructure:"min_time_fraction"` // Remaining-budget fraction required to start an attempt
}

// Trust holds trusted-domain configuration
type Trust struct {
	TrustedDomains string `mapstructure:"trusted_domains"` // Comma list, additive to the built-in allowlist
}

// Run holds per-run execution configuration
type Run struct {
	OutputDir      string `mapstructure:"output_dir"`
	WallTimeoutSec int    `mapstructure:"wall_timeout_sec"`
	MinCards       int    `mapstructure:"min_cards"` // Backfill trigger floor, never a gate on its own
}

var globalConfig *Config

// Load reads configuration from .env, an optional config file, environment
// variables, and defaults, in ascending precedence of env over file.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".dossier")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the cached configuration. Intended for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.global_seed", "")

	// AI defaults
	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.dimensions", 768)
	viper.SetDefault("ai.gemini.timeout", "30s")

	// Search defaults
	viper.SetDefault("search.providers", "")
	viper.SetDefault("search.enable_free_apis", true)
	viper.SetDefault("search.max_results", 8)
	viper.SetDefault("search.timeout", "20s")
	viper.SetDefault("search.serpapi.circuit_breaker", true)
	viper.SetDefault("search.serpapi.max_calls_per_run", 6)
	viper.SetDefault("search.serpapi.trip_on_429", true)
	viper.SetDefault("search.duckduckgo.rate_limit", "2s")

	// Circuit breaker defaults
	viper.SetDefault("breaker.threshold", 3)
	viper.SetDefault("breaker.cooldown_sec", 600)
	viper.SetDefault("breaker.initial_backoff_sec", 5)
	viper.SetDefault("breaker.max_backoff_sec", 300)

	// Triangulation defaults
	viper.SetDefault("triangulation.para_threshold", 0.40)
	viper.SetDefault("triangulation.broad_threshold", 0.30)

	// Gate defaults
	viper.SetDefault("gates.profile", "default")
	viper.SetDefault("gates.write_report_on_fail", true)
	viper.SetDefault("gates.write_draft_on_fail", false)
	viper.SetDefault("gates.backfill_on_fail", true)

	// Backfill defaults
	viper.SetDefault("backfill.max_attempts", 3)
	viper.SetDefault("backfill.min_time_fraction", 0.20)

	// Trust defaults
	viper.SetDefault("trust.trusted_domains", "")

	// Run defaults. wall_timeout_sec 0 defers to the depth profile
	// (1800s standard); WALL_TIMEOUT_SEC set explicitly wins over it.
	viper.SetDefault("run.output_dir", "outputs")
	viper.SetDefault("run.wall_timeout_sec", 0)
	viper.SetDefault("run.min_cards", 24)
}

// bindEnvironmentVariables maps the documented environment surface onto
// viper keys, supporting historical aliases where they exist.
func bindEnvironmentVariables() {
	bindEnvKeys("app.global_seed", []string{"RA_GLOBAL_SEED"})
	bindEnvKeys("app.log_level", []string{"LOG_LEVEL"})
	bindEnvKeys("run.wall_timeout_sec", []string{"WALL_TIMEOUT_SEC"})

	bindEnvKeys("search.providers", []string{"SEARCH_PROVIDERS"})
	bindEnvKeys("search.enable_free_apis", []string{"ENABLE_FREE_APIS"})

	bindEnvKeys("breaker.threshold", []string{"PROVIDER_CB_THRESHOLD"})
	bindEnvKeys("breaker.cooldown_sec", []string{"PROVIDER_CB_COOLDOWN"})
	bindEnvKeys("breaker.initial_backoff_sec", []string{"PROVIDER_INITIAL_BACKOFF"})
	bindEnvKeys("breaker.max_backoff_sec", []string{"PROVIDER_MAX_BACKOFF"})

	bindEnvKeys("search.serpapi.api_key", []string{
		"SERPAPI_API_KEY",
		"SERPAPI_KEY",
	})
	bindEnvKeys("search.serpapi.circuit_breaker", []string{"SERPAPI_CIRCUIT_BREAKER"})
	bindEnvKeys("search.serpapi.max_calls_per_run", []string{"SERPAPI_MAX_CALLS_PER_RUN"})
	bindEnvKeys("search.serpapi.trip_on_429", []string{"SERPAPI_TRIP_ON_429"})

	bindEnvKeys("triangulation.para_threshold", []string{"TRI_PARA_THRESHOLD"})

	bindEnvKeys("gates.profile", []string{"GATES_PROFILE"})
	bindEnvKeys("gates.write_report_on_fail", []string{"WRITE_REPORT_ON_FAIL"})
	bindEnvKeys("gates.write_draft_on_fail", []string{"WRITE_DRAFT_ON_FAIL"})
	bindEnvKeys("gates.backfill_on_fail", []string{"BACKFILL_ON_FAIL"})

	bindEnvKeys("trust.trusted_domains", []string{"TRUSTED_DOMAINS"})

	// Gemini API key - support multiple formats
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
}

// bindEnvKeys binds multiple environment variable names to a config key
func bindEnvKeys(configKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if err := viper.BindEnv(configKey, envKey); err != nil {
			fmt.Printf("Warning: Failed to bind %s to %s: %v\n", envKey, configKey, err)
		}
	}
}

// validateConfig checks ranges that would otherwise fail deep in the pipeline
func validateConfig(config *Config) error {
	if config.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker.threshold must be >= 1, got %d", config.Breaker.Threshold)
	}
	if t := config.Triangulation.ParaThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("triangulation.para_threshold must be in (0,1), got %v", t)
	}
	switch config.Gates.Profile {
	case "default", "discovery":
	default:
		return fmt.Errorf("gates.profile must be default or discovery, got %q", config.Gates.Profile)
	}
	return nil
}

// Seed returns the global RNG seed. RA_GLOBAL_SEED accepts an integer or an
// arbitrary string; strings hash to a stable integer so runs are repeatable.
func (c *Config) Seed() int64 {
	s := strings.TrimSpace(c.App.GlobalSeed)
	if s == "" {
		return 42
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

// TrustedDomains returns the env-extended trusted domain list, lowercased.
func (c *Config) TrustedDomains() []string {
	if strings.TrimSpace(c.Trust.TrustedDomains) == "" {
		return nil
	}
	parts := strings.Split(c.Trust.TrustedDomains, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if d := strings.ToLower(strings.TrimSpace(p)); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// EnabledProviders returns the SEARCH_PROVIDERS enable list, lowercased;
// nil means every registered provider is eligible.
func (c *Config) EnabledProviders() []string {
	if strings.TrimSpace(c.Search.Providers) == "" {
		return nil
	}
	parts := strings.Split(c.Search.Providers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if tag := strings.ToLower(strings.TrimSpace(p)); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// DepthProfile describes how aggressively a run collects evidence.
type DepthProfile struct {
	Expansions      int           // Maximum planner expansions
	HitsPerProvider int           // Result count requested per provider call
	EnrichWorkers   int           // Concurrent page fetches during enrichment
	WallTimeout     time.Duration // Default deadline when WALL_TIMEOUT_SEC is unset
	ExtraBackfill   int           // Additional backfill attempts beyond the default
}

// Profile returns the execution profile for a depth value; unknown depths
// fall back to standard.
func Profile(depth string) DepthProfile {
	switch depth {
	case "rapid":
		return DepthProfile{Expansions: 3, HitsPerProvider: 5, EnrichWorkers: 4, WallTimeout: 900 * time.Second}
	case "deep":
		return DepthProfile{Expansions: 5, HitsPerProvider: 10, EnrichWorkers: 8, WallTimeout: 2700 * time.Second, ExtraBackfill: 1}
	default:
		return DepthProfile{Expansions: 5, HitsPerProvider: 8, EnrichWorkers: 6, WallTimeout: 1800 * time.Second}
	}
}
