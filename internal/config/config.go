// Package config loads the kernel's single configuration document, using a
// struct-tagged, YAML-plus-environment-overlay style: a YAML file supplies
// the base document, then envdecode overlays any `env:"..."`-tagged field
// present in the process environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// InterfaceValidationMode controls how strictly invoke arguments are
// checked against a method's inputSchema.
type InterfaceValidationMode string

const (
	ValidationNone   InterfaceValidationMode = "none"
	ValidationWarn   InterfaceValidationMode = "warn"
	ValidationStrict InterfaceValidationMode = "strict"
)

// PromptInjectionScope controls which artifacts receive the mandatory
// prefix/suffix.
type PromptInjectionScope string

const (
	ScopeNone    PromptInjectionScope = "none"
	ScopeGenesis PromptInjectionScope = "genesis"
	ScopeAll     PromptInjectionScope = "all"
)

// DefaultOnMissing is the boot-time knob controlling whether an artifact
// with no access_contract_id is allowed or denied by default.
type DefaultOnMissing string

const (
	DefaultAllow DefaultOnMissing = "allow"
	DefaultDeny  DefaultOnMissing = "deny"
)

type ExecutorConfig struct {
	MaxInvokeDepth        int                     `yaml:"max_invoke_depth" env:"EXECUTOR_MAX_INVOKE_DEPTH"`
	InterfaceValidation   InterfaceValidationMode `yaml:"interface_validation" env:"EXECUTOR_INTERFACE_VALIDATION"`
	InvocationTimeout     time.Duration           `yaml:"invocation_timeout" env:"EXECUTOR_INVOCATION_TIMEOUT"`
	MaxToolCallsPerTurn   int                     `yaml:"max_tool_calls_per_turn" env:"EXECUTOR_MAX_TOOL_CALLS_PER_TURN"`
}

type RateResourceConfig struct {
	WindowSeconds float64 `yaml:"window_seconds"`
	MaxPerWindow  float64 `yaml:"max_per_window"`
}

type RateLimitingConfig struct {
	LLMTokenRate RateResourceConfig `yaml:"llm_token_rate"`
	LLMCallRate  RateResourceConfig `yaml:"llm_call_rate"`
	CPURate      RateResourceConfig `yaml:"cpu_rate"`
}

type TimeoutsConfig struct {
	LoopStopGrace  time.Duration `yaml:"loop_stop_grace" env:"TIMEOUTS_LOOP_STOP_GRACE"`
	Shutdown       time.Duration `yaml:"shutdown" env:"TIMEOUTS_SHUTDOWN"`
	StateStoreLock time.Duration `yaml:"state_store_lock" env:"TIMEOUTS_STATE_STORE_LOCK"`
}

type PromptInjectionConfig struct {
	Enabled         bool                 `yaml:"enabled" env:"PROMPT_INJECTION_ENABLED"`
	Scope           PromptInjectionScope `yaml:"scope" env:"PROMPT_INJECTION_SCOPE"`
	MandatoryPrefix string               `yaml:"mandatory_prefix"`
	MandatorySuffix string               `yaml:"mandatory_suffix"`
}

type SystemPromptConfig struct {
	MaxSizeBytes        int `yaml:"max_size_bytes" env:"AGENT_SYSTEM_PROMPT_MAX_SIZE_BYTES"`
	ProtectedPrefixChars int `yaml:"protected_prefix_chars" env:"AGENT_SYSTEM_PROMPT_PROTECTED_PREFIX_CHARS"`
}

type AlphaPrimeConfig struct {
	Enabled           bool    `yaml:"enabled" env:"ALPHA_PRIME_ENABLED"`
	StartingScrip     int64   `yaml:"starting_scrip" env:"ALPHA_PRIME_STARTING_SCRIP"`
	StartingLLMBudget float64 `yaml:"starting_llm_budget" env:"ALPHA_PRIME_STARTING_LLM_BUDGET"`
}

type ContractsConfig struct {
	DefaultOnMissing DefaultOnMissing `yaml:"default_on_missing" env:"CONTRACTS_DEFAULT_ON_MISSING"`
}

type HTTPConfig struct {
	Addr          string `yaml:"addr" env:"HTTP_ADDR"`
	AdminJWTKey   string `yaml:"admin_jwt_key" env:"HTTP_ADMIN_JWT_KEY"`
	RatePerSecond float64 `yaml:"rate_per_second" env:"HTTP_RATE_PER_SECOND"`
	RateBurst     int    `yaml:"rate_burst" env:"HTTP_RATE_BURST"`
}

type PersistenceConfig struct {
	BoltPath       string `yaml:"bolt_path" env:"PERSISTENCE_BOLT_PATH"`
	EventLogDir    string `yaml:"event_log_dir" env:"PERSISTENCE_EVENT_LOG_DIR"`
	CheckpointDir  string `yaml:"checkpoint_dir" env:"PERSISTENCE_CHECKPOINT_DIR"`
	RedisAddr      string `yaml:"redis_addr" env:"PERSISTENCE_REDIS_ADDR"`
	UseRedisQueue  bool   `yaml:"use_redis_queue" env:"PERSISTENCE_USE_REDIS_QUEUE"`
}

// GenesisConfig points at the boot-time genesis manifest directory.
type GenesisConfig struct {
	ManifestPath string `yaml:"manifest_path" env:"GENESIS_MANIFEST_PATH"`
}

// Config is the kernel's single top-level configuration document.
type Config struct {
	Executor        ExecutorConfig        `yaml:"executor"`
	RateLimiting    RateLimitingConfig    `yaml:"rate_limiting"`
	Timeouts        TimeoutsConfig        `yaml:"timeouts"`
	PromptInjection PromptInjectionConfig `yaml:"prompt_injection"`
	SystemPrompt    SystemPromptConfig    `yaml:"agent_system_prompt"`
	AlphaPrime      AlphaPrimeConfig      `yaml:"alpha_prime"`
	Contracts       ContractsConfig       `yaml:"contracts"`
	Logging         struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`
	HTTP        HTTPConfig        `yaml:"http"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Genesis     GenesisConfig     `yaml:"genesis"`
}

// Default returns the configuration shipped when no file is supplied.
func Default() Config {
	return Config{
		Executor: ExecutorConfig{
			MaxInvokeDepth:      5,
			InterfaceValidation: ValidationWarn,
			InvocationTimeout:   10 * time.Second,
			MaxToolCallsPerTurn: 3,
		},
		RateLimiting: RateLimitingConfig{
			LLMTokenRate: RateResourceConfig{WindowSeconds: 60, MaxPerWindow: 100000},
			LLMCallRate:  RateResourceConfig{WindowSeconds: 60, MaxPerWindow: 2},
			CPURate:      RateResourceConfig{WindowSeconds: 60, MaxPerWindow: 30},
		},
		Timeouts: TimeoutsConfig{
			LoopStopGrace:  8 * time.Second,
			Shutdown:       10 * time.Second,
			StateStoreLock: 2 * time.Second,
		},
		PromptInjection: PromptInjectionConfig{
			Enabled: false,
			Scope:   ScopeNone,
		},
		SystemPrompt: SystemPromptConfig{
			MaxSizeBytes:         32 * 1024,
			ProtectedPrefixChars: 512,
		},
		AlphaPrime: AlphaPrimeConfig{
			Enabled:           true,
			StartingScrip:     1000,
			StartingLLMBudget: 5.0,
		},
		Contracts: ContractsConfig{
			// This repo ships "deny" as the default — see DESIGN.md.
			DefaultOnMissing: DefaultDeny,
		},
		HTTP: HTTPConfig{
			Addr:          ":8080",
			RatePerSecond: 50,
			RateBurst:     100,
		},
		Persistence: PersistenceConfig{
			BoltPath:      "data/agentsim.db",
			EventLogDir:   "data/events",
			CheckpointDir: "data/checkpoints",
		},
		Genesis: GenesisConfig{
			ManifestPath: "genesis/manifest.yaml",
		},
	}
}

// Load reads a YAML config file (if path is non-empty and exists), applies
// a .env file (if present), then overlays OS environment variables tagged
// with `env:"..."` on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	_ = godotenv.Load() // best-effort; absence of .env is not an error

	if err := envdecode.Decode(&cfg); err != nil {
		// envdecode returns an error when none of the tagged fields have a
		// matching environment variable set; treat that as "no overrides"
		// so local runs work without exporting anything.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return cfg, fmt.Errorf("decode env: %w", err)
		}
	}
	return cfg, nil
}
