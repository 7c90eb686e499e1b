package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/benchctl/benchctl/pkg/models"
)

// Config holds one benchmark job's full configuration
type Config struct {
	Name      string          `mapstructure:"name" yaml:"name" validate:"required"`
	Model     ModelConfig     `mapstructure:"model" yaml:"model"`
	Resources ResourcesConfig `mapstructure:"resources" yaml:"resources"`
	Backend   BackendConfig   `mapstructure:"backend" yaml:"backend"`
	Frontend  FrontendConfig  `mapstructure:"frontend" yaml:"frontend"`
	Env       EnvConfig       `mapstructure:"env" yaml:"env"`
	Reporting ReportingConfig `mapstructure:"reporting" yaml:"reporting"`
	Cluster   ClusterConfig   `mapstructure:"cluster" yaml:"cluster"`
	Ports     PortsConfig     `mapstructure:"ports" yaml:"ports"`
	Benchmark BenchmarkConfig `mapstructure:"benchmark" yaml:"benchmark"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Sweep     SweepConfig     `mapstructure:"sweep" yaml:"sweep"`
}

// ModelConfig identifies the model being served. Path and Container may be
// cluster aliases resolved at job start against the cluster alias tables.
type ModelConfig struct {
	Path       string `mapstructure:"path" yaml:"path" validate:"required"`
	ServedName string `mapstructure:"served_name" yaml:"served_name"`
	Container  string `mapstructure:"container" yaml:"container"`
}

// ResourcesConfig holds the topology request
type ResourcesConfig struct {
	Prefill    models.ModeRequest `mapstructure:"prefill" yaml:"prefill"`
	Decode     models.ModeRequest `mapstructure:"decode" yaml:"decode"`
	Aggregated models.ModeRequest `mapstructure:"aggregated" yaml:"aggregated"`
	NodeGPUs   int                `mapstructure:"node_gpus" yaml:"node_gpus" validate:"gt=0"`
}

// ToTopology converts the resource request into the allocator's input type.
func (r ResourcesConfig) ToTopology() models.TopologyRequest {
	return models.TopologyRequest{
		Prefill:    r.Prefill,
		Decode:     r.Decode,
		Aggregated: r.Aggregated,
		NodeGPUs:   r.NodeGPUs,
	}
}

// KVEventsConfig enables KV-cache event publishing per mode
type KVEventsConfig struct {
	Prefill    bool `mapstructure:"prefill" yaml:"prefill"`
	Decode     bool `mapstructure:"decode" yaml:"decode"`
	Aggregated bool `mapstructure:"aggregated" yaml:"aggregated"`
}

// EnabledModes returns the enablement map the port ledger consumes.
func (k KVEventsConfig) EnabledModes() map[models.Mode]bool {
	return map[models.Mode]bool{
		models.ModePrefill:    k.Prefill,
		models.ModeDecode:     k.Decode,
		models.ModeAggregated: k.Aggregated,
	}
}

// BackendConfig selects and parameterizes the serving backend.
// Args are passed through to the backend command line verbatim after
// normalization; per-mode maps override the shared map.
type BackendConfig struct {
	Type           string         `mapstructure:"type" yaml:"type" validate:"required,oneof=sglang vllm trtllm"`
	Args           map[string]any `mapstructure:"args" yaml:"args"`
	PrefillArgs    map[string]any `mapstructure:"prefill_args" yaml:"prefill_args"`
	DecodeArgs     map[string]any `mapstructure:"decode_args" yaml:"decode_args"`
	AggregatedArgs map[string]any `mapstructure:"aggregated_args" yaml:"aggregated_args"`
	KVEvents       KVEventsConfig `mapstructure:"kv_events" yaml:"kv_events"`
}

// ModeArgs returns the shared args overlaid with the given mode's overrides.
func (b BackendConfig) ModeArgs(mode models.Mode) map[string]any {
	var overrides map[string]any
	switch mode {
	case models.ModePrefill:
		overrides = b.PrefillArgs
	case models.ModeDecode:
		overrides = b.DecodeArgs
	case models.ModeAggregated:
		overrides = b.AggregatedArgs
	}

	merged := make(map[string]any, len(b.Args)+len(overrides))
	for k, v := range b.Args {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// FrontendConfig selects and sizes the request-routing tier
type FrontendConfig struct {
	Type    string         `mapstructure:"type" yaml:"type" validate:"required,oneof=sglang_router dynamo"`
	Routers int            `mapstructure:"routers" yaml:"routers" validate:"gte=1"`
	Args    map[string]any `mapstructure:"args" yaml:"args"`
}

// EnvConfig holds environment overrides, global first then per mode
type EnvConfig struct {
	Global     map[string]string `mapstructure:"global" yaml:"global"`
	Prefill    map[string]string `mapstructure:"prefill" yaml:"prefill"`
	Decode     map[string]string `mapstructure:"decode" yaml:"decode"`
	Aggregated map[string]string `mapstructure:"aggregated" yaml:"aggregated"`
}

// ForMode returns the given mode's environment overrides.
func (e EnvConfig) ForMode(mode models.Mode) map[string]string {
	switch mode {
	case models.ModePrefill:
		return e.Prefill
	case models.ModeDecode:
		return e.Decode
	case models.ModeAggregated:
		return e.Aggregated
	}
	return nil
}

// StatusConfig points at external job-tracking endpoints. Reporting is
// fire-and-forget: unreachable endpoints never fail a job.
type StatusConfig struct {
	Endpoint  string   `mapstructure:"endpoint" yaml:"endpoint"`
	Endpoints []string `mapstructure:"endpoints" yaml:"endpoints"`
}

// All returns every configured endpoint, singular field included.
func (s StatusConfig) All() []string {
	var all []string
	if s.Endpoint != "" {
		all = append(all, s.Endpoint)
	}
	return append(all, s.Endpoints...)
}

// ReportingConfig holds external reporting configuration
type ReportingConfig struct {
	Status StatusConfig `mapstructure:"status" yaml:"status"`
}

// ClusterConfig holds site-specific cluster settings
type ClusterConfig struct {
	ModelAliases     map[string]string `mapstructure:"model_aliases" yaml:"model_aliases"`
	ContainerAliases map[string]string `mapstructure:"container_aliases" yaml:"container_aliases"`
	NetworkInterface string            `mapstructure:"network_interface" yaml:"network_interface"`
	Account          string            `mapstructure:"account" yaml:"account"`
	Partition        string            `mapstructure:"partition" yaml:"partition"`
	TimeLimit        string            `mapstructure:"time_limit" yaml:"time_limit"`
	LogDirBase       string            `mapstructure:"log_dir_base" yaml:"log_dir_base"`
}

// PortsConfig fixes the job's port plan
type PortsConfig struct {
	EventBase  int `mapstructure:"event_base" yaml:"event_base" validate:"gt=0"`
	SystemBase int `mapstructure:"system_base" yaml:"system_base" validate:"gt=0"`
	Server     int `mapstructure:"server" yaml:"server" validate:"gt=0"`
	Bootstrap  int `mapstructure:"bootstrap" yaml:"bootstrap" validate:"gt=0"`
	DistInit   int `mapstructure:"dist_init" yaml:"dist_init" validate:"gt=0"`
	HTTP       int `mapstructure:"http" yaml:"http" validate:"gt=0"`
}

// BenchmarkConfig describes the load-generation harness
type BenchmarkConfig struct {
	Type    string            `mapstructure:"type" yaml:"type" validate:"oneof=manual command"`
	Command []string          `mapstructure:"command" yaml:"command"`
	Env     map[string]string `mapstructure:"env" yaml:"env"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "json" or "text"
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Resource defaults
	v.SetDefault("resources.node_gpus", 8)

	// Backend defaults
	v.SetDefault("backend.type", "sglang")

	// Frontend defaults
	v.SetDefault("frontend.type", "sglang_router")
	v.SetDefault("frontend.routers", 1)

	// Port plan defaults
	v.SetDefault("ports.event_base", 5550)
	v.SetDefault("ports.system_base", 8081)
	v.SetDefault("ports.server", 30000)
	v.SetDefault("ports.bootstrap", 30001)
	v.SetDefault("ports.dist_init", 29500)
	v.SetDefault("ports.http", 8000)

	// Cluster defaults
	v.SetDefault("cluster.log_dir_base", "./logs")

	// Benchmark defaults
	v.SetDefault("benchmark.type", "manual")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Helper to bind and log errors (BindEnv errors are non-fatal but should be logged)
	bindEnv := func(key string, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			slog.Warn("failed to bind environment variable",
				slog.String("key", key),
				slog.String("env_var", envVar),
				slog.String("error", err.Error()))
		}
	}

	bindEnv("cluster.account", "BENCHCTL_ACCOUNT")
	bindEnv("cluster.partition", "BENCHCTL_PARTITION")
	bindEnv("cluster.log_dir_base", "BENCHCTL_LOG_DIR")
	bindEnv("reporting.status.endpoint", "BENCHCTL_STATUS_ENDPOINT")
	bindEnv("logging.level", "LOG_LEVEL")
	bindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	topo := c.Resources.ToTopology()
	if topo.TotalWorkers() == 0 {
		return fmt.Errorf("at least one worker must be requested")
	}

	// Aggregated and disaggregated modes are mutually exclusive
	if c.Resources.Aggregated.Workers > 0 &&
		(c.Resources.Prefill.Workers > 0 || c.Resources.Decode.Workers > 0) {
		return fmt.Errorf("aggregated mode cannot be combined with prefill/decode workers")
	}

	if c.Resources.Prefill.Workers > 0 && c.Resources.Prefill.NodesPerWorker == 0 {
		return fmt.Errorf("prefill workers cannot share nodes; set prefill.nodes_per_worker >= 1")
	}

	if c.Benchmark.Type == "command" && len(c.Benchmark.Command) == 0 {
		return fmt.Errorf("benchmark.command is required when benchmark.type is \"command\"")
	}

	return nil
}
