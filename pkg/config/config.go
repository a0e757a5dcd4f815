package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read when present; environment variables always override it.
const DefaultConfigFile = "config.yaml"

// Supported values for enumerated settings.
var (
	SupportedDatasourceTypes = []string{"postgres", "mysql", "mssql", "sqlite"}
	SupportedLLMProviders    = []string{"openai", "anthropic"}
	SupportedModes           = []string{"sql", "rows", "answer"}
)

// Config holds all configuration for ekaya-dbagent.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"5000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"20s"`

	Datasource DatasourceConfig `yaml:"datasource"`
	LLM        LLMConfig        `yaml:"llm"`
	Agent      AgentConfig      `yaml:"agent"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// DatasourceConfig describes the database the agent answers questions about.
type DatasourceConfig struct {
	Type     string `yaml:"type" env:"DATASOURCE_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"DATASOURCE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DATASOURCE_PORT" env-default:"0"` // 0 = dialect default
	User     string `yaml:"user" env:"DATASOURCE_USER" env-default:""`
	Password string `yaml:"-" env:"DATASOURCE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"DATASOURCE_DATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"DATASOURCE_SSL_MODE" env-default:""`

	// Path is the database file for sqlite.
	Path string `yaml:"path" env:"DATASOURCE_PATH" env-default:""`

	// ReadOnlyUser, when set, is used for every connection the agent opens.
	// It should be a role with SELECT-only grants.
	ReadOnlyUser     string `yaml:"readonly_user" env:"DATASOURCE_READONLY_USER" env-default:""`
	ReadOnlyPassword string `yaml:"-" env:"DATASOURCE_READONLY_PASSWORD"` // Secret - not in YAML

	MaxConns       int32         `yaml:"max_conns" env:"DATASOURCE_MAX_CONNS" env-default:"10"`
	MinConns       int32         `yaml:"min_conns" env:"DATASOURCE_MIN_CONNS" env-default:"1"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"DATASOURCE_CONNECT_TIMEOUT" env-default:"10s"`
}

// EffectiveUser returns the read-only login when configured.
func (c *DatasourceConfig) EffectiveUser() string {
	if c.ReadOnlyUser != "" {
		return c.ReadOnlyUser
	}
	return c.User
}

// EffectivePassword returns the password that pairs with EffectiveUser.
func (c *DatasourceConfig) EffectivePassword() string {
	if c.ReadOnlyUser != "" {
		return c.ReadOnlyPassword
	}
	return c.Password
}

// LLMConfig holds the language-model endpoint settings.
type LLMConfig struct {
	Provider    string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL     string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model       string        `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey      string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"30s"`

	// Circuit breaker trips after BreakerThreshold consecutive failures.
	BreakerThreshold int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerReset     time.Duration `yaml:"breaker_reset" env:"LLM_BREAKER_RESET" env-default:"30s"`
}

// AgentConfig controls pipeline behavior.
type AgentConfig struct {
	// Mode selects how far the pipeline runs: sql, rows or answer.
	Mode string `yaml:"mode" env:"AGENT_MODE" env-default:"answer"`

	MaxRows          int           `yaml:"max_rows" env:"AGENT_MAX_ROWS" env-default:"500"`
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"AGENT_STATEMENT_TIMEOUT" env-default:"15s"`

	// TopK is the default LIMIT the model is told to apply.
	TopK int `yaml:"top_k" env:"AGENT_TOP_K" env-default:"5"`

	PromptMaxRows       int `yaml:"prompt_max_rows" env:"AGENT_PROMPT_MAX_ROWS" env-default:"50"`
	PromptMaxColumns    int `yaml:"prompt_max_columns" env:"AGENT_PROMPT_MAX_COLUMNS" env-default:"20"`
	PromptMaxCellLength int `yaml:"prompt_max_cell_length" env:"AGENT_PROMPT_MAX_CELL_LENGTH" env-default:"120"`

	SampleRows     int    `yaml:"sample_rows" env:"AGENT_SAMPLE_ROWS" env-default:"3"`
	MaxTables      int    `yaml:"max_tables" env:"AGENT_MAX_TABLES" env-default:"100"`
	IncludeSchemas string `yaml:"include_schemas" env:"AGENT_INCLUDE_SCHEMAS" env-default:""`
	ExcludeSchemas string `yaml:"exclude_schemas" env:"AGENT_EXCLUDE_SCHEMAS" env-default:""`

	ScreenQuestions      bool `yaml:"screen_questions" env:"AGENT_SCREEN_QUESTIONS" env-default:"true"`
	CheckTableReferences bool `yaml:"check_table_references" env:"AGENT_CHECK_TABLE_REFERENCES" env-default:"true"`

	MaxRetries   int    `yaml:"max_retries" env:"AGENT_MAX_RETRIES" env-default:"1"`
	GlossaryPath string `yaml:"glossary_path" env:"AGENT_GLOSSARY_PATH" env-default:""`
}

// MCPConfig controls the MCP tool surface.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml (if present) with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigFile, version)
}

// LoadFile is Load with an explicit YAML path. A missing file is not an error;
// configuration then comes from the environment alone.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, statErr := os.Stat(path); statErr == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks enumerated values and numeric bounds.
func (c *Config) Validate() error {
	var errs []error

	if !contains(SupportedDatasourceTypes, c.Datasource.Type) {
		errs = append(errs, fmt.Errorf("datasource.type %q is not one of %s", c.Datasource.Type, strings.Join(SupportedDatasourceTypes, ", ")))
	}
	if c.Datasource.Type == "sqlite" {
		if c.Datasource.Path == "" {
			errs = append(errs, errors.New("datasource.path is required for sqlite"))
		}
	} else if c.Datasource.Database == "" {
		errs = append(errs, errors.New("datasource.database is required"))
	}
	if c.Datasource.MaxConns <= 0 {
		errs = append(errs, errors.New("datasource.max_conns must be positive"))
	}

	if !contains(SupportedLLMProviders, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of %s", c.LLM.Provider, strings.Join(SupportedLLMProviders, ", ")))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, errors.New("llm.temperature must be between 0 and 2"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}

	if !contains(SupportedModes, c.Agent.Mode) {
		errs = append(errs, fmt.Errorf("agent.mode %q is not one of %s", c.Agent.Mode, strings.Join(SupportedModes, ", ")))
	}
	if c.Agent.MaxRows <= 0 {
		errs = append(errs, errors.New("agent.max_rows must be positive"))
	}
	if c.Agent.StatementTimeout <= 0 {
		errs = append(errs, errors.New("agent.statement_timeout must be positive"))
	}
	if c.Agent.PromptMaxRows <= 0 || c.Agent.PromptMaxColumns <= 0 || c.Agent.PromptMaxCellLength <= 0 {
		errs = append(errs, errors.New("agent prompt caps must be positive"))
	}
	if c.Agent.SampleRows < 0 || c.Agent.MaxTables < 0 || c.Agent.MaxRetries < 0 || c.Agent.TopK < 0 {
		errs = append(errs, errors.New("agent sample_rows, max_tables, max_retries and top_k must not be negative"))
	}

	return errors.Join(errs...)
}

// IncludeSchemaList returns the parsed include_schemas setting.
func (c *AgentConfig) IncludeSchemaList() []string {
	return SplitList(c.IncludeSchemas)
}

// ExcludeSchemaList returns the parsed exclude_schemas setting.
func (c *AgentConfig) ExcludeSchemaList() []string {
	return SplitList(c.ExcludeSchemas)
}

// SplitList parses a comma-separated list, dropping empty entries.
func SplitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
