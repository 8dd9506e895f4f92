package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/signalnine/gauntlet/scorer"
)

type Config struct {
	Name        string        `yaml:"name" validate:"required"`
	Data        Data          `yaml:"data"`
	Concurrency int           `yaml:"concurrency" validate:"gte=0"`
	CaseTimeout time.Duration `yaml:"case_timeout" validate:"gte=0"`
	Task        Task          `yaml:"task"`
	Scorers     []Scorer      `yaml:"scorers" validate:"dive"`
	Pricing     string        `yaml:"pricing"`
	Results     Results       `yaml:"results"`
	Persistence Persistence   `yaml:"persistence"`
	Telemetry   Telemetry     `yaml:"telemetry"`
	Secrets     Secrets       `yaml:"secrets"`

	// Path is the file the config was loaded from.
	Path string `yaml:"-"`
}

type Data struct {
	Path string `yaml:"path" validate:"required"`
}

type Task struct {
	Type string `yaml:"type" validate:"required,oneof=http command container openai"`

	// http
	URL           string            `yaml:"url" validate:"required_if=Type http"`
	Method        string            `yaml:"method"`
	Headers       map[string]string `yaml:"headers"`
	RatePerSecond float64           `yaml:"rate_per_second" validate:"gte=0"`
	Burst         int               `yaml:"burst" validate:"gte=0"`

	// command and container
	Command []string          `yaml:"command" validate:"required_if=Type command"`
	Dir     string            `yaml:"dir"`
	Env     map[string]string `yaml:"env"`
	Timeout time.Duration     `yaml:"timeout" validate:"gte=0"`

	// container
	Image           string  `yaml:"image" validate:"required_if=Type container"`
	CPULimit        float64 `yaml:"cpu_limit" validate:"gte=0"`
	MemoryLimitMB   int64   `yaml:"memory_limit_mb" validate:"gte=0"`
	NetworkDisabled bool    `yaml:"network_disabled"`

	// openai
	Model        string  `yaml:"model" validate:"required_if=Type openai"`
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int     `yaml:"max_tokens" validate:"gte=0"`
	BaseURL      string  `yaml:"base_url"`
	APIKeyEnv    string  `yaml:"api_key_env"`
}

type Scorer struct {
	Type string `yaml:"type" validate:"required,oneof=exact contains levenshtein regex json sql embedding rubric"`

	// exact
	CaseInsensitive bool `yaml:"case_insensitive"`
	TrimWhitespace  bool `yaml:"trim_whitespace"`

	// contains
	Substring     string `yaml:"substring" validate:"required_if=Type contains"`
	CaseSensitive bool   `yaml:"case_sensitive"`

	// levenshtein, embedding, rubric
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`

	// regex
	Pattern string `yaml:"pattern" validate:"required_if=Type regex"`

	// json
	Strict bool   `yaml:"strict"`
	Schema string `yaml:"schema"`

	// sql
	Dialect string `yaml:"dialect" validate:"omitempty,oneof=mysql"`

	// embedding, rubric
	Provider  string `yaml:"provider" validate:"omitempty,oneof=openai gemini"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`

	// rubric
	Criteria []scorer.Criterion `yaml:"criteria" validate:"required_if=Type rubric"`
	Samples  int                `yaml:"samples" validate:"gte=0"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type Persistence struct {
	PostgresURL  string        `yaml:"postgres_url"`
	BadgerPath   string        `yaml:"badger_path"`
	RedisURL     string        `yaml:"redis_url"`
	RedisChannel string        `yaml:"redis_channel"`
	RedisTTL     time.Duration `yaml:"redis_ttl" validate:"gte=0"`
}

type Telemetry struct {
	MetricsAddr string `yaml:"metrics_addr"`
	TraceStdout bool   `yaml:"trace_stdout"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

var validate = validator.New()

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.Path = path
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes and validates a config without touching the filesystem.
// Relative paths are left as written.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	applyDefaults(&cfg)
	if err := check(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	if cfg.Task.Type == "http" && cfg.Task.Method == "" {
		cfg.Task.Method = "POST"
	}
	if cfg.Task.Type == "openai" && cfg.Task.APIKeyEnv == "" {
		cfg.Task.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Persistence.RedisChannel == "" {
		cfg.Persistence.RedisChannel = "gauntlet.results"
	}
	for i := range cfg.Scorers {
		s := &cfg.Scorers[i]
		if s.Type == "embedding" && s.Provider == "" {
			s.Provider = "openai"
		}
		if s.Type == "rubric" && s.Provider == "" {
			s.Provider = "openai"
		}
		if s.APIKeyEnv == "" {
			switch s.Provider {
			case "openai":
				s.APIKeyEnv = "OPENAI_API_KEY"
			case "gemini":
				s.APIKeyEnv = "GEMINI_API_KEY"
			}
		}
	}
}

func check(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = describe(fe)
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if cfg.Task.Type == "http" {
		u, err := url.Parse(cfg.Task.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("task: url %q is not absolute", cfg.Task.URL)
		}
	}
	if len(cfg.Scorers) == 0 {
		return fmt.Errorf("no scorers defined")
	}
	for i, s := range cfg.Scorers {
		if s.Type == "json" && s.Strict && s.Schema != "" {
			return fmt.Errorf("scorer %d: json strict and schema are exclusive", i)
		}
		if s.Type == "rubric" {
			if s.Provider != "openai" {
				return fmt.Errorf("scorer %d: rubric judge supports provider openai only", i)
			}
			var total float64
			for _, c := range s.Criteria {
				if c.Name == "" {
					return fmt.Errorf("scorer %d: rubric criterion name is required", i)
				}
				total += c.Weight
			}
			if total <= 0 {
				return fmt.Errorf("scorer %d: rubric weights must sum to more than 0", i)
			}
		}
	}
	return nil
}

// describe turns a validator failure into "task.url: required when type is http".
func describe(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	field := strings.ToLower(ns)
	switch fe.Tag() {
	case "required":
		return field + ": is required"
	case "required_if":
		parts := strings.Fields(fe.Param())
		if len(parts) == 2 {
			return fmt.Sprintf("%s: required when %s is %s", field, strings.ToLower(parts[0]), parts[1])
		}
		return field + ": is required"
	case "oneof":
		return fmt.Sprintf("%s: %q is not one of %s", field, fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param())
	}
}

// resolvePaths makes input file paths relative to the config file. The
// results directory stays relative to the working directory.
func (cfg *Config) resolvePaths(dir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	resolve(&cfg.Data.Path)
	resolve(&cfg.Pricing)
	resolve(&cfg.Secrets.EnvFile)
	resolve(&cfg.Persistence.BadgerPath)
	for i := range cfg.Scorers {
		resolve(&cfg.Scorers[i].Schema)
	}
}

// LoadSecrets loads the dotenv file into the process environment. Variables
// already set win. A missing file is not an error.
func (cfg *Config) LoadSecrets() error {
	if cfg.Secrets.EnvFile == "" {
		return nil
	}
	if _, err := os.Stat(cfg.Secrets.EnvFile); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(cfg.Secrets.EnvFile); err != nil {
		return fmt.Errorf("loading secrets %s: %w", cfg.Secrets.EnvFile, err)
	}
	return nil
}

// WatchPaths lists the files whose change should trigger a re-run.
func (cfg *Config) WatchPaths() []string {
	paths := []string{cfg.Data.Path}
	if cfg.Path != "" {
		paths = append([]string{cfg.Path}, paths...)
	}
	for _, s := range cfg.Scorers {
		if s.Schema != "" {
			paths = append(paths, s.Schema)
		}
	}
	return paths
}
