// Package evalconfig loads and round-trips the task/eval configuration that
// a CLI wrapper reads before constructing an eval.Task (spec §1 "CLI
// argument parsing and config file reading" is named an external
// collaborator; this package is that collaborator's config half).
//
// Grounded on integration_tests/framework/runner.go for the yaml.v3 tag
// style and registry/cmd/registry/main.go for the envOr/envIntOr overlay
// pattern applied to the environment variables spec §6 names.
package evalconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evalforge/evalforge/scheduler"
)

// ModelConfig is the declarative form of model.Config plus the provider
// scheme spec §6 "Model provider" resolves by prefix (e.g. "openai/gpt-4o").
type ModelConfig struct {
	Name        string   `yaml:"name"`
	Temperature float64  `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Stop        []string `yaml:"stop,omitempty"`
}

// SchedulerConfig mirrors scheduler.Config in its YAML-declarable subset;
// Rand and SampleFunc have no config-file representation.
type SchedulerConfig struct {
	MaxSamples              int  `yaml:"max_samples,omitempty"`
	MaxSandboxes            int  `yaml:"max_sandboxes,omitempty"`
	CountSandboxlessSamples bool `yaml:"count_sandboxless_samples,omitempty"`
	Epochs                  int  `yaml:"epochs,omitempty"`
	Shuffle                 bool `yaml:"shuffle,omitempty"`
	// FailOnError accepts a bool, a fraction (0 < f < 1), or an integer
	// count, per spec §4.1; captured as a string here and parsed by
	// ToSchedulerConfig so the YAML node keeps its native scalar type.
	FailOnError string `yaml:"fail_on_error,omitempty"`
}

// DatasetConfig names the dataset a task draws samples from. Loading the
// file itself is deliberately out of scope (spec §1); this only records
// where a CLI wrapper should look.
type DatasetConfig struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

// TaskConfig is one task declaration: dataset + solver pipeline + scorers,
// the unit spec §1 calls a "task".
type TaskConfig struct {
	Name      string          `yaml:"name"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Model     ModelConfig     `yaml:"model"`
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
	Solvers   []string        `yaml:"solvers,omitempty"`
	Scorers   []string        `yaml:"scorers,omitempty"`
	Tools     []string        `yaml:"tools,omitempty"`
	Sandbox   string          `yaml:"sandbox,omitempty"`
	PassAtK   []int           `yaml:"pass_at_k,omitempty"`
}

// EvalConfig is the top-level file a CLI wrapper reads: one or more tasks
// sharing connection/concurrency defaults that per-task Scheduler fields
// may override, matching spec §4.8 "Options (connections, concurrency,
// fail_on_error) may be overridden at retry time."
type EvalConfig struct {
	LogDir    string          `yaml:"log_dir,omitempty"`
	CacheDir  string          `yaml:"cache_dir,omitempty"`
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
	Tasks     []TaskConfig    `yaml:"tasks"`
}

// Load reads and parses an EvalConfig from path, then applies the
// environment-variable overlay spec §6 names.
func Load(path string) (EvalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EvalConfig{}, fmt.Errorf("evalconfig: read %s: %w", path, err)
	}
	var cfg EvalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EvalConfig{}, fmt.Errorf("evalconfig: parse %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return EvalConfig{}, err
	}
	return cfg, nil
}

// Save round-trips cfg back to YAML at path, used by retry flows that
// inherit and adjust a prior configuration.
func Save(path string, cfg EvalConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("evalconfig: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("evalconfig: write %s: %w", path, err)
	}
	return nil
}

// Validate checks the structural preconditions a CLI wrapper should catch
// before constructing an eval.Task (spec exit code 2, "configuration
// error").
func (c EvalConfig) Validate() error {
	if len(c.Tasks) == 0 {
		return fmt.Errorf("evalconfig: no tasks declared")
	}
	for i, t := range c.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("evalconfig: task[%d]: name is required", i)
		}
		if strings.TrimSpace(t.Model.Name) == "" {
			return fmt.Errorf("evalconfig: task %q: model.name is required", t.Name)
		}
		if _, err := parseFailOnError(t.Scheduler.FailOnError); err != nil {
			return fmt.Errorf("evalconfig: task %q: %w", t.Name, err)
		}
	}
	return nil
}

// applyEnv overlays the environment variables spec §6 "Environment
// variables recognised by the engine core" names onto fields left unset in
// the file, file values taking precedence (env is a fallback default, not
// an override).
func (c *EvalConfig) applyEnv() {
	if c.LogDir == "" {
		c.LogDir = envOr("LOG_DIR", c.LogDir)
	}
	if c.CacheDir == "" {
		c.CacheDir = envOr("CACHE_DIR", c.CacheDir)
	}
	if c.Scheduler.MaxSamples == 0 {
		c.Scheduler.MaxSamples = envIntOr("MAX_SAMPLES", c.Scheduler.MaxSamples)
	}
	if c.Scheduler.MaxSandboxes == 0 {
		c.Scheduler.MaxSandboxes = envIntOr("MAX_SANDBOXES", c.Scheduler.MaxSandboxes)
	}
	for i := range c.Tasks {
		if c.Tasks[i].Scheduler.MaxSamples == 0 {
			c.Tasks[i].Scheduler.MaxSamples = c.Scheduler.MaxSamples
		}
		if c.Tasks[i].Scheduler.MaxSandboxes == 0 {
			c.Tasks[i].Scheduler.MaxSandboxes = c.Scheduler.MaxSandboxes
		}
	}
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// ToSchedulerConfig translates the file's FailOnError scalar into
// scheduler.FailOnError, accepting "true"/"false", a 0<f<1 fraction, or an
// integer count (spec §4.1).
func (s SchedulerConfig) ToSchedulerConfig() (scheduler.Config, error) {
	foe, err := parseFailOnError(s.FailOnError)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		MaxSamples:              s.MaxSamples,
		MaxSandboxes:            s.MaxSandboxes,
		CountSandboxlessSamples: s.CountSandboxlessSamples,
		Epochs:                  s.Epochs,
		Shuffle:                 s.Shuffle,
		FailOnError:             foe,
	}, nil
}

func parseFailOnError(raw string) (scheduler.FailOnError, error) {
	if strings.TrimSpace(raw) == "" {
		return scheduler.FailOnError{}, nil
	}
	if b, err := strconv.ParseBool(raw); err == nil && raw != "1" && raw != "0" {
		if b {
			return scheduler.FailAlways(), nil
		}
		return scheduler.FailNever(), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if f > 0 && f < 1 {
			return scheduler.FailFraction(f), nil
		}
		return scheduler.FailCount(int(f)), nil
	}
	return scheduler.FailOnError{}, fmt.Errorf("fail_on_error: cannot parse %q as bool, fraction, or count", raw)
}
