// evalctl is the thin CLI wrapper spec §6 allows ("Exit codes from a CLI
// wrapping the engine, if one is built") over the eval engine: it reads an
// evalconfig.EvalConfig, resolves each task's model/tools/scorers against a
// compreg.Registry, and drives every task through eval.Runner. A task's
// sandbox field is not resolved; tasks run without a sandbox provider.
//
// Grounded on cmd/demo/main.go's shape (construct a runtime, register
// components, drive one run) adapted from the teacher's in-process demo
// runtime to this module's config-driven multi-task CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/evalforge/evalforge/compreg"
	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/eval"
	"github.com/evalforge/evalforge/evalconfig"
	"github.com/evalforge/evalforge/modelproviders/anthropic"
	"github.com/evalforge/evalforge/modelproviders/bedrock"
	"github.com/evalforge/evalforge/modelproviders/openai"
)

// Exit codes, spec §6.
const (
	exitSuccess     = 0
	exitFailure     = 1
	exitConfig      = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: evalctl <config.yaml> [log-dir]")
		return exitConfig
	}
	cfg, err := evalconfig.Load(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	logDir := cfg.LogDir
	if len(args) > 1 {
		logDir = args[1]
	}
	if logDir == "" {
		logDir = "."
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := buildRegistry(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	failed := false
	for _, t := range cfg.Tasks {
		if err := runTask(ctx, registry, t, logDir); err != nil {
			if ctx.Err() != nil {
				return exitInterrupted
			}
			fmt.Fprintf(os.Stderr, "task %q: %v\n", t.Name, err)
			failed = true
		}
	}
	if failed {
		return exitFailure
	}
	return exitSuccess
}

// buildRegistry registers every model provider this binary knows how to
// construct from ambient credentials. A provider whose credentials are
// absent is simply not registered; tasks naming it fail resolution with a
// clear "no model registered" error rather than a credential panic.
func buildRegistry(ctx context.Context) (*compreg.Registry, error) {
	reg := compreg.New()

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		client, err := anthropic.NewFromAPIKey(key, anthropic.Options{DefaultModel: "claude-3-5-sonnet-latest"})
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		reg.RegisterModel("anthropic", client)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		client, err := openai.NewFromAPIKey(key, openai.Options{DefaultModel: "gpt-4o"})
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		reg.RegisterModel("openai", client)
	}
	if os.Getenv("AWS_REGION") != "" || os.Getenv("AWS_PROFILE") != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("bedrock: load aws config: %w", err)
		}
		runtime := bedrockruntime.NewFromConfig(awsCfg)
		client, err := bedrock.New(runtime, bedrock.Options{DefaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0"})
		if err != nil {
			return nil, fmt.Errorf("bedrock: %w", err)
		}
		reg.RegisterModel("bedrock", client)
	}
	return reg, nil
}

func runTask(ctx context.Context, reg *compreg.Registry, t evalconfig.TaskConfig, logDir string) error {
	scheme, _, _ := strings.Cut(t.Model.Name, "/")
	modelAPI, err := reg.Model(scheme)
	if err != nil {
		return fmt.Errorf("resolve model: %w", err)
	}

	tools, err := reg.Tools(t.Tools)
	if err != nil {
		return fmt.Errorf("resolve tools: %w", err)
	}
	scorers, err := reg.Scorers(t.Scorers)
	if err != nil {
		return fmt.Errorf("resolve scorers: %w", err)
	}

	schedCfg, err := t.Scheduler.ToSchedulerConfig()
	if err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}

	samples, err := loadDataset(t.Dataset)
	if err != nil {
		return fmt.Errorf("load dataset %q: %w", t.Dataset.Name, err)
	}

	task := eval.Task{
		ID:        t.Name,
		Name:      t.Name,
		Samples:   samples,
		Model:     modelAPI,
		ModelName: t.Model.Name,
		Tools:     tools,
		Scorers:   scorers,
		PassAtK:   t.PassAtK,
		Scheduler: schedCfg,
	}
	runner, err := eval.NewRunner(task)
	if err != nil {
		return fmt.Errorf("build runner: %w", err)
	}

	runID := fmt.Sprintf("%s-%d", t.Name, time.Now().UnixNano())
	logPath := filepath.Join(logDir, runID+".json")
	doc, err := runner.Run(ctx, runID, logPath)
	if err != nil {
		return err
	}
	if doc.Status != "success" {
		return fmt.Errorf("run finished with status %q (log: %s)", doc.Status, logPath)
	}
	return nil
}

// loadDataset is a placeholder for the dataset-loading collaborator spec
// §1 names as deliberately out of scope ("Dataset loading from file
// formats"); a real deployment wires a CSV/JSON/HF loader here.
func loadDataset(d evalconfig.DatasetConfig) ([]dataset.Sample, error) {
	return nil, errors.New("evalctl: no dataset loader configured for " + d.Location)
}
