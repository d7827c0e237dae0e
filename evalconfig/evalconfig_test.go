package evalconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/evalconfig"
)

const sample = `
log_dir: /tmp/logs
tasks:
  - name: arithmetic
    dataset:
      name: arithmetic
      location: ./arithmetic.jsonl
    model:
      name: anthropic/claude-3-5-sonnet-latest
    scheduler:
      max_samples: 4
      fail_on_error: "0.1"
    scorers: [exact_match]
    pass_at_k: [1, 4]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eval.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesTasksAndAppliesDefaults(t *testing.T) {
	cfg, err := evalconfig.Load(writeConfig(t, sample))
	require.NoError(t, err)

	require.Len(t, cfg.Tasks, 1)
	task := cfg.Tasks[0]
	assert.Equal(t, "arithmetic", task.Name)
	assert.Equal(t, "anthropic/claude-3-5-sonnet-latest", task.Model.Name)
	assert.Equal(t, []int{1, 4}, task.PassAtK)

	sched, err := task.Scheduler.ToSchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, sched.MaxSamples)
}

func TestLoadRejectsMissingModelName(t *testing.T) {
	const bad = `
tasks:
  - name: broken
    dataset: {name: x, location: x}
`
	_, err := evalconfig.Load(writeConfig(t, bad))
	require.Error(t, err)
}

func TestLoadRejectsUnparsableFailOnError(t *testing.T) {
	const bad = `
tasks:
  - name: broken
    dataset: {name: x, location: x}
    model: {name: openai/gpt-4o}
    scheduler: {fail_on_error: "maybe"}
`
	_, err := evalconfig.Load(writeConfig(t, bad))
	require.Error(t, err)
}

func TestEnvOverlayFillsUnsetFields(t *testing.T) {
	t.Setenv("MAX_SAMPLES", "7")

	const minimal = `
tasks:
  - name: t
    dataset: {name: x, location: x}
    model: {name: openai/gpt-4o}
`
	cfg, err := evalconfig.Load(writeConfig(t, minimal))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Tasks[0].Scheduler.MaxSamples)
}

func TestSaveRoundTrips(t *testing.T) {
	cfg, err := evalconfig.Load(writeConfig(t, sample))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, evalconfig.Save(out, cfg))

	reloaded, err := evalconfig.Load(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Tasks[0].Name, reloaded.Tasks[0].Name)
}
