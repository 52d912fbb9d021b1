package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: minimal
events:
  - {kind: track, key: t, label: t1}
  - {kind: construct, name: source, label: src}
  - {end: src}
  - {end: t1, node_ref: src}
assertions:
  - type: track
    key: t
    shape: source
`

const failingScenario = `
name: failing
events:
  - {kind: track, key: t, label: t1}
  - {end: t1}
assertions:
  - type: track_absent
    key: t
`

func writeScenario(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", "../harness/testdata/scenarios", "--format", "json")
	require.NoError(t, err, out)

	status, data := decodeData(t, out)
	assert.Equal(t, "ok", status)
	assert.Equal(t, float64(0), data["failed"])
	for _, s := range data["scenarios"].([]any) {
		assert.Equal(t, "match", s.(map[string]any)["golden"])
	}
}

func TestTestCommandFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scenarios")
	writeScenario(t, dir, "a.yaml", passingScenario)
	writeScenario(t, dir, "b.yaml", failingScenario)

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ minimal")
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scenarios")
	writeScenario(t, dir, "pass.yaml", passingScenario)
	writeScenario(t, dir, "fail.yaml", failingScenario)

	out, err := execute(t, "test", dir, "--filter", "pass*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandUpdateGolden(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "scenarios")
	writeScenario(t, dir, "a.yaml", passingScenario)

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	golden, err := os.ReadFile(filepath.Join(root, "golden", "minimal.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario":"minimal"`)

	out, err = execute(t, "test", dir, "--format", "json")
	require.NoError(t, err)
	_, data := decodeData(t, out)
	assert.Equal(t, "match", data["scenarios"].([]any)[0].(map[string]any)["golden"])

	require.NoError(t, os.WriteFile(filepath.Join(root, "golden", "minimal.golden"), []byte("{}"), 0o644))
	_, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
