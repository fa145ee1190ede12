package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyScenario copies a testdata scenario into dir.
func copyScenario(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "posts_lifecycle")
	copyScenario(t, dir, "posts_paging")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "stray.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "more.yml"), []byte("x"), 0o644))

	files, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "nested", "more.yml"),
		filepath.Join(dir, "posts_lifecycle.yaml"),
		filepath.Join(dir, "posts_paging.yaml"),
	}, files)

	files, err = FindScenarios(dir, "posts_p*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "posts_paging.yaml")}, files)

	_, err = FindScenarios(dir, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "a.golden"), GoldenPath(filepath.Join("s", "a.yaml")))
}

func TestRunSuite_GoldenLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := copyScenario(t, dir, "posts_lifecycle")

	// No golden file yet: assertions alone decide.
	res, err := RunSuite(ctx, []string{path}, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passed)

	res, err = RunSuite(ctx, []string{path}, SuiteOptions{Update: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passed)

	written, err := os.ReadFile(GoldenPath(path))
	require.NoError(t, err)
	committed, err := os.ReadFile(filepath.Join("testdata", "golden", "posts_lifecycle.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(committed), string(written))

	res, err = RunSuite(ctx, []string{path}, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passed)

	require.NoError(t, os.WriteFile(GoldenPath(path), []byte("{}\n"), 0o644))
	res, err = RunSuite(ctx, []string{path}, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, []string{"trace does not match golden file (run with --update to regenerate)"}, res.Failures[0].Errors)
}

func TestRunSuite_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	good := copyScenario(t, dir, "posts_paging")
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: broken\n"), 0o644))

	res, err := RunSuite(context.Background(), []string{good, broken}, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, broken, res.Failures[0].ScenarioPath)
	assert.Contains(t, res.Failures[0].Errors[0], "failed to load scenario")
}
