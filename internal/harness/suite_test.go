package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0755))

	paths, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, paths)
}

func TestRunSuite_CollectsFailures(t *testing.T) {
	rules := writeRules(t, counterRules)
	dir := t.TempDir()

	good := `
name: good
description: "passes"
rules: [` + rules + `]
facts:
  - id: c
    value: { type: Counter, n: 1 }
steps:
  - fire: bump
    bind: { $c: c }
assertions:
  - type: fact_present
    match: { n: 2 }
`
	bad := `
name: bad
description: "fails an assertion"
rules: [` + rules + `]
facts:
  - id: c
    value: { type: Counter, n: 1 }
steps:
  - fire: bump
    bind: { $c: c }
assertions:
  - type: fact_present
    match: { n: 5 }
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(good), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0644))

	result, err := RunSuite(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].ScenarioPath, "bad.yaml")
	assert.Contains(t, result.Failures[1].Errors[0], "failed to load scenario")
}

func TestRunSuite_EmptyDirectory(t *testing.T) {
	_, err := RunSuite(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenarios found")
}
