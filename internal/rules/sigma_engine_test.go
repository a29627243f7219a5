package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/pkg/models"
)

const executableInTemp = `
title: Executable in temp directory
id: 6a1f0c55-2d2c-4c1b-9e1b-2c7d3f1e0a01
level: high
logsource:
  category: file_event
detection:
  selection:
    Extension: exe
    ParentPath|contains: '/temp/'
  condition: selection
`

const processCreation = `
title: Not a file rule
id: 11111111-2222-3333-4444-555555555555
logsource:
  category: process_creation
detection:
  selection:
    Image|endswith: '\cmd.exe'
  condition: selection
`

const aggregation = `
title: Too many
logsource:
  category: file
detection:
  selection:
    Extension: tmp
  condition: selection | count() > 5
`

func writeRules(t *testing.T, rules map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range rules {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func TestLoadFileRulesStats(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"exe.yml":    executableInTemp,
		"proc.yml":   processCreation,
		"agg.yaml":   aggregation,
		"broken.yml": "title: [",
		"notes.txt":  "ignored",
	})

	engine, stats, err := LoadFileRules(dir)
	require.NoError(t, err)
	assert.Equal(t, RuleSetStats{Files: 4, Loaded: 1, NotFileRules: 1, Unsupported: 1, Unparsable: 1}, stats)
	assert.Equal(t, 1, engine.Len())
}

func TestSigmaEngineMatchesFileAttributes(t *testing.T) {
	dir := writeRules(t, map[string]string{"exe.yml": executableInTemp})
	engine, _, err := LoadFileRules(filepath.Join(dir, "exe.yml"))
	require.NoError(t, err)

	hit := &models.File{FileName: "dropper.EXE", Parent: "/Users/bob/AppData/Local/temp"}
	matches := engine.Apply(hit)
	require.Len(t, matches, 1)
	assert.Equal(t, "Executable in temp directory", matches[0].Title)
	assert.Equal(t, "high", matches[0].Severity)

	miss := &models.File{FileName: "notes.txt", Parent: "/Users/bob/AppData/Local/temp"}
	assert.Empty(t, engine.Apply(miss))
}

func TestNoopEngine(t *testing.T) {
	var e Engine = &NoopEngine{}
	assert.Nil(t, e.Apply(&models.File{FileName: "a.exe"}))
}

func TestSigmaEngineRejectsNonYAML(t *testing.T) {
	dir := writeRules(t, map[string]string{"rule.json": "{}"})
	_, _, err := LoadFileRules(filepath.Join(dir, "rule.json"))
	assert.Error(t, err)
}
