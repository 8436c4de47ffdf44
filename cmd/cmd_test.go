package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/clarity-ext/dilution/dilution"
)

const testSettings = `
robots:
  - name: hamilton
    min_pipette_volume: 2
`

const testPairs = `
containers:
  - {id: src, type: well-plate-96}
  - {id: dst, type: well-plate-96}
artifacts:
  - {id: s1, container: src, well: "A:1", fields: {"Conc. Current (ng/ul)": 100, "Current sample volume (ul)": 30}}
  - {id: t1, container: dst, well: "A:1", fields: {"Target conc. (ng/ul)": 20, "Target vol. (ul)": 50}}
pairs:
  - {source: s1, target: t1}
`

// writeInputs writes settings and pairs files into a fresh temp dir.
func writeInputs(t *testing.T, settings, pairs string) (dir, settingsPath, pairsPath string) {
	t.Helper()
	dir = t.TempDir()
	settingsPath = filepath.Join(dir, "settings.yaml")
	pairsPath = filepath.Join(dir, "pairs.yaml")
	require.NoError(t, os.WriteFile(settingsPath, []byte(settings), 0o644))
	require.NoError(t, os.WriteFile(pairsPath, []byte(pairs), 0o644))
	return dir, settingsPath, pairsPath
}

func TestRunEvaluate_WritesDriverFilesUpdatesAndMetrics(t *testing.T) {
	// GIVEN valid settings and pairs
	dir, settingsPath, pairsPath := writeInputs(t, testSettings, testPairs)
	opts := evaluateOptions{
		SettingsPath: settingsPath,
		PairsPath:    pairsPath,
		OutDir:       filepath.Join(dir, "out"),
		UpdatesPath:  filepath.Join(dir, "updates.yaml"),
		MetricsPath:  filepath.Join(dir, "metrics.prom"),
		TraceLevel:   "decisions",
		Summarize:    true,
	}

	// WHEN evaluate runs
	var out bytes.Buffer
	require.NoError(t, runEvaluate(opts, &out))

	// THEN the driver file holds the single transfer
	driver, err := os.ReadFile(filepath.Join(opts.OutDir, "hamilton_default.csv"))
	require.NoError(t, err)
	assert.Equal(t, "DNA1,1,END1,1,10.0,40.0\n", string(driver))

	// AND update infos are keyed by target artifact
	data, err := os.ReadFile(opts.UpdatesPath)
	require.NoError(t, err)
	var updates map[string]dilution.UpdateInfo
	require.NoError(t, yaml.Unmarshal(data, &updates))
	require.Contains(t, updates, "t1")
	assert.Equal(t, 20.0, *updates["t1"].TargetConcentration)
	assert.Equal(t, 50.0, *updates["t1"].TargetVolume)
	assert.Equal(t, -10.0, *updates["t1"].SourceVolDelta)

	// AND metrics and the trace summary are emitted
	metricsText, err := os.ReadFile(opts.MetricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), `dilution_evaluations_total{outcome="ok",robot="hamilton"} 1`)
	assert.Contains(t, out.String(), "wrote "+filepath.Join(opts.OutDir, "hamilton_default.csv"))
	assert.Contains(t, out.String(), "=== Trace Summary ===")
	assert.Contains(t, out.String(), "Calculations: 1")
}

func TestRunEvaluate_ValidationErrors_NoDriverFiles(t *testing.T) {
	// GIVEN a source without a volume
	pairsText := `
containers: [{id: src, type: well-plate-96}, {id: dst, type: well-plate-96}]
artifacts:
  - {id: s1, container: src, well: "A:1", fields: {"Conc. Current (ng/ul)": 100}}
  - {id: t1, container: dst, well: "A:1", fields: {"Target conc. (ng/ul)": 20, "Target vol. (ul)": 50}}
pairs: [{source: s1, target: t1}]
`
	dir, settingsPath, pairsPath := writeInputs(t, testSettings, pairsText)
	opts := evaluateOptions{
		SettingsPath: settingsPath,
		PairsPath:    pairsPath,
		OutDir:       filepath.Join(dir, "out"),
		MetricsPath:  filepath.Join(dir, "metrics.prom"),
	}

	// WHEN evaluate runs
	err := runEvaluate(opts, &bytes.Buffer{})

	// THEN it fails with the validation message and writes no driver file
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation errors")
	assert.Contains(t, err.Error(), "source volume is missing")
	_, statErr := os.Stat(opts.OutDir)
	assert.True(t, os.IsNotExist(statErr))

	// AND metrics are still written
	_, statErr = os.Stat(opts.MetricsPath)
	assert.NoError(t, statErr)
}

func TestRunEvaluate_BadInputs_Error(t *testing.T) {
	_, settingsPath, pairsPath := writeInputs(t, testSettings, testPairs)

	err := runEvaluate(evaluateOptions{SettingsPath: settingsPath, PairsPath: pairsPath, TraceLevel: "verbose"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown trace level")

	err = runEvaluate(evaluateOptions{SettingsPath: settingsPath, PairsPath: pairsPath, Robot: "nope"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, dilution.ErrUnknownRobot)

	err = runEvaluate(evaluateOptions{SettingsPath: filepath.Join(t.TempDir(), "missing.yaml"), PairsPath: pairsPath}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunReport_PrintsBatchesPerRobot(t *testing.T) {
	_, settingsPath, pairsPath := writeInputs(t, testSettings, testPairs)

	var out bytes.Buffer
	require.NoError(t, runReport(settingsPath, pairsPath, "", &out))

	assert.Contains(t, out.String(), "=== Robot hamilton ===")
	assert.Contains(t, out.String(), "DNA1 A:1 -> END1 A:1 sample=10.0 buffer=40.0")
	assert.Contains(t, out.String(), "0 error(s), 0 warning(s)")

	assert.ErrorIs(t, runReport(settingsPath, pairsPath, "nope", &bytes.Buffer{}), dilution.ErrUnknownRobot)
}

func TestRunCheckSettings(t *testing.T) {
	_, settingsPath, _ := writeInputs(t, testSettings, testPairs)

	var out bytes.Buffer
	require.NoError(t, runCheckSettings(settingsPath, &out))
	assert.Contains(t, out.String(), "settings OK")
	assert.Contains(t, out.String(), "robot hamilton: traversal=down-first min=2")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("robots: [{name: x, min_pipette_volume: 0}]"), 0o644))
	assert.ErrorContains(t, runCheckSettings(bad, &bytes.Buffer{}), "invalid dilution settings")

	typo := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(typo, []byte("robotz: []"), 0o644))
	assert.Error(t, runCheckSettings(typo, &bytes.Buffer{}))
}
