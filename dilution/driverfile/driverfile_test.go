package driverfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-ext/dilution/dilution"
	"github.com/clarity-ext/dilution/dilution/pairs"
)

const stepYAML = `
containers:
  - {id: src, type: well-plate-96}
  - {id: ctrl, type: well-plate-96}
  - {id: dst, type: well-plate-96}
artifacts:
  - {id: s1, container: src, well: "A:1", fields: {"Conc. Current (ng/ul)": 100, "Current sample volume (ul)": 30}}
  - {id: s2, container: src, well: "B:1", fields: {"Conc. Current (ng/ul)": 50, "Current sample volume (ul)": 30}}
  - {id: neg, container: ctrl, well: "A:1", control: true}
  - {id: t1, container: dst, well: "A:1", fields: {"Target conc. (ng/ul)": 20, "Target vol. (ul)": 50}}
  - {id: t2, container: dst, well: "B:1", fields: {"Target conc. (ng/ul)": 20, "Target vol. (ul)": 50}}
  - {id: t3, container: dst, well: "C:1"}
pairs:
  - {source: s1, target: t1}
  - {source: s2, target: t2}
  - {source: neg, target: t3}
`

func evaluate(t *testing.T, settingsYAML string) (*dilution.TransferBatchCollection, dilution.RobotSettings) {
	t.Helper()
	settings, err := dilution.ParseSettings([]byte(settingsYAML))
	require.NoError(t, err)
	sess, err := dilution.NewSession(settings, nil, nil)
	require.NoError(t, err)
	step, err := pairs.Parse([]byte(stepYAML), *sess.Settings().Fields)
	require.NoError(t, err)
	require.NoError(t, sess.Evaluate(step))
	robot := sess.Settings().Robots[0]
	c, err := sess.TransferBatches(robot.Name)
	require.NoError(t, err)
	return c, robot
}

func TestRender_DefaultColumns_SkipsEmptyTransfers(t *testing.T) {
	// GIVEN two calculated transfers and one control transfer
	c, robot := evaluate(t, "robots: [{name: hamilton, min_pipette_volume: 2}]")
	b, ok := c.Batch(dilution.DefaultBatchKey)
	require.True(t, ok)

	// WHEN rendered
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, b, robot))

	// THEN one comma separated row per pipetted transfer, control omitted
	assert.Equal(t, "DNA1,1,END1,1,10.0,40.0\nDNA1,2,END1,2,20.0,30.0\n", buf.String())
}

func TestRender_CustomDelimiterHeaderAndColumns(t *testing.T) {
	settings := `
robots:
  - name: tecan
    min_pipette_volume: 2
    delimiter: ";"
    header: [Src, Well, Target, Sample]
    columns: [source_slot, source_well, target_artifact, sample_volume]
`
	c, robot := evaluate(t, settings)
	b, _ := c.Batch(dilution.DefaultBatchKey)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, b, robot))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"Src;Well;Target;Sample",
		"DNA1;A:1;t1;10.0",
		"DNA1;B:1;t2;20.0",
	}, lines)
}

func TestRender_UnknownColumn_Error(t *testing.T) {
	c, robot := evaluate(t, "robots: [{name: hamilton, min_pipette_volume: 2}]")
	b, _ := c.Batch(dilution.DefaultBatchKey)
	robot.Columns = []string{"colour"}

	err := Render(&bytes.Buffer{}, b, robot)

	assert.ErrorContains(t, err, `unknown driver-file column "colour"`)
}

func TestWriteAll_OneFilePerBatch(t *testing.T) {
	// GIVEN a collection with a single default batch
	c, robot := evaluate(t, "robots: [{name: hamilton, min_pipette_volume: 2, file_extension: txt}]")
	dir := filepath.Join(t.TempDir(), "out")

	// WHEN written to a directory that does not exist yet
	paths, err := WriteAll(dir, c, robot)

	// THEN the directory is created and the file is named after robot and batch
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "hamilton_default.txt")}, paths)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "DNA1,1,END1,1,10.0,40.0\nDNA1,2,END1,2,20.0,30.0\n", string(data))
}
