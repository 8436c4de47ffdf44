package dilution

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// testStep builds an in-memory PairSource for tests.
type testStep struct {
	t     *testing.T
	inv   *Inventory
	pairs []ArtifactPair
	n     int
}

func newTestStep(t *testing.T) *testStep {
	t.Helper()
	return &testStep{t: t, inv: NewInventory()}
}

func (s *testStep) Pairs() ([]ArtifactPair, error) { return s.pairs, nil }
func (s *testStep) Inventory() *Inventory { return s.inv }

func (s *testStep) plate(id string) *Container {
	s.t.Helper()
	c, err := NewContainer(ContainerID(id), id, ContainerTypeWellPlate96)
	require.NoError(s.t, err)
	require.NoError(s.t, s.inv.Add(c))
	return c
}

func (s *testStep) place(c *Container, well string, a *Artifact) *Artifact {
	s.t.Helper()
	pos, err := ParsePosition(well)
	require.NoError(s.t, err)
	s.n++
	if a.ID == "" {
		a.ID = fmt.Sprintf("art-%d", s.n)
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	require.NoError(s.t, c.Place(pos, a))
	return a
}

// sample places a source aliquot with a concentration (both units) and volume.
func (s *testStep) sample(c *Container, well string, conc, vol float64) *Artifact {
	return s.place(c, well, &Artifact{
		ConcentrationNgUl: Float64Ptr(conc),
		ConcentrationNM:   Float64Ptr(conc),
		Volume:            Float64Ptr(vol),
	})
}

// target places a target aliquot requesting conc (both units) in vol.
func (s *testStep) target(c *Container, well string, conc, vol float64) *Artifact {
	return s.place(c, well, &Artifact{
		RequestedConcentrationNgUl: Float64Ptr(conc),
		RequestedConcentrationNM:   Float64Ptr(conc),
		RequestedVolume:            Float64Ptr(vol),
	})
}

func (s *testStep) pair(src, tgt *Artifact) {
	s.pairs = append(s.pairs, ArtifactPair{Source: src, Target: tgt})
}

const baseSettings = `
scale_up: true
robots:
  - name: hamilton
    min_pipette_volume: 2
`

func mustSettings(t *testing.T, yamlText string) *Settings {
	t.Helper()
	s, err := ParseSettings([]byte(yamlText))
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	return s
}

// runPipeline evaluates transfers built from step through the default
// pipeline for the first robot and returns the surviving transfers and env.
func runPipeline(t *testing.T, settings *Settings, step *testStep) ([]*SingleTransfer, *Env) {
	t.Helper()
	sess, err := NewSession(settings, nil, nil)
	require.NoError(t, err)
	sess.inv = step.inv
	sess.temps = newTemporaryContainers(step.inv)
	transfers := sess.buildTransfers(step.pairs)
	env := newEnv(sess.settings, sess.settings.Robots[0], step.inv, sess.temps, nil)
	out, err := sess.Pipeline.Run(env, transfers)
	require.NoError(t, err)
	return out, env
}
