package dilution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func concTransfer(id int, sc, tc, tv float64) *SingleTransfer {
	src := &TransferEndpoint{
		Well:          WellRef{Container: "src", Position: Position{Row: id, Col: 1}},
		ArtifactID:    "s",
		ArtifactName:  "s",
		Concentration: Float64Ptr(sc),
		Volume:        Float64Ptr(100),
	}
	tgt := &TransferEndpoint{
		Well:                   WellRef{Container: "dst", Position: Position{Row: 1, Col: 1}},
		ArtifactID:             "t",
		ArtifactName:           "t",
		RequestedConcentration: Float64Ptr(tc),
		RequestedVolume:        Float64Ptr(tv),
	}
	return NewSingleTransfer(id, src, tgt)
}

func calcContext(t *testing.T, yamlText string) (CalcContext, *ValidationResults) {
	t.Helper()
	s := mustSettings(t, yamlText)
	results := &ValidationResults{}
	return CalcContext{Settings: s, Robot: s.Robots[0], Results: results}, results
}

func TestOneToOne_PlainDilution(t *testing.T) {
	// GIVEN source 100 ng/ul diluted to 20 ng/ul in 50 ul
	ctx, results := calcContext(t, baseSettings)
	tr := concTransfer(1, 100, 20, 50)

	// WHEN calculated
	OneToOneConcentrationCalc{}.Calculate([]*SingleTransfer{tr}, ctx)

	// THEN 10 ul sample and 40 ul buffer, no flags
	assert.InDelta(t, 10.0, tr.PipetteSampleVolume, 1e-9)
	assert.InDelta(t, 40.0, tr.PipetteBufferVolume, 1e-9)
	assert.False(t, tr.HasToEvaporate)
	assert.False(t, tr.ScaledUp)
	assert.True(t, tr.Calculated)
	assert.InDelta(t, 20.0, *tr.FinalConcentration, 1e-9)
	assert.InDelta(t, 50.0, *tr.FinalVolume, 1e-9)
	assert.InDelta(t, -10.0, *tr.SourceVolDelta, 1e-9)
	assert.Empty(t, results.Items)
}

func TestOneToOne_RequestAboveSource_HasToEvaporate(t *testing.T) {
	// GIVEN source 10 ng/ul and a request of 50 ng/ul in 20 ul
	ctx, results := calcContext(t, baseSettings)
	tr := concTransfer(1, 10, 50, 20)

	// WHEN calculated
	OneToOneConcentrationCalc{}.Calculate([]*SingleTransfer{tr}, ctx)

	// THEN 100 ul would be needed: evaporate, no buffer, one warning
	assert.InDelta(t, 100.0, tr.PipetteSampleVolume, 1e-9)
	assert.Equal(t, 0.0, tr.PipetteBufferVolume)
	assert.True(t, tr.HasToEvaporate)
	assert.False(t, results.HasErrors())
	assert.Len(t, results.Warnings(), 1)
}

func TestOneToOne_BelowMinimum_ScalesUp(t *testing.T) {
	// GIVEN source 1000 ng/ul diluted to 5 ng/ul in 20 ul with a 2 ul minimum
	ctx, results := calcContext(t, baseSettings)
	tr := concTransfer(1, 1000, 5, 20)

	// WHEN calculated
	OneToOneConcentrationCalc{}.Calculate([]*SingleTransfer{tr}, ctx)

	// THEN everything is scaled 20x
	assert.InDelta(t, 2.0, tr.PipetteSampleVolume, 1e-9)
	assert.InDelta(t, 398.0, tr.PipetteBufferVolume, 1e-9)
	assert.True(t, tr.ScaledUp)
	assert.InDelta(t, 400.0, *tr.FinalVolume, 1e-9)
	assert.InDelta(t, 5.0, *tr.FinalConcentration, 1e-9)
	assert.Len(t, results.Warnings(), 1)
}

func TestOneToOne_ScaleUpDisabled_KeepsSmallVolume(t *testing.T) {
	ctx, _ := calcContext(t, "scale_up: false\nrobots: [{name: a, min_pipette_volume: 2}]")
	tr := concTransfer(1, 1000, 5, 20)

	OneToOneConcentrationCalc{}.Calculate([]*SingleTransfer{tr}, ctx)

	assert.InDelta(t, 0.1, tr.PipetteSampleVolume, 1e-9)
	assert.InDelta(t, 19.9, tr.PipetteBufferVolume, 1e-9)
	assert.False(t, tr.ScaledUp)
}

func TestOneToOne_ConservationAndScaleRatio(t *testing.T) {
	ctx, _ := calcContext(t, baseSettings)
	cases := []struct{ sc, tc, tv float64 }{
		{100, 20, 50}, {80, 2, 30}, {55.5, 10, 12}, {1000, 1, 10}, {300, 0.5, 40}, {12, 12, 25},
	}
	for _, c := range cases {
		tr := concTransfer(1, c.sc, c.tc, c.tv)
		OneToOneConcentrationCalc{}.Calculate([]*SingleTransfer{tr}, ctx)
		require.True(t, tr.Calculated)

		rawSample := c.tc * c.tv / c.sc
		factor := *tr.FinalVolume / c.tv
		// Volume conservation holds for the (possibly scaled) requested volume.
		assert.InDelta(t, *tr.FinalVolume, tr.PipetteSampleVolume+tr.PipetteBufferVolume, 1e-9)
		// Concentration is preserved by scaling.
		assert.InDelta(t, rawSample*factor, tr.PipetteSampleVolume, 1e-9)
		if tr.ScaledUp {
			assert.GreaterOrEqual(t, tr.PipetteSampleVolume, ctx.Robot.MinPipetteVolume-1e-9)
			assert.InDelta(t, rawSample/(c.tv-rawSample), tr.PipetteSampleVolume/tr.PipetteBufferVolume, 1e-9)
		}
	}
}

func TestOneToOne_MissingOrZeroInputs_ErrorNotPanic(t *testing.T) {
	ctx, results := calcContext(t, baseSettings)
	zero := concTransfer(1, 0, 20, 50)
	missing := concTransfer(2, 100, 20, 50)
	missing.Target.RequestedVolume = nil

	assert.NotPanics(t, func() {
		OneToOneConcentrationCalc{}.Calculate([]*SingleTransfer{zero, missing}, ctx)
	})
	assert.False(t, zero.Calculated)
	assert.False(t, missing.Calculated)
	assert.Len(t, results.Errors(), 2)
}

func TestFixedVolume_UsesConfiguredSampleAndWaste(t *testing.T) {
	ctx, _ := calcContext(t, "volume_calc_method: fixed\nfixed_sample_volume: 5\nrobots: [{name: a, min_pipette_volume: 2, waste_volume: 1}]")
	tr := concTransfer(1, 100, 20, 50)

	FixedVolumeCalc{}.Calculate([]*SingleTransfer{tr}, ctx)

	assert.Equal(t, 5.0, tr.PipetteSampleVolume)
	assert.Equal(t, 0.0, tr.PipetteBufferVolume)
	assert.InDelta(t, -6.0, *tr.SourceVolDelta, 1e-9)
	assert.True(t, tr.Calculated)
}

func poolMembers(sources []float64, tc, tv float64) []*SingleTransfer {
	members := make([]*SingleTransfer, len(sources))
	for i, sc := range sources {
		members[i] = concTransfer(i+1, sc, tc, tv)
		members[i].PoolSize = len(sources)
	}
	return members
}

func TestPool_ThreeMembers_RepresentativeTakesBuffer(t *testing.T) {
	// GIVEN a pool of three sources at 10, 25 and 30 nM into 40 ul at 15 nM
	ctx, results := calcContext(t, baseSettings)
	members := poolMembers([]float64{10, 25, 30}, 15, 40)

	// WHEN calculated
	PoolConcentrationCalc{}.Calculate(members, ctx)

	// THEN samples are 20, 8 and 6.67 and the first member carries 5.33 buffer
	assert.InDelta(t, 20.0, members[0].PipetteSampleVolume, 1e-9)
	assert.InDelta(t, 8.0, members[1].PipetteSampleVolume, 1e-9)
	assert.InDelta(t, 6.6667, members[2].PipetteSampleVolume, 1e-4)
	assert.InDelta(t, 5.3333, members[0].PipetteBufferVolume, 1e-4)
	assert.Equal(t, 0.0, members[1].PipetteBufferVolume)
	assert.True(t, members[0].IsPoolRepresentative)
	assert.False(t, members[1].IsPoolRepresentative)
	assert.False(t, results.HasErrors())

	// AND differing source concentrations leave the target concentration unset
	require.Len(t, results.Warnings(), 1)
	assert.Contains(t, results.Warnings()[0].Message, "different source concentrations")
	assert.Nil(t, members[0].FinalConcentration)
	assert.InDelta(t, 40.0, *members[0].FinalVolume, 1e-9)

	// AND the pool conserves the requested volume
	sum := members[0].PipetteBufferVolume
	for _, m := range members {
		sum += m.PipetteSampleVolume
		assert.NotNil(t, m.SourceVolDelta)
	}
	assert.InDelta(t, 40.0, sum, 1e-9)

	// AND rounding at freeze gives 1dp volumes
	members[2].round()
	members[0].round()
	assert.Equal(t, 6.7, members[2].PipetteSampleVolume)
	assert.Equal(t, 5.3, members[0].PipetteBufferVolume)
}

func TestPool_SmallestMemberBelowMinimum_ScalesWholePool(t *testing.T) {
	ctx, _ := calcContext(t, baseSettings)
	members := poolMembers([]float64{100, 400}, 10, 10)

	PoolConcentrationCalc{}.Calculate(members, ctx)

	// raw samples 0.5 and 0.125; factor 16 from the minimum
	assert.InDelta(t, 8.0, members[0].PipetteSampleVolume, 1e-9)
	assert.InDelta(t, 2.0, members[1].PipetteSampleVolume, 1e-9)
	assert.InDelta(t, 150.0, members[0].PipetteBufferVolume, 1e-9)
	assert.InDelta(t, 160.0, *members[0].FinalVolume, 1e-9)
	for _, m := range members {
		assert.True(t, m.ScaledUp)
	}
}

func TestPool_DifferentRequests_WarnsAndLeavesConcentrationUnset(t *testing.T) {
	ctx, results := calcContext(t, baseSettings)
	members := poolMembers([]float64{30, 30}, 15, 40)
	members[1].Target.RequestedConcentration = Float64Ptr(12)

	PoolConcentrationCalc{}.Calculate(members, ctx)

	assert.True(t, members[0].Calculated)
	assert.Nil(t, members[0].FinalConcentration)
	assert.NotNil(t, members[0].FinalVolume)
	assert.Len(t, results.Warnings(), 1)
	assert.False(t, results.HasErrors())
}

func TestPool_SharedSourceConcentration_ReportsTarget(t *testing.T) {
	// GIVEN three members drawn at the same 30 nM
	ctx, results := calcContext(t, baseSettings)
	members := poolMembers([]float64{30, 30, 30}, 15, 40)

	// WHEN calculated
	PoolConcentrationCalc{}.Calculate(members, ctx)

	// THEN each member gives 6.67 ul, the representative 20 ul buffer, and the target is known
	for _, m := range members {
		assert.InDelta(t, 6.6667, m.PipetteSampleVolume, 1e-4)
	}
	assert.InDelta(t, 20.0, members[0].PipetteBufferVolume, 1e-9)
	require.NotNil(t, members[0].FinalConcentration)
	assert.Equal(t, 15.0, *members[0].FinalConcentration)
	assert.Empty(t, results.Items)
}

func TestPool_SamplesExceedTargetVolume_Error(t *testing.T) {
	// GIVEN two members at 5 nM asked to reach 15 nM in 40 ul
	ctx, results := calcContext(t, baseSettings)
	members := poolMembers([]float64{5, 5}, 15, 40)

	// WHEN calculated
	PoolConcentrationCalc{}.Calculate(members, ctx)

	// THEN the 120 ul of sample cannot fit and the pool is an ERROR
	assert.InDelta(t, 60.0, members[0].PipetteSampleVolume, 1e-9)
	assert.Equal(t, 0.0, members[0].PipetteBufferVolume)
	assert.True(t, members[0].HasToEvaporate)
	require.Len(t, results.Errors(), 1)
	assert.Contains(t, results.Errors()[0].Message, "pool target volume 40 ul is unreachable")
	assert.Same(t, members[0], results.Errors()[0].Transfer)
	assert.Len(t, results.Warnings(), 1, "evaporation warning")
}

func TestPool_MemberMissingConcentration_ErrorsForAll(t *testing.T) {
	ctx, results := calcContext(t, baseSettings)
	members := poolMembers([]float64{10, 25}, 15, 40)
	members[1].Source.Concentration = nil

	PoolConcentrationCalc{}.Calculate(members, ctx)

	assert.False(t, members[0].Calculated)
	assert.False(t, members[1].Calculated)
	assert.Len(t, results.Errors(), 2)
}
