package dilution

import (
	"fmt"
	"math"
)

// volumeEpsilon absorbs float noise when comparing volumes against limits.
const volumeEpsilon = 1e-9

// CalcContext carries what a strategy needs besides the transfers themselves.
type CalcContext struct {
	Settings *Settings
	Robot    RobotSettings
	Results  *ValidationResults
}

// VolumeCalc populates pipette volumes on transfers in place.
// Implementations never panic on missing or zero inputs: they record an
// ERROR for the transfer and leave it uncalculated.
type VolumeCalc interface {
	Name() string
	Calculate(transfers []*SingleTransfer, ctx CalcContext)
}

// FixedVolumeCalc takes the sample volume from configuration and only
// derives the source volume delta.
type FixedVolumeCalc struct{}

func (FixedVolumeCalc) Name() string { return "fixed-volume" }

func (FixedVolumeCalc) Calculate(transfers []*SingleTransfer, ctx CalcContext) {
	for _, t := range transfers {
		if ctx.Settings.FixedSampleVolume != nil && t.PipetteSampleVolume == 0 {
			t.PipetteSampleVolume = *ctx.Settings.FixedSampleVolume
		}
		t.SourceVolDelta = Float64Ptr(-(t.PipetteSampleVolume + ctx.Robot.WasteVolume))
		t.FinalVolume = Float64Ptr(t.TotalVolume())
		t.Calculated = true
	}
}

// OneToOneConcentrationCalc dilutes one source well into one target well.
type OneToOneConcentrationCalc struct{}

func (OneToOneConcentrationCalc) Name() string { return "one-to-one" }

func (OneToOneConcentrationCalc) Calculate(transfers []*SingleTransfer, ctx CalcContext) {
	for _, t := range transfers {
		sc, tc, tv, err := concentrationInputs(t)
		if err != nil {
			ctx.Results.Error(t, "cannot calculate volumes: %v", err)
			continue
		}
		sample := tc * tv / sc
		t.HasToEvaporate = tv-sample < 0
		buffer := math.Max(tv-sample, 0)

		factor := 1.0
		if ctx.Settings.ScaleUp && sample > 0 && sample < ctx.Robot.MinPipetteVolume-volumeEpsilon {
			factor = ctx.Robot.MinPipetteVolume / sample
			t.ScaledUp = true
		}
		t.PipetteSampleVolume = sample * factor
		t.PipetteBufferVolume = buffer * factor
		t.FinalConcentration = Float64Ptr(tc)
		t.FinalVolume = Float64Ptr(tv * factor)
		t.SourceVolDelta = Float64Ptr(-(t.PipetteSampleVolume + ctx.Robot.WasteVolume))
		t.Calculated = true
		reportQuality(t, ctx, factor)
	}
}

// PoolConcentrationCalc dispenses N source wells into one shared target well.
// All transfers passed to Calculate must belong to the same pool; the first
// one absorbs the buffer volume. The target concentration is only reported
// when every member shares one source concentration. Member samples summing
// above the requested volume are an ERROR.
type PoolConcentrationCalc struct{}

func (PoolConcentrationCalc) Name() string { return "pool" }

func (PoolConcentrationCalc) Calculate(members []*SingleTransfer, ctx CalcContext) {
	if len(members) == 0 {
		return
	}
	rep := members[0]
	n := float64(len(members))

	_, tc, tv, err := concentrationInputs(rep)
	if err != nil {
		for _, m := range members {
			ctx.Results.Error(m, "cannot calculate pool volumes: %v", err)
		}
		return
	}
	sameRequest, sameSource := true, true
	var firstSource float64
	samples := make([]float64, len(members))
	for i, m := range members {
		sc, mtc, mtv, err := concentrationInputs(m)
		if err != nil {
			for _, other := range members {
				ctx.Results.Error(other, "cannot calculate pool volumes: member %s: %v", m.Source.ArtifactName, err)
			}
			return
		}
		if i == 0 {
			firstSource = sc
		}
		if math.Abs(sc-firstSource) > volumeEpsilon {
			sameSource = false
		}
		if mtc != tc || mtv != tv {
			sameRequest = false
		}
		samples[i] = tc * tv / sc / n
	}
	if !sameSource {
		ctx.Results.Warning(rep, "pool members have different source concentrations; target concentration left unset")
	}
	if !sameRequest {
		ctx.Results.Warning(rep, "pool members request different target concentrations or volumes; target concentration left unset")
	}

	sum, minSample := 0.0, math.Inf(1)
	for _, s := range samples {
		sum += s
		minSample = math.Min(minSample, s)
	}
	evaporate := tv-sum < 0
	buffer := math.Max(tv-sum, 0)
	if evaporate {
		ctx.Results.Error(rep, "pool target volume %g ul is unreachable: members need %.1f ul of sample", tv, sum)
	}

	factor := 1.0
	if ctx.Settings.ScaleUp && minSample > 0 && minSample < ctx.Robot.MinPipetteVolume-volumeEpsilon {
		factor = ctx.Robot.MinPipetteVolume / minSample
	}

	for i, m := range members {
		m.PipetteSampleVolume = samples[i] * factor
		m.PipetteBufferVolume = 0
		m.HasToEvaporate = evaporate
		m.ScaledUp = factor != 1
		m.IsPoolRepresentative = i == 0
		m.FinalConcentration = nil
		m.FinalVolume = nil
		m.SourceVolDelta = Float64Ptr(-(m.PipetteSampleVolume + ctx.Robot.WasteVolume))
		m.Calculated = true
	}
	rep.PipetteBufferVolume = buffer * factor
	if sameSource && sameRequest {
		rep.FinalConcentration = Float64Ptr(tc)
	}
	rep.FinalVolume = Float64Ptr(tv * factor)
	reportQuality(rep, ctx, factor)
}

// concentrationInputs returns source concentration, requested concentration
// and requested volume, rejecting missing or non-positive values.
func concentrationInputs(t *SingleTransfer) (sc, tc, tv float64, err error) {
	switch {
	case t.Source.Concentration == nil:
		return 0, 0, 0, fmt.Errorf("source concentration is missing")
	case *t.Source.Concentration <= 0:
		return 0, 0, 0, fmt.Errorf("source concentration must be positive, got %g", *t.Source.Concentration)
	case t.Target.RequestedConcentration == nil:
		return 0, 0, 0, fmt.Errorf("requested concentration is missing")
	case t.Target.RequestedVolume == nil:
		return 0, 0, 0, fmt.Errorf("requested volume is missing")
	case *t.Target.RequestedVolume <= 0:
		return 0, 0, 0, fmt.Errorf("requested volume must be positive, got %g", *t.Target.RequestedVolume)
	case *t.Target.RequestedConcentration < 0:
		return 0, 0, 0, fmt.Errorf("requested concentration must be non-negative, got %g", *t.Target.RequestedConcentration)
	}
	return *t.Source.Concentration, *t.Target.RequestedConcentration, *t.Target.RequestedVolume, nil
}

func reportQuality(t *SingleTransfer, ctx CalcContext, factor float64) {
	if t.HasToEvaporate {
		ctx.Results.Warning(t, "requested concentration cannot be reached by dilution; sample has to be evaporated")
	}
	if factor != 1 {
		ctx.Results.Warning(t, "volumes scaled up %.2fx to respect the minimum pipette volume of %g ul", factor, ctx.Robot.MinPipetteVolume)
	}
}
