package dilution

import (
	"github.com/sirupsen/logrus"

	"github.com/clarity-ext/dilution/dilution/trace"
)

// PreconditionHandler records every missing or invalid input of a transfer
// as an ERROR and excludes it from calculation. Other transfers continue.
type PreconditionHandler struct{}

func (PreconditionHandler) Name() string { return "preconditions" }

func (PreconditionHandler) ShouldExecute(_ *Env, t *SingleTransfer) bool {
	return !t.IsControl()
}

func (PreconditionHandler) Run(env *Env, t *SingleTransfer) ([]*SingleTransfer, error) {
	fail := func(format string, args ...any) {
		env.Results.Error(t, format, args...)
		t.PreconditionsFailed = true
	}
	if t.IsPooled() && !env.Settings.Pooling {
		fail("target well %s receives %d sources but pooling is disabled", t.Target.Well, t.PoolSize)
	}
	src, tgt := t.Source, t.Target
	if src.Volume == nil {
		fail("source volume is missing")
	} else if *src.Volume <= 0 {
		fail("source volume must be positive, got %g", *src.Volume)
	}
	if env.Settings.VolumeCalcMethod != CalcByConcentration {
		return []*SingleTransfer{t}, nil
	}
	if src.Concentration == nil {
		fail("source concentration is missing")
	} else if *src.Concentration <= 0 {
		fail("source concentration must be positive, got %g", *src.Concentration)
	}
	if tgt.RequestedConcentration == nil {
		fail("requested concentration is missing")
	}
	if tgt.RequestedVolume == nil {
		fail("requested volume is missing")
	} else if *tgt.RequestedVolume <= 0 {
		fail("requested volume must be positive, got %g", *tgt.RequestedVolume)
	}
	return []*SingleTransfer{t}, nil
}

// calculable is the shared gate of the calculation handlers.
func calculable(t *SingleTransfer) bool {
	return !t.IsControl() && !t.PreconditionsFailed && !t.Calculated
}

// PoolCalcHandler calculates a whole pool the first time one of its members
// passes through; later members are already calculated and pass unchanged.
type PoolCalcHandler struct{}

func (PoolCalcHandler) Name() string { return "pool-calc" }

func (PoolCalcHandler) ShouldExecute(env *Env, t *SingleTransfer) bool {
	return env.Settings.Pooling && env.Settings.VolumeCalcMethod == CalcByConcentration &&
		t.IsPooled() && calculable(t)
}

func (h PoolCalcHandler) Run(env *Env, t *SingleTransfer) ([]*SingleTransfer, error) {
	var members []*SingleTransfer
	for _, m := range env.TransfersByOutput(t.Target.Well) {
		if !m.IsControl() {
			members = append(members, m)
		}
	}
	for _, m := range members {
		if !m.PreconditionsFailed {
			continue
		}
		for _, other := range members {
			if !other.PreconditionsFailed {
				env.Results.Error(other, "pool member %s failed its preconditions; pool %s not calculated", m.Source.ArtifactName, t.Target.Well)
				other.PreconditionsFailed = true
			}
		}
		return []*SingleTransfer{t}, nil
	}
	calc := PoolConcentrationCalc{}
	calc.Calculate(members, env.calcContext())
	for _, m := range members {
		if !m.Calculated {
			m.PreconditionsFailed = true
			continue
		}
		recordCalculation(env, m, calc.Name())
	}
	return []*SingleTransfer{t}, nil
}

// OneToOneCalcHandler applies OneToOneConcentrationCalc to unpooled transfers.
type OneToOneCalcHandler struct{}

func (OneToOneCalcHandler) Name() string { return "one-to-one-calc" }

func (OneToOneCalcHandler) ShouldExecute(env *Env, t *SingleTransfer) bool {
	return env.Settings.VolumeCalcMethod == CalcByConcentration && !t.IsPooled() && calculable(t)
}

func (OneToOneCalcHandler) Run(env *Env, t *SingleTransfer) ([]*SingleTransfer, error) {
	calc := OneToOneConcentrationCalc{}
	calc.Calculate([]*SingleTransfer{t}, env.calcContext())
	if t.Calculated {
		recordCalculation(env, t, calc.Name())
	}
	return []*SingleTransfer{t}, nil
}

// FixedVolumeCalcHandler applies FixedVolumeCalc.
type FixedVolumeCalcHandler struct{}

func (FixedVolumeCalcHandler) Name() string { return "fixed-volume-calc" }

func (FixedVolumeCalcHandler) ShouldExecute(env *Env, t *SingleTransfer) bool {
	return env.Settings.VolumeCalcMethod == CalcFixedVolume && calculable(t)
}

func (FixedVolumeCalcHandler) Run(env *Env, t *SingleTransfer) ([]*SingleTransfer, error) {
	calc := FixedVolumeCalc{}
	calc.Calculate([]*SingleTransfer{t}, env.calcContext())
	recordCalculation(env, t, calc.Name())
	return []*SingleTransfer{t}, nil
}

func recordCalculation(env *Env, t *SingleTransfer, strategy string) {
	logrus.Debugf("[%s] %s: transfer %d sample=%.3f buffer=%.3f scaled=%v evaporate=%v",
		env.Robot.Name, strategy, t.ID, t.PipetteSampleVolume, t.PipetteBufferVolume, t.ScaledUp, t.HasToEvaporate)
	env.Trace.RecordCalculation(trace.CalculationRecord{
		Robot:          env.Robot.Name,
		TransferID:     t.ID,
		Strategy:       strategy,
		SampleVolume:   t.PipetteSampleVolume,
		BufferVolume:   t.PipetteBufferVolume,
		ScaledUp:       t.ScaledUp,
		HasToEvaporate: t.HasToEvaporate,
	})
}
