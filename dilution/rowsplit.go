package dilution

import (
	"math"

	"github.com/clarity-ext/dilution/dilution/trace"
)

// RowSplitHandler replaces a transfer whose total volume exceeds the robot's
// max row volume with ceil(total/max) rows. Only a component (sample or
// buffer) that itself exceeds the max is divided; a smaller component stays
// whole on one row so it never drops below the minimum pipette volume. When
// equal rows would leave a divided piece below the minimum, each component
// gets rows of its own instead. The first row keeps the primary role and the
// update information.
type RowSplitHandler struct{}

func (RowSplitHandler) Name() string { return "row-split" }

func (RowSplitHandler) ShouldExecute(env *Env, t *SingleTransfer) bool {
	maxRow := env.Robot.MaxRowVolume
	return maxRow > 0 && t.TotalVolume() > maxRow+volumeEpsilon
}

func (RowSplitHandler) Run(env *Env, t *SingleTransfer) ([]*SingleTransfer, error) {
	maxRow := env.Robot.MaxRowVolume
	samples, buffers := splitRows(t.PipetteSampleVolume, t.PipetteBufferVolume, maxRow, env.Robot.MinPipetteVolume)
	n := len(samples)

	rows := make([]*SingleTransfer, n)
	rows[0] = t
	for i := 1; i < n; i++ {
		rows[i] = t.derive(env.newID(), SplitRow)
		rows[i].SourceVolDelta = nil
		rows[i].FinalConcentration = nil
		rows[i].FinalVolume = nil
		rows[i].IsPoolRepresentative = false
	}
	if t.SplitType == SplitNone {
		t.SplitType = SplitRow
	}
	total := t.TotalVolume()
	for i, row := range rows {
		row.PipetteSampleVolume = samples[i]
		row.PipetteBufferVolume = buffers[i]
	}
	checkRows(env, t, total, rows)
	env.Trace.RecordSplit(trace.SplitRecord{Robot: env.Robot.Name, TransferID: t.ID, Kind: string(SplitRow), Copies: n})
	return rows, nil
}

// checkRows records an ERROR against original when a row still exceeds the
// max row volume. splitRows never produces such a row.
func checkRows(env *Env, original *SingleTransfer, total float64, rows []*SingleTransfer) {
	maxRow := env.Robot.MaxRowVolume
	for _, row := range rows {
		if row.TotalVolume() > maxRow+volumeEpsilon {
			env.Results.Error(original, "volume %.1f ul cannot be split into rows of at most %g ul (row of %.1f ul remains)",
				total, maxRow, row.TotalVolume())
			return
		}
	}
}

// splitRows distributes sample and buffer over rows of at most maxRow.
// It uses ceil(total/maxRow) rows of equal total when that leaves no divided
// component below minVol; otherwise each component goes on rows of its own.
func splitRows(sample, buffer, maxRow, minVol float64) (samples, buffers []float64) {
	n := rowCount(sample+buffer, maxRow)
	samples, buffers = make([]float64, n), make([]float64, n)
	bigSample, bigBuffer := sample > maxRow+volumeEpsilon, buffer > maxRow+volumeEpsilon
	switch {
	case bigSample && bigBuffer:
		for i := range samples {
			samples[i], buffers[i] = sample/float64(n), buffer/float64(n)
		}
	case bigSample:
		fillAround(buffer, sample, n, buffers, samples)
	case bigBuffer:
		fillAround(sample, buffer, n, samples, buffers)
	default:
		// Both fit on one row each; n is 2.
		samples[0] = sample
		buffers[n-1] = buffer
	}
	if hasFragmentBelow(samples, sample, minVol) || hasFragmentBelow(buffers, buffer, minVol) {
		return separateRows(sample, buffer, maxRow)
	}
	return samples, buffers
}

func rowCount(volume, maxRow float64) int {
	if volume <= volumeEpsilon {
		return 0
	}
	return int(math.Ceil(volume/maxRow - volumeEpsilon))
}

// fillAround keeps small whole on row 0 and spreads large so that every row
// carries the same total. When small alone exceeds that share, row 0 holds
// only small and large is spread over the remaining rows.
func fillAround(small, large float64, n int, smalls, larges []float64) {
	smalls[0] = small
	share := (small + large) / float64(n)
	if small <= share {
		larges[0] = share - small
		for i := 1; i < n; i++ {
			larges[i] = share
		}
		return
	}
	for i := 1; i < n; i++ {
		larges[i] = large / float64(n-1)
	}
}

// hasFragmentBelow reports whether a part of whole was divided into a
// non-zero piece smaller than minVol.
func hasFragmentBelow(parts []float64, whole, minVol float64) bool {
	for _, v := range parts {
		if v > volumeEpsilon && v < whole-volumeEpsilon && v < minVol-volumeEpsilon {
			return true
		}
	}
	return false
}

// separateRows puts sample and buffer on rows of their own, each component
// divided evenly over ceil(component/maxRow) rows. Sample rows come first.
func separateRows(sample, buffer, maxRow float64) (samples, buffers []float64) {
	ks, kb := rowCount(sample, maxRow), rowCount(buffer, maxRow)
	samples, buffers = make([]float64, ks+kb), make([]float64, ks+kb)
	for i := 0; i < ks; i++ {
		samples[i] = sample / float64(ks)
	}
	for i := 0; i < kb; i++ {
		buffers[ks+i] = buffer / float64(kb)
	}
	return samples, buffers
}
