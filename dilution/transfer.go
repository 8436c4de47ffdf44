package dilution

import (
	"fmt"
	"math"
)

// SplitType records whether a transfer was derived by splitting another.
type SplitType string

const (
	SplitNone  SplitType = "none"
	SplitRow   SplitType = "row"
	SplitBatch SplitType = "batch"
)

// DefaultBatchKey tags transfers that were not rerouted by a batch split.
const DefaultBatchKey = "default"

// SingleTransfer is the unit of work: one aspirate from Source, one dispense into Target.
// Handlers mutate it in place until it is grouped into a TransferBatch.
type SingleTransfer struct {
	ID     int
	Source *TransferEndpoint
	Target *TransferEndpoint

	PipetteSampleVolume float64
	PipetteBufferVolume float64
	HasToEvaporate      bool
	ScaledUp            bool
	Calculated          bool
	// PreconditionsFailed excludes the transfer from calculation; the reason
	// is recorded in the validation results.
	PreconditionsFailed bool

	// SourceVolDelta is the change of the source volume, nil when unknown.
	SourceVolDelta *float64
	// FinalConcentration and FinalVolume describe the target after the transfer.
	// Nil means the target value must not be updated.
	FinalConcentration *float64
	FinalVolume        *float64

	Original *SingleTransfer

	// Upstream is the temporary half feeding this transfer after a batch split.
	Upstream  *SingleTransfer
	SplitType SplitType
	IsPrimary bool
	BatchKey  string

	// PoolSize is the number of sources dispensed into the same target well.
	PoolSize int
	// IsPoolRepresentative marks the pool member that carries the buffer volume.
	IsPoolRepresentative bool
}

// NewSingleTransfer creates a primary, unsplit transfer.
func NewSingleTransfer(id int, source, target *TransferEndpoint) *SingleTransfer {
	return &SingleTransfer{
		ID:        id,
		Source:    source,
		Target:    target,
		SplitType: SplitNone,
		IsPrimary: true,
		BatchKey:  DefaultBatchKey,
		PoolSize:  1,
	}
}

// TotalVolume returns the combined sample and buffer volume.
func (t *SingleTransfer) TotalVolume() float64 {
	return t.PipetteSampleVolume + t.PipetteBufferVolume
}

// IsControl reports whether either endpoint is a control sample.
func (t *SingleTransfer) IsControl() bool {
	return t.Source.IsControl || t.Target.IsControl
}

// IsPooled reports whether the target well receives more than one source.
func (t *SingleTransfer) IsPooled() bool {
	return t.PoolSize > 1
}

// derive copies t into a secondary transfer of the given split type.
func (t *SingleTransfer) derive(id int, split SplitType) *SingleTransfer {
	c := *t
	c.ID = id
	c.Source = t.Source.clone()
	c.Target = t.Target.clone()
	c.Original = t
	c.SplitType = split
	c.IsPrimary = false
	return &c
}

// round applies one-decimal rounding to the pipette volumes.
// Called once when the transfer is frozen into a batch.
func (t *SingleTransfer) round() {
	t.PipetteSampleVolume = roundVolume(t.PipetteSampleVolume)
	t.PipetteBufferVolume = roundVolume(t.PipetteBufferVolume)
	if t.SourceVolDelta != nil {
		t.SourceVolDelta = Float64Ptr(roundVolume(*t.SourceVolDelta))
	}
	if t.FinalVolume != nil {
		t.FinalVolume = Float64Ptr(roundVolume(*t.FinalVolume))
	}
}

func (t *SingleTransfer) String() string {
	return fmt.Sprintf("transfer %d (%s -> %s, sample=%.2f, buffer=%.2f, split=%s, batch=%s)",
		t.ID, t.Source.Well, t.Target.Well, t.PipetteSampleVolume, t.PipetteBufferVolume, t.SplitType, t.BatchKey)
}

func roundVolume(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		return 0 // normalize -0
	}
	return r
}
