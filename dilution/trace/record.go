// Package trace provides decision-trace recording for dilution evaluations.
// This package has no dependencies on dilution/; it stores pure data types.
package trace

// CalculationRecord captures the volumes one strategy produced for a transfer.
type CalculationRecord struct {
	Robot          string
	TransferID     int
	Strategy       string
	SampleVolume   float64
	BufferVolume   float64
	ScaledUp       bool
	HasToEvaporate bool
}

// SplitRecord captures a row or batch split of one transfer.
type SplitRecord struct {
	Robot      string
	TransferID int
	Kind       string // "row" or "batch"
	Tag        string // batch tag; empty for row splits
	Copies     int    // number of transfers the original was replaced by
}

// SlotRecord captures a container slot assignment within a batch.
type SlotRecord struct {
	Robot     string
	BatchKey  string
	Container string
	Slot      string
	Index     int
	IsSource  bool
}
