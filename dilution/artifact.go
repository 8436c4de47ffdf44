package dilution

// Artifact is a sample-bearing aliquot located in a well.
// Measurement fields are nil when the lab system holds no value.
type Artifact struct {
	ID        string
	Name      string
	IsControl bool
	Location  WellRef

	ConcentrationNgUl          *float64
	ConcentrationNM            *float64
	Volume                     *float64
	RequestedConcentrationNgUl *float64
	RequestedConcentrationNM   *float64
	RequestedVolume            *float64
}

// ArtifactPair is one (source, target) aliquot pair of a step.
type ArtifactPair struct {
	Source *Artifact
	Target *Artifact
}

// PairSource yields the ordered artifact pairs of one step together with
// the containers they live in. Implementations must return the same
// sequence for the duration of one evaluation.
type PairSource interface {
	Pairs() ([]ArtifactPair, error)
	Inventory() *Inventory
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }
