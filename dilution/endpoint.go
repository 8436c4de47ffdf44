package dilution

// ConcentrationUnit selects which measured concentration the calculation reads.
type ConcentrationUnit string

const (
	UnitNgPerUl   ConcentrationUnit = "ng/ul"
	UnitNanoMolar ConcentrationUnit = "nM"
)

// ValidConcentrationUnits is the set of recognized concentration units.
var ValidConcentrationUnits = map[ConcentrationUnit]bool{UnitNgPerUl: true, UnitNanoMolar: true}

// TransferEndpoint is the read-only view of one side of a transfer.
// Unit selection happens here so calculation code only sees plain numbers.
// A nil measurement means "cannot calculate", never zero.
type TransferEndpoint struct {
	Well         WellRef
	ArtifactID   string
	ArtifactName string
	IsControl    bool

	Concentration          *float64
	Volume                 *float64
	RequestedConcentration *float64
	RequestedVolume        *float64
}

// NewTransferEndpoint derives an endpoint from a, reading concentrations in unit.
func NewTransferEndpoint(a *Artifact, unit ConcentrationUnit) *TransferEndpoint {
	ep := &TransferEndpoint{
		Well:            a.Location,
		ArtifactID:      a.ID,
		ArtifactName:    a.Name,
		IsControl:       a.IsControl,
		Volume:          a.Volume,
		RequestedVolume: a.RequestedVolume,
	}
	switch unit {
	case UnitNanoMolar:
		ep.Concentration = a.ConcentrationNM
		ep.RequestedConcentration = a.RequestedConcentrationNM
	default:
		ep.Concentration = a.ConcentrationNgUl
		ep.RequestedConcentration = a.RequestedConcentrationNgUl
	}
	return ep
}

// Container returns the identifier of the container holding the endpoint's well.
func (e *TransferEndpoint) Container() ContainerID {
	return e.Well.Container
}

// clone returns a shallow copy; pointer measurements are shared because they are never mutated.
func (e *TransferEndpoint) clone() *TransferEndpoint {
	c := *e
	return &c
}
