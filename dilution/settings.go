package dilution

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// VolumeCalcMethod selects how pipette volumes are derived.
type VolumeCalcMethod string

const (
	// CalcByConcentration derives volumes from measured and requested concentrations.
	CalcByConcentration VolumeCalcMethod = "concentration"
	// CalcFixedVolume uses an operator-supplied constant sample volume.
	CalcFixedVolume VolumeCalcMethod = "fixed"
)

// ValidVolumeCalcMethods is the set of recognized calculation methods.
var ValidVolumeCalcMethods = map[VolumeCalcMethod]bool{CalcByConcentration: true, CalcFixedVolume: true}

// Driver-file column names understood by the renderer.
const (
	ColumnSourceSlot      = "source_slot"
	ColumnSourceWell      = "source_well"
	ColumnSourceWellIndex = "source_well_index"
	ColumnTargetSlot      = "target_slot"
	ColumnTargetWell      = "target_well"
	ColumnTargetWellIndex = "target_well_index"
	ColumnSampleVolume    = "sample_volume"
	ColumnBufferVolume    = "buffer_volume"
	ColumnSourceArtifact  = "source_artifact"
	ColumnTargetArtifact  = "target_artifact"
	ColumnEvaporate       = "has_to_evaporate"
)

// ValidColumns is the set of recognized driver-file columns.
var ValidColumns = map[string]bool{
	ColumnSourceSlot: true, ColumnSourceWell: true, ColumnSourceWellIndex: true,
	ColumnTargetSlot: true, ColumnTargetWell: true, ColumnTargetWellIndex: true,
	ColumnSampleVolume: true, ColumnBufferVolume: true,
	ColumnSourceArtifact: true, ColumnTargetArtifact: true, ColumnEvaporate: true,
}

// RobotSettings holds the pipetting limits and driver-file shape of one robot.
type RobotSettings struct {
	Name             string    `yaml:"name"`
	Traversal        Traversal `yaml:"traversal"`
	SourcePrefix     string    `yaml:"source_prefix"`
	TargetPrefix     string    `yaml:"target_prefix"`
	TemporaryPrefix  string    `yaml:"temporary_prefix"`
	ControlSlotName  string    `yaml:"control_slot_name"`
	MinPipetteVolume float64   `yaml:"min_pipette_volume"`
	MaxRowVolume     float64   `yaml:"max_row_volume"` // 0 disables row splitting
	WasteVolume      float64   `yaml:"waste_volume"`
	Delimiter        string    `yaml:"delimiter"`
	FileExtension    string    `yaml:"file_extension"`
	Header           []string  `yaml:"header"`
	Columns          []string  `yaml:"columns"`
}

// FieldMapping maps canonical measurement names to the lab system's field names.
// Resolved once when pairs are loaded; unknown canonical keys fail strict parsing.
type FieldMapping struct {
	Concentration          string `yaml:"concentration"`
	ConcentrationNM        string `yaml:"concentration_nm"`
	Volume                 string `yaml:"volume"`
	RequestedConcentration string `yaml:"requested_concentration"`
	RequestedConcNM        string `yaml:"requested_concentration_nm"`
	RequestedVolume        string `yaml:"requested_volume"`
}

// DefaultFieldMapping returns the lab system's standard field names.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		Concentration:          "Conc. Current (ng/ul)",
		ConcentrationNM:        "Conc. Current (nM)",
		Volume:                 "Current sample volume (ul)",
		RequestedConcentration: "Target conc. (ng/ul)",
		RequestedConcNM:        "Target conc. (nM)",
		RequestedVolume:        "Target vol. (ul)",
	}
}

// Settings is the immutable configuration of one dilution session.
type Settings struct {
	ConcentrationUnit    ConcentrationUnit `yaml:"concentration_unit"`
	VolumeCalcMethod     VolumeCalcMethod  `yaml:"volume_calc_method"`
	Pooling              bool              `yaml:"pooling"`
	ScaleUp              bool              `yaml:"scale_up"`
	FixedSampleVolume    *float64          `yaml:"fixed_sample_volume"`
	IntermediateDilution bool              `yaml:"intermediate_dilution"`
	Fields               *FieldMapping     `yaml:"fields"`
	Robots               []RobotSettings   `yaml:"robots"`
}

// LoadSettings reads and parses a YAML settings file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dilution settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings strictly decodes settings from YAML bytes and fills defaults.
func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing dilution settings: %w", err)
	}
	s.applyDefaults()
	return &s, nil
}

func (s *Settings) applyDefaults() {
	if s.ConcentrationUnit == "" {
		s.ConcentrationUnit = UnitNgPerUl
	}
	if s.VolumeCalcMethod == "" {
		s.VolumeCalcMethod = CalcByConcentration
	}
	if s.Fields == nil {
		f := DefaultFieldMapping()
		s.Fields = &f
	}
	for i := range s.Robots {
		r := &s.Robots[i]
		if r.Traversal == "" {
			r.Traversal = TraversalDownFirst
		}
		if r.SourcePrefix == "" {
			r.SourcePrefix = "DNA"
		}
		if r.TargetPrefix == "" {
			r.TargetPrefix = "END"
		}
		if r.TemporaryPrefix == "" {
			r.TemporaryPrefix = "TEMP"
		}
		if r.ControlSlotName == "" {
			r.ControlSlotName = "CTRL"
		}
		if r.Delimiter == "" {
			r.Delimiter = ","
		}
		if r.FileExtension == "" {
			r.FileExtension = "csv"
		}
	}
}

// Validate checks enum names and parameter ranges.
func (s *Settings) Validate() error {
	if !ValidConcentrationUnits[s.ConcentrationUnit] {
		return fmt.Errorf("unknown concentration_unit %q; valid: %s", s.ConcentrationUnit, validNames(ValidConcentrationUnits))
	}
	if !ValidVolumeCalcMethods[s.VolumeCalcMethod] {
		return fmt.Errorf("unknown volume_calc_method %q; valid: %s", s.VolumeCalcMethod, validNames(ValidVolumeCalcMethods))
	}
	if s.VolumeCalcMethod == CalcFixedVolume {
		if s.FixedSampleVolume == nil || *s.FixedSampleVolume <= 0 {
			return fmt.Errorf("fixed_sample_volume must be positive when volume_calc_method is %q", CalcFixedVolume)
		}
	}
	if len(s.Robots) == 0 {
		return fmt.Errorf("at least one robot must be configured")
	}
	seen := make(map[string]bool, len(s.Robots))
	for i := range s.Robots {
		if err := s.Robots[i].validate(i); err != nil {
			return err
		}
		if seen[s.Robots[i].Name] {
			return fmt.Errorf("robots[%d]: duplicate robot name %q", i, s.Robots[i].Name)
		}
		seen[s.Robots[i].Name] = true
	}
	return nil
}

func (r *RobotSettings) validate(idx int) error {
	prefix := fmt.Sprintf("robots[%d]", idx)
	if r.Name == "" {
		return fmt.Errorf("%s: name is required", prefix)
	}
	if !ValidTraversals[r.Traversal] {
		return fmt.Errorf("%s: unknown traversal %q; valid: down-first, right-first", prefix, r.Traversal)
	}
	if r.MinPipetteVolume <= 0 {
		return fmt.Errorf("%s: min_pipette_volume must be positive, got %f", prefix, r.MinPipetteVolume)
	}
	if r.MaxRowVolume < 0 {
		return fmt.Errorf("%s: max_row_volume must be non-negative, got %f", prefix, r.MaxRowVolume)
	}
	if r.MaxRowVolume > 0 && r.MaxRowVolume < r.MinPipetteVolume {
		return fmt.Errorf("%s: max_row_volume %f is below min_pipette_volume %f", prefix, r.MaxRowVolume, r.MinPipetteVolume)
	}
	if r.WasteVolume < 0 {
		return fmt.Errorf("%s: waste_volume must be non-negative, got %f", prefix, r.WasteVolume)
	}
	if len([]rune(r.Delimiter)) != 1 {
		return fmt.Errorf("%s: delimiter must be a single character, got %q", prefix, r.Delimiter)
	}
	for _, c := range r.Columns {
		if !ValidColumns[c] {
			return fmt.Errorf("%s: unknown column %q", prefix, c)
		}
	}
	if len(r.Header) > 0 && len(r.Header) != len(r.Columns) {
		return fmt.Errorf("%s: header has %d entries but %d columns are configured", prefix, len(r.Header), len(r.Columns))
	}
	return nil
}

// Robot returns the settings of the named robot.
func (s *Settings) Robot(name string) (RobotSettings, error) {
	for _, r := range s.Robots {
		if r.Name == name {
			return r, nil
		}
	}
	return RobotSettings{}, fmt.Errorf("%w: %q", ErrUnknownRobot, name)
}

// RobotNames returns the configured robot names in configuration order.
func (s *Settings) RobotNames() []string {
	names := make([]string, len(s.Robots))
	for i, r := range s.Robots {
		names[i] = r.Name
	}
	return names
}

// clone deep-copies the settings so a session never observes later mutation.
func (s *Settings) clone() *Settings {
	c := *s
	if s.FixedSampleVolume != nil {
		c.FixedSampleVolume = Float64Ptr(*s.FixedSampleVolume)
	}
	if s.Fields != nil {
		f := *s.Fields
		c.Fields = &f
	}
	c.Robots = make([]RobotSettings, len(s.Robots))
	for i, r := range s.Robots {
		r.Header = append([]string(nil), r.Header...)
		r.Columns = append([]string(nil), r.Columns...)
		c.Robots[i] = r
	}
	return &c
}

func validNames[K ~string](set map[K]bool) string {
	names := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			names = append(names, string(k))
		}
	}
	sort.Strings(names)
	var b bytes.Buffer
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n)
	}
	return b.String()
}
