package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures calculation, split and slot decisions.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// EvaluationTrace collects decision records during one session evaluation.
// A nil *EvaluationTrace is valid and records nothing.
type EvaluationTrace struct {
	Level        TraceLevel
	Calculations []CalculationRecord
	Splits       []SplitRecord
	Slots        []SlotRecord
}

// NewEvaluationTrace creates an EvaluationTrace ready for recording.
func NewEvaluationTrace(level TraceLevel) *EvaluationTrace {
	return &EvaluationTrace{
		Level:        level,
		Calculations: make([]CalculationRecord, 0),
		Splits:       make([]SplitRecord, 0),
		Slots:        make([]SlotRecord, 0),
	}
}

func (et *EvaluationTrace) enabled() bool {
	return et != nil && et.Level == TraceLevelDecisions
}

// RecordCalculation appends a calculation record.
func (et *EvaluationTrace) RecordCalculation(record CalculationRecord) {
	if et.enabled() {
		et.Calculations = append(et.Calculations, record)
	}
}

// RecordSplit appends a split record.
func (et *EvaluationTrace) RecordSplit(record SplitRecord) {
	if et.enabled() {
		et.Splits = append(et.Splits, record)
	}
}

// RecordSlot appends a slot assignment record.
func (et *EvaluationTrace) RecordSlot(record SlotRecord) {
	if et.enabled() {
		et.Slots = append(et.Slots, record)
	}
}

// Reset drops all records, keeping the level.
func (et *EvaluationTrace) Reset() {
	if et == nil {
		return
	}
	et.Calculations = et.Calculations[:0]
	et.Splits = et.Splits[:0]
	et.Slots = et.Slots[:0]
}
