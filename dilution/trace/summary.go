package trace

// TraceSummary aggregates statistics from an EvaluationTrace.
type TraceSummary struct {
	TotalCalculations int
	ScaledUpCount     int
	EvaporateCount    int
	RowSplits         int
	BatchSplits       int
	ExtraTransfers    int            // transfers added by splitting
	StrategyUsage     map[string]int // strategy name → number of calculated transfers
	SlotsPerRobot     map[string]int // robot → number of slot assignments
}

// Summarize computes aggregate statistics from an EvaluationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(et *EvaluationTrace) *TraceSummary {
	summary := &TraceSummary{
		StrategyUsage: make(map[string]int),
		SlotsPerRobot: make(map[string]int),
	}
	if et == nil {
		return summary
	}

	summary.TotalCalculations = len(et.Calculations)
	for _, c := range et.Calculations {
		summary.StrategyUsage[c.Strategy]++
		if c.ScaledUp {
			summary.ScaledUpCount++
		}
		if c.HasToEvaporate {
			summary.EvaporateCount++
		}
	}
	for _, s := range et.Splits {
		switch s.Kind {
		case "row":
			summary.RowSplits++
		case "batch":
			summary.BatchSplits++
		}
		if s.Copies > 1 {
			summary.ExtraTransfers += s.Copies - 1
		}
	}
	for _, s := range et.Slots {
		summary.SlotsPerRobot[s.Robot]++
	}
	return summary
}
