package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clarity-ext/dilution/dilution"
	"github.com/clarity-ext/dilution/dilution/driverfile"
	"github.com/clarity-ext/dilution/dilution/metrics"
	"github.com/clarity-ext/dilution/dilution/pairs"
	"github.com/clarity-ext/dilution/dilution/trace"
)

// evaluateOptions holds the inputs of one evaluate invocation.
type evaluateOptions struct {
	SettingsPath string
	PairsPath    string
	OutDir       string
	Robot        string // robot whose numbers are written back; empty checks all robots agree
	UpdatesPath  string
	MetricsPath  string
	TraceLevel   string
	Summarize    bool
}

var evalOpts evaluateOptions

// evaluateCmd runs a dilution session and writes driver files and update infos
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Calculate transfers and write robot driver files",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runEvaluate(evalOpts, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evalOpts.SettingsPath, "settings", "", "Path to the dilution settings YAML")
	evaluateCmd.Flags().StringVar(&evalOpts.PairsPath, "pairs", "", "Path to the step pairs YAML")
	evaluateCmd.Flags().StringVar(&evalOpts.OutDir, "out-dir", ".", "Directory for driver files")
	evaluateCmd.Flags().StringVar(&evalOpts.Robot, "robot", "", "Robot whose results are written back (default: all robots must agree)")
	evaluateCmd.Flags().StringVar(&evalOpts.UpdatesPath, "updates", "", "Write update infos to this YAML file")
	evaluateCmd.Flags().StringVar(&evalOpts.MetricsPath, "metrics-file", "", "Write prometheus metrics in text format to this file")
	evaluateCmd.Flags().StringVar(&evalOpts.TraceLevel, "trace-level", "none", "Decision trace level (none, decisions)")
	evaluateCmd.Flags().BoolVar(&evalOpts.Summarize, "summarize-trace", false, "Print a decision trace summary")
	_ = evaluateCmd.MarkFlagRequired("settings")
	_ = evaluateCmd.MarkFlagRequired("pairs")
}

func runEvaluate(opts evaluateOptions, out io.Writer) error {
	if !trace.IsValidTraceLevel(opts.TraceLevel) {
		return fmt.Errorf("unknown trace level %q; valid: none, decisions", opts.TraceLevel)
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var tr *trace.EvaluationTrace
	if trace.TraceLevel(opts.TraceLevel) == trace.TraceLevelDecisions {
		tr = trace.NewEvaluationTrace(trace.TraceLevelDecisions)
	}

	session, step, err := loadSession(opts.SettingsPath, opts.PairsPath, m, tr)
	if err != nil {
		return err
	}
	evalErr := session.Evaluate(step)
	if opts.MetricsPath != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsPath, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	if evalErr != nil {
		var uerr *dilution.UsageError
		if errors.As(evalErr, &uerr) {
			return fmt.Errorf("evaluation found validation errors:\n%w", evalErr)
		}
		return evalErr
	}

	robots := session.Settings().Robots
	if opts.Robot != "" {
		r, err := session.Settings().Robot(opts.Robot)
		if err != nil {
			return err
		}
		robots = []dilution.RobotSettings{r}
	}
	for _, robot := range robots {
		collection, err := session.TransferBatches(robot.Name)
		if err != nil {
			return err
		}
		paths, err := driverfile.WriteAll(opts.OutDir, collection, robot)
		if err != nil {
			return fmt.Errorf("robot %s: %w", robot.Name, err)
		}
		for _, p := range paths {
			fmt.Fprintf(out, "wrote %s\n", p)
		}
	}

	if opts.UpdatesPath != "" {
		if err := session.PushUpdates(&updateFile{Path: opts.UpdatesPath}, opts.Robot); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", opts.UpdatesPath)
	}
	if opts.Summarize {
		printTraceSummary(out, trace.Summarize(tr))
	}
	return nil
}

// loadSession strict-loads settings and pairs, and builds a session over them.
func loadSession(settingsPath, pairsPath string, m *metrics.Metrics, tr *trace.EvaluationTrace) (*dilution.Session, *pairs.Step, error) {
	settings, err := dilution.LoadSettings(settingsPath)
	if err != nil {
		return nil, nil, err
	}
	session, err := dilution.NewSession(settings, m, tr)
	if err != nil {
		return nil, nil, err
	}
	step, err := pairs.Load(pairsPath, *session.Settings().Fields)
	if err != nil {
		return nil, nil, err
	}
	return session, step, nil
}

func printTraceSummary(w io.Writer, s *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Trace Summary ===")
	fmt.Fprintf(w, "Calculations: %d (scaled up: %d, evaporate: %d)\n", s.TotalCalculations, s.ScaledUpCount, s.EvaporateCount)
	fmt.Fprintf(w, "Row splits: %d\n", s.RowSplits)
	fmt.Fprintf(w, "Batch splits: %d\n", s.BatchSplits)
	fmt.Fprintf(w, "Extra transfers: %d\n", s.ExtraTransfers)
	for _, name := range sortedKeys(s.StrategyUsage) {
		fmt.Fprintf(w, "  %s: %d\n", name, s.StrategyUsage[name])
	}
}
