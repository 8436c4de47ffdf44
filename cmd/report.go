package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	reportSettingsPath string // Path to the dilution settings YAML
	reportPairsPath    string // Path to the step pairs YAML
	reportRobot        string // Limit the report to one robot
)

// reportCmd prints the per-batch dump of every robot without writing files
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the calculated batches and validation results",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReport(reportSettingsPath, reportPairsPath, reportRobot, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportSettingsPath, "settings", "", "Path to the dilution settings YAML")
	reportCmd.Flags().StringVar(&reportPairsPath, "pairs", "", "Path to the step pairs YAML")
	reportCmd.Flags().StringVar(&reportRobot, "robot", "", "Only report this robot")
	_ = reportCmd.MarkFlagRequired("settings")
	_ = reportCmd.MarkFlagRequired("pairs")
}

// runReport prints batches even when validation errors exist; the errors
// are part of the report.
func runReport(settingsPath, pairsPath, robot string, out io.Writer) error {
	session, step, err := loadSession(settingsPath, pairsPath, nil, nil)
	if err != nil {
		return err
	}
	if err := session.Evaluate(step); err != nil {
		logrus.Debugf("evaluation reported: %v", err)
	}
	names := session.Settings().RobotNames()
	if robot != "" {
		if _, err := session.Settings().Robot(robot); err != nil {
			return err
		}
		names = []string{robot}
	}
	for i, name := range names {
		collection, err := session.TransferBatches(name)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "=== Robot %s ===\n", name)
		fmt.Fprint(out, collection.Report())
		results, err := session.Results(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d error(s), %d warning(s)\n", len(results.Errors()), len(results.Warnings()))
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
