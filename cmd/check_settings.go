package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clarity-ext/dilution/dilution"
)

// checkSettingsCmd strict-loads and validates a settings file
var checkSettingsCmd = &cobra.Command{
	Use:   "check-settings <settings.yaml>",
	Short: "Validate a dilution settings file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCheckSettings(args[0], os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func runCheckSettings(path string, out io.Writer) error {
	settings, err := dilution.LoadSettings(path)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid dilution settings: %w", err)
	}
	fmt.Fprintf(out, "settings OK: unit=%s method=%s pooling=%v scale_up=%v intermediate_dilution=%v\n",
		settings.ConcentrationUnit, settings.VolumeCalcMethod, settings.Pooling, settings.ScaleUp, settings.IntermediateDilution)
	for _, r := range settings.Robots {
		fmt.Fprintf(out, "  robot %s: traversal=%s min=%g max_row=%g waste=%g\n",
			r.Name, r.Traversal, r.MinPipetteVolume, r.MaxRowVolume, r.WasteVolume)
	}
	return nil
}
