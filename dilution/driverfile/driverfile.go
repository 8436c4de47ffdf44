// Package driverfile renders transfer batches as delimited robot driver files.
package driverfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/clarity-ext/dilution/dilution"
)

// DefaultColumns is used when a robot configures no columns.
var DefaultColumns = []string{
	dilution.ColumnSourceSlot,
	dilution.ColumnSourceWellIndex,
	dilution.ColumnTargetSlot,
	dilution.ColumnTargetWellIndex,
	dilution.ColumnSampleVolume,
	dilution.ColumnBufferVolume,
}

// Render writes one header line (when configured) and one row per transfer
// of b in batch order. Transfers with nothing to pipette are skipped.
func Render(w io.Writer, b *dilution.TransferBatch, robot dilution.RobotSettings) error {
	columns := robot.Columns
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	cw := csv.NewWriter(w)
	cw.Comma = []rune(robot.Delimiter)[0]
	if len(robot.Header) > 0 {
		if err := cw.Write(robot.Header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for _, t := range b.Transfers() {
		if t.TotalVolume() == 0 {
			continue
		}
		row := make([]string, len(columns))
		for i, c := range columns {
			v, err := cell(b, t, c)
			if err != nil {
				return err
			}
			row[i] = v
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing transfer %d: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(b *dilution.TransferBatch, t *dilution.SingleTransfer, column string) (string, error) {
	switch column {
	case dilution.ColumnSourceSlot:
		return b.SourceSlot(t).Name, nil
	case dilution.ColumnSourceWell:
		return t.Source.Well.Position.String(), nil
	case dilution.ColumnSourceWellIndex:
		return strconv.Itoa(b.WellIndex(t.Source.Well)), nil
	case dilution.ColumnTargetSlot:
		return b.TargetSlot(t).Name, nil
	case dilution.ColumnTargetWell:
		return t.Target.Well.Position.String(), nil
	case dilution.ColumnTargetWellIndex:
		return strconv.Itoa(b.WellIndex(t.Target.Well)), nil
	case dilution.ColumnSampleVolume:
		return formatVolume(t.PipetteSampleVolume), nil
	case dilution.ColumnBufferVolume:
		return formatVolume(t.PipetteBufferVolume), nil
	case dilution.ColumnSourceArtifact:
		return t.Source.ArtifactName, nil
	case dilution.ColumnTargetArtifact:
		return t.Target.ArtifactName, nil
	case dilution.ColumnEvaporate:
		return strconv.FormatBool(t.HasToEvaporate), nil
	}
	return "", fmt.Errorf("unknown driver-file column %q", column)
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// WriteAll renders every batch of c into dir, one file per batch, and
// returns the written paths in batch order.
func WriteAll(dir string, c *dilution.TransferBatchCollection, robot dilution.RobotSettings) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	var paths []string
	for _, b := range c.Batches() {
		path := filepath.Join(dir, c.DriverFileName(b.Key))
		if err := writeFile(path, b, robot); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, b *dilution.TransferBatch, robot dilution.RobotSettings) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating driver file: %w", err)
	}
	if err := Render(f, b, robot); err != nil {
		_ = f.Close()
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return f.Close()
}
