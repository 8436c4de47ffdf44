package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clarity-ext/dilution/dilution"
)

// updateFile is an UpdateSink writing update infos to a YAML file keyed by
// target artifact ID.
type updateFile struct {
	Path string
}

func (f *updateFile) Apply(updates map[string]dilution.UpdateInfo) error {
	data, err := yaml.Marshal(updates)
	if err != nil {
		return fmt.Errorf("encoding update infos: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o644); err != nil {
		return fmt.Errorf("writing update infos: %w", err)
	}
	return nil
}
