// Package pairs loads the artifact pairs of one step from a YAML file.
//
// Lab-system measurements are stored under their external field names and
// resolved to canonical artifact fields once, at load time, through an
// explicit dilution.FieldMapping. Field names the mapping does not know are
// rejected.
package pairs

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clarity-ext/dilution/dilution"
)

// File is the on-disk shape of a step.
type File struct {
	Containers []ContainerSpec `yaml:"containers"`
	Artifacts  []ArtifactSpec  `yaml:"artifacts"`
	Pairs      []PairSpec      `yaml:"pairs"`
}

// ContainerSpec describes one physical container.
type ContainerSpec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// ArtifactSpec describes one aliquot and where it sits.
type ArtifactSpec struct {
	ID        string             `yaml:"id"`
	Name      string             `yaml:"name"`
	Container string             `yaml:"container"`
	Well      string             `yaml:"well"`
	Control   bool               `yaml:"control"`
	Fields    map[string]float64 `yaml:"fields"`
}

// PairSpec names a (source, target) artifact pair by artifact ID.
type PairSpec struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// Step is a loaded, resolved step. It implements dilution.PairSource.
type Step struct {
	inventory *dilution.Inventory
	pairs     []dilution.ArtifactPair
}

// Pairs returns the pairs in file order.
func (s *Step) Pairs() ([]dilution.ArtifactPair, error) {
	return s.pairs, nil
}

// Inventory returns the containers of the step.
func (s *Step) Inventory() *dilution.Inventory {
	return s.inventory
}

// Load reads and resolves a YAML step file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Load(path string, mapping dilution.FieldMapping) (*Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading step file: %w", err)
	}
	return Parse(data, mapping)
}

// Parse strictly decodes a step from YAML bytes and resolves it.
func Parse(data []byte, mapping dilution.FieldMapping) (*Step, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing step file: %w", err)
	}
	return f.Resolve(mapping)
}

// Resolve builds the inventory and pairs described by f.
func (f *File) Resolve(mapping dilution.FieldMapping) (*Step, error) {
	inv := dilution.NewInventory()
	for i, cs := range f.Containers {
		if cs.ID == "" {
			return nil, fmt.Errorf("containers[%d]: id is required", i)
		}
		c, err := dilution.NewContainer(dilution.ContainerID(cs.ID), cs.Name, dilution.ContainerType(cs.Type))
		if err != nil {
			return nil, fmt.Errorf("containers[%d]: %w", i, err)
		}
		if err := inv.Add(c); err != nil {
			return nil, fmt.Errorf("containers[%d]: %w", i, err)
		}
	}

	resolver := newFieldResolver(mapping)
	artifacts := make(map[string]*dilution.Artifact, len(f.Artifacts))
	for i, as := range f.Artifacts {
		a, err := resolveArtifact(inv, resolver, as)
		if err != nil {
			return nil, fmt.Errorf("artifacts[%d] (%s): %w", i, as.ID, err)
		}
		if _, dup := artifacts[a.ID]; dup {
			return nil, fmt.Errorf("artifacts[%d]: duplicate artifact id %q", i, a.ID)
		}
		artifacts[a.ID] = a
	}

	step := &Step{inventory: inv, pairs: make([]dilution.ArtifactPair, 0, len(f.Pairs))}
	for i, ps := range f.Pairs {
		src, ok := artifacts[ps.Source]
		if !ok {
			return nil, fmt.Errorf("pairs[%d]: unknown source artifact %q", i, ps.Source)
		}
		tgt, ok := artifacts[ps.Target]
		if !ok {
			return nil, fmt.Errorf("pairs[%d]: unknown target artifact %q", i, ps.Target)
		}
		step.pairs = append(step.pairs, dilution.ArtifactPair{Source: src, Target: tgt})
	}
	return step, nil
}

func resolveArtifact(inv *dilution.Inventory, resolver fieldResolver, as ArtifactSpec) (*dilution.Artifact, error) {
	if as.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	c, ok := inv.Container(dilution.ContainerID(as.Container))
	if !ok {
		return nil, fmt.Errorf("unknown container %q", as.Container)
	}
	pos, err := dilution.ParsePosition(as.Well)
	if err != nil {
		return nil, err
	}
	a := &dilution.Artifact{ID: as.ID, Name: as.Name, IsControl: as.Control}
	if a.Name == "" {
		a.Name = as.ID
	}
	if err := resolver.apply(a, as.Fields); err != nil {
		return nil, err
	}
	if err := c.Place(pos, a); err != nil {
		return nil, err
	}
	return a, nil
}

// fieldResolver maps external field names to setters of canonical fields.
type fieldResolver map[string]func(a *dilution.Artifact, v float64)

func newFieldResolver(m dilution.FieldMapping) fieldResolver {
	r := fieldResolver{}
	add := func(name string, set func(a *dilution.Artifact, v float64)) {
		if name != "" {
			r[name] = set
		}
	}
	add(m.Concentration, func(a *dilution.Artifact, v float64) { a.ConcentrationNgUl = dilution.Float64Ptr(v) })
	add(m.ConcentrationNM, func(a *dilution.Artifact, v float64) { a.ConcentrationNM = dilution.Float64Ptr(v) })
	add(m.Volume, func(a *dilution.Artifact, v float64) { a.Volume = dilution.Float64Ptr(v) })
	add(m.RequestedConcentration, func(a *dilution.Artifact, v float64) { a.RequestedConcentrationNgUl = dilution.Float64Ptr(v) })
	add(m.RequestedConcNM, func(a *dilution.Artifact, v float64) { a.RequestedConcentrationNM = dilution.Float64Ptr(v) })
	add(m.RequestedVolume, func(a *dilution.Artifact, v float64) { a.RequestedVolume = dilution.Float64Ptr(v) })
	return r
}

func (r fieldResolver) apply(a *dilution.Artifact, fields map[string]float64) error {
	for name, v := range fields {
		set, ok := r[name]
		if !ok {
			return fmt.Errorf("unknown field %q", name)
		}
		set(a, v)
	}
	return nil
}
