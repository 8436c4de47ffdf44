package dilution

import (
	"fmt"
	"sort"
	"strings"
)

// TransferSortKey orders transfers for rendering: by physical source slot,
// then the positioner's sort number (source well in down-first reading
// order), then largest volume first. Target slot, target well and transfer
// ID break any remaining tie. Sort numbers only compare within one slot.
type TransferSortKey struct {
	SourceSlot int
	SortNumber int
	NegVolume  float64
	TargetSlot int
	TargetWell int
	TransferID int
}

// Less reports whether k sorts before o.
func (k TransferSortKey) Less(o TransferSortKey) bool {
	switch {
	case k.SourceSlot != o.SourceSlot:
		return k.SourceSlot < o.SourceSlot
	case k.SortNumber != o.SortNumber:
		return k.SortNumber < o.SortNumber
	case k.NegVolume != o.NegVolume:
		return k.NegVolume < o.NegVolume
	case k.TargetSlot != o.TargetSlot:
		return k.TargetSlot < o.TargetSlot
	case k.TargetWell != o.TargetWell:
		return k.TargetWell < o.TargetWell
	}
	return k.TransferID < o.TransferID
}

// ContainerMapping pairs a source slot with a target slot fed from it.
type ContainerMapping struct {
	Source ContainerSlot
	Target ContainerSlot
}

// TransferBatch is an ordered list of transfers sharing one batch key,
// immutable after construction.
type TransferBatch struct {
	Key   string
	Robot string

	transfers   []*SingleTransfer
	sourceSlots map[ContainerID]ContainerSlot
	targetSlots map[ContainerID]ContainerSlot
	byOutput    map[WellRef][]*SingleTransfer
	positioner  *Positioner
	results     ValidationResults
}

// NewTransferBatch freezes transfers into a batch: rounds volumes, assigns
// container slots and sorts by TransferSortKey. A container may not be both
// a source and a target of the same batch.
func NewTransferBatch(key string, transfers []*SingleTransfer, positioner *Positioner) (*TransferBatch, error) {
	sourceSet := make(map[ContainerID]bool)
	for _, t := range transfers {
		sourceSet[t.Source.Container()] = true
	}
	for _, t := range transfers {
		if sourceSet[t.Target.Container()] {
			return nil, fmt.Errorf("%w: container %s in batch %q", ErrDisjointContainers, t.Target.Container(), key)
		}
	}

	b := &TransferBatch{
		Key:        key,
		Robot:      positioner.robot.Name,
		transfers:  append([]*SingleTransfer(nil), transfers...),
		byOutput:   make(map[WellRef][]*SingleTransfer),
		positioner: positioner,
	}
	for _, t := range b.transfers {
		t.round()
		b.byOutput[t.Target.Well] = append(b.byOutput[t.Target.Well], t)
	}
	var err error
	b.sourceSlots, b.targetSlots, err = positioner.AssignSlots(b.transfers)
	if err != nil {
		return nil, fmt.Errorf("assigning slots for batch %q: %w", key, err)
	}

	keys := make(map[*SingleTransfer]TransferSortKey, len(b.transfers))
	for _, t := range b.transfers {
		k, err := b.sortKey(t)
		if err != nil {
			return nil, err
		}
		keys[t] = k
	}
	sort.SliceStable(b.transfers, func(i, j int) bool {
		return keys[b.transfers[i]].Less(keys[b.transfers[j]])
	})
	return b, nil
}

func (b *TransferBatch) sortKey(t *SingleTransfer) (TransferSortKey, error) {
	slot := b.sourceSlots[t.Source.Container()]
	number, err := b.positioner.FindSortNumber(t, slot)
	if err != nil {
		return TransferSortKey{}, err
	}
	dst, ok := b.positioner.inv.Container(t.Target.Container())
	if !ok {
		return TransferSortKey{}, fmt.Errorf("target container %q not in inventory", t.Target.Container())
	}
	return TransferSortKey{
		SourceSlot: slot.Index,
		SortNumber: number,
		NegVolume:  -t.TotalVolume(),
		TargetSlot: b.targetSlots[dst.ID].Index,
		TargetWell: t.Target.Well.Position.IndexDownFirst(dst.Size),
		TransferID: t.ID,
	}, nil
}

// Transfers returns the sorted transfers of the batch.
func (b *TransferBatch) Transfers() []*SingleTransfer {
	return append([]*SingleTransfer(nil), b.transfers...)
}

// Len returns the number of transfers in the batch.
func (b *TransferBatch) Len() int {
	return len(b.transfers)
}

// SourceSlot returns the slot of t's source container.
func (b *TransferBatch) SourceSlot(t *SingleTransfer) ContainerSlot {
	return b.sourceSlots[t.Source.Container()]
}

// TargetSlot returns the slot of t's target container.
func (b *TransferBatch) TargetSlot(t *SingleTransfer) ContainerSlot {
	return b.targetSlots[t.Target.Container()]
}

// SourceSlots returns the source slots ordered by index, then name.
func (b *TransferBatch) SourceSlots() []ContainerSlot {
	return sortedSlots(b.sourceSlots)
}

// TargetSlots returns the target slots ordered by index.
func (b *TransferBatch) TargetSlots() []ContainerSlot {
	return sortedSlots(b.targetSlots)
}

func sortedSlots(m map[ContainerID]ContainerSlot) []ContainerSlot {
	out := make([]ContainerSlot, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// TransfersByOutput returns every transfer of the batch dispensing into ref.
func (b *TransferBatch) TransfersByOutput(ref WellRef) []*SingleTransfer {
	return b.byOutput[ref]
}

// WellIndex returns the robot-native index of ref.
func (b *TransferBatch) WellIndex(ref WellRef) int {
	idx, err := b.positioner.WellIndex(ref)
	if err != nil {
		return 0
	}
	return idx
}

// ContainerMappings returns the distinct (source slot, target slot) pairs of the batch.
func (b *TransferBatch) ContainerMappings() []ContainerMapping {
	seen := make(map[[2]ContainerID]bool)
	var out []ContainerMapping
	for _, t := range b.transfers {
		k := [2]ContainerID{t.Source.Container(), t.Target.Container()}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ContainerMapping{Source: b.SourceSlot(t), Target: b.TargetSlot(t)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source.Index != out[j].Source.Index {
			return out[i].Source.Index < out[j].Source.Index
		}
		if out[i].Source.Name != out[j].Source.Name {
			return out[i].Source.Name < out[j].Source.Name
		}
		return out[i].Target.Index < out[j].Target.Index
	})
	return out
}

// Results returns the validation entries raised while checking this batch.
func (b *TransferBatch) Results() ValidationResults {
	return b.results
}

// validate checks the frozen batch against the robot's physical limits.
func (b *TransferBatch) validate(robot RobotSettings) {
	aspirated := make(map[string]float64)
	firstFrom := make(map[string]*SingleTransfer)
	for _, t := range b.transfers {
		if t.IsControl() || !t.Calculated {
			continue
		}
		if t.PipetteSampleVolume > 0 && t.PipetteSampleVolume < robot.MinPipetteVolume-volumeEpsilon {
			b.results.Error(t, "sample volume %.1f ul is below the minimum pipette volume of %g ul",
				t.PipetteSampleVolume, robot.MinPipetteVolume)
		}
		id := t.Source.ArtifactID
		if id == "" {
			continue
		}
		aspirated[id] += t.PipetteSampleVolume
		if t.SplitType != SplitRow || t.Original == nil {
			aspirated[id] += robot.WasteVolume
		}
		if _, ok := firstFrom[id]; !ok {
			firstFrom[id] = t
		}
	}
	ids := make([]string, 0, len(aspirated))
	for id := range aspirated {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t := firstFrom[id]
		if t.Source.Volume != nil && aspirated[id] > *t.Source.Volume+volumeEpsilon {
			b.results.Error(t, "source %s holds %.1f ul but %.1f ul would be aspirated",
				t.Source.ArtifactName, *t.Source.Volume, aspirated[id])
		}
	}
}

// Report renders a human readable dump of the batch.
func (b *TransferBatch) Report() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %q (robot %s, %d transfers)\n", b.Key, b.Robot, len(b.transfers))
	sb.WriteString("  Slots:\n")
	for _, s := range append(b.SourceSlots(), b.TargetSlots()...) {
		name := string(s.Container)
		if c, ok := b.positioner.inv.Container(s.Container); ok {
			name = c.Name
		}
		role := "target"
		if s.IsSource {
			role = "source"
		}
		fmt.Fprintf(&sb, "    %-8s %-6s %s\n", s.Name, role, name)
	}
	sb.WriteString("  Transfers:\n")
	for _, t := range b.transfers {
		var flags []string
		if t.HasToEvaporate {
			flags = append(flags, "evaporate")
		}
		if t.ScaledUp {
			flags = append(flags, "scaled-up")
		}
		if t.SplitType != SplitNone {
			flags = append(flags, string(t.SplitType)+"-split")
		}
		if !t.IsPrimary {
			flags = append(flags, "secondary")
		}
		if t.IsControl() {
			flags = append(flags, "control")
		}
		fmt.Fprintf(&sb, "    %s %s -> %s %s sample=%.1f buffer=%.1f",
			b.SourceSlot(t).Name, t.Source.Well.Position, b.TargetSlot(t).Name, t.Target.Well.Position,
			t.PipetteSampleVolume, t.PipetteBufferVolume)
		if len(flags) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(flags, ","))
		}
		sb.WriteString("\n")
	}
	for _, v := range b.results.Items {
		fmt.Fprintf(&sb, "  %s\n", v)
	}
	return sb.String()
}

// TransferBatchCollection is the ordered set of batches one robot evaluation
// produced. Batches created by batch splits come first because they run first.
type TransferBatchCollection struct {
	Robot         string
	FileExtension string

	batches []*TransferBatch
}

func newTransferBatchCollection(robot RobotSettings, batches []*TransferBatch) *TransferBatchCollection {
	sort.SliceStable(batches, func(i, j int) bool {
		ki, kj := batches[i].Key, batches[j].Key
		if (ki == DefaultBatchKey) != (kj == DefaultBatchKey) {
			return kj == DefaultBatchKey
		}
		return ki < kj
	})
	return &TransferBatchCollection{Robot: robot.Name, FileExtension: robot.FileExtension, batches: batches}
}

// Batches returns the batches in execution order.
func (c *TransferBatchCollection) Batches() []*TransferBatch {
	return append([]*TransferBatch(nil), c.batches...)
}

// Len returns the number of batches.
func (c *TransferBatchCollection) Len() int {
	return len(c.batches)
}

// Batch returns the batch tagged key.
func (c *TransferBatchCollection) Batch(key string) (*TransferBatch, bool) {
	for _, b := range c.batches {
		if b.Key == key {
			return b, true
		}
	}
	return nil, false
}

// DriverFileName names the driver file of the batch tagged key.
func (c *TransferBatchCollection) DriverFileName(key string) string {
	return fmt.Sprintf("%s_%s.%s", c.Robot, key, c.FileExtension)
}

// DriverFiles maps driver file names to their batches.
func (c *TransferBatchCollection) DriverFiles() map[string]*TransferBatch {
	out := make(map[string]*TransferBatch, len(c.batches))
	for _, b := range c.batches {
		out[c.DriverFileName(b.Key)] = b
	}
	return out
}

// Transfers returns every transfer across batches in batch order.
func (c *TransferBatchCollection) Transfers() []*SingleTransfer {
	var out []*SingleTransfer
	for _, b := range c.batches {
		out = append(out, b.transfers...)
	}
	return out
}

// Report concatenates the reports of every batch.
func (c *TransferBatchCollection) Report() string {
	var sb strings.Builder
	for i, b := range c.batches {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(b.Report())
	}
	return sb.String()
}
