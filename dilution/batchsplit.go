package dilution

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clarity-ext/dilution/dilution/trace"
)

// IntermediateTag is the batch tag of intermediate-dilution splits.
const IntermediateTag = "intermediate"

// temporaryNamespace seeds the name-based UUIDs of temporary containers so
// the same (original container, tag) pair always yields the same ID.
var temporaryNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("clarity-ext/dilution/temporary-container"))

type temporaryKey struct {
	original ContainerID
	tag      string
}

// temporaryContainers caches synthetic containers per (original container, tag).
// It is owned by one session and reset at the start of every evaluation.
type temporaryContainers struct {
	inv   *Inventory
	byKey map[temporaryKey]*Container
	seq   map[string]int
	order []temporaryKey
}

func newTemporaryContainers(inv *Inventory) *temporaryContainers {
	return &temporaryContainers{
		inv:   inv,
		byKey: make(map[temporaryKey]*Container),
		seq:   make(map[string]int),
	}
}

// get returns the temporary container for original and tag, creating it on first use.
func (tc *temporaryContainers) get(original *Container, tag string) (*Container, error) {
	key := temporaryKey{original: original.ID, tag: tag}
	if c, ok := tc.byKey[key]; ok {
		return c, nil
	}
	tc.seq[tag]++
	id := uuid.NewSHA1(temporaryNamespace, []byte(string(original.ID)+"/"+tag))
	c, err := NewContainer(ContainerID(id.String()), fmt.Sprintf("%s%d", tag, tc.seq[tag]), original.Type)
	if err != nil {
		return nil, err
	}
	c.IsTemporary = true
	if err := tc.inv.Add(c); err != nil {
		return nil, err
	}
	tc.byKey[key] = c
	tc.order = append(tc.order, key)
	logrus.Debugf("created temporary container %s (%s) for %s", c.Name, c.ID, original.ID)
	return c, nil
}

// reset drops every temporary container from the inventory.
func (tc *temporaryContainers) reset() {
	for _, key := range tc.order {
		tc.inv.remove(tc.byKey[key].ID)
	}
	tc.byKey = make(map[temporaryKey]*Container)
	tc.seq = make(map[string]int)
	tc.order = nil
}

// allocateTemporaryWell reserves a well in c, preferring pos.
func (e *Env) allocateTemporaryWell(c *Container, pos Position) (WellRef, error) {
	preferred := WellRef{Container: c.ID, Position: pos}
	if c.Size.Contains(pos) && !e.usedTempWells[preferred] {
		e.usedTempWells[preferred] = true
		return preferred, nil
	}
	for _, w := range c.Wells() {
		if !e.usedTempWells[w.Ref] {
			e.usedTempWells[w.Ref] = true
			return w.Ref, nil
		}
	}
	return WellRef{}, fmt.Errorf("temporary container %s has no free well", c.Name)
}

// BatchSplitHandler reroutes a transfer through a well of a temporary
// container, producing (temp transfer, main transfer). The temp transfer
// aspirates from the true source into the temporary well and is tagged
// with Tag; the main transfer aspirates from the temporary well into the
// true target and stays in the default batch.
type BatchSplitHandler struct {
	Tag string
	// Applies selects the transfers to reroute.
	Applies func(env *Env, t *SingleTransfer) bool
	// Volumes fills in the volumes of both halves after rerouting.
	Volumes func(env *Env, temp, main *SingleTransfer)
}

func (h *BatchSplitHandler) Name() string { return "batch-split[" + h.Tag + "]" }

func (h *BatchSplitHandler) ShouldExecute(env *Env, t *SingleTransfer) bool {
	return t.SplitType == SplitNone && !t.IsControl() && h.Applies(env, t)
}

func (h *BatchSplitHandler) Run(env *Env, t *SingleTransfer) ([]*SingleTransfer, error) {
	original, ok := env.inventory.Container(t.Source.Container())
	if !ok {
		return nil, fmt.Errorf("source container %q not in inventory", t.Source.Container())
	}
	tempContainer, err := env.temps.get(original, h.Tag)
	if err != nil {
		return nil, err
	}
	ref, err := env.allocateTemporaryWell(tempContainer, t.Source.Well.Position)
	if err != nil {
		env.Results.Error(t, "cannot reroute through %s: %v", h.Tag, err)
		return []*SingleTransfer{t}, nil
	}
	tempEndpoint := &TransferEndpoint{
		Well:         ref,
		ArtifactName: fmt.Sprintf("%s (%s)", t.Source.ArtifactName, tempContainer.Name),
	}

	temp := t.derive(env.newID(), SplitBatch)
	temp.Target = tempEndpoint
	temp.BatchKey = h.Tag

	t.Source = tempEndpoint.clone()
	t.SplitType = SplitBatch
	t.BatchKey = DefaultBatchKey
	t.Upstream = temp

	h.Volumes(env, temp, t)
	t.Source.Concentration = temp.Target.Concentration
	t.Source.Volume = temp.Target.Volume

	env.Trace.RecordSplit(trace.SplitRecord{
		Robot: env.Robot.Name, TransferID: t.ID, Kind: string(SplitBatch), Tag: h.Tag, Copies: 2,
	})
	return []*SingleTransfer{temp, t}, nil
}

// NewIntermediateDilutionHandler reroutes transfers whose sample volume is
// below the minimum pipette volume through a pre-diluted temporary well.
// The temporary well is diluted to ci = tc*tv/min so that the main transfer
// pipettes exactly the minimum volume.
func NewIntermediateDilutionHandler() *BatchSplitHandler {
	return &BatchSplitHandler{
		Tag:     IntermediateTag,
		Applies: needsIntermediateDilution,
		Volumes: intermediateDilutionVolumes,
	}
}

func needsIntermediateDilution(env *Env, t *SingleTransfer) bool {
	return env.Settings.IntermediateDilution &&
		env.Settings.VolumeCalcMethod == CalcByConcentration &&
		t.Calculated && !t.ScaledUp && !t.IsPooled() &&
		t.PipetteSampleVolume > 0 &&
		t.PipetteSampleVolume < env.Robot.MinPipetteVolume-volumeEpsilon &&
		*t.Target.RequestedVolume >= env.Robot.MinPipetteVolume-volumeEpsilon
}

func intermediateDilutionVolumes(env *Env, temp, main *SingleTransfer) {
	minVol, waste := env.Robot.MinPipetteVolume, env.Robot.WasteVolume
	sc := *temp.Source.Concentration
	tc, tv := *main.Target.RequestedConcentration, *main.Target.RequestedVolume
	ci := tc * tv / minVol

	// The temporary well must hold at least what the main transfer aspirates plus waste.
	sample := math.Max(minVol, (minVol+waste)*ci/sc)
	total := sample * sc / ci

	temp.PipetteSampleVolume = sample
	temp.PipetteBufferVolume = total - sample
	temp.HasToEvaporate = false
	temp.SourceVolDelta = Float64Ptr(-(sample + waste))
	temp.FinalConcentration = nil
	temp.FinalVolume = nil
	temp.Target.Concentration = Float64Ptr(ci)
	temp.Target.Volume = Float64Ptr(total)
	temp.Calculated = true

	main.PipetteSampleVolume = minVol
	main.PipetteBufferVolume = tv - minVol
	main.HasToEvaporate = false
	main.SourceVolDelta = Float64Ptr(*temp.SourceVolDelta)
	main.FinalConcentration = Float64Ptr(tc)
	main.FinalVolume = Float64Ptr(tv)

	env.Results.Warning(main, "sample volume below %g ul; diluted through intermediate well %s at %.3f", minVol, temp.Target.Well, ci)
}
