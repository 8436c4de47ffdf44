package dilution

import (
	"sort"
)

// UpdateInfo is the write-back for one target analyte. A nil field means
// "do not update". SourceVolDelta is set when exactly one source feeds the
// target; SourceDeltas always lists the delta per source artifact.
type UpdateInfo struct {
	TargetConcentration *float64           `yaml:"target_concentration,omitempty"`
	TargetVolume        *float64           `yaml:"target_volume,omitempty"`
	SourceVolDelta      *float64           `yaml:"source_volume_delta,omitempty"`
	SourceDeltas        map[string]float64 `yaml:"source_deltas,omitempty"`
}

// UpdateSink persists update infos keyed by target artifact ID.
type UpdateSink interface {
	Apply(updates map[string]UpdateInfo) error
}

// transfersForUpdate returns the primary, non-control, calculated transfers
// of c ordered by transfer ID.
func transfersForUpdate(c *TransferBatchCollection) []*SingleTransfer {
	var out []*SingleTransfer
	for _, t := range c.Transfers() {
		if t.IsPrimary && !t.IsControl() && t.Calculated {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// updateInfosByTargetAnalyte folds the update transfers of c into one
// UpdateInfo per target artifact. Pools contribute one entry whose target
// values come from the pool representative.
func updateInfosByTargetAnalyte(c *TransferBatchCollection) map[string]UpdateInfo {
	out := make(map[string]UpdateInfo)
	for _, t := range transfersForUpdate(c) {
		id := t.Target.ArtifactID
		info, ok := out[id]
		if !ok {
			info.SourceDeltas = make(map[string]float64)
		}
		if !t.IsPooled() || t.IsPoolRepresentative {
			info.TargetConcentration = t.FinalConcentration
			info.TargetVolume = t.FinalVolume
		}
		if t.SourceVolDelta != nil {
			info.SourceDeltas[sourceArtifactID(t)] = *t.SourceVolDelta
		}
		out[id] = info
	}
	for id, info := range out {
		if len(info.SourceDeltas) == 1 {
			for _, d := range info.SourceDeltas {
				info.SourceVolDelta = Float64Ptr(d)
			}
		}
		if len(info.SourceDeltas) == 0 {
			info.SourceDeltas = nil
		}
		out[id] = info
	}
	return out
}

// sourceArtifactID returns the true source of t, looking through a batch split.
func sourceArtifactID(t *SingleTransfer) string {
	if t.Upstream != nil {
		return t.Upstream.Source.ArtifactID
	}
	return t.Source.ArtifactID
}
