package dilution

import (
	"fmt"
	"sort"
)

// ContainerSlot is the robot-deck position given to one container of a batch.
type ContainerSlot struct {
	Container ContainerID
	Index     int
	Name      string
	IsSource  bool
}

// Positioner assigns slot indices and robot-facing labels to containers and
// computes robot-specific well indices.
type Positioner struct {
	robot RobotSettings
	inv   *Inventory
}

// NewPositioner creates a positioner for one robot.
func NewPositioner(robot RobotSettings, inv *Inventory) *Positioner {
	return &Positioner{robot: robot, inv: inv}
}

// AssignSlots numbers the distinct source and target containers of transfers.
// Source containers holding only control samples get index 0. Remaining
// containers are ordered by (temporary flag, id) and numbered from 1, with
// source and target numbering kept independent.
func (p *Positioner) AssignSlots(transfers []*SingleTransfer) (sources, targets map[ContainerID]ContainerSlot, err error) {
	controlOnly := make(map[ContainerID]bool)
	var sourceIDs, targetIDs []ContainerID
	seenTarget := make(map[ContainerID]bool)
	for _, t := range transfers {
		id := t.Source.Container()
		if _, seen := controlOnly[id]; !seen {
			controlOnly[id] = true
			sourceIDs = append(sourceIDs, id)
		}
		if !t.Source.IsControl {
			controlOnly[id] = false
		}
		if tid := t.Target.Container(); !seenTarget[tid] {
			seenTarget[tid] = true
			targetIDs = append(targetIDs, tid)
		}
	}

	var controls, regular []*Container
	for _, id := range sourceIDs {
		c, ok := p.inv.Container(id)
		if !ok {
			return nil, nil, fmt.Errorf("source container %q not in inventory", id)
		}
		if controlOnly[id] {
			controls = append(controls, c)
		} else {
			regular = append(regular, c)
		}
	}
	sortContainers(controls)
	sortContainers(regular)

	sources = make(map[ContainerID]ContainerSlot, len(sourceIDs))
	for i, c := range controls {
		name := p.robot.ControlSlotName
		if len(controls) > 1 {
			name = fmt.Sprintf("%s%d", name, i+1)
		}
		sources[c.ID] = ContainerSlot{Container: c.ID, Index: 0, Name: name, IsSource: true}
	}
	for i, c := range regular {
		sources[c.ID] = ContainerSlot{Container: c.ID, Index: i + 1, Name: p.label(c, p.robot.SourcePrefix, i+1), IsSource: true}
	}

	targetContainers := make([]*Container, 0, len(targetIDs))
	for _, id := range targetIDs {
		c, ok := p.inv.Container(id)
		if !ok {
			return nil, nil, fmt.Errorf("target container %q not in inventory", id)
		}
		targetContainers = append(targetContainers, c)
	}
	sortContainers(targetContainers)
	targets = make(map[ContainerID]ContainerSlot, len(targetContainers))
	for i, c := range targetContainers {
		targets[c.ID] = ContainerSlot{Container: c.ID, Index: i + 1, Name: p.label(c, p.robot.TargetPrefix, i+1), IsSource: false}
	}
	return sources, targets, nil
}

func (p *Positioner) label(c *Container, prefix string, index int) string {
	if c.IsTemporary {
		prefix = p.robot.TemporaryPrefix
	}
	return fmt.Sprintf("%s%d", prefix, index)
}

func sortContainers(cs []*Container) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].IsTemporary != cs[j].IsTemporary {
			return !cs[i].IsTemporary
		}
		return cs[i].ID < cs[j].ID
	})
}

// WellIndex returns the robot-native index of the well addressed by ref.
func (p *Positioner) WellIndex(ref WellRef) (int, error) {
	c, ok := p.inv.Container(ref.Container)
	if !ok {
		return 0, fmt.Errorf("container %q not in inventory", ref.Container)
	}
	return ref.Position.Index(c.Size, p.robot.Traversal), nil
}

// FindSortNumber combines the source slot index and the down-first index of
// the source well into one scalar. Down-first is used regardless of the
// robot's traversal so row order is robot-independent.
func (p *Positioner) FindSortNumber(t *SingleTransfer, slot ContainerSlot) (int, error) {
	c, ok := p.inv.Container(t.Source.Container())
	if !ok {
		return 0, fmt.Errorf("source container %q not in inventory", t.Source.Container())
	}
	return slot.Index*(c.Size.Capacity()+1) + t.Source.Well.Position.IndexDownFirst(c.Size), nil
}
