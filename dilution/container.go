package dilution

import (
	"fmt"
	"sort"
)

// ContainerType fixes the size of a container.
type ContainerType string

const (
	ContainerTypeWellPlate96 ContainerType = "well-plate-96"
	ContainerTypeStripTube   ContainerType = "strip-tube"
	ContainerTypeTube        ContainerType = "tube"
)

// containerSizes maps each container type to its dimensions.
var containerSizes = map[ContainerType]ContainerSize{
	ContainerTypeWellPlate96: {Height: 8, Width: 12},
	ContainerTypeStripTube:   {Height: 8, Width: 1},
	ContainerTypeTube:        {Height: 1, Width: 1},
}

// IsValidContainerType reports whether t names a known container type.
func IsValidContainerType(t ContainerType) bool {
	_, ok := containerSizes[t]
	return ok
}

// ContainerID identifies a container within one session.
type ContainerID string

// WellRef addresses a well by container identifier and position.
// Transfers and endpoints hold WellRefs, never pointers into containers.
type WellRef struct {
	Container ContainerID
	Position  Position
}

func (r WellRef) String() string {
	return fmt.Sprintf("%s@%s", r.Container, r.Position)
}

// Well is one position of a container. It optionally holds an artifact.
type Well struct {
	Ref      WellRef
	Artifact *Artifact
}

// IsEmpty reports whether no artifact occupies the well.
func (w *Well) IsEmpty() bool {
	return w.Artifact == nil
}

// Container owns a table of wells keyed by position. Every position inside
// Size resolves to exactly one Well.
type Container struct {
	ID          ContainerID
	Name        string
	Type        ContainerType
	Size        ContainerSize
	IsTemporary bool

	wells map[Position]*Well
}

// NewContainer creates an empty container of the given type.
func NewContainer(id ContainerID, name string, typ ContainerType) (*Container, error) {
	size, ok := containerSizes[typ]
	if !ok {
		return nil, fmt.Errorf("unknown container type %q", typ)
	}
	c := &Container{
		ID:    id,
		Name:  name,
		Type:  typ,
		Size:  size,
		wells: make(map[Position]*Well, size.Capacity()),
	}
	for col := 1; col <= size.Width; col++ {
		for row := 1; row <= size.Height; row++ {
			pos := Position{Row: row, Col: col}
			c.wells[pos] = &Well{Ref: WellRef{Container: id, Position: pos}}
		}
	}
	return c, nil
}

// Well returns the well at pos.
func (c *Container) Well(pos Position) (*Well, error) {
	w, ok := c.wells[pos]
	if !ok {
		return nil, fmt.Errorf("position %s outside container %s (%dx%d)", pos, c.ID, c.Size.Height, c.Size.Width)
	}
	return w, nil
}

// Place puts artifact a into the well at pos.
func (c *Container) Place(pos Position, a *Artifact) error {
	w, err := c.Well(pos)
	if err != nil {
		return err
	}
	if !w.IsEmpty() && w.Artifact.ID != a.ID {
		return fmt.Errorf("well %s already holds artifact %s", w.Ref, w.Artifact.ID)
	}
	a.Location = w.Ref
	w.Artifact = a
	return nil
}

// Wells returns all wells in down-first order.
func (c *Container) Wells() []*Well {
	out := make([]*Well, 0, len(c.wells))
	for _, w := range c.wells {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ref.Position.IndexDownFirst(c.Size) < out[j].Ref.Position.IndexDownFirst(c.Size)
	})
	return out
}

// OccupiedWells returns non-empty wells in down-first order.
func (c *Container) OccupiedWells() []*Well {
	var out []*Well
	for _, w := range c.Wells() {
		if !w.IsEmpty() {
			out = append(out, w)
		}
	}
	return out
}

// Inventory owns every container observed by a session and resolves
// WellRefs back to wells.
type Inventory struct {
	containers map[ContainerID]*Container
}

// NewInventory returns an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{containers: make(map[ContainerID]*Container)}
}

// Add registers c. Adding a second container with the same ID is an error.
func (inv *Inventory) Add(c *Container) error {
	if existing, ok := inv.containers[c.ID]; ok && existing != c {
		return fmt.Errorf("duplicate container id %q", c.ID)
	}
	inv.containers[c.ID] = c
	return nil
}

// Container returns the container with the given ID.
func (inv *Inventory) Container(id ContainerID) (*Container, bool) {
	c, ok := inv.containers[id]
	return c, ok
}

// Resolve returns the well addressed by ref.
func (inv *Inventory) Resolve(ref WellRef) (*Well, error) {
	c, ok := inv.containers[ref.Container]
	if !ok {
		return nil, fmt.Errorf("unknown container %q", ref.Container)
	}
	return c.Well(ref.Position)
}

// remove drops a container; used to discard temporary containers between evaluations.
func (inv *Inventory) remove(id ContainerID) {
	delete(inv.containers, id)
}
