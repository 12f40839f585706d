package buffer

import (
	"fmt"
)

// Slot is a handle to one region of a Workspace. Handles are index based and
// only valid for the workspace that allocated them.
type Slot struct {
	index int
	owner *Workspace
}

// Binding is the descriptor currently bound to a slot. A later Bind on the
// same slot makes every earlier Binding stale.
type Binding struct {
	Image
	slot       Slot
	generation uint64
}

// Slot returns the slot this binding belongs to.
func (b Binding) Slot() Slot { return b.slot }

type slotState struct {
	name       string
	region     []byte
	generation uint64
}

// Workspace is a fixed set of reusable regions sized for the maximum
// resolution. Regions are allocated once and never freed. Writers take turns:
// rebinding a slot invalidates the previous descriptor over it.
type Workspace struct {
	maxWidth  int
	maxHeight int
	slots     []slotState
}

// NewWorkspace creates an empty arena bounded to maxWidth x maxHeight pixels.
func NewWorkspace(maxWidth, maxHeight int) (*Workspace, error) {
	if maxWidth <= 0 || maxHeight <= 0 || maxWidth > MaxDimension || maxHeight > MaxDimension {
		return nil, Invalid("new workspace", "invalid maximum resolution %dx%d", maxWidth, maxHeight)
	}
	return &Workspace{maxWidth: maxWidth, maxHeight: maxHeight}, nil
}

// MaxWidth returns the maximum supported width.
func (w *Workspace) MaxWidth() int { return w.maxWidth }

// MaxHeight returns the maximum supported height.
func (w *Workspace) MaxHeight() int { return w.maxHeight }

// Allocate reserves a region large enough for a full-resolution image in enc.
func (w *Workspace) Allocate(name string, enc Encoding) (Slot, error) {
	if !enc.Valid() {
		return Slot{}, Invalid("allocate slot", "unsupported encoding %s for slot %q", enc, name)
	}
	for _, s := range w.slots {
		if s.name == name {
			return Slot{}, Invalid("allocate slot", "slot %q already allocated", name)
		}
	}

	w.slots = append(w.slots, slotState{
		name:   name,
		region: make([]byte, w.maxWidth*w.maxHeight*enc.BytesPerPixel()),
	})
	return Slot{index: len(w.slots) - 1, owner: w}, nil
}

func (w *Workspace) state(op string, s Slot) (*slotState, error) {
	if s.owner != w || s.index < 0 || s.index >= len(w.slots) {
		return nil, Invalid(op, "slot does not belong to this workspace")
	}
	return &w.slots[s.index], nil
}

// Bind rebinds slot to a new descriptor of the given shape. The slot's prior
// contents are not cleared; they are overwritten by the next writer.
func (w *Workspace) Bind(s Slot, width, height int, enc Encoding) (Binding, error) {
	const op = "bind slot"

	st, err := w.state(op, s)
	if err != nil {
		return Binding{}, err
	}
	if !enc.Valid() {
		return Binding{}, Invalid(op, "unsupported encoding %s", enc)
	}
	if width > w.maxWidth || height > w.maxHeight {
		return Binding{}, &CapacityError{
			Op:       fmt.Sprintf("%s %q", op, st.name),
			Need:     width * height * enc.BytesPerPixel(),
			Capacity: len(st.region),
		}
	}
	if need := width * height * enc.BytesPerPixel(); need > len(st.region) {
		return Binding{}, &CapacityError{Op: fmt.Sprintf("%s %q", op, st.name), Need: need, Capacity: len(st.region)}
	}

	img, err := NewImage(st.region, width, height, enc)
	if err != nil {
		return Binding{}, err
	}

	st.generation++
	return Binding{Image: img, slot: s, generation: st.generation}, nil
}

// Live reports whether b is still the current binding of its slot.
func (w *Workspace) Live(b Binding) bool {
	st, err := w.state("live", b.slot)
	if err != nil {
		return false
	}
	return st.generation == b.generation
}

// Region returns the whole region of a slot, for use as scratch space.
func (w *Workspace) Region(s Slot) ([]byte, error) {
	st, err := w.state("region", s)
	if err != nil {
		return nil, err
	}
	return st.region, nil
}

// Capacity returns the byte size of a slot's region.
func (w *Workspace) Capacity(s Slot) int {
	st, err := w.state("capacity", s)
	if err != nil {
		return 0
	}
	return len(st.region)
}

// Name returns the name a slot was allocated with.
func (w *Workspace) Name(s Slot) string {
	st, err := w.state("name", s)
	if err != nil {
		return ""
	}
	return st.name
}

// TotalBytes returns the memory held by all slots.
func (w *Workspace) TotalBytes() int {
	total := 0
	for _, s := range w.slots {
		total += len(s.region)
	}
	return total
}
