package systems

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/fresco/painter/core"
	"github.com/spaghettifunk/fresco/painter/gpu"
	"github.com/spaghettifunk/fresco/painter/metadata"
)

type LayoutSystemConfig struct {
	/** @brief The maximum number of distinct layouts. Layouts are never
	evicted, so this bounds a leak from runaway descriptor generation. */
	MaxLayoutCount uint32
	/** @brief The limits Intern validates against. The zero value means
	ask the device. */
	Limits gpu.Limits
}

type layoutEntry struct {
	id         metadata.LayoutID
	descriptor metadata.BindingSetDescriptor
	layout     gpu.BindGroupLayout
}

// LayoutSystem interns binding-set descriptors. Two structurally equal
// descriptors map to the same LayoutID for the life of the process, which
// is what makes layout identity a cheap field of the pipeline key.
type LayoutSystem struct {
	config *LayoutSystemConfig
	device gpu.Device
	limits gpu.Limits
	byKey  map[string]*layoutEntry
	byID   []*layoutEntry
}

func NewLayoutSystem(config *LayoutSystemConfig, device gpu.Device) (*LayoutSystem, error) {
	if config.MaxLayoutCount == 0 {
		err := fmt.Errorf("func NewLayoutSystem - config.MaxLayoutCount must be > 0")
		core.LogFatal(err.Error())
		return nil, err
	}
	limits := config.Limits
	if limits == (gpu.Limits{}) {
		limits = device.Limits()
	}
	return &LayoutSystem{
		config: config,
		device: device,
		limits: limits,
		byKey:  make(map[string]*layoutEntry),
	}, nil
}

// Intern returns the LayoutID of the descriptor, creating the device layout
// on first sight. Interning never evicts.
func (ls *LayoutSystem) Intern(desc metadata.BindingSetDescriptor) (metadata.LayoutID, error) {
	if err := ls.validate(&desc); err != nil {
		core.LogError(err.Error())
		return 0, err
	}

	key := descriptorKey(&desc)
	if entry, exists := ls.byKey[key]; exists {
		return entry.id, nil
	}

	if uint32(len(ls.byID)) >= ls.config.MaxLayoutCount {
		err := fmt.Errorf("layout registry full (%d layouts)", ls.config.MaxLayoutCount)
		core.LogError(err.Error())
		return 0, err
	}

	entries := make([]gpu.BindGroupLayoutEntry, len(desc.Entries))
	for i, slot := range desc.Entries {
		entries[i] = gpu.BindGroupLayoutEntry{
			Binding:    slot.Slot,
			Visibility: slot.Visibility,
			Type:       slot.Type,
		}
	}

	id := metadata.LayoutID(len(ls.byID) + 1)
	layout, err := ls.device.CreateBindGroupLayout(fmt.Sprintf("layout-%d", id), entries)
	if err != nil {
		core.LogError("func Intern - device rejected layout: %s", err.Error())
		return 0, err
	}

	entry := &layoutEntry{id: id, descriptor: desc, layout: layout}
	ls.byKey[key] = entry
	ls.byID = append(ls.byID, entry)
	core.LogDebug("layout %d interned with %d bindings", id, len(desc.Entries))
	return id, nil
}

func (ls *LayoutSystem) validate(desc *metadata.BindingSetDescriptor) error {
	limits := ls.limits
	if uint32(len(desc.Entries)) > limits.MaxBindingsPerGroup {
		return fmt.Errorf("binding set has %d slots, the limit is %d", len(desc.Entries), limits.MaxBindingsPerGroup)
	}
	seen := make(map[uint32]bool, len(desc.Entries))
	for _, slot := range desc.Entries {
		if seen[slot.Slot] {
			return fmt.Errorf("binding set declares slot %d twice", slot.Slot)
		}
		seen[slot.Slot] = true
		if slot.Visibility == 0 {
			return fmt.Errorf("binding slot %d is visible to no stage", slot.Slot)
		}
	}
	return nil
}

// descriptorKey is the structural identity of a descriptor. Entry order is
// part of the identity: a binding set is an ordered list.
func descriptorKey(desc *metadata.BindingSetDescriptor) string {
	var sb strings.Builder
	for _, slot := range desc.Entries {
		fmt.Fprintf(&sb, "%d/%d/%d;", slot.Slot, slot.Type, slot.Visibility)
	}
	return sb.String()
}

// Layout resolves the device layout of an interned id.
func (ls *LayoutSystem) Layout(id metadata.LayoutID) (gpu.BindGroupLayout, error) {
	if id == 0 || int(id) > len(ls.byID) {
		return nil, fmt.Errorf("unknown layout id %d", id)
	}
	return ls.byID[id-1].layout, nil
}

// Descriptor returns the interned descriptor of an id.
func (ls *LayoutSystem) Descriptor(id metadata.LayoutID) (*metadata.BindingSetDescriptor, error) {
	if id == 0 || int(id) > len(ls.byID) {
		return nil, fmt.Errorf("unknown layout id %d", id)
	}
	return &ls.byID[id-1].descriptor, nil
}

// Count reports how many layouts were interned.
func (ls *LayoutSystem) Count() int {
	return len(ls.byID)
}

func (ls *LayoutSystem) Shutdown() error {
	for _, entry := range ls.byID {
		entry.layout.Release()
	}
	ls.byID = nil
	ls.byKey = make(map[string]*layoutEntry)
	return nil
}
