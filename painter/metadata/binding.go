package metadata

import "github.com/spaghettifunk/fresco/painter/gpu"

// LayoutID identifies an interned binding-set layout. Identical descriptors
// intern to the same id for the life of the process. The zero value is
// unassigned.
type LayoutID uint32

// BindingSlot declares one slot of a binding set: where it binds, what kind
// of resource goes there and which stages see it.
type BindingSlot struct {
	Slot       uint32
	Type       gpu.BindingType
	Visibility gpu.ShaderStage
}

// BindingSetDescriptor is the ordered list of slots a pipeline expects as
// its binding set (group 0). Two descriptors with the same entries are the
// same layout.
type BindingSetDescriptor struct {
	Entries []BindingSlot
}

// ResourceBinding assigns a table resource to one slot of a draw or
// dispatch, matching the pipeline's BindingSetDescriptor.
type ResourceBinding struct {
	Slot   uint32
	Handle ResourceHandle
}
