package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/fresco/painter/gpu"
	"github.com/spaghettifunk/fresco/painter/metadata"
)

func uniformAndTextureSet() metadata.BindingSetDescriptor {
	return metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
		{Slot: 0, Type: gpu.BindingTypeUniformBuffer, Visibility: gpu.ShaderStageVertex | gpu.ShaderStageFragment},
		{Slot: 1, Type: gpu.BindingTypeTexture, Visibility: gpu.ShaderStageFragment},
		{Slot: 2, Type: gpu.BindingTypeSampler, Visibility: gpu.ShaderStageFragment},
	}}
}

func TestLayoutInternsStructurally(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	// Two descriptors built independently with equal content are one
	// layout.
	a, err := h.layouts.Intern(uniformAndTextureSet())
	require.NoError(t, err)
	b, err := h.layouts.Intern(uniformAndTextureSet())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, h.layouts.Count())

	c, err := h.layouts.Intern(metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
		{Slot: 0, Type: gpu.BindingTypeStorageBuffer, Visibility: gpu.ShaderStageCompute},
	}})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, h.layouts.Count())

	// Re-interning never evicts or renumbers.
	again, err := h.layouts.Intern(uniformAndTextureSet())
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Equal(t, 2, h.layouts.Count())
}

func TestLayoutEntryOrderIsIdentity(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	forward := metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
		{Slot: 0, Type: gpu.BindingTypeUniformBuffer, Visibility: gpu.ShaderStageVertex},
		{Slot: 1, Type: gpu.BindingTypeSampler, Visibility: gpu.ShaderStageFragment},
	}}
	reversed := metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
		{Slot: 1, Type: gpu.BindingTypeSampler, Visibility: gpu.ShaderStageFragment},
		{Slot: 0, Type: gpu.BindingTypeUniformBuffer, Visibility: gpu.ShaderStageVertex},
	}}

	a, err := h.layouts.Intern(forward)
	require.NoError(t, err)
	b, err := h.layouts.Intern(reversed)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLayoutRejectsMalformedDescriptors(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	_, err := h.layouts.Intern(metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
		{Slot: 0, Type: gpu.BindingTypeUniformBuffer, Visibility: gpu.ShaderStageVertex},
		{Slot: 0, Type: gpu.BindingTypeSampler, Visibility: gpu.ShaderStageFragment},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice")

	_, err = h.layouts.Intern(metadata.BindingSetDescriptor{Entries: []metadata.BindingSlot{
		{Slot: 0, Type: gpu.BindingTypeUniformBuffer},
	}})
	require.Error(t, err)

	limits := h.device.Limits()
	entries := make([]metadata.BindingSlot, limits.MaxBindingsPerGroup+1)
	for i := range entries {
		entries[i] = metadata.BindingSlot{Slot: uint32(i), Type: gpu.BindingTypeUniformBuffer, Visibility: gpu.ShaderStageVertex}
	}
	_, err = h.layouts.Intern(metadata.BindingSetDescriptor{Entries: entries})
	require.Error(t, err)
}

func TestLayoutResolve(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	id, err := h.layouts.Intern(uniformAndTextureSet())
	require.NoError(t, err)

	layout, err := h.layouts.Layout(id)
	require.NoError(t, err)
	require.NotNil(t, layout)

	desc, err := h.layouts.Descriptor(id)
	require.NoError(t, err)
	assert.Len(t, desc.Entries, 3)

	_, err = h.layouts.Layout(0)
	require.Error(t, err)
	_, err = h.layouts.Layout(metadata.LayoutID(99))
	require.Error(t, err)
}
