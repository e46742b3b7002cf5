package metadata

import "github.com/spaghettifunk/fresco/painter/gpu"

// Draw is one draw invocation inside a graphics pass. Vertices and Indices
// are optional buffer handles; a shader generating its geometry leaves them
// nil. A zero InstanceCount draws one instance.
type Draw struct {
	Pipeline      PipelineID
	Bindings      []ResourceBinding
	Vertices      ResourceHandle
	Indices       ResourceHandle
	VertexCount   uint32
	IndexCount    uint32
	InstanceCount uint32
}

// Dispatch is one compute invocation inside a compute pass.
type Dispatch struct {
	Pipeline PipelineID
	Bindings []ResourceBinding
	GroupsX  uint32
	GroupsY  uint32
	GroupsZ  uint32
}

// Pass is one render or compute pass of a frame. Passes execute in the
// order the caller lists them; a later pass may sample a texture an earlier
// pass rendered into. A nil Target paints the acquired surface image; a
// texture handle paints offscreen. A nil ClearColor loads the previous
// target contents.
type Pass struct {
	Label      string
	Kind       PassKind
	Target     ResourceHandle
	ClearColor *gpu.Color
	Draws      []Draw
	Dispatches []Dispatch
}
