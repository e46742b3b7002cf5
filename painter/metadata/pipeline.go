package metadata

import "github.com/spaghettifunk/fresco/painter/gpu"

type PassKind uint8

const (
	PassKindGraphics PassKind = iota
	PassKindCompute
)

func (k PassKind) String() string {
	switch k {
	case PassKindGraphics:
		return "graphics"
	case PassKindCompute:
		return "compute"
	default:
		return "pass"
	}
}

// PipelineID identifies one pipeline registration. The zero value is
// unassigned.
type PipelineID uint32

// PipelineKey is the cache identity of one built pipeline. Two keys are
// equal iff they name the same shader at the same reload generation with
// the same interned layout, pass kind and color target format. A bumped
// generation therefore misses the cache instead of erroring; a surface
// format change misses instead of serving a stale build.
type PipelineKey struct {
	Shader     string
	Generation uint64
	Layout     LayoutID
	Kind       PassKind
	Target     gpu.TextureFormat
}

// PipelineConfig registers one pipeline: which shader renders it, the
// binding set it expects and, for graphics, the vertex layout and target
// parameters. Entry points default to vs_main/fs_main/main when empty.
// A zero TargetFormat means "the surface format".
type PipelineConfig struct {
	Name          string
	Kind          PassKind
	Shader        string
	Bindings      BindingSetDescriptor
	VertexLayout  []gpu.VertexFormat
	VertexEntry   string
	FragmentEntry string
	ComputeEntry  string
	TargetFormat  gpu.TextureFormat
	DepthTest     bool
}
