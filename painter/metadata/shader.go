package metadata

import "time"

// ShaderSource tracks the reload state of one registered shader identity.
// Generation increases monotonically on every accepted invalidation;
// LastChange orders invalidations so duplicate or out-of-order watch events
// collapse into no-ops.
type ShaderSource struct {
	Name       string
	Generation uint64
	LastChange time.Time
}
