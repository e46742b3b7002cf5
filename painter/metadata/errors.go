package metadata

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStaleHandle means a handle's generation no longer matches its
	// table slot: the resource was destroyed, possibly replaced.
	ErrStaleHandle = errors.New("stale resource handle")
	// ErrSizeMismatch means an update payload does not fit the resource's
	// allocated capacity. Resources are never resized implicitly.
	ErrSizeMismatch = errors.New("update exceeds resource capacity")
)

// CompileError reports one failed pipeline build. Diagnostic carries the
// compiler output verbatim. The build that failed is memoized, so the same
// generation is reported once, not every frame.
type CompileError struct {
	Shader     string
	Generation uint64
	Diagnostic string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("shader %q generation %d failed to compile: %s", e.Shader, e.Generation, e.Diagnostic)
}

// PassError reports the failure of one pass within a frame. Index is the
// position in the submitted pass list.
type PassError struct {
	Index int
	Label string
	Err   error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("pass %d (%s): %v", e.Index, e.Label, e.Err)
}

func (e *PassError) Unwrap() error {
	return e.Err
}

// FrameError aggregates everything that went wrong in one frame. When
// Abandoned is true no commands were submitted or presented; otherwise the
// frame completed with last-good pipelines and Passes carries recoverable
// diagnostics (typically CompileErrors) the caller should log.
type FrameError struct {
	Frame     uint64
	Abandoned bool
	Passes    []*PassError
}

func (e *FrameError) Error() string {
	var sb strings.Builder
	if e.Abandoned {
		fmt.Fprintf(&sb, "frame %d abandoned", e.Frame)
	} else {
		fmt.Fprintf(&sb, "frame %d submitted with diagnostics", e.Frame)
	}
	for _, pe := range e.Passes {
		sb.WriteString("; ")
		sb.WriteString(pe.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual pass errors to errors.Is and errors.As.
func (e *FrameError) Unwrap() []error {
	errs := make([]error, len(e.Passes))
	for i, pe := range e.Passes {
		errs[i] = pe
	}
	return errs
}
