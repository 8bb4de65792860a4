package orchestrator

import (
	"errors"
	"fmt"

	"github.com/sells-group/precon-cli/internal/model"
)

// ErrNoDocuments rejects a run invoked with zero input documents, before
// any backend call is made.
var ErrNoDocuments = errors.New("orchestrator: no input documents")

// DependencyError reports a pass whose prerequisite passes have no result
// in this run. A caller configuration error; never retried.
type DependencyError struct {
	Pass    int
	Missing []int
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("orchestrator: pass %d depends on passes %v which have no result", e.Pass, e.Missing)
}

// UnknownPurposeError reports a pass config naming a purpose the executor
// does not implement.
type UnknownPurposeError struct {
	Pass    int
	Purpose model.PassPurpose
}

func (e *UnknownPurposeError) Error() string {
	return fmt.Sprintf("orchestrator: pass %d names unknown purpose %q", e.Pass, e.Purpose)
}

// PassError wraps a backend failure with the originating pass so a failed
// run reports which pass failed and why.
type PassError struct {
	Pass    int
	Backend string
	Err     error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("orchestrator: pass %d (%s) failed: %v", e.Pass, e.Backend, e.Err)
}

func (e *PassError) Unwrap() error {
	return e.Err
}
