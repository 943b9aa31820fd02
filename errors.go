package framegraph

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Build error kinds. Match them with errors.Is on the error returned by
// Compile or Execute.
var (
	// ErrInvalidGraph reports a malformed declaration, such as a resource
	// registered twice with different access rights.
	ErrInvalidGraph = errors.New("framegraph: invalid graph")

	// ErrCycle reports that explicit and hazard edges form a cycle.
	ErrCycle = errors.New("framegraph: cycle in pass dependencies")

	// ErrConflictingUsage reports two declarations of one subresource in one
	// pass that request different layouts.
	ErrConflictingUsage = errors.New("framegraph: conflicting usage")

	// ErrUndeclaredResource reports a resource used without being declared,
	// either by a pass of another graph or from a pass callback.
	ErrUndeclaredResource = errors.New("framegraph: undeclared resource")

	// ErrReadOnlyViolation reports a write to a read-only external buffer or
	// a read-only texture used outside the ShaderTexture layout.
	ErrReadOnlyViolation = errors.New("framegraph: read-only violation")

	// ErrGraphExecuted reports a second Execute of the same graph.
	ErrGraphExecuted = errors.New("framegraph: graph already executed")
)

// BuildError is a graph error detected before any backend call.
type BuildError struct {
	Kind error
	Msg  string
}

func (e *BuildError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *BuildError) Unwrap() error { return e.Kind }

func buildErrorf(kind error, format string, args ...any) error {
	return &BuildError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(passes []string) error {
	msg := "unsorted passes"
	if len(passes) > 0 {
		msg = "passes left unsorted: " + strings.Join(passes, ", ")
	}
	return &BuildError{Kind: ErrCycle, Msg: msg}
}
