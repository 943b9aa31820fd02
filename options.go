package framegraph

import "github.com/gogpu/framegraph/transient"

// CompileOptions tunes the compiler.
type CompileOptions struct {
	// ConnectByDeclarationOrder derives ordering edges from resource hazards
	// in pass declaration order. Without it only Connect edges order passes.
	ConnectByDeclarationOrder bool

	// OptimizeConnections lets consecutive readers of the same state run in
	// any order relative to each other. Without it every reader depends on
	// the previous one.
	OptimizeConnections bool

	// PreferGlobalBarrier folds buffer barriers and layout-preserving texture
	// barriers of a pass into one global barrier when that replaces at least
	// two barriers. Ignored unless the device reports
	// Capabilities.GlobalBarrier.
	PreferGlobalBarrier bool

	// InitialGlobalBarrier puts a full All -> All global barrier before the
	// first pass.
	InitialGlobalBarrier bool

	// Workers is the number of goroutines used for per-resource analysis.
	// Values below 2 analyze on the calling goroutine.
	Workers int
}

// DefaultCompileOptions returns the options used when none are given.
func DefaultCompileOptions() CompileOptions {
	return CompileOptions{
		ConnectByDeclarationOrder: true,
		OptimizeConnections:       true,
	}
}

// ExecuterOption configures an Executer during creation.
//
// Example:
//
//	ex := framegraph.NewExecuter(device,
//	    framegraph.WithBlockSizeHint(64<<20),
//	    framegraph.WithCompileOptions(opts))
type ExecuterOption func(*executerOptions)

// executerOptions holds optional configuration for Executer creation.
type executerOptions struct {
	compile       CompileOptions
	transientPool bool
	blockSizeHint uint64
}

// defaultExecuterOptions returns the default executer options.
func defaultExecuterOptions() executerOptions {
	return executerOptions{
		compile:       DefaultCompileOptions(),
		transientPool: true,
		blockSizeHint: transient.DefaultBlockSizeHint,
	}
}

// WithCompileOptions replaces the compile options.
func WithCompileOptions(o CompileOptions) ExecuterOption {
	return func(eo *executerOptions) {
		eo.compile = o
	}
}

// WithTransientPool enables or disables aliased placement of internal
// resources in pooled memory blocks. When disabled, every internal resource
// gets a dedicated backend allocation.
func WithTransientPool(enabled bool) ExecuterOption {
	return func(eo *executerOptions) {
		eo.transientPool = enabled
	}
}

// WithBlockSizeHint sets the size of newly created transient memory blocks.
// Zero keeps transient.DefaultBlockSizeHint.
func WithBlockSizeHint(size uint64) ExecuterOption {
	return func(eo *executerOptions) {
		if size > 0 {
			eo.blockSizeHint = size
		}
	}
}
