package framegraph

import (
	"testing"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/transient"
)

func TestDefaultCompileOptions(t *testing.T) {
	o := DefaultCompileOptions()
	if !o.ConnectByDeclarationOrder {
		t.Error("ConnectByDeclarationOrder should default to true")
	}
	if !o.OptimizeConnections {
		t.Error("OptimizeConnections should default to true")
	}
	if o.PreferGlobalBarrier || o.InitialGlobalBarrier {
		t.Error("global barrier options should default to false")
	}
	if o.Workers != 0 {
		t.Errorf("Workers = %d, want 0", o.Workers)
	}
}

func TestExecuterOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      []ExecuterOption
		wantPool  bool
		wantBlock uint64
		wantOpts  CompileOptions
	}{
		{
			name:      "defaults",
			wantPool:  true,
			wantBlock: transient.DefaultBlockSizeHint,
			wantOpts:  DefaultCompileOptions(),
		},
		{
			name:      "no transient pool",
			opts:      []ExecuterOption{WithTransientPool(false)},
			wantBlock: transient.DefaultBlockSizeHint,
			wantOpts:  DefaultCompileOptions(),
		},
		{
			name:      "block size hint",
			opts:      []ExecuterOption{WithBlockSizeHint(64 << 20)},
			wantPool:  true,
			wantBlock: 64 << 20,
			wantOpts:  DefaultCompileOptions(),
		},
		{
			name:      "zero block size hint keeps default",
			opts:      []ExecuterOption{WithBlockSizeHint(0)},
			wantPool:  true,
			wantBlock: transient.DefaultBlockSizeHint,
			wantOpts:  DefaultCompileOptions(),
		},
		{
			name: "compile options",
			opts: []ExecuterOption{
				WithCompileOptions(CompileOptions{PreferGlobalBarrier: true, Workers: 4}),
			},
			wantPool:  true,
			wantBlock: transient.DefaultBlockSizeHint,
			wantOpts:  CompileOptions{PreferGlobalBarrier: true, Workers: 4},
		},
		{
			name: "later option wins",
			opts: []ExecuterOption{
				WithTransientPool(false),
				WithTransientPool(true),
				WithBlockSizeHint(1 << 20),
				WithBlockSizeHint(2 << 20),
			},
			wantPool:  true,
			wantBlock: 2 << 20,
			wantOpts:  DefaultCompileOptions(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ex := newTestExecuter(t, gpucore.Capabilities{}, tt.opts...)
			if got := ex.Pool() != nil; got != tt.wantPool {
				t.Errorf("Pool() != nil = %v, want %v", got, tt.wantPool)
			}
			if ex.opts.blockSizeHint != tt.wantBlock {
				t.Errorf("blockSizeHint = %d, want %d", ex.opts.blockSizeHint, tt.wantBlock)
			}
			if ex.opts.compile != tt.wantOpts {
				t.Errorf("compile options = %+v, want %+v", ex.opts.compile, tt.wantOpts)
			}
			if got := ex.workers != nil; got != (tt.wantOpts.Workers > 1) {
				t.Errorf("worker pool created = %v, want %v", got, tt.wantOpts.Workers > 1)
			}
		})
	}
}
