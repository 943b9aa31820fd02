package framegraph

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
)

func TestNopHandler(t *testing.T) {
	h := nopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("nopHandler.Enabled(%v) = true, want false", level)
		}
	}
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("nopHandler.Handle() = %v, want nil", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.String("key", "val")}).(nopHandler); !ok {
		t.Error("nopHandler.WithAttrs() did not return nopHandler")
	}
	if _, ok := h.WithGroup("group").(nopHandler); !ok {
		t.Error("nopHandler.WithGroup() did not return nopHandler")
	}
}

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger should not be enabled for %v", level)
		}
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)

	if Logger() != custom {
		t.Fatal("Logger() did not return the custom logger set via SetLogger")
	}

	// Compiling a graph logs its statistics at debug level.
	dev, ex := newTestExecuter(t, gpucore.Capabilities{})
	g := NewGraph(dev.Queue())
	tex := g.CreateTexture("Target", renderTarget(16, 16))
	g.CreatePass("Draw").UseTexture(tex, ColorAttachmentWriteOnly)
	mustCompile(t, ex, g)
	if !strings.Contains(buf.String(), "framegraph: compiled") {
		t.Errorf("expected compile statistics in log output, got: %q", buf.String())
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)

	l := Logger()
	if l == nil {
		t.Fatal("SetLogger(nil) should set nop logger, not nil")
	}
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should produce a disabled logger")
	}
}

func TestSetLoggerPropagatesToBackends(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var (
		mu  sync.Mutex
		got *slog.Logger
	)
	backend.OnSetLogger(func(l *slog.Logger) {
		mu.Lock()
		got = l
		mu.Unlock()
	})

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)

	mu.Lock()
	defer mu.Unlock()
	if got != custom {
		t.Error("SetLogger did not reach a backend registered with OnSetLogger")
	}
}

func TestLoggerConcurrentAccess(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var wg sync.WaitGroup
	const goroutines = 50
	for i := range goroutines {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if l := Logger(); l == nil {
				t.Error("Logger() returned nil during concurrent access")
			} else {
				l.Debug("concurrent read")
			}
		}()
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				SetLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
			} else {
				SetLogger(nil)
			}
		}()
	}
	wg.Wait()
}
