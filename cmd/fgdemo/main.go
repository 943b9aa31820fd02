// Command fgdemo builds a deferred shading frame graph, prints its execution
// plan and runs it for a few frames.
//
// Usage:
//
//	fgdemo [-backend recording|wgpu] [-hal vulkan|noop] [-frames n] [-async] [-v]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/backend/wgpu"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/hostsync"
	"github.com/gogpu/framegraph/recording"
)

// device is what the demo needs beyond gpucore.Device. Both the recording
// and the wgpu device provide it.
type device interface {
	gpucore.Device
	Synchronizer() *hostsync.Synchronizer
}

func main() {
	var (
		backendName = flag.String("backend", backend.BackendRecording, "device backend (recording, wgpu)")
		halName     = flag.String("hal", "vulkan", "hal backend for -backend wgpu (vulkan, noop)")
		width       = flag.Uint("width", 1280, "back buffer width")
		height      = flag.Uint("height", 720, "back buffer height")
		frames      = flag.Int("frames", 3, "frames to execute")
		async       = flag.Bool("async", false, "run compute passes on a separate queue")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	dev, graphics, compute, err := openDevice(*backendName, *halName)
	if err != nil {
		log.Fatalf("fgdemo: %v", err)
	}
	if !*async {
		compute = graphics
	}

	ex := framegraph.NewExecuter(dev)
	defer ex.Close()

	back, acquire, present, err := createSwapchain(dev, uint32(*width), uint32(*height))
	if err != nil {
		log.Fatalf("fgdemo: %v", err)
	}
	defer func() {
		dev.DestroyTexture(back.Texture())
		dev.DestroySemaphore(acquire)
		dev.DestroySemaphore(present)
	}()

	ctx := context.Background()
	sync := dev.Synchronizer()
	if err := sync.BeginRenderLoop(0); err != nil {
		log.Fatalf("fgdemo: %v", err)
	}
	for frame := 0; frame < *frames; frame++ {
		if err := sync.WaitForOldFrame(ctx); err != nil {
			log.Fatalf("fgdemo: frame %d: %v", frame, err)
		}
		if err := sync.BeginNewFrame(); err != nil {
			log.Fatalf("fgdemo: frame %d: %v", frame, err)
		}
		ex.NewFrame()

		g := buildFrame(graphics, compute, back, acquire, present, uint32(*width), uint32(*height))
		g.SetCompleteFence(sync.FrameFence())
		plan, err := ex.Compile(g)
		if err != nil {
			log.Fatalf("fgdemo: frame %d: %v", frame, err)
		}
		if frame == 0 {
			fmt.Print(plan)
		}
		if err := ex.ExecutePlan(ctx, plan); err != nil {
			log.Fatalf("fgdemo: frame %d: %v", frame, err)
		}
	}
	if err := sync.EndRenderLoop(); err != nil {
		log.Fatalf("fgdemo: %v", err)
	}
	log.Printf("fgdemo: executed %d frames on %s", *frames, *backendName)
}

func openDevice(name, halName string) (device, gpucore.Queue, gpucore.Queue, error) {
	switch name {
	case backend.BackendWGPU:
		variant := gputypes.BackendVulkan
		if halName == "noop" {
			variant = gputypes.BackendEmpty
		}
		d, err := wgpu.Open(wgpu.Config{Label: "fgdemo", Backends: []gputypes.Backend{variant}})
		if err != nil {
			return nil, nil, nil, err
		}
		return d, d.Queue(), d.NewQueue(gpucore.QueueCompute), nil
	case backend.BackendRecording:
		d := recording.NewDevice(recording.Config{
			Capabilities: gpucore.Capabilities{AvailableVisible: true},
		})
		return d, d.Queue(), d.NewQueue(gpucore.QueueCompute), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown backend %q (available: %v)", name, backend.Available())
	}
}

func createSwapchain(dev gpucore.Device, w, h uint32) (*framegraph.StatefulTexture, gpucore.Semaphore, gpucore.Semaphore, error) {
	tex, err := dev.CreateTexture(gpucore.TextureDesc{
		Format: gputypes.TextureFormatBGRA8Unorm,
		Width:  w,
		Height: h,
		Usage:  gputypes.TextureUsageRenderAttachment,
	}, "BackBuffer")
	if err != nil {
		return nil, nil, nil, err
	}
	acquire, err := dev.CreateSemaphore("acquire")
	if err != nil {
		return nil, nil, nil, err
	}
	present, err := dev.CreateSemaphore("present")
	if err != nil {
		return nil, nil, nil, err
	}
	return framegraph.NewStatefulTexture(tex), acquire, present, nil
}

// buildFrame declares a deferred shading frame: shadow and G-buffer
// rendering, light culling and ambient occlusion in compute, lighting and
// tonemapping into the back buffer.
func buildFrame(graphics, compute gpucore.Queue, back *framegraph.StatefulTexture, acquire, present gpucore.Semaphore, w, h uint32) *framegraph.Graph {
	g := framegraph.NewGraph(graphics)

	target := func(format gputypes.TextureFormat, w, h uint32) gpucore.TextureDesc {
		return gpucore.TextureDesc{
			Format: format, Width: w, Height: h,
			Usage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		}
	}
	shadow := g.CreateTexture("ShadowMap", target(gputypes.TextureFormatDepth32Float, 2048, 2048))
	albedo := g.CreateTexture("Albedo", target(gputypes.TextureFormatRGBA8Unorm, w, h))
	normals := g.CreateTexture("Normals", target(gputypes.TextureFormatRGBA16Float, w, h))
	depth := g.CreateTexture("Depth", target(gputypes.TextureFormatDepth32Float, w, h))
	hdr := g.CreateTexture("HDR", target(gputypes.TextureFormatRGBA16Float, w, h))
	ao := g.CreateTexture("AO", gpucore.TextureDesc{
		Format: gputypes.TextureFormatR8Unorm, Width: w / 2, Height: h / 2,
		Usage: gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding,
	})
	lights := g.CreateStructuredBuffer("LightList", 1024, 32, gputypes.BufferUsageStorage)
	backBuffer := g.RegisterSwapchainTexture(back, acquire, present)

	g.PushPassGroup("Shadows")
	g.CreatePass("ShadowDepth").UseTexture(shadow, framegraph.DepthStencilAttachment).SetCallback(draw)
	g.PopPassGroup()

	g.PushPassGroup("GBuffer")
	g.CreatePass("Geometry").
		UseTexture(albedo, framegraph.ColorAttachmentWriteOnly).
		UseTexture(normals, framegraph.ColorAttachmentWriteOnly).
		UseTexture(depth, framegraph.DepthStencilAttachment).
		SetCallback(draw)
	g.PopPassGroup()

	g.CreatePass("LightCull").
		SetQueue(compute).
		UseTexture(depth, framegraph.CSTexture).
		UseBuffer(lights, framegraph.CSRWStructuredBufferWriteOnly).
		SetCallback(draw)
	g.CreatePass("SSAO").
		SetQueue(compute).
		UseTexture(depth, framegraph.CSTexture).
		UseTexture(normals, framegraph.CSTexture).
		UseTexture(ao, framegraph.CSRWTextureWriteOnly).
		SetCallback(draw)

	g.CreatePass("Lighting").
		UseTexture(albedo, framegraph.PSTexture).
		UseTexture(normals, framegraph.PSTexture).
		UseTexture(ao, framegraph.PSTexture).
		UseTexture(shadow, framegraph.PSTexture).
		UseBuffer(lights, gpucore.UseInfo{
			Stages:   gpucore.StageFragmentShader,
			Accesses: gpucore.AccessStructuredBufferRead,
		}).
		UseTexture(hdr, framegraph.ColorAttachmentWriteOnly).
		SetCallback(draw)
	g.CreatePass("Tonemap").
		UseTexture(hdr, framegraph.PSTexture).
		UseTexture(backBuffer, framegraph.ColorAttachmentWriteOnly).
		SetCallback(draw)
	return g
}

func draw(pc *framegraph.PassContext) error {
	framegraph.Logger().Debug("fgdemo: record", "pass", pc.Pass().Path())
	return nil
}
