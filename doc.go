// Package framegraph schedules one frame of GPU work as a graph of passes.
//
// # Overview
//
// A client declares the resources a frame touches and the passes that touch
// them. The compiler orders the passes, inserts the barriers every
// subresource needs, packs passes into sections (one command buffer and one
// submission each), and places internal resources in pooled transient
// memory. The executer records the sections through the pass callbacks,
// submits them, and writes the final GPU state of external resources back
// so the next frame starts from it.
//
// # Quick Start
//
//	ex := framegraph.NewExecuter(device)
//	defer ex.Close()
//
//	ex.NewFrame()
//	g := framegraph.NewGraph(queue)
//	hdr := g.CreateTexture("hdr", gpucore.TextureDesc{
//	    Format: gputypes.TextureFormatRGBA16Float, Width: 1920, Height: 1080,
//	    Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
//	})
//	back := g.RegisterSwapchainTexture(swapchain, acquired, rendered)
//
//	g.CreatePass("Scene").
//	    UseTexture(hdr, framegraph.ColorAttachment).
//	    SetCallback(drawScene)
//	g.CreatePass("Tonemap").
//	    UseTexture(hdr, framegraph.PSTexture).
//	    UseTexture(back, framegraph.ColorAttachment).
//	    SetCallback(tonemap)
//
//	if err := ex.Execute(ctx, g); err != nil {
//	    return err
//	}
//
// # Ordering
//
// Passes that touch the same buffer or texture subresource are ordered by
// declaration: a use that conflicts with the previous one (a write, or a
// read in another layout) runs after it. Readers of one layout may run in
// any order among themselves. Passes created between BeginUAVOverlap and
// EndUAVOverlap may access the same storage resources without barriers
// between them. Connect adds explicit edges. A cycle is reported as
// ErrCycle.
//
// # States
//
// External resources carry their last known state in a StatefulBuffer or
// StatefulTexture, tracked per mip level and array layer. States older than
// the queue's synchronized session are treated as idle. Internal resources
// start idle; when the transient pool makes one alias the memory of an
// earlier resource, its first barrier also orders the earlier accesses.
//
// # Errors
//
// Declaration errors are recorded on the graph and reported by Compile as
// a *BuildError whose kind matches one of the Err* sentinels with
// errors.Is. Nothing is recorded or submitted for a rejected graph, and a
// callback error aborts the frame before any submission.
//
// # Logging
//
// The package is silent by default. SetLogger enables structured logging
// through log/slog for framegraph and its sub-packages.
package framegraph
