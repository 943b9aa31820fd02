package framegraph

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/parallel"
	"github.com/gogpu/framegraph/transient"
)

// Executer compiles graphs and runs them on a device. It owns the transient
// memory pool shared by every graph it executes.
//
// Executer is safe for concurrent use; graphs themselves are not.
type Executer struct {
	device  gpucore.Device
	pool    *transient.Pool
	workers *parallel.WorkerPool
	opts    executerOptions

	mu     sync.Mutex
	closed bool
}

// NewExecuter creates an executer for device.
func NewExecuter(device gpucore.Device, opts ...ExecuterOption) *Executer {
	o := defaultExecuterOptions()
	for _, opt := range opts {
		opt(&o)
	}
	e := &Executer{device: device, opts: o}
	if o.transientPool {
		e.pool = transient.NewPool(device, transient.PoolConfig{BlockSizeHint: o.blockSizeHint})
	}
	if o.compile.Workers > 1 {
		e.workers = parallel.NewWorkerPool(o.compile.Workers)
	}
	return e
}

// Pool returns the transient memory pool, or nil when the executer places
// every internal resource in a dedicated allocation.
func (e *Executer) Pool() *transient.Pool { return e.pool }

// NewFrame starts a host synchronization session of the transient pool.
// Memory blocks used by earlier frames become reusable, and blocks that
// stay unused are destroyed once the device reports the frame complete.
func (e *Executer) NewFrame() {
	if e.pool == nil {
		return
	}
	session := e.pool.StartHostSynchronizationSession()
	e.device.OnFrameComplete(func() {
		e.pool.CompleteHostSynchronizationSession(session)
	})
}

// Close destroys the transient memory blocks and stops the analysis
// workers. The caller must make sure the GPU no longer uses them.
func (e *Executer) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.pool != nil {
		e.pool.Close()
	}
	if e.workers != nil {
		e.workers.Close()
	}
}

// Compile turns g into a plan without recording or submitting anything.
// Errors in the graph are reported as a *BuildError.
func (e *Executer) Compile(g *Graph) (*Plan, error) {
	return newCompiler(g, e.device, e.pool, e.workers, e.opts.compile).compile()
}

// Execute compiles g and executes the plan.
func (e *Executer) Execute(ctx context.Context, g *Graph) error {
	plan, err := e.Compile(g)
	if err != nil {
		return err
	}
	return e.ExecutePlan(ctx, plan)
}

type recordedSection struct {
	cb      gpucore.CommandBuffer
	waits   []gpucore.SemaphoreOp
	signals []gpucore.SemaphoreOp
}

// ExecutePlan records every section of plan through the pass callbacks,
// submits them in order and writes the final resource states back.
//
// Every section is recorded before the first submission: if a callback
// fails, nothing is submitted and the plan is released. If a submission
// fails after earlier sections were submitted, the states of external
// resources those sections used are still written back; a subresource that
// was also used by an unsubmitted section is left in the undefined layout,
// so its contents must be regenerated.
func (e *Executer) ExecutePlan(ctx context.Context, plan *Plan) error {
	g := plan.graph
	if plan.executed || g.executed {
		return &BuildError{Kind: ErrGraphExecuted}
	}

	sems, err := e.createQueueSemaphores(plan)
	if err != nil {
		e.destroySemaphores(sems)
		plan.Release()
		return err
	}

	sections := make([]recordedSection, len(plan.Sections))
	discard := func() {
		for _, rs := range sections {
			if rs.cb != nil {
				rs.cb.Discard()
			}
		}
		e.destroySemaphores(sems)
		plan.Release()
	}

	for i := range plan.Sections {
		cb, err := e.recordSection(ctx, plan, i)
		if err != nil {
			discard()
			return err
		}
		sections[i].cb = cb
	}
	for _, key := range semaphoreOrder(sems) {
		sem := sems[key]
		producer, consumer := key[0], key[1]
		sections[producer].signals = append(sections[producer].signals,
			gpucore.SemaphoreOp{Semaphore: sem, Stages: gpucore.StageAll})
		for _, w := range plan.Sections[consumer].Waits {
			if w.Section == producer {
				sections[consumer].waits = append(sections[consumer].waits,
					gpucore.SemaphoreOp{Semaphore: sem, Stages: w.Stages})
			}
		}
	}

	submitted := 0
	fail := func(err error) error {
		for _, rs := range sections[submitted:] {
			rs.cb.Discard()
		}
		if submitted == 0 {
			e.destroySemaphores(sems)
			plan.Release()
			return err
		}
		plan.writeBack(submitted)
		e.releaseAfterFrame(plan, sems)
		return err
	}

	last := len(plan.Sections) - 1
	for i := range plan.Sections {
		s := &plan.Sections[i]
		info := gpucore.SubmitInfo{
			Wait:          s.WaitAcquire,
			Waits:         sections[i].waits,
			CommandBuffer: sections[i].cb,
			Signal:        s.SignalPresent,
			Signals:       sections[i].signals,
			Fence:         s.SignalFence,
		}
		if i == last && info.Fence == nil {
			info.Fence = plan.CompleteFence
		}
		if err := s.Queue.Submit(info); err != nil {
			return fail(errors.Wrapf(err, "framegraph: submit section %d", i))
		}
		submitted++
	}
	if plan.CompleteFence != nil && (last < 0 || plan.Sections[last].SignalFence != nil) {
		if err := g.queue.Submit(gpucore.SubmitInfo{Fence: plan.CompleteFence}); err != nil {
			return fail(errors.Wrap(err, "framegraph: submit complete fence"))
		}
	}

	plan.writeBack(len(plan.Sections))
	plan.executed = true
	g.executed = true
	e.releaseAfterFrame(plan, sems)

	slogger().Debug("framegraph: executed",
		"sections", len(plan.Sections),
		"barriers", plan.BarrierCount(),
		"semaphores", len(sems))
	return nil
}

func (e *Executer) recordSection(ctx context.Context, plan *Plan, i int) (gpucore.CommandBuffer, error) {
	s := &plan.Sections[i]
	cb, err := e.device.CreateCommandBuffer(s.Queue)
	if err != nil {
		return nil, errors.Wrapf(err, "framegraph: create command buffer for section %d", i)
	}
	if err := cb.Begin(); err != nil {
		cb.Discard()
		return nil, errors.Wrapf(err, "framegraph: begin command buffer for section %d", i)
	}

	var label *labelNode
	for j := range s.Passes {
		pp := &s.Passes[j]
		if pp.hasBarriers() {
			cb.ExecuteBarriers(pp.GlobalBarrier, pp.TextureBarriers, pp.BufferBarriers)
		}
		p := pp.Pass
		if p.callback == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			cb.Discard()
			return nil, err
		}
		transferLabels(cb, label, p.label)
		label = p.label
		pc := &PassContext{ctx: ctx, cb: cb, plan: plan, pass: p}
		if err := p.callback(pc); err != nil {
			cb.Discard()
			return nil, errors.Wrapf(err, "framegraph: pass %q", p.Path())
		}
	}
	transferLabels(cb, label, nil)
	if len(s.PostTextureBarriers) > 0 {
		cb.ExecuteBarriers(nil, s.PostTextureBarriers, nil)
	}
	if err := cb.End(); err != nil {
		cb.Discard()
		return nil, errors.Wrapf(err, "framegraph: end command buffer for section %d", i)
	}
	return cb, nil
}

// createQueueSemaphores creates one semaphore per pair of sections linked
// by a cross-queue dependency, keyed by {producer, consumer}.
func (e *Executer) createQueueSemaphores(plan *Plan) (map[[2]int]gpucore.Semaphore, error) {
	sems := make(map[[2]int]gpucore.Semaphore)
	for i := range plan.Sections {
		for _, w := range plan.Sections[i].Waits {
			key := [2]int{w.Section, i}
			if _, ok := sems[key]; ok {
				continue
			}
			sem, err := e.device.CreateSemaphore(fmt.Sprintf("framegraph section %d -> %d", w.Section, i))
			if err != nil {
				return sems, errors.Wrapf(err, "framegraph: create semaphore for sections %d -> %d", w.Section, i)
			}
			sems[key] = sem
		}
	}
	return sems, nil
}

func (e *Executer) destroySemaphores(sems map[[2]int]gpucore.Semaphore) {
	for _, s := range sems {
		e.device.DestroySemaphore(s)
	}
}

// semaphoreOrder returns the (producer, consumer) keys of sems sorted by
// producer, then consumer.
func semaphoreOrder(sems map[[2]int]gpucore.Semaphore) [][2]int {
	keys := slices.Collect(maps.Keys(sems))
	slices.SortFunc(keys, func(a, b [2]int) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})
	return keys
}

func (e *Executer) releaseAfterFrame(plan *Plan, sems map[[2]int]gpucore.Semaphore) {
	e.device.OnFrameComplete(func() {
		plan.Release()
		e.destroySemaphores(sems)
	})
}

// writeBack stores the final states of external resources, stamped with
// the session of the queue that last used them. Only the first submitted
// sections ran: resources whose uses all lie in them get their final state,
// resources used both before and after the failed submission get an
// undefined layout that waits on every earlier access.
func (p *Plan) writeBack(submitted int) {
	var partialQueue gpucore.Queue
	if submitted > 0 && submitted < len(p.Sections) {
		partialQueue = p.Sections[submitted-1].Queue
	}
	for i := range p.buffers {
		rec := &p.buffers[i]
		ext := rec.resource.external
		if ext == nil || !rec.used || rec.span.first >= submitted {
			continue
		}
		s, q := rec.final, rec.queue
		if rec.span.last >= submitted {
			s = gpucore.BufferState{Stages: gpucore.StageAll, Accesses: gpucore.AccessAll}
			q = partialQueue
		}
		s.Session = q.CurrentSession()
		ext.writeBack(s, q)
	}
	for i := range p.textures {
		rec := &p.textures[i]
		ext := rec.resource.external
		if ext == nil {
			continue
		}
		for idx, used := range rec.used.All() {
			span := rec.spans.Get(idx)
			if !used || span.first >= submitted {
				continue
			}
			s, q := rec.final.Get(idx), rec.queues.Get(idx)
			if span.last >= submitted {
				s = gpucore.TextureState{
					Layout:   gpucore.LayoutUndefined,
					Stages:   gpucore.StageAll,
					Accesses: gpucore.AccessAll,
				}
				q = partialQueue
			}
			s.Session = q.CurrentSession()
			ext.writeBack(idx.Mip, idx.Layer, s, q)
		}
	}
}
