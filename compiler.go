package framegraph

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/parallel"
	"github.com/gogpu/framegraph/subresource"
	"github.com/gogpu/framegraph/transient"
)

// user is one pass's use of a buffer or texture subresource. pass is a
// sorted index once users are collected and a declaration index before.
type user struct {
	pass int
	info gpucore.UseInfo
	uav  uavGroup
}

type compileSection struct {
	queue       gpucore.Queue
	passes      []int
	signalFence gpucore.Fence
	syncBefore  bool

	waitAcquire         bool
	waitAcquireStages   gpucore.PipelineStage
	signalPresent       bool
	signalPresentStages gpucore.PipelineStage

	waits map[int]gpucore.PipelineStage
	post  []gpucore.TextureBarrier
}

type resourceRef struct {
	texture bool
	index   int
}

type compiler struct {
	g       *Graph
	opts    CompileOptions
	caps    gpucore.Capabilities
	device  gpucore.Device
	pool    *transient.Pool
	workers *parallel.WorkerPool

	sorted      []*Pass
	sortedIndex []int

	bufferUsers  [][]user
	textureUsers []*subresource.Map[[]user]

	bufferStart  []gpucore.BufferState
	textureStart []*subresource.Map[gpucore.TextureState]
	startQueues  []*subresource.Map[gpucore.Queue]

	sections    []*compileSection
	passSection []int
	runStart    []int

	aliasPrevs map[resourceRef][]resourceRef
	aliasFloor map[resourceRef]int

	passes []PlannedPass
	plan   *Plan
}

func newCompiler(g *Graph, device gpucore.Device, pool *transient.Pool, workers *parallel.WorkerPool, opts CompileOptions) *compiler {
	return &compiler{
		g:          g,
		opts:       opts,
		caps:       device.Capabilities(),
		device:     device,
		pool:       pool,
		workers:    workers,
		aliasPrevs: make(map[resourceRef][]resourceRef),
		aliasFloor: make(map[resourceRef]int),
	}
}

func (c *compiler) forEach(n int, fn func(i int)) {
	if c.workers != nil && n > 1 {
		c.workers.ForEach(n, fn)
		return
	}
	for i := range n {
		fn(i)
	}
}

// compile runs every analysis step before the first backend call, so a
// rejected graph never touches the device.
func (c *compiler) compile() (*Plan, error) {
	g := c.g
	if g.executed {
		return nil, &BuildError{Kind: ErrGraphExecuted}
	}
	if g.err != nil {
		return nil, g.err
	}
	if g.queue == nil {
		return nil, buildErrorf(ErrInvalidGraph, "graph has no queue")
	}
	if g.uavDepth != 0 {
		return nil, buildErrorf(ErrInvalidGraph, "%d UAV overlap regions left open", g.uavDepth)
	}

	c.plan = &Plan{
		graph:         g,
		device:        c.device,
		CompleteFence: g.completeFence,
		buffers:       make([]bufferRecord, len(g.buffers)),
		textures:      make([]textureRecord, len(g.textures)),
	}

	if err := c.sortPasses(); err != nil {
		return nil, err
	}
	if err := c.collectUsers(); err != nil {
		return nil, err
	}
	c.loadStartStates()
	c.generateSections()
	c.generateSemaphores()
	c.computeFinalStates()

	if err := c.allocate(); err != nil {
		return nil, err
	}
	c.generateBarriers()
	c.fillSections()

	slogger().Debug("framegraph: compiled",
		"passes", len(c.sorted),
		"sections", len(c.plan.Sections),
		"barriers", c.plan.BarrierCount(),
		"aliases", len(c.aliasPrevs))
	return c.plan, nil
}

// hazardEdges returns the ordering edges implied by the uses of one buffer
// or texture subresource, in declaration order. Consecutive readers of one
// layout form a group, as do UAV-only users of one overlap group; every
// member of a group runs after every member of the previous group.
func hazardEdges(uses []user, optimize bool) [][2]int {
	var (
		edges     [][2]int
		prevUsers []int
		users     []int
		layout    gpucore.TextureLayout
		readOnly  bool
		group     uavGroup
	)
	for _, u := range uses {
		ro := u.info.Accesses.IsReadOnly()
		uavOnly := u.info.Accesses.IsUAVOnly()
		switch {
		case optimize && readOnly && ro && layout == u.info.Layout:
			users = append(users, u.pass)
		case u.uav.valid() && uavOnly && group == u.uav && layout == u.info.Layout:
			users = append(users, u.pass)
		default:
			prevUsers = users
			users = []int{u.pass}
			layout = u.info.Layout
			readOnly = ro
			group = 0
			if uavOnly {
				group = u.uav
			}
		}
		for _, prev := range prevUsers {
			edges = append(edges, [2]int{prev, u.pass})
		}
	}
	return edges
}

func (c *compiler) declarationChains() [][]user {
	g := c.g
	bufferChains := make([][]user, len(g.buffers))
	textureChains := make([]*subresource.Map[[]user], len(g.textures))
	for _, p := range g.passes {
		for _, u := range p.buffers {
			i := u.buffer.index
			bufferChains[i] = append(bufferChains[i], user{pass: p.index, info: u.info, uav: p.uav})
		}
		for _, u := range p.textures {
			t := u.texture
			if textureChains[t.index] == nil {
				textureChains[t.index] = subresource.New[[]user](t.desc.MipLevels, t.desc.ArraySize)
			}
			m := textureChains[t.index]
			for idx, info := range u.infos.All() {
				if info == nil {
					continue
				}
				slot := m.Ptr(idx.Mip, idx.Layer)
				*slot = append(*slot, user{pass: p.index, info: *info, uav: p.uav})
			}
		}
	}

	var chains [][]user
	for _, ch := range bufferChains {
		if len(ch) > 1 {
			chains = append(chains, ch)
		}
	}
	for _, m := range textureChains {
		if m == nil {
			continue
		}
		for _, ch := range m.All() {
			if len(ch) > 1 {
				chains = append(chains, ch)
			}
		}
	}
	return chains
}

// sortPasses orders passes topologically. Among passes that are ready at
// the same time the one declared first runs first.
func (c *compiler) sortPasses() error {
	passes := c.g.passes
	n := len(passes)
	prevs := make([]map[int]struct{}, n)
	succs := make([]map[int]struct{}, n)
	for i, p := range passes {
		prevs[i] = make(map[int]struct{}, len(p.prevs))
		succs[i] = make(map[int]struct{}, len(p.succs))
		for j := range p.prevs {
			prevs[i][j] = struct{}{}
		}
		for j := range p.succs {
			succs[i][j] = struct{}{}
		}
	}

	if c.opts.ConnectByDeclarationOrder {
		chains := c.declarationChains()
		results := make([][][2]int, len(chains))
		c.forEach(len(chains), func(i int) {
			results[i] = hazardEdges(chains[i], c.opts.OptimizeConnections)
		})
		for _, edges := range results {
			for _, e := range edges {
				succs[e[0]][e[1]] = struct{}{}
				prevs[e[1]][e[0]] = struct{}{}
			}
		}
	}

	pending := make([]int, n)
	ready := btree.NewOrderedG[int](8)
	for i := range n {
		pending[i] = len(prevs[i])
		if pending[i] == 0 {
			ready.ReplaceOrInsert(i)
		}
	}

	c.sorted = make([]*Pass, 0, n)
	c.sortedIndex = make([]int, n)
	for ready.Len() > 0 {
		i, _ := ready.DeleteMin()
		c.sortedIndex[i] = len(c.sorted)
		c.sorted = append(c.sorted, passes[i])
		for s := range succs[i] {
			pending[s]--
			if pending[s] == 0 {
				ready.ReplaceOrInsert(s)
			}
		}
	}
	if len(c.sorted) != n {
		var left []string
		for i, p := range passes {
			if pending[i] > 0 {
				left = append(left, p.name)
			}
		}
		return cycleError(left)
	}
	return nil
}

// collectUsers lists the users of every buffer and texture subresource in
// sorted order and checks read-only external resources.
func (c *compiler) collectUsers() error {
	g := c.g
	c.bufferUsers = make([][]user, len(g.buffers))
	c.textureUsers = make([]*subresource.Map[[]user], len(g.textures))

	for si, p := range c.sorted {
		for _, u := range p.buffers {
			b := u.buffer
			if b.readOnly && !u.info.Accesses.IsReadOnly() {
				return buildErrorf(ErrReadOnlyViolation,
					"pass %q writes read-only buffer %q (%s)", p.name, b.name, u.info.Accesses)
			}
			c.bufferUsers[b.index] = append(c.bufferUsers[b.index], user{
				pass: si,
				info: u.info,
				uav:  uavOf(p, u.info),
			})
		}
		for _, u := range p.textures {
			t := u.texture
			if c.textureUsers[t.index] == nil {
				c.textureUsers[t.index] = subresource.New[[]user](t.desc.MipLevels, t.desc.ArraySize)
			}
			m := c.textureUsers[t.index]
			for idx, info := range u.infos.All() {
				if info == nil {
					continue
				}
				if t.readOnly && (info.Layout != gpucore.LayoutShaderTexture || !info.Accesses.IsReadOnly()) {
					return buildErrorf(ErrReadOnlyViolation,
						"pass %q uses read-only texture %q (mip %d, layer %d) as %s",
						p.name, t.name, idx.Mip, idx.Layer, info.Layout)
				}
				slot := m.Ptr(idx.Mip, idx.Layer)
				*slot = append(*slot, user{pass: si, info: *info, uav: uavOf(p, *info)})
			}
		}
	}
	return nil
}

func uavOf(p *Pass, info gpucore.UseInfo) uavGroup {
	if info.Accesses.IsUAVOnly() {
		return p.uav
	}
	return 0
}

// loadStartStates reads the states of external resources. A state whose
// session the queue has already finished is idle: only its layout matters.
func (c *compiler) loadStartStates() {
	g := c.g
	c.bufferStart = make([]gpucore.BufferState, len(g.buffers))
	c.textureStart = make([]*subresource.Map[gpucore.TextureState], len(g.textures))
	c.startQueues = make([]*subresource.Map[gpucore.Queue], len(g.textures))

	for i, b := range g.buffers {
		if b.external == nil {
			continue
		}
		state, q := b.external.stateWithQueue()
		if q == nil {
			q = g.queue
		}
		if state.Session <= q.SynchronizedSession() {
			state = gpucore.BufferState{Session: gpucore.InitialSession}
		}
		c.bufferStart[i] = state
	}
	for i, t := range g.textures {
		if t.external == nil {
			continue
		}
		states, queues := t.external.snapshot()
		for idx, s := range states.All() {
			q := queues.Get(idx)
			if q == nil {
				q = g.queue
			}
			if s.Session <= q.SynchronizedSession() {
				states.Set(idx.Mip, idx.Layer, gpucore.TextureState{
					Session: gpucore.InitialSession,
					Layout:  s.Layout,
				})
			}
		}
		c.textureStart[i] = states
		c.startQueues[i] = queues
	}
}

// generateSections packs sorted passes into sections. A section ends after
// a pass that signals a fence, after the last user of the swapchain image,
// before a pass that asks for a queue sync, and where the queue changes.
func (c *compiler) generateSections() {
	swapchainLast := -1
	if users := c.swapchainUsers(); len(users) > 0 {
		swapchainLast = users[len(users)-1].pass
	}

	c.passSection = make([]int, len(c.sorted))
	c.runStart = make([]int, len(c.sorted))
	needNew := true
	syncNext := len(c.sorted) > 0 && c.sorted[0].syncBefore
	for i, p := range c.sorted {
		q := p.queueOr(c.g.queue)
		if len(c.sections) > 0 && c.sections[len(c.sections)-1].queue != q {
			needNew = true
		}
		if needNew {
			c.sections = append(c.sections, &compileSection{
				queue:      q,
				syncBefore: syncNext,
				waits:      make(map[int]gpucore.PipelineStage),
			})
		}
		sec := c.sections[len(c.sections)-1]
		sec.passes = append(sec.passes, i)
		c.passSection[i] = len(c.sections) - 1

		if i > 0 && c.sorted[i-1].queueOr(c.g.queue) == q {
			c.runStart[i] = c.runStart[i-1]
		} else {
			c.runStart[i] = i
		}

		sec.signalFence = p.signalFence
		needNew = p.signalFence != nil || i == swapchainLast
		syncNext = i+1 < len(c.sorted) && c.sorted[i+1].syncBefore
		needNew = needNew || syncNext
	}
}

func (c *compiler) swapchainUsers() []user {
	sw := c.g.swapchain
	if sw == nil || c.textureUsers[sw.index] == nil {
		return nil
	}
	return c.textureUsers[sw.index].At(0, 0)
}

func (c *compiler) sectionQueue(pass int) gpucore.Queue {
	return c.sections[c.passSection[pass]].queue
}

// generateSemaphores attaches the swapchain semaphores and the cross-queue
// dependencies between sections.
func (c *compiler) generateSemaphores() {
	if users := c.swapchainUsers(); len(users) > 0 {
		first := c.sections[c.passSection[users[0].pass]]
		first.waitAcquire = true
		first.waitAcquireStages |= users[0].info.Stages
		for j := 1; j < len(users) && dontNeedTextureBarrier(users[j].info, users[0].info); j++ {
			first.waitAcquireStages |= users[j].info.Stages
		}

		lastUser := users[len(users)-1]
		last := c.sections[c.passSection[lastUser.pass]]
		last.signalPresent = true
		for j := len(users) - 1; j >= 0 && dontNeedTextureBarrier(users[j].info, lastUser.info); j-- {
			last.signalPresentStages |= users[j].info.Stages
		}
	}

	depend := func(from, to int, stages gpucore.PipelineStage) {
		a, b := c.passSection[from], c.passSection[to]
		if a == b || c.sections[a].queue == c.sections[b].queue {
			return
		}
		c.sections[b].waits[a] |= stages
	}
	chain := func(users []user) {
		for j := 1; j < len(users); j++ {
			depend(users[j-1].pass, users[j].pass, users[j].info.Stages)
		}
	}
	for _, users := range c.bufferUsers {
		chain(users)
	}
	for _, m := range c.textureUsers {
		if m == nil {
			continue
		}
		for _, users := range m.All() {
			chain(users)
		}
	}
	for si, p := range c.sorted {
		for prev := range p.prevs {
			depend(c.sortedIndex[prev], si, gpucore.StageAll)
		}
	}
}

// finalUsage merges the last user's usage with every earlier user that
// needs no barrier against it.
func finalUsage(users []user, dontNeed func(a, b gpucore.UseInfo) bool) gpucore.UseInfo {
	last := users[len(users)-1].info
	out := last
	for j := len(users) - 1; j >= 0 && dontNeed(users[j].info, last); j-- {
		out = out.Or(users[j].info)
	}
	return out
}

// computeFinalStates fills the plan's write-back records. Unused external
// subresources keep their state.
func (c *compiler) computeFinalStates() {
	g := c.g
	c.forEach(len(g.buffers), func(i int) {
		rec := &c.plan.buffers[i]
		rec.resource = g.buffers[i]
		users := c.bufferUsers[i]
		if len(users) == 0 {
			rec.final = c.bufferStart[i]
			return
		}
		u := finalUsage(users, dontNeedBufferBarrier)
		rec.used = true
		rec.final = gpucore.BufferState{Stages: u.Stages, Accesses: u.Accesses}
		rec.queue = c.sectionQueue(users[len(users)-1].pass)
		rec.span = c.span(users)
	})
	c.forEach(len(g.textures), func(i int) {
		t := g.textures[i]
		rec := &c.plan.textures[i]
		rec.resource = t
		mips, layers := t.desc.MipLevels, t.desc.ArraySize
		rec.used = subresource.New[bool](mips, layers)
		rec.queues = subresource.New[gpucore.Queue](mips, layers)
		rec.spans = subresource.New[sectionSpan](mips, layers)
		if c.textureStart[i] != nil {
			rec.final = c.textureStart[i].Clone()
		} else {
			rec.final = subresource.New[gpucore.TextureState](mips, layers)
		}
		m := c.textureUsers[i]
		if m == nil {
			return
		}
		for idx, users := range m.All() {
			if len(users) == 0 {
				continue
			}
			u := finalUsage(users, dontNeedTextureBarrier)
			rec.used.Set(idx.Mip, idx.Layer, true)
			rec.final.Set(idx.Mip, idx.Layer, gpucore.TextureState{
				Layout:   u.Layout,
				Stages:   u.Stages,
				Accesses: u.Accesses,
			})
			rec.queues.Set(idx.Mip, idx.Layer, c.sectionQueue(users[len(users)-1].pass))
			rec.spans.Set(idx.Mip, idx.Layer, c.span(users))
		}
	})
}

func (c *compiler) span(users []user) sectionSpan {
	return sectionSpan{
		first: c.passSection[users[0].pass],
		last:  c.passSection[users[len(users)-1].pass],
	}
}

// dontNeedBufferBarrier reports whether two uses of a buffer may run
// without a barrier between them.
func dontNeedBufferBarrier(a, b gpucore.UseInfo) bool {
	return a.Accesses.IsReadOnly() && b.Accesses.IsReadOnly()
}

// dontNeedTextureBarrier reports whether two uses of a texture subresource
// may run without a barrier between them. Render target accesses in one
// layout are ordered by the output merger.
func dontNeedTextureBarrier(a, b gpucore.UseInfo) bool {
	if a.Layout != b.Layout {
		return false
	}
	if a.Accesses.Within(gpucore.RenderTargetAccesses) && b.Accesses.Within(gpucore.RenderTargetAccesses) {
		return true
	}
	return a.Accesses.IsReadOnly() && b.Accesses.IsReadOnly()
}

func (c *compiler) allocate() error {
	g := c.g
	var (
		decls  []transient.Decl
		owners []resourceRef
	)
	for i, b := range g.buffers {
		rec := &c.plan.buffers[i]
		if b.external != nil {
			rec.buffer = b.external.Buffer()
			continue
		}
		users := c.bufferUsers[i]
		if len(users) == 0 {
			continue
		}
		decls = append(decls, transient.BufferDecl(b.desc, b.name, users[0].pass, users[len(users)-1].pass))
		owners = append(owners, resourceRef{index: i})
	}
	for i, t := range g.textures {
		rec := &c.plan.textures[i]
		if t.external != nil {
			rec.texture = t.external.Texture()
			continue
		}
		m := c.textureUsers[i]
		if m == nil {
			continue
		}
		begin, end := -1, -1
		for _, users := range m.All() {
			if len(users) == 0 {
				continue
			}
			if begin < 0 || users[0].pass < begin {
				begin = users[0].pass
			}
			end = max(end, users[len(users)-1].pass)
		}
		if begin < 0 {
			continue
		}
		decls = append(decls, transient.TextureDecl(t.desc, t.name, begin, end))
		owners = append(owners, resourceRef{texture: true, index: i})
	}
	if len(decls) == 0 {
		return nil
	}

	if c.pool == nil {
		return c.allocateDedicated(decls, owners)
	}

	alloc, err := c.pool.Allocate(decls)
	if err != nil {
		return errors.Wrap(err, "framegraph: allocate transient resources")
	}
	c.plan.allocation = alloc
	for i, pl := range alloc.Placements {
		if o := owners[i]; o.texture {
			c.plan.textures[o.index].texture = pl.Texture
		} else {
			c.plan.buffers[o.index].buffer = pl.Buffer
		}
	}
	for _, a := range alloc.Aliases {
		prev, next := owners[a.Prev], owners[a.Next]
		end, begin := decls[a.Prev].EndPass, decls[a.Next].BeginPass
		if c.sectionQueue(end) != c.sectionQueue(begin) {
			// The memory changes queues: the section of the first user waits
			// for the section of the last user, and the barrier starts idle.
			sec := c.sections[c.passSection[begin]]
			sec.waits[c.passSection[end]] |= c.firstUseStages(next)
			if _, ok := c.aliasPrevs[next]; !ok {
				c.aliasPrevs[next] = nil
			}
			continue
		}
		c.aliasPrevs[next] = append(c.aliasPrevs[next], prev)
		c.aliasFloor[next] = max(c.aliasFloor[next], end+1)
	}
	return nil
}

// firstUseStages returns the stages of the first users of r, or StageAll
// when they name none.
func (c *compiler) firstUseStages(r resourceRef) gpucore.PipelineStage {
	var stages gpucore.PipelineStage
	if !r.texture {
		stages = c.bufferUsers[r.index][0].info.Stages
	} else {
		for _, users := range c.textureUsers[r.index].All() {
			if len(users) > 0 {
				stages |= users[0].info.Stages
			}
		}
	}
	if stages == gpucore.StageNone {
		return gpucore.StageAll
	}
	return stages
}

func (c *compiler) allocateDedicated(decls []transient.Decl, owners []resourceRef) error {
	for i, d := range decls {
		o := owners[i]
		if d.Buffer != nil {
			buf, err := c.device.CreateBuffer(*d.Buffer, d.Label)
			if err != nil {
				c.plan.Release()
				return errors.Wrapf(err, "framegraph: create buffer %q", d.Label)
			}
			c.plan.buffers[o.index].buffer = buf
			c.plan.dedicatedBuffers = append(c.plan.dedicatedBuffers, buf)
			continue
		}
		tex, err := c.device.CreateTexture(*d.Texture, d.Label)
		if err != nil {
			c.plan.Release()
			return errors.Wrapf(err, "framegraph: create texture %q", d.Label)
		}
		c.plan.textures[o.index].texture = tex
		c.plan.dedicatedTextures = append(c.plan.dedicatedTextures, tex)
	}
	return nil
}

// aliasedState ORs the final stages and accesses of every resource that
// used the memory of r before it.
func (c *compiler) aliasedState(r resourceRef) (gpucore.PipelineStage, gpucore.ResourceAccess) {
	var (
		stages   gpucore.PipelineStage
		accesses gpucore.ResourceAccess
	)
	for _, prev := range c.aliasPrevs[r] {
		if !prev.texture {
			f := c.plan.buffers[prev.index].final
			stages |= f.Stages
			accesses |= f.Accesses
			continue
		}
		rec := &c.plan.textures[prev.index]
		for idx, f := range rec.final.All() {
			if rec.used.Get(idx) {
				stages |= f.Stages
				accesses |= f.Accesses
			}
		}
	}
	return stages, accesses
}

func sortedWaits(waits map[int]gpucore.PipelineStage) []QueueWait {
	out := make([]QueueWait, 0, len(waits))
	for s, stages := range waits {
		out = append(out, QueueWait{Section: s, Stages: stages})
	}
	slices.SortFunc(out, func(a, b QueueWait) int { return a.Section - b.Section })
	return out
}
