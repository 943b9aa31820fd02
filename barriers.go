package framegraph

import (
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/subresource"
)

// userGroup is a run of consecutive users that share one barrier.
type userGroup struct {
	first, last int
	info        gpucore.UseInfo
}

// groupUsers splits users into runs that need no barriers between them.
func groupUsers(users []user, canMerge func(a, b user) bool) []userGroup {
	var groups []userGroup
	for i := 0; i < len(users); {
		g := userGroup{first: users[i].pass, last: users[i].pass, info: users[i].info}
		j := i + 1
		for ; j < len(users) && canMerge(users[i], users[j]); j++ {
			g.last = users[j].pass
			g.info = g.info.Or(users[j].info)
		}
		groups = append(groups, g)
		i = j
	}
	return groups
}

func canMergeBuffer(a, b user) bool {
	return dontNeedBufferBarrier(a.info, b.info) || (a.uav.valid() && a.uav == b.uav)
}

func canMergeTexture(a, b user) bool {
	if a.info.Layout != b.info.Layout {
		return false
	}
	return dontNeedTextureBarrier(a.info, b.info) || (a.uav.valid() && a.uav == b.uav)
}

func idle(stages gpucore.PipelineStage, accesses gpucore.ResourceAccess) bool {
	return stages == gpucore.StageNone && accesses == gpucore.AccessNone
}

// barrierPass returns the sorted pass a barrier in front of pass user is
// recorded at. The latest pass in [floor, user) that already has barriers
// is preferred, so barriers batch.
func (c *compiler) barrierPass(floor, userPass int) int {
	floor = max(floor, c.runStart[userPass])
	for p := userPass - 1; p >= floor; p-- {
		if c.passes[p].hasBarriers() {
			return p
		}
	}
	return userPass
}

func (c *compiler) generateBarriers() {
	c.passes = make([]PlannedPass, len(c.sorted))
	for i, p := range c.sorted {
		c.passes[i].Pass = p
	}
	for i := range c.g.buffers {
		c.bufferBarriers(i)
	}
	for i := range c.g.textures {
		c.textureBarriers(i)
	}
	c.unusedSwapchain()
	for i := range c.passes {
		c.passes[i].TextureBarriers = collapseTextureBarriers(c.passes[i].TextureBarriers)
	}
}

func (c *compiler) bufferBarriers(i int) {
	users := c.bufferUsers[i]
	if len(users) == 0 {
		return
	}
	ref := resourceRef{index: i}
	buf := c.plan.buffers[i].buffer

	var (
		stages   gpucore.PipelineStage
		accesses gpucore.ResourceAccess
	)
	_, aliased := c.aliasPrevs[ref]
	if aliased {
		stages, accesses = c.aliasedState(ref)
	} else {
		start := c.bufferStart[i]
		stages, accesses = start.Stages, start.Accesses
	}
	last := gpucore.UseInfo{Stages: stages, Accesses: accesses}
	floor := c.aliasFloor[ref]

	for gi, g := range groupUsers(users, canMergeBuffer) {
		forced := gi == 0 && aliased
		switch {
		case idle(last.Stages, last.Accesses):
			last = g.info
		case !forced && dontNeedBufferBarrier(last, g.info):
			last = last.Or(g.info)
		default:
			at := c.barrierPass(floor, g.first)
			c.passes[at].BufferBarriers = append(c.passes[at].BufferBarriers, gpucore.BufferBarrier{
				Buffer:         buf,
				BeforeStages:   last.Stages,
				BeforeAccesses: last.Accesses,
				AfterStages:    g.info.Stages,
				AfterAccesses:  g.info.Accesses,
			})
			last = g.info
		}
		floor = g.last + 1
	}
}

func (c *compiler) textureBarriers(i int) {
	m := c.textureUsers[i]
	if m == nil {
		return
	}
	t := c.g.textures[i]
	ref := resourceRef{texture: true, index: i}
	rec := &c.plan.textures[i]
	_, aliased := c.aliasPrevs[ref]
	var aliasStages gpucore.PipelineStage
	var aliasAccesses gpucore.ResourceAccess
	if aliased {
		aliasStages, aliasAccesses = c.aliasedState(ref)
	}
	defLayout := t.defaultLayout()

	for idx, users := range m.All() {
		if len(users) == 0 {
			continue
		}
		var last gpucore.UseInfo
		switch {
		case aliased:
			last = gpucore.UseInfo{Layout: gpucore.LayoutUndefined, Stages: aliasStages, Accesses: aliasAccesses}
		case t.external != nil:
			s := c.textureStart[i].Get(idx)
			last = gpucore.UseInfo{Layout: s.Layout, Stages: s.Stages, Accesses: s.Accesses}
		default:
			last = gpucore.UseInfo{Layout: users[0].info.Layout}
		}
		floor := c.aliasFloor[ref]

		for gi, g := range groupUsers(users, canMergeTexture) {
			lastIdle := idle(last.Stages, last.Accesses)
			sameLayout := last.Layout == g.info.Layout
			switch {
			case sameLayout && lastIdle && !(gi == 0 && aliased):
				last = g.info
				floor = g.last + 1
				continue
			case sameLayout && !(gi == 0 && aliased) && dontNeedTextureBarrier(last, g.info):
				last = last.Or(g.info)
				floor = g.last + 1
				continue
			}

			before := last
			var at int
			if gi == 0 && t.swapchain && lastIdle {
				// The acquire semaphore is waited on at the first user's
				// stages; the transition must chain to that wait.
				before.Stages = g.info.Stages
				sec := c.sections[c.passSection[g.first]]
				at = c.barrierPass(max(floor, sec.passes[0]), g.first)
			} else {
				at = c.barrierPass(floor, g.first)
			}
			c.passes[at].TextureBarriers = append(c.passes[at].TextureBarriers, gpucore.TextureBarrier{
				Texture:        rec.texture,
				Range:          subresourceRange(idx),
				BeforeStages:   before.Stages,
				BeforeAccesses: before.Accesses,
				BeforeLayout:   before.Layout,
				AfterStages:    g.info.Stages,
				AfterAccesses:  g.info.Accesses,
				AfterLayout:    g.info.Layout,
			})
			last = g.info
			floor = g.last + 1
		}

		if defLayout == gpucore.LayoutUndefined {
			continue
		}
		final := rec.final.Get(idx)
		if final.Layout == defLayout {
			continue
		}
		accesses := final.Accesses
		if accesses.IsReadOnly() {
			accesses = gpucore.AccessNone
		}
		sec := c.sections[c.passSection[users[len(users)-1].pass]]
		sec.post = append(sec.post, gpucore.TextureBarrier{
			Texture:        rec.texture,
			Range:          subresourceRange(idx),
			BeforeStages:   final.Stages,
			BeforeAccesses: accesses,
			BeforeLayout:   final.Layout,
			AfterLayout:    defLayout,
		})
		rec.final.Set(idx.Mip, idx.Layer, gpucore.TextureState{Layout: defLayout})
	}
}

// unusedSwapchain handles a registered swapchain image no pass touches: the
// frame still waits on acquire, moves the image to Present if needed, and
// signals present.
func (c *compiler) unusedSwapchain() {
	sw := c.g.swapchain
	if sw == nil || len(c.swapchainUsers()) > 0 {
		return
	}
	if len(c.sections) == 0 {
		c.sections = append(c.sections, &compileSection{
			queue: c.g.queue,
			waits: make(map[int]gpucore.PipelineStage),
		})
	}
	sec := c.sections[len(c.sections)-1]
	sec.waitAcquire = true
	sec.waitAcquireStages |= gpucore.StageAll
	sec.signalPresent = true
	sec.signalPresentStages |= gpucore.StageAll

	rec := &c.plan.textures[sw.index]
	start := c.textureStart[sw.index]
	for idx, s := range start.All() {
		if s.Layout == gpucore.LayoutPresent {
			continue
		}
		sec.post = append(sec.post, gpucore.TextureBarrier{
			Texture:        rec.texture,
			Range:          subresourceRange(idx),
			BeforeStages:   gpucore.StageAll,
			BeforeAccesses: s.Accesses,
			BeforeLayout:   s.Layout,
			AfterLayout:    gpucore.LayoutPresent,
		})
		rec.used.Set(idx.Mip, idx.Layer, true)
		rec.final.Set(idx.Mip, idx.Layer, gpucore.TextureState{Layout: gpucore.LayoutPresent})
		rec.queues.Set(idx.Mip, idx.Layer, sec.queue)
		rec.spans.Set(idx.Mip, idx.Layer, sectionSpan{first: len(c.sections) - 1, last: len(c.sections) - 1})
	}
}

func subresourceRange(idx subresource.Index) gpucore.SubresourceRange {
	return gpucore.SubresourceRange{BaseMip: idx.Mip, MipCount: 1, BaseLayer: idx.Layer, LayerCount: 1}
}

func sameTransition(a, b gpucore.TextureBarrier) bool {
	return a.Texture == b.Texture &&
		a.BeforeStages == b.BeforeStages && a.BeforeAccesses == b.BeforeAccesses && a.BeforeLayout == b.BeforeLayout &&
		a.AfterStages == b.AfterStages && a.AfterAccesses == b.AfterAccesses && a.AfterLayout == b.AfterLayout
}

// collapseTextureBarriers replaces the per-subresource barriers of a texture
// by one whole-texture barrier when every subresource makes the same
// transition.
func collapseTextureBarriers(bs []gpucore.TextureBarrier) []gpucore.TextureBarrier {
	if len(bs) < 2 {
		return bs
	}
	out := bs[:0]
	for i := 0; i < len(bs); {
		j := i + 1
		for j < len(bs) && sameTransition(bs[i], bs[j]) {
			j++
		}
		desc := bs[i].Texture.Desc().Normalized()
		if j-i > 1 && j-i == int(desc.MipLevels)*int(desc.ArraySize) {
			b := bs[i]
			b.Range = gpucore.SubresourceRange{MipCount: desc.MipLevels, LayerCount: desc.ArraySize}
			out = append(out, b)
		} else {
			out = append(out, bs[i:j]...)
		}
		i = j
	}
	return out
}

// pruneTextureBarrier drops accesses a barrier does not need to name on
// devices whose barriers make writes available and visible.
func pruneTextureBarrier(b *gpucore.TextureBarrier) {
	if b.BeforeAccesses.IsReadOnly() {
		b.BeforeAccesses = gpucore.AccessNone
	}
	if b.BeforeLayout == b.AfterLayout && b.AfterAccesses.IsWriteOnly() {
		b.AfterAccesses = gpucore.AccessNone
	}
}

func pruneBufferBarrier(b *gpucore.BufferBarrier) {
	if b.BeforeAccesses.IsReadOnly() {
		b.BeforeAccesses = gpucore.AccessNone
	}
	if b.AfterAccesses.IsWriteOnly() {
		b.AfterAccesses = gpucore.AccessNone
	}
}

// foldGlobal replaces the buffer barriers and layout-preserving texture
// barriers of pp by one global barrier when at least two can be folded.
func foldGlobal(pp *PlannedPass) {
	n := len(pp.BufferBarriers)
	for _, b := range pp.TextureBarriers {
		if b.BeforeLayout == b.AfterLayout {
			n++
		}
	}
	if n < 2 {
		return
	}
	var g gpucore.GlobalBarrier
	if pp.GlobalBarrier != nil {
		g = *pp.GlobalBarrier
	}
	for _, b := range pp.BufferBarriers {
		g.Merge(gpucore.GlobalBarrier{
			BeforeStages: b.BeforeStages, BeforeAccesses: b.BeforeAccesses,
			AfterStages: b.AfterStages, AfterAccesses: b.AfterAccesses,
		})
	}
	kept := pp.TextureBarriers[:0]
	for _, b := range pp.TextureBarriers {
		if b.BeforeLayout != b.AfterLayout {
			kept = append(kept, b)
			continue
		}
		g.Merge(gpucore.GlobalBarrier{
			BeforeStages: b.BeforeStages, BeforeAccesses: b.BeforeAccesses,
			AfterStages: b.AfterStages, AfterAccesses: b.AfterAccesses,
		})
	}
	pp.BufferBarriers = nil
	pp.TextureBarriers = kept
	pp.GlobalBarrier = &g
}

// fillSections turns the compile sections into the plan's sections.
func (c *compiler) fillSections() {
	g := c.g
	prune := c.caps.AvailableVisible
	fold := c.opts.PreferGlobalBarrier && c.caps.GlobalBarrier

	c.plan.Sections = make([]Section, len(c.sections))
	for si, cs := range c.sections {
		s := &c.plan.Sections[si]
		s.Queue = cs.queue
		s.SignalFence = cs.signalFence
		s.SyncBeforeExecution = cs.syncBefore
		s.Waits = sortedWaits(cs.waits)
		if cs.waitAcquire && g.acquireSemaphore != nil {
			s.WaitAcquire = &gpucore.SemaphoreOp{Semaphore: g.acquireSemaphore, Stages: cs.waitAcquireStages}
		}
		if cs.signalPresent && g.presentSemaphore != nil {
			s.SignalPresent = &gpucore.SemaphoreOp{Semaphore: g.presentSemaphore, Stages: cs.signalPresentStages}
		}

		s.Passes = make([]PlannedPass, 0, len(cs.passes))
		for _, p := range cs.passes {
			pp := c.passes[p]
			if prune {
				for i := range pp.BufferBarriers {
					pruneBufferBarrier(&pp.BufferBarriers[i])
				}
				for i := range pp.TextureBarriers {
					pruneTextureBarrier(&pp.TextureBarriers[i])
				}
			}
			if fold {
				foldGlobal(&pp)
			}
			s.Passes = append(s.Passes, pp)
		}
		s.PostTextureBarriers = collapseTextureBarriers(cs.post)
		if prune {
			for i := range s.PostTextureBarriers {
				pruneTextureBarrier(&s.PostTextureBarriers[i])
			}
		}
	}

	if c.opts.InitialGlobalBarrier && len(c.plan.Sections) > 0 && len(c.plan.Sections[0].Passes) > 0 {
		pp := &c.plan.Sections[0].Passes[0]
		all := gpucore.GlobalBarrier{
			BeforeStages: gpucore.StageAll, BeforeAccesses: gpucore.AccessAll,
			AfterStages: gpucore.StageAll, AfterAccesses: gpucore.AccessAll,
		}
		if pp.GlobalBarrier != nil {
			all.Merge(*pp.GlobalBarrier)
		}
		pp.GlobalBarrier = &all
	}
}
