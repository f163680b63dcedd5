package vm

// Trial-deletion cycle collector over the suspect buffer. The pass works on
// a scratch copy of each reachable object's refcount (crc): mark-grey
// subtracts one per internal edge, scan paints nodes with external
// references black and restores their children's counts, and whatever stays
// white is an unreachable cycle, freed as a unit.

// ForceCollect runs one collection pass immediately and returns the number
// of objects freed.
func (hp *Heap) ForceCollect() int { return hp.Collect() }

// Collect drains the suspect buffer through one trial-deletion pass.
// Survivors leave the pass black and unbuffered; the buffer itself is empty
// afterwards except for suspects re-added while dropping edges into
// surviving objects.
func (hp *Heap) Collect() int {
	if hp.collecting {
		return 0
	}
	hp.collecting = true
	defer func() { hp.collecting = false }()

	buffered := hp.suspects
	hp.suspects = nil
	var roots []Handle
	for _, h := range buffered {
		obj, ok := hp.objs[h]
		if !ok {
			continue
		}
		obj.buffered = false
		if obj.col != colorPurple {
			continue
		}
		roots = append(roots, h)
	}
	hp.collections++
	if len(roots) == 0 {
		return 0
	}

	hp.markGrey(roots)
	for _, r := range roots {
		hp.scan(r)
	}

	whites := make(map[Handle]*Object)
	var order []Handle
	for _, r := range roots {
		hp.gatherWhite(r, whites, &order)
	}
	for _, h := range order {
		obj := whites[h]
		obj.eachChild(func(ch Handle) {
			if _, inCycle := whites[ch]; inCycle {
				return
			}
			hp.release(ch)
		})
		hp.free(h, obj, false)
	}
	hp.tracer.collect(len(order))
	if hp.onCollect != nil {
		hp.onCollect(len(order))
	}
	return len(order)
}

// markGrey paints everything reachable from roots grey, seeding each node's
// crc from its refcount, then subtracts one crc per edge inside the painted
// subgraph. A node whose crc stays positive is referenced from outside.
func (hp *Heap) markGrey(roots []Handle) {
	var grey, stack []Handle
	stack = append(stack, roots...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		obj := hp.objs[h]
		if obj.col == colorGrey {
			continue
		}
		obj.col = colorGrey
		obj.crc = obj.RefCount
		grey = append(grey, h)
		obj.eachChild(func(ch Handle) {
			stack = append(stack, ch)
		})
	}
	for _, h := range grey {
		hp.objs[h].eachChild(func(ch Handle) {
			hp.objs[ch].crc--
		})
	}
}

// scan resolves the grey subgraph under h: externally referenced nodes turn
// black (with child counts restored), the rest turn white.
func (hp *Heap) scan(h Handle) {
	stack := []Handle{h}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		obj := hp.objs[s]
		if obj.col != colorGrey {
			continue
		}
		if obj.crc > 0 {
			hp.scanBlack(s)
			continue
		}
		obj.col = colorWhite
		obj.eachChild(func(ch Handle) {
			stack = append(stack, ch)
		})
	}
}

func (hp *Heap) scanBlack(h Handle) {
	obj := hp.objs[h]
	obj.col = colorBlack
	stack := []Handle{h}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		hp.objs[s].eachChild(func(ch Handle) {
			c := hp.objs[ch]
			c.crc++
			if c.col != colorBlack {
				c.col = colorBlack
				stack = append(stack, ch)
			}
		})
	}
}

// gatherWhite collects the white subgraph under h without freeing anything,
// so the later free loop can tell in-cycle edges from edges into survivors.
func (hp *Heap) gatherWhite(h Handle, whites map[Handle]*Object, order *[]Handle) {
	stack := []Handle{h}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		obj, ok := hp.objs[s]
		if !ok {
			continue
		}
		if obj.col != colorWhite {
			continue
		}
		if _, seen := whites[s]; seen {
			continue
		}
		whites[s] = obj
		*order = append(*order, s)
		obj.buffered = false
		obj.eachChild(func(ch Handle) {
			stack = append(stack, ch)
		})
	}
}
