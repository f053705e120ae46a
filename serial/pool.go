package serial

import (
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
)

// The arena uses stack-discipline pools: allocation always happens at the
// top of the stack, release marks a slot free but only recedes the top when
// the freed slot is the topmost one, sweeping over any already-free slots
// below it. Holes freed in the middle stay unusable until the top recedes
// past them. This keeps live allocations contiguous from the bottom, which
// is what makes sibling coefficient runs addressable as one strided view.

const (
	statusFree     int8 = 0
	statusOccupied int8 = 1
	// statusUnavailable is the sentinel planted one past the last real
	// slot so the top-of-stack scans never need a bounds check.
	statusUnavailable int8 = -1
)

// stackPool allocates single indices. Used for the two coefficient pools.
type stackPool struct {
	name   string
	full   error
	status []int8
	top    int32 // index of the topmost allocated slot, -1 when empty
	max    int32
	log    logger.Logger
}

func newStackPool(name string, max int32, full error, log logger.Logger) *stackPool {
	p := &stackPool{
		name:   name,
		full:   full,
		status: make([]int8, max+1),
		top:    -1,
		max:    max,
		log:    log,
	}
	p.status[max] = statusUnavailable
	return p
}

// alloc returns the next index above the top of the stack.
func (p *stackPool) alloc() (int32, error) {
	if p.status[p.top+1] != statusFree {
		return 0, fmt.Errorf("%w: %s at %d of %d", p.full, p.name, p.top+1, p.max)
	}
	p.top++
	p.status[p.top] = statusOccupied
	return p.top, nil
}

// release frees ix. Releasing an already free slot is a logged no-op.
// The top recedes over every free slot it uncovers.
func (p *stackPool) release(ix int32) {
	if ix < 0 || ix >= p.max || p.status[ix] != statusOccupied {
		if p.log != nil {
			p.log.Infof("%s: release of free or out of range index %d ignored", p.name, ix)
		}
		return
	}
	p.status[ix] = statusFree
	if ix != p.top {
		return
	}
	for p.top >= 0 && p.status[p.top] == statusFree {
		p.top--
	}
}

// allocated is the stack height including holes.
func (p *stackPool) allocated() int32 { return p.top + 1 }

// slotPool allocates runs of consecutive slot ranks. Used for node slots,
// where a node and its whole sibling group are allocated as one run.
type slotPool struct {
	name   string
	status []int8
	count  int32 // stack height, first free rank
	max    int32
	log    logger.Logger
}

func newSlotPool(name string, max int32, log logger.Logger) *slotPool {
	p := &slotPool{
		name:   name,
		status: make([]int8, max+1),
		max:    max,
		log:    log,
	}
	p.status[max] = statusUnavailable
	return p
}

// allocRun reserves n consecutive ranks at the top of the stack and returns
// the first. On failure nothing is reserved.
func (p *slotPool) allocRun(n int32) (int32, error) {
	if p.count+n > p.max {
		return 0, fmt.Errorf("%w: %s needs %d above %d of %d", ErrNodePoolFull, p.name, n, p.count, p.max)
	}
	first := p.count
	for i := int32(0); i < n; i++ {
		p.status[first+i] = statusOccupied
	}
	p.count += n
	return first, nil
}

// release frees one rank, receding the stack top over free slots when the
// topmost rank is freed. Double release is a logged no-op.
func (p *slotPool) release(rank int32) {
	if rank < 0 || rank >= p.max || p.status[rank] != statusOccupied {
		if p.log != nil {
			p.log.Infof("%s: release of free or out of range rank %d ignored", p.name, rank)
		}
		return
	}
	p.status[rank] = statusFree
	if rank != p.count-1 {
		return
	}
	for p.count > 0 && p.status[p.count-1] == statusFree {
		p.count--
	}
}

func (p *slotPool) allocated() int32 { return p.count }

// occupied reports whether rank is currently allocated.
func (p *slotPool) occupied(rank int32) bool {
	return rank >= 0 && rank < p.max && p.status[rank] == statusOccupied
}
