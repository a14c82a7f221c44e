package optimize

import (
	"sync"
)

// FramePool recycles frame buffers handed to the analyzer so that a
// steady capture cadence does not churn the garbage collector.
type FramePool struct {
	pool sync.Pool
	size int
}

// NewFramePool creates a pool of byte buffers of the given size
func NewFramePool(size int) *FramePool {
	return &FramePool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		},
	}
}

// Get gets a buffer from the pool
func (p *FramePool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns a buffer to the pool
func (p *FramePool) Put(b []byte) {
	// Only put back if it's the right size
	if cap(b) >= p.size {
		p.pool.Put(b[:p.size])
	}
}
