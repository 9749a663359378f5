package transfer

import "sync"

// bufferPool hands out chunk-sized buffers so in-flight chunks do not
// allocate a fresh 512KiB slice each.
type bufferPool struct {
	pool    sync.Pool
	bufSize int
}

func newBufferPool(bufSize int) *bufferPool {
	return &bufferPool{
		bufSize: bufSize,
		pool: sync.Pool{
			New: func() any {
				return make([]byte, bufSize)
			},
		},
	}
}

func (p *bufferPool) get() []byte {
	buf := p.pool.Get().([]byte)
	if cap(buf) < p.bufSize {
		return make([]byte, p.bufSize)
	}
	return buf[:p.bufSize]
}

func (p *bufferPool) put(buf []byte) {
	if cap(buf) < p.bufSize {
		return
	}
	p.pool.Put(buf[:cap(buf)])
}
