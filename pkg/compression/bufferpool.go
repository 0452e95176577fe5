package compression

import (
	"bytes"
	"sync"
)

// Encode scratch buffers. Each buffer is owned by exactly one encode attempt
// between getBuffer and putBuffer.
var (
	smallBuffers = sync.Pool{New: func() any { return bytes.NewBuffer(make([]byte, 0, 64*1024)) }}
	largeBuffers = sync.Pool{New: func() any { return bytes.NewBuffer(make([]byte, 0, 1024*1024)) }}
)

// oversized buffers are left to the GC instead of pinning memory in the pool
const maxPooledCap = 8 * 1024 * 1024

func getBuffer(sizeHint int) *bytes.Buffer {
	if sizeHint <= 64*1024 {
		return smallBuffers.Get().(*bytes.Buffer)
	}
	return largeBuffers.Get().(*bytes.Buffer)
}

func putBuffer(b *bytes.Buffer) {
	c := b.Cap()
	if c > maxPooledCap {
		return
	}
	b.Reset()
	if c < 1024*1024 {
		smallBuffers.Put(b)
		return
	}
	largeBuffers.Put(b)
}

// detach copies the buffer contents so the buffer can go back to the pool.
func detach(b *bytes.Buffer) []byte {
	out := make([]byte, b.Len())
	copy(out, b.Bytes())
	return out
}
