// Package secmem is a first-fit pool allocator carved out of a single
// memguard.LockedBuffer arena. The client holds its per-message keys in
// it, so they live outside swappable, GC-movable Go heap memory while
// leased; decrypted message bodies are not allocated from it.
package secmem

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// region is a half-open [start, end) byte range within the arena.
type region struct {
	start, end int
}

func (r region) size() int { return r.end - r.start }

// Pool is a fixed-size locked-memory arena with first-fit allocation.
// Each client.Client constructs its own *Pool, so a process running
// several Clients has one Pool per Client. Its mutex is never held across
// I/O, only across the bookkeeping operations below.
type Pool struct {
	mu    sync.Mutex
	buf   *memguard.LockedBuffer
	free  []region // sorted by start, non-overlapping, coalesced
	used  map[int]region
}

// New allocates a locked arena of size bytes.
func New(size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secmem: pool size must be positive, got %d", size)
	}
	buf := memguard.NewBuffer(size)
	if buf.Size() != size {
		return nil, fmt.Errorf("secmem: failed to lock %d bytes", size)
	}
	return &Pool{
		buf:  buf,
		free: []region{{0, size}},
		used: make(map[int]region),
	}, nil
}

// Destroy wipes and releases the arena. No further allocation from this
// pool is valid afterward.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Destroy()
	p.free = nil
	p.used = nil
}

// Handle identifies one live allocation within a Pool.
type Handle struct {
	offset int
	size   int
}

// Malloc reserves n bytes from the arena via first-fit scan and returns a
// handle plus a slice viewing the zeroed region. The slice aliases the
// locked arena directly; callers must not let it escape past Free.
func (p *Pool) Malloc(n int) (Handle, []byte, error) {
	if n <= 0 {
		return Handle{}, nil, fmt.Errorf("secmem: malloc size must be positive, got %d", n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, r := range p.free {
		if r.size() < n {
			continue
		}
		alloc := region{r.start, r.start + n}
		rest := region{r.start + n, r.end}
		if rest.size() > 0 {
			p.free[i] = rest
		} else {
			p.free = append(p.free[:i], p.free[i+1:]...)
		}
		p.used[alloc.start] = alloc
		view := p.buf.Bytes()[alloc.start:alloc.end]
		for j := range view {
			view[j] = 0
		}
		return Handle{offset: alloc.start, size: n}, view, nil
	}
	return Handle{}, nil, fmt.Errorf("secmem: out of locked memory, requested %d bytes", n)
}

// Bytes returns the live slice for a handle previously returned by Malloc.
func (p *Pool) Bytes(h Handle) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Bytes()[h.offset : h.offset+h.size]
}

// Free zeroes the region and returns it to the free list, merging with
// any adjacent free regions.
func (p *Pool) Free(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.used[h.offset]
	if !ok {
		return
	}
	delete(p.used, h.offset)

	view := p.buf.Bytes()[r.start:r.end]
	for i := range view {
		view[i] = 0
	}

	p.free = append(p.free, r)
	p.coalesce()
}

// coalesce sorts the free list by start and merges adjacent regions.
// Called with p.mu held.
func (p *Pool) coalesce() {
	for i := 0; i < len(p.free); i++ {
		for j := i + 1; j < len(p.free); j++ {
			if p.free[i].start > p.free[j].start {
				p.free[i], p.free[j] = p.free[j], p.free[i]
			}
		}
	}
	merged := p.free[:0]
	for _, r := range p.free {
		if n := len(merged); n > 0 && merged[n-1].end == r.start {
			merged[n-1].end = r.end
			continue
		}
		merged = append(merged, r)
	}
	p.free = merged
}

// Available returns the total number of free bytes across all regions.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, r := range p.free {
		total += r.size()
	}
	return total
}
