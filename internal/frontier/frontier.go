// Package frontier provides the FIFO crawl queue and visited registry.
package frontier

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Entry is one unit of crawl work.
type Entry struct {
	URL   string
	Depth int
}

// Frontier is a FIFO queue of entries plus the visited registry. A URL joins
// the visited set at dequeue time, inside Claim, never at enqueue. A bloom
// filter front-ends the exact dedup maps to keep the common reject path
// allocation-free.
type Frontier struct {
	mu       sync.Mutex
	queue    []Entry
	visited  map[string]struct{}
	enqueued map[string]struct{}
	seen     *bloom.BloomFilter
}

// New returns an empty frontier sized for expectedURLs distinct URLs.
func New(expectedURLs uint) *Frontier {
	if expectedURLs == 0 {
		expectedURLs = 10000
	}
	return &Frontier{
		visited:  make(map[string]struct{}),
		enqueued: make(map[string]struct{}),
		seen:     bloom.NewWithEstimates(expectedURLs, 0.01),
	}
}

// Push enqueues url at depth unless it was already enqueued or visited.
// Returns true if the entry was accepted.
func (f *Frontier) Push(url string, depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen.TestString(url) {
		// Bloom hit may be a false positive, confirm with the exact maps.
		if _, ok := f.visited[url]; ok {
			return false
		}
		if _, ok := f.enqueued[url]; ok {
			return false
		}
	}

	f.seen.AddString(url)
	f.enqueued[url] = struct{}{}
	f.queue = append(f.queue, Entry{URL: url, Depth: depth})
	return true
}

// PushSeed enqueues url at depth 0.
func (f *Frontier) PushSeed(url string) bool {
	return f.Push(url, 0)
}

// Claim dequeues the oldest entry and atomically marks it visited. Entries
// whose URL is already visited are skipped. Returns false when the queue is
// empty.
func (f *Frontier) Claim() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.queue) > 0 {
		e := f.queue[0]
		f.queue = f.queue[1:]
		delete(f.enqueued, e.URL)

		if _, ok := f.visited[e.URL]; ok {
			continue
		}
		f.visited[e.URL] = struct{}{}
		return e, true
	}
	return Entry{}, false
}

// MarkVisited records url as visited without dequeueing it.
func (f *Frontier) MarkVisited(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited[url] = struct{}{}
	f.seen.AddString(url)
}

// Visited reports whether url has been claimed or marked.
func (f *Frontier) Visited(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[url]
	return ok
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// VisitedCount returns the size of the visited registry.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}
