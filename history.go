package umux

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// HistoryStats summarizes a history buffer, mirroring the teacher's
// RingBufferStats shape (spec.md does not require these, but they're free
// telemetry given the fields the buffer already tracks).
type HistoryStats struct {
	LineCount      int
	Capacity       int
	LinesWritten   int64
	LinesEvicted   int64
	LastWriteAt    time.Time
	TrackTimestamp bool
}

// SearchMatch is one match returned by History.Search.
type SearchMatch struct {
	Line    int
	Column  int
	Text    string
	Context SearchContext
}

// SearchContext carries the lines immediately surrounding a match.
type SearchContext struct {
	Before []string
	After  []string
}

// History is a bounded, line-oriented FIFO store with a partial-line tail
// (spec.md §4.1). Capacity N evicts the oldest complete lines once the
// number of complete lines exceeds N; the in-progress partial line is never
// evicted.
type History struct {
	mu       sync.RWMutex
	capacity int
	lines    []string
	partial  string

	trackTimestamp bool
	lastWrite      time.Time

	linesWritten int64
	linesEvicted int64
}

// NewHistory creates a history buffer with the given capacity (complete
// lines). A non-positive capacity falls back to the spec default of 10000.
func NewHistory(capacity int, trackTimestamp bool) *History {
	if capacity <= 0 {
		capacity = 10000
	}
	return &History{
		capacity:       capacity,
		lines:          make([]string, 0, 64),
		trackTimestamp: trackTimestamp,
	}
}

// Append concatenates data onto the partial tail, splits on newlines, pushes
// all but the last fragment as complete lines, and evicts from the front
// while over capacity.
func (h *History) Append(data []byte) {
	if len(data) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	combined := h.partial + string(data)
	fragments := strings.Split(combined, "\n")
	h.partial = fragments[len(fragments)-1]

	if complete := fragments[:len(fragments)-1]; len(complete) > 0 {
		h.lines = append(h.lines, complete...)
		h.linesWritten += int64(len(complete))
	}

	for len(h.lines) > h.capacity {
		h.lines = h.lines[1:]
		h.linesEvicted++
	}

	if h.trackTimestamp {
		h.lastWrite = time.Now()
	}
}

// GetAll joins every complete line plus the partial tail with "\n".
func (h *History) GetAll() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.joinLocked(h.lines, h.partial)
}

// Tail returns the last k elements of (lines ++ [partial if non-empty]).
func (h *History) Tail(k int) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := h.lines
	if h.partial != "" {
		all = append(append([]string{}, h.lines...), h.partial)
	}
	if k <= 0 || len(all) == 0 {
		return ""
	}
	if k > len(all) {
		k = len(all)
	}
	return strings.Join(all[len(all)-k:], "\n")
}

// Head returns the first k complete lines.
func (h *History) Head(k int) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if k <= 0 || len(h.lines) == 0 {
		return ""
	}
	if k > len(h.lines) {
		k = len(h.lines)
	}
	return strings.Join(h.lines[:k], "\n")
}

// Slice returns complete lines [a,b).
func (h *History) Slice(a, b int) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if a < 0 {
		a = 0
	}
	if b > len(h.lines) {
		b = len(h.lines)
	}
	if a >= b {
		return ""
	}
	return strings.Join(h.lines[a:b], "\n")
}

// LineCount returns the number of complete lines plus one if the partial
// tail is non-empty.
func (h *History) LineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.lines)
	if h.partial != "" {
		n++
	}
	return n
}

// Search scans every line (including the partial tail) for re. With a
// non-global search it returns the first match per line; with global=true
// it returns every non-overlapping match per line, resetting the scan
// position at each new line the way spec.md §4.1 describes.
func (h *History) Search(re *regexp.Regexp, global bool, contextLines int) []SearchMatch {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := h.lines
	if h.partial != "" {
		all = append(append([]string{}, h.lines...), h.partial)
	}

	var matches []SearchMatch
	for i, line := range all {
		locs := re.FindAllStringIndex(line, -1)
		if locs == nil {
			continue
		}
		if !global {
			locs = locs[:1]
		}
		for _, loc := range locs {
			matches = append(matches, SearchMatch{
				Line:   i,
				Column: loc[0],
				Text:   line[loc[0]:loc[1]],
				Context: SearchContext{
					Before: contextSlice(all, i-contextLines, i),
					After:  contextSlice(all, i+1, i+1+contextLines),
				},
			})
		}
	}
	return matches
}

// Stats returns a point-in-time snapshot of buffer usage.
func (h *History) Stats() HistoryStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.lines)
	if h.partial != "" {
		n++
	}
	return HistoryStats{
		LineCount:      n,
		Capacity:       h.capacity,
		LinesWritten:   h.linesWritten,
		LinesEvicted:   h.linesEvicted,
		LastWriteAt:    h.lastWrite,
		TrackTimestamp: h.trackTimestamp,
	}
}

func (h *History) joinLocked(lines []string, partial string) string {
	if partial == "" {
		return strings.Join(lines, "\n")
	}
	return strings.Join(append(append([]string{}, lines...), partial), "\n")
}

func contextSlice(lines []string, a, b int) []string {
	if a < 0 {
		a = 0
	}
	if b > len(lines) {
		b = len(lines)
	}
	if a >= b {
		return nil
	}
	out := make([]string, b-a)
	copy(out, lines[a:b])
	return out
}
