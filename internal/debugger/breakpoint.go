package debugger

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Breakpoint is a registered pause location. Owner is the user id the
// breakpoint was set for; breakpoints are shared by every session of that user.
type Breakpoint struct {
	Owner string
	Path  string
	Line  int
}

// String returns "path:line".
func (b Breakpoint) String() string {
	return fmt.Sprintf("%s:%d", b.Path, b.Line)
}

// NormalizePath returns p in absolute, cleaned form. A path without a leading
// separator gets one, so "lib/util.lua" and "/lib/util.lua" are the same
// location.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Registry is a thread-safe set of breakpoints.
type Registry struct {
	mu  sync.RWMutex
	set map[Breakpoint]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{set: make(map[Breakpoint]struct{})}
}

func newBreakpoint(owner, p string, line int) (Breakpoint, error) {
	if strings.TrimSpace(p) == "" || line < 1 {
		return Breakpoint{}, fmt.Errorf("%w: %q:%d", ErrInvalidBreakpoint, p, line)
	}
	return Breakpoint{Owner: owner, Path: NormalizePath(p), Line: line}, nil
}

// Add registers a breakpoint. It reports false if the breakpoint was already
// present.
func (r *Registry) Add(owner, p string, line int) (Breakpoint, bool, error) {
	bp, err := newBreakpoint(owner, p, line)
	if err != nil {
		return Breakpoint{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[bp]; ok {
		return bp, false, nil
	}
	r.set[bp] = struct{}{}
	return bp, true, nil
}

// Remove unregisters a breakpoint. It reports whether it was present.
func (r *Registry) Remove(owner, p string, line int) (Breakpoint, bool) {
	bp := Breakpoint{Owner: owner, Path: NormalizePath(p), Line: line}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[bp]; !ok {
		return bp, false
	}
	delete(r.set, bp)
	return bp, true
}

// Contains reports whether a breakpoint is registered at the location.
func (r *Registry) Contains(owner, p string, line int) bool {
	bp := Breakpoint{Owner: owner, Path: NormalizePath(p), Line: line}

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.set[bp]
	return ok
}

// Clear removes every breakpoint of owner in the file and returns them.
func (r *Registry) Clear(owner, p string) []Breakpoint {
	p = NormalizePath(p)

	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Breakpoint
	for bp := range r.set {
		if bp.Owner == owner && bp.Path == p {
			delete(r.set, bp)
			removed = append(removed, bp)
		}
	}
	sortBreakpoints(removed)
	return removed
}

// Replace sets the breakpoints of owner in the file to exactly lines. Invalid
// lines are skipped. It returns the resulting breakpoints.
func (r *Registry) Replace(owner, p string, lines []int) []Breakpoint {
	p = NormalizePath(p)

	r.mu.Lock()
	defer r.mu.Unlock()
	for bp := range r.set {
		if bp.Owner == owner && bp.Path == p {
			delete(r.set, bp)
		}
	}
	result := make([]Breakpoint, 0, len(lines))
	for _, line := range lines {
		bp, err := newBreakpoint(owner, p, line)
		if err != nil {
			continue
		}
		if _, ok := r.set[bp]; ok {
			continue
		}
		r.set[bp] = struct{}{}
		result = append(result, bp)
	}
	sortBreakpoints(result)
	return result
}

// List returns the breakpoints of owner ordered by path and line.
func (r *Registry) List(owner string) []Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Breakpoint
	for bp := range r.set {
		if bp.Owner == owner {
			result = append(result, bp)
		}
	}
	sortBreakpoints(result)
	return result
}

// Len returns the number of registered breakpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.set)
}

func sortBreakpoints(bps []Breakpoint) {
	sort.Slice(bps, func(i, j int) bool {
		if bps[i].Path != bps[j].Path {
			return bps[i].Path < bps[j].Path
		}
		return bps[i].Line < bps[j].Line
	})
}
