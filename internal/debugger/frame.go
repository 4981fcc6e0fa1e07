package debugger

import "sync"

// Unit is the metadata of a compiled unit of script code: a function or the
// main chunk.
type Unit struct {
	// Source is the path the unit was loaded from.
	Source string
	// Name is the function name, or "main" for a chunk.
	Name string
	// LineDefined is the line the function starts at; 0 for a chunk.
	LineDefined int
	// Names are the declared parameter and local names in declaration order.
	Names []string
}

// Scope resolves variables of one live frame.
type Scope interface {
	// Lookup returns the current value of name. It reports false when the
	// name is not active at the current position.
	Lookup(name string) (Value, bool)
}

// LineLocator is implemented by scopes that know the line their frame is
// currently executing.
type LineLocator interface {
	CurrentLine() int
}

// Frame is one active invocation on the script call stack.
type Frame struct {
	Unit  *Unit
	Scope Scope
}

// FrameStack is the per-session LIFO of active frames. It is written by the
// execution goroutine only; the mutex lets controllers read it between pauses.
type FrameStack struct {
	mu     sync.RWMutex
	frames []Frame
}

// Push pushes a frame.
func (s *FrameStack) Push(f Frame) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return len(s.frames)
}

// Pop removes the top frame. It reports false if the stack was empty.
func (s *FrameStack) Pop() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	f := s.frames[len(s.frames)-1]
	s.frames[len(s.frames)-1] = Frame{}
	s.frames = s.frames[:len(s.frames)-1]
	return f, true
}

// Top returns the top frame.
func (s *FrameStack) Top() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// Depth returns the number of active frames.
func (s *FrameStack) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Frames returns a copy of the stack, top first.
func (s *FrameStack) Frames() []Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Frame, len(s.frames))
	for i, f := range s.frames {
		result[len(s.frames)-1-i] = f
	}
	return result
}
