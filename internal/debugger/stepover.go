package debugger

import (
	"fmt"
	"strings"
)

// StepOverMode selects how a step-over decides it has completed.
type StepOverMode int

const (
	// StepOverSequential completes at the line directly following the line
	// the step started from. Loops and calls that never reach that line run
	// on until they do.
	StepOverSequential StepOverMode = iota
	// StepOverDepth completes at the next line executed at the call depth the
	// step started from or shallower.
	StepOverDepth
)

// String returns the configuration name of the mode.
func (m StepOverMode) String() string {
	switch m {
	case StepOverSequential:
		return "sequential"
	case StepOverDepth:
		return "depth"
	default:
		return fmt.Sprintf("StepOverMode(%d)", int(m))
	}
}

// ParseStepOverMode parses "sequential" or "depth". An empty string selects
// StepOverSequential.
func ParseStepOverMode(s string) (StepOverMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential", "line":
		return StepOverSequential, nil
	case "depth":
		return StepOverDepth, nil
	}
	return StepOverSequential, fmt.Errorf("invalid step-over mode %q", s)
}

// position is a point of execution as seen by the step-over machine.
type position struct {
	line  int
	depth int
}

// stepOver is the step-over state machine: idle, or armed with a baseline.
// It is only touched by the execution goroutine.
type stepOver struct {
	mode     StepOverMode
	armed    bool
	baseline int
	gen      uint64
}

// observe feeds the current line to the machine and reports whether the step
// completed there. prev is the position the last line was seen at and gen the
// command generation the step-over command was written under. A newer
// generation discards an armed baseline and re-arms from prev.
func (s *stepOver) observe(cur, prev position, gen uint64) bool {
	if s.armed && s.gen != gen {
		s.armed = false
	}
	if !s.armed {
		s.armed = true
		s.gen = gen
		if s.mode == StepOverDepth {
			s.baseline = prev.depth
		} else {
			s.baseline = prev.line
		}
	}

	var done bool
	if s.mode == StepOverDepth {
		done = cur.depth <= s.baseline
	} else {
		done = cur.line == s.baseline+1
	}
	if done {
		s.reset()
	}
	return done
}

func (s *stepOver) reset() {
	s.armed = false
	s.baseline = 0
}
