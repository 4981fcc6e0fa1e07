package debugger

// Observer receives session notifications. Methods are called synchronously
// from the goroutine that caused them, usually the execution goroutine while
// it is about to park, so they must not block.
type Observer interface {
	// Register is called when a session is attached.
	Register(s *Session)
	// VariablesChanged is called when the snapshot was replaced or cleared.
	VariablesChanged(s *Session)
	// LineChanged is called on every pause.
	LineChanged(lb LineBreak, s *Session)
	// SessionFinished is called once, when the session finished.
	SessionFinished(s *Session)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) Register(*Session)               {}
func (NopObserver) VariablesChanged(*Session)       {}
func (NopObserver) LineChanged(LineBreak, *Session) {}
func (NopObserver) SessionFinished(*Session)        {}
