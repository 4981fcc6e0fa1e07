package event

import "testing"

func TestTopic_Matches(t *testing.T) {
	tests := []struct {
		topic   Topic
		pattern Topic
		want    bool
	}{
		{"debug.line.changed", "debug.line.changed", true},
		{"debug.line.changed", "debug.line.paused", false},
		{"debug.line.changed", "debug.*.changed", true},
		{"debug.line.changed", "debug.*", false},
		{"debug.line.changed", "debug.**", true},
		{"debug", "debug.**", true},
		{"debug.session.finished", "*.session.finished", true},
		{"debug.session.finished", "**.finished", true},
		{"debug.session.finished", "**", true},
		{"debug.session", "debug.session.finished", false},
	}

	for _, tt := range tests {
		if got := tt.topic.Matches(tt.pattern); got != tt.want {
			t.Errorf("%q.Matches(%q) = %v, want %v", tt.topic, tt.pattern, got, tt.want)
		}
	}
}

func TestTopic_IsValid(t *testing.T) {
	tests := []struct {
		topic Topic
		want  bool
	}{
		{"debug.line", true},
		{"debug", true},
		{"", false},
		{"debug..line", false},
		{".debug", false},
		{"debug.", false},
	}

	for _, tt := range tests {
		if got := tt.topic.IsValid(); got != tt.want {
			t.Errorf("%q.IsValid() = %v, want %v", tt.topic, got, tt.want)
		}
	}
}
