package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/go-logr/logr"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"golang.org/x/term"

	"github.com/dshills/luadebug/internal/debugger"
	"github.com/dshills/luadebug/internal/event"
)

// DefaultPrompt is the readline prompt.
const DefaultPrompt = "(luadebug) "

// Option configures a Console.
type Option func(*Console)

// WithLogger sets the console logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Console) {
		c.log = log
	}
}

// WithOutput sets where command output goes. Run replaces it with the
// readline writer.
func WithOutput(w io.Writer) Option {
	return func(c *Console) {
		c.out = w
	}
}

// WithColor enables colored rendering of structured values.
func WithColor(color bool) Option {
	return func(c *Console) {
		c.color = color
	}
}

// WithHistoryFile sets the readline history file.
func WithHistoryFile(path string) Option {
	return func(c *Console) {
		c.historyFile = path
	}
}

// Console controls one session from a terminal.
type Console struct {
	manager *debugger.Manager
	session *debugger.Session
	bus     *event.Bus
	script  string

	log         logr.Logger
	color       bool
	historyFile string

	commands map[string]*command
	order    []*command

	mu      sync.Mutex
	out     io.Writer
	sources map[string][]string
}

// New creates a console for session. script is the path of the debugged
// script; breakpoint locations without a path refer to it.
func New(manager *debugger.Manager, session *debugger.Session, bus *event.Bus, script string, opts ...Option) *Console {
	c := &Console{
		manager:  manager,
		session:  session,
		bus:      bus,
		script:   script,
		log:      logr.Discard(),
		out:      os.Stdout,
		commands: make(map[string]*command),
		sources:  make(map[string][]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registerCommands()
	return c
}

// UseColor resolves a color mode: "always", "never" or "auto", which colors
// when fd is a terminal.
func UseColor(mode string, fd int) bool {
	switch strings.ToLower(mode) {
	case "always":
		return true
	case "never":
		return false
	default:
		return term.IsTerminal(fd)
	}
}

// Run reads commands until the session finishes, the user quits or ctx is
// done. Leaving the console before the script finished terminates it.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          DefaultPrompt,
		HistoryFile:     c.historyFile,
		AutoComplete:    c.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "kill",
	})
	if err != nil {
		return fmt.Errorf("start readline: %w", err)
	}
	defer rl.Close()
	c.setOutput(rl.Stdout())

	sub, err := c.bus.Subscribe(debugger.TopicLineChanged, c.onLineChanged)
	if err != nil {
		return fmt.Errorf("subscribe to pauses: %w", err)
	}
	defer c.bus.Unsubscribe(sub)

	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-c.session.Finished():
			c.printf("program finished\n")
			rl.Close()
		case <-done:
		}
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			c.session.SetCommand(debugger.CommandPause)
			continue
		}
		if err != nil {
			break
		}

		quit, err := c.Exec(line)
		if err != nil {
			c.printf("error: %v\n", err)
		}
		if quit {
			break
		}
	}

	select {
	case <-c.session.Finished():
	default:
		c.session.Terminate()
	}
	return nil
}

// onLineChanged prints where the session paused.
func (c *Console) onLineChanged(_ context.Context, ev any) {
	lb, ok := event.PayloadOf[debugger.LineBreak](ev)
	if !ok || lb.Session.SessionID != c.session.ID() {
		return
	}
	c.printf("%s at %s:%d\n", lb.Reason, lb.Path, lb.Line)
	if text, ok := c.sourceLine(lb.Path, lb.Line); ok {
		c.printf("%5d  %s\n", lb.Line, text)
	}
}

// render formats a variable value. Structured values are indented JSON.
func (c *Console) render(v debugger.Variable) string {
	if v.Kind != debugger.KindStructured || !gjson.Valid(v.Value) {
		return v.Value
	}
	out := pretty.Pretty([]byte(v.Value))
	if c.color {
		out = pretty.Color(out, nil)
	}
	return strings.TrimRight(string(out), "\n")
}

// sourceLine returns line of the file at path. Files are read once.
func (c *Console) sourceLine(path string, line int) (string, bool) {
	lines := c.source(path)
	if line < 1 || line > len(lines) {
		return "", false
	}
	return lines[line-1], true
}

func (c *Console) source(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lines, ok := c.sources[path]; ok {
		return lines
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.V(1).Info("source not readable", "path", path, "error", err.Error())
		c.sources[path] = nil
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	c.sources[path] = lines
	return lines
}

func (c *Console) setOutput(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = w
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) completer() readline.AutoCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(c.order))
	for _, cmd := range c.order {
		items = append(items, readline.PcItem(cmd.names[0]))
	}
	return readline.NewPrefixCompleter(items...)
}
