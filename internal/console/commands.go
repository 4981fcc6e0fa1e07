package console

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/luadebug/internal/debugger"
)

// listContext is the number of lines list shows around the pause.
const listContext = 3

// command is one console command. run reports whether the console should
// stop reading.
type command struct {
	names []string
	usage string
	help  string
	run   func(c *Console, args []string) (bool, error)
}

func (c *Console) registerCommands() {
	for _, cmd := range []*command{
		{names: []string{"continue", "c"}, help: "run to the next breakpoint", run: setCommand(debugger.CommandContinue)},
		{names: []string{"step", "s"}, help: "step into", run: setCommand(debugger.CommandStepInto)},
		{names: []string{"next", "n"}, help: "step over", run: setCommand(debugger.CommandStepOver)},
		{names: []string{"skip"}, help: "run to the end ignoring breakpoints", run: setCommand(debugger.CommandSkipAllBreakpoints)},
		{names: []string{"pause", "p"}, help: "pause at the next line", run: setCommand(debugger.CommandPause)},
		{names: []string{"break", "b"}, usage: "[path:]line", help: "set a breakpoint", run: (*Console).breakCmd},
		{names: []string{"delete", "d"}, usage: "[path:]line", help: "remove a breakpoint", run: (*Console).deleteCmd},
		{names: []string{"breakpoints", "bl"}, help: "list breakpoints", run: (*Console).breakpointsCmd},
		{names: []string{"vars", "v"}, usage: "[name]", help: "show variables of the paused frame", run: (*Console).varsCmd},
		{names: []string{"where", "w"}, help: "show the call stack", run: (*Console).whereCmd},
		{names: []string{"list", "l"}, help: "show source around the pause", run: (*Console).listCmd},
		{names: []string{"kill", "q"}, help: "terminate the script", run: (*Console).killCmd},
		{names: []string{"help", "h", "?"}, help: "show commands", run: (*Console).helpCmd},
	} {
		c.order = append(c.order, cmd)
		for _, name := range cmd.names {
			c.commands[name] = cmd
		}
	}
}

// Exec runs one command line. It reports whether the console should stop
// reading.
func (c *Console) Exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, ok := c.commands[strings.ToLower(fields[0])]
	if ok {
		return cmd.run(c, fields[1:])
	}
	// Full command names, "step-over" or "skip-all-breakpoints".
	if dc, err := debugger.ParseCommand(fields[0]); err == nil {
		return setCommand(dc)(c, fields[1:])
	}
	return false, fmt.Errorf("%w: %s (try help)", ErrUnknownCommand, fields[0])
}

func setCommand(cmd debugger.Command) func(*Console, []string) (bool, error) {
	return func(c *Console, _ []string) (bool, error) {
		return false, c.manager.SetCommand(c.session.ID(), cmd)
	}
}

// ParseLocation parses "[path:]line". Relative paths are made absolute; a
// bare line refers to script.
func ParseLocation(loc, script string) (string, int, error) {
	path, lineText := script, loc
	if i := strings.LastIndex(loc, ":"); i >= 0 {
		path, lineText = loc[:i], loc[i+1:]
	}
	line, err := strconv.Atoi(lineText)
	if err != nil || line < 1 || path == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidLocation, loc)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	return abs, line, nil
}

func (c *Console) parseLocation(args []string) (string, int, error) {
	if len(args) != 1 {
		return "", 0, fmt.Errorf("%w: want [path:]line", ErrInvalidLocation)
	}
	return ParseLocation(args[0], c.script)
}

func (c *Console) breakCmd(args []string) (bool, error) {
	path, line, err := c.parseLocation(args)
	if err != nil {
		return false, err
	}
	bp, err := c.manager.AddBreakpoint(c.session.ID(), path, line)
	if err != nil {
		return false, err
	}
	c.printf("breakpoint set at %s\n", bp)
	return false, nil
}

func (c *Console) deleteCmd(args []string) (bool, error) {
	path, line, err := c.parseLocation(args)
	if err != nil {
		return false, err
	}
	removed, err := c.manager.RemoveBreakpoint(c.session.ID(), path, line)
	if err != nil {
		return false, err
	}
	if !removed {
		c.printf("no breakpoint at %s:%d\n", path, line)
		return false, nil
	}
	c.printf("breakpoint removed from %s:%d\n", path, line)
	return false, nil
}

func (c *Console) breakpointsCmd([]string) (bool, error) {
	bps := c.manager.Breakpoints(c.session.UserID())
	if len(bps) == 0 {
		c.printf("no breakpoints\n")
		return false, nil
	}
	for _, bp := range bps {
		c.printf("  %s\n", bp)
	}
	return false, nil
}

func (c *Console) varsCmd(args []string) (bool, error) {
	if _, ok := c.session.LineBreak(); !ok {
		return false, ErrNotPaused
	}
	snap := c.session.Snapshot()
	if len(args) > 0 {
		v, ok := lookupPath(snap, args[0])
		if !ok {
			c.printf("%s = %s\n", args[0], debugger.TextUndefined)
			return false, nil
		}
		c.printf("%s = %s\n", args[0], c.render(v))
		return false, nil
	}
	if len(snap.Variables) == 0 {
		c.printf("no variables\n")
	}
	for _, v := range snap.Variables {
		c.printf("%s = %s\n", v.Name, c.render(v))
	}
	return false, nil
}

// lookupPath finds name in snap. A dotted name selects a field of a
// structured variable, "cfg.servers.0.host".
func lookupPath(snap debugger.Snapshot, name string) (debugger.Variable, bool) {
	if v, ok := snap.Lookup(name); ok {
		return v, true
	}
	root, path, ok := strings.Cut(name, ".")
	if !ok || path == "" {
		return debugger.Variable{}, false
	}
	v, ok := snap.Lookup(root)
	if !ok || v.Kind != debugger.KindStructured {
		return debugger.Variable{}, false
	}
	res := gjson.Get(v.Value, path)
	if !res.Exists() {
		return debugger.Variable{}, false
	}
	v.Name = name
	v.Value = res.Raw
	if !res.IsObject() && !res.IsArray() {
		v.Value = res.String()
		v.Kind = kindOf(res)
	}
	return v, true
}

func kindOf(res gjson.Result) debugger.Kind {
	switch res.Type {
	case gjson.Number:
		return debugger.KindNumber
	case gjson.String:
		return debugger.KindString
	case gjson.True, gjson.False:
		return debugger.KindBool
	default:
		return debugger.KindNull
	}
}

func (c *Console) whereCmd([]string) (bool, error) {
	stack := c.session.Stack()
	if len(stack) == 0 {
		return false, ErrNotPaused
	}
	for i, e := range stack {
		c.printf("#%d %s at %s:%d\n", i, e.Name, e.Source, e.Line)
	}
	return false, nil
}

func (c *Console) listCmd([]string) (bool, error) {
	lb, ok := c.session.LineBreak()
	if !ok {
		return false, ErrNotPaused
	}
	lines := c.source(lb.Path)
	if len(lines) == 0 {
		return false, fmt.Errorf("source of %s not available", lb.Path)
	}
	from := max(lb.Line-listContext, 1)
	to := min(lb.Line+listContext, len(lines))
	for n := from; n <= to; n++ {
		marker := "  "
		if n == lb.Line {
			marker = "=>"
		}
		c.printf("%s%5d  %s\n", marker, n, lines[n-1])
	}
	return false, nil
}

func (c *Console) killCmd([]string) (bool, error) {
	return true, c.manager.Terminate(c.session.ID())
}

func (c *Console) helpCmd([]string) (bool, error) {
	for _, cmd := range c.order {
		name := strings.Join(cmd.names, ", ")
		if cmd.usage != "" {
			name += " " + cmd.usage
		}
		c.printf("  %-24s %s\n", name, cmd.help)
	}
	return false, nil
}
