package lua

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/luadebug/internal/debugger"
)

// Names of the hook functions called by instrumented code.
const (
	hookLine     = "__dbg_line"
	hookEnter    = "__dbg_enter"
	hookPass     = "__dbg_pass"
	hookDebugger = "debugger"
)

// Program is an instrumented, compiled script.
type Program struct {
	// Source is the name the script was compiled under.
	Source string
	// Proto is the compiled main chunk.
	Proto *lua.FunctionProto
	// Units are the compiled units; Units[0] is the main chunk.
	Units []*debugger.Unit

	lines map[int]struct{}
}

// Breakable reports whether execution can stop at line.
func (p *Program) Breakable(line int) bool {
	_, ok := p.lines[line]
	return ok
}

// Lines returns the breakable lines in ascending order.
func (p *Program) Lines() []int {
	lines := make([]int, 0, len(p.lines))
	for l := range p.lines {
		lines = append(lines, l)
	}
	sort.Ints(lines)
	return lines
}

// CompileFile reads and compiles the script at path.
func CompileFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Compile(bytes.NewReader(data), path)
}

// Compile parses, instruments and compiles a script. name is the source
// path reported in frames and matched against breakpoints.
func Compile(r io.Reader, name string) (*Program, error) {
	chunk, err := parse.Parse(r, name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	in := &instrumenter{source: name, lines: make(map[int]struct{})}
	chunk = in.chunk(chunk)

	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	units := make([]*debugger.Unit, len(in.units))
	for i, u := range in.units {
		units[i] = u.unit
	}
	return &Program{Source: name, Proto: proto, Units: units, lines: in.lines}, nil
}

// unitBuilder collects the declared names of one unit.
type unitBuilder struct {
	unit *debugger.Unit
	seen map[string]bool
}

func (u *unitBuilder) declare(names ...string) {
	for _, n := range names {
		if n == "" || n == "_" || u.seen[n] {
			continue
		}
		u.seen[n] = true
		u.unit.Names = append(u.unit.Names, n)
	}
}

type instrumenter struct {
	source string
	units  []*unitBuilder
	lines  map[int]struct{}
}

func (in *instrumenter) newUnit(name string, line int) (*unitBuilder, int) {
	u := &unitBuilder{
		unit: &debugger.Unit{Source: in.source, Name: name, LineDefined: line},
		seen: make(map[string]bool),
	}
	in.units = append(in.units, u)
	return u, len(in.units) - 1
}

func (in *instrumenter) chunk(stmts []ast.Stmt) []ast.Stmt {
	u, idx := in.newUnit("main", 0)
	line := 1
	if len(stmts) > 0 && stmts[0].Line() > 0 {
		line = stmts[0].Line()
	}
	body := in.block(stmts, u, -1)
	return append([]ast.Stmt{hookCall(hookEnter, line, numberExpr(idx, line))}, body...)
}

func (in *instrumenter) function(fn *ast.FunctionExpr, name string, method bool) {
	u, idx := in.newUnit(name, fn.Line())
	if method {
		u.declare("self")
	}
	u.declare(fn.ParList.Names...)

	body := in.block(fn.Stmts, u, -1)
	fn.Stmts = append([]ast.Stmt{hookCall(hookEnter, fn.Line(), numberExpr(idx, fn.Line()))}, body...)
}

// block instruments a statement list. last is the line already announced by
// the enclosing statement, so a one-line "if x then y() end" reports its line
// once.
func (in *instrumenter) block(stmts []ast.Stmt, u *unitBuilder, last int) []ast.Stmt {
	out := make([]ast.Stmt, 0, len(stmts)*2)
	for _, st := range stmts {
		line := st.Line()
		if _, isLabel := st.(*ast.LabelStmt); !isLabel && line > 0 && line != last {
			out = append(out, hookCall(hookLine, line, numberExpr(line, line)))
			in.lines[line] = struct{}{}
			last = line
		}
		in.stmt(st, u, line)
		out = append(out, in.rewriteReturn(st))
	}
	return out
}

func (in *instrumenter) stmt(st ast.Stmt, u *unitBuilder, line int) {
	switch s := st.(type) {
	case *ast.LocalAssignStmt:
		for i, e := range s.Exprs {
			name := ""
			if i < len(s.Names) {
				name = s.Names[i]
			}
			in.namedExpr(e, name)
		}
		u.declare(s.Names...)
	case *ast.AssignStmt:
		for _, e := range s.Lhs {
			in.expr(e)
		}
		for i, e := range s.Rhs {
			name := ""
			if i < len(s.Lhs) {
				name = exprName(s.Lhs[i])
			}
			in.namedExpr(e, name)
		}
	case *ast.FuncCallStmt:
		in.expr(s.Expr)
	case *ast.DoBlockStmt:
		s.Stmts = in.block(s.Stmts, u, line)
	case *ast.WhileStmt:
		in.expr(s.Condition)
		s.Stmts = in.block(s.Stmts, u, line)
	case *ast.RepeatStmt:
		s.Stmts = in.block(s.Stmts, u, line)
		in.expr(s.Condition)
	case *ast.IfStmt:
		in.expr(s.Condition)
		s.Then = in.block(s.Then, u, line)
		s.Else = in.block(s.Else, u, line)
	case *ast.NumberForStmt:
		in.expr(s.Init)
		in.expr(s.Limit)
		in.expr(s.Step)
		u.declare(s.Name)
		s.Stmts = in.block(s.Stmts, u, line)
	case *ast.GenericForStmt:
		for _, e := range s.Exprs {
			in.expr(e)
		}
		u.declare(s.Names...)
		s.Stmts = in.block(s.Stmts, u, line)
	case *ast.FuncDefStmt:
		name, method := funcName(s.Name)
		in.function(s.Func, name, method)
	case *ast.ReturnStmt:
		for _, e := range s.Exprs {
			in.expr(e)
		}
	}
}

// rewriteReturn turns a tail call into a call whose results are passed
// through a Go function, keeping the caller's frame on the stack.
func (in *instrumenter) rewriteReturn(st ast.Stmt) ast.Stmt {
	ret, ok := st.(*ast.ReturnStmt)
	if !ok || len(ret.Exprs) != 1 {
		return st
	}
	call, ok := ret.Exprs[0].(*ast.FuncCallExpr)
	if !ok || call.AdjustRet {
		return st
	}
	pass := &ast.FuncCallExpr{Func: ident(hookPass, ret.Line()), Args: []ast.Expr{call}}
	pass.SetLine(call.Line())
	pass.SetLastLine(call.LastLine())
	ret.Exprs[0] = pass
	return ret
}

func (in *instrumenter) namedExpr(e ast.Expr, name string) {
	if fn, ok := e.(*ast.FunctionExpr); ok {
		if name == "" {
			name = "anonymous"
		}
		in.function(fn, name, false)
		return
	}
	in.expr(e)
}

func (in *instrumenter) expr(e ast.Expr) {
	switch x := e.(type) {
	case *ast.FunctionExpr:
		in.function(x, "anonymous", false)
	case *ast.AttrGetExpr:
		in.expr(x.Object)
		in.expr(x.Key)
	case *ast.TableExpr:
		for _, f := range x.Fields {
			in.expr(f.Key)
			name := ""
			if k, ok := f.Key.(*ast.StringExpr); ok {
				name = k.Value
			}
			in.namedExpr(f.Value, name)
		}
	case *ast.FuncCallExpr:
		in.expr(x.Func)
		in.expr(x.Receiver)
		for _, a := range x.Args {
			in.expr(a)
		}
	case *ast.LogicalOpExpr:
		in.expr(x.Lhs)
		in.expr(x.Rhs)
	case *ast.RelationalOpExpr:
		in.expr(x.Lhs)
		in.expr(x.Rhs)
	case *ast.StringConcatOpExpr:
		in.expr(x.Lhs)
		in.expr(x.Rhs)
	case *ast.ArithmeticOpExpr:
		in.expr(x.Lhs)
		in.expr(x.Rhs)
	case *ast.UnaryMinusOpExpr:
		in.expr(x.Expr)
	case *ast.UnaryNotOpExpr:
		in.expr(x.Expr)
	case *ast.UnaryLenOpExpr:
		in.expr(x.Expr)
	}
}

// funcName returns the display name of a function statement and whether it
// defines a method.
func funcName(fn *ast.FuncName) (string, bool) {
	if fn.Func != nil {
		return exprName(fn.Func), false
	}
	return exprName(fn.Receiver) + ":" + fn.Method, true
}

func exprName(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.IdentExpr:
		return x.Value
	case *ast.AttrGetExpr:
		if k, ok := x.Key.(*ast.StringExpr); ok {
			if obj := exprName(x.Object); obj != "" {
				return obj + "." + k.Value
			}
			return k.Value
		}
	}
	return ""
}

func ident(name string, line int) *ast.IdentExpr {
	e := &ast.IdentExpr{Value: name}
	e.SetLine(line)
	e.SetLastLine(line)
	return e
}

func numberExpr(n, line int) *ast.NumberExpr {
	e := &ast.NumberExpr{Value: strconv.Itoa(n)}
	e.SetLine(line)
	e.SetLastLine(line)
	return e
}

func hookCall(name string, line int, args ...ast.Expr) *ast.FuncCallStmt {
	call := &ast.FuncCallExpr{Func: ident(name, line), Args: args}
	call.SetLine(line)
	call.SetLastLine(line)
	st := &ast.FuncCallStmt{Expr: call}
	st.SetLine(line)
	st.SetLastLine(line)
	return st
}
