package instrument

import (
	"fmt"
	"strings"
)

// Language selects the dialect-specific parts of the rewrite (std::string
// handling, cin recognition).
type Language string

const (
	LangC   Language = "c"
	LangCPP Language = "cpp"
)

// Result is the outcome of one instrumentation pass.
type Result struct {
	Source         string
	HeaderInjected bool
	Calls          int // number of injected tracing calls
	Warnings       []string
}

// Rewrite injects tracing calls into src. It works line by line: any line
// that matches no known pattern passes through unmodified, and the rewrite
// never aborts on unrecognized syntax. A panic in the matcher machinery is
// returned as an error so the caller can fall back to the original source.
func Rewrite(src string, lang Language) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("instrumenter panic: %v", r)
		}
	}()
	rw := &rewriter{lang: lang, ctx: newRewriteContext()}
	return rw.run(src), nil
}

type pendingDecl struct {
	name, typ string
}

type rewriter struct {
	lang Language
	ctx  *rewriteContext
	scan scanState

	depth     int
	inFunc    bool
	funcName  string
	retType   string
	bodyDepth int
	funcWait  bool

	inStruct    bool
	structEntry int
	structWait  bool

	pending    []pendingDecl // declarations that belong to the scope about to open
	bareBlocks []int

	lineNo   int
	out      []string
	calls    int
	warnings []string
}

func (rw *rewriter) run(src string) Result {
	lines := strings.Split(src, "\n")
	injected := false
	if !reTraceHeader.MatchString(src) {
		lines = injectHeader(lines)
		injected = true
	}
	for i, line := range lines {
		rw.lineNo = i + 1
		rw.process(line)
	}
	return Result{
		Source:         strings.Join(rw.out, "\n"),
		HeaderInjected: injected,
		Calls:          rw.calls,
		Warnings:       rw.warnings,
	}
}

// injectHeader inserts the tracer include after the last #include so the
// runtime declarations are visible everywhere. Idempotent: run is only
// called when the header is absent.
func injectHeader(lines []string) []string {
	last := -1
	for i, l := range lines {
		if reInclude.MatchString(l) {
			last = i
		}
	}
	header := `#include "trace.h"`
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:last+1]...)
	out = append(out, header)
	out = append(out, lines[last+1:]...)
	return out
}

func (rw *rewriter) emit(lines ...string) {
	rw.out = append(rw.out, lines...)
}

func (rw *rewriter) call(format string, args ...any) string {
	rw.calls++
	return fmt.Sprintf(format, args...)
}

func (rw *rewriter) process(line string) {
	s := rw.scan.scan(line)
	m := strings.TrimRight(s.matchable, " \t")

	if s.comment || strings.TrimSpace(m) == "" || rePreproc.MatchString(m) {
		rw.emit(line)
		rw.updateDepth(s, line)
		return
	}

	if rw.inStruct {
		rw.emit(line)
		rw.updateDepth(s, line)
		if rw.depth <= rw.structEntry {
			rw.inStruct = false
		}
		return
	}
	if rw.structWait {
		if s.opens > 0 {
			rw.structWait = false
			rw.inStruct = true
			rw.structEntry = rw.depth
		}
		rw.emit(line)
		rw.updateDepth(s, line)
		return
	}

	if !rw.inFunc {
		rw.topLevel(line, s, m)
		return
	}
	rw.statement(line, s, m)
}

// topLevel handles lines outside any function body: struct/class heads open
// an uninstrumented region, function heads open an instrumented one, and
// everything else (globals, using directives) passes through.
func (rw *rewriter) topLevel(line string, s scanned, m string) {
	if reStructHead.MatchString(m) {
		if s.opens > 0 {
			rw.inStruct = true
			rw.structEntry = rw.depth
		} else {
			rw.structWait = true
		}
		rw.emit(line)
		rw.updateDepth(s, line)
		return
	}

	if rw.funcWait {
		if s.opens > 0 {
			rw.funcWait = false
			rw.enterFunc()
		}
		rw.emit(line)
		rw.updateDepth(s, line)
		return
	}

	if rw.depth == 0 {
		if fm := reFuncHead.FindStringSubmatch(m); fm != nil &&
			!reKeyword.MatchString(fm[2]) && !reKeyword.MatchString(strings.TrimSpace(fm[1])) {
			rw.funcName = fm[2]
			rw.retType = strings.TrimSpace(fm[1])
			rw.queueParams(fm[3])
			if fm[4] == "{" {
				rw.enterFunc()
			} else {
				rw.funcWait = true
			}
		}
	}
	rw.emit(line)
	rw.updateDepth(s, line)
}

func (rw *rewriter) enterFunc() {
	rw.inFunc = true
	rw.bodyDepth = rw.depth + 1
}

// queueParams registers parameter names and types so assignments to
// parameters inside the body get typed reports.
func (rw *rewriter) queueParams(params string) {
	rw.pending = nil
	for _, p := range splitTopLevel(params, ',') {
		fields := strings.Fields(strings.ReplaceAll(p, "*", " * "))
		if len(fields) < 2 {
			continue
		}
		name := fields[len(fields)-1]
		typ := strings.Join(fields[:len(fields)-1], " ")
		typ = strings.ReplaceAll(typ, " * ", "*")
		rw.pending = append(rw.pending, pendingDecl{name: name, typ: typ})
	}
}

// updateDepth walks the structural braces of the line in order, maintaining
// brace depth and the scope stack, closing loops whose body just ended and
// detecting the end of the current function.
func (rw *rewriter) updateDepth(s scanned, line string) {
	for i := 0; i < len(s.structural); i++ {
		switch s.structural[i] {
		case '{':
			rw.depth++
			rw.ctx.pushScope()
			for _, d := range rw.pending {
				rw.ctx.declare(d.name, d.typ)
				if strings.HasSuffix(d.typ, "[]") {
					rw.ctx.markArray(d.name)
				}
			}
			rw.pending = nil
		case '}':
			rw.depth--
			rw.ctx.popScope()
		}
	}

	indent := leadingWS(line)
	for len(rw.ctx.loops) > 0 {
		top := rw.ctx.loops[len(rw.ctx.loops)-1]
		if top.bodyDepth <= rw.depth {
			break
		}
		rw.ctx.loops = rw.ctx.loops[:len(rw.ctx.loops)-1]
		rw.emit(indent + rw.call("__trace_loop_end(%d, %d);", top.id, rw.lineNo))
	}

	if rw.inFunc && rw.depth < rw.bodyDepth {
		rw.inFunc = false
		rw.funcName = ""
		rw.retType = ""
	}
}

func leadingWS(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] != ' ' && line[i] != '\t' {
			return line[:i]
		}
	}
	return line
}
