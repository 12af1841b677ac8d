package instrument

import (
	"strconv"
	"strings"
)

// statement instruments one line inside a function body. Matchers run in
// priority order; the first hit wins. Unmatched lines pass through.
func (rw *rewriter) statement(line string, s scanned, m string) {
	ln := rw.lineNo
	indent := leadingWS(line)
	var before, after []string
	newLine := line

	// Allocation sites get a marker ahead of the statement so the
	// heap-alloc event fired inside it inherits this line.
	if reHeapRHS.MatchString(m) {
		before = append(before, rw.call(`__trace_control_flow("alloc", %d);`, ln))
	}

	switch {
	case reBrkCont.MatchString(m):
		kw := reBrkCont.FindStringSubmatch(m)[1]
		before = append(before, rw.call(`__trace_control_flow("%s", %d);`, kw, ln))

	case reDelete.MatchString(m):
		// The marker precedes the statement so the heap-free event that
		// fires inside it inherits this line.
		before = append(before, rw.call(`__trace_control_flow("free", %d);`, ln))

	case reReturn.MatchString(m):
		before = append(before, rw.returnCalls(reReturn.FindStringSubmatch(m)[1], ln)...)

	case reFor.MatchString(m):
		fm := reFor.FindStringSubmatch(m)
		newLine, before, after = rw.rewriteFor(fm[1], fm[2], fm[3] == "{", ln)

	case reWhile.MatchString(m):
		fm := reWhile.FindStringSubmatch(m)
		id := rw.ctx.newLoopID()
		before = append(before, rw.call(`__trace_loop_start(%d, "while", %d);`, id, ln))
		newLine = fm[1] + "while (" + rw.wrapCond("__trace_loop_cond", id, fm[2], ln) + ") {"
		after = append(after, rw.call("__trace_loop_body(%d, %d);", id, ln))
		rw.ctx.loops = append(rw.ctx.loops, loopFrame{id: id, kind: "while", line: ln, bodyDepth: rw.depth + 1})

	case reDoOpen.MatchString(m):
		id := rw.ctx.newLoopID()
		before = append(before, rw.call(`__trace_loop_start(%d, "do", %d);`, id, ln))
		after = append(after, rw.call("__trace_loop_body(%d, %d);", id, ln))
		rw.ctx.loops = append(rw.ctx.loops, loopFrame{id: id, kind: "do", line: ln, bodyDepth: rw.depth + 1})

	case reDoClose.MatchString(m):
		fm := reDoClose.FindStringSubmatch(m)
		if n := len(rw.ctx.loops); n > 0 && rw.ctx.loops[n-1].kind == "do" {
			top := rw.ctx.loops[n-1]
			rw.ctx.loops = rw.ctx.loops[:n-1]
			newLine = fm[1] + "} while (" + rw.wrapCond("__trace_loop_cond", top.id, fm[2], ln) + ");"
			after = append(after, rw.call("__trace_loop_end(%d, %d);", top.id, ln))
		}

	case reIf.MatchString(m):
		fm := reIf.FindStringSubmatch(m)
		id := rw.ctx.newCondID()
		head := "if"
		if strings.Contains(fm[2], "else") {
			head = "} else if"
		}
		newLine = fm[1] + head + " (" + rw.wrapCond("__trace_branch", id, fm[3], ln) + ") {"

	case reElse.MatchString(m):
		after = append(after, rw.call(`__trace_control_flow("else", %d);`, ln))

	case reCin.MatchString(m) && rw.lang == LangCPP:
		before, after = rw.inputCalls(cinTargets(reCin.FindStringSubmatch(m)[1]), ln)

	case reScanf.MatchString(m):
		fm := reScanf.FindStringSubmatch(m)
		before, after = rw.inputCalls(scanfTargets(fm[2]), ln)

	case reOutput.MatchString(m):
		after = append(after, rw.call("__trace_flush(%d);", ln))

	case reMultiDecl.MatchString(m):
		fm := reMultiDecl.FindStringSubmatch(m)
		after = rw.multiDecl(fm[1], fm[2], ln)

	case reArrayDecl.MatchString(m):
		fm := reArrayDecl.FindStringSubmatch(m)
		after = rw.arrayDecl(fm[1], fm[2], fm[3], fm[4], ln)

	case rePtrDecl.MatchString(m) && !reKeyword.MatchString(rePtrDecl.FindStringSubmatch(m)[2]):
		fm := rePtrDecl.FindStringSubmatch(m)
		after = rw.pointerDecl(fm[1], fm[2], strings.TrimSpace(fm[3]), ln)

	case reDeclInit.MatchString(m):
		fm := reDeclInit.FindStringSubmatch(m)
		after = rw.declare(fm[1], fm[2], strings.TrimSpace(fm[3]), ln)

	case reDeclOnly.MatchString(m) && !reKeyword.MatchString(reDeclOnly.FindStringSubmatch(m)[2]):
		fm := reDeclOnly.FindStringSubmatch(m)
		after = rw.declare(fm[1], fm[2], "", ln)

	case reIndexSet.MatchString(m):
		fm := reIndexSet.FindStringSubmatch(m)
		after = rw.indexAssign(fm[1], fm[2], ln)

	case reMemberSet.MatchString(m):
		fm := reMemberSet.FindStringSubmatch(m)
		after = append(after, rw.call("__trace_var_member(%s%s%s, %d);", fm[1], fm[2], fm[3], ln))

	case reDerefSet.MatchString(m):
		name := reDerefSet.FindStringSubmatch(m)[1]
		after = append(after, rw.call("__trace_pointer_deref_write(%s, %d);", name, ln))

	case reAssign.MatchString(m) && !reKeyword.MatchString(reAssign.FindStringSubmatch(m)[1]):
		fm := reAssign.FindStringSubmatch(m)
		after = append(after, rw.assignReport(fm[1], strings.TrimSpace(fm[2]), ln))

	case reCompound.MatchString(m):
		name := reCompound.FindStringSubmatch(m)[1]
		after = append(after, rw.assignReport(name, "", ln))

	case reIncDec.MatchString(m):
		fm := reIncDec.FindStringSubmatch(m)
		name := fm[1]
		if name == "" {
			name = fm[2]
		}
		after = append(after, rw.assignReport(name, "", ln))

	case reBareOpen.MatchString(m):
		after = append(after, rw.call("__trace_block_enter(%d, %d);", rw.depth+1, ln))
		rw.bareBlocks = append(rw.bareBlocks, rw.depth+1)

	case reBareEnd.MatchString(m):
		if n := len(rw.bareBlocks); n > 0 && rw.bareBlocks[n-1] == rw.depth {
			rw.bareBlocks = rw.bareBlocks[:n-1]
			before = append(before, rw.call("__trace_block_exit(%d, %d);", rw.depth, ln))
		}
	}

	for _, b := range before {
		rw.emit(indent + b)
	}
	rw.emit(newLine)
	for _, a := range after {
		rw.emit(indent + a)
	}
	rw.updateDepth(s, line)
}

// returnCalls flushes captured output and reports the return value, keeping
// the original return statement intact.
func (rw *rewriter) returnCalls(expr string, ln int) []string {
	calls := []string{rw.call("__trace_flush(%d);", ln)}
	expr = strings.TrimSpace(expr)
	if expr != "" && numericType(rw.retType) {
		calls = append(calls, rw.call("__trace_return((%s), %s, %d);", expr, rw.retType, ln))
	}
	return calls
}

// rewriteFor splices the loop tracing calls into the three header slots
// without changing what the loop observably does.
func (rw *rewriter) rewriteFor(indent, header string, hasBrace bool, ln int) (string, []string, []string) {
	parts := splitTopLevel(header, ';')
	if len(parts) != 3 || !hasBrace {
		// Range-for, macro loop, or a braceless body: leave it alone.
		rw.warnings = append(rw.warnings, "unrecognized for header at line "+strconv.Itoa(ln))
		return indent + "for (" + header + ")" + braceSuffix(hasBrace), nil, nil
	}
	init := strings.TrimSpace(parts[0])
	cond := strings.TrimSpace(parts[1])
	update := strings.TrimSpace(parts[2])

	id := rw.ctx.newLoopID()
	before := []string{rw.call(`__trace_loop_start(%d, "for", %d);`, id, ln)}

	newCond := cond
	if cond != "" {
		newCond = rw.wrapCond("__trace_loop_cond", id, cond, ln)
	}
	iter := rw.call("__trace_loop_iter(%d, %d)", id, ln)
	newUpdate := iter
	if update != "" {
		newUpdate = update + ", " + iter
	}

	after := []string{rw.call("__trace_loop_body(%d, %d);", id, ln)}
	induction := ""
	if fm := reDeclInit.FindStringSubmatch(init + ";"); fm != nil {
		induction = fm[2]
		rw.pending = append(rw.pending, pendingDecl{name: fm[2], typ: fm[1]})
		after = append(after,
			rw.call("__trace_declare(%s, %s, %d);", fm[2], fm[1], ln),
			rw.varReport(fm[2], fm[1], "", ln))
	}

	rw.ctx.loops = append(rw.ctx.loops, loopFrame{
		id: id, kind: "for", line: ln, bodyDepth: rw.depth + 1,
		induction: induction, update: update,
	})
	return indent + "for (" + init + "; " + newCond + "; " + newUpdate + ") {", before, after
}

func braceSuffix(hasBrace bool) string {
	if hasBrace {
		return " {"
	}
	return ""
}

// wrapCond wraps a guard expression in a reporting call that returns the
// evaluated result, so the guard is evaluated exactly once.
func (rw *rewriter) wrapCond(fn string, id int, cond string, ln int) string {
	return rw.call("%s(%d, (%s), %d)", fn, id, strings.TrimSpace(cond), ln)
}

// declare emits a declare call (suppressed on textual re-declaration within
// the same scope) and, when initialized, a typed value report.
func (rw *rewriter) declare(typ, name, rhs string, ln int) []string {
	var calls []string
	if rw.ctx.declare(name, typ) {
		calls = append(calls, rw.call("__trace_declare(%s, %s, %d);", name, typ, ln))
	}
	if rhs != "" {
		calls = append(calls, rw.varReport(name, typ, rhs, ln))
	}
	return calls
}

func (rw *rewriter) multiDecl(typ, rest string, ln int) []string {
	var calls []string
	for _, part := range splitTopLevel(rest, ',') {
		part = strings.TrimSpace(part)
		name, rhs := part, ""
		if eq := strings.Index(part, "="); eq >= 0 {
			name = strings.TrimSpace(part[:eq])
			rhs = strings.TrimSpace(part[eq+1:])
		}
		partTyp := typ
		if strings.HasPrefix(name, "*") {
			name = strings.TrimSpace(strings.TrimPrefix(name, "*"))
			partTyp = typ + "*"
		}
		if name == "" {
			continue
		}
		if partTyp == typ {
			calls = append(calls, rw.declare(partTyp, name, rhs, ln)...)
		} else {
			calls = append(calls, rw.pointerDecl(typ, name, rhs, ln)...)
		}
	}
	return calls
}

func (rw *rewriter) arrayDecl(typ, name, dims, init string, ln int) []string {
	dimExprs := []string{}
	for _, d := range reIndexSplit.FindAllStringSubmatch(dims, -1) {
		dimExprs = append(dimExprs, strings.TrimSpace(d[1]))
	}
	var elems []string
	if strings.HasPrefix(init, "{") {
		inner := strings.TrimSpace(init[1 : len(init)-1])
		if inner != "" {
			for _, e := range splitTopLevel(inner, ',') {
				elems = append(elems, strings.TrimSpace(e))
			}
		}
	}
	// int arr[] = {...}: take the length from the initializer.
	if len(dimExprs) == 1 && dimExprs[0] == "" {
		dimExprs[0] = strconv.Itoa(len(elems))
	}

	d := [3]string{"-1", "-1", "-1"}
	for i := 0; i < len(dimExprs) && i < 3; i++ {
		if dimExprs[i] != "" {
			d[i] = dimExprs[i]
		}
	}

	rw.ctx.declare(name, typ+"[]")
	rw.ctx.markArray(name)
	calls := []string{rw.call("__trace_array_create(%s, %s, %s, %s, %s, %d);", name, typ, d[0], d[1], d[2], ln)}

	switch {
	case strings.HasPrefix(init, `"`) && strings.HasPrefix(typ, "char"):
		calls = append(calls, rw.call("__trace_array_init_string(%s, %s, %d);", name, init, ln))
	case len(elems) > 0 && len(dimExprs) == 1:
		// Pad a short initializer list with zeros up to the declared
		// length: the language zero-initializes the rest.
		if n, err := strconv.Atoi(dimExprs[0]); err == nil {
			for len(elems) < n {
				elems = append(elems, "0")
			}
		}
		fn, cast := "__trace_array_init", "(long long)"
		if numericFloat(typ) {
			fn, cast = "__trace_array_init_d", "(double)"
		}
		args := make([]string, 0, len(elems))
		for _, e := range elems {
			args = append(args, cast+"("+e+")")
		}
		calls = append(calls, rw.call("%s(%s, %d, %d, %s);", fn, name, ln, len(elems), strings.Join(args, ", ")))
	}
	return calls
}

func (rw *rewriter) pointerDecl(typ, name, rhs string, ln int) []string {
	rw.ctx.declare(name, typ+"*")
	calls := []string{rw.call("__trace_declare(%s, %s*, %d);", name, typ, ln)}
	if rhs == "" {
		return calls
	}
	switch {
	case reHeapRHS.MatchString(rhs):
		calls = append(calls, rw.call("__trace_pointer_heap_init(%s, %d);", name, ln))
	case strings.HasPrefix(rhs, `"`) && strings.HasPrefix(typ, "char"):
		calls = append(calls, rw.call("__trace_var_str(%s, %d);", name, ln))
	case reDecayAddr.MatchString(rhs):
		calls = append(calls, rw.call("__trace_pointer_alias(%s, 1, %d);", name, ln))
	case reIdent.MatchString(rhs) && rw.ctx.isArray(rhs):
		calls = append(calls, rw.call("__trace_pointer_alias(%s, 1, %d);", name, ln))
	default:
		calls = append(calls, rw.call("__trace_pointer_alias(%s, 0, %d);", name, ln))
	}
	return calls
}

func (rw *rewriter) indexAssign(name, dims string, ln int) []string {
	var idx []string
	for _, d := range reIndexSplit.FindAllStringSubmatch(dims, -1) {
		idx = append(idx, strings.TrimSpace(d[1]))
	}
	value := name + dims
	switch len(idx) {
	case 1:
		return []string{rw.call("__trace_array_index_assign_1d(%s, (%s), %s, %d);", name, idx[0], value, ln)}
	case 2:
		return []string{rw.call("__trace_array_index_assign_2d(%s, (%s), (%s), %s, %d);", name, idx[0], idx[1], value, ln)}
	default:
		return []string{rw.call("__trace_array_index_assign_3d(%s, (%s), (%s), (%s), %s, %d);", name, idx[0], idx[1], idx[2], value, ln)}
	}
}

// assignReport emits a typed report for a plain write when the target's
// declared type is known, falling back to a generic assign event.
func (rw *rewriter) assignReport(name, rhs string, ln int) string {
	if typ := rw.ctx.typeOf(name); typ != "" {
		return rw.varReport(name, typ, rhs, ln)
	}
	return rw.call("__trace_assign(%s, %s, %d);", name, name, ln)
}

// varReport picks the typed runtime call for a variable's declared type.
func (rw *rewriter) varReport(name, typ, rhs string, ln int) string {
	base := strings.TrimSpace(typ)
	switch {
	case strings.HasSuffix(base, "*") || strings.HasSuffix(base, "[]"):
		return rw.call("__trace_var_ptr(%s, %d);", name, ln)
	case base == "std::string" || base == "string":
		return rw.call("__trace_var_cppstr(%s, %d);", name, ln)
	case numericFloat(base):
		return rw.call("__trace_var_double(%s, %d);", name, ln)
	case strings.Contains(base, "long") || base == "size_t":
		return rw.call("__trace_var_long(%s, %d);", name, ln)
	default:
		return rw.call("__trace_var_int(%s, %d);", name, ln)
	}
}

// inputCalls emits one input-request marker per read target before the
// read, and a typed value report after it completes.
func (rw *rewriter) inputCalls(targets []string, ln int) (before, after []string) {
	for _, t := range targets {
		typ := rw.ctx.typeOf(t)
		before = append(before, rw.call(`__trace_input_request("%s", "%s", %d);`, t, inputKind(typ), ln))
		after = append(after, rw.varReport(t, typ, "", ln))
	}
	return before, after
}

func cinTargets(chain string) []string {
	var targets []string
	for _, part := range strings.Split(chain, ">>") {
		part = strings.TrimSpace(part)
		if reIdent.MatchString(part) {
			targets = append(targets, part)
		}
	}
	return targets
}

func scanfTargets(args string) []string {
	var targets []string
	for _, a := range splitTopLevel(args, ',') {
		a = strings.TrimSpace(a)
		if fm := reAddrOf.FindStringSubmatch(a); fm != nil {
			targets = append(targets, fm[1])
		} else if reIdent.MatchString(a) {
			targets = append(targets, a)
		}
	}
	return targets
}

func inputKind(typ string) string {
	switch {
	case numericFloat(typ):
		return "float"
	case typ == "std::string" || typ == "string" || strings.HasPrefix(typ, "char"):
		return "string"
	default:
		return "int"
	}
}

func numericFloat(typ string) bool {
	return strings.Contains(typ, "float") || strings.Contains(typ, "double")
}

func numericType(typ string) bool {
	switch {
	case typ == "", typ == "void":
		return false
	case strings.Contains(typ, "string"):
		return false
	}
	return true
}
