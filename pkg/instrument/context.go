package instrument

// rewriteContext is the per-run mutable state of one instrumentation pass.
// It is created per submission and discarded once the rewritten source is
// produced; nothing in it survives into the trace.
type rewriteContext struct {
	scopes     []scope
	loops      []loopFrame
	nextLoopID int
	nextCondID int
}

// scope tracks what has been declared at one brace depth. The declared set
// suppresses duplicate declare calls when one textual pass would otherwise
// report the same variable twice (multi-declarations, loop headers).
type scope struct {
	declared map[string]string // variable name -> declared type
	arrays   map[string]bool
}

// loopFrame remembers an open loop so the matching close brace can emit the
// loop-end call.
type loopFrame struct {
	id        int
	kind      string
	line      int
	bodyDepth int
	induction string
	update    string
}

func newRewriteContext() *rewriteContext {
	return &rewriteContext{scopes: []scope{newScope()}}
}

func newScope() scope {
	return scope{declared: map[string]string{}, arrays: map[string]bool{}}
}

func (c *rewriteContext) pushScope() {
	c.scopes = append(c.scopes, newScope())
}

func (c *rewriteContext) popScope() {
	if len(c.scopes) > 1 {
		c.scopes = c.scopes[:len(c.scopes)-1]
	}
}

// declare records name in the innermost scope and reports whether it was
// already declared there.
func (c *rewriteContext) declare(name, typ string) bool {
	s := c.scopes[len(c.scopes)-1]
	if _, dup := s.declared[name]; dup {
		return false
	}
	s.declared[name] = typ
	return true
}

// typeOf resolves a variable's declared type, innermost scope first.
func (c *rewriteContext) typeOf(name string) string {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if t, ok := c.scopes[i].declared[name]; ok {
			return t
		}
	}
	return ""
}

func (c *rewriteContext) markArray(name string) {
	c.scopes[len(c.scopes)-1].arrays[name] = true
}

func (c *rewriteContext) isArray(name string) bool {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if c.scopes[i].arrays[name] {
			return true
		}
	}
	return false
}

func (c *rewriteContext) newLoopID() int {
	c.nextLoopID++
	return c.nextLoopID
}

func (c *rewriteContext) newCondID() int {
	c.nextCondID++
	return c.nextCondID
}
