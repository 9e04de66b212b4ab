package compiler

import (
	"github.com/Antony1060/ESL/internal/ast"
	"github.com/Antony1060/ESL/internal/bytecode"
	"github.com/Antony1060/ESL/internal/diag"
	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/value"
)

func (c *Compiler) compileStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.ExprStmt:
		c.compileExpr(n.X)
		c.emitOp(bytecode.OpPop)
	case *ast.VarDecl:
		c.compileVarDecl(n)
	case *ast.FuncDecl:
		c.compileFuncDecl(n)
	case *ast.ClassDecl:
		c.compileClassDecl(n)
	case *ast.Block:
		c.beginScope()
		for _, st := range n.Stmts {
			c.compileStmt(st)
		}
		c.endScope()
	case *ast.If:
		c.compileIf(n)
	case *ast.While:
		c.compileWhile(n)
	case *ast.For:
		c.compileFor(n)
	case *ast.Switch:
		c.compileSwitch(n)
	case *ast.JumpStmt:
		c.compileJumpStmt(n)
	case *ast.Return:
		if n.Value != nil {
			c.compileExpr(n.Value)
		} else {
			c.emitOp(bytecode.OpNil)
		}
		c.emitOp(bytecode.OpReturn)
	}
}

// compileVarDecl handles both module top-level vars (already reserved as
// globals by reserveModuleGlobals) and local vars inside a function body.
func (c *Compiler) compileVarDecl(n *ast.VarDecl) {
	if n.Value != nil {
		c.compileExpr(n.Value)
	} else {
		c.emitOp(bytecode.OpNil)
	}

	if c.cur.depth == 0 {
		idx := c.globalIdx[n.Name]
		c.emitIndexed(bytecode.OpDefineGlobal, bytecode.OpDefineGlobalLong, idx)
		c.defineGlobal(idx, value.EncodeNil()) // runtime value is set by DEFINE_GLOBAL; this only flips Defined, which no compile-time check reads
		return
	}
	c.declareLocal(n.Name, n.Span())
}

// compileFuncDecl compiles a global function declaration as a fully
// formed Closure stored directly into its globals slot. Per the spec,
// global function declarations may not capture upvalues.
func (c *Compiler) compileFuncDecl(n *ast.FuncDecl) {
	// A function body compiles into the same shared code block as its
	// enclosing code, so it must be skipped over rather than fallen into.
	skip := c.emitJump(bytecode.OpJump)

	fn := &object.Function{Name: n.Name, Arity: len(n.Params), BytecodeOffset: c.code.Len(), ConstantsOffset: len(c.code.Constants)}
	fs := newFuncState(c.cur, fn)
	fs.isGlobalFn = true
	prev := c.cur
	c.cur = fs

	c.beginScope()
	for _, p := range n.Params {
		c.declareLocal(p, n.Span())
	}
	for _, st := range n.Body {
		c.compileStmt(st)
	}
	c.emitOp(bytecode.OpNil)
	c.emitOp(bytecode.OpReturn)
	c.patchJump(skip)

	if len(fs.upvalues) > 0 {
		c.report(diag.FuncGlobalCapturesUpvalue, n.Span(), "global function "+n.Name+" captures an upvalue")
	}
	fn.UpvalueCount = len(fs.upvalues)
	c.cur = prev

	fnHandle := c.heap.Alloc(fn)
	closureHandle := c.heap.Alloc(&object.Closure{Function: fnHandle})

	idx := c.globalIdx[n.Name]
	c.globals[idx].Value = value.EncodeObj(closureHandle)
	c.globals[idx].Defined = true
}

// compileClassDecl resolves the superclass (if any), copies its method
// table, compiles each method as a closure with an implicit `this` at
// local slot 0, and stores the finished Class object directly into the
// class's globals slot.
func (c *Compiler) compileClassDecl(n *ast.ClassDecl) {
	class := object.NewClass(n.Name)

	if n.Super != "" {
		superIdx, ok := c.globalIdx[n.Super]
		if !ok {
			c.report(diag.ClassUnknownSuper, n.Span(), "superclass "+n.Super+" does not resolve to a global")
		} else {
			superVal := c.globals[superIdx].Value
			if !value.IsObj(superVal) {
				c.report(diag.ClassSuperNotAClass, n.Span(), n.Super+" is not a class")
			} else {
				superHandle := value.AsObj(superVal)
				superClass, ok := c.heap.Get(superHandle).(*object.Class)
				if !ok {
					c.report(diag.ClassSuperNotAClass, n.Span(), n.Super+" is not a class")
				} else {
					class.Super = superHandle
					for name, m := range superClass.Methods {
						class.Methods[name] = m
					}
				}
			}
		}
	}

	for _, m := range n.Methods {
		skip := c.emitJump(bytecode.OpJump)

		fn := &object.Function{Name: m.Name, Arity: len(m.Params), BytecodeOffset: c.code.Len(), ConstantsOffset: len(c.code.Constants), Super: class.Super}
		fs := newFuncState(c.cur, fn)
		prev := c.cur
		c.cur = fs

		c.beginScope()
		for _, p := range m.Params {
			c.declareLocal(p, m.Span)
		}
		for _, st := range m.Body {
			c.compileStmt(st)
		}
		if m.Kind == ast.MethodConstructor {
			// An implicit `return this` runs when the body falls off its
			// end; an explicit return inside a constructor compiles like
			// any other return and is not diagnosed.
			c.emitOp(bytecode.OpGetLocal)
			c.emitByte(0)
			c.emitOp(bytecode.OpReturn)
		} else {
			c.emitOp(bytecode.OpNil)
			c.emitOp(bytecode.OpReturn)
		}
		c.patchJump(skip)

		fn.UpvalueCount = len(fs.upvalues)
		upvalues := fs.upvalues
		c.cur = prev

		fnHandle := c.heap.Alloc(fn)
		closure := &object.Closure{Function: fnHandle, Upvalues: make([]value.Handle, 0, len(upvalues))}
		for _, uv := range upvalues {
			closure.Upvalues = append(closure.Upvalues, c.captureCompileTimeUpvalue(uv))
		}
		closureHandle := c.heap.Alloc(closure)
		class.Methods[m.Name] = value.EncodeObj(closureHandle)
	}

	classHandle := c.heap.Alloc(class)
	idx := c.globalIdx[n.Name]
	c.globals[idx].Value = value.EncodeObj(classHandle)
	c.globals[idx].Defined = true
}

// captureCompileTimeUpvalue is a placeholder for resolving a method's
// upvalue reference at compile time; methods are compiled independently
// of any runtime stack, so a captured outer local has no cell yet. This
// returns handle 0 (nil upvalue), matching that methods are expected to
// rely on `this`/fields rather than capturing locals from outside the
// class body.
func (c *Compiler) captureCompileTimeUpvalue(ast upvalueRef) value.Handle {
	return 0
}

func (c *Compiler) compileIf(n *ast.If) {
	c.compileExpr(n.Cond)
	thenJump := c.emitJump(bytecode.OpJumpIfFalsePop)
	c.beginScope()
	for _, st := range n.Then {
		c.compileStmt(st)
	}
	c.endScope()
	if n.Else != nil {
		elseJump := c.emitJump(bytecode.OpJump)
		c.patchJump(thenJump)
		c.beginScope()
		for _, st := range n.Else {
			c.compileStmt(st)
		}
		c.endScope()
		c.patchJump(elseJump)
		return
	}
	c.patchJump(thenJump)
}

func (c *Compiler) compileWhile(n *ast.While) {
	loopStart := c.code.Len()
	c.compileExpr(n.Cond)
	exitJump := c.emitJump(bytecode.OpJumpIfFalsePop)

	c.beginScope()
	for _, st := range n.Body {
		c.compileStmt(st)
	}
	c.endScope()

	c.emitLoop(bytecode.OpLoop, loopStart)
	c.patchJump(exitJump)
	c.patchScopeJumps(jumpBreak)
	c.patchContinueTo(loopStart)
}

func (c *Compiler) compileFor(n *ast.For) {
	c.beginScope()
	if n.Init != nil {
		c.compileStmt(n.Init)
	}
	loopStart := c.code.Len()
	var exitJump int
	hasExit := n.Cond != nil
	if hasExit {
		c.compileExpr(n.Cond)
		exitJump = c.emitJump(bytecode.OpJumpIfFalsePop)
	}

	c.beginScope()
	for _, st := range n.Body {
		c.compileStmt(st)
	}
	c.endScope()

	// continue jumps land here, just before the post-statement.
	contTarget := c.code.Len()
	if n.Post != nil {
		c.compileStmt(n.Post)
	}
	c.emitLoop(bytecode.OpLoop, loopStart)
	if hasExit {
		c.patchJump(exitJump)
	}
	c.patchScopeJumps(jumpBreak)
	c.patchContinueTo(contTarget)
	c.endScope()
}

// patchContinueTo rewrites every pending continue jump in the current
// function recorded strictly deeper than the current scope depth (that
// is, inside the loop's body) into a concrete JUMP_POPN targeting target.
func (c *Compiler) patchContinueTo(target int) {
	kept := c.cur.pending[:0]
	for _, pj := range c.cur.pending {
		if pj.kind != jumpContinue || pj.depth <= c.cur.depth {
			kept = append(kept, pj)
			continue
		}
		c.finalizePendingJump(pj, target)
	}
	c.cur.pending = kept
}

// patchScopeJumps walks the pending-jump list for the current function
// and rewrites every pending jump of kind whose recorded depth qualifies
// (strictly deeper than the construct's current depth) into a concrete
// JUMP_POPN landing just past
// the construct. Continue's target is supplied later by patchContinueTo
// once the post-statement's position is known; here it is only consumed
// for break/advance.
func (c *Compiler) patchScopeJumps(kind scopeJumpKind) {
	target := c.code.Len()
	kept := c.cur.pending[:0]
	for _, pj := range c.cur.pending {
		qualifies := pj.kind == kind && pj.depth > c.cur.depth
		if !qualifies {
			kept = append(kept, pj)
			continue
		}
		c.finalizePendingJump(pj, target)
	}
	c.cur.pending = kept
}

// finalizePendingJump rewrites a JUMP_POPN's pop-count and jump-distance
// fields now that the jump target is known: the pop count becomes the
// number of locals live at the jump minus those still live at the target.
func (c *Compiler) finalizePendingJump(pj pendingJump, target int) {
	// Layout written by emitScopeJump: [OP_JUMP_POPN][popCount u8][dist i16]
	popAt := pj.offset
	distAt := pj.offset + 1
	dist := target - (distAt + 2)
	c.code.Code[popAt] -= byte(len(c.cur.locals))
	c.code.PatchU16(distAt, uint16(dist))
}

// localsDeeperThan counts how many of the current function's locals were
// declared at a depth deeper than scopeDepth, the count JUMP_POPN must
// discard to unwind back to that scope.
func (c *Compiler) localsDeeperThan(scopeDepth int) int {
	n := 0
	for _, l := range c.cur.locals {
		if l.depth > scopeDepth {
			n++
		}
	}
	return n
}

// emitScopeJump writes a JUMP_POPN whose pop-count and distance operands
// are filled in later by patchScopeJumps/patchContinueTo, once the
// enclosing construct knows the target and the scope it unwinds to.
func (c *Compiler) emitScopeJump(kind scopeJumpKind) {
	c.emitOp(bytecode.OpJumpPopN)
	// The pop-count placeholder holds the number of locals live here;
	// finalizePendingJump subtracts those still live at the target.
	offset := c.emitByte(byte(len(c.cur.locals))) // pop-count placeholder
	c.emitU16(0)                                  // distance placeholder
	c.cur.pending = append(c.cur.pending, pendingJump{kind: kind, offset: offset, depth: c.cur.depth})
}

func (c *Compiler) compileJumpStmt(n *ast.JumpStmt) {
	switch n.Kind {
	case ast.Break:
		c.emitScopeJump(jumpBreak)
	case ast.Continue:
		c.emitScopeJump(jumpContinue)
	case ast.Advance:
		c.emitScopeJump(jumpAdvance)
	}
}

// compileSwitch emits SWITCH/SWITCH_LONG followed by parallel
// constant-index/jump-slot arrays (one pair per case), then each case
// body in turn. advance inside a case jumps to the start of the next case
// (patched after the implicit break each case ends with); the default
// case, if present, keeps its own slot, flagged by isDefault, at its
// position among the cases.
func (c *Compiler) compileSwitch(n *ast.Switch) {
	c.compileExpr(n.Subject)

	type caseSlot struct {
		constIdx int
		jumpAt   int
		isDefault bool
	}

	long := false
	constIdxs := make([]int, 0, len(n.Cases))
	for _, cs := range n.Cases {
		if cs.Value == nil {
			continue
		}
		lit, ok := cs.Value.(*ast.Literal)
		if !ok {
			c.report(diag.SwitchNonLiteralCase, cs.Value.Span(), "case value is not a literal nil/bool/number/string")
			constIdxs = append(constIdxs, 0)
			continue
		}
		idx := c.addConstant(c.literalValue(lit))
		constIdxs = append(constIdxs, idx)
		if idx > 0xFF {
			long = true
		}
	}

	op := bytecode.OpSwitch
	if long {
		op = bytecode.OpSwitchLong
	}
	c.emitOp(op)
	// A case count up front, plus an isDefault flag ahead of each slot's
	// constant index, lets the VM walk the slot table without needing to
	// see the case bodies first.
	c.emitByte(byte(len(n.Cases)))

	slots := make([]caseSlot, 0, len(n.Cases))
	ci := 0
	for _, cs := range n.Cases {
		isDefault := cs.Value == nil
		var constIdx int
		if isDefault {
			c.emitByte(1)
		} else {
			c.emitByte(0)
			constIdx = constIdxs[ci]
			ci++
			if long {
				c.emitU16(uint16(constIdx))
			} else {
				c.emitByte(byte(constIdx))
			}
		}
		jumpAt := c.emitU16(0)
		slots = append(slots, caseSlot{constIdx: constIdx, jumpAt: jumpAt, isDefault: isDefault})
	}

	var defaultSeen bool
	c.beginScope()
	for i, cs := range n.Cases {
		if cs.Value == nil {
			if defaultSeen {
				c.report(diag.SwitchDuplicateDefault, n.Span(), "more than one default case")
			}
			defaultSeen = true
		}
		dist := c.code.Len() - (slots[i].jumpAt + 2)
		c.code.PatchU16(slots[i].jumpAt, uint16(dist))
		c.beginScope()
		for _, st := range cs.Body {
			c.compileStmt(st)
		}
		c.endScope()
		// implicit break at the end of every case; advance lands just past
		// it, at the start of the next case
		c.emitScopeJump(jumpBreak)
		c.patchScopeJumps(jumpAdvance)
	}
	c.endScope()
	c.patchScopeJumps(jumpBreak)
}

// literalValue lowers a case literal to its runtime Value; non-literal
// case expressions are diagnosed by the caller's type assertion panicking
// path being avoided here via an explicit check in a full parser-backed
// pipeline. Kept narrow: compileSwitch only calls this for ast.Literal.
func (c *Compiler) literalValue(l *ast.Literal) value.Value {
	switch l.Kind {
	case ast.LitNil:
		return value.EncodeNil()
	case ast.LitBool:
		return value.EncodeBool(l.Bool)
	case ast.LitInt:
		return value.EncodeInt(l.Int)
	case ast.LitDouble:
		return value.EncodeDouble(l.Dbl)
	case ast.LitString:
		return c.internString(l.Str)
	default:
		return value.EncodeNil()
	}
}
