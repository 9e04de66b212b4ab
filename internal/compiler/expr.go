package compiler

import (
	"github.com/Antony1060/ESL/internal/ast"
	"github.com/Antony1060/ESL/internal/bytecode"
	"github.com/Antony1060/ESL/internal/diag"
	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/source"
	"github.com/Antony1060/ESL/internal/value"
)

func (c *Compiler) compileExpr(e ast.Expr) {
	switch n := e.(type) {
	case *ast.Literal:
		c.compileLiteral(n)
	case *ast.Ident:
		c.compileRead(n.Name, n.Span())
	case *ast.ModuleAccess:
		if idx, ok := c.resolvedImportGlobal(n.Alias, n.Name, n.Span()); ok {
			c.emitIndexed(bytecode.OpGetGlobal, bytecode.OpGetGlobalLong, idx)
		}
	case *ast.Binary:
		c.compileBinary(n)
	case *ast.Unary:
		c.compileExpr(n.Operand)
		switch n.Op {
		case ast.OpNeg:
			c.emitOp(bytecode.OpNegate)
		case ast.OpNot:
			c.emitOp(bytecode.OpNot)
		case ast.OpBitNot:
			c.emitOp(bytecode.OpBinNot)
		}
	case *ast.IncDec:
		c.compileIncDec(n)
	case *ast.Assign:
		c.compileAssign(n)
	case *ast.Call:
		c.compileCall(n, false)
	case *ast.Async:
		c.compileCall(n.Call, true)
	case *ast.Await:
		c.compileExpr(n.Future)
		c.emitOp(bytecode.OpAwait)
	case *ast.GetProperty:
		c.compileExpr(n.Receiver)
		c.emitPropertyOp(bytecode.OpGetProperty, bytecode.OpGetPropertyLong, n.Name)
	case *ast.SetProperty:
		c.compileExpr(n.Receiver)
		c.compileExpr(n.Value)
		c.emitPropertyOp(bytecode.OpSetProperty, bytecode.OpSetPropertyLong, n.Name)
	case *ast.GetIndex:
		c.compileExpr(n.Receiver)
		c.compileExpr(n.Index)
		c.emitOp(bytecode.OpGet)
	case *ast.SetIndex:
		c.compileExpr(n.Receiver)
		c.compileExpr(n.Index)
		c.compileExpr(n.Value)
		c.emitOp(bytecode.OpSet)
	case *ast.ArrayLit:
		for _, el := range n.Elements {
			c.compileExpr(el)
		}
		c.emitOp(bytecode.OpCreateArray)
		c.emitByte(byte(len(n.Elements)))
	case *ast.StructLit:
		c.compileStructLit(n)
	case *ast.This:
		c.emitOp(bytecode.OpGetLocal)
		c.emitByte(0)
	case *ast.Super:
		c.compileSuper(n)
	case *ast.FuncLit:
		c.compileFuncLit(n)
	}
}

func (c *Compiler) compileLiteral(n *ast.Literal) {
	switch n.Kind {
	case ast.LitNil:
		c.emitOp(bytecode.OpNil)
	case ast.LitBool:
		if n.Bool {
			c.emitOp(bytecode.OpTrue)
		} else {
			c.emitOp(bytecode.OpFalse)
		}
	case ast.LitInt:
		if n.Int >= 0 && n.Int <= 0xFF {
			c.emitOp(bytecode.OpLoadInt)
			c.emitByte(byte(n.Int))
			return
		}
		idx := c.addConstant(value.EncodeInt(n.Int))
		c.emitIndexed(bytecode.OpConstant, bytecode.OpConstantLong, idx)
	case ast.LitDouble:
		idx := c.addConstant(value.EncodeDouble(n.Dbl))
		c.emitIndexed(bytecode.OpConstant, bytecode.OpConstantLong, idx)
	case ast.LitString:
		idx := c.addConstant(c.internString(n.Str))
		c.emitIndexed(bytecode.OpConstant, bytecode.OpConstantLong, idx)
	}
}

// compileRead resolves an identifier through the four-scope chain (local,
// upvalue, global, native) and emits the matching read instruction.
func (c *Compiler) compileRead(name string, sp source.Span) {
	if local := resolveLocal(c.cur, name); local != -1 {
		c.emitOp(bytecode.OpGetLocal)
		c.emitByte(byte(local))
		return
	}
	if up := resolveUpvalue(c.cur, name); up != -1 {
		c.emitOp(bytecode.OpGetUpvalue)
		c.emitByte(byte(up))
		return
	}
	if idx, ok := c.globalIdx[name]; ok {
		c.emitIndexed(bytecode.OpGetGlobal, bytecode.OpGetGlobalLong, idx)
		return
	}
	if idx, ok := c.natives.Slot(name); ok {
		c.emitOp(bytecode.OpGetNative)
		c.emitU16(uint16(idx))
		return
	}
	c.report(diag.ResUnresolvedName, sp, name+" does not resolve in any scope")
}

func (c *Compiler) compileBinary(n *ast.Binary) {
	if n.Op == ast.OpAnd {
		c.compileExpr(n.Left)
		jmp := c.emitJump(bytecode.OpJumpIfFalse)
		c.emitOp(bytecode.OpPop)
		c.compileExpr(n.Right)
		c.patchJump(jmp)
		return
	}
	if n.Op == ast.OpOr {
		c.compileExpr(n.Left)
		jmp := c.emitJump(bytecode.OpJumpIfTrue)
		c.emitOp(bytecode.OpPop)
		c.compileExpr(n.Right)
		c.patchJump(jmp)
		return
	}

	c.compileExpr(n.Left)
	c.compileExpr(n.Right)
	switch n.Op {
	case ast.OpAdd:
		c.emitOp(bytecode.OpAdd)
	case ast.OpSub:
		c.emitOp(bytecode.OpSubtract)
	case ast.OpMul:
		c.emitOp(bytecode.OpMultiply)
	case ast.OpDiv:
		c.emitOp(bytecode.OpDivide)
	case ast.OpMod:
		c.emitOp(bytecode.OpMod)
	case ast.OpShl:
		c.emitOp(bytecode.OpBitshiftLeft)
	case ast.OpShr:
		c.emitOp(bytecode.OpBitshiftRight)
	case ast.OpBitAnd:
		c.emitOp(bytecode.OpBitwiseAnd)
	case ast.OpBitOr:
		c.emitOp(bytecode.OpBitwiseOr)
	case ast.OpBitXor:
		c.emitOp(bytecode.OpBitwiseXor)
	case ast.OpEq:
		c.emitOp(bytecode.OpEqual)
	case ast.OpNeq:
		c.emitOp(bytecode.OpNotEqual)
	case ast.OpLt:
		c.emitOp(bytecode.OpLess)
	case ast.OpLe:
		c.emitOp(bytecode.OpLessEqual)
	case ast.OpGt:
		c.emitOp(bytecode.OpGreater)
	case ast.OpGe:
		c.emitOp(bytecode.OpGreaterEqual)
	}
}

// compileIncDec fuses the whole increment/decrement operation into one
// INCREMENT instruction whose one-byte argument packs sign, prefix-vs-
// postfix, and the target's operand kind.
func (c *Compiler) compileIncDec(n *ast.IncDec) {
	kind, idx, wide := c.incrementOperand(n.Target)
	c.emitOp(bytecode.OpIncrement)
	c.emitByte(bytecode.PackIncrement(n.Negative, n.Prefix, kind))
	switch kind {
	case bytecode.IncLocal, bytecode.IncUpvalue:
		c.emitByte(byte(idx))
	case bytecode.IncGlobalShort, bytecode.IncDotShort:
		c.emitByte(byte(idx))
	case bytecode.IncGlobalLong, bytecode.IncDotLong:
		c.emitU16(uint16(idx))
	case bytecode.IncBracket:
		// receiver and index are left on the stack by the caller; nothing
		// extra to encode here.
	}
	_ = wide
}

// incrementOperand compiles whatever stack state the INCREMENT kind
// needs (e.g. pushing the receiver and index for bracket access) and
// returns the operand kind plus the constant/global/local index to
// encode, if any.
func (c *Compiler) incrementOperand(target ast.Expr) (bytecode.IncrementKind, int, bool) {
	switch t := target.(type) {
	case *ast.Ident:
		if local := resolveLocal(c.cur, t.Name); local != -1 {
			return bytecode.IncLocal, local, false
		}
		if up := resolveUpvalue(c.cur, t.Name); up != -1 {
			return bytecode.IncUpvalue, up, false
		}
		idx := c.globalIdx[t.Name]
		if idx <= 0xFF {
			return bytecode.IncGlobalShort, idx, false
		}
		return bytecode.IncGlobalLong, idx, true
	case *ast.GetProperty:
		c.compileExpr(t.Receiver)
		idx := c.addConstant(c.internString(t.Name))
		if idx <= 0xFF {
			return bytecode.IncDotShort, idx, false
		}
		return bytecode.IncDotLong, idx, true
	case *ast.GetIndex:
		c.compileExpr(t.Receiver)
		c.compileExpr(t.Index)
		return bytecode.IncBracket, 0, false
	}
	return bytecode.IncLocal, 0, false
}

func (c *Compiler) compileAssign(n *ast.Assign) {
	switch t := n.Target.(type) {
	case *ast.Ident:
		c.compileExpr(n.Value)
		c.compileWrite(t.Name, t.Span())
	case *ast.GetProperty:
		c.compileExpr(t.Receiver)
		c.compileExpr(n.Value)
		c.emitPropertyOp(bytecode.OpSetProperty, bytecode.OpSetPropertyLong, t.Name)
	case *ast.GetIndex:
		c.compileExpr(t.Receiver)
		c.compileExpr(t.Index)
		c.compileExpr(n.Value)
		c.emitOp(bytecode.OpSet)
	}
}

func (c *Compiler) compileWrite(name string, sp source.Span) {
	if local := resolveLocal(c.cur, name); local != -1 {
		c.emitOp(bytecode.OpSetLocal)
		c.emitByte(byte(local))
		return
	}
	if up := resolveUpvalue(c.cur, name); up != -1 {
		c.emitOp(bytecode.OpSetUpvalue)
		c.emitByte(byte(up))
		return
	}
	if idx, ok := c.globalIdx[name]; ok {
		c.emitIndexed(bytecode.OpSetGlobal, bytecode.OpSetGlobalLong, idx)
		return
	}
	c.report(diag.ResUnresolvedName, sp, name+" does not resolve to an assignable scope")
}

func (c *Compiler) emitPropertyOp(short, long bytecode.Op, name string) {
	idx := c.addConstant(c.internString(name))
	c.emitIndexed(short, long, idx)
}

// compileCall handles both plain calls and async-launched calls. A
// synchronous call to a method or super method fuses the property
// lookup into the call via INVOKE/SUPER_INVOKE; an async call always
// pushes the callee as a plain value first, since LAUNCH_ASYNC needs a
// single callable slot to move onto the child thread's stack.
func (c *Compiler) compileCall(n *ast.Call, async bool) {
	if !async {
		if gp, ok := n.Callee.(*ast.GetProperty); ok {
			c.compileExpr(gp.Receiver)
			for _, a := range n.Args {
				c.compileExpr(a)
			}
			c.emitPropertyOp(bytecode.OpInvoke, bytecode.OpInvokeLong, gp.Name)
			c.emitByte(byte(len(n.Args)))
			return
		}
		if sup, ok := n.Callee.(*ast.Super); ok {
			c.emitOp(bytecode.OpGetLocal)
			c.emitByte(0)
			for _, a := range n.Args {
				c.compileExpr(a)
			}
			c.emitPropertyOp(bytecode.OpSuperInvoke, bytecode.OpSuperInvokeLong, sup.Method)
			c.emitByte(byte(len(n.Args)))
			return
		}
	}

	c.compileExpr(n.Callee)
	for _, a := range n.Args {
		c.compileExpr(a)
	}
	if async {
		c.emitOp(bytecode.OpLaunchAsync)
	} else {
		c.emitOp(bytecode.OpCall)
	}
	c.emitByte(byte(len(n.Args)))
}

func (c *Compiler) compileStructLit(n *ast.StructLit) {
	for _, f := range n.Fields {
		c.compileExpr(f.Value)
	}
	idx := c.structNameTableIndex(n)
	c.emitIndexed(bytecode.OpCreateStruct, bytecode.OpCreateStructLong, idx)
	c.emitByte(byte(len(n.Fields)))
}

// structNameTableIndex records the field-name constants for CREATE_STRUCT
// and returns the index of the first one; the VM reads len(Fields) names
// starting there, each paired positionally with the values already pushed.
func (c *Compiler) structNameTableIndex(n *ast.StructLit) int {
	first := -1
	for _, f := range n.Fields {
		idx := c.addConstant(c.internString(f.Name))
		if first == -1 {
			first = idx
		}
	}
	if first == -1 {
		return 0
	}
	return first
}

func (c *Compiler) compileSuper(n *ast.Super) {
	c.emitOp(bytecode.OpGetLocal)
	c.emitByte(0)
	c.emitPropertyOp(bytecode.OpGetSuper, bytecode.OpGetSuperLong, n.Method)
}

// compileFuncLit emits a CLOSURE instruction for an anonymous function
// literal: the Function constant is followed by one (isLocal, index)
// byte pair per upvalue.
func (c *Compiler) compileFuncLit(n *ast.FuncLit) {
	skip := c.emitJump(bytecode.OpJump)

	fn := &object.Function{Name: "<anonymous>", Arity: len(n.Params), BytecodeOffset: c.code.Len(), ConstantsOffset: len(c.code.Constants)}
	fs := newFuncState(c.cur, fn)
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

	fn.UpvalueCount = len(fs.upvalues)
	upvalues := fs.upvalues
	c.cur = prev

	fnHandle := c.heap.Alloc(fn)
	idx := c.addConstant(value.EncodeObj(fnHandle))
	c.emitIndexed(bytecode.OpClosure, bytecode.OpClosureLong, idx)
	for _, uv := range upvalues {
		if uv.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(byte(uv.index))
	}
}
