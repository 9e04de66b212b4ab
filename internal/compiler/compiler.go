// Package compiler lowers a topologically ordered list of parsed modules
// into a single shared code block, a main-entry closure that runs every
// module's top-level statements in order, and a populated globals array.
// Diagnostics are reported through internal/diag rather than by panicking,
// so one run can surface many independent errors.
package compiler

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/Antony1060/ESL/internal/ast"
	"github.com/Antony1060/ESL/internal/bytecode"
	"github.com/Antony1060/ESL/internal/diag"
	"github.com/Antony1060/ESL/internal/gc"
	"github.com/Antony1060/ESL/internal/natives"
	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/source"
	"github.com/Antony1060/ESL/internal/value"
)

// localMax bounds a single function's locals array, matching the 8-bit
// GET_LOCAL/SET_LOCAL operand.
const localMax = 256

// Global is one slot in the process-wide globals array: a name, its
// current value, and whether it has been initialized yet.
type Global struct {
	Name    string
	Value   value.Value
	Defined bool
}

// Result is everything the VM needs to start running: the shared code
// block, the closure that executes every module's top-level statements in
// order, and the populated globals array.
type Result struct {
	Code    *bytecode.CodeBlock
	Main    value.Handle // a Closure
	Globals []Global
}

type local struct {
	name  string
	depth int
}

type upvalueRef struct {
	isLocal bool
	index   int
}

type scopeJumpKind uint8

const (
	jumpBreak scopeJumpKind = iota
	jumpContinue
	jumpAdvance
)

type pendingJump struct {
	kind   scopeJumpKind
	offset int // position of the jump's i16 operand
	depth  int // scope depth active when the jump was emitted
}

// funcState tracks one function body being compiled: its locals, upvalue
// table, enclosing function (nil for the implicit module-runner function),
// and pending break/continue/advance jumps for the loop or switch
// currently open in it.
type funcState struct {
	enclosing *funcState

	fn       *object.Function
	locals   []local
	depth    int
	upvalues []upvalueRef

	isGlobalFn bool // global fn decl: forbidden from capturing upvalues

	pending []pendingJump
}

func newFuncState(enclosing *funcState, fn *object.Function) *funcState {
	fs := &funcState{enclosing: enclosing, fn: fn}
	// Slot 0 is always the receiver/this; reserving it up front means
	// resolveLocal never needs a special case for it.
	fs.locals = append(fs.locals, local{name: "", depth: 0})
	return fs
}

// Compiler holds everything needed across an entire compilation run: the
// shared code block and constant pool, the growing globals array, the
// native registry used for GET_NATIVE resolution, the heap used to
// allocate compile-time objects (closures, classes, interned strings),
// and the diagnostic sink.
type Compiler struct {
	code    *bytecode.CodeBlock
	heap    *gc.Heap
	natives *natives.Table
	rep     diag.Reporter

	globals    []Global
	globalIdx  map[string]int
	moduleDecl map[string]map[string]int // module path -> (top-level name -> global index); every top-level name counts, Module.Exports is not consulted

	cur    *funcState
	module *ast.Module // module whose statements are currently being compiled
}

// New constructs a Compiler bound to a fresh code block and heap.
func New(heap *gc.Heap, nativeTable *natives.Table, rep diag.Reporter) *Compiler {
	return &Compiler{
		code:       bytecode.NewCodeBlock(),
		heap:       heap,
		natives:    nativeTable,
		rep:        rep,
		globalIdx:  make(map[string]int),
		moduleDecl: make(map[string]map[string]int),
	}
}

// Compile lowers every module (already topologically sorted by the
// caller) into one Result. Each module's top-level declarations are
// reserved as globals before any module's statements are compiled, so
// forward references across modules resolve even though the two-pass
// rule is normally described per module.
func (c *Compiler) Compile(modules []*ast.Module) Result {
	for _, m := range modules {
		c.reserveModuleGlobals(m)
	}

	mainFn := &object.Function{Name: "<module-main>", BytecodeOffset: c.code.Len(), ConstantsOffset: len(c.code.Constants)}
	c.cur = newFuncState(nil, mainFn)

	for _, m := range modules {
		c.compileModule(m)
	}
	c.emitOp(bytecode.OpNil)
	c.emitOp(bytecode.OpReturn)
	mainFn.UpvalueCount = len(c.cur.upvalues)

	fnHandle := c.heap.Alloc(mainFn)
	closure := &object.Closure{Function: fnHandle}
	mainHandle := c.heap.Alloc(closure)

	return Result{Code: c.code, Main: mainHandle, Globals: c.globals}
}

// reserveModuleGlobals implements the two-pass rule: before any statement
// in the module is compiled, every top-level name gets a globals slot
// initialized to nil with defined=false, so later declarations (in this
// module or one that imports it) can forward-reference it.
func (c *Compiler) reserveModuleGlobals(m *ast.Module) {
	exports := make(map[string]int, len(m.TopDecl))
	for _, td := range m.TopDecl {
		if _, dup := exports[td.Name]; dup {
			c.report(diag.ResDuplicateTopLevel, source.Span{File: m.File}, "top-level symbol "+td.Name+" declared twice in module "+m.Path)
			continue
		}
		idx := c.declareGlobal(td.Name)
		exports[td.Name] = idx
	}
	c.moduleDecl[m.Path] = exports
	c.checkImports(m)
}

// checkImports diagnoses the import-resolution errors named in the name
// resolution rules: two unaliased imports exporting the same name, an
// unaliased import colliding with a local top-level name, and two
// imports sharing an alias.
func (c *Compiler) checkImports(m *ast.Module) {
	seenAlias := make(map[string]bool)
	seenUnaliasedExport := make(map[string]string) // exported name -> module path
	for _, dep := range m.Deps {
		if dep.Alias != "" {
			if seenAlias[dep.Alias] {
				c.report(diag.ResDuplicateAlias, dep.Span, "import alias "+dep.Alias+" used more than once")
			}
			seenAlias[dep.Alias] = true
			continue
		}
		exports := c.moduleDecl[dep.Module]
		for name := range exports {
			if _, local := c.findTopLevel(m, name); local {
				c.report(diag.ResImportCollidesLocal, dep.Span, "import of "+name+" from "+dep.Module+" collides with a local top-level symbol")
			}
			if prior, ok := seenUnaliasedExport[name]; ok && prior != dep.Module {
				c.report(diag.ResImportCollision, dep.Span, "name "+name+" is exported by both "+prior+" and "+dep.Module)
			}
			seenUnaliasedExport[name] = dep.Module
		}
	}
}

func (c *Compiler) findTopLevel(m *ast.Module, name string) (ast.TopLevel, bool) {
	for _, td := range m.TopDecl {
		if td.Name == name {
			return td, true
		}
	}
	return ast.TopLevel{}, false
}

func (c *Compiler) declareGlobal(name string) int {
	if idx, ok := c.globalIdx[name]; ok {
		return idx
	}
	idx := len(c.globals)
	c.globals = append(c.globals, Global{Name: name, Value: value.EncodeNil()})
	c.globalIdx[name] = idx
	return idx
}

func (c *Compiler) defineGlobal(idx int, v value.Value) {
	c.globals[idx].Value = v
	c.globals[idx].Defined = true
}

func (c *Compiler) compileModule(m *ast.Module) {
	c.module = m
	for _, s := range m.Stmts {
		c.compileStmt(s)
	}
}

// resolvedImportGlobal resolves an alias::name module-access expression to
// the global slot the target module reserved for name.
func (c *Compiler) resolvedImportGlobal(alias, name string, sp source.Span) (int, bool) {
	if c.module == nil {
		return 0, false
	}
	for _, dep := range c.module.Deps {
		if dep.Alias == alias {
			if idx, ok := c.moduleDecl[dep.Module][name]; ok {
				return idx, true
			}
			c.report(diag.ResUnresolvedName, sp, name+" is not exported by "+dep.Module)
			return 0, false
		}
	}
	c.report(diag.ResUnresolvedName, sp, "no import aliased "+alias)
	return 0, false
}

// --- emission helpers ---

func (c *Compiler) emitOp(op bytecode.Op) int { return c.code.WriteOp(op) }

func (c *Compiler) emitByte(b byte) int { return c.code.WriteByte(b) }

func (c *Compiler) emitU16(v uint16) int { return c.code.WriteU16(v) }

// emitIndexed chooses the short or long opcode form depending on whether
// idx fits in a byte, matching the spec's 8-bit/16-bit operand rule. The
// long form's 16-bit operand is narrowed with safecast.Conv rather than a
// bare uint16(idx) cast, so a constant pool or globals array that somehow
// grew past 65535 entries is reported (SysGlobalPoolOverflow for the
// GET/SET/DEFINE_GLOBAL forms, SysConstantPoolOverflow for everything
// else) instead of silently wrapping around into a different, wrong index.
func (c *Compiler) emitIndexed(short, long bytecode.Op, idx int) {
	if idx <= 0xFF {
		c.emitOp(short)
		c.emitByte(byte(idx))
		return
	}
	u16, err := safecast.Conv[uint16](idx)
	if err != nil {
		code := diag.SysConstantPoolOverflow
		switch short {
		case bytecode.OpGetGlobal, bytecode.OpSetGlobal, bytecode.OpDefineGlobal:
			code = diag.SysGlobalPoolOverflow
		}
		c.report(code, source.Span{}, fmt.Sprintf("index %d does not fit in 16 bits", idx))
		return
	}
	c.emitOp(long)
	c.emitU16(u16)
}

// emitJump writes a jump opcode with a placeholder 16-bit offset and
// returns the offset's position for a later patchJump call.
func (c *Compiler) emitJump(op bytecode.Op) int {
	c.emitOp(op)
	return c.emitU16(0)
}

func (c *Compiler) patchJump(at int) {
	dist := c.code.Len() - (at + 2)
	c.code.PatchU16(at, uint16(dist))
}

func (c *Compiler) emitLoop(op bytecode.Op, loopStart int) {
	c.emitOp(op)
	dist := c.code.Len() + 2 - loopStart
	c.emitU16(uint16(dist))
}

func (c *Compiler) addConstant(v value.Value) int { return c.code.AddConstant(v) }

func (c *Compiler) internString(s string) value.Value {
	return value.EncodeObj(c.heap.InternString(s))
}

// --- scopes and locals ---

func (c *Compiler) beginScope() { c.cur.depth++ }

// endScope pops every local declared at or deeper than the scope just
// left, emitting POP/POPN for plain locals. A local that was captured by
// a nested closure has already been promoted to an Upvalue cell, so
// popping its stack slot does not need to special-case it: the cell
// outlives the slot.
func (c *Compiler) endScope() {
	c.cur.depth--
	n := 0
	for len(c.cur.locals) > 0 && c.cur.locals[len(c.cur.locals)-1].depth > c.cur.depth {
		c.cur.locals = c.cur.locals[:len(c.cur.locals)-1]
		n++
	}
	switch {
	case n == 1:
		c.emitOp(bytecode.OpPop)
	case n > 1:
		c.emitOp(bytecode.OpPopN)
		c.emitByte(byte(n))
	}
}

func (c *Compiler) declareLocal(name string, sp source.Span) {
	if len(c.cur.locals) >= localMax {
		c.report(diag.SysTooManyLocals, sp, "function exceeds the maximum number of locals")
		return
	}
	for i := len(c.cur.locals) - 1; i >= 0; i-- {
		l := c.cur.locals[i]
		if l.depth < c.cur.depth {
			break
		}
		if l.name == name {
			c.report(diag.ResShadowedLocal, sp, "local "+name+" redeclared in the same scope")
			return
		}
	}
	c.cur.locals = append(c.cur.locals, local{name: name, depth: c.cur.depth})
}

func resolveLocal(fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i
		}
	}
	return -1
}

// resolveUpvalue recursively searches the enclosing-function chain. The
// VM promotes a captured local to a shared heap cell itself the first
// time CLOSURE runs over it (see execClosure/captureLocal); this just
// records, for each intermediate function along the way, a compact
// upvalue record pointing at the local or at the next function's own
// upvalue slot.
func resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := resolveLocal(fs.enclosing, name); local != -1 {
		return addUpvalue(fs, local, true)
	}
	if up := resolveUpvalue(fs.enclosing, name); up != -1 {
		return addUpvalue(fs, up, false)
	}
	return -1
}

func addUpvalue(fs *funcState, index int, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{isLocal: isLocal, index: index})
	return len(fs.upvalues) - 1
}

// --- error reporting ---

func (c *Compiler) report(code diag.Code, sp source.Span, msg string) {
	if c.rep != nil {
		c.rep.Report(code, diag.SevError, sp, msg, nil)
	}
}
