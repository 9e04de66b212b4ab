package diag

import "fmt"

// Code is a stable, compact identifier for a compile-time diagnostic or
// system error. Values are grouped by the compiler phase that raises
// them; gaps are left for future additions within a phase.
type Code uint16

const (
	UnknownCode Code = 0

	// Name resolution.
	ResShadowedLocal       Code = 1001 // local redeclared in the same scope
	ResDuplicateTopLevel   Code = 1002 // top-level symbol declared twice in a module
	ResImportCollision     Code = 1003 // two unaliased imports export the same name
	ResImportCollidesLocal Code = 1004 // unaliased import collides with a local top-level symbol
	ResDuplicateAlias      Code = 1005 // two imports share an alias
	ResUnresolvedName      Code = 1006 // identifier resolves in no scope
	ResUseBeforeDefinition Code = 1007 // global referenced before its DEFINE_GLOBAL ran

	// Classes.
	ClassUnknownSuper       Code = 2001 // superclass name does not resolve to a global
	ClassSuperNotAClass     Code = 2002 // superclass slot does not hold a Class value
	ClassConstructorReturns Code = 2003 // constructor method returns a value

	// Functions and closures.
	FuncGlobalCapturesUpvalue Code = 3001 // global fn declaration captures an upvalue

	// Switch compilation.
	SwitchNonLiteralCase   Code = 4001 // case value is not a literal nil/bool/number/string
	SwitchDuplicateDefault Code = 4002 // more than one default case (non-fatal)

	// Compile-time system errors: recoverable only by abandoning the
	// current function, but still reported.
	SysConstantPoolOverflow Code = 9001 // constant pool index does not fit in 16 bits
	SysTooManyLocals        Code = 9002 // function exceeds LOCAL_MAX locals
	SysTooManyUpvalues      Code = 9003 // function exceeds the upvalue table size
	SysGlobalPoolOverflow   Code = 9004 // globals array index does not fit in 16 bits
	SysJumpTooFar           Code = 9005 // jump offset does not fit in 16 bits
)

// String returns a stable "D1001"-style rendering used in Bag.Sort and in
// diagnostic output.
func (c Code) String() string {
	return fmt.Sprintf("D%d", uint16(c))
}
