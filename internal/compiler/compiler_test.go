package compiler_test

import (
	"testing"

	"github.com/Antony1060/ESL/internal/ast"
	"github.com/Antony1060/ESL/internal/compiler"
	"github.com/Antony1060/ESL/internal/diag"
	"github.com/Antony1060/ESL/internal/gc"
	"github.com/Antony1060/ESL/internal/natives"
)

func ident(name string) *ast.Ident { return &ast.Ident{Name: name} }

func intLit(n int32) *ast.Literal { return &ast.Literal{Kind: ast.LitInt, Int: n} }

func compile(modules ...*ast.Module) (compiler.Result, *diag.Bag) {
	bag := diag.NewBag(100)
	c := compiler.New(gc.NewHeap(), natives.DefaultTable(), diag.BagReporter{Bag: bag})
	return c.Compile(modules), bag
}

// A top-level var reading another one declared after it (a reads b)
// should compile with no diagnostics and reserve exactly two global
// slots, since both names are reserved before any statement compiles.
func TestTwoPassGlobalsForwardReference(t *testing.T) {
	module := &ast.Module{
		Path: "main",
		TopDecl: []ast.TopLevel{
			{Name: "a", Kind: ast.DeclVar},
			{Name: "b", Kind: ast.DeclVar},
		},
		Stmts: []ast.Stmt{
			&ast.VarDecl{Name: "a", Value: ident("b")},
			&ast.VarDecl{Name: "b", Value: intLit(1)},
		},
	}

	result, bag := compile(module)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	if len(result.Globals) != 2 {
		t.Fatalf("expected 2 globals reserved, got %d", len(result.Globals))
	}
}

// Declaring the same top-level name twice in one module must be reported
// as ResDuplicateTopLevel rather than silently shadowing.
func TestDuplicateTopLevelNameReported(t *testing.T) {
	module := &ast.Module{
		Path: "main",
		TopDecl: []ast.TopLevel{
			{Name: "x", Kind: ast.DeclVar},
			{Name: "x", Kind: ast.DeclVar},
		},
		Stmts: []ast.Stmt{
			&ast.VarDecl{Name: "x", Value: intLit(1)},
			&ast.VarDecl{Name: "x", Value: intLit(2)},
		},
	}

	_, bag := compile(module)
	if !bag.HasErrors() {
		t.Fatal("expected a duplicate top-level diagnostic, got none")
	}
	found := false
	for _, d := range bag.Items() {
		if d.Code == diag.ResDuplicateTopLevel {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ResDuplicateTopLevel among diagnostics, got %v", bag.Items())
	}
}

// An identifier that resolves in no scope (no local, upvalue, global, or
// native of that name) must be reported as ResUnresolvedName.
func TestUnresolvedIdentifierReported(t *testing.T) {
	module := &ast.Module{
		Path: "main",
		Stmts: []ast.Stmt{
			&ast.Return{Value: ident("doesNotExist")},
		},
	}

	_, bag := compile(module)
	if !bag.HasErrors() {
		t.Fatal("expected an unresolved-name diagnostic, got none")
	}
	found := false
	for _, d := range bag.Items() {
		if d.Code == diag.ResUnresolvedName {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ResUnresolvedName among diagnostics, got %v", bag.Items())
	}
}

// Redeclaring a local name in the same block scope is a diagnostic, but
// shadowing it in a nested block is not.
func TestShadowedLocalInSameScopeReported(t *testing.T) {
	module := &ast.Module{
		Path: "main",
		Stmts: []ast.Stmt{
			&ast.Block{Stmts: []ast.Stmt{
				&ast.VarDecl{Name: "v", Value: intLit(1)},
				&ast.VarDecl{Name: "v", Value: intLit(2)},
				&ast.Return{Value: ident("v")},
			}},
		},
	}

	_, bag := compile(module)
	found := false
	for _, d := range bag.Items() {
		if d.Code == diag.ResShadowedLocal {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ResShadowedLocal among diagnostics, got %v", bag.Items())
	}
}

func TestShadowedLocalInNestedBlockAllowed(t *testing.T) {
	module := &ast.Module{
		Path: "main",
		Stmts: []ast.Stmt{
			&ast.Block{Stmts: []ast.Stmt{
				&ast.VarDecl{Name: "v", Value: intLit(1)},
				&ast.If{
					Cond: &ast.Literal{Kind: ast.LitBool, Bool: true},
					Then: []ast.Stmt{
						&ast.VarDecl{Name: "v", Value: intLit(2)},
					},
				},
				&ast.Return{Value: ident("v")},
			}},
		},
	}

	_, bag := compile(module)
	if bag.HasErrors() {
		t.Fatalf("nested-block shadowing should not error, got %v", bag.Items())
	}
}

// Two modules where the second imports the first's export must resolve
// the export's global index without a diagnostic.
func TestCrossModuleImportResolves(t *testing.T) {
	lib := &ast.Module{
		Path:    "lib",
		TopDecl: []ast.TopLevel{{Name: "answer", Kind: ast.DeclVar}},
		Stmts: []ast.Stmt{
			&ast.VarDecl{Name: "answer", Value: intLit(42)},
		},
	}
	main := &ast.Module{
		Path: "main",
		Deps: []ast.Import{{Module: "lib", Alias: "lib"}},
		Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.ModuleAccess{Alias: "lib", Name: "answer"}},
		},
	}

	_, bag := compile(lib, main)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
}

// Two unaliased imports that export the same name collide.
func TestUnaliasedImportCollisionReported(t *testing.T) {
	a := &ast.Module{
		Path:    "a",
		TopDecl: []ast.TopLevel{{Name: "shared", Kind: ast.DeclVar}},
		Stmts:   []ast.Stmt{&ast.VarDecl{Name: "shared", Value: intLit(1)}},
	}
	b := &ast.Module{
		Path:    "b",
		TopDecl: []ast.TopLevel{{Name: "shared", Kind: ast.DeclVar}},
		Stmts:   []ast.Stmt{&ast.VarDecl{Name: "shared", Value: intLit(2)}},
	}
	main := &ast.Module{
		Path:  "main",
		Deps:  []ast.Import{{Module: "a"}, {Module: "b"}},
		Stmts: []ast.Stmt{&ast.Return{Value: intLit(0)}},
	}

	_, bag := compile(a, b, main)
	found := false
	for _, d := range bag.Items() {
		if d.Code == diag.ResImportCollision {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ResImportCollision among diagnostics, got %v", bag.Items())
	}
}

// A class declaration with a method body must not fall through into the
// next method's bytecode: Compile should at least succeed without error
// for a two-method class, which regressed in an earlier version of the
// method-emission loop.
func TestClassWithTwoMethodsCompiles(t *testing.T) {
	module := &ast.Module{
		Path:    "main",
		TopDecl: []ast.TopLevel{{Name: "Box", Kind: ast.DeclClass}},
		Stmts: []ast.Stmt{
			&ast.ClassDecl{
				Name: "Box",
				Methods: []ast.Method{
					{
						Name:   "init",
						Kind:   ast.MethodConstructor,
						Params: []string{"v"},
						Body: []ast.Stmt{
							&ast.ExprStmt{X: &ast.SetProperty{Receiver: &ast.This{}, Name: "v", Value: ident("v")}},
						},
					},
					{
						Name: "get",
						Kind: ast.MethodPlain,
						Body: []ast.Stmt{
							&ast.Return{Value: &ast.GetProperty{Receiver: &ast.This{}, Name: "v"}},
						},
					},
				},
			},
			&ast.Return{Value: intLit(0)},
		},
	}

	_, bag := compile(module)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
}
