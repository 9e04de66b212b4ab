package vm_test

import (
	"testing"

	"github.com/Antony1060/ESL/internal/ast"
	"github.com/Antony1060/ESL/internal/compiler"
	"github.com/Antony1060/ESL/internal/diag"
	"github.com/Antony1060/ESL/internal/gc"
	"github.com/Antony1060/ESL/internal/natives"
	"github.com/Antony1060/ESL/internal/value"
	"github.com/Antony1060/ESL/internal/vm"
)

func compileAndRun(t *testing.T, module *ast.Module) (value.Value, error) {
	t.Helper()
	heap := gc.NewHeap()
	bag := diag.NewBag(100)
	c := compiler.New(heap, natives.DefaultTable(), diag.BagReporter{Bag: bag})
	result := c.Compile([]*ast.Module{module})
	if bag.HasErrors() {
		t.Fatalf("unexpected compile errors: %v", bag.Items())
	}
	machine := vm.New(heap, natives.DefaultTable(), result)
	return machine.Run()
}

func ident(name string) *ast.Ident { return &ast.Ident{Name: name} }

func intLit(n int32) *ast.Literal { return &ast.Literal{Kind: ast.LitInt, Int: n} }

// loopSumTo45 builds: let x = 0; for (let i = 0; i < 10; i = i + 1) x = x
// + i; return x; — scenario 1 from spec.md §8.
func TestLoopSumTo45(t *testing.T) {
	module := &ast.Module{
		Path:    "main",
		TopDecl: []ast.TopLevel{{Name: "x", Kind: ast.DeclVar}},
		Stmts: []ast.Stmt{
			&ast.VarDecl{Name: "x", Value: intLit(0)},
			&ast.For{
				Init: &ast.VarDecl{Name: "i", Value: intLit(0)},
				Cond: &ast.Binary{Op: ast.OpLt, Left: ident("i"), Right: intLit(10)},
				Post: &ast.ExprStmt{X: &ast.Assign{Target: ident("i"), Value: &ast.Binary{Op: ast.OpAdd, Left: ident("i"), Right: intLit(1)}}},
				Body: []ast.Stmt{
					&ast.ExprStmt{X: &ast.Assign{Target: ident("x"), Value: &ast.Binary{Op: ast.OpAdd, Left: ident("x"), Right: ident("i")}}},
				},
			},
			&ast.Return{Value: ident("x")},
		},
	}

	result, err := compileAndRun(t, module)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !value.IsInt(result) || value.AsInt(result) != 45 {
		t.Fatalf("expected 45, got %v", result)
	}
}

// fib10 builds: fn fib(n){ if (n < 2) return n; return fib(n-1)+fib(n-2); }
// return fib(10); — scenario 2 from spec.md §8.
func TestFib10(t *testing.T) {
	fibBody := []ast.Stmt{
		&ast.If{
			Cond: &ast.Binary{Op: ast.OpLt, Left: ident("n"), Right: intLit(2)},
			Then: []ast.Stmt{&ast.Return{Value: ident("n")}},
		},
		&ast.Return{Value: &ast.Binary{
			Op: ast.OpAdd,
			Left: &ast.Call{Callee: ident("fib"), Args: []ast.Expr{
				&ast.Binary{Op: ast.OpSub, Left: ident("n"), Right: intLit(1)},
			}},
			Right: &ast.Call{Callee: ident("fib"), Args: []ast.Expr{
				&ast.Binary{Op: ast.OpSub, Left: ident("n"), Right: intLit(2)},
			}},
		}},
	}

	module := &ast.Module{
		Path:    "main",
		TopDecl: []ast.TopLevel{{Name: "fib", Kind: ast.DeclFunc}},
		Stmts: []ast.Stmt{
			&ast.FuncDecl{Name: "fib", Params: []string{"n"}, Body: fibBody},
			&ast.Return{Value: &ast.Call{Callee: ident("fib"), Args: []ast.Expr{intLit(10)}}},
		},
	}

	result, err := compileAndRun(t, module)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !value.IsInt(result) || value.AsInt(result) != 55 {
		t.Fatalf("expected 55, got %v", result)
	}
}

// arrayOutOfBounds builds: let a = [1,2,3]; return a[5]; — scenario 5,
// expecting runtime error code 9.
func TestArrayIndexOutOfBounds(t *testing.T) {
	module := &ast.Module{
		Path:    "main",
		TopDecl: []ast.TopLevel{{Name: "a", Kind: ast.DeclVar}},
		Stmts: []ast.Stmt{
			&ast.VarDecl{Name: "a", Value: &ast.ArrayLit{Elements: []ast.Expr{intLit(1), intLit(2), intLit(3)}}},
			&ast.Return{Value: &ast.GetIndex{Receiver: ident("a"), Index: intLit(5)}},
		},
	}

	_, err := compileAndRun(t, module)
	vmErr, ok := err.(*vm.VMError)
	if !ok {
		t.Fatalf("expected *vm.VMError, got %v", err)
	}
	if vmErr.Code != vm.ErrIndexOutOfBounds {
		t.Fatalf("expected code %d, got %d", vm.ErrIndexOutOfBounds, vmErr.Code)
	}
}

// inheritanceSuperCall builds:
//
//	class Animal { greet() { return 1; } }
//	class Dog : Animal { greet() { return super.greet() + 1; } }
//	let d = Dog();
//	return d.greet();
//
// — scenario 3 from spec.md §8, exercising single inheritance and
// super-dispatch resolving against the defining class rather than the
// receiver's runtime class.
func TestInheritanceSuperCall(t *testing.T) {
	module := &ast.Module{
		Path: "main",
		TopDecl: []ast.TopLevel{
			{Name: "Animal", Kind: ast.DeclClass},
			{Name: "Dog", Kind: ast.DeclClass},
			{Name: "d", Kind: ast.DeclVar},
		},
		Stmts: []ast.Stmt{
			&ast.ClassDecl{
				Name: "Animal",
				Methods: []ast.Method{
					{Name: "greet", Body: []ast.Stmt{&ast.Return{Value: intLit(1)}}},
				},
			},
			&ast.ClassDecl{
				Name:  "Dog",
				Super: "Animal",
				Methods: []ast.Method{
					{Name: "greet", Body: []ast.Stmt{
						&ast.Return{Value: &ast.Binary{
							Op:   ast.OpAdd,
							Left: &ast.Call{Callee: &ast.Super{Method: "greet"}},
							Right: intLit(1),
						}},
					}},
				},
			},
			&ast.VarDecl{Name: "d", Value: &ast.Call{Callee: ident("Dog")}},
			&ast.Return{Value: &ast.Call{Callee: &ast.GetProperty{Receiver: ident("d"), Name: "greet"}}},
		},
	}

	result, err := compileAndRun(t, module)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !value.IsInt(result) || value.AsInt(result) != 2 {
		t.Fatalf("expected 2, got %v", result)
	}
}

// asyncLaunchAwait builds:
//
//	fn makeCounter() {
//	    let n = 0;
//	    let inc = fn(){ n = n + 1; return n; };
//	    let get = fn(){ return n; };
//	    let f = async inc();
//	    await f;
//	    return get();
//	}
//	return makeCounter();
//
// — scenario 4 from spec.md §8: launching a closure onto a child thread
// and awaiting its future. inc and get are two sibling closures over the
// same local n; inc runs to completion on the child thread before get
// reads n back on the main thread, so this only passes if both closures
// share n's cell rather than each seeing its own captured copy.
func TestAsyncLaunchAwait(t *testing.T) {
	counterBody := []ast.Stmt{
		&ast.VarDecl{Name: "n", Value: intLit(0)},
		&ast.VarDecl{Name: "inc", Value: &ast.FuncLit{Body: []ast.Stmt{
			&ast.ExprStmt{X: &ast.Assign{Target: ident("n"), Value: &ast.Binary{Op: ast.OpAdd, Left: ident("n"), Right: intLit(1)}}},
			&ast.Return{Value: ident("n")},
		}}},
		&ast.VarDecl{Name: "get", Value: &ast.FuncLit{Body: []ast.Stmt{
			&ast.Return{Value: ident("n")},
		}}},
		&ast.VarDecl{Name: "f", Value: &ast.Async{Call: &ast.Call{Callee: ident("inc")}}},
		&ast.ExprStmt{X: &ast.Await{Future: ident("f")}},
		&ast.Return{Value: &ast.Call{Callee: ident("get")}},
	}

	module := &ast.Module{
		Path:    "main",
		TopDecl: []ast.TopLevel{{Name: "makeCounter", Kind: ast.DeclFunc}},
		Stmts: []ast.Stmt{
			&ast.FuncDecl{Name: "makeCounter", Body: counterBody},
			&ast.Return{Value: &ast.Call{Callee: ident("makeCounter")}},
		},
	}

	result, err := compileAndRun(t, module)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !value.IsInt(result) || value.AsInt(result) != 1 {
		t.Fatalf("expected 1, got %v", result)
	}
}

// stringPlusIntTypeError builds: return "hi" + 1; — scenario 6, expecting
// runtime error code 3.
func TestStringPlusIntTypeError(t *testing.T) {
	module := &ast.Module{
		Path: "main",
		Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.Binary{
				Op:   ast.OpAdd,
				Left: &ast.Literal{Kind: ast.LitString, Str: "hi"},
				Right: intLit(1),
			}},
		},
	}

	_, err := compileAndRun(t, module)
	vmErr, ok := err.(*vm.VMError)
	if !ok {
		t.Fatalf("expected *vm.VMError, got %v", err)
	}
	if vmErr.Code != vm.ErrTypeError {
		t.Fatalf("expected code %d, got %d", vm.ErrTypeError, vmErr.Code)
	}
}
