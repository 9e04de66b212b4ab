package value

import (
	"math"
	"testing"
)

func TestRoundTripInt(t *testing.T) {
	for _, n := range []int32{0, 1, -1, math.MaxInt32, math.MinInt32, 12345, -98765} {
		v := EncodeInt(n)
		if !IsInt(v) {
			t.Fatalf("EncodeInt(%d) not classified as int, got %s", n, GetKind(v))
		}
		if got := AsInt(v); got != n {
			t.Fatalf("round-trip int %d got %d", n, got)
		}
	}
}

func TestRoundTripDouble(t *testing.T) {
	for _, f := range []float64{0, -0.0, 1.5, -1.5, 3.141592653589793, math.MaxFloat64, math.SmallestNonzeroFloat64} {
		v := EncodeDouble(f)
		if !IsDouble(v) {
			t.Fatalf("EncodeDouble(%v) not classified as double, got %s", f, GetKind(v))
		}
		if got := AsDouble(v); got != f {
			t.Fatalf("round-trip double %v got %v", f, got)
		}
	}
}

func TestCanonicalNaN(t *testing.T) {
	v1 := EncodeDouble(math.NaN())
	v2 := EncodeDouble(math.Float64frombits(0x7FF8000000000001)) // a different NaN payload
	if v1 != v2 {
		t.Fatalf("NaN did not normalize to a single canonical bit pattern: %x vs %x", v1, v2)
	}
	if !IsDouble(v1) {
		t.Fatalf("canonical NaN misclassified as %s", GetKind(v1))
	}
}

func TestBoolNilRoundTrip(t *testing.T) {
	if !IsBool(True) || !AsBool(True) {
		t.Fatal("True did not round-trip")
	}
	if !IsBool(False) || AsBool(False) {
		t.Fatal("False did not round-trip")
	}
	if !IsNil(EncodeNil()) {
		t.Fatal("nil did not round-trip")
	}
}

func TestObjRoundTrip(t *testing.T) {
	h := Handle(0xDEADBEEF)
	v := EncodeObj(h)
	if !IsObj(v) {
		t.Fatalf("EncodeObj not classified as obj, got %s", GetKind(v))
	}
	if got := AsObj(v); got != h {
		t.Fatalf("round-trip handle got %d want %d", got, h)
	}
}

func TestGetTypeMatchesKind(t *testing.T) {
	cases := []struct {
		v    Value
		kind Kind
	}{
		{EncodeInt(42), KindInt},
		{EncodeDouble(1.0), KindDouble},
		{True, KindBool},
		{False, KindBool},
		{EncodeNil(), KindNil},
		{EncodeObj(7), KindObj},
	}
	for _, c := range cases {
		if GetKind(c.v) != c.kind {
			t.Errorf("GetKind(%v) = %s, want %s", c.v, GetKind(c.v), c.kind)
		}
	}
}

func TestEqualsDifferentKindsNeverEqual(t *testing.T) {
	if Equals(EncodeInt(5), EncodeDouble(5.0), nil) {
		t.Fatal("int(5) and double(5.0) must compare unequal (different kinds)")
	}
}

func TestEqualsReflexive(t *testing.T) {
	vals := []Value{EncodeInt(5), EncodeDouble(5.5), True, False, EncodeNil(), EncodeObj(3)}
	for _, v := range vals {
		if !Equals(v, v, nil) {
			t.Errorf("Equals(%v, %v) should be reflexive", v, v)
		}
	}
}

func TestEqualsNaNNeverEqual(t *testing.T) {
	n := EncodeDouble(math.NaN())
	if Equals(n, n, nil) {
		t.Fatal("NaN must not equal itself")
	}
}

func TestEqualsObjContentViaCallback(t *testing.T) {
	a, b := EncodeObj(1), EncodeObj(2)
	if Equals(a, b, func(ha, hb Handle) bool { return false }) {
		t.Fatal("distinct handles with objEq=false should compare unequal")
	}
	if !Equals(a, b, func(ha, hb Handle) bool { return true }) {
		t.Fatal("objEq=true should make distinct string handles compare equal")
	}
}

func TestIsFalsey(t *testing.T) {
	falsey := []Value{EncodeNil(), False}
	for _, v := range falsey {
		if !IsFalsey(v) {
			t.Errorf("%v should be falsey", v)
		}
	}
	truthy := []Value{True, EncodeInt(0), EncodeDouble(0)}
	for _, v := range truthy {
		if IsFalsey(v) {
			t.Errorf("%v should not be falsey", v)
		}
	}
}

func TestArithmeticOverflowPromotes(t *testing.T) {
	_, overflow := AddOverflows(math.MaxInt32, 1)
	if !overflow {
		t.Fatal("MaxInt32+1 should overflow")
	}
	_, overflow = AddOverflows(1, 1)
	if overflow {
		t.Fatal("1+1 should not overflow")
	}
}

func TestInfinityFallsBackToDouble(t *testing.T) {
	posInf := Value(math.Float64bits(math.Inf(1)))
	negInf := Value(math.Float64bits(math.Inf(-1)))
	if !IsDouble(posInf) {
		t.Fatalf("+Inf misclassified as %s", GetKind(posInf))
	}
	if !IsDouble(negInf) {
		t.Fatalf("-Inf misclassified as %s", GetKind(negInf))
	}
}
