package vm

import "testing"

func TestSmallIntRoundTrip(t *testing.T) {
	tests := []int64{0, 1, -1, 2, 5, -42, 1 << 40, MaxSmallInt, MinSmallInt}
	for _, n := range tests {
		v := FromSmallInt(n)
		if !v.IsSmallInt() {
			t.Errorf("FromSmallInt(%d): tag bit not set", n)
		}
		if got := v.SmallInt(); got != n {
			t.Errorf("FromSmallInt(%d).SmallInt() = %d", n, got)
		}
	}
}

func TestSmallIntEncoding(t *testing.T) {
	if got := FromSmallInt(5); uint64(got) != 11 {
		t.Errorf("FromSmallInt(5) = %#x, want 0xb", uint64(got))
	}
	if got := FromSmallInt(-1); uint64(got) != 0xFFFFFFFFFFFFFFFF {
		t.Errorf("FromSmallInt(-1) = %#x, want all ones", uint64(got))
	}
}

func TestTryFromSmallInt(t *testing.T) {
	if _, ok := TryFromSmallInt(MaxSmallInt + 1); ok {
		t.Error("accepted value above range")
	}
	if _, ok := TryFromSmallInt(MinSmallInt - 1); ok {
		t.Error("accepted value below range")
	}
	if v, ok := TryFromSmallInt(7); !ok || v != FromSmallInt(7) {
		t.Errorf("TryFromSmallInt(7) = %v, %v", v, ok)
	}
}

func TestTruthiness(t *testing.T) {
	falsy := []Value{Nil, False}
	for _, v := range falsy {
		if v.IsTruthy() || !v.IsFalsy() {
			t.Errorf("%s should be falsy", v)
		}
		if uint64(v)&FalsyMask != 0 {
			t.Errorf("%s does not match the falsy bit pattern", v)
		}
	}

	truthy := []Value{True, FromSmallInt(0), FromSmallInt(1), FromSmallInt(-1)}
	for _, v := range truthy {
		if !v.IsTruthy() || v.IsFalsy() {
			t.Errorf("%s should be truthy", v)
		}
		if uint64(v)&FalsyMask == 0 {
			t.Errorf("%s matches the falsy bit pattern", v)
		}
	}
}

func TestSpecialPredicates(t *testing.T) {
	if !Nil.IsNil() || True.IsNil() || FromSmallInt(1).IsNil() {
		t.Error("IsNil misclassifies")
	}
	if !True.IsBool() || !False.IsBool() || Nil.IsBool() {
		t.Error("IsBool misclassifies")
	}
	if FromBool(true) != True || FromBool(false) != False {
		t.Error("FromBool misencodes")
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Nil, "nil"},
		{True, "true"},
		{False, "false"},
		{FromSmallInt(42), "42"},
		{FromSmallInt(-7), "-7"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
