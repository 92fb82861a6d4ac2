package vm

import "fmt"

// Value represents a Forge value as a 64-bit tagged word.
//
// The encoding is chosen so that generated native code can operate on
// values without unboxing:
//   - SmallInt: (n << 1) | 1 — the low bit is the integer tag, so two
//     tagged integers can be added natively and retagged with a single
//     constant correction.
//   - Specials are even words: False = 0x00, Nil = 0x02, True = 0x06.
//     Nil and False differ in exactly one bit, so a single TEST against
//     the complement of that bit detects both falsy values at once.
type Value uint64

// Special values. Nil and False are the two falsy encodings.
const (
	False Value = 0x00
	Nil   Value = 0x02
	True  Value = 0x06
)

// FalsyMask is the operand of the native truthiness test: v AND FalsyMask
// is zero exactly when v is Nil or False. It is the complement of the one
// bit in which the two falsy encodings differ.
const FalsyMask uint64 = ^uint64(Nil ^ False)

// SmallInt range (63-bit signed payload).
const (
	MaxSmallInt int64 = (1 << 62) - 1
	MinSmallInt int64 = -(1 << 62)
)

// IsSmallInt returns true if v carries the integer tag bit.
func (v Value) IsSmallInt() bool {
	return v&1 == 1
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// SmallInt returns v as an int64.
// Panics if v is not a small integer.
func (v Value) SmallInt() int64 {
	if !v.IsSmallInt() {
		panic("Value.SmallInt: not a small integer")
	}
	return int64(v) >> 1
}

// FromSmallInt creates a Value from an int64.
// Panics if n is outside the SmallInt range.
func FromSmallInt(n int64) Value {
	if n > MaxSmallInt || n < MinSmallInt {
		panic("FromSmallInt: value out of range")
	}
	return Value(uint64(n)<<1 | 1)
}

// TryFromSmallInt creates a Value from an int64, returning false if out of range.
func TryFromSmallInt(n int64) (Value, bool) {
	if n > MaxSmallInt || n < MinSmallInt {
		return Nil, false
	}
	return Value(uint64(n)<<1 | 1), true
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// IsTruthy returns true if v is considered "truthy" in conditionals.
// Only false and nil are falsy; everything else is truthy.
func (v Value) IsTruthy() bool {
	return uint64(v)&FalsyMask != 0
}

// IsFalsy returns true if v is considered "falsy" in conditionals.
func (v Value) IsFalsy() bool {
	return uint64(v)&FalsyMask == 0
}

// String returns a printable representation of the value.
func (v Value) String() string {
	switch v {
	case Nil:
		return "nil"
	case True:
		return "true"
	case False:
		return "false"
	}
	if v.IsSmallInt() {
		return fmt.Sprintf("%d", v.SmallInt())
	}
	return fmt.Sprintf("Value(0x%016X)", uint64(v))
}
