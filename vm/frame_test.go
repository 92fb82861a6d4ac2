package vm

import "testing"

func TestEnterMethod(t *testing.T) {
	b := NewMethodBuilder("m:", 1)
	b.Bytecode().Emit(OpReturn)
	m := b.Build()

	ctx := NewContext(4)
	if err := ctx.EnterMethod(m, FromSmallInt(7), []Value{FromSmallInt(3)}); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if ctx.CurrentFrame == nil {
		t.Fatal("current frame not set")
	}
	if got := ctx.FrameSelf(); got != FromSmallInt(7) {
		t.Errorf("self = %s, want 7", got)
	}
	if got := Value(ctx.slots[0]); got != FromSmallInt(3) {
		t.Errorf("slot 0 = %s, want 3", got)
	}
	// The outgoing area starts one slot window past the environment.
	env := readField(ctx.CurrentFrame, FrameEnvOffset)
	sp := readField(ctx.CurrentFrame, FrameStackOffset)
	if sp != env+FrameSlotWindow*8 {
		t.Errorf("stack field = %#x, want env+%d", sp, FrameSlotWindow*8)
	}
}

func TestEnterMethodArityMismatch(t *testing.T) {
	b := NewMethodBuilder("m:", 1)
	b.Bytecode().Emit(OpReturn)
	m := b.Build()

	if err := NewContext(4).EnterMethod(m, Nil, nil); err == nil {
		t.Error("expected arity error")
	}
}
