package vm

import (
	"strings"
	"testing"
)

func TestDisassemble(t *testing.T) {
	b := NewMethodBuilder("demo", 1)
	lit := b.AddLiteral(FromSmallInt(100))
	cs := b.AddCallSite("min:", 1)
	bc := b.Bytecode()
	bc.Emit(OpPushSelf)
	bc.EmitByte(OpPushLocal, 0)
	bc.EmitUint16(OpPushLiteral, uint16(lit))
	bc.EmitUint16(OpSend, uint16(cs))
	at := bc.ReserveBranch()
	bc.Emit(OpPushNil)
	bc.Emit(OpReturn)
	bc.PatchBranch(at)
	bc.Emit(OpPushSelf)
	bc.Emit(OpReturn)
	m := b.Build()

	listing := m.Disassemble()
	for _, want := range []string{
		"PUSH_SELF",
		"PUSH_LOCAL 0",
		"PUSH_LITERAL 0 (100)",
		`SEND "min:" argc=1`,
		"BRANCH_UNLESS -> 0014",
		"PUSH_NIL",
		"RETURN",
	} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}

func TestDisassembleBadTail(t *testing.T) {
	m := NewMethod("broken", 0)
	m.Bytecode = []byte{byte(OpPushNil), 0xEE}

	listing := m.Disassemble()
	if !strings.Contains(listing, "PUSH_NIL") || !strings.Contains(listing, "??") {
		t.Errorf("listing = %q", listing)
	}
}
