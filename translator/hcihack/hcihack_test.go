package hcihack

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/xaionaro-go/hcibridge/hci"
	"github.com/xaionaro-go/hcibridge/transport"
)

func TestResetPatchesOneCharacter(t *testing.T) {
	ctx := context.Background()
	for _, reply := range [][]byte{
		{0x04, 0x0e, 0x04, 0x01, 0x03, 0x0c, 0x00},
		{0x04, 0xff, 0x12, 0x34, 0x56},
	} {
		sim := transport.NewSim(reply)
		iut := New(ctx, sim)

		ev, err := iut.Reset(ctx)
		if err != nil {
			t.Fatal(err)
		}
		original := hex.EncodeToString(reply)
		if len(ev) != len(original) {
			t.Fatalf("event %q and reply %q differ in length", ev, original)
		}
		for i := range original {
			switch {
			case i == patchIndex && ev[i] != patchChar:
				t.Errorf("index %d = %c, want %c", i, ev[i], patchChar)
			case i != patchIndex && ev[i] != original[i]:
				t.Errorf("index %d = %c, want %c", i, ev[i], original[i])
			}
		}
		// the literal tester command went to the device unchanged
		writes := sim.Writes()
		if len(writes) != 1 || writes[0] != resetCommand {
			t.Errorf("writes = %v", writes)
		}
	}
}

func TestResetShortReply(t *testing.T) {
	ctx := context.Background()
	iut := New(ctx, transport.NewSim([]byte{0x04, 0x0e}))
	if _, err := iut.Reset(ctx); err == nil {
		t.Error("expected error for a reply too short to patch")
	}
}

func TestBlacklistOnlyReset(t *testing.T) {
	iut := New(context.Background(), transport.NewSim())
	if len(iut.Whitelist()) != 0 {
		t.Errorf("whitelist = %v, want empty", iut.Whitelist())
	}
	bl := iut.Blacklist()
	if len(bl) != 1 {
		t.Fatalf("blacklist has %d entries, want 1", len(bl))
	}
	if _, ok := bl[hci.OpcodeKey{OCF: 3, OGF: 3}]; !ok {
		t.Error("blacklist does not contain the Reset opcode")
	}
}
