package transport

import (
	"context"
	"io"
	"reflect"
	"testing"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// fakePort feeds one byte per Read call and EOFs like a timed-out port.
type fakePort struct {
	in  []byte
	out []byte
}

func (f *fakePort) Read(p []byte) (int, error) {
	if len(f.in) == 0 {
		return 0, io.EOF
	}
	p[0] = f.in[0]
	f.in = f.in[1:]
	return 1, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.out = append(f.out, p...)
	return len(p), nil
}

func (f *fakePort) Close() error { return nil }

func newFakeSerial(in []byte) (*Serial, *fakePort) {
	port := &fakePort{in: in}
	return &Serial{name: "fake", port: port, log: logger.FromCtx(context.Background())}, port
}

func TestSerialReadContinuesPastLineTerminator(t *testing.T) {
	ctx := context.Background()

	// a frame legitimately containing the terminator keeps the second line
	s, _ := newFakeSerial([]byte("ab\ncd"))
	got, err := s.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ab\ncd" {
		t.Errorf("read = %q, want %q", got, "ab\ncd")
	}

	// a silent port yields an empty read
	s, _ = newFakeSerial(nil)
	got, err = s.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("read = %q, want empty", got)
	}
}

func TestSerialWriteDecodesHex(t *testing.T) {
	ctx := context.Background()
	s, port := newFakeSerial(nil)
	if err := s.Write(ctx, []byte("0a0bff")); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(port.out, []byte{0x0a, 0x0b, 0xff}) {
		t.Errorf("port got % x", port.out)
	}
	if err := s.Write(ctx, []byte("0a0")); err == nil {
		t.Error("expected error for odd-length hex")
	}
}

func TestSimDrainsReplies(t *testing.T) {
	ctx := context.Background()
	sim := NewSim([]byte{0x01}, []byte{0x02})
	for _, want := range [][]byte{{0x01}, {0x02}, nil} {
		got, err := sim.Read(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("read = % x, want % x", got, want)
		}
	}
	if err := sim.Write(ctx, []byte("0000")); err != nil {
		t.Fatal(err)
	}
	if writes := sim.Writes(); !reflect.DeepEqual(writes, []string{"0000"}) {
		t.Errorf("writes = %v", writes)
	}
}
