package hcibridge

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xaionaro-go/hcibridge/translator/hcihack"
	"github.com/xaionaro-go/hcibridge/translator/twowire"
	"github.com/xaionaro-go/hcibridge/transport"
)

var resetCommandRaw = []byte{0x01, 0x03, 0x0c, 0x00}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSynchronousTranslatesWhitelisted(t *testing.T) {
	ctx := context.Background()
	tester := transport.NewSim(resetCommandRaw)
	device := transport.NewSim([]byte{0x00, 0x00})
	b := New(tester, twowire.New(ctx, device))

	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(tester.Writes()) > 0 })
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	writes := tester.Writes()
	if len(writes) != 1 || writes[0] != "040e0401030c00" {
		t.Errorf("tester writes = %v", writes)
	}
	if dev := device.Writes(); len(dev) != 1 || dev[0] != "0000" {
		t.Errorf("device writes = %v", dev)
	}
}

func TestSynchronousDropsUnmatched(t *testing.T) {
	ctx := context.Background()
	tester := transport.NewSim(
		[]byte{0x01, 0xaa, 0x0c, 0x00},       // command, opcode not whitelisted
		[]byte{0x02, 0x34, 0x45, 0x00},       // ACL data
		[]byte{0x04, 0x0e, 0x04, 0x01, 0x00}, // not a command at all
	)
	device := transport.NewSim()
	b := New(tester, twowire.New(ctx, device))

	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	// dropped: nothing answered upstream, nothing reached the device
	if writes := tester.Writes(); len(writes) != 0 {
		t.Errorf("tester writes = %v", writes)
	}
	if writes := device.Writes(); len(writes) != 0 {
		t.Errorf("device writes = %v", writes)
	}
}

func TestAsynchronousPassesThroughUnlisted(t *testing.T) {
	ctx := context.Background()
	tester := transport.NewSim([]byte{0x01, 0xaa, 0xbb, 0x00})
	device := transport.NewSim()
	b := New(tester, hcihack.New(ctx, device), WithMode(ModeAsynchronous), WithRelayDelay(time.Millisecond))

	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(device.Writes()) > 0 })
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	if writes := device.Writes(); len(writes) != 1 || writes[0] != "01aabb00" {
		t.Errorf("device writes = %v", writes)
	}
}

func TestAsynchronousRelaysDeviceTraffic(t *testing.T) {
	ctx := context.Background()
	tester := transport.NewSim()
	device := transport.NewSim([]byte{0x04, 0xff, 0x02, 0xaa, 0xbb})
	b := New(tester, hcihack.New(ctx, device), WithMode(ModeAsynchronous), WithRelayDelay(time.Millisecond))

	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(tester.Writes()) > 0 })
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	if writes := tester.Writes(); len(writes) != 1 || writes[0] != "04ff02aabb" {
		t.Errorf("tester writes = %v", writes)
	}
}

// iutDevice hands the Reset reply only to the read that follows the Reset
// command write. If the device lock did not make a translated exchange
// atomic, the relay listener could steal that reply and the bridge would
// emit frames outside the two expected shapes.
type iutDevice struct {
	mutex        sync.Mutex
	pendingReset bool
	relayBudget  int
}

var (
	resetReply = []byte{0x04, 0x0e, 0x04, 0x01, 0x03, 0x0c, 0x00}
	relayEvent = []byte{0x04, 0xff, 0x02, 0xaa, 0xbb}
)

func (d *iutDevice) Read(ctx context.Context) ([]byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.pendingReset {
		d.pendingReset = false
		return resetReply, nil
	}
	if d.relayBudget > 0 {
		d.relayBudget--
		return relayEvent, nil
	}
	return nil, nil
}

func (d *iutDevice) Write(ctx context.Context, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if strings.EqualFold(string(data), "01030c00") {
		d.pendingReset = true
	}
	return nil
}

func (d *iutDevice) Close() error { return nil }

func TestAsynchronousExchangeAtomicity(t *testing.T) {
	const resets = 50

	ctx := context.Background()
	tester := transport.NewSim()
	for range resets {
		tester.QueueReply(resetCommandRaw)
	}
	device := &iutDevice{relayBudget: resets}
	b := New(tester, hcihack.New(ctx, device), WithMode(ModeAsynchronous))

	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(tester.Writes()) >= 2*resets })
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	// every upstream frame is either a complete patched Reset reply or a
	// complete relay event, and each translated exchange produced exactly
	// one event
	patched := 0
	for _, w := range tester.Writes() {
		switch w {
		case "040e0405030c00":
			patched++
		case "04ff02aabb":
		default:
			t.Fatalf("interleaved or corrupted frame went upstream: %q", w)
		}
	}
	if patched != resets {
		t.Errorf("got %d patched reset events, want %d", patched, resets)
	}
}
