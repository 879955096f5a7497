// Package hcibridge bridges a test host that speaks HCI over serial to a
// device under test whose control surface differs, translating the RF-PHY
// test commands and forwarding everything the bridge does not understand.
package hcibridge

import (
	"context"
	"encoding/hex"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ctxflow"

	"github.com/xaionaro-go/hcibridge/hci"
	"github.com/xaionaro-go/hcibridge/translator"
	"github.com/xaionaro-go/hcibridge/transport"
)

// Mode selects the bridging concurrency model.
type Mode string

const (
	// ModeSynchronous runs one tester listener: whitelisted commands are
	// translated, everything else is dropped.
	ModeSynchronous = Mode("synchronous")
	// ModeAsynchronous additionally relays device traffic upstream at any
	// time: blacklisted commands are translated, everything else passes
	// through to the device raw.
	ModeAsynchronous = Mode("asynchronous")
)

// Bridge composes the tester transport, the device adapter and one of the
// two listening modes.
type Bridge struct {
	tester     transport.Transport
	iut        translator.Adapter
	mode       Mode
	relayDelay time.Duration
	codecLog   logger.Logger

	loop ctxflow.StartStopper[ctxflow.StartStopperBackendFuncs]

	// iutMutex serializes the device transport in asynchronous mode: the
	// translating path holds it for a whole multi-frame exchange, the
	// relay path for each single read/forward step.
	iutMutex *sync.Mutex

	stop context.CancelFunc
	done sync.WaitGroup
}

// New builds a bridge. The default mode is synchronous.
func New(tester transport.Transport, iut translator.Adapter, opts ...Option) *Bridge {
	b := &Bridge{
		tester:   tester,
		iut:      iut,
		mode:     ModeSynchronous,
		iutMutex: &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.loop = ctxflow.StartStopper[ctxflow.StartStopperBackendFuncs]{
		StartStopper: ctxflow.StartStopperBackendFuncs{
			StartFunc: b.doStart,
			StopFunc:  b.doStop,
		},
	}
	return b
}

// Start launches the listeners of the configured mode.
func (b *Bridge) Start(ctx context.Context) error {
	return b.loop.Start(ctx)
}

// Stop cancels the listeners cooperatively and waits for them to finish
// their in-flight iteration.
func (b *Bridge) Stop() error {
	return b.loop.Stop()
}

func (b *Bridge) doStart(ctx context.Context, _ ...any) error {
	ctx, cancel := context.WithCancel(ctx)
	switch b.mode {
	case ModeSynchronous:
		logger.Infof(ctx, "Running synchronous solution")
		b.stop = cancel
		b.done.Add(1)
		go b.listen(ctx, "listen_tester", b.syncTesterIteration)
	case ModeAsynchronous:
		logger.Infof(ctx, "Running asynchronous solution")
		b.stop = cancel
		b.done.Add(2)
		go b.listen(ctx, "listen_tester", b.asyncTesterIteration)
		go b.listen(ctx, "listen_iut", b.relayIteration)
	default:
		cancel()
		return fmt.Errorf("hcibridge: unknown mode %q", b.mode)
	}
	return nil
}

func (b *Bridge) doStop(ctx context.Context) error {
	b.stop()
	b.done.Wait()
	logger.Infof(ctx, "Stop!")
	return nil
}

// listen runs one listener loop. Each iteration is independently guarded:
// a fault inside it is logged and the loop proceeds to the next poll, so a
// single bad exchange never takes the listener down.
func (b *Bridge) listen(ctx context.Context, name string, iteration func(context.Context) error) {
	defer b.done.Done()
	for ctx.Err() == nil {
		b.runIteration(ctx, name, iteration)
	}
}

func (b *Bridge) runIteration(ctx context.Context, name string, iteration func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf(ctx, "%s: recovered from: %v\n%s", name, r, debug.Stack())
		}
	}()
	if err := iteration(ctx); err != nil {
		logger.Errorf(ctx, "%s: %v", name, err)
	}
}

// syncTesterIteration polls the tester once and answers whitelisted
// commands. Anything that is not a whitelisted command is dropped, never
// forwarded to the device.
func (b *Bridge) syncTesterIteration(ctx context.Context) error {
	command, err := b.tester.Read(ctx)
	if err != nil {
		return err
	}
	if len(command) == 0 {
		return nil
	}
	hexCommand := hex.EncodeToString(command)
	logger.Infof(ctx, "Tester -> IUT :: %s", hexCommand)

	if hci.PacketType(command[0]) != hci.PacketTypeCommand {
		return nil
	}
	f, err := hci.Decode(b.codecCtx(ctx), hexCommand)
	if err != nil {
		return err
	}
	handler, ok := b.iut.Whitelist()[f.Key()]
	if !ok {
		return nil
	}
	event, err := handler(ctx, handlerParams(f))
	if err != nil {
		return err
	}
	logger.Infof(ctx, "IUT -> Tester :: %s", event)
	return b.tester.Write(ctx, event)
}

// asyncTesterIteration polls the tester once; blacklisted commands run
// their override handler under the device lock, everything else goes to
// the device as-is.
func (b *Bridge) asyncTesterIteration(ctx context.Context) error {
	command, err := b.tester.Read(ctx)
	if err != nil {
		return err
	}
	if len(command) == 0 {
		return nil
	}
	hexCommand := hex.EncodeToString(command)
	logger.Infof(ctx, "Tester -> IUT :: %s", hexCommand)

	f, err := hci.Decode(b.codecCtx(ctx), hexCommand)
	if err != nil {
		return err
	}
	handler, ok := b.iut.Blacklist()[f.Key()]
	if !ok {
		return b.iut.Transport().Write(ctx, []byte(hexCommand))
	}

	// The whole translated exchange is one atomic unit on the device
	// transport.
	b.iutMutex.Lock()
	defer b.iutMutex.Unlock()
	event, err := handler(ctx, handlerParams(f))
	if err != nil {
		return err
	}
	logger.Infof(ctx, "IUT -> Tester :: %s", event)
	return b.tester.Write(ctx, event)
}

// relayIteration forwards one device frame upstream verbatim, then yields
// for the configured delay so the translating listener is not starved.
func (b *Bridge) relayIteration(ctx context.Context) error {
	b.iutMutex.Lock()
	event, err := b.iut.Transport().Read(ctx)
	if err == nil && len(event) > 0 {
		hexEvent := hex.EncodeToString(event)
		logger.Infof(ctx, "IUT -> Tester :: %s", hexEvent)
		err = b.tester.Write(ctx, []byte(hexEvent))
	}
	b.iutMutex.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-time.After(b.relayDelay):
	}
	return nil
}

// handlerParams passes the payload on only when the command declared a
// nonzero length.
func handlerParams(f hci.Frame) string {
	if f.Length > 0 {
		return f.Payload
	}
	return ""
}

func (b *Bridge) codecCtx(ctx context.Context) context.Context {
	if b.codecLog == nil {
		return ctx
	}
	return logger.CtxWithLogger(ctx, b.codecLog)
}
