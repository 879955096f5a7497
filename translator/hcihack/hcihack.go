// Package hcihack is the adapter for IUTs that already speak HCI but
// answer Reset with a reply that needs patching before the tester sees it.
// Only Reset is intercepted; the orchestrator passes everything else to
// the device untouched.
package hcihack

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"

	"github.com/xaionaro-go/hcibridge/translator"
	"github.com/xaionaro-go/hcibridge/transport"
)

func init() {
	translator.Register("hcihack", func(ctx context.Context, tr transport.Transport) (translator.Adapter, error) {
		return New(ctx, tr), nil
	})
}

// The literal HCI Reset command forwarded to the device, and the single
// hex character of its reply that gets rewritten.
const (
	resetCommand = "01030C00"
	patchIndex   = 7
	patchChar    = '5'
)

// IUT patches the device's Reset reply on its way back to the tester.
type IUT struct {
	transport transport.Transport
	blacklist translator.Dispatch
	log       logger.Logger
}

var _ translator.Adapter = (*IUT)(nil)

func New(ctx context.Context, tr transport.Transport) *IUT {
	iut := &IUT{
		transport: tr,
		log:       logger.FromCtx(ctx),
	}
	iut.blacklist = translator.Dispatch{
		{OCF: 3, OGF: 3}: translator.NoParams(iut.Reset),
	}
	return iut
}

func (iut *IUT) Whitelist() translator.Dispatch { return translator.Dispatch{} }
func (iut *IUT) Blacklist() translator.Dispatch { return iut.blacklist }
func (iut *IUT) Transport() transport.Transport { return iut.transport }
func (iut *IUT) Close() error                   { return iut.transport.Close() }

// Reset forwards the tester's literal Reset command, patches one character
// of the device's reply and returns the patched reply as the event.
func (iut *IUT) Reset(ctx context.Context) ([]byte, error) {
	ctx = logger.CtxWithLogger(ctx, iut.log)
	logger.Debugf(ctx, "Sending Reset to IUT")
	if err := iut.transport.Write(ctx, []byte(resetCommand)); err != nil {
		return nil, err
	}
	reply, err := iut.transport.Read(ctx)
	if err != nil {
		return nil, err
	}
	hexReply := []byte(hex.EncodeToString(reply))
	logger.Debugf(ctx, "Reply from IUT: %s", hexReply)
	if len(hexReply) <= patchIndex {
		return nil, fmt.Errorf("hcihack: reset reply %q too short to patch", hexReply)
	}
	logger.Debugf(ctx, "Hacking reply")
	hexReply[patchIndex] = patchChar
	logger.Debugf(ctx, "Sending fake event %s to tester", hexReply)
	return hexReply, nil
}
