// Command hcibridge runs the HCI test bridge between a tester and an IUT.
//
// It reads the configured serial endpoints and adapter, starts the bridge
// in the configured mode and keeps running until "q!" arrives on stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	xlogrus "github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"

	"github.com/xaionaro-go/hcibridge"
	"github.com/xaionaro-go/hcibridge/config"
	"github.com/xaionaro-go/hcibridge/translator"
	"github.com/xaionaro-go/hcibridge/transport"

	// adapters available to the registry
	_ "github.com/xaionaro-go/hcibridge/translator/hcihack"
	_ "github.com/xaionaro-go/hcibridge/translator/twowire"
)

var configPath = flag.String("config", "config.yaml", "configuration file")

func main() {
	flag.Parse()
	ctx := context.Background()

	l := xlogrus.Default()
	ctx = logger.CtxWithLogger(ctx, l)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf(ctx, "%v", err)
	}

	subsystem := func(name string, debug bool) logger.Logger {
		level := logger.LevelInfo
		if debug {
			level = logger.LevelDebug
		}
		return l.WithLevel(level).WithField("subsystem", name)
	}
	ctx = logger.CtxWithLogger(ctx, subsystem("bridge", cfg.Logs.Bridge))
	transportCtx := logger.CtxWithLogger(ctx, subsystem("transport", cfg.Logs.Transport))
	adapterCtx := logger.CtxWithLogger(ctx, subsystem("adapter", cfg.Logs.Adapter))

	tester, err := transport.OpenSerial(transportCtx, serialOptions(cfg.Tester))
	if err != nil {
		logger.Fatalf(ctx, "%v", err)
	}
	defer tester.Close()

	device, err := transport.OpenSerial(transportCtx, serialOptions(cfg.IUT))
	if err != nil {
		logger.Fatalf(ctx, "%v", err)
	}

	iut, err := translator.New(adapterCtx, cfg.Adapter, device)
	if err != nil {
		device.Close()
		logger.Fatalf(ctx, "%v", err)
	}
	defer iut.Close()

	b := hcibridge.New(tester, iut,
		hcibridge.WithMode(hcibridge.Mode(cfg.Mode)),
		hcibridge.WithRelayDelay(cfg.RelayDelay()),
		hcibridge.WithCodecLogger(subsystem("codec", cfg.Logs.Codec)),
	)
	if err := b.Start(ctx); err != nil {
		logger.Fatalf(ctx, "%v", err)
	}

	// Block until the quit sentinel shows up on stdin.
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if scanner.Text() == "q!" {
			break
		}
	}

	if err := b.Stop(); err != nil {
		logger.Errorf(ctx, "%v", err)
	}
}

func serialOptions(ep config.Endpoint) transport.SerialOptions {
	return transport.SerialOptions{
		Name:        ep.Name,
		Port:        ep.Port,
		BaudRate:    ep.BaudRate,
		FlowControl: ep.FlowControl,
		Timeout:     ep.Timeout(),
	}
}
