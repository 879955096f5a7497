package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	goserial "github.com/jacobsa/go-serial/serial"
	"golang.org/x/sys/unix"
)

// SerialOptions describes one serial endpoint.
type SerialOptions struct {
	Name        string // friendly name, used for logging only
	Port        string // e.g. /dev/ttyUSB0
	BaudRate    uint
	FlowControl bool // RTS/CTS
	Timeout     time.Duration
}

// Serial is the serial-port Transport.
type Serial struct {
	name string
	port io.ReadWriteCloser
	log  logger.Logger
}

var _ Transport = (*Serial)(nil)

// OpenSerial opens the port described by opts. The logger attached to ctx
// is captured and used for all subsequent I/O logging of this endpoint.
func OpenSerial(ctx context.Context, opts SerialOptions) (*Serial, error) {
	logger.Debugf(ctx, "Initializing serial device for %s :: Port: %s - Baud rate: %d - Timeout: %s - RTS/CTS: %t",
		opts.Name, opts.Port, opts.BaudRate, opts.Timeout, opts.FlowControl)
	port, err := goserial.Open(goserial.OpenOptions{
		PortName:              opts.Port,
		BaudRate:              opts.BaudRate,
		DataBits:              8,
		StopBits:              1,
		RTSCTSFlowControl:     opts.FlowControl,
		InterCharacterTimeout: uint(opts.Timeout / time.Millisecond),
		MinimumReadSize:       0,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s (%s): %w", opts.Name, opts.Port, err)
	}
	return &Serial{
		name: opts.Name,
		port: port,
		log:  logger.FromCtx(ctx),
	}, nil
}

// Read returns one line from the port, empty on timeout. A line whose
// terminating byte is the line-terminator value may legitimately continue,
// so one more line is read and appended in that case.
func (s *Serial) Read(ctx context.Context) ([]byte, error) {
	ctx = logger.CtxWithLogger(ctx, s.log)
	line, err := s.readLine(ctx)
	if err != nil {
		return nil, err
	}
	if len(line) > 0 && line[len(line)-1] == '\n' {
		more, err := s.readLine(ctx)
		if err != nil {
			return nil, err
		}
		line = append(line, more...)
	}
	return line, nil
}

func (s *Serial) readLine(ctx context.Context) ([]byte, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := s.port.Read(buf)
		switch {
		case errors.Is(err, io.EOF):
			// the port timed out, the line ends here
			return line, nil
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return nil, fmt.Errorf("transport: read %s: %w", s.name, err)
		case n == 0:
			return line, nil
		}
		line = append(line, buf[0])
		if buf[0] == '\n' {
			return line, nil
		}
	}
}

// Write decodes the hex-ASCII frame and puts the raw bytes on the port.
func (s *Serial) Write(ctx context.Context, data []byte) error {
	ctx = logger.CtxWithLogger(ctx, s.log)
	raw, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("transport: write %s: bad hex frame %q: %w", s.name, data, err)
	}
	logger.Tracef(ctx, "%s <- %s", s.name, data)
	if _, err := s.port.Write(raw); err != nil {
		return fmt.Errorf("transport: write %s: %w", s.name, err)
	}
	return nil
}

func (s *Serial) Close() error {
	return s.port.Close()
}
