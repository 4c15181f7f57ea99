// Package transport owns the physical connection to the host. A Driver
// dials with a fixed retry delay, feeds every byte it reads into the
// ingestion pipeline and drains the outbound command queue onto the same
// connection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/ziutek/telnet"
	"go.bug.st/serial"
)

// ErrClosed is returned by reads on a connection that has been closed.
var ErrClosed = errors.New("transport: closed")

// Dialer opens one connection to the host.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

// TCPDialer connects to a plain TCP endpoint.
type TCPDialer struct {
	Addr    string
	Timeout time.Duration
}

func NewTCPDialer(host string, port int, timeout time.Duration) *TCPDialer {
	return &TCPDialer{Addr: net.JoinHostPort(host, strconv.Itoa(port)), Timeout: timeout}
}

func (d *TCPDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	nd := net.Dialer{Timeout: d.Timeout, KeepAlive: 30 * time.Second}
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", d.Addr, err)
	}
	return conn, nil
}

func (d *TCPDialer) String() string { return "tcp://" + d.Addr }

// TelnetDialer connects through a telnet-speaking serial bridge; option
// negotiation bytes are stripped before data reaches the framer.
type TelnetDialer struct {
	Addr    string
	Timeout time.Duration
}

func NewTelnetDialer(host string, port int, timeout time.Duration) *TelnetDialer {
	return &TelnetDialer{Addr: net.JoinHostPort(host, strconv.Itoa(port)), Timeout: timeout}
}

func (d *TelnetDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	timeout := d.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := telnet.DialTimeout("tcp", d.Addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial telnet %s: %w", d.Addr, err)
	}
	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (d *TelnetDialer) String() string { return "telnet://" + d.Addr }

// SerialDialer opens a local serial device in 8N1 mode.
type SerialDialer struct {
	Device string
	Baud   int
}

// DefaultBaud matches the host's USB CDC link.
const DefaultBaud = 115200

func NewSerialDialer(device string, baud int) *SerialDialer {
	if baud <= 0 {
		baud = DefaultBaud
	}
	return &SerialDialer{Device: device, Baud: baud}
}

func (d *SerialDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	port, err := serial.Open(d.Device, &serial.Mode{
		BaudRate: d.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %s", d.Device, describeSerialError(err))
	}
	return port, nil
}

func (d *SerialDialer) String() string {
	return fmt.Sprintf("serial://%s@%d", d.Device, d.Baud)
}

func describeSerialError(err error) string {
	var code serial.PortErrorCode
	var ptrErr *serial.PortError
	var valErr serial.PortError
	switch {
	case errors.As(err, &ptrErr):
		code = ptrErr.Code()
	case errors.As(err, &valErr):
		code = valErr.Code()
	default:
		return err.Error()
	}
	switch code {
	case serial.PortNotFound:
		return "device not found"
	case serial.PortBusy:
		return "device busy"
	case serial.PermissionDenied:
		return "permission denied"
	case serial.InvalidSpeed:
		return "unsupported baud rate"
	default:
		return err.Error()
	}
}
