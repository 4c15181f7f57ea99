package transport

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultReconnectDelay is the fixed wait between failed connect attempts.
const DefaultReconnectDelay = 3 * time.Second

const readChunk = 4096

// Sink consumes the raw byte stream. Feed and Reset run on the driver's
// read goroutine only.
type Sink interface {
	Feed(chunk []byte)
	// Reset discards any partial frame after a disconnect.
	Reset()
}

// Outbox is the command side of the connection.
type Outbox interface {
	Ready() <-chan struct{}
	Drain(w io.Writer) (int, error)
}

// Stats is a point-in-time view of the driver counters.
type Stats struct {
	Connected    bool
	Connects     uint64
	DialFailures uint64
	BytesRead    uint64
	WriteErrors  uint64
}

// Driver keeps one connection alive and is the ingestion goroutine.
type Driver struct {
	dialer Dialer
	sink   Sink
	outbox Outbox

	reconnectMin time.Duration
	reconnectMax time.Duration

	connected    atomic.Bool
	connects     atomic.Uint64
	dialFailures atomic.Uint64
	bytesRead    atomic.Uint64
	writeErrors  atomic.Uint64

	// OnState is called from the driver goroutine on connect and disconnect.
	OnState func(connected bool, endpoint string)
}

// NewDriver builds a driver. A zero reconnect delay uses the default; with
// max <= min the delay is fixed.
func NewDriver(dialer Dialer, sink Sink, outbox Outbox, reconnect, reconnectMax time.Duration) *Driver {
	if reconnect <= 0 {
		reconnect = DefaultReconnectDelay
	}
	return &Driver{
		dialer:       dialer,
		sink:         sink,
		outbox:       outbox,
		reconnectMin: reconnect,
		reconnectMax: reconnectMax,
	}
}

// Run connects, reads and reconnects until ctx is cancelled. It only
// returns ctx.Err().
func (d *Driver) Run(ctx context.Context) error {
	retry := newRetrySchedule(d.reconnectMin, d.reconnectMax)
	buf := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := d.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.dialFailures.Add(1)
			attempt, delay := retry.Failed()
			log.Printf("Transport: connect to %s failed: %v (attempt %d, retry in %s)", d.dialer, err, attempt, delay)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
			continue
		}
		retry.Connected()
		d.connects.Add(1)
		d.connected.Store(true)
		log.Printf("Transport: connected to %s", d.dialer)
		if d.OnState != nil {
			d.OnState(true, d.dialer.String())
		}

		err = d.session(ctx, conn, buf)

		d.connected.Store(false)
		d.sink.Reset()
		if d.OnState != nil {
			d.OnState(false, d.dialer.String())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("Transport: connection to %s lost: %v", d.dialer, err)
		timer := time.NewTimer(d.reconnectMin)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// session pumps one connection until it fails or ctx ends. Closing conn is
// what unblocks the read.
func (d *Driver) session(ctx context.Context, conn io.ReadWriteCloser, buf []byte) error {
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.writeLoop(ctx, conn, stop, closeConn)
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			d.bytesRead.Add(uint64(n))
			d.sink.Feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return err
		}
	}
}

func (d *Driver) writeLoop(ctx context.Context, conn io.ReadWriteCloser, stop <-chan struct{}, closeConn func()) {
	var ready <-chan struct{}
	if d.outbox != nil {
		ready = d.outbox.Ready()
		// Commands queued while disconnected go out first.
		if _, err := d.outbox.Drain(conn); err != nil {
			d.writeFailed(err, closeConn)
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			closeConn()
			return
		case <-stop:
			return
		case <-ready:
			if _, err := d.outbox.Drain(conn); err != nil {
				d.writeFailed(err, closeConn)
				return
			}
		}
	}
}

func (d *Driver) writeFailed(err error, closeConn func()) {
	d.writeErrors.Add(1)
	log.Printf("Transport: write to %s failed: %v", d.dialer, err)
	closeConn()
}

func (d *Driver) Connected() bool { return d.connected.Load() }

func (d *Driver) Stats() Stats {
	return Stats{
		Connected:    d.connected.Load(),
		Connects:     d.connects.Load(),
		DialFailures: d.dialFailures.Load(),
		BytesRead:    d.bytesRead.Load(),
		WriteErrors:  d.writeErrors.Load(),
	}
}
