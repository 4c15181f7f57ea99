// Command hostsim serves a simulated host on TCP: a status snapshot every
// interval, artwork once per track, and acknowledgements for play/pause. It
// decodes and applies every command the dashboard sends so the full control
// loop can be exercised without the real host.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mediadash/artwork"
	"mediadash/protocol"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:5555", "address to listen on")
	interval := flag.Duration("interval", time.Second, "snapshot interval")
	width := flag.Int("width", artwork.DefaultFormat.Width, "artwork width in pixels")
	height := flag.Int("height", artwork.DefaultFormat.Height, "artwork height in pixels")
	bigEndian := flag.Bool("big_endian", false, "emit big-endian RGB565 pixels")
	flag.Parse()

	format := artwork.Format{Width: *width, Height: *height, BigEndian: *bigEndian}
	if err := format.Validate(); err != nil {
		log.Fatalf("hostsim: %v", err)
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("hostsim: listen %s: %v", *listen, err)
	}
	log.Printf("hostsim: serving %dx%d artwork on %s every %s", format.Width, format.Height, ln.Addr(), *interval)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	host := newSimHost(format)
	go runClock(ctx, host, *interval)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			log.Printf("hostsim: accept: %v", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, host, conn, *interval)
		}()
	}
	wg.Wait()
	log.Printf("hostsim: stopped")
}

func runClock(ctx context.Context, host *simHost, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			host.advance(now.Sub(last))
			last = now
		}
	}
}

// serveConn streams snapshots to one client and applies its commands.
// Writes from the command reader and the snapshot ticker share writeMu.
func serveConn(ctx context.Context, host *simHost, conn net.Conn, interval time.Duration) {
	remote := conn.RemoteAddr().String()
	log.Printf("hostsim: client %s connected", remote)
	defer log.Printf("hostsim: client %s disconnected", remote)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()
	host.forgetArtwork()

	var writeMu sync.Mutex
	writeLine := func(line []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_, err := conn.Write(append(line, '\n'))
		return err
	}

	go func() {
		defer cancel()
		readCommands(conn, host, writeLine)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, b64 := host.snapshot()
		line, err := protocol.EncodeSnapshot(&snap, b64)
		if err != nil {
			log.Printf("hostsim: encode snapshot: %v", err)
			return
		}
		if err := writeLine(line); err != nil {
			log.Printf("hostsim: write to %s failed: %v", remote, err)
			return
		}
		select {
		case <-connCtx.Done():
			return
		case <-ticker.C:
		}
	}
}

func readCommands(conn net.Conn, host *simHost, writeLine func([]byte) error) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, protocol.MaxCommandBytes), 4*protocol.MaxCommandBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cmd, err := protocol.DecodeCommand(line)
		if err != nil {
			log.Printf("hostsim: bad command %q: %v", line, err)
			continue
		}
		ack, err := host.apply(cmd)
		if err != nil {
			log.Printf("hostsim: command %s rejected: %v", cmd.Name, err)
			continue
		}
		log.Printf("hostsim: applied %s", line)
		if ack == "" {
			continue
		}
		out, err := protocol.EncodeAck(ack)
		if err != nil {
			log.Printf("hostsim: encode ack: %v", err)
			continue
		}
		if err := writeLine(out); err != nil {
			return
		}
	}
}
