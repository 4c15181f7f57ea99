// Command feedprobe connects to the host with the configured transport, runs
// the same ingestion pipeline as the dashboard, and prints one line per
// classified frame. It is a standalone debugging utility; nothing is drawn
// and no commands are sent unless -send names one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"mediadash/artwork"
	"mediadash/commands"
	"mediadash/config"
	"mediadash/ingest"
	"mediadash/mailbox"
	"mediadash/protocol"
	"mediadash/stats"
	"mediadash/transport"
)

func main() {
	configPath := flag.String("config", "", "config file or directory (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	kind := flag.String("kind", "", "override transport.kind")
	host := flag.String("host", "", "override transport.host")
	port := flag.Int("port", 0, "override transport.port")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	send := flag.String("send", "", "command to send once connected (play, pause, next, previous)")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		if *configPath != "" || !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("feedprobe: %v", err)
		}
		cfg = config.Default()
	}
	if *kind != "" {
		cfg.Transport.Kind = strings.ToLower(*kind)
	}
	if *host != "" {
		cfg.Transport.Host = *host
	}
	if *port > 0 {
		cfg.Transport.Port = *port
	}

	dialer, err := transport.NewDialer(cfg.Transport)
	if err != nil {
		log.Fatalf("feedprobe: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	format := artwork.Format{Width: cfg.Artwork.Width, Height: cfg.Artwork.Height, BigEndian: cfg.Artwork.BigEndian}
	tracker := stats.NewTracker()
	pipeline := ingest.New(ingest.Options{
		MaxLine: cfg.Framer.MaxLineBytes,
		Mailbox: &mailbox.Mailbox[protocol.Snapshot]{},
		Artwork: artwork.NewDecoder(artwork.NewBuffer(format), cfg.Artwork.HashPrefixBytes, nil),
		Stats:   tracker,
		OnFrame: func(f *protocol.Frame) {
			fmt.Printf("%s %s\n", time.Now().Format("15:04:05.000"), describeFrame(f))
		},
	})

	outbox := commands.NewProcessor(cfg.Commands.QueueDepth, cfg.Commands.MaxBytes, nil)
	driver := transport.NewDriver(dialer, pipeline, outbox, cfg.Transport.ReconnectDelay(), cfg.Transport.ReconnectMax())
	driver.OnState = func(connected bool, endpoint string) {
		log.Printf("feedprobe: %s connected=%v", endpoint, connected)
		if connected && *send != "" {
			cmd, ok := probeCommand(*send)
			if !ok {
				log.Printf("feedprobe: unknown -send command %q", *send)
				return
			}
			log.Printf("feedprobe: send %s: %s", cmd.Name, outbox.Submit(cmd))
		}
	}

	log.Printf("feedprobe: probing %s", dialer)
	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("feedprobe: %v", err)
	}
	for _, line := range tracker.SnapshotLines() {
		log.Print(line)
	}
	ds := driver.Stats()
	log.Printf("feedprobe: %d connects, %d dial failures, %s read", ds.Connects, ds.DialFailures, humanize.Bytes(ds.BytesRead))
}

func probeCommand(name string) (protocol.Command, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case protocol.CmdPlay:
		return protocol.Play(), true
	case protocol.CmdPause:
		return protocol.Pause(), true
	case protocol.CmdNext:
		return protocol.Next(), true
	case protocol.CmdPrevious:
		return protocol.Previous(), true
	}
	return protocol.Command{}, false
}

// describeFrame renders one classified frame as a single line.
func describeFrame(f *protocol.Frame) string {
	switch f.Kind {
	case protocol.KindSnapshot:
		s := &f.Snapshot
		var b strings.Builder
		fmt.Fprintf(&b, "snapshot cpu=%.1f mem=%.1f gpu=%.1f procs=%d", s.CPU, s.Mem, s.GPU, s.ProcessCount)
		if s.HasMedia {
			m := s.Media
			state := "paused"
			if m.Playing {
				state = "playing"
			}
			fmt.Fprintf(&b, " media=%q by %q %d/%ds %s", m.Title, m.Artist, m.Position, m.Duration, state)
		}
		if s.HasQueue {
			fmt.Fprintf(&b, " queue=%d", s.QueueCount)
		}
		if s.HasArtwork {
			fmt.Fprintf(&b, " artwork=%s", f.Artwork)
		}
		return b.String()
	case protocol.KindAck:
		return "ack " + f.Ack
	case protocol.KindArtwork, protocol.KindArtworkChunk:
		if f.Err != nil {
			return fmt.Sprintf("%s %s err=%v", f.Kind, f.Artwork, f.Err)
		}
		return fmt.Sprintf("%s %s", f.Kind, f.Artwork)
	default:
		if f.Err != nil {
			return fmt.Sprintf("ignore err=%v", f.Err)
		}
		return "ignore"
	}
}
