// Command replay sends a capture file to a UDP listener at a fixed interval,
// mimicking a game streaming Dash telemetry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/banshee-data/laptime.report/internal/capture"
	"github.com/banshee-data/laptime.report/internal/config"
	"github.com/banshee-data/laptime.report/internal/timeutil"
)

func main() {
	input := flag.String("i", "udp-packets"+capture.FileExtension, "capture file to replay")
	host := flag.String("host", "127.0.0.1", "destination host")
	port := flag.Int("port", config.DefaultUDPPort, "destination UDP port")
	interval := flag.Duration("interval", 16*time.Millisecond, "delay between frames")
	loop := flag.Bool("loop", false, "restart from the beginning when the file ends")
	flag.Parse()

	frames, err := capture.ReadFile(*input)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	if len(frames) == 0 {
		log.Fatalf("replay: %s contains no frames", *input)
	}

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Replaying %d frames from %s to %s every %v (loop=%v)", len(frames), *input, addr, *interval, *loop)
	sent, err := replay(ctx, conn, frames, timeutil.RealClock{}, *interval, *loop)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("replay: %v", err)
	}
	log.Printf("Sent %d frames", sent)
}

// replay writes frames to w, one per tick. It returns when the frames are
// exhausted (unless loop is set) or ctx is cancelled.
func replay(ctx context.Context, w io.Writer, frames [][]byte, clock timeutil.Clock, interval time.Duration, loop bool) (int, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %v", interval)
	}
	if len(frames) == 0 {
		return 0, nil
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for i := 0; ; {
		if _, err := w.Write(frames[i]); err != nil {
			return sent, fmt.Errorf("send frame %d: %w", i, err)
		}
		sent++

		i++
		if i == len(frames) {
			if !loop {
				return sent, nil
			}
			i = 0
		}

		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case <-ticker.C():
		}
	}
}
