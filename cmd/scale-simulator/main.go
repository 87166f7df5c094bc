// Scale Simulator - writes scale frames to a serial port
//
// Pair two virtual ports (for example with
// `socat -d -d pty,raw,echo=0 pty,raw,echo=0`), point a device entry at one
// end and run the simulator against the other:
//
//	scale-simulator --port /dev/pts/5 --format padded --weight 60
//
// A frame is written once per interval until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/pesanet/scale-telemetry/internal/infrastructure/logging"
	"github.com/pesanet/scale-telemetry/internal/scale"
)

// maxRandomWeight is the upper bound of --random weights (kg).
const maxRandomWeight = 150.0

// options holds the parsed command line.
type options struct {
	port     string
	baud     int
	format   scale.Encoding
	weight   float64
	random   bool
	interval time.Duration
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses args into options and validates them.
func parseFlags(args []string, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("scale-simulator", flag.ContinueOnError)
	fs.SetOutput(output)

	port := fs.String("port", "", "serial port to write frames to (required)")
	baud := fs.Int("baud", scale.DefaultBaudRate, "baud rate")
	format := fs.String("format", string(scale.EncodingStandard), "frame format: standard or padded")
	weight := fs.Float64("weight", 120.0, "fixed weight to send (kg)")
	random := fs.Bool("random", false, "send random weights between 0 and 150 kg instead of --weight")
	interval := fs.Duration("interval", time.Second, "time between frames")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		port:     *port,
		baud:     *baud,
		format:   scale.Encoding(*format),
		weight:   *weight,
		random:   *random,
		interval: *interval,
	}

	switch {
	case opts.port == "":
		return options{}, errors.New("--port is required")
	case opts.baud <= 0:
		return options{}, fmt.Errorf("--baud must be positive, got %d", opts.baud)
	case opts.format != scale.EncodingStandard && opts.format != scale.EncodingPadded:
		return options{}, fmt.Errorf("--format must be standard or padded, got %q", *format)
	case opts.interval <= 0:
		return options{}, fmt.Errorf("--interval must be positive, got %s", opts.interval)
	case opts.weight < 0:
		return options{}, fmt.Errorf("--weight must not be negative, got %g", opts.weight)
	}
	return opts, nil
}

// run opens the port and writes frames until ctx is cancelled.
func run(ctx context.Context, opts options) error {
	log := logging.Default().With("component", "simulator")

	port, err := serial.Open(opts.port, &serial.Mode{
		BaudRate: opts.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("opening %s: %w", opts.port, err)
	}
	defer port.Close() //nolint:errcheck // nothing useful to do on exit

	log.Info("simulator started",
		"port", opts.port,
		"baud", opts.baud,
		"format", opts.format,
		"random", opts.random,
		"interval", opts.interval,
	)

	err = simulate(ctx, port, opts, weightSource(opts), func(weight float64, frame []byte) {
		log.Debug("frame sent", "weight", weight, "bytes", len(frame))
	})
	log.Info("simulator stopped")
	return err
}

// weightSource returns the weight generator for opts.
func weightSource(opts options) func() float64 {
	if opts.random {
		return func() float64 { return rand.Float64() * maxRandomWeight }
	}
	return func() float64 { return opts.weight }
}

// encodeFrame renders weight in the given format.
func encodeFrame(format scale.Encoding, weight float64) []byte {
	if format == scale.EncodingPadded {
		return scale.EncodePadded(weight)
	}
	return scale.EncodeStandard(weight)
}

// simulate writes one frame immediately and then one per interval.
// It returns nil when ctx is cancelled and the write error otherwise.
func simulate(ctx context.Context, w io.Writer, opts options, next func() float64, sent func(float64, []byte)) error {
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for {
		weight := next()
		frame := encodeFrame(opts.format, weight)
		if _, err := w.Write(frame); err != nil {
			return fmt.Errorf("writing frame: %w", err)
		}
		if sent != nil {
			sent(weight, frame)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
