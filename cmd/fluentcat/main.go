// Command fluentcat reads JSON objects, one per line, from stdin and forwards
// each one as a record to a Fluent collector.
//
//	tail -F app.log.json | fluentcat --host fluentd.internal --tag app.access
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/bitdabbler/fluentfwd"
	"github.com/bitdabbler/fluentfwd/config"
)

// maxLineSize bounds one input line.
const maxLineSize = 1 << 20

var errFailuresReported = errors.New("failures were reported")

func main() {
	if err := newApp(os.Stdin).Run(context.Background(), os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func newApp(in io.Reader) *cli.Command {
	return &cli.Command{
		Name:  "fluentcat",
		Usage: "Forward JSON lines from stdin to a Fluent collector",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML config file; flags override its values",
			},
			&cli.StringFlag{
				Name:  "host",
				Value: "127.0.0.1",
				Usage: "Fluent collector host",
			},
			&cli.IntFlag{
				Name:  "port",
				Value: 24224,
				Usage: "Fluent collector port",
			},
			&cli.StringFlag{
				Name:    "tag",
				Aliases: []string{"t"},
				Usage:   "tag for every record",
			},
			&cli.BoolFlag{
				Name:  "integer-time",
				Usage: "send whole seconds instead of EventTime",
			},
			&cli.BoolFlag{
				Name:  "binary",
				Usage: "use the msgpack bin and str8 formats",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "write debug logs to stderr",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			opts, err := forwarderOptions(c)
			if err != nil {
				return err
			}
			return run(ctx, opts, in)
		},
	}
}

// forwarderOptions starts from the config file, if any, and applies the flags
// that were set explicitly.
func forwarderOptions(c *cli.Command) (*fluentfwd.ForwarderOptions, error) {
	cfg := config.Default()
	if path := c.String("config"); len(path) > 0 {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	opts, err := cfg.ForwarderOptions()
	if err != nil {
		return nil, err
	}

	if c.IsSet("host") || len(opts.Host) == 0 {
		opts.Host = c.String("host")
	}
	if c.IsSet("port") || opts.Port == 0 {
		opts.Port = int(c.Int("port"))
	}
	if c.IsSet("tag") {
		opts.Tag = c.String("tag")
	}
	if c.Bool("integer-time") {
		opts.Encoder.TimeMode = fluentfwd.IntegerTimeMode
	}
	if c.Bool("binary") {
		opts.Encoder.Compat = fluentfwd.CompatBinary
	}
	if c.Bool("verbose") {
		opts.Verbose = true
	}
	return opts, nil
}

// run forwards every line of in. Bad lines and forwarding failures are
// logged and counted; a non-zero count fails the command.
func run(ctx context.Context, opts *fluentfwd.ForwarderOptions, in io.Reader) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	if opts.Verbose {
		fluentfwd.SetInternalLogger(logger.Named("fluentfwd"))
		defer fluentfwd.SetInternalLogger(nil)
	}

	failures := 0
	sink := fluentfwd.ZapErrorSink(logger)
	opts.ErrorSink = fluentfwd.ErrorSinkFunc(func(err error) {
		failures++
		sink.Report(err)
	})

	fwd, err := fluentfwd.NewForwarder(opts)
	if err != nil {
		return err
	}
	fwd.Start(ctx)
	defer fwd.Stop()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}

		fields, err := parseRecord(b)
		if err != nil {
			failures++
			logger.Warn("skipping line", zap.Int("line", line), zap.Error(err))
			continue
		}
		fwd.Emit(ctx, fluentfwd.Record{Fields: fields})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	// Stop may report a cleanup failure, so it must run before the count
	fwd.Stop()

	if failures > 0 {
		return fmt.Errorf("%w: %d", errFailuresReported, failures)
	}
	return nil
}
