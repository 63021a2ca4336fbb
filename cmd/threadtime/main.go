package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/containerd/log"
	metrics "github.com/docker/go-metrics"
	units "github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/moby/threadtime/capability"
	"github.com/moby/threadtime/cputime"
	"github.com/moby/threadtime/telemetry"
)

type sampleOptions struct {
	count       int
	interval    time.Duration
	busy        time.Duration
	metricsAddr string
	logLevel    string
	flags       *pflag.FlagSet
}

func newThreadtimeCommand() *cobra.Command {
	opts := sampleOptions{}

	cmd := &cobra.Command{
		Use:           "threadtime [OPTIONS]",
		Short:         "Sample the accumulated CPU time of the calling thread.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.flags = cmd.Flags()
			return runSample(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.count, "count", "n", 5, "Number of samples to take")
	flags.DurationVar(&opts.interval, "interval", time.Second, "Delay between samples")
	flags.DurationVar(&opts.busy, "busy", 0, "Wall time to spin the CPU for before each sample")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Address to serve prometheus metrics on")
	flags.StringVar(&opts.logLevel, "log-level", "info", `Logging level ("debug"|"info"|"warn"|"error")`)

	return cmd
}

func runSample(ctx context.Context, opts sampleOptions) error {
	if err := log.SetLevel(opts.logLevel); err != nil {
		return err
	}
	opts.flags.Visit(func(f *pflag.Flag) {
		log.G(ctx).WithField(f.Name, f.Value.String()).Debug("flag set")
	})
	if err := capability.Bootstrap(ctx); err != nil {
		return err
	}
	timer, err := cputime.Lookup()
	if err != nil {
		return err
	}
	tel, err := telemetry.Lookup()
	if err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", tel.Handler())
			if err := http.ListenAndServe(opts.metricsAddr, mux); err != nil {
				log.G(ctx).WithError(err).Error("metrics server stopped")
			}
		}()
		log.G(ctx).WithField("addr", opts.metricsAddr).Info("serving metrics")
	}

	// Samples are only attributable to one thread while we stay on it.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var prev int64
	for i := 0; i < opts.count; i++ {
		if opts.busy > 0 {
			spin(opts.busy)
		}

		done := metrics.StartTimer(tel.SampleTimer())
		sample, err := timer.CurrentThreadCPUTime(true)
		done()
		if err != nil {
			tel.SampleFailures().Inc()
			return err
		}

		log.G(ctx).WithFields(log.Fields{
			"sample":   i,
			"cpu_ns":   sample,
			"delta_ns": sample - prev,
		}).Debug("thread CPU time")
		fmt.Printf("sample %d: %s CPU time (+%s)\n", i,
			time.Duration(sample), time.Duration(sample-prev))
		prev = sample

		if i < opts.count-1 && opts.interval > 0 {
			time.Sleep(opts.interval)
		}
	}

	log.G(ctx).WithField("total", units.HumanDuration(time.Duration(prev))).Info("sampling done")
	return nil
}

// spin burns CPU on the calling thread for roughly d of wall time.
func spin(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}

func main() {
	if err := newThreadtimeCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
