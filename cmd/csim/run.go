package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/csim/config"
	"github.com/sarchlab/csim/record"
	"github.com/sarchlab/csim/replay"
	"github.com/sarchlab/csim/report"
	"github.com/sarchlab/csim/trace"
)

// run replays the configured trace and reports the statistics.
func run(
	ctx context.Context,
	opts *config.Options,
	stdout io.Writer,
	logger *logrus.Logger,
) (report.Summary, error) {
	tf, err := trace.Open(opts.TracePath)
	if err != nil {
		return report.Summary{}, err
	}
	defer func() { _ = tf.Close() }()

	classifier, err := opts.Engine.New(opts.Geometry)
	if err != nil {
		return report.Summary{}, err
	}

	out := bufio.NewWriter(stdout)
	defer func() { _ = out.Flush() }()

	var replayOpts []replay.Option

	var printer *replay.VerbosePrinter
	if opts.Verbose {
		printer = replay.NewVerbosePrinter(out)
		replayOpts = append(replayOpts, replay.WithObserver(printer))
	}

	var recorder *record.Recorder
	if opts.RecordPath != "" {
		recorder, err = record.New(opts.RecordPath, record.Run{
			Geometry: opts.Geometry,
			Trace:    opts.TracePath,
		})
		if err != nil {
			return report.Summary{}, err
		}
		defer func() { _ = recorder.Close() }()

		logger.WithFields(logrus.Fields{
			"db":  opts.RecordPath,
			"run": recorder.RunID(),
		}).Info("recording accesses")
		replayOpts = append(replayOpts, replay.WithObserver(recorder))
	}

	logger.WithFields(logrus.Fields{
		"trace":    opts.TracePath,
		"geometry": opts.Geometry.String(),
		"engine":   string(opts.Engine),
	}).Debug("starting replay")

	replayer := replay.New(classifier, replayOpts...)
	stats, err := replayer.Run(ctx, tf)
	if err != nil {
		return report.Summary{}, fmt.Errorf("replay of %s failed: %w", opts.TracePath, err)
	}

	logger.WithFields(logrus.Fields{
		"records": replayer.Records(),
		"lines":   tf.Line(),
		"skipped": tf.Skipped(),
	}).Debug("replay finished")

	if printer != nil && printer.Err() != nil {
		return report.Summary{}, printer.Err()
	}

	if recorder != nil {
		if err := recorder.FinishRun(stats); err != nil {
			return report.Summary{}, err
		}
	}

	summary := report.FromStats(stats)
	if err := summary.Print(out); err != nil {
		return report.Summary{}, fmt.Errorf("failed to print summary: %w", err)
	}
	if err := out.Flush(); err != nil {
		return report.Summary{}, fmt.Errorf("failed to print summary: %w", err)
	}

	if err := summary.WriteResults(opts.ResultsPath); err != nil {
		return report.Summary{}, err
	}

	return summary, nil
}

// profiled runs fn, optionally under the CPU profiler, and writes a heap
// profile afterwards when memProfile is set.
func profiled(cpuProfile, memProfile string, fn func() error) error {
	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile: %w", err)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	if err := fn(); err != nil {
		return err
	}

	if memProfile != "" {
		f, err := os.Create(memProfile)
		if err != nil {
			return fmt.Errorf("failed to create memory profile: %w", err)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	return nil
}
