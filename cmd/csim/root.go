package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/csim/config"
)

// usageError marks errors caused by a bad command line. They are reported
// together with the usage text.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type flagValues struct {
	setBits    int
	ways       int
	blockBits  int
	trace      string
	verbose    bool
	engine     string
	results    string
	record     string
	configFile string
	cpuProfile string
	memProfile string
	debug      bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags flagValues

	cmd := &cobra.Command{
		Use:   "csim [-hv] -s <num> -E <num> -b <num> -t <file>",
		Short: "Simulate a set-associative LRU cache on a memory trace.",
		Long: "csim replays a Valgrind memory trace against a set-associative cache " +
			"with LRU replacement and reports the number of hits, misses and evictions.",
		Example: "  csim -s 4 -E 1 -b 4 -t traces/yi.trace\n" +
			"  csim -v -s 8 -E 2 -b 4 -t traces/yi.trace",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(cmd, &flags)
			if err != nil {
				return err
			}

			logger := newLogger(stderr, flags.debug)

			return profiled(flags.cpuProfile, flags.memProfile, func() error {
				_, err := run(cmd.Context(), opts, stdout, logger)
				return err
			})
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	f := cmd.Flags()
	f.SortFlags = false
	f.IntVarP(&flags.setBits, "set-bits", "s", 0, "Number of set index bits.")
	f.IntVarP(&flags.ways, "ways", "E", 0, "Number of lines per set.")
	f.IntVarP(&flags.blockBits, "block-bits", "b", 0, "Number of block offset bits.")
	f.StringVarP(&flags.trace, "trace", "t", "", "Trace file.")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Print every access and its outcome.")
	f.StringVar(&flags.engine, "engine", string(config.EngineLRU), "Cache model: lru or akita.")
	f.StringVar(&flags.results, "results", "", "Results file (default .csim_results).")
	f.StringVar(&flags.record, "record", "", "SQLite database that receives every access.")
	f.StringVar(&flags.configFile, "config", "", "JSON file with default options.")
	f.StringVar(&flags.cpuProfile, "cpuprofile", "", "Write a CPU profile to file.")
	f.StringVar(&flags.memProfile, "memprofile", "", "Write a memory profile to file.")
	f.BoolVar(&flags.debug, "debug", false, "Enable debug logging on stderr.")

	return cmd
}

// newLogger creates the diagnostics logger. Only warnings and errors are
// shown unless debug is set.
func newLogger(w io.Writer, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	logger.SetLevel(logrus.WarnLevel)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// buildOptions layers defaults, environment, config file and flags, in that
// order of increasing precedence.
func buildOptions(cmd *cobra.Command, flags *flagValues) (*config.Options, error) {
	opts := config.Default()

	if err := opts.ApplyEnv(); err != nil {
		return nil, err
	}

	if flags.configFile != "" {
		if err := opts.LoadFile(flags.configFile); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("set-bits") {
		opts.SetBits = flags.setBits
	}
	if changed("ways") {
		opts.Ways = flags.ways
	}
	if changed("block-bits") {
		opts.BlockBits = flags.blockBits
	}
	if changed("trace") {
		opts.TracePath = flags.trace
	}
	if changed("verbose") {
		opts.Verbose = flags.verbose
	}
	if changed("engine") {
		opts.Engine = config.Engine(flags.engine)
	}
	if changed("results") {
		opts.ResultsPath = flags.results
	}
	if changed("record") {
		opts.RecordPath = flags.record
	}

	if err := opts.Validate(); err != nil {
		return nil, &usageError{err: err}
	}

	return opts, nil
}

// exitCode reports err and returns the process exit code for it.
func exitCode(cmd *cobra.Command, err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}

	fmt.Fprintf(stderr, "%s: %v\n", cmd.Name(), err)

	var ue *usageError
	if errors.As(err, &ue) {
		cmd.SetOut(stderr)
		_ = cmd.Usage()
	}

	return 1
}
