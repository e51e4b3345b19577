// Package config gathers the options of a simulation run from flags, an
// optional JSON file and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/sarchlab/csim/cache"
	"github.com/sarchlab/csim/report"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvResultsFile = "CSIM_RESULTS_FILE"
	EnvEngine      = "CSIM_ENGINE"
	EnvRecord      = "CSIM_RECORD"
)

var (
	// ErrMissingArgument is returned when a required option is not set.
	ErrMissingArgument = errors.New("missing required command line argument")
	// ErrUnknownEngine is returned for an engine name that is not supported.
	ErrUnknownEngine = errors.New("unknown engine")
)

// Engine selects the cache model used for a run.
type Engine string

const (
	// EngineLRU is the logical-clock LRU cache.
	EngineLRU Engine = "lru"
	// EngineAkita is the reference model built on the Akita cache directory.
	EngineAkita Engine = "akita"
)

// New builds a classifier of this engine for the geometry.
func (e Engine) New(g cache.Geometry) (cache.Classifier, error) {
	switch e {
	case EngineLRU:
		c, err := cache.New(g)
		if err != nil {
			return nil, err
		}
		return c, nil
	case EngineAkita:
		r, err := cache.NewReference(g)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEngine, string(e))
	}
}

// Options holds everything a run needs.
type Options struct {
	cache.Geometry

	TracePath   string `json:"trace"`
	Verbose     bool   `json:"verbose"`
	Engine      Engine `json:"engine"`
	ResultsPath string `json:"results_file"`
	// RecordPath is an optional SQLite database receiving every access.
	RecordPath string `json:"record"`
}

// Default returns the options used when nothing else is configured.
func Default() *Options {
	return &Options{
		Engine:      EngineLRU,
		ResultsPath: report.DefaultResultsPath,
	}
}

// LoadFile overlays the options found in a JSON file.
func (o *Options) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, o); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// ApplyEnv loads the given dotenv files (".env" when none is given) into the
// process environment and overlays the CSIM_* variables. Missing dotenv
// files are ignored.
func (o *Options) ApplyEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	if v, ok := os.LookupEnv(EnvResultsFile); ok && v != "" {
		o.ResultsPath = v
	}
	if v, ok := os.LookupEnv(EnvEngine); ok && v != "" {
		o.Engine = Engine(v)
	}
	if v, ok := os.LookupEnv(EnvRecord); ok {
		o.RecordPath = v
	}

	return nil
}

// Validate checks that all required options are present and usable.
func (o *Options) Validate() error {
	if o.SetBits == 0 || o.Ways == 0 || o.BlockBits == 0 || o.TracePath == "" {
		return ErrMissingArgument
	}

	if err := o.Geometry.Validate(); err != nil {
		return err
	}

	switch o.Engine {
	case EngineLRU, EngineAkita:
	default:
		return fmt.Errorf("%w %q", ErrUnknownEngine, string(o.Engine))
	}

	if o.ResultsPath == "" {
		return fmt.Errorf("results file path must not be empty")
	}

	return nil
}
