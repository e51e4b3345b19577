package main

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/csim/cache"
	"github.com/sarchlab/csim/config"
	"github.com/sarchlab/csim/report"
)

// yiTrace is the classic small trace used to sanity check cache simulators.
const yiTrace = ` L 10,1
 M 20,1
 L 22,1
 S 18,1
 L 110,1
 L 210,1
 M 12,1
`

var _ = Describe("csim", func() {
	var (
		tempDir     string
		tracePath   string
		resultsPath string
		stdout      *bytes.Buffer
		stderr      *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "csim-test")
		Expect(err).NotTo(HaveOccurred())

		tracePath = filepath.Join(tempDir, "yi.trace")
		Expect(os.WriteFile(tracePath, []byte(yiTrace), 0644)).To(Succeed())
		resultsPath = filepath.Join(tempDir, ".csim_results")

		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	execute := func(args ...string) (int, error) {
		cmd := newRootCmd(stdout, stderr)
		cmd.SetArgs(args)
		err := cmd.ExecuteContext(context.Background())
		return exitCode(cmd, err, stderr), err
	}

	DescribeTable("reproducing reference results on yi.trace",
		func(s, e, b, summary, sidecar string) {
			code, err := execute("-s", s, "-E", e, "-b", b, "-t", tracePath, "--results", resultsPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(0))
			Expect(stdout.String()).To(Equal(summary + "\n"))

			data, err := os.ReadFile(resultsPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(sidecar + "\n"))
		},
		Entry("direct-mapped, 2 sets", "1", "1", "1", "hits:2 misses:7 evictions:5", "2 7 5"),
		Entry("2-way, 16 sets", "4", "2", "4", "hits:4 misses:5 evictions:2", "4 5 2"),
		Entry("direct-mapped, 16 sets", "4", "1", "4", "hits:4 misses:5 evictions:3", "4 5 3"),
	)

	It("should agree between engines", func() {
		_, err := execute("-s", "4", "-E", "2", "-b", "4", "-t", tracePath, "--results", resultsPath, "--engine", "akita")
		Expect(err).NotTo(HaveOccurred())
		Expect(stdout.String()).To(Equal("hits:4 misses:5 evictions:2\n"))
	})

	It("should print every access in verbose mode", func() {
		_, err := execute("-v", "-s", "4", "-E", "2", "-b", "4", "-t", tracePath, "--results", resultsPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(stdout.String()).To(Equal(strings.Join([]string{
			"L 10,1 miss",
			"M 20,1 miss hit",
			"L 22,1 hit",
			"S 18,1 hit",
			"L 110,1 miss",
			"L 210,1 miss eviction",
			"M 12,1 miss eviction hit",
			"hits:4 misses:5 evictions:2",
			"",
		}, "\n")))
	})

	It("should report zeros for an empty trace", func() {
		empty := filepath.Join(tempDir, "empty.trace")
		Expect(os.WriteFile(empty, nil, 0644)).To(Succeed())

		_, err := execute("-s", "2", "-E", "2", "-b", "2", "-t", empty, "--results", resultsPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(stdout.String()).To(Equal("hits:0 misses:0 evictions:0\n"))
	})

	It("should skip an overlong trace line", func() {
		long := filepath.Join(tempDir, "long.trace")
		data := " L 10,1\n" + strings.Repeat("x", 70000) + "\n L 20,1\n"
		Expect(os.WriteFile(long, []byte(data), 0644)).To(Succeed())

		code, err := execute("-s", "4", "-E", "1", "-b", "4", "-t", long, "--results", resultsPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(0))
		Expect(stdout.String()).To(Equal("hits:0 misses:2 evictions:0\n"))
	})

	It("should log replay details with --debug", func() {
		_, err := execute("--debug", "-s", "1", "-E", "1", "-b", "1", "-t", tracePath, "--results", resultsPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(stderr.String()).To(ContainSubstring("starting replay"))
		Expect(stderr.String()).To(ContainSubstring("skipped=0"))
		Expect(stdout.String()).To(Equal("hits:2 misses:7 evictions:5\n"))
	})

	It("should keep stderr quiet without --debug", func() {
		_, err := execute("-s", "1", "-E", "1", "-b", "1", "-t", tracePath, "--results", resultsPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(stderr.String()).To(BeEmpty())
	})

	It("should fail with usage when an argument is missing", func() {
		code, err := execute("-s", "4", "-E", "1", "-t", tracePath, "--results", resultsPath)
		Expect(err).To(MatchError(config.ErrMissingArgument))
		Expect(code).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("missing required command line argument"))
		Expect(stderr.String()).To(ContainSubstring("Usage:"))
		Expect(resultsPath).NotTo(BeAnExistingFile())
	})

	It("should fail with usage on an invalid geometry", func() {
		code, err := execute("-s", "40", "-E", "1", "-b", "30", "-t", tracePath, "--results", resultsPath)
		Expect(err).To(MatchError(cache.ErrInvalidGeometry))
		Expect(code).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("Usage:"))
	})

	It("should fail with usage on an unknown flag", func() {
		code, err := execute("-x")
		Expect(err).To(HaveOccurred())
		Expect(code).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("Usage:"))
	})

	It("should fail without usage when the trace cannot be opened", func() {
		missing := filepath.Join(tempDir, "missing.trace")
		code, err := execute("-s", "1", "-E", "1", "-b", "1", "-t", missing, "--results", resultsPath)
		Expect(err).To(MatchError(os.ErrNotExist))
		Expect(code).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring(missing))
		Expect(stderr.String()).NotTo(ContainSubstring("Usage:"))
		Expect(stdout.String()).To(BeEmpty())
		Expect(resultsPath).NotTo(BeAnExistingFile())
	})

	It("should print help and succeed", func() {
		code, err := execute("-h")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(0))
		Expect(stdout.String()).To(ContainSubstring("-E, --ways"))
		Expect(stdout.String()).To(ContainSubstring("csim -s 4 -E 1 -b 4 -t traces/yi.trace"))
	})

	It("should take defaults from a config file", func() {
		cfg := filepath.Join(tempDir, "csim.json")
		Expect(os.WriteFile(cfg, []byte(`{"set_bits": 4, "ways": 1, "block_bits": 4}`), 0644)).To(Succeed())

		_, err := execute("--config", cfg, "-E", "2", "-t", tracePath, "--results", resultsPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(stdout.String()).To(Equal("hits:4 misses:5 evictions:2\n"))
	})

	It("should record accesses to SQLite", func() {
		dbPath := filepath.Join(tempDir, "accesses.sqlite3")
		_, err := execute("-s", "4", "-E", "2", "-b", "4", "-t", tracePath,
			"--results", resultsPath, "--record", dbPath)
		Expect(err).NotTo(HaveOccurred())

		db, err := sql.Open("sqlite3", dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = db.Close() }()

		var accesses, hits int
		Expect(db.QueryRow(`SELECT COUNT(*) FROM accesses`).Scan(&accesses)).To(Succeed())
		Expect(db.QueryRow(`SELECT hits FROM runs`).Scan(&hits)).To(Succeed())
		Expect(accesses).To(Equal(9))
		Expect(hits).To(Equal(4))
	})

	Describe("run", func() {
		It("should return the summary", func() {
			opts := config.Default()
			opts.Geometry = cache.Geometry{SetBits: 1, Ways: 1, BlockBits: 1}
			opts.TracePath = tracePath
			opts.ResultsPath = resultsPath

			logger := newLogger(io.Discard, false)
			summary, err := run(context.Background(), opts, stdout, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary).To(Equal(report.Summary{Hits: 2, Misses: 7, Evictions: 5}))
		})

		It("should stop on a cancelled context", func() {
			opts := config.Default()
			opts.Geometry = cache.Geometry{SetBits: 1, Ways: 1, BlockBits: 1}
			opts.TracePath = tracePath
			opts.ResultsPath = resultsPath

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			logger := newLogger(io.Discard, false)
			_, err := run(ctx, opts, stdout, logger)
			Expect(err).To(MatchError(context.Canceled))
			Expect(resultsPath).NotTo(BeAnExistingFile())
		})
	})

	Describe("newLogger", func() {
		It("should log warnings but not debug messages by default", func() {
			var buf bytes.Buffer
			logger := newLogger(&buf, false)
			logger.Debug("hidden")
			logger.Warn("shown")
			Expect(buf.String()).NotTo(ContainSubstring("hidden"))
			Expect(buf.String()).To(ContainSubstring("shown"))
		})

		It("should log debug messages when asked", func() {
			var buf bytes.Buffer
			newLogger(&buf, true).Debug("details")
			Expect(buf.String()).To(ContainSubstring("level=debug"))
			Expect(buf.String()).To(ContainSubstring("details"))
		})
	})

	Describe("profiled", func() {
		It("should write CPU and memory profiles", func() {
			cpu := filepath.Join(tempDir, "cpu.prof")
			mem := filepath.Join(tempDir, "mem.prof")

			Expect(profiled(cpu, mem, func() error { return nil })).To(Succeed())
			Expect(cpu).To(BeAnExistingFile())
			Expect(mem).To(BeAnExistingFile())
		})
	})
})
