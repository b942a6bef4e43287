package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/pflag"

	"github.com/etnz/library-versions/apt"
	"github.com/etnz/library-versions/fetch"
	"github.com/etnz/library-versions/manifest"
	"github.com/etnz/library-versions/pipeline"
	"github.com/etnz/library-versions/registry"
)

const userAgent = "library-versions/1"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "poll":
		err = runPoll(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "cat":
		err = runCat(ctx, os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: library-versions <command> [flags]")
	fmt.Println("\nCommands:")
	fmt.Println("  poll     Print the latest versions once")
	fmt.Println("  serve    Poll periodically and serve the versions over HTTP")
	fmt.Println("  cat      Decode a URL or file and print its lines")
}

// commonFlags are shared by poll and serve.
type commonFlags struct {
	manifest string
	state    string
	logLevel string
	parallel int
}

func (c *commonFlags) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.manifest, "manifest", "m", "", "Path to a YAML or JSON manifest (default: built-in resolvers)")
	fs.StringVar(&c.state, "state", "", "Path to the state file remembering versions and .deb metadata")
	fs.StringVar(&c.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	fs.IntVar(&c.parallel, "parallel", registry.DefaultConcurrency, "Resolvers polled at once")
}

// newLogger returns a logfmt logger on stderr filtered at lvl.
func newLogger(w io.Writer, lvl string) (log.Logger, error) {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	var opt level.Option
	switch strings.ToLower(lvl) {
	case "debug":
		opt = level.AllowDebug()
	case "info":
		opt = level.AllowInfo()
	case "warn", "":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, fmt.Errorf("invalid log level %q", lvl)
	}
	return level.NewFilter(logger, opt), nil
}

// defaultResolvers are polled when no manifest is given.
func defaultResolvers() []registry.Resolver {
	re := regexp.MustCompile
	return []registry.Resolver{
		registry.MavenCentral("org.jetbrains.kotlinx", "kotlinx-coroutines-core"),
		registry.MavenCentral("org.eclipse.jetty", "jetty-server", re(`^9`)),
		registry.MavenCentral("com.google.guava", "guava"),
		registry.MavenCentral("com.fasterxml.jackson.core", "jackson-core"),
		registry.MavenCentral("com.google.inject", "guice"),
		registry.MavenCentral("org.slf4j", "slf4j-api", re(`^1\.7`)),
		registry.MavenCentral("ch.qos.logback", "logback-classic", re(`^1\.2`)),
		registry.MavenCentral("com.google.protobuf", "protobuf-java"),
		registry.MavenCentral("org.scala-lang", "scala-library", re(`^2\.13`), re(`^2\.12`), re(`^2\.11`)),
		registry.MavenCentral("org.jetbrains.kotlin", "kotlin-stdlib"),
		registry.Gradle{},
		registry.NodeJs{},
		apt.Zulu(),
	}
}

// app holds what poll and serve share.
type app struct {
	logger   log.Logger
	client   *fetch.Client
	poller   *registry.Poller
	manifest *manifest.Manifest
	state    *state
}

func newApp(c commonFlags, metrics *pipeline.Metrics, pollMetrics *registry.Metrics) (*app, error) {
	logger, err := newLogger(os.Stderr, c.logLevel)
	if err != nil {
		return nil, err
	}
	client := &fetch.Client{Metrics: metrics, Logger: logger, UserAgent: userAgent}
	a := &app{
		logger: logger,
		client: client,
		poller: &registry.Poller{Client: client, Logger: logger, Metrics: pollMetrics, Concurrency: c.parallel},
		state:  loadState(logger, c.state),
	}
	if c.manifest != "" {
		if a.manifest, err = manifest.Load(c.manifest); err != nil {
			return nil, err
		}
		level.Info(logger).Log("msg", "manifest loaded", "path", c.manifest, "resolvers", len(a.manifest.Resolvers))
	}
	return a, nil
}

// poll runs the manifest resolvers, or the default ones.
func (a *app) poll(ctx context.Context) ([]registry.Result, error) {
	var (
		results []registry.Result
		err     error
	)
	if a.manifest != nil {
		results, err = a.manifest.Poll(ctx, a.poller, a.state.assets, func(e fmt.Stringer) {
			level.Debug(a.logger).Log("event", e)
		})
	} else {
		results, err = a.poller.Poll(ctx, defaultResolvers())
	}
	return results, err
}

func runPoll(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("poll", pflag.ContinueOnError)
	var c commonFlags
	c.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(c, nil, nil)
	if err != nil {
		return err
	}
	results, err := a.poll(ctx)
	if err != nil {
		return err
	}
	changed := a.state.update(results)
	writeReport(os.Stdout, results, changed)
	if c.state != "" {
		if err := a.state.save(c.state); err != nil {
			level.Warn(a.logger).Log("msg", "could not save state", "path", c.state, "err", err)
		}
	}
	return nil
}

// writeReport prints results the way the console report always looked:
// a title, then each resolver followed by its versions. Versions that
// differ from the previous poll are marked.
func writeReport(w io.Writer, results []registry.Result, changed map[string]bool) {
	fmt.Fprintln(w, "Latest Versions")
	fmt.Fprintln(w, "===============")
	fmt.Fprintln(w, "")
	for _, res := range results {
		fmt.Fprintf(w, "- %s\n", res.Resolver)
		if res.Err != nil {
			fmt.Fprintf(w, "  FAILED: %v\n", res.Err)
			continue
		}
		for _, v := range res.Versions {
			if changed[res.Resolver] {
				fmt.Fprintf(w, "  %s (changed)\n", v)
			} else {
				fmt.Fprintf(w, "  %s\n", v)
			}
		}
	}
}

func runCat(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("cat", pflag.ContinueOnError)
	var cfg pipeline.Config
	fs.StringVarP(&cfg.ContentEncoding, "encoding", "e", "", "Content coding of the input: gzip, deflate, zstd or identity (default: from the response, or the .gz/.zst extension)")
	fs.StringVar(&cfg.Charset, "charset", "", "Charset of the decoded bytes (default utf-8)")
	fs.StringVar(&cfg.Separator, "separator", "", `Line separator (default "\n")`)
	fs.IntVar(&cfg.ChunkSize, "chunk-size", 0, "Read size in bytes")
	fs.IntVar(&cfg.MaxLine, "max-line", 0, "Longest accepted line, 0 for no limit")
	numbered := fs.BoolP("number", "n", false, "Number the output lines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("cat takes exactly one URL or file")
	}
	target := fs.Arg(0)
	if cfg.ContentEncoding == "" {
		switch {
		case strings.HasSuffix(target, ".gz"):
			cfg.ContentEncoding = "gzip"
		case strings.HasSuffix(target, ".zst"):
			cfg.ContentEncoding = "zstd"
		}
	}

	n := 0
	emit := func(line string) error {
		n++
		var err error
		if *numbered {
			_, err = fmt.Fprintf(out, "%6d\t%s\n", n, line)
		} else {
			_, err = fmt.Fprintln(out, line)
		}
		return err
	}

	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		client := &fetch.Client{UserAgent: userAgent}
		return client.Lines(ctx, fetch.Request{URL: target, Config: cfg}, emit)
	}

	f, err := os.Open(target)
	if err != nil {
		return err
	}
	defer f.Close()
	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	feed := p.Open(ctx, f)
	defer feed.Close()
	if err := p.Lines(ctx, feed, emit); err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	return nil
}
