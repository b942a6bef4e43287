package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/template"

	"github.com/spf13/pflag"

	"github.com/etnz/library-versions/deb"
	"github.com/etnz/library-versions/fetch"
)

// main is the entry point for the deb-pm CLI tool.
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "show":
		err = runShow(ctx, os.Args[2:], os.Stdout)
	case "compare":
		err = runCompare(os.Args[2:], os.Stdout)
	case "latest":
		err = runLatest(os.Args[2:], os.Stdout)
	default:
		printUsage()
		os.Exit(1)
	}
	if errors.Is(err, errFalse) {
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(2)
	}
}

// printUsage prints the help message to stdout.
func printUsage() {
	fmt.Println("Usage: deb-pm <command> [flags]")
	fmt.Println("\nCommands:")
	fmt.Println("  show     Print the control fields of a .deb file or URL")
	fmt.Println("  compare  Compare two Debian versions")
	fmt.Println("  latest   Print the highest of the given Debian versions")
}

// errFalse makes compare exit with 1 when a relation does not hold.
var errFalse = errors.New("relation does not hold")

// runShow prints the control file of a package, or renders it through
// --format with the fields as template data.
func runShow(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
	format := fs.StringP("format", "f", "", `Go template over the control fields, e.g. '{{.Package}} {{.Version}}'`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("show takes exactly one file or URL")
	}

	var tmpl *template.Template
	if *format != "" {
		var err error
		tmpl, err = template.New("format").Option("missingkey=error").Parse(*format)
		if err != nil {
			return fmt.Errorf("invalid format: %w", err)
		}
	}

	stanza, err := readDeb(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	if tmpl == nil {
		for _, name := range stanza.Fields() {
			v, _ := stanza.Lookup(name)
			fmt.Fprintf(out, "%s: %s\n", name, v)
		}
		return nil
	}
	fields := make(map[string]string, stanza.Len())
	for _, name := range stanza.Fields() {
		fields[name], _ = stanza.Lookup(name)
	}
	if err := tmpl.Execute(out, fields); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	return err
}

// readDeb reads the control stanza of a package from a local path or URL.
func readDeb(ctx context.Context, path string) (*deb.Stanza, error) {
	var r io.ReadCloser
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		c := &fetch.Client{UserAgent: "deb-pm/1"}
		rc, err := c.Open(ctx, fetch.Request{URL: path})
		if err != nil {
			return nil, err
		}
		r = rc
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		r = f
	}
	defer r.Close()

	stanza, err := deb.ReadControl(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stanza, nil
}

// relations are the operators dpkg --compare-versions accepts.
var relations = map[string]func(int) bool{
	"lt": func(c int) bool { return c < 0 },
	"le": func(c int) bool { return c <= 0 },
	"eq": func(c int) bool { return c == 0 },
	"ne": func(c int) bool { return c != 0 },
	"ge": func(c int) bool { return c >= 0 },
	"gt": func(c int) bool { return c > 0 },
}

// runCompare prints <, = or > for "compare A B". With "compare A OP B" it
// prints nothing and fails when the relation does not hold.
func runCompare(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("compare", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch fs.NArg() {
	case 2:
		c := deb.CompareVersions(fs.Arg(0), fs.Arg(1))
		_, err := fmt.Fprintln(out, [...]string{"<", "=", ">"}[c+1])
		return err
	case 3:
		rel, ok := relations[fs.Arg(1)]
		if !ok {
			return fmt.Errorf("unknown relation %q", fs.Arg(1))
		}
		if !rel(deb.CompareVersions(fs.Arg(0), fs.Arg(2))) {
			return errFalse
		}
		return nil
	}
	return fmt.Errorf("usage: compare A [OP] B")
}

func runLatest(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("latest", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("latest takes at least one version")
	}
	_, err := fmt.Fprintln(out, deb.MaxVersion(fs.Args()))
	return err
}
