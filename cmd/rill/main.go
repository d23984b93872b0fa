// Rill CLI - the main entry point for running Rill programs
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/rill/compiler"
	"github.com/chazu/rill/manifest"
	"github.com/chazu/rill/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("rill.cli")

// options collects the command-line flags after manifest defaults are
// applied.
type options struct {
	interactive bool
	disassemble bool
	fingerprint bool
	trace       bool
	verbosity   int
}

func main() {
	interactive := flag.Bool("i", false, "Start interactive REPL")
	disassemble := flag.Bool("d", false, "Print the compiled chunk before running")
	fingerprint := flag.Bool("fingerprint", false, "Print the chunk fingerprint and exit")
	trace := flag.Bool("trace", false, "Log every executed instruction (needs -v 2)")
	verbosity := flag.Int("v", 0, "Log verbosity (0 quiet, 1 info, 2 debug)")
	projectDir := flag.String("C", ".", "Project directory to search for rill.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rill [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs a Rill script. With no file, runs the entry of the\n")
		fmt.Fprintf(os.Stderr, "nearest rill.toml, or starts the REPL when there is none.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  rill script.rl              # Run a script\n")
		fmt.Fprintf(os.Stderr, "  rill -d script.rl           # Disassemble, then run\n")
		fmt.Fprintf(os.Stderr, "  rill -fingerprint script.rl # Print the chunk fingerprint\n")
		fmt.Fprintf(os.Stderr, "  rill -C ./demo              # Run the project in ./demo\n")
		fmt.Fprintf(os.Stderr, "  rill -i                     # Start REPL\n")
	}
	flag.Parse()

	opts := options{
		interactive: *interactive,
		disassemble: *disassemble,
		fingerprint: *fingerprint,
		trace:       *trace,
		verbosity:   *verbosity,
	}

	m, err := manifest.FindAndLoad(*projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags win over manifest defaults.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if m != nil {
		if !set["d"] {
			opts.disassemble = m.Run.Disassemble
		}
		if !set["trace"] {
			opts.trace = m.Run.Trace
		}
		if !set["v"] {
			opts.verbosity = m.Run.Verbosity
		}
	}
	commonlog.Configure(opts.verbosity, nil)

	machine, err := newVM(m, opts, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var path string
	switch {
	case flag.NArg() > 0:
		path = flag.Arg(0)
	case m != nil && !opts.interactive:
		path = m.EntryPath()
		log.Infof("running project %s (%s)", m.Project.Name, path)
	}

	if path != "" {
		if err := runFile(machine, path, opts, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if opts.interactive || path == "" {
		runREPL(machine, opts)
	}
}

// newVM creates a VM seeded with the manifest's globals.
func newVM(m *manifest.Manifest, opts options, out io.Writer) (*vm.VM, error) {
	vmOpts := []vm.Option{vm.WithOutput(out), vm.WithTrace(opts.trace)}
	if m != nil {
		globals, err := m.GlobalValues()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Join(m.Dir, manifest.FileName), err)
		}
		vmOpts = append(vmOpts, vm.WithGlobals(globals))
	}
	machine := vm.New(vmOpts...)
	log.Debugf("vm %s ready", machine.ID())
	return machine, nil
}

// runFile compiles and runs one script.
func runFile(machine *vm.VM, path string, opts options, out io.Writer) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := runSource(machine, string(source), filepath.Base(path), opts, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// runSource compiles source and, unless only a fingerprint was asked for,
// runs it on machine.
func runSource(machine *vm.VM, source, name string, opts options, out io.Writer) error {
	chunk, err := compiler.CompileSource(source)
	if err != nil {
		return err
	}

	if opts.fingerprint {
		sum, err := chunk.Fingerprint()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, sum)
		return nil
	}
	if opts.disassemble {
		fmt.Fprint(out, chunk.Disassemble(name))
		fmt.Fprintln(out)
	}

	_, err = machine.Run(chunk)
	return err
}
