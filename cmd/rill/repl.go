package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/rill/compiler"
	"github.com/chazu/rill/vm"
)

const (
	historyFile = ".rill_history"
	promptMain  = ">> "
	promptCont  = ".. "
)

// runREPL reads statements until EOF and runs each complete input against
// the same VM, so globals persist between lines.
func runREPL(machine *vm.VM, opts options) {
	fmt.Println("Rill REPL (type 'exit' to quit, ':help' for commands)")
	fmt.Println()

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	// Load history (best-effort)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		input, ok := readInput(ln)
		if !ok {
			fmt.Println()
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))

		if strings.HasPrefix(input, ":") {
			handleREPLCommand(machine, &opts, input, os.Stdout)
			continue
		}

		evalAndPrint(machine, input, opts, os.Stdout)
	}

	// Persist history (best-effort)
	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
}

// readInput accumulates lines until the buffer parses or fails for a reason
// other than running out of input.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C aborts the current input.
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := compiler.Parse(src); err != nil && incomplete(err) {
			continue
		}
		return src, true
	}
}

// incomplete reports whether a parse failure was caused by input ending
// early, in which case the REPL keeps reading.
func incomplete(err error) bool {
	var pe *compiler.ParseError
	if !errors.As(err, &pe) {
		return false
	}
	for _, msg := range pe.Messages {
		if strings.Contains(msg, "got EOF") || strings.Contains(msg, "unexpected EOF") ||
			strings.Contains(msg, "unterminated") {
			return true
		}
	}
	return false
}

// evalAndPrint runs one input. A bare expression prints its value.
func evalAndPrint(machine *vm.VM, input string, opts options, out io.Writer) {
	if isBareExpression(input) {
		input = "return " + input + ";"
	}
	chunk, err := compiler.CompileSource(input)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	if opts.disassemble {
		fmt.Fprint(out, chunk.Disassemble("repl"))
	}
	result, err := machine.Run(chunk)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	if result.Kind() != vm.KindUnit {
		fmt.Fprintln(out, result.String())
	}
}

// isBareExpression reports whether input is a single expression with no
// trailing semicolon.
func isBareExpression(input string) bool {
	if strings.HasSuffix(input, ";") || strings.HasSuffix(input, "}") {
		return false
	}
	p := compiler.NewParser(input + ";")
	stmts := p.ParseProgram()
	if len(p.Errors()) > 0 || len(stmts) != 1 {
		return false
	}
	es, ok := stmts[0].(*compiler.ExprStmt)
	if !ok {
		return false
	}
	_, isSet := es.Expr.(*compiler.Set)
	return !isSet
}

// handleREPLCommand handles REPL meta-commands
func handleREPLCommand(machine *vm.VM, opts *options, cmd string, out io.Writer) {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(out, "  :dis              Toggle disassembly before each run")
		fmt.Fprintln(out, "  :global NAME      Show a global's value")
		fmt.Fprintln(out, "  :load FILE        Run a script in this session")
		fmt.Fprintln(out, "  exit, quit        Exit REPL")
	case ":dis":
		opts.disassemble = !opts.disassemble
		fmt.Fprintf(out, "Disassembly %s\n", onOff(opts.disassemble))
	case ":global":
		if len(fields) != 2 {
			fmt.Fprintln(out, "Usage: :global NAME")
			return
		}
		v, ok := machine.Global(fields[1])
		if !ok {
			fmt.Fprintf(out, "%s is not defined\n", fields[1])
			return
		}
		fmt.Fprintln(out, v.String())
	case ":load":
		if len(fields) != 2 {
			fmt.Fprintln(out, "Usage: :load FILE")
			return
		}
		if err := runFile(machine, fields[1], *opts, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", fields[0])
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
