// File: cmd/codeshield/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/codeshield-25/codeshield-web/cmd"
	"github.com/codeshield-25/codeshield-web/internal/observability"
)

const panicLogFile = "panic.log"

const banner = `
   ___          _       ___  _     _      _     _
  / __\___   __| | ___ / __\| |__ (_) ___| | __| |
 / /  / _ \ / _' |/ _ \\__ \| '_ \| |/ _ \ |/ _' |
/ /__| (_) | (_| |  __/___) | | | | |  __/ | (_| |
\____/\___/ \__,_|\___|____/|_| |_|_|\___|_|\__,_|

Type a command (e.g. 'scan https://github.com/owner/repo'), or 'exit' to quit.

`

// Swapped out in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(0)
			} else {
				osExit(1)
			}
		}
		return
	}

	fmt.Print(banner)
	if err := runInteractive(ctx, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}
}

// runInteractive reads commands line by line until EOF, "exit" or "quit".
func runInteractive(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "codeshield > ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		executeInteractiveCommand(ctx, line, out, errOut)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Exiting codeshield.")
	return nil
}

// executeInteractiveCommand runs one line on a fresh command tree so flags
// from earlier lines do not carry over.
func executeInteractiveCommand(ctx context.Context, line string, out, errOut io.Writer) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(strings.Fields(line))
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(errOut, "Error: Command panicked: %v\n", r)
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(errOut, "Error:", err)
	}
}

// handlePanic records an unrecovered panic in panicLogFile and exits.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(2)
		return
	}

	fmt.Fprintf(os.Stderr, "\nCodeShield crashed unexpectedly. Details logged to %s\n", panicLogFile)
	osExit(2)
}
