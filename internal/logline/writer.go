// Package logline provides the program's single log sink: a writer that tees lines to a rotating
// file (when a path is configured) and to the terminal, filtering the terminal copy by the line's
// target suffix. The file is rotated by size (100 MB); it is not rotated at day boundaries.
//
// A line written with a trailing "::stdout" or "::stderr" tag is always echoed to the corresponding
// terminal stream; everything else goes to the file sink only (if one is configured) and is dropped
// silently when no file sink is active, on the grounds that operators running without --log get
// only the lines explicitly aimed at the terminal. The tag itself is stripped before either sink
// sees the line.
package logline

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	stdoutTag = "::stdout"
	stderrTag = "::stderr"
)

// Writer is an io.Writer that tees each line it receives to a rotating log file and, depending on
// the line's target suffix, to stdout or stderr.
type Writer struct {
	file   io.Writer // nil when no --log path was configured
	stdout io.Writer
	stderr io.Writer
}

// New creates a Writer. path is the --log flag value; an empty path means no file sink, matching
// the CLI default of "unset". stdout and stderr are normally os.Stdout and os.Stderr, overridden in
// tests.
func New(path string, stdout, stderr io.Writer) *Writer {
	w := &Writer{stdout: stdout, stderr: stderr}
	if path != "" {
		w.file = &lumberjack.Logger{
			Filename: path,
			MaxSize:  100, // megabytes
			MaxAge:   1,   // days to keep rotated copies; this does not trigger rotation
			Compress: true,
		}
	}
	return w
}

// Write implements io.Writer. p may contain multiple newline-terminated lines; each is routed
// independently so a caller using fmt.Fprintln per log line, or a bufio.Scanner-fed batch, both
// work.
func (w *Writer) Write(p []byte) (int, error) {
	for _, line := range splitLines(p) {
		w.writeLine(line)
	}
	return len(p), nil
}

func (w *Writer) writeLine(line string) {
	target, stripped := targetOf(line)

	if w.file != nil {
		fmt.Fprintln(w.file, stripped)
	}

	switch target {
	case stdoutTag:
		fmt.Fprintln(w.stdout, stripped)
	case stderrTag:
		fmt.Fprintln(w.stderr, stripped)
	}
}

// targetOf reports the ::stdout/::stderr tag trailing line, if any, and returns the line with the
// tag removed.
func targetOf(line string) (target, stripped string) {
	for _, tag := range []string{stdoutTag, stderrTag} {
		if strings.HasSuffix(line, tag) {
			return tag, strings.TrimSuffix(line, tag)
		}
	}
	return "", line
}

func splitLines(p []byte) []string {
	p = bytes.TrimRight(p, "\n")
	if len(p) == 0 {
		return nil
	}
	return strings.Split(string(p), "\n")
}

// Stdout tags a line for terminal-stdout visibility regardless of whether a file sink is active.
func Stdout(line string) string {
	return line + stdoutTag
}

// Stderr tags a line for terminal-stderr visibility regardless of whether a file sink is active.
func Stderr(line string) string {
	return line + stderrTag
}

// LevelFromEnv reads the environment variable named envVar (RACE_DNS_PROXY_LOG in the program),
// returning def if it is unset or empty.
func LevelFromEnv(envVar, def string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return def
}
