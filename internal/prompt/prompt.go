// Package prompt reads user answers from a terminal one line at a time.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ErrClosed is returned by ReadLine after Close.
var ErrClosed = errors.New("prompt: reader closed")

// LineReader shows a prompt and returns the next input line without its
// trailing newline. It returns io.EOF when input ends.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// Opener acquires a LineReader. The caller must Close what it gets.
type Opener func() (LineReader, error)

// MaxLineBytes caps what ReadLine returns for one line. Longer lines are
// cut at the cap and the remainder is discarded, so oversized input reads as
// a single invalid answer.
const MaxLineBytes = 4 << 10

// Reader is a LineReader over an io.Reader.
type Reader struct {
	br     *bufio.Reader
	out    io.Writer
	closed bool
}

// Open wraps in and writes prompts to out. Close does not close in.
func Open(in io.Reader, out io.Writer) *Reader {
	if out == nil {
		out = io.Discard
	}
	return &Reader{br: bufio.NewReader(in), out: out}
}

// ReadLine implements LineReader.
func (r *Reader) ReadLine(prompt string) (string, error) {
	if r.closed {
		return "", ErrClosed
	}
	if prompt != "" {
		if _, err := fmt.Fprint(r.out, prompt); err != nil {
			return "", err
		}
	}
	var line []byte
	for {
		chunk, more, err := r.br.ReadLine()
		if err != nil {
			return "", err
		}
		if room := MaxLineBytes - len(line); room > 0 {
			line = append(line, chunk[:min(len(chunk), room)]...)
		}
		if !more {
			return strings.TrimRight(string(line), "\r"), nil
		}
	}
}

// Close releases the reader. Closing twice is a no-op.
func (r *Reader) Close() error {
	r.closed = true
	return nil
}

// Stdin returns an Opener that starts a fresh Reader on in for every prompt
// session.
func Stdin(in io.Reader, out io.Writer) Opener {
	return func() (LineReader, error) {
		if in == nil {
			return nil, errors.New("prompt: no input")
		}
		return Open(in, out), nil
	}
}

// Shared returns an Opener that lends lr without transferring ownership:
// closing the borrowed reader leaves lr open.
func Shared(lr LineReader) Opener {
	return func() (LineReader, error) {
		return borrowed{lr}, nil
	}
}

type borrowed struct {
	LineReader
}

func (borrowed) Close() error { return nil }

// IsTerminal reports whether f is attached to an interactive terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// ParseChoice parses a 1-based selection among n options. The whole answer
// must be a base-10 integer: "1.5" and "5abc" are rejected rather than read
// as their leading digits.
func ParseChoice(s string, n int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v, true
}
