// Package prompt reads answers from the terminal: yes/no confirmations,
// plain lines and passwords.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when input ends before an answer is read.
var ErrNoInput = errors.New("no input")

// Prompter asks questions on out and reads answers from in.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	// fd is the terminal file descriptor of in, or -1.
	fd int
}

// New returns a prompter over in and out. Passwords are read without echo
// when in is a terminal.
func New(in io.Reader, out io.Writer) *Prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Prompter{in: bufio.NewReader(in), out: out, fd: fd}
}

// Confirm asks a yes/no question. Anything other than y or yes is no.
func (p *Prompter) Confirm(message string) (bool, error) {
	answer, err := p.Line(message + " [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Line asks for one line of input and returns it trimmed.
func (p *Prompter) Line(label string) (string, error) {
	return p.Read(label + ": ")
}

// Read prints prompt as is and returns the next line, trimmed.
func (p *Prompter) Read(prompt string) (string, error) {
	if _, err := io.WriteString(p.out, prompt); err != nil {
		return "", err
	}
	return p.readLine()
}

// Password asks for a secret without echoing it on a terminal.
func (p *Prompter) Password(label string) (string, error) {
	if _, err := fmt.Fprintf(p.out, "%s: ", label); err != nil {
		return "", err
	}
	if p.fd < 0 {
		return p.readLine()
	}
	b, err := term.ReadPassword(p.fd)
	_, _ = fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if strings.TrimSpace(line) == "" {
				return "", ErrNoInput
			}
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// AlwaysConfirm answers yes without asking. It backs --yes.
type AlwaysConfirm struct{}

// Confirm implements history.Confirmer.
func (AlwaysConfirm) Confirm(string) (bool, error) { return true, nil }
