package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// terminal asks questions on the command line. It implements
// login.Prompter, and stands in for the platform biometric check as a
// login.BiometricGate.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
	// fd is the input file descriptor when it is a TTY, else -1.
	fd int
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	t := &terminal{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
	}
	return t
}

func (t *terminal) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Confirm asks a yes/no question; anything but y or yes is no.
func (t *terminal) Confirm(ctx context.Context, message string) (bool, error) {
	fmt.Fprintf(t.out, "%s [y/N]: ", message)
	line, err := t.readLine(ctx)
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Authenticate asks the device owner to confirm.
func (t *terminal) Authenticate(ctx context.Context, reason string) (bool, error) {
	return t.Confirm(ctx, reason)
}

func (t *terminal) ask(ctx context.Context, label string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", label)
	line, err := t.readLine(ctx)
	return strings.TrimSpace(line), err
}

// askSecret reads without echo when attached to a TTY.
func (t *terminal) askSecret(ctx context.Context, label string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", label)
	if t.fd >= 0 {
		b, err := term.ReadPassword(t.fd)
		fmt.Fprintln(t.out)
		return string(b), err
	}
	return t.readLine(ctx)
}

// fixedAnswer answers every question the same way, for --yes / --no.
type fixedAnswer bool

func (f fixedAnswer) Confirm(context.Context, string) (bool, error) {
	return bool(f), nil
}
