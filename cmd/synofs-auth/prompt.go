package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// prompter reads secrets from a terminal without echo, or line by line when
// stdin is piped.
type prompter struct {
	in     *os.File
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(in *os.File, out io.Writer) *prompter {
	return &prompter{in: in, out: out, reader: bufio.NewReader(in)}
}

func (p *prompter) interactive() bool {
	return term.IsTerminal(int(p.in.Fd()))
}

func (p *prompter) secret(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if p.interactive() {
		b, err := term.ReadPassword(int(p.in.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", errors.Wrapf(err, "read %s", strings.TrimSuffix(label, ": "))
		}
		return string(b), nil
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrapf(err, "read %s", strings.TrimSuffix(label, ": "))
	}
	return strings.TrimRight(line, "\r\n"), nil
}
