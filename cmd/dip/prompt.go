package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"dipcp-go/internal/dip"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// readSecret prints prompt to w and reads a line from the terminal without echo.
func readSecret(w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	secret, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

// passphrasePrompt returns a function asking for the token passphrase.
func passphrasePrompt(w io.Writer) func() (string, error) {
	return func() (string, error) {
		return readSecret(w, "Passphrase: ")
	}
}

// promptChooser asks on the terminal which article an ambiguous name should
// link to.
type promptChooser struct {
	in  *bufio.Reader
	out io.Writer
}

var _ dip.Chooser = (*promptChooser)(nil)

func newPromptChooser(in io.Reader, out io.Writer) *promptChooser {
	return &promptChooser{in: bufio.NewReader(in), out: out}
}

// Choose lists the candidates and reads a number. An empty line skips the name.
func (c *promptChooser) Choose(name string, candidates []string) (string, error) {
	fmt.Fprintf(c.out, "%q matches several articles:\n", name)
	for i, cand := range candidates {
		fmt.Fprintf(c.out, "  %d) %s\n", i+1, cand)
	}
	for {
		fmt.Fprint(c.out, "Link to (empty to skip): ")
		line, err := c.in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			if errors.Is(err, io.EOF) {
				return "", nil
			}
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return "", nil
		}
		n, convErr := strconv.Atoi(line)
		if convErr == nil && n >= 1 && n <= len(candidates) {
			return candidates[n-1], nil
		}
		fmt.Fprintf(c.out, "Enter a number between 1 and %d.\n", len(candidates))
		if err != nil {
			return "", nil
		}
	}
}
