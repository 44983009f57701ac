package secrets

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ErrNoTerminal is returned when a prompt is needed but stdin is not a
// terminal.
var ErrNoTerminal = errors.New("password required but no terminal is available")

// Prompter asks the user for a secret.
type Prompter func(prompt string) (string, error)

// TerminalPrompt reads a password from stdin without echo.
func TerminalPrompt(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// Available reports whether Resolve has a password source for target: a
// configured value, a stored password or a prompt. The store is only read.
func Available(configured, target string, store Store, prompt Prompter) error {
	if configured != "" {
		return nil
	}
	if store != nil {
		_, err := store.Get(target)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, ErrNotStored):
			return err
		}
	}
	if prompt == nil {
		return ErrNoTerminal
	}
	return nil
}

// Resolve returns the password for target: the configured value when
// present, then the store, then the prompt. A prompted password is saved to
// the store. saved reports whether that happened.
func Resolve(configured, target string, store Store, prompt Prompter) (password string, saved bool, err error) {
	if configured != "" {
		return configured, false, nil
	}
	if store != nil {
		pw, err := store.Get(target)
		switch {
		case err == nil:
			return pw, false, nil
		case !errors.Is(err, ErrNotStored):
			return "", false, err
		}
	}
	if prompt == nil {
		return "", false, ErrNoTerminal
	}
	pw, err := prompt(fmt.Sprintf("SSH password for %s: ", target))
	if err != nil {
		return "", false, err
	}
	if pw == "" {
		return "", false, errors.New("empty password")
	}
	if store != nil {
		if err := store.Set(target, pw); err != nil {
			return pw, false, err
		}
		return pw, true, nil
	}
	return pw, false, nil
}
