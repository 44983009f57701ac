package cmdutil

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/output"
)

// Confirm asks title as a yes/no question unless yes is set. A declined
// question returns an ExitCancelled error. Without a terminal the question
// cannot be asked and a validation error tells the user to pass --yes.
func Confirm(cfg *cmdtypes.GlobalConfig, yes bool, title string) error {
	if yes {
		return nil
	}

	ask := cfg.Confirm
	if ask == nil {
		if !output.IsStdinTTY() {
			return &oerrors.ExitError{
				Code: oerrors.ExitValidationError,
				Err:  fmt.Errorf("confirmation required but stdin is not a terminal: rerun with --yes"),
			}
		}
		ask = promptConfirm
	}

	ok, err := ask(title)
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return &oerrors.ExitError{Code: oerrors.ExitCancelled, Err: oerrors.ErrCancelled}
		}
		return fmt.Errorf("reading confirmation: %w", err)
	}
	if !ok {
		return &oerrors.ExitError{Code: oerrors.ExitCancelled, Err: oerrors.ErrCancelled}
	}
	return nil
}

func promptConfirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	return ok, err
}
