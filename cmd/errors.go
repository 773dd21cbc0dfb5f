package cmd

import (
	"errors"
	"fmt"

	"github.com/joescharf/ado/internal/workitems"
)

// errReported is returned after the service has already printed the
// failure through ui, so Execute only sets the exit code.
var errReported = errors.New("failed")

func invalidParent(p string) error {
	return fmt.Errorf("%w: parent id %q is not a positive integer", workitems.ErrInvalidInput, p)
}
